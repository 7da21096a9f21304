package trickster

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
)

const (
	// odds for the novelty branches, rolled independently in order
	renameChannelOdds = 10
	zalgifyOdds       = 75
	wordShuffleOdds   = 55
	redditRepostOdds  = 40

	// odds for an unprompted conversational reply
	aiTriggerOdds = 100

	// cooldown between random channel-topic rewrites
	renameCooldown = 150 * time.Second

	// passive XP per message: base roll plus a bonus per attachment
	passiveXPBase          = 5
	passiveXPPerAttachment = 5
)

// moderateTodayI deletes off-topic messages in the today-i channel,
// reporting whether the message was removed. Moderation runs ahead of
// the rate-limit gates so a saturated bucket never suspends it.
func (t *Trickster) moderateTodayI(
	ctx context.Context,
	m *discordgo.MessageCreate,
) bool {
	if t.config.Discord.TodayIChannel == "" ||
		m.ChannelID != t.config.Discord.TodayIChannel ||
		strings.HasPrefix(strings.ToLower(m.Content), "today i") {
		return false
	}
	if err := t.discord.ChannelMessageDelete(m.ChannelID, m.ID); err != nil {
		t.logger.ErrorContext(
			ctx,
			"error deleting off-topic message",
			tint.Err(err),
		)
	}
	return true
}

// dispatch evaluates the ordered branch list for one guild message and
// returns the resulting command. Caller holds t.mu; bot/guild/rate
// gates and channel moderation have already run.
func (t *Trickster) dispatch(
	ctx context.Context,
	m *discordgo.MessageCreate,
) Command {
	if cmd, ok := scriptedResponse(m.Content); ok {
		return cmd
	}

	if cmd, ok := t.handleMathQuiz(ctx, m); ok {
		return cmd
	}
	if cmd, ok := t.handleColorQuiz(ctx, m); ok {
		return cmd
	}

	if cmd := t.grantPassiveXP(ctx, m); cmd.Kind != CommandNothing {
		return cmd
	}

	if cmd, ok := t.maybeRenameChannel(ctx, m); ok {
		return cmd
	}
	if cmd, ok := imResponse(m.Content); ok {
		return cmd
	}
	if t.rng.Intn(zalgifyOdds) == 2 {
		return replyCommand("%s", zalgify(t.rng, m.Content))
	}
	if t.rng.Intn(wordShuffleOdds) == 2 {
		return replyCommand("%s", shuffleWords(t.rng, m.Content))
	}
	if t.rng.Intn(redditRepostOdds) == 2 {
		pic, err := randomRedditImage(
			ctx,
			t.httpClient,
			t.rng,
			t.config.Discord.ShitReddits,
		)
		if err != nil {
			t.logger.ErrorContext(
				ctx,
				"error fetching reddit image",
				tint.Err(err),
			)
			return nothingCommand()
		}
		if pic != "" {
			return textCommand("%s", pic)
		}
		return nothingCommand()
	}

	if cmd, ok := t.triggerMathQuiz(ctx, m); ok {
		return cmd
	}
	if cmd, ok := t.triggerColorQuiz(ctx, m); ok {
		return cmd
	}

	return nothingCommand()
}

// grantPassiveXP applies the per-message XP grant, returning a visible
// announcement only when the grant crossed a level threshold. New
// users get their first grant recorded without a leveling check.
func (t *Trickster) grantPassiveXP(
	ctx context.Context,
	m *discordgo.MessageCreate,
) Command {
	gain := 1 + t.rng.Intn(passiveXPBase) +
		passiveXPPerAttachment*len(m.Attachments)

	user, created, err := t.db.GetOrCreateUser(
		ctx,
		m.Author.ID,
		messageDisplayName(m.Message),
	)
	if err != nil {
		t.logger.ErrorContext(ctx, "error loading user for xp", tint.Err(err))
		return nothingCommand()
	}

	var leveledUp bool
	if created {
		user.XP += gain
	} else {
		leveledUp = user.GrantXP(gain)
	}
	if err = t.db.Save(user); err != nil {
		t.logger.ErrorContext(ctx, "error saving user xp", tint.Err(err))
		return nothingCommand()
	}
	if !leveledUp {
		return nothingCommand()
	}
	return textCommand(
		"<@%s> leveled up to level %d! :tada:",
		user.ID,
		user.Level,
	)
}

// maybeRenameChannel rolls the random channel-topic rewrite for
// configured channels, vetoing furry-speak.
func (t *Trickster) maybeRenameChannel(
	ctx context.Context,
	m *discordgo.MessageCreate,
) (Command, bool) {
	if time.Since(t.lastRename) <= renameCooldown {
		return nothingCommand(), false
	}
	eligible := false
	for _, id := range t.config.Discord.RenameChannels {
		if id == m.ChannelID {
			eligible = true
			break
		}
	}
	if !eligible || t.rng.Intn(renameChannelOdds) != 2 {
		return nothingCommand(), false
	}

	content := strings.ToLower(m.Content)
	if strings.Contains(content, "uwu") || strings.Contains(content, "owo") {
		return textCommand("No furry shit!!!!!"), true
	}

	_, err := t.discord.ChannelEdit(
		m.ChannelID,
		&discordgo.ChannelEdit{Topic: content},
	)
	if err != nil {
		t.logger.ErrorContext(ctx, "error renaming channel", tint.Err(err))
		return nothingCommand(), true
	}
	t.logger.InfoContext(ctx, "channel topic rewritten", "channel_id", m.ChannelID)
	t.lastRename = time.Now()
	return nothingCommand(), true
}

// shouldTriggerAI reports whether the message warrants a
// conversational reply: a low-probability roll, a direct mention, or a
// reply to one of the bot's own messages. Caller holds t.mu.
func (t *Trickster) shouldTriggerAI(m *discordgo.MessageCreate) bool {
	if t.llm == nil {
		return false
	}
	if messageMentionsUser(m.Message, t.botUserID) {
		return true
	}
	if m.ReferencedMessage != nil &&
		m.ReferencedMessage.Author != nil &&
		m.ReferencedMessage.Author.ID == t.botUserID {
		return true
	}
	return t.rng.Intn(aiTriggerOdds) == 2
}

// buildAIRequest renders the conversation window and participant map
// for the responder. Caller holds t.mu.
func (t *Trickster) buildAIRequest(m *discordgo.MessageCreate) AIRequest {
	name := messageDisplayName(m.Message)
	content := m.ContentWithMentionsReplaced()

	recent := t.cache.recent(m.ChannelID, channelContextSize)
	participants := map[string]string{name: m.Author.ID}
	var lines []string
	for _, cached := range recent {
		author := cached.AuthorName
		if cached.AuthorID == t.botUserID {
			author = "The Trickster"
		} else {
			participants[cached.AuthorName] = cached.AuthorID
		}
		lines = append(
			lines,
			author+": "+truncate(cached.Content, promptMessageLimit),
		)
	}
	contextWindow := strings.Join(lines, "\n")
	if contextWindow == "" {
		contextWindow = name + ": " + truncate(content, promptMessageLimit)
	}

	return AIRequest{
		UserID:       m.Author.ID,
		UserName:     name,
		Message:      name + ": " + truncate(content, promptMessageLimit),
		Context:      contextWindow,
		Participants: participants,
	}
}

// respondWithAI runs the responder and relays the streamed reply. When
// the responder cannot start, a visible error reply is sent instead.
func (t *Trickster) respondWithAI(
	ctx context.Context,
	m *discordgo.MessageCreate,
	req AIRequest,
) {
	snapshots, err := t.Respond(ctx, req)
	if err != nil {
		t.logger.ErrorContext(ctx, "AI error", tint.Err(err))
		_, sendErr := t.discord.ChannelMessageSendReply(
			m.ChannelID,
			truncate("AI Error: "+err.Error(), discordMaxMessageLength),
			m.Reference(),
		)
		if sendErr != nil {
			t.logger.ErrorContext(
				ctx,
				"error sending AI error reply",
				tint.Err(sendErr),
			)
		}
		return
	}
	relayStream(
		ctx,
		t.discord,
		t.logger.With(loggerNameKey, "relay"),
		m.ChannelID,
		m.Reference(),
		snapshots,
	)
}
