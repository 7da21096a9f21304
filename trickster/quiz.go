package trickster

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
)

// probability denominator for the per-message quiz trigger rolls
const quizTriggerOdds = 500

// PendingMathTest is an unanswered math challenge, keyed by channel.
type PendingMathTest struct {
	UserID    string
	ChannelID string
	Test      MathTest
	StartedAt time.Time
}

// PendingColorTest is an unanswered color challenge, keyed by channel.
type PendingColorTest struct {
	UserID    string
	ChannelID string
	Quiz      ColorQuiz
	StartedAt time.Time
}

// awardQuizXP grants randomized bonus XP for a solved quiz and persists
// the user. Returns the bonus and, when the grant crossed a level
// threshold, the new level.
func (t *Trickster) awardQuizXP(
	ctx context.Context,
	userID string,
	userName string,
) (int, int, bool) {
	bonusXP := 250 + t.rng.Intn(750)

	user, _, err := t.db.GetOrCreateUser(ctx, userID, userName)
	if err != nil {
		t.logger.ErrorContext(ctx, "error loading quiz winner", tint.Err(err))
		return bonusXP, 0, false
	}
	leveledUp := user.GrantXP(bonusXP)
	if err = t.db.Save(user); err != nil {
		t.logger.ErrorContext(ctx, "error saving quiz winner", tint.Err(err))
	}
	return bonusXP, user.Level, leveledUp
}

// handleMathQuiz resolves a message against the channel's pending math
// test, if any. Expired tests announce the answer and time out the
// original asker for a minute.
func (t *Trickster) handleMathQuiz(
	ctx context.Context,
	m *discordgo.MessageCreate,
) (Command, bool) {
	pending, ok := t.pendingMath[m.ChannelID]
	if !ok {
		return nothingCommand(), false
	}
	elapsed := time.Since(pending.StartedAt)

	if elapsed > mathTestWindowSeconds*time.Second {
		delete(t.pendingMath, m.ChannelID)

		if m.GuildID != "" {
			until := time.Now().Add(time.Minute)
			err := t.discord.GuildMemberTimeout(m.GuildID, pending.UserID, &until)
			if err != nil {
				t.logger.ErrorContext(
					ctx,
					"error applying quiz timeout",
					"user_id", pending.UserID,
					tint.Err(err),
				)
			}
		}
		return textCommand(
			"<@%s> Time's up! The answer was `%.1f`. You've been timed out for 1 minute.",
			pending.UserID,
			pending.Test.Answer,
		), true
	}

	if !pending.Test.ValidateAnswer(m.Content) {
		return nothingCommand(), false
	}
	delete(t.pendingMath, m.ChannelID)

	bonusXP, newLevel, leveledUp := t.awardQuizXP(
		ctx,
		m.Author.ID,
		messageDisplayName(m.Message),
	)
	if leveledUp {
		return replyCommand(
			"<@%s> Correct! Well done. You earned %d XP and leveled up to level %d! (Solved in %.3fs)",
			m.Author.ID,
			bonusXP,
			newLevel,
			elapsed.Seconds(),
		), true
	}
	return replyCommand(
		"<@%s> Correct! Well done. You earned %d XP! (Solved in %.3fs)",
		m.Author.ID,
		bonusXP,
		elapsed.Seconds(),
	), true
}

// handleColorQuiz resolves a message against the channel's pending
// color test, if any.
func (t *Trickster) handleColorQuiz(
	ctx context.Context,
	m *discordgo.MessageCreate,
) (Command, bool) {
	pending, ok := t.pendingColor[m.ChannelID]
	if !ok {
		return nothingCommand(), false
	}
	elapsed := time.Since(pending.StartedAt)
	quiz := pending.Quiz

	if elapsed > colorQuizWindowSeconds*time.Second {
		delete(t.pendingColor, m.ChannelID)
		return textCommand(
			"<@%s> Time's up! The color was `rgb(%d, %d, %d)` or `%s`.",
			pending.UserID,
			quiz.R, quiz.G, quiz.B,
			quiz.Hex(),
		), true
	}

	if !quiz.ValidateAnswer(m.Content) {
		return nothingCommand(), false
	}
	delete(t.pendingColor, m.ChannelID)

	bonusXP, newLevel, leveledUp := t.awardQuizXP(
		ctx,
		m.Author.ID,
		messageDisplayName(m.Message),
	)
	if leveledUp {
		return replyCommand(
			"<@%s> Correct! The color was `rgb(%d, %d, %d)` or `%s`. You earned %d XP and leveled up to level %d!",
			m.Author.ID,
			quiz.R, quiz.G, quiz.B,
			quiz.Hex(),
			bonusXP,
			newLevel,
		), true
	}
	return replyCommand(
		"<@%s> Correct! The color was `rgb(%d, %d, %d)` or `%s`. You earned %d XP!",
		m.Author.ID,
		quiz.R, quiz.G, quiz.B,
		quiz.Hex(),
		bonusXP,
	), true
}

// channelHasPendingQuiz reports whether any quiz is outstanding in the
// channel. Math and color tests are mutually exclusive per channel.
func (t *Trickster) channelHasPendingQuiz(channelID string) bool {
	_, math := t.pendingMath[channelID]
	_, color := t.pendingColor[channelID]
	return math || color
}

// triggerMathQuiz rolls for, generates and posts a new math test.
func (t *Trickster) triggerMathQuiz(
	ctx context.Context,
	m *discordgo.MessageCreate,
) (Command, bool) {
	if t.llm == nil ||
		t.rng.Intn(quizTriggerOdds) != 42 ||
		t.channelHasPendingQuiz(m.ChannelID) {
		return nothingCommand(), false
	}

	test, err := t.llm.GenerateMathTest(
		WithLogger(ctx, t.logger),
		t.db,
		t.rng,
	)
	if err != nil {
		t.logger.ErrorContext(ctx, "error generating math test", tint.Err(err))
		return nothingCommand(), false
	}

	t.pendingMath[m.ChannelID] = &PendingMathTest{
		UserID:    m.Author.ID,
		ChannelID: m.ChannelID,
		Test:      *test,
		StartedAt: time.Now(),
	}
	return textCommand(
		"<@%s> **MATH TEST TIME!** Solve this in 30 seconds:\n`%s`\n(Answer to 1 decimal place)",
		m.Author.ID,
		test.Question,
	), true
}

// triggerColorQuiz rolls for, renders and posts a new color test.
func (t *Trickster) triggerColorQuiz(
	ctx context.Context,
	m *discordgo.MessageCreate,
) (Command, bool) {
	if t.rng.Intn(quizTriggerOdds) != 42 ||
		t.channelHasPendingQuiz(m.ChannelID) {
		return nothingCommand(), false
	}

	quiz := GenerateColorQuiz(t.rng)
	imageData, err := quiz.Image()
	if err != nil {
		t.logger.ErrorContext(
			ctx,
			"error rendering color quiz image",
			tint.Err(err),
		)
		return nothingCommand(), false
	}

	t.pendingColor[m.ChannelID] = &PendingColorTest{
		UserID:    m.Author.ID,
		ChannelID: m.ChannelID,
		Quiz:      quiz,
		StartedAt: time.Now(),
	}
	return fileCommand(
		fmt.Sprintf(
			"**COLOR QUIZ TIME!** Guess this color in %d seconds!\nFormat: `#RRGGBB`",
			colorQuizWindowSeconds,
		),
		"color.png",
		bytes.NewReader(imageData),
	), true
}
