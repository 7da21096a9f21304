package trickster

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatchScriptedResponderWinsFirst(t *testing.T) {
	t.Parallel()

	bot, _, _ := newTestTrickster(1)
	cmd := bot.dispatch(context.Background(), guildMessage("ratio"))
	assert.Equal(t, CommandText, cmd.Kind)
	assert.Equal(t, "counter-ratio. you lose.", cmd.Text)
}

func TestTodayIModerationDeletesOffTopic(t *testing.T) {
	t.Parallel()

	bot, session, _ := newTestTrickster(1)
	bot.config.Discord.TodayIChannel = testChannelID

	m := guildMessage("yesterday I did nothing")
	assert.True(t, bot.moderateTodayI(context.Background(), m))

	session.mu.Lock()
	deletes := len(session.deletes)
	session.mu.Unlock()
	assert.Equal(t, 1, deletes)
}

func TestTodayIModerationAllowsOnTopic(t *testing.T) {
	t.Parallel()

	bot, session, _ := newTestTrickster(1)
	bot.config.Discord.TodayIChannel = testChannelID

	m := guildMessage("Today I fixed a bug")
	assert.False(t, bot.moderateTodayI(context.Background(), m))

	session.mu.Lock()
	deletes := len(session.deletes)
	session.mu.Unlock()
	assert.Zero(t, deletes)
}

func TestTodayIModerationOtherChannelUnaffected(t *testing.T) {
	t.Parallel()

	bot, session, _ := newTestTrickster(1)
	bot.config.Discord.TodayIChannel = "another-channel"

	m := guildMessage("random chatter")
	assert.False(t, bot.moderateTodayI(context.Background(), m))

	session.mu.Lock()
	deletes := len(session.deletes)
	session.mu.Unlock()
	assert.Zero(t, deletes)
}

func TestDispatchQuizInterceptBeatsNovelty(t *testing.T) {
	t.Parallel()

	bot, _, _ := newTestTrickster(1)
	bot.pendingMath[testChannelID] = &PendingMathTest{
		UserID:    "asker",
		ChannelID: testChannelID,
		Test:      MathTest{Question: "40 + 2", Answer: 42},
		StartedAt: time.Now(),
	}

	// "im 42" would match the dad-joke branch, but the pending quiz is
	// checked first and "42" does not parse out of "im 42"
	cmd := bot.dispatch(context.Background(), guildMessage("42"))
	assert.Equal(t, CommandReply, cmd.Kind)
	assert.Contains(t, cmd.Text, "Correct!")
}

func TestDispatchRenameChannelFurryVeto(t *testing.T) {
	t.Parallel()

	for seed := int64(0); seed < 500; seed++ {
		bot, session, _ := newTestTrickster(seed)
		bot.config.Discord.RenameChannels = []string{testChannelID}

		cmd := bot.dispatch(context.Background(), guildMessage("uwu hello"))
		if cmd.Kind == CommandText && cmd.Text == "No furry shit!!!!!" {
			// roll won and the veto fired instead of a topic edit
			session.mu.Lock()
			edits := len(session.channelEdits)
			session.mu.Unlock()
			assert.Zero(t, edits)
			return
		}
	}
	t.Fatal("rename roll never won across 500 seeds")
}

func TestDispatchRenameChannelCooldown(t *testing.T) {
	t.Parallel()

	bot, session, _ := newTestTrickster(1)
	bot.config.Discord.RenameChannels = []string{testChannelID}
	bot.lastRename = time.Now()

	for i := 0; i < 200; i++ {
		bot.dispatch(context.Background(), guildMessage("some topic"))
	}
	session.mu.Lock()
	edits := len(session.channelEdits)
	session.mu.Unlock()
	assert.Zero(t, edits, "cooldown window must block every rename roll")
}

func TestShouldTriggerAIOnMention(t *testing.T) {
	t.Parallel()

	bot, _, _ := newTestTrickster(1)
	bot.llm = &LLM{config: bot.config.LLM}

	m := guildMessage("hey @bot")
	m.Mentions = append(m.Mentions, &discordgo.User{ID: "bot-user"})
	assert.True(t, bot.shouldTriggerAI(m))
}

func TestShouldTriggerAIOnReplyToBot(t *testing.T) {
	t.Parallel()

	bot, _, _ := newTestTrickster(1)
	bot.llm = &LLM{config: bot.config.LLM}

	m := guildMessage("replying to you")
	m.ReferencedMessage = &discordgo.Message{
		Author: &discordgo.User{ID: "bot-user"},
	}
	assert.True(t, bot.shouldTriggerAI(m))
}

func TestShouldTriggerAIDisabledWithoutLLM(t *testing.T) {
	t.Parallel()

	bot, _, _ := newTestTrickster(1)
	require.Nil(t, bot.llm)

	m := guildMessage("hey")
	m.Mentions = append(m.Mentions, &discordgo.User{ID: "bot-user"})
	assert.False(t, bot.shouldTriggerAI(m))
}

func TestBuildAIRequestIncludesContext(t *testing.T) {
	t.Parallel()

	bot, _, _ := newTestTrickster(1)
	bot.cache.add(
		testChannelID,
		cachedMessage{AuthorID: "u2", AuthorName: "alice", Content: "hi all"},
	)
	bot.cache.add(
		testChannelID,
		cachedMessage{
			AuthorID:   "bot-user",
			AuthorName: "whatever",
			Content:    "greetings",
		},
	)

	req := bot.buildAIRequest(guildMessage("hello bot"))
	assert.Equal(t, testUserID, req.UserID)
	assert.Contains(t, req.Context, "alice: hi all")
	// bot lines are attributed to the persona name
	assert.Contains(t, req.Context, "The Trickster: greetings")
	assert.Contains(t, req.Participants, "alice")
	assert.NotContains(t, req.Participants, "whatever")
}
