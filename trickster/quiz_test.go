package trickster

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleMathQuizCorrectAnswer(t *testing.T) {
	t.Parallel()

	bot, _, db := newTestTrickster(1)
	ctx := context.Background()

	bot.pendingMath[testChannelID] = &PendingMathTest{
		UserID:    "asker",
		ChannelID: testChannelID,
		Test:      MathTest{Question: "6 * 7", Answer: 42},
		StartedAt: time.Now(),
	}

	cmd, handled := bot.handleMathQuiz(ctx, guildMessage("42"))
	require.True(t, handled)
	assert.Equal(t, CommandReply, cmd.Kind)
	assert.Contains(t, cmd.Text, "Correct!")
	assert.NotContains(t, bot.pendingMath, testChannelID)

	// answering user got the bonus, not the original asker
	winner, _, err := db.GetOrCreateUser(ctx, testUserID, "")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, winner.XP+winner.Level, 1)
}

func TestHandleMathQuizWrongAnswerIgnored(t *testing.T) {
	t.Parallel()

	bot, _, _ := newTestTrickster(1)
	bot.pendingMath[testChannelID] = &PendingMathTest{
		UserID:    "asker",
		ChannelID: testChannelID,
		Test:      MathTest{Question: "6 * 7", Answer: 42},
		StartedAt: time.Now(),
	}

	_, handled := bot.handleMathQuiz(context.Background(), guildMessage("41"))
	assert.False(t, handled)
	assert.Contains(t, bot.pendingMath, testChannelID)

	// non-numeric chatter passes through too
	_, handled = bot.handleMathQuiz(context.Background(), guildMessage("what"))
	assert.False(t, handled)
}

func TestHandleMathQuizTimeout(t *testing.T) {
	t.Parallel()

	bot, session, _ := newTestTrickster(1)
	bot.pendingMath[testChannelID] = &PendingMathTest{
		UserID:    "asker",
		ChannelID: testChannelID,
		Test:      MathTest{Question: "85 / 2", Answer: 42.5},
		StartedAt: time.Now().Add(-time.Minute),
	}

	cmd, handled := bot.handleMathQuiz(context.Background(), guildMessage("42.5"))
	require.True(t, handled)
	assert.Equal(t, CommandText, cmd.Kind)
	assert.Contains(t, cmd.Text, "Time's up!")
	assert.Contains(t, cmd.Text, "`42.5`")
	assert.NotContains(t, bot.pendingMath, testChannelID)

	session.mu.Lock()
	defer session.mu.Unlock()
	require.Len(t, session.timeouts, 1)
	assert.Equal(t, "asker", session.timeouts[0])
}

func TestHandleColorQuizCorrectAnswer(t *testing.T) {
	t.Parallel()

	bot, _, _ := newTestTrickster(1)
	quiz := ColorQuiz{R: 10, G: 20, B: 30}
	bot.pendingColor[testChannelID] = &PendingColorTest{
		UserID:    "asker",
		ChannelID: testChannelID,
		Quiz:      quiz,
		StartedAt: time.Now(),
	}

	cmd, handled := bot.handleColorQuiz(
		context.Background(),
		guildMessage(quiz.Hex()),
	)
	require.True(t, handled)
	assert.Equal(t, CommandReply, cmd.Kind)
	assert.Contains(t, cmd.Text, "rgb(10, 20, 30)")
	assert.NotContains(t, bot.pendingColor, testChannelID)
}

func TestHandleColorQuizTimeout(t *testing.T) {
	t.Parallel()

	bot, session, _ := newTestTrickster(1)
	quiz := ColorQuiz{R: 1, G: 2, B: 3}
	bot.pendingColor[testChannelID] = &PendingColorTest{
		UserID:    "asker",
		ChannelID: testChannelID,
		Quiz:      quiz,
		StartedAt: time.Now().Add(-2 * time.Minute),
	}

	cmd, handled := bot.handleColorQuiz(
		context.Background(),
		guildMessage("#010203"),
	)
	require.True(t, handled)
	assert.Contains(t, cmd.Text, "Time's up!")
	assert.Contains(t, cmd.Text, quiz.Hex())

	// color quizzes never punish with a member timeout
	session.mu.Lock()
	defer session.mu.Unlock()
	assert.Empty(t, session.timeouts)
}

func TestChannelHasPendingQuizMutualExclusion(t *testing.T) {
	t.Parallel()

	bot, _, _ := newTestTrickster(1)
	assert.False(t, bot.channelHasPendingQuiz(testChannelID))

	bot.pendingMath[testChannelID] = &PendingMathTest{}
	assert.True(t, bot.channelHasPendingQuiz(testChannelID))

	// a color quiz cannot start while a math test is outstanding
	_, triggered := bot.triggerColorQuiz(
		context.Background(),
		guildMessage("hello"),
	)
	assert.False(t, triggered)
	assert.NotContains(t, bot.pendingColor, testChannelID)
}

func TestTriggerColorQuiz(t *testing.T) {
	t.Parallel()

	bot, _, _ := newTestTrickster(1)

	// find a seed state that wins the roll by driving the rng forward
	var cmd Command
	var triggered bool
	for i := 0; i < 5000 && !triggered; i++ {
		cmd, triggered = bot.triggerColorQuiz(
			context.Background(),
			guildMessage(fmt.Sprintf("msg %d", i)),
		)
	}
	require.True(t, triggered, "quiz never triggered across 5000 rolls")
	assert.Equal(t, CommandFile, cmd.Kind)
	assert.Equal(t, "color.png", cmd.FileName)
	assert.Contains(t, cmd.Text, "COLOR QUIZ TIME!")
	assert.Contains(t, bot.pendingColor, testChannelID)
}

func TestTriggerMathQuizRequiresLLM(t *testing.T) {
	t.Parallel()

	bot, _, _ := newTestTrickster(1)
	require.Nil(t, bot.llm)

	for i := 0; i < 5000; i++ {
		_, triggered := bot.triggerMathQuiz(
			context.Background(),
			guildMessage("hello"),
		)
		assert.False(t, triggered)
	}
}

func TestAwardQuizXPRange(t *testing.T) {
	t.Parallel()

	bot, _, _ := newTestTrickster(1)
	for i := 0; i < 100; i++ {
		bonus, _, _ := bot.awardQuizXP(
			context.Background(),
			fmt.Sprintf("user-%d", i),
			"name",
		)
		assert.GreaterOrEqual(t, bonus, 250)
		assert.LessOrEqual(t, bonus, 999)
	}
}
