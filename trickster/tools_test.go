package trickster

import (
	"context"
	"net/http"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func toolCall(name string, args string) openai.ToolCall {
	return openai.ToolCall{
		ID:   "call-1",
		Type: openai.ToolTypeFunction,
		Function: openai.FunctionCall{
			Name:      name,
			Arguments: args,
		},
	}
}

func TestToolDefinitionsWebSearchGating(t *testing.T) {
	t.Parallel()

	bot, _, _ := newTestTrickster(1)
	names := func() map[string]bool {
		out := map[string]bool{}
		for _, tool := range bot.toolDefinitions() {
			out[tool.Function.Name] = true
		}
		return out
	}

	assert.False(t, names()[toolWebSearch])
	assert.True(t, names()[toolMemory])
	assert.True(t, names()[toolMemoryRemove])
	assert.True(t, names()[toolSocialCredit])
	assert.True(t, names()[toolMemoryOtherUser])

	bot.brave = NewBraveAPI(http.DefaultClient, "key")
	assert.True(t, names()[toolWebSearch])
}

func TestDispatchToolMemory(t *testing.T) {
	t.Parallel()

	bot, _, db := newTestTrickster(1)
	req := AIRequest{UserID: testUserID, UserName: testUserName}

	result, audit := bot.dispatchTool(
		context.Background(),
		req,
		toolCall(
			toolMemory,
			`{"memory_name":"hobbies","memory_content":"paints"}`,
		),
	)
	assert.Equal(t, "memory saved", result)
	assert.Equal(t, "-# saved memory `hobbies`", audit)

	memories, err := db.UserMemories(testUserID, 0)
	require.NoError(t, err)
	require.Len(t, memories, 1)
	assert.Equal(t, "paints", memories[0].Content)
}

func TestDispatchToolMemoryRemove(t *testing.T) {
	t.Parallel()

	bot, _, db := newTestTrickster(1)
	ctx := context.Background()
	req := AIRequest{UserID: testUserID, UserName: testUserName}

	require.NoError(t, db.UpsertMemory(ctx, testUserID, "hobbies", "paints"))

	result, audit := bot.dispatchTool(
		ctx,
		req,
		toolCall(toolMemoryRemove, `{"memory_name":"hobbies"}`),
	)
	assert.Equal(t, "memory removed", result)
	assert.Equal(t, "-# removed memory `hobbies`", audit)

	// removing again reports the miss without an audit line
	result, audit = bot.dispatchTool(
		ctx,
		req,
		toolCall(toolMemoryRemove, `{"memory_name":"hobbies"}`),
	)
	assert.Equal(t, "no such memory", result)
	assert.Empty(t, audit)
}

func TestDispatchToolSocialCredit(t *testing.T) {
	t.Parallel()

	bot, _, db := newTestTrickster(1)
	ctx := context.Background()
	req := AIRequest{UserID: testUserID, UserName: testUserName}

	_, audit := bot.dispatchTool(
		ctx,
		req,
		toolCall(toolSocialCredit, `{"social_credit":50}`),
	)
	assert.Contains(t, audit, "+50")

	u, _, err := db.GetOrCreateUser(ctx, testUserID, "")
	require.NoError(t, err)
	assert.Equal(t, int64(1050), u.SocialCredit)

	// remove flag negates a positive amount
	_, audit = bot.dispatchTool(
		ctx,
		req,
		toolCall(toolSocialCredit, `{"social_credit":30,"remove":true}`),
	)
	assert.Contains(t, audit, "-30")

	u, _, err = db.GetOrCreateUser(ctx, testUserID, "")
	require.NoError(t, err)
	assert.Equal(t, int64(1020), u.SocialCredit)
}

func TestDispatchToolMemoryOtherUser(t *testing.T) {
	t.Parallel()

	bot, _, db := newTestTrickster(1)
	ctx := context.Background()
	req := AIRequest{UserID: testUserID, UserName: testUserName}

	_, _, err := db.GetOrCreateUser(ctx, "u-alice", "Alice")
	require.NoError(t, err)

	result, audit := bot.dispatchTool(
		ctx,
		req,
		toolCall(
			toolMemoryOtherUser,
			`{"username":"alice","memory_name":"work","memory_content":"plumber"}`,
		),
	)
	assert.Equal(t, "memory saved", result)
	assert.Contains(t, audit, "about Alice")

	memories, err := db.UserMemories("u-alice", 0)
	require.NoError(t, err)
	require.Len(t, memories, 1)

	// unknown names are reported back, never stored under a made-up ID
	result, audit = bot.dispatchTool(
		ctx,
		req,
		toolCall(
			toolMemoryOtherUser,
			`{"username":"ghost","memory_name":"x","memory_content":"y"}`,
		),
	)
	assert.Equal(t, "unknown user: ghost", result)
	assert.Empty(t, audit)
}

func TestDispatchToolBadArguments(t *testing.T) {
	t.Parallel()

	bot, _, _ := newTestTrickster(1)
	req := AIRequest{UserID: testUserID, UserName: testUserName}

	result, audit := bot.dispatchTool(
		context.Background(),
		req,
		toolCall(toolMemory, `{invalid`),
	)
	assert.Equal(t, "invalid arguments", result)
	assert.Empty(t, audit)
}

func TestDispatchToolUnknownName(t *testing.T) {
	t.Parallel()

	bot, _, _ := newTestTrickster(1)
	req := AIRequest{UserID: testUserID, UserName: testUserName}

	result, audit := bot.dispatchTool(
		context.Background(),
		req,
		toolCall("launch_missiles", `{}`),
	)
	assert.Contains(t, result, "unknown tool")
	assert.Empty(t, audit)
}

func TestDispatchToolWebSearchUnconfigured(t *testing.T) {
	t.Parallel()

	bot, _, _ := newTestTrickster(1)
	req := AIRequest{UserID: testUserID, UserName: testUserName}

	result, audit := bot.dispatchTool(
		context.Background(),
		req,
		toolCall(toolWebSearch, `{"query":"anything"}`),
	)
	assert.Equal(t, "web search is not configured", result)
	assert.Empty(t, audit)
}
