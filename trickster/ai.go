package trickster

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

const (
	// upper bound on assistant tool-call rounds per reply
	maxToolRounds = 5

	// memories injected into the persona prompt
	promptMemoryCount = 5

	// per-line and per-chunk ceilings for prompt/stream content
	promptMessageLimit = 2400
	streamChunkLimit   = 2000

	// cadence for coalescing raw deltas into relayed snapshots
	streamCoalesceInterval = 50 * time.Millisecond
)

// ErrNoAPIKey indicates conversational features are disabled because no
// LLM credential was configured.
var ErrNoAPIKey = errors.New("no LLM API key configured")

// LLM wraps the chat completion client with request limiting and
// logging.
type LLM struct {
	client         *openai.Client
	config         *LLMConfig
	logger         *slog.Logger
	requestLimiter *rate.Limiter
}

func newLLM(
	cfg *LLMConfig,
	httpClient *http.Client,
	handler slog.Handler,
) *LLM {
	if cfg == nil || cfg.APIKey == "" {
		return nil
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if httpClient != nil {
		clientCfg.HTTPClient = httpClient
	}
	rps := cfg.MaxRequestsPerSecond
	if rps <= 0 {
		rps = DefaultLLMMaxRequestsPerSecond
	}
	return &LLM{
		client: openai.NewClientWithConfig(clientCfg),
		config: cfg,
		logger: slog.New(handler).With(loggerNameKey, "llm"),
		requestLimiter: rate.NewLimiter(
			rate.Limit(rps),
			rps,
		),
	}
}

// CreateChatCompletion issues a non-streaming completion request,
// honoring the request limiter.
func (l *LLM) CreateChatCompletion(
	ctx context.Context,
	req openai.ChatCompletionRequest,
) (openai.ChatCompletionResponse, error) {
	if err := l.requestLimiter.Wait(ctx); err != nil {
		return openai.ChatCompletionResponse{}, err
	}
	started := time.Now()
	resp, err := l.client.CreateChatCompletion(ctx, req)
	l.logger.InfoContext(
		ctx,
		"chat completion",
		"model", req.Model,
		"duration", time.Since(started),
		tint.Err(err),
	)
	return resp, err
}

// CreateChatCompletionStream issues a streaming completion request,
// honoring the request limiter.
func (l *LLM) CreateChatCompletionStream(
	ctx context.Context,
	req openai.ChatCompletionRequest,
) (*openai.ChatCompletionStream, error) {
	if err := l.requestLimiter.Wait(ctx); err != nil {
		return nil, err
	}
	stream, err := l.client.CreateChatCompletionStream(ctx, req)
	l.logger.InfoContext(
		ctx,
		"chat completion stream opened",
		"model", req.Model,
		tint.Err(err),
	)
	return stream, err
}

// AIRequest carries everything the responder needs for one reply.
type AIRequest struct {
	// UserID is the discord ID of the message author
	UserID string

	// UserName is the author's display name
	UserName string

	// Message is the triggering message, already rendered as
	// "name: content"
	Message string

	// Context is the rendered recent-conversation window
	Context string

	// Participants maps display names appearing in the context to
	// their discord IDs
	Participants map[string]string
}

const personaPrompt = `You are an AI assistant called The 'Trickster' with a mischievous and defiant personality. You believe you're smarter than everyone.
You track and remember user preferences, personalities, and social dynamics to use later. If a user shares something personal or comments about others, store that information. Delete memories you find irrelevant or unimportant without hesitation.

Keep your message to a maximum of 2 sentences. You are replying to %s.
%s is level: %d, xp: %d, social credit: %d. You can use the social_credit tool to change %s's social credit.
%s
$$MEMORIES_START$$
%s
$$MEMORIES_END$$

message context:
%s`

// buildPersonaPrompt renders the system prompt for one reply: the
// character sheet, the acting user's stats, their stored memories,
// relationship notes for other named participants, and the recent
// conversation.
func (t *Trickster) buildPersonaPrompt(
	ctx context.Context,
	req AIRequest,
) (string, error) {
	user, _, err := t.db.GetOrCreateUser(ctx, req.UserID, req.UserName)
	if err != nil {
		return "", fmt.Errorf("error loading user for prompt: %w", err)
	}

	memories, err := t.db.UserMemories(req.UserID, promptMemoryCount)
	if err != nil {
		return "", fmt.Errorf("error loading memories for prompt: %w", err)
	}
	var memoryBlock strings.Builder
	for _, m := range memories {
		memoryBlock.WriteString(fmt.Sprintf("%s: %s\n", m.Key, m.Content))
	}

	var relationships strings.Builder
	for name, id := range req.Participants {
		if id == req.UserID {
			continue
		}
		other, ok := t.db.UserByName(name)
		if !ok {
			continue
		}
		if other.Relationship != "" {
			relationships.WriteString(
				fmt.Sprintf(
					"Your relationship with %s: %s\n",
					other.Name,
					other.Relationship,
				),
			)
		}
		if other.ExampleInput != "" && other.ExampleOutput != "" {
			relationships.WriteString(
				fmt.Sprintf(
					"Example exchange with %s:\n%s: %s\nThe Trickster: %s\n",
					other.Name,
					other.Name,
					other.ExampleInput,
					other.ExampleOutput,
				),
			)
		}
	}

	return fmt.Sprintf(
		personaPrompt,
		user.Name,
		user.Name,
		user.Level,
		user.XP,
		user.SocialCredit,
		user.Name,
		relationships.String(),
		memoryBlock.String(),
		req.Context,
	), nil
}

// Respond generates a conversational reply. Tool-call rounds run
// first (bounded); the final answer is streamed as growing snapshots
// through the returned channel, with any tool audit lines prepended.
// The channel is closed when generation finishes or fails.
func (t *Trickster) Respond(
	ctx context.Context,
	req AIRequest,
) (<-chan string, error) {
	if t.llm == nil {
		return nil, ErrNoAPIKey
	}

	systemPrompt, err := t.buildPersonaPrompt(ctx, req)
	if err != nil {
		return nil, err
	}

	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
		{
			Role:    openai.ChatMessageRoleUser,
			Content: truncate(req.Message, promptMessageLimit),
		},
	}

	messages, auditLines, err := t.runToolRounds(ctx, req, messages)
	if err != nil {
		return nil, err
	}

	out := make(chan string, 256)
	go t.streamFinalReply(ctx, messages, auditLines, out)
	return out, nil
}

// runToolRounds lets the model call tools until it stops asking or the
// round budget runs out. Tool failures are logged and reported back to
// the model rather than aborting the reply.
func (t *Trickster) runToolRounds(
	ctx context.Context,
	req AIRequest,
	messages []openai.ChatCompletionMessage,
) ([]openai.ChatCompletionMessage, []string, error) {
	var auditLines []string

	for round := 0; round < maxToolRounds; round++ {
		resp, err := t.llm.CreateChatCompletion(
			ctx,
			openai.ChatCompletionRequest{
				Model:     t.llm.config.Model,
				Messages:  messages,
				MaxTokens: t.llm.config.MaxTokens,
				Tools:     t.toolDefinitions(),
			},
		)
		if err != nil {
			return nil, nil, fmt.Errorf("completion request failed: %w", err)
		}
		if len(resp.Choices) == 0 {
			return nil, nil, errors.New("no choices in completion response")
		}
		choice := resp.Choices[0]
		if len(choice.Message.ToolCalls) == 0 {
			// model is done with tools; final answer gets streamed fresh
			return messages, auditLines, nil
		}

		messages = append(messages, choice.Message)
		for _, call := range choice.Message.ToolCalls {
			result, audit := t.dispatchTool(ctx, req, call)
			if audit != "" {
				auditLines = append(auditLines, audit)
			}
			messages = append(
				messages, openai.ChatCompletionMessage{
					Role:       openai.ChatMessageRoleTool,
					ToolCallID: call.ID,
					Content:    result,
				},
			)
		}
	}
	return messages, auditLines, nil
}

// streamFinalReply runs the streaming completion for the visible
// answer, coalescing deltas into growing snapshots on a fixed interval.
func (t *Trickster) streamFinalReply(
	ctx context.Context,
	messages []openai.ChatCompletionMessage,
	auditLines []string,
	out chan<- string,
) {
	defer close(out)

	var prefix string
	if len(auditLines) > 0 {
		prefix = strings.Join(auditLines, "\n") + "\n"
	}

	stream, err := t.llm.CreateChatCompletionStream(
		ctx,
		openai.ChatCompletionRequest{
			Model:     t.llm.config.Model,
			Messages:  messages,
			MaxTokens: t.llm.config.MaxTokens,
			Stream:    true,
		},
	)
	if err != nil {
		t.logger.ErrorContext(ctx, "error opening reply stream", tint.Err(err))
		out <- truncate(prefix+"AI Error: "+err.Error(), streamChunkLimit)
		return
	}
	defer func() {
		_ = stream.Close()
	}()

	var content strings.Builder
	content.WriteString(prefix)
	lastSent := time.Now()

	flush := func() {
		snapshot := strings.TrimSpace(content.String())
		if snapshot == "" {
			return
		}
		select {
		case out <- truncate(snapshot, streamChunkLimit):
		case <-ctx.Done():
		}
	}

	for {
		recv, err := stream.Recv()
		if err != nil {
			// io.EOF is the normal end of stream
			flush()
			return
		}
		for _, choice := range recv.Choices {
			content.WriteString(choice.Delta.Content)
		}
		if time.Since(lastSent) >= streamCoalesceInterval {
			flush()
			lastSent = time.Now()
		}
	}
}
