package trickster

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lmittmann/tint"
	openai "github.com/sashabaranov/go-openai"
)

// messages accumulated per channel (or DM) before the summarizer fires
const summarizerMessageThreshold = 15

const summarizerMaxTokens = 2048

const memoryPromptTemplate = `You are a memory creation system for a Discord bot. Your job is to extract important facts, preferences, and information about users from conversations.

Analyze the following conversation and create memories for each participant. Focus on:
- Personal preferences and interests
- Facts about their life, work, or hobbies
- Relationships with other users
- Behaviors and patterns
- Important events or milestones

Participants in this conversation: %s

Conversation:
%s

Respond ONLY with valid JSON in this exact format:
{
  "memories": [
    {
      "username": "exact_username_from_conversation",
      "key": "category_or_topic",
      "content": "the actual memory content"
    }
  ]
}

IMPORTANT GUIDELINES:
- Only create memories if there's meaningful information from THIS conversation
- Each user should have AT MOST ONE memory entry per unique "key" category
- The "key" should be a broad category like "preferences", "hobbies", "work", "personality", "relationships", "recent_activity"
- The "content" should combine ALL related facts for that category into ONE comprehensive entry
- Use exact usernames as they appear in the conversation
- If there's nothing meaningful to remember, return an empty memories array

EXAMPLE - CORRECT (combining multiple facts under one key):
{
  "memories": [
    {
      "username": "tricked.",
      "key": "preferences",
      "content": "Likes cats, dislikes insects"
    }
  ]
}

EXAMPLE - WRONG (duplicate keys for same user):
{
  "memories": [
    {"username": "tricked.", "key": "preferences", "content": "Likes cats"},
    {"username": "tricked.", "key": "preferences", "content": "Dislikes insects"}
  ]
}

Remember: Output ONLY valid JSON, nothing else. Combine related information under the same key.`

type memoryCreationResponse struct {
	Memories []memoryEntry `json:"memories"`
}

type memoryEntry struct {
	Username string `json:"username"`
	Key      string `json:"key"`
	Content  string `json:"content"`
}

// extractMemoryJSON locates the outermost {...} span in the model
// output, tolerating prose before and after it.
func extractMemoryJSON(response string) (memoryCreationResponse, error) {
	var parsed memoryCreationResponse
	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start < 0 || end < start {
		return parsed, fmt.Errorf("no JSON object in response: %q", response)
	}
	if err := json.Unmarshal([]byte(response[start:end+1]), &parsed); err != nil {
		return parsed, fmt.Errorf("error parsing memory JSON: %w", err)
	}
	return parsed, nil
}

// storeExtractedMemories resolves each entry's display name and writes
// the memory. Unresolved names are dropped with a warning; a synthetic
// ID is never minted for them.
func (t *Trickster) storeExtractedMemories(
	ctx context.Context,
	parsed memoryCreationResponse,
) int {
	created := 0
	for _, entry := range parsed.Memories {
		user, ok := t.db.UserByName(entry.Username)
		if !ok {
			t.logger.WarnContext(
				ctx,
				"could not resolve username, skipping memory",
				"username", entry.Username,
			)
			continue
		}
		err := t.db.UpsertMemory(ctx, user.ID, entry.Key, entry.Content)
		if err != nil {
			t.logger.ErrorContext(
				ctx,
				"error inserting extracted memory",
				"username", entry.Username,
				tint.Err(err),
			)
			continue
		}
		t.logger.InfoContext(
			ctx,
			"created memory",
			"username", entry.Username,
			"user_id", user.ID,
			"key", entry.Key,
		)
		created++
	}
	return created
}

// createMemories asks the model to distill the recent conversation
// into keyed memories and stores the result. Runs in the background;
// all failures are logged and dropped.
func (t *Trickster) createMemories(
	ctx context.Context,
	conversation string,
	participants []string,
) {
	if t.llm == nil {
		t.logger.WarnContext(
			ctx,
			"no LLM configured, skipping memory creation",
		)
		return
	}

	prompt := fmt.Sprintf(
		memoryPromptTemplate,
		strings.Join(participants, ", "),
		conversation,
	)

	resp, err := t.llm.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{
			Model: t.llm.config.Model,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleUser, Content: prompt},
			},
			MaxTokens: summarizerMaxTokens,
		},
	)
	if err != nil {
		t.logger.ErrorContext(
			ctx,
			"memory creation request failed",
			tint.Err(err),
		)
		return
	}
	if len(resp.Choices) == 0 {
		t.logger.ErrorContext(ctx, "no choices in memory creation response")
		return
	}

	parsed, err := extractMemoryJSON(resp.Choices[0].Message.Content)
	if err != nil {
		t.logger.ErrorContext(
			ctx,
			"error parsing memory creation response",
			tint.Err(err),
		)
		return
	}
	created := t.storeExtractedMemories(ctx, parsed)
	t.logger.InfoContext(ctx, "memory creation finished", "created", created)
}
