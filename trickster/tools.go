package trickster

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lmittmann/tint"
	openai "github.com/sashabaranov/go-openai"
)

// Tool names form a closed set; dispatch is by exact name, never by
// reflection over handlers.
const (
	toolMemory          = "memory"
	toolMemoryRemove    = "memory_remove"
	toolSocialCredit    = "social_credit"
	toolWebSearch       = "web_search"
	toolMemoryOtherUser = "memory_other_user"
)

func jsonSchema(s string) json.RawMessage {
	return json.RawMessage(s)
}

// toolDefinitions returns the callable tools exposed to the model.
// web_search is only offered when a search credential is configured.
func (t *Trickster) toolDefinitions() []openai.Tool {
	tools := []openai.Tool{
		{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        toolMemory,
				Description: "Save memories about the user you are responding to, if the memory already exists itll be overwritten.",
				Parameters: jsonSchema(`{
					"type": "object",
					"properties": {
						"memory_name": {"type": "string", "description": "The name of the memory"},
						"memory_content": {"type": "string", "description": "The content of the memory"}
					},
					"required": ["memory_name", "memory_content"]
				}`),
			},
		},
		{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        toolMemoryRemove,
				Description: "Remove a memory for the user you are responding to, by name.",
				Parameters: jsonSchema(`{
					"type": "object",
					"properties": {
						"memory_name": {"type": "string", "description": "The name of the memory to remove"}
					},
					"required": ["memory_name"]
				}`),
			},
		},
		{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        toolSocialCredit,
				Description: "Change the social credit of the user you are responding to.",
				Parameters: jsonSchema(`{
					"type": "object",
					"properties": {
						"social_credit": {"type": "number", "description": "The social credit to add or remove, use - to remove"},
						"remove": {"type": "boolean", "description": "Set to true to remove the social credit"}
					},
					"required": ["social_credit"]
				}`),
			},
		},
		{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        toolMemoryOtherUser,
				Description: "Save a memory about a different user named in the conversation. Only works for known users.",
				Parameters: jsonSchema(`{
					"type": "object",
					"properties": {
						"username": {"type": "string", "description": "The display name of the user the memory is about"},
						"memory_name": {"type": "string", "description": "The name of the memory"},
						"memory_content": {"type": "string", "description": "The content of the memory"}
					},
					"required": ["username", "memory_name", "memory_content"]
				}`),
			},
		},
	}
	if t.brave != nil {
		tools = append(
			tools, openai.Tool{
				Type: openai.ToolTypeFunction,
				Function: &openai.FunctionDefinition{
					Name:        toolWebSearch,
					Description: "Search the web for current information.",
					Parameters: jsonSchema(`{
						"type": "object",
						"properties": {
							"query": {"type": "string", "description": "The search query"}
						},
						"required": ["query"]
					}`),
				},
			},
		)
	}
	return tools
}

// dispatchTool executes a single tool call, returning the result text
// fed back to the model and a human-readable audit line for the
// visible reply. Storage errors are swallowed and logged so a failed
// side effect never aborts generation.
func (t *Trickster) dispatchTool(
	ctx context.Context,
	req AIRequest,
	call openai.ToolCall,
) (result string, audit string) {
	logger := t.logger.With(
		"tool", call.Function.Name,
		"user_id", req.UserID,
	)
	switch call.Function.Name {
	case toolMemory:
		var args struct {
			MemoryName    string `json:"memory_name"`
			MemoryContent string `json:"memory_content"`
		}
		if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
			logger.WarnContext(ctx, "bad tool arguments", tint.Err(err))
			return "invalid arguments", ""
		}
		err := t.db.UpsertMemory(ctx, req.UserID, args.MemoryName, args.MemoryContent)
		if err != nil {
			logger.ErrorContext(ctx, "memory write failed", tint.Err(err))
			return "memory save failed", ""
		}
		return "memory saved", fmt.Sprintf(
			"-# saved memory `%s`",
			args.MemoryName,
		)

	case toolMemoryRemove:
		var args struct {
			MemoryName string `json:"memory_name"`
		}
		if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
			logger.WarnContext(ctx, "bad tool arguments", tint.Err(err))
			return "invalid arguments", ""
		}
		existed, err := t.db.RemoveMemory(ctx, req.UserID, args.MemoryName)
		if err != nil {
			logger.ErrorContext(ctx, "memory delete failed", tint.Err(err))
			return "memory remove failed", ""
		}
		if !existed {
			return "no such memory", ""
		}
		return "memory removed", fmt.Sprintf(
			"-# removed memory `%s`",
			args.MemoryName,
		)

	case toolSocialCredit:
		var args struct {
			SocialCredit int64 `json:"social_credit"`
			Remove       bool  `json:"remove"`
		}
		if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
			logger.WarnContext(ctx, "bad tool arguments", tint.Err(err))
			return "invalid arguments", ""
		}
		if args.Remove && args.SocialCredit > 0 {
			args.SocialCredit = -args.SocialCredit
		}
		user, _, err := t.db.GetOrCreateUser(ctx, req.UserID, req.UserName)
		if err != nil {
			logger.ErrorContext(ctx, "social credit load failed", tint.Err(err))
			return "social credit update failed", ""
		}
		user.SocialCredit += args.SocialCredit
		if err = t.db.Save(user); err != nil {
			logger.ErrorContext(ctx, "social credit save failed", tint.Err(err))
			return "social credit update failed", ""
		}
		return fmt.Sprintf("new social credit total: %d", user.SocialCredit),
			fmt.Sprintf(
				"-# social credit %+d (now %d)",
				args.SocialCredit,
				user.SocialCredit,
			)

	case toolWebSearch:
		var args struct {
			Query string `json:"query"`
		}
		if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
			logger.WarnContext(ctx, "bad tool arguments", tint.Err(err))
			return "invalid arguments", ""
		}
		if t.brave == nil {
			return "web search is not configured", ""
		}
		results, err := t.brave.Search(ctx, args.Query)
		if err != nil {
			logger.ErrorContext(ctx, "web search failed", tint.Err(err))
			return "web search failed", ""
		}
		var b strings.Builder
		for i, r := range results {
			if i >= 5 {
				break
			}
			b.WriteString(
				fmt.Sprintf("%s\n%s\n%s\n\n", r.Title, r.URL, r.Description),
			)
		}
		if b.Len() == 0 {
			return "no results", fmt.Sprintf(
				"-# searched `%s` (no results)",
				args.Query,
			)
		}
		return b.String(), fmt.Sprintf("-# searched `%s`", args.Query)

	case toolMemoryOtherUser:
		var args struct {
			Username      string `json:"username"`
			MemoryName    string `json:"memory_name"`
			MemoryContent string `json:"memory_content"`
		}
		if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
			logger.WarnContext(ctx, "bad tool arguments", tint.Err(err))
			return "invalid arguments", ""
		}
		// Unknown names are skipped rather than minted a synthetic ID;
		// a fabricated ID could never be reconciled with a real
		// account later.
		target, ok := t.db.UserByName(args.Username)
		if !ok {
			logger.WarnContext(
				ctx,
				"cannot resolve username for cross-user memory",
				"username", args.Username,
			)
			return fmt.Sprintf("unknown user: %s", args.Username), ""
		}
		err := t.db.UpsertMemory(ctx, target.ID, args.MemoryName, args.MemoryContent)
		if err != nil {
			logger.ErrorContext(ctx, "cross-user memory write failed", tint.Err(err))
			return "memory save failed", ""
		}
		return "memory saved", fmt.Sprintf(
			"-# saved memory `%s` about %s",
			args.MemoryName,
			target.Name,
		)

	default:
		logger.WarnContext(ctx, "model requested unknown tool")
		return fmt.Sprintf("unknown tool: %s", call.Function.Name), ""
	}
}
