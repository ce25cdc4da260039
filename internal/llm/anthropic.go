package llm

import (
	"context"
	"fmt"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/efuayankey/aimes-sub001/internal/fallback"
)

const defaultClaudeModel = "claude-3-5-haiku-latest"

// Claude is a fallback.Gateway backed by the Anthropic Messages API.
type Claude struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

func NewClaude(apiKey, model string, maxTokens int) *Claude {
	if model == "" {
		model = defaultClaudeModel
	}
	if maxTokens <= 0 {
		maxTokens = 512
	}
	return &Claude{
		client:    anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:     model,
		maxTokens: int64(maxTokens),
	}
}

func (c *Claude) Complete(ctx context.Context, system string, turns []fallback.Turn) (string, error) {
	msg, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: c.maxTokens,
		System:    []anthropic.TextBlockParam{{Text: system}},
		Messages:  claudeMessages(turns),
	})
	if err != nil {
		return "", fmt.Errorf("claude messages: %w", err)
	}
	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return b.String(), nil
}

// claudeMessages merges consecutive turns of the same role and drops leading
// responder turns: the API expects alternating roles starting with the user.
func claudeMessages(turns []fallback.Turn) []anthropic.MessageParam {
	type group struct {
		role  fallback.Role
		texts []string
	}
	var groups []group
	for _, t := range turns {
		if len(groups) == 0 && t.Role == fallback.RoleResponder {
			continue
		}
		if n := len(groups); n > 0 && groups[n-1].role == t.Role {
			groups[n-1].texts = append(groups[n-1].texts, t.Text)
			continue
		}
		groups = append(groups, group{role: t.Role, texts: []string{t.Text}})
	}

	out := make([]anthropic.MessageParam, 0, len(groups))
	for _, g := range groups {
		block := anthropic.NewTextBlock(strings.Join(g.texts, "\n\n"))
		if g.role == fallback.RoleResponder {
			out = append(out, anthropic.NewAssistantMessage(block))
		} else {
			out = append(out, anthropic.NewUserMessage(block))
		}
	}
	return out
}
