// Package claude generates root-cause narratives via the Anthropic API.
// The engine treats it as strictly optional: an unconfigured client makes
// analysis fall back to the rule-based hypotheses alone.
package claude

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const defaultMaxTokens = 1024

// Client wraps the Anthropic SDK for single-turn narrative generation.
type Client struct {
	client     anthropic.Client
	model      string
	maxTokens  int64
	configured bool
}

// New creates a Claude client with the given API key and model name. An
// empty apiKey leaves the client unconfigured; Narrate then errors without
// dialing out. Extra options are mainly for tests (base URL override).
func New(apiKey, model string, opts ...option.RequestOption) *Client {
	all := append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &Client{
		client:     anthropic.NewClient(all...),
		model:      model,
		maxTokens:  defaultMaxTokens,
		configured: apiKey != "",
	}
}

// IsConfigured reports whether an API key is set.
func (c *Client) IsConfigured() bool { return c.configured }

// Narrate sends a single-turn prompt and returns the concatenated text
// content of the response.
func (c *Client) Narrate(ctx context.Context, system, prompt string) (string, error) {
	if !c.configured {
		return "", fmt.Errorf("claude: not configured")
	}

	msg, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: c.maxTokens,
		System:    []anthropic.TextBlockParam{{Text: system}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("claude: send message: %w", err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return strings.TrimSpace(sb.String()), nil
}
