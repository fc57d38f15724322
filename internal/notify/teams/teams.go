// Package teams sends orchestrator notifications to Microsoft Teams via
// incoming webhooks.
package teams

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	maxTextLen  = 3000
	httpTimeout = 10 * time.Second
)

// Card is one notification. Facts render as a name/value table under the
// title; order is preserved.
type Card struct {
	Title    string
	Text     string
	Severity string
	Facts    [][2]string
}

// Notifier sends cards to a Teams webhook.
type Notifier struct {
	webhookURL string
	client     *http.Client
}

// New creates a new Teams notifier. If webhookURL is empty, Send is a no-op.
func New(webhookURL string) *Notifier {
	return &Notifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: httpTimeout},
	}
}

// IsConfigured reports whether a webhook URL is set.
func (n *Notifier) IsConfigured() bool { return n.webhookURL != "" }

// Send posts a card to the configured Teams webhook.
// If no webhook URL is configured, it returns nil immediately.
func (n *Notifier) Send(ctx context.Context, card Card) error {
	if n.webhookURL == "" {
		return nil
	}

	body, err := json.Marshal(buildMessage(card))
	if err != nil {
		return fmt.Errorf("teams: marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("teams: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req) //nolint:gosec // G704: webhookURL is from trusted config, not user input
	if err != nil {
		return fmt.Errorf("teams: post webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("teams: webhook returned %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// Announce posts a bare text message with a generic title.
func (n *Notifier) Announce(ctx context.Context, text string) error {
	return n.Send(ctx, Card{Title: "Orchestrator update", Text: text})
}

func buildMessage(card Card) map[string]any {
	msg := map[string]any{
		"@type":      "MessageCard",
		"@context":   "https://schema.org/extensions",
		"themeColor": severityColor(card.Severity),
		"summary":    card.Title,
		"title":      card.Title,
		"text":       truncate(card.Text, maxTextLen),
	}
	if len(card.Facts) > 0 {
		facts := make([]map[string]string, 0, len(card.Facts))
		for _, f := range card.Facts {
			facts = append(facts, map[string]string{"name": f[0], "value": f[1]})
		}
		msg["sections"] = []map[string]any{{"facts": facts}}
	}
	return msg
}

func severityColor(severity string) string {
	switch severity {
	case "critical":
		return "d93025" // red
	case "high":
		return "f29900" // orange
	case "medium":
		return "fbbc04" // yellow
	default:
		return "1a73e8" // blue
	}
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit-3] + "..."
}
