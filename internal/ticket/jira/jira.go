// Package jira implements the ticket.Writer boundary against Jira Cloud.
package jira

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/argus/internal/ticket"
)

const httpTimeout = 10 * time.Second

// Client talks to one Jira Cloud instance with basic auth (email + API token).
type Client struct {
	baseURL    string
	projectKey string
	username   string
	apiToken   string
	logger     log.Logger
	client     *http.Client
}

// New creates a Jira client. Empty baseURL or apiToken leaves the client
// unconfigured; every call then reports so instead of dialing out.
func New(baseURL, projectKey, username, apiToken string, logger log.Logger) *Client {
	if logger == nil {
		logger = log.Nop()
	}
	return &Client{
		baseURL:    baseURL,
		projectKey: projectKey,
		username:   username,
		apiToken:   apiToken,
		logger:     logger,
		client:     &http.Client{Timeout: httpTimeout},
	}
}

// System implements ticket.Writer.
func (c *Client) System() string { return "jira" }

// IsConfigured implements ticket.Writer.
func (c *Client) IsConfigured() bool {
	return c.baseURL != "" && c.apiToken != ""
}

// Create opens an issue and returns its key as both id and number.
func (c *Client) Create(ctx context.Context, req ticket.Request) (*ticket.Created, error) {
	fields := map[string]any{
		"project":   map[string]string{"key": c.projectKey},
		"summary":   req.Summary,
		"issuetype": map[string]string{"name": "Incident"},
		"description": map[string]any{
			"type":    "doc",
			"version": 1,
			"content": []map[string]any{{
				"type":    "paragraph",
				"content": []map[string]any{{"type": "text", "text": orDash(req.Description)}},
			}},
		},
	}
	if req.Priority != "" {
		fields["priority"] = map[string]string{"name": req.Priority}
	}

	var out struct {
		ID  string `json:"id"`
		Key string `json:"key"`
	}
	if err := c.do(ctx, http.MethodPost, "/rest/api/3/issue", map[string]any{"fields": fields}, &out); err != nil {
		return nil, fmt.Errorf("jira: create issue: %w", err)
	}
	return &ticket.Created{TicketID: out.Key, TicketNumber: out.Key, System: c.System()}, nil
}

// AddComment appends a plain-text comment to an issue.
func (c *Client) AddComment(ctx context.Context, ticketID, text string) error {
	body := map[string]any{
		"body": map[string]any{
			"type":    "doc",
			"version": 1,
			"content": []map[string]any{{
				"type":    "paragraph",
				"content": []map[string]any{{"type": "text", "text": text}},
			}},
		},
	}
	if err := c.do(ctx, http.MethodPost, "/rest/api/3/issue/"+ticketID+"/comment", body, nil); err != nil {
		return fmt.Errorf("jira: add comment: %w", err)
	}
	return nil
}

// Close transitions the issue to Done. It looks up the available
// transitions first because transition ids differ per workflow.
func (c *Client) Close(ctx context.Context, ticketID string) (bool, string) {
	var transitions struct {
		Transitions []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"transitions"`
	}
	if err := c.do(ctx, http.MethodGet, "/rest/api/3/issue/"+ticketID+"/transitions", nil, &transitions); err != nil {
		return false, fmt.Sprintf("list transitions: %v", err)
	}
	var doneID string
	for _, t := range transitions.Transitions {
		if t.Name == "Done" || t.Name == "Closed" || t.Name == "Resolve" {
			doneID = t.ID
			break
		}
	}
	if doneID == "" {
		return false, "no close transition available"
	}
	body := map[string]any{"transition": map[string]string{"id": doneID}}
	if err := c.do(ctx, http.MethodPost, "/rest/api/3/issue/"+ticketID+"/transitions", body, nil); err != nil {
		return false, fmt.Sprintf("transition: %v", err)
	}
	return true, ""
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	if !c.IsConfigured() {
		return fmt.Errorf("not configured")
	}
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.SetBasicAuth(c.username, c.apiToken)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req) //nolint:gosec // G704: baseURL is from trusted config, not user input
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("jira returned %d: %s", resp.StatusCode, string(respBody))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
