// Package servicenow implements the ticket.Writer boundary against the
// ServiceNow incident table API.
package servicenow

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

// Client talks to one ServiceNow instance with basic auth.
type Client struct {
	instanceURL string
	username    string
	password    string
	logger      log.Logger
	client      *http.Client
}

// New creates a ServiceNow client. Empty instanceURL or password leaves it
// unconfigured.
func New(instanceURL, username, password string, logger log.Logger) *Client {
	if logger == nil {
		logger = log.Nop()
	}
	return &Client{
		instanceURL: instanceURL,
		username:    username,
		password:    password,
		logger:      logger,
		client:      &http.Client{Timeout: httpTimeout},
	}
}

// System implements ticket.Writer.
func (c *Client) System() string { return "servicenow" }

// IsConfigured implements ticket.Writer.
func (c *Client) IsConfigured() bool {
	return c.instanceURL != "" && c.password != ""
}

// Create opens an incident record; the sys_id is the ticket id and the
// INC number the human-facing ticket number.
func (c *Client) Create(ctx context.Context, req ticket.Request) (*ticket.Created, error) {
	body := map[string]string{
		"short_description": req.Summary,
		"description":       req.Description,
	}
	if req.Urgency != "" {
		body["urgency"] = req.Urgency
	}
	if req.Impact != "" {
		body["impact"] = req.Impact
	}
	if req.Priority != "" {
		body["priority"] = req.Priority
	}
	if req.Category != "" {
		body["category"] = req.Category
	}
	if req.AssignmentGroup != "" {
		body["assignment_group"] = req.AssignmentGroup
	}

	var out struct {
		Result struct {
			SysID  string `json:"sys_id"`
			Number string `json:"number"`
		} `json:"result"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/now/table/incident", body, &out); err != nil {
		return nil, fmt.Errorf("servicenow: create incident: %w", err)
	}
	return &ticket.Created{
		TicketID:     out.Result.SysID,
		TicketNumber: out.Result.Number,
		System:       c.System(),
	}, nil
}

// AddComment appends a work note.
func (c *Client) AddComment(ctx context.Context, ticketID, text string) error {
	body := map[string]string{"work_notes": text}
	if err := c.do(ctx, http.MethodPatch, "/api/now/table/incident/"+ticketID, body, nil); err != nil {
		return fmt.Errorf("servicenow: work notes: %w", err)
	}
	return nil
}

// Close resolves and closes the incident record.
func (c *Client) Close(ctx context.Context, ticketID string) (bool, string) {
	body := map[string]string{
		"state":       "7", // closed
		"close_code":  "Solved (Permanently)",
		"close_notes": "Closed by orchestrator",
	}
	if err := c.do(ctx, http.MethodPatch, "/api/now/table/incident/"+ticketID, body, nil); err != nil {
		return false, err.Error()
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
	req, err := http.NewRequestWithContext(ctx, method, c.instanceURL+path, rd)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.SetBasicAuth(c.username, c.password)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req) //nolint:gosec // G704: instanceURL is from trusted config, not user input
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("servicenow returned %d: %s", resp.StatusCode, string(respBody))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
