package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"time"
)

const (
	defaultLogLimit = 100
	maxLogLimit     = 500
	maxLogRange     = 6 * time.Hour
)

// Loki fetches recent log lines matching a LogQL selector.
type Loki struct {
	endpoint   string
	tenantID   string
	httpClient *http.Client
}

// NewLoki creates a Loki probe. An empty endpoint leaves it unconfigured.
func NewLoki(endpoint, tenantID string) *Loki {
	return &Loki{
		endpoint:   endpoint,
		tenantID:   tenantID,
		httpClient: &http.Client{Timeout: probeTimeout},
	}
}

// IsConfigured reports whether an endpoint is set.
func (l *Loki) IsConfigured() bool { return l.endpoint != "" }

// Line is one log entry with its stream labels attached to the first entry
// of each stream only.
type Line struct {
	Timestamp string            `json:"ts"`
	Line      string            `json:"line"`
	Labels    map[string]string `json:"labels,omitempty"`
}

type lokiStream struct {
	Stream map[string]string `json:"stream"`
	Values [][]string        `json:"values"`
}

// RecentLines queries the last `since` of logs for a LogQL expression,
// newest first. The range is capped at six hours and the limit at 500.
func (l *Loki) RecentLines(ctx context.Context, query string, since time.Duration, limit int) ([]Line, error) {
	if l.endpoint == "" {
		return nil, fmt.Errorf("loki probe not configured")
	}
	switch {
	case limit <= 0:
		limit = defaultLogLimit
	case limit > maxLogLimit:
		limit = maxLogLimit
	}
	if since <= 0 || since > maxLogRange {
		since = time.Hour
	}

	now := time.Now().UTC()
	u, err := url.Parse(l.endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint: %w", err)
	}
	u.Path = path.Join(u.Path, "loki/api/v1/query_range")

	q := u.Query()
	q.Set("query", query)
	q.Set("start", now.Add(-since).Format(time.RFC3339Nano))
	q.Set("end", now.Format(time.RFC3339Nano))
	q.Set("limit", strconv.Itoa(limit))
	q.Set("direction", "backward")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if l.tenantID != "" {
		req.Header.Set("X-Scope-OrgID", l.tenantID)
	}

	resp, err := l.httpClient.Do(req) //nolint:gosec // G704: endpoint is from trusted config, not user input
	if err != nil {
		return nil, fmt.Errorf("loki query failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 5<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("loki returned %d: %s", resp.StatusCode, string(body))
	}

	var lokiResp struct {
		Status string `json:"status"`
		Data   struct {
			Result []lokiStream `json:"result"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &lokiResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if lokiResp.Status != "success" {
		return nil, fmt.Errorf("loki query failed: %s", string(body))
	}

	return flattenStreams(lokiResp.Data.Result, limit), nil
}

// Snippet returns a short newline-joined excerpt of recent error logs for a
// service, suitable for incident context.
func (l *Loki) Snippet(ctx context.Context, service string, max int) (string, error) {
	if max <= 0 {
		max = 5
	}
	lines, err := l.RecentLines(ctx, fmt.Sprintf(`{service_name=%q} |= "error"`, service), time.Hour, max)
	if err != nil {
		return "", err
	}
	if len(lines) == 0 {
		return "no recent error logs", nil
	}
	out := ""
	for i, ln := range lines {
		if i > 0 {
			out += "\n"
		}
		out += ln.Line
	}
	return out, nil
}

func flattenStreams(results []lokiStream, limit int) []Line {
	lines := make([]Line, 0, limit)
	for _, stream := range results {
		includeLabels := true
		for _, entry := range stream.Values {
			if len(entry) < 2 {
				continue
			}
			ln := Line{Timestamp: entry[0], Line: entry[1]}
			if includeLabels {
				ln.Labels = stream.Stream
				includeLabels = false
			}
			lines = append(lines, ln)
			if len(lines) >= limit {
				return lines
			}
		}
	}
	return lines
}
