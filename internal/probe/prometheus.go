// Package probe collects supporting evidence for incidents from the
// observability backends. Probes are best-effort: a failed probe degrades
// the incident context, never the pipeline.
package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const probeTimeout = 30 * time.Second

// Prometheus runs instant PromQL queries against a Prometheus/Mimir
// endpoint.
type Prometheus struct {
	endpoint   string
	httpClient *http.Client
}

// NewPrometheus creates a Prometheus probe. An empty endpoint leaves it
// unconfigured.
func NewPrometheus(endpoint string) *Prometheus {
	return &Prometheus{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: probeTimeout},
	}
}

// IsConfigured reports whether an endpoint is set.
func (p *Prometheus) IsConfigured() bool { return p.endpoint != "" }

// Sample is one series from an instant query.
type Sample struct {
	Labels map[string]string `json:"labels"`
	Value  string            `json:"value"`
}

// Query runs an instant query and returns up to maxSamples series.
func (p *Prometheus) Query(ctx context.Context, query string, maxSamples int) ([]Sample, error) {
	if p.endpoint == "" {
		return nil, fmt.Errorf("prometheus probe not configured")
	}
	if maxSamples <= 0 {
		maxSamples = 50
	}

	u, err := url.Parse(p.endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint: %w", err)
	}
	u.Path = "/api/v1/query"

	q := u.Query()
	q.Set("query", query)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := p.httpClient.Do(req) //nolint:gosec // G704: endpoint is from trusted config, not user input
	if err != nil {
		return nil, fmt.Errorf("prometheus query failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 5<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("prometheus returned %d: %s", resp.StatusCode, string(body))
	}

	var promResp struct {
		Status string `json:"status"`
		Data   struct {
			Result []struct {
				Metric map[string]string `json:"metric"`
				Value  []json.RawMessage `json:"value"`
			} `json:"result"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &promResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if promResp.Status != "success" {
		return nil, fmt.Errorf("prometheus query failed: %s", string(body))
	}

	results := promResp.Data.Result
	if len(results) > maxSamples {
		results = results[:maxSamples]
	}
	out := make([]Sample, 0, len(results))
	for _, r := range results {
		s := Sample{Labels: r.Metric}
		// value is [timestamp, "value"]
		if len(r.Value) == 2 {
			var v string
			if err := json.Unmarshal(r.Value[1], &v); err == nil {
				s.Value = v
			}
		}
		out = append(out, s)
	}
	return out, nil
}

// Snapshot queries the named metric for a service and renders a compact
// one-line summary suitable for incident context.
func (p *Prometheus) Snapshot(ctx context.Context, service, metric string) (string, error) {
	query := fmt.Sprintf(`%s{service=%q}`, metric, service)
	samples, err := p.Query(ctx, query, 5)
	if err != nil {
		return "", err
	}
	if len(samples) == 0 {
		return "no samples", nil
	}
	out := ""
	for i, s := range samples {
		if i > 0 {
			out += "; "
		}
		out += s.Value
	}
	return fmt.Sprintf("%s=%s", metric, out), nil
}
