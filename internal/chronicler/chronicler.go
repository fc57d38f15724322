// Package chronicler turns closed incidents into documentation. It clusters
// closed incidents by service and fault theme, hands each cluster with its
// trace evidence to a doc writer, and publishes the results with an optional
// notification. When triggered for a specific incident the doc steps append
// to that incident's existing run so the trace reads as one workflow.
package chronicler

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/argus/internal/incident"
	"github.com/linnemanlabs/argus/internal/trace"
)

// Cluster is one group of closed incidents sharing a service and theme.
type Cluster struct {
	Key        string              `json:"cluster_key"`
	Service    string              `json:"service"`
	Theme      string              `json:"theme"`
	Incidents  []incident.Incident `json:"incidents"`
	Count      int                 `json:"count"`
	Severities []string            `json:"severities"`
	Summaries  []string            `json:"summaries"`
}

// Report summarizes one chronicler run.
type Report struct {
	RunID         string   `json:"run_id"`
	Clusters      int      `json:"clusters"`
	DocsGenerated int      `json:"docs_generated"`
	Files         []string `json:"files,omitempty"`
}

// DocWriter renders documentation for one cluster. The returned names
// identify the generated artifacts (paths or ids); the writer owns format
// and storage.
type DocWriter interface {
	Generate(ctx context.Context, cluster Cluster, steps []trace.Step) ([]string, error)
}

// Notifier announces published docs, best-effort.
type Notifier interface {
	IsConfigured() bool
	Announce(ctx context.Context, text string) error
}

// Chronicler drives the aggregation and doc pipeline.
type Chronicler struct {
	incidents incident.Store
	traces    trace.Store
	writer    DocWriter
	notifier  Notifier
	logger    log.Logger
}

// New creates a Chronicler. notifier may be nil.
func New(incidents incident.Store, traces trace.Store, writer DocWriter, notifier Notifier, logger log.Logger) *Chronicler {
	if logger == nil {
		logger = log.Nop()
	}
	return &Chronicler{
		incidents: incidents,
		traces:    traces,
		writer:    writer,
		notifier:  notifier,
		logger:    logger,
	}
}

// Run executes the chronicler pipeline over all closed incidents. When
// incidentID is set the steps append to that incident's run; otherwise a
// fresh run is minted. A doc writer failure fails that cluster and the run
// moves on.
func (c *Chronicler) Run(ctx context.Context, incidentID, ticketNumber string) (*Report, error) {
	var run *trace.Run
	var err error
	if incidentID != "" {
		run, err = trace.ResumeRun(ctx, c.traces, incidentID)
		if err != nil {
			return nil, fmt.Errorf("resume run: %w", err)
		}
	} else {
		run = trace.NewRun(c.traces)
	}
	if ticketNumber != "" {
		if err := run.StampTicket(ctx, ticketNumber); err != nil {
			return nil, fmt.Errorf("stamp ticket: %w", err)
		}
	}
	report := &Report{RunID: run.ID}

	if err := run.Started(ctx, "Aggregator", "cluster_closed", "invoke",
		"Scanning closed incidents and clustering by service + theme."); err != nil {
		return nil, fmt.Errorf("trace aggregate started: %w", err)
	}

	closed, err := c.closedIncidents(ctx)
	if err != nil {
		_ = run.Finished(ctx, "Aggregator", "cluster_closed", "error",
			"Closed incidents could not be listed.", trace.OutcomeFailed, err.Error())
		return nil, fmt.Errorf("list closed incidents: %w", err)
	}
	clusters := ClusterIncidents(closed)
	report.Clusters = len(clusters)

	rationale := fmt.Sprintf("Found %d closed incidents in %d cluster(s): %s.",
		len(closed), len(clusters), clusterSummary(clusters))
	if err := run.Finished(ctx, "Aggregator", "cluster_closed",
		fmt.Sprintf("%d clusters", len(clusters)), rationale, trace.OutcomeSuccess,
		fmt.Sprintf("clusters=%d", len(clusters))); err != nil {
		return nil, fmt.Errorf("trace aggregate finished: %w", err)
	}

	if len(clusters) == 0 {
		if err := run.Finished(ctx, "Pipeline", "chronicler_complete", "no_data",
			"No closed incidents to generate docs from.", trace.OutcomeCompleted, ""); err != nil {
			return nil, fmt.Errorf("trace complete: %w", err)
		}
		return report, nil
	}

	for _, cluster := range clusters {
		files, err := c.writeCluster(ctx, run, cluster)
		if err != nil {
			return nil, err
		}
		if files == nil {
			continue // writer failed, logged in the trace
		}
		report.DocsGenerated += len(files)
		report.Files = append(report.Files, files...)

		if err := c.publishCluster(ctx, run, cluster, files); err != nil {
			return nil, err
		}
	}

	if err := run.Finished(ctx, "Pipeline", "chronicler_complete", "completed",
		fmt.Sprintf("Chronicler pipeline finished: %d cluster(s), %d doc(s) generated.",
			report.Clusters, report.DocsGenerated),
		trace.OutcomeCompleted, ""); err != nil {
		return nil, fmt.Errorf("trace complete: %w", err)
	}
	return report, nil
}

func (c *Chronicler) writeCluster(ctx context.Context, run *trace.Run, cluster Cluster) ([]string, error) {
	if err := run.Started(ctx, "Doc Writer", "generate_docs", "invoke",
		fmt.Sprintf("Generating docs for cluster %q (%d incidents).", cluster.Key, cluster.Count)); err != nil {
		return nil, fmt.Errorf("trace docs started: %w", err)
	}

	ids := make([]string, 0, len(cluster.Incidents))
	for _, inc := range cluster.Incidents {
		ids = append(ids, inc.ID)
	}
	steps, err := c.traces.StepsForIncidents(ctx, ids)
	if err != nil {
		c.logger.Warn(ctx, "trace lookup for docs failed", "cluster", cluster.Key, "error", err.Error())
	}

	files, err := c.writer.Generate(ctx, cluster, steps)
	if err != nil {
		if terr := run.Finished(ctx, "Doc Writer", "generate_docs", "error",
			fmt.Sprintf("Doc generation failed for %s.", cluster.Key),
			trace.OutcomeFailed, err.Error()); terr != nil {
			return nil, fmt.Errorf("trace docs finished: %w", terr)
		}
		return nil, nil
	}

	if err := run.Finished(ctx, "Doc Writer", "generate_docs",
		fmt.Sprintf("%d files", len(files)),
		fmt.Sprintf("Generated %s for %s.", strings.Join(files, ", "), cluster.Key),
		trace.OutcomeSuccess, "files="+strings.Join(files, ",")); err != nil {
		return nil, fmt.Errorf("trace docs finished: %w", err)
	}
	return files, nil
}

func (c *Chronicler) publishCluster(ctx context.Context, run *trace.Run, cluster Cluster, files []string) error {
	if err := run.Started(ctx, "Publisher", "publish_docs", "invoke",
		"Publishing docs and sending optional notification."); err != nil {
		return fmt.Errorf("trace publish started: %w", err)
	}

	notified := "skipped"
	if c.notifier != nil && c.notifier.IsConfigured() {
		text := fmt.Sprintf("New docs for %s: %s", cluster.Key, strings.Join(files, ", "))
		if err := c.notifier.Announce(ctx, text); err != nil {
			c.logger.Warn(ctx, "doc notification failed", "cluster", cluster.Key, "error", err.Error())
			notified = "failed"
		} else {
			notified = "sent"
		}
	}

	if err := run.Finished(ctx, "Publisher", "publish_docs", "published",
		fmt.Sprintf("Published %d file(s). Notify: %s.", len(files), notified),
		trace.OutcomeSuccess, ""); err != nil {
		return fmt.Errorf("trace publish finished: %w", err)
	}
	return nil
}

func (c *Chronicler) closedIncidents(ctx context.Context) ([]incident.Incident, error) {
	all, err := c.incidents.List(ctx)
	if err != nil {
		return nil, err
	}
	var closed []incident.Incident
	for _, inc := range all {
		if inc.Closed() {
			closed = append(closed, inc)
		}
	}
	return closed, nil
}

// ClusterIncidents groups incidents by (service, theme), largest cluster
// first with the key as tie-break.
func ClusterIncidents(incidents []incident.Incident) []Cluster {
	buckets := map[string]*Cluster{}
	var order []string
	for _, inc := range incidents {
		service := inc.Service
		if service == "" {
			service = "unknown"
		}
		theme := DocTheme(inc.Summary)
		key := service + "_" + theme
		b, ok := buckets[key]
		if !ok {
			b = &Cluster{Key: key, Service: service, Theme: theme}
			buckets[key] = b
			order = append(order, key)
		}
		b.Incidents = append(b.Incidents, inc)
		b.Count++
		b.Severities = appendUnique(b.Severities, inc.Severity.String())
		b.Summaries = appendUnique(b.Summaries, inc.Summary)
	}

	out := make([]Cluster, 0, len(order))
	for _, key := range order {
		out = append(out, *buckets[key])
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Key < out[j].Key
	})
	return out
}

// docThemes map a documentation theme to its summary keywords, checked in
// order.
var docThemes = []struct {
	theme    string
	keywords []string
}{
	{"high_cpu", []string{"cpu", "high cpu"}},
	{"high_memory", []string{"memory", "high memory"}},
	{"service_down", []string{"down", "service down", "unavailable"}},
	{"error_spike", []string{"error", "error rate", "error spike"}},
	{"latency_spike", []string{"latency", "p99", "latency spike", "slow"}},
}

// DocTheme extracts the documentation theme from an incident summary.
func DocTheme(summary string) string {
	s := strings.ToLower(summary)
	for _, t := range docThemes {
		for _, kw := range t.keywords {
			if strings.Contains(s, kw) {
				return t.theme
			}
		}
	}
	return "general"
}

func clusterSummary(clusters []Cluster) string {
	parts := make([]string, 0, 5)
	for i, c := range clusters {
		if i >= 5 {
			break
		}
		parts = append(parts, fmt.Sprintf("%s(%d)", c.Key, c.Count))
	}
	return strings.Join(parts, ", ")
}

func appendUnique(list []string, v string) []string {
	for _, x := range list {
		if x == v {
			return list
		}
	}
	return append(list, v)
}
