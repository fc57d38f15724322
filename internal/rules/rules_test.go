package rules

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestEvaluate(t *testing.T) {
	t.Parallel()

	ruleSet := []ThresholdRule{
		{Service: "web-api", Metric: "cpu_percent", Operator: "gt", Threshold: 90, Enabled: true},
		{Service: "web-api", Metric: "up", Operator: "lt", Threshold: 1, Enabled: true},
		{Service: "web-api", Metric: "error_rate", Operator: "gte", Threshold: 0.05, Enabled: true},
		{Service: "web-api", Metric: "disk_percent", Operator: "gt", Threshold: 85, Enabled: false},
	}

	tests := []struct {
		name    string
		service string
		metric  string
		value   float64
		breach  bool
		reason  string
	}{
		{"gt breach", "web-api", "cpu_percent", 95, true, "cpu_percent 95 > 90"},
		{"gt at threshold is no breach", "web-api", "cpu_percent", 90, false, ""},
		{"lt breach", "web-api", "up", 0, true, "up 0 < 1"},
		{"gte at threshold breaches", "web-api", "error_rate", 0.05, true, "error_rate 0.05 >= 0.05"},
		{"disabled rule never fires", "web-api", "disk_percent", 99, false, ""},
		{"unknown service", "billing", "cpu_percent", 99, false, ""},
		{"unknown metric", "web-api", "queue_depth", 99, false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			breach, reason := Evaluate(ruleSet, tt.service, tt.metric, tt.value)
			if breach != tt.breach {
				t.Fatalf("breach = %v, want %v", breach, tt.breach)
			}
			if reason != tt.reason {
				t.Errorf("reason = %q, want %q", reason, tt.reason)
			}
		})
	}
}

func TestInWindow(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	windows := []MaintenanceWindow{
		{Service: "web-api", Start: now.Add(-time.Hour), End: now.Add(time.Hour)},
		{Service: "cache", Start: now.Add(2 * time.Hour), End: now.Add(3 * time.Hour)},
	}

	if !InWindow(windows, "web-api", now) {
		t.Error("now inside window should match")
	}
	if !InWindow(windows, "web-api", now.Add(time.Hour)) {
		t.Error("window end is inclusive")
	}
	if InWindow(windows, "cache", now) {
		t.Error("future window should not match")
	}
	if InWindow(windows, "billing", now) {
		t.Error("service without windows should not match")
	}
}

func writeTable(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestCSVDirThresholdRules(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeTable(t, dir, "alert_rules.csv",
		"service,metric,operator,threshold,enabled\n"+
			"web-api,cpu_percent,gt,90,true\n"+
			"web-api,up,lt,1,\n"+
			"web-api,error_rate,,0.05,false\n"+
			"web-api,broken,gt,not-a-number,true\n")

	rules, err := NewCSVDir(dir).ThresholdRules(context.Background())
	if err != nil {
		t.Fatalf("threshold rules: %v", err)
	}
	if len(rules) != 3 {
		t.Fatalf("got %d rules, want 3 (malformed row skipped)", len(rules))
	}
	if !rules[0].Enabled || rules[0].Operator != "gt" {
		t.Errorf("rule 0 = %+v", rules[0])
	}
	if !rules[1].Enabled {
		t.Error("empty enabled column should default to true")
	}
	if rules[2].Operator != "gt" {
		t.Errorf("empty operator should default to gt, got %q", rules[2].Operator)
	}
	if rules[2].Enabled {
		t.Error("enabled=false must be honored")
	}
}

func TestCSVDirMaintenanceWindows(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeTable(t, dir, "maintenance_windows.csv",
		"service,start_utc,end_utc\n"+
			"web-api,2026-03-01T10:00:00Z,2026-03-01T14:00:00Z\n"+
			"cache,not-a-time,2026-03-01T14:00:00Z\n")

	windows, err := NewCSVDir(dir).MaintenanceWindows(context.Background())
	if err != nil {
		t.Fatalf("maintenance windows: %v", err)
	}
	if len(windows) != 1 {
		t.Fatalf("got %d windows, want 1 (bad timestamps skipped)", len(windows))
	}
	if windows[0].Service != "web-api" {
		t.Errorf("service = %q", windows[0].Service)
	}
}

func TestCSVDirPriorityFor(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeTable(t, dir, "severity_priority.csv",
		"severity,jira_priority,servicenow_priority\n"+
			"critical,Highest,1\n"+
			"high,High,2\n"+
			"medium,Medium,\n")

	c := NewCSVDir(dir)
	ctx := context.Background()

	if p, _ := c.PriorityFor(ctx, "critical", "jira"); p != "Highest" {
		t.Errorf("jira critical = %q, want Highest", p)
	}
	if p, _ := c.PriorityFor(ctx, "critical", "servicenow"); p != "1" {
		t.Errorf("servicenow critical = %q, want 1", p)
	}
	// empty system column falls back to the jira column
	if p, _ := c.PriorityFor(ctx, "medium", "servicenow"); p != "Medium" {
		t.Errorf("servicenow medium = %q, want Medium", p)
	}
	// unmapped severities get the per-system default
	if p, _ := c.PriorityFor(ctx, "low", "servicenow"); p != "3" {
		t.Errorf("servicenow default = %q, want 3", p)
	}
	if p, _ := c.PriorityFor(ctx, "low", "jira"); p != "Medium" {
		t.Errorf("jira default = %q, want Medium", p)
	}
}

func TestCSVDirRouteFor(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeTable(t, dir, "routing.csv",
		"service,category,assignment_group\n"+
			"web-api,Software,Platform SRE\n")

	c := NewCSVDir(dir)
	route, err := c.RouteFor(context.Background(), "web-api")
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if route.Category != "Software" || route.AssignmentGroup != "Platform SRE" {
		t.Errorf("route = %+v", route)
	}

	missing, err := c.RouteFor(context.Background(), "billing")
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if missing != (Route{}) {
		t.Errorf("unrouted service = %+v, want zero route", missing)
	}
}

func TestCSVDirMissingFiles(t *testing.T) {
	t.Parallel()

	c := NewCSVDir(t.TempDir())
	ctx := context.Background()

	rules, err := c.ThresholdRules(ctx)
	if err != nil || len(rules) != 0 {
		t.Errorf("missing alert_rules.csv: rules=%v err=%v", rules, err)
	}
	windows, err := c.MaintenanceWindows(ctx)
	if err != nil || len(windows) != 0 {
		t.Errorf("missing maintenance_windows.csv: windows=%v err=%v", windows, err)
	}
}

func TestLoadServicesConfig(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "services.yaml")
	content := "orchestrator:\n  polling_enabled: true\n  poll_interval_seconds: 30\n  chronicler_enabled: false\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := LoadServicesConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.Orchestrator.PollingEnabled {
		t.Error("polling_enabled not parsed")
	}
	if got := cfg.Orchestrator.PollInterval(); got != 30 {
		t.Errorf("poll interval = %d, want 30", got)
	}
	if cfg.Orchestrator.TriggerChronicler() {
		t.Error("chronicler_enabled=false should disable the trigger")
	}

	// defaults
	var zero ServicesConfig
	if got := zero.Orchestrator.PollInterval(); got != 60 {
		t.Errorf("default poll interval = %d, want 60", got)
	}
	if !zero.Orchestrator.TriggerChronicler() {
		t.Error("chronicler trigger should default to enabled")
	}

	// missing file is the zero config
	missing, err := LoadServicesConfig(filepath.Join(dir, "absent.yaml"))
	if err != nil {
		t.Fatalf("missing file: %v", err)
	}
	if missing != (ServicesConfig{}) {
		t.Errorf("missing file config = %+v, want zero", missing)
	}
}
