package cfg

import (
	"errors"
	"flag"
	"fmt"
)

// Config adds app-specific configuration fields to the
// common cfg.Registerable and cfg.Validatable interfaces
type Config struct {
	DrainSeconds          int
	ShutdownBudgetSeconds int
	APIPort               int
	DatabaseURL           string
	RulesDir              string
	ServicesConfig        string
	RunbooksDir           string
	DocsDir               string
	PrometheusEndpoint    string
	PrometheusTenantID    string
	LokiEndpoint          string
	LokiTenantID          string
	ClaudeAPIKey          string
	ClaudeModel           string
	TeamsWebhookURL       string
	JiraBaseURL           string
	JiraProjectKey        string
	JiraUsername          string
	JiraAPIToken          string
	ServiceNowInstanceURL string
	ServiceNowUsername    string
	ServiceNowPassword    string
	ApprovalWebhookToken  string
}

// RegisterFlags binds Config fields to the given FlagSet with defaults inline
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.IntVar(&c.DrainSeconds, "drain-seconds", 60, "seconds to wait for in-flight requests to drain before shutdown (1..300)")
	fs.IntVar(&c.ShutdownBudgetSeconds, "shutdown-budget-seconds", 90, "total seconds for component shutdown after drain (1..300)")
	fs.IntVar(&c.APIPort, "http-port", 8080, "API listen TCP port (1..65535)")
	fs.StringVar(&c.DatabaseURL, "database-url", "", "PostgreSQL connection URL (empty = in-memory stores)")
	fs.StringVar(&c.RulesDir, "rules-dir", "config", "directory holding the rule CSVs (alert_rules, severity_priority, maintenance_windows, routing)")
	fs.StringVar(&c.ServicesConfig, "services-config", "", "path to the services YAML (empty = defaults)")
	fs.StringVar(&c.RunbooksDir, "runbooks-dir", "runbooks", "directory scanned for runbook markdown files")
	fs.StringVar(&c.DocsDir, "docs-dir", "docs/generated", "directory the chronicler writes incident docs into")
	fs.StringVar(&c.PrometheusEndpoint, "prometheus-endpoint", "", "Prometheus endpoint for metric evidence snapshots (empty = disabled)")
	fs.StringVar(&c.PrometheusTenantID, "prometheus-tenant-id", "", "Prometheus tenant ID for multi-tenant setups")
	fs.StringVar(&c.LokiEndpoint, "loki-endpoint", "", "Loki endpoint for log evidence snippets (empty = disabled)")
	fs.StringVar(&c.LokiTenantID, "loki-tenant-id", "", "Loki tenant ID for multi-tenant setups")
	fs.StringVar(&c.ClaudeAPIKey, "claude-api-key", "", "API key for the Claude LLM provider (empty = template-only analysis)")
	fs.StringVar(&c.ClaudeModel, "claude-model", "claude-sonnet-4-20250514", "Claude model to use")
	fs.StringVar(&c.TeamsWebhookURL, "teams-webhook-url", "", "Teams webhook URL for notifications and approval solicitations")
	fs.StringVar(&c.JiraBaseURL, "jira-base-url", "", "Jira base URL (empty = Jira writer disabled)")
	fs.StringVar(&c.JiraProjectKey, "jira-project-key", "", "Jira project key incidents are filed under")
	fs.StringVar(&c.JiraUsername, "jira-username", "", "Jira API username")
	fs.StringVar(&c.JiraAPIToken, "jira-api-token", "", "Jira API token")
	fs.StringVar(&c.ServiceNowInstanceURL, "servicenow-instance-url", "", "ServiceNow instance URL (empty = ServiceNow writer disabled)")
	fs.StringVar(&c.ServiceNowUsername, "servicenow-username", "", "ServiceNow API username")
	fs.StringVar(&c.ServiceNowPassword, "servicenow-password", "", "ServiceNow API password")
	fs.StringVar(&c.ApprovalWebhookToken, "approval-webhook-token", "", "bearer token required on the approval webhook (empty = unauthenticated)")
}

// Validate checks all configuration fields for correctness.
// It returns an error if any field is invalid, or nil if all fields are valid.
func (c *Config) Validate() error {
	var errs []error

	// Drain and shutdown budgets
	if c.DrainSeconds <= 0 || c.DrainSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid DRAIN_SECONDS %d (must be 1..300)", c.DrainSeconds))
	}
	if c.ShutdownBudgetSeconds <= 0 || c.ShutdownBudgetSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid SHUTDOWN_BUDGET_SECONDS %d (must be 1..300)", c.ShutdownBudgetSeconds))
	}

	// Shutdown budget must be greater than drain time
	if c.ShutdownBudgetSeconds <= c.DrainSeconds {
		errs = append(errs, fmt.Errorf("SHUTDOWN_BUDGET_SECONDS %d must be greater than DRAIN_SECONDS %d", c.ShutdownBudgetSeconds, c.DrainSeconds))
	}

	// API port must be valid TCP port number
	if c.APIPort <= 0 || c.APIPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.APIPort))
	}

	// Rule CSVs drive evaluation, routing and suppression
	if c.RulesDir == "" {
		errs = append(errs, errors.New("RULES_DIR is required"))
	}

	// A model name must accompany a key
	if c.ClaudeAPIKey != "" && c.ClaudeModel == "" {
		errs = append(errs, errors.New("CLAUDE_MODEL is required when CLAUDE_API_KEY is set"))
	}

	// Jira needs the full credential set or none of it
	if c.JiraBaseURL != "" && (c.JiraProjectKey == "" || c.JiraUsername == "" || c.JiraAPIToken == "") {
		errs = append(errs, errors.New("JIRA_BASE_URL requires JIRA_PROJECT_KEY, JIRA_USERNAME and JIRA_API_TOKEN"))
	}

	// Same for ServiceNow
	if c.ServiceNowInstanceURL != "" && (c.ServiceNowUsername == "" || c.ServiceNowPassword == "") {
		errs = append(errs, errors.New("SERVICENOW_INSTANCE_URL requires SERVICENOW_USERNAME and SERVICENOW_PASSWORD"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
