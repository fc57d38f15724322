package rules

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ServicesConfig is the operator-editable services YAML. Like the CSV
// tables it is re-read on every lookup.
type ServicesConfig struct {
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
}

// OrchestratorConfig holds orchestrator policy toggles.
type OrchestratorConfig struct {
	// PollingEnabled turns on the periodic re-scan for unprocessed closures.
	PollingEnabled bool `yaml:"polling_enabled"`

	// PollIntervalSeconds between re-scans; 0 falls back to 60.
	PollIntervalSeconds int `yaml:"poll_interval_seconds"`

	// ChroniclerEnabled gates the post-close doc pipeline trigger.
	ChroniclerEnabled *bool `yaml:"chronicler_enabled"`
}

// PollInterval returns the configured interval with the default applied.
func (o OrchestratorConfig) PollInterval() int {
	if o.PollIntervalSeconds <= 0 {
		return 60
	}
	return o.PollIntervalSeconds
}

// TriggerChronicler reports whether closes should kick off the chronicler.
// Defaults to true when unset.
func (o OrchestratorConfig) TriggerChronicler() bool {
	return o.ChroniclerEnabled == nil || *o.ChroniclerEnabled
}

// LoadServicesConfig reads the services YAML. A missing file yields the
// zero config, not an error.
func LoadServicesConfig(path string) (ServicesConfig, error) {
	var cfg ServicesConfig
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read services config: %w", err)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("parse services config: %w", err)
	}
	return cfg, nil
}
