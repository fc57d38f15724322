package chronicler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/linnemanlabs/argus/internal/trace"
)

// LocalWriter is the default DocWriter: one markdown summary per cluster
// under a generated-docs directory. Richer templating lives outside the
// engine; this keeps /generate-docs useful out of the box.
type LocalWriter struct {
	dir string
}

// NewLocalWriter creates a LocalWriter rooted at dir.
func NewLocalWriter(dir string) *LocalWriter {
	return &LocalWriter{dir: dir}
}

// Generate writes <cluster-key>.md and returns its path.
func (w *LocalWriter) Generate(_ context.Context, cluster Cluster, steps []trace.Step) ([]string, error) {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create docs dir: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", cluster.Key)
	fmt.Fprintf(&b, "Service: %s\nTheme: %s\nIncidents: %d\nSeverities: %s\n\n",
		cluster.Service, cluster.Theme, cluster.Count, strings.Join(cluster.Severities, ", "))

	b.WriteString("## Incidents\n\n")
	for _, inc := range cluster.Incidents {
		fmt.Fprintf(&b, "- %s (%s): %s\n", inc.ID, inc.Severity, inc.Summary)
	}

	if len(steps) > 0 {
		b.WriteString("\n## Timeline\n\n")
		for _, s := range steps {
			fmt.Fprintf(&b, "- %s %s/%s [%s]: %s\n",
				s.Timestamp.Format("2006-01-02 15:04:05"), s.Agent, s.Action, s.Outcome, s.Rationale)
		}
	}

	path := filepath.Join(w.dir, sanitizeName(cluster.Key)+".md")
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return nil, fmt.Errorf("write doc: %w", err)
	}
	return []string{path}, nil
}

func sanitizeName(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '-'
		}
	}, s)
}
