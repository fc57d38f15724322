package rules

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// CSVDir is a Provider backed by a directory of flat CSV tables:
//
//	alert_rules.csv          service,metric,operator,threshold,enabled
//	severity_priority.csv    severity,jira_priority,servicenow_priority
//	maintenance_windows.csv  service,start_utc,end_utc
//	routing.csv              service,category,assignment_group
//
// Missing files behave as empty tables. New optional columns are tolerated;
// absent columns read as empty string.
type CSVDir struct {
	dir string
}

// NewCSVDir creates a provider reading tables from dir.
func NewCSVDir(dir string) *CSVDir {
	return &CSVDir{dir: dir}
}

// ThresholdRules reads alert_rules.csv.
func (c *CSVDir) ThresholdRules(_ context.Context) ([]ThresholdRule, error) {
	rows, err := c.readTable("alert_rules.csv")
	if err != nil {
		return nil, err
	}
	out := make([]ThresholdRule, 0, len(rows))
	for _, row := range rows {
		threshold, err := strconv.ParseFloat(row["threshold"], 64)
		if err != nil {
			// malformed rows are skipped, not fatal: one bad line must not
			// disable alerting for every service
			continue
		}
		op := strings.ToLower(strings.TrimSpace(row["operator"]))
		if op == "" {
			op = "gt"
		}
		out = append(out, ThresholdRule{
			Service:   row["service"],
			Metric:    row["metric"],
			Operator:  op,
			Threshold: threshold,
			Enabled:   row["enabled"] == "" || strings.EqualFold(row["enabled"], "true"),
		})
	}
	return out, nil
}

// MaintenanceWindows reads maintenance_windows.csv.
func (c *CSVDir) MaintenanceWindows(_ context.Context) ([]MaintenanceWindow, error) {
	rows, err := c.readTable("maintenance_windows.csv")
	if err != nil {
		return nil, err
	}
	out := make([]MaintenanceWindow, 0, len(rows))
	for _, row := range rows {
		start, err1 := parseUTC(row["start_utc"])
		end, err2 := parseUTC(row["end_utc"])
		if err1 != nil || err2 != nil {
			continue
		}
		out = append(out, MaintenanceWindow{Service: row["service"], Start: start, End: end})
	}
	return out, nil
}

// PriorityFor reads severity_priority.csv.
func (c *CSVDir) PriorityFor(_ context.Context, severity, system string) (string, error) {
	rows, err := c.readTable("severity_priority.csv")
	if err != nil {
		return "", err
	}
	col := system + "_priority"
	for _, row := range rows {
		if row["severity"] != severity {
			continue
		}
		if p := row[col]; p != "" {
			return p, nil
		}
		if p := row["jira_priority"]; p != "" {
			return p, nil
		}
	}
	if system == "servicenow" {
		return "3", nil
	}
	return "Medium", nil
}

// RouteFor reads routing.csv.
func (c *CSVDir) RouteFor(_ context.Context, service string) (Route, error) {
	rows, err := c.readTable("routing.csv")
	if err != nil {
		return Route{}, err
	}
	for _, row := range rows {
		if row["service"] == service {
			return Route{Category: row["category"], AssignmentGroup: row["assignment_group"]}, nil
		}
	}
	return Route{}, nil
}

// readTable reads one CSV file as header-keyed rows. A missing file is an
// empty table.
func (c *CSVDir) readTable(name string) ([]map[string]string, error) {
	f, err := os.Open(filepath.Join(c.dir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	defer func() { _ = f.Close() }()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s header: %w", name, err)
	}
	var rows []map[string]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		row := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(rec) {
				row[strings.TrimSpace(col)] = strings.TrimSpace(rec[i])
			} else {
				row[strings.TrimSpace(col)] = ""
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func parseUTC(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
