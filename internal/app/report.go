package app

import (
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// GroupCounts are the per group retry totals. A task is recovered when every
// selected slot now holds a decisive judgment, and undecided when none still
// fails but a judge answered uncertain.
type GroupCounts struct {
	Selected    int `yaml:"selected"`
	Recovered   int `yaml:"recovered"`
	Undecided   int `yaml:"undecided"`
	StillFailed int `yaml:"still_failed"`
	Canceled    int `yaml:"canceled,omitempty"`
}

// RetryReport summarizes one retry pass.
type RetryReport struct {
	RunID   string                `yaml:"run_id"`
	Groups  map[Group]GroupCounts `yaml:"groups"`
	Ladders map[string]string     `yaml:"ladders,omitempty"`
	Elapsed time.Duration         `yaml:"-"`
}

func newRetryReport(runID string) RetryReport {
	return RetryReport{RunID: runID, Groups: map[Group]GroupCounts{}}
}

// Selected is the number of tasks planned.
func (r RetryReport) Selected() int { return r.sum(func(g GroupCounts) int { return g.Selected }) }

// Recovered is the number of tasks whose slots are now decisive.
func (r RetryReport) Recovered() int { return r.sum(func(g GroupCounts) int { return g.Recovered }) }

// Undecided is the number of tasks a judge answered but left uncertain.
func (r RetryReport) Undecided() int { return r.sum(func(g GroupCounts) int { return g.Undecided }) }

// StillFailed is the number of tasks a later pass would select again.
func (r RetryReport) StillFailed() int {
	return r.sum(func(g GroupCounts) int { return g.StillFailed + g.Canceled })
}

func (r RetryReport) sum(f func(GroupCounts) int) int {
	n := 0
	for _, g := range r.Groups {
		n += f(g)
	}
	return n
}

func (r RetryReport) selected() map[string]int {
	out := make(map[string]int, len(r.Groups))
	for k, g := range r.Groups {
		out[string(k)] = g.Selected
	}
	return out
}

// Lines renders the report for humans, one group per line in group order.
func (r RetryReport) Lines() []string {
	keys := make([]string, 0, len(r.Groups))
	for k := range r.Groups {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)
	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		g := r.Groups[Group(k)]
		lines = append(lines, fmt.Sprintf("%-6s selected=%d recovered=%d undecided=%d still_failed=%d", k, g.Selected, g.Recovered, g.Undecided, g.StillFailed+g.Canceled))
	}
	return lines
}

// WriteYAML encodes the report.
func (r RetryReport) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("encode retry report: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("encode retry report: %w", err)
	}
	return nil
}

// WriteYAMLFile writes the report to path.
func (r RetryReport) WriteYAMLFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create retry report: %w", err)
	}
	if err := r.WriteYAML(f); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close retry report: %w", err)
	}
	return nil
}
