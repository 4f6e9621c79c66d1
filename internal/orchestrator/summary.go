package orchestrator

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/unikernel-ci/matrixctl/internal/executor"
)

// CaseSummary is one line of the session-level aggregate: index,
// assignment, and verdict for a single case, per spec.md §4.6.
type CaseSummary struct {
	Index      int               `yaml:"index"`
	ID         string            `yaml:"id"`
	Assignment map[string]string `yaml:"assignment"`
	Dispatched bool              `yaml:"dispatched"`
	Result     string            `yaml:"result,omitempty"`
}

// SessionSummary is the full session-level aggregate written at the end
// of a dispatch, in both plain-text and structured forms.
type SessionSummary struct {
	SessionName string        `yaml:"session_name"`
	RunID       string        `yaml:"run_id"`
	Total       int           `yaml:"total"`
	Dispatched  int           `yaml:"dispatched"`
	Passed      int           `yaml:"passed"`
	Failed      int           `yaml:"failed"`
	Cases       []CaseSummary `yaml:"cases"`
}

// ExitCode implements spec.md §6: 4 when no case was dispatched, 3 when
// any dispatched case did not pass, and 0 otherwise.
func (s SessionSummary) ExitCode() int {
	if s.Dispatched == 0 {
		return 4
	}
	if s.Failed > 0 {
		return 3
	}
	return 0
}

// WriteText writes the human-readable "summary" file named in spec.md's
// on-disk session layout.
func (s SessionSummary) WriteText(path string) error {
	var b strings.Builder
	fmt.Fprintf(&b, "session: %s\n", s.SessionName)
	fmt.Fprintf(&b, "total: %d  dispatched: %d  passed: %d  failed: %d\n\n", s.Total, s.Dispatched, s.Passed, s.Failed)
	for _, c := range s.Cases {
		if !c.Dispatched {
			fmt.Fprintf(&b, "%d  %s  (not dispatched)\n", c.Index, c.ID)
			continue
		}
		fmt.Fprintf(&b, "%d  %s  %s\n", c.Index, c.ID, c.Result)
	}
	return os.WriteFile(path, []byte(b.String()), 0o644)
}

// WriteYAML writes the structured counterpart of the summary, a
// supplemental machine-parseable artifact alongside the plain-text file.
func (s SessionSummary) WriteYAML(path string) error {
	out, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	return os.WriteFile(path, out, 0o644)
}

// buildSummary assembles a SessionSummary from the full case list and
// the results produced for whichever subset was dispatched.
func buildSummary(sessionName, runID string, allCases []caseEntry, results map[int]*executor.Result, dispatched map[int]bool) SessionSummary {
	summary := SessionSummary{
		SessionName: sessionName,
		RunID:       runID,
		Total:       len(allCases),
	}

	for _, c := range allCases {
		cs := CaseSummary{Index: c.index, ID: c.id, Assignment: c.assignment, Dispatched: dispatched[c.index]}
		if cs.Dispatched {
			summary.Dispatched++
			if r, ok := results[c.index]; ok {
				cs.Result = r.ResultLine()
				if r.Verdict == executor.VerdictPass {
					summary.Passed++
				} else {
					summary.Failed++
				}
			}
		}
		summary.Cases = append(summary.Cases, cs)
	}

	sort.Slice(summary.Cases, func(i, j int) bool { return summary.Cases[i].Index < summary.Cases[j].Index })
	return summary
}
