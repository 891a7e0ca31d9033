package domain

import "time"

// Report is the machine-readable account of one consensus pass: where the
// runs disagreed, which charts were flagged and what the repair loop did.
type Report struct {
	RunCount      int                 `json:"run_count"`
	GeneratedAt   time.Time           `json:"generated_at"`
	SourceRuns    []string            `json:"source_runs,omitempty"`
	Disagreements []DisagreementEntry `json:"disagreements"`
	FlaggedCharts []FlaggedChart      `json:"flagged_graphs,omitempty"`
	InvalidRuns   []RejectionSummary  `json:"invalid_runs,omitempty"`
	Repair        *RepairReport       `json:"rerun,omitempty"`
}

// NewReport starts a report for a reconciliation of runCount runs, stamped
// with the package clock. Flagged charts are derived from the entries.
func NewReport(runCount int, entries []DisagreementEntry) Report {
	if entries == nil {
		entries = []DisagreementEntry{}
	}
	return Report{
		RunCount:      runCount,
		GeneratedAt:   clock.Now().UTC(),
		Disagreements: entries,
		FlaggedCharts: FlaggedCharts(entries),
	}
}

// IssueCounts tallies the report's issues by reason.
func (r Report) IssueCounts() map[IssueReason]int { return CountIssues(r.Disagreements) }

// RepairCounts tallies repair outcomes by status. It is empty when the
// repair loop did not run.
func (r Report) RepairCounts() map[RepairStatus]int {
	counts := make(map[RepairStatus]int)
	if r.Repair == nil {
		return counts
	}
	for _, c := range r.Repair.Charts {
		counts[c.Status()]++
	}
	return counts
}
