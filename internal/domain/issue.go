package domain

import (
	"encoding/json"
	"fmt"
)

// IssueReason names a kind of disagreement between runs.
type IssueReason string

const (
	IssueMissingRuns      IssueReason = "missing_runs"
	IssueLocationMismatch IssueReason = "location_mismatch"
	IssueTextMismatch     IssueReason = "text_mismatch"
	IssueNumericVariation IssueReason = "numeric_variation"
	IssueMissingValues    IssueReason = "missing_values"
)

// IssueReasons lists every reason in report order.
var IssueReasons = []IssueReason{
	IssueMissingRuns,
	IssueLocationMismatch,
	IssueTextMismatch,
	IssueNumericVariation,
	IssueMissingValues,
}

// Issue is one piece of evidence that runs disagreed on a data point. Which
// fields are set depends on Reason.
type Issue struct {
	Reason IssueReason

	// Runs are zero-based run indices: the runs lacking the key for
	// missing_runs, or the runs that contributed values otherwise.
	Runs      []int
	Locations []string
	Texts     []string
	Numbers   []float64
	Tolerance float64
	Spread    float64
}

type issueJSON struct {
	Reason    IssueReason     `json:"reason"`
	Runs      []int           `json:"runs,omitempty"`
	Locations []string        `json:"locations,omitempty"`
	Values    json.RawMessage `json:"values,omitempty"`
	Spread    *float64        `json:"spread,omitempty"`
	Tolerance *float64        `json:"tolerance,omitempty"`
}

// MarshalJSON writes the report shape for the issue's reason. Text and
// numeric evidence share the "values" key.
func (i Issue) MarshalJSON() ([]byte, error) {
	out := issueJSON{Reason: i.Reason}
	switch i.Reason {
	case IssueMissingRuns:
		out.Runs = i.Runs
	case IssueLocationMismatch:
		out.Locations = i.Locations
	case IssueTextMismatch:
		out.Runs = i.Runs
		v, err := json.Marshal(i.Texts)
		if err != nil {
			return nil, err
		}
		out.Values = v
	case IssueNumericVariation:
		out.Runs = i.Runs
		v, err := json.Marshal(i.Numbers)
		if err != nil {
			return nil, err
		}
		out.Values = v
		out.Spread = &i.Spread
		out.Tolerance = &i.Tolerance
	}
	return json.Marshal(out)
}

func (i *Issue) UnmarshalJSON(data []byte) error {
	var in issueJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*i = Issue{Reason: in.Reason, Runs: in.Runs, Locations: in.Locations}
	if in.Spread != nil {
		i.Spread = *in.Spread
	}
	if in.Tolerance != nil {
		i.Tolerance = *in.Tolerance
	}
	if len(in.Values) == 0 {
		return nil
	}
	switch in.Reason {
	case IssueTextMismatch:
		if err := json.Unmarshal(in.Values, &i.Texts); err != nil {
			return fmt.Errorf("issue %s values: %w", in.Reason, err)
		}
	case IssueNumericVariation:
		if err := json.Unmarshal(in.Values, &i.Numbers); err != nil {
			return fmt.Errorf("issue %s values: %w", in.Reason, err)
		}
	}
	return nil
}

// DisagreementEntry collects every issue found for one data point.
type DisagreementEntry struct {
	Key    DataPointKey `json:"key"`
	Graph  ChartKey     `json:"graph"`
	Issues []Issue      `json:"issues"`
}

// CountIssues tallies issues by reason across entries.
func CountIssues(entries []DisagreementEntry) map[IssueReason]int {
	counts := make(map[IssueReason]int)
	for _, e := range entries {
		for _, is := range e.Issues {
			counts[is.Reason]++
		}
	}
	return counts
}
