package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// RejectReason explains why a series was kept out of reconciliation.
type RejectReason string

const (
	RejectEmptyHours  RejectReason = "empty_hours"
	RejectWrongLength RejectReason = "wrong_length"
	RejectAllZero     RejectReason = "all_zero_series"
)

// NormalizeSeries returns a copy of s with the location and category text
// normalized. The input is not modified.
func NormalizeSeries(kind Kind, s Series) Series {
	out := Series{Location: NormalizeLocation(s.Location)}
	if s.Hours != nil {
		out.Hours = make([]Hour, len(s.Hours))
		copy(out.Hours, s.Hours)
	}
	if kind == KindPrecipitation {
		for i := range out.Hours {
			out.Hours[i].PrecipType = NormalizeCategory(SectionPrecip, TypePrecipType, out.Hours[i].PrecipType)
		}
	}
	return out
}

// ValidateSeries normalizes s and checks it is usable. The returned reason is
// empty when the series is valid.
func ValidateSeries(kind Kind, s Series) (Series, RejectReason) {
	n := NormalizeSeries(kind, s)
	switch {
	case len(n.Hours) == 0:
		return n, RejectEmptyHours
	case len(n.Hours) != HoursPerSeries:
		return n, RejectWrongLength
	case allZero(kind, n.Hours):
		return n, RejectAllZero
	}
	return n, ""
}

// allZero reports whether every numeric field of the kind is zero for every
// hour. Missing values count as zero.
func allZero(kind Kind, hours []Hour) bool {
	fields, ok := kindFields[kind]
	if !ok {
		return false
	}
	for _, h := range hours {
		for _, f := range fields {
			if v, ok := f.get(h).Float(); ok && v != 0 {
				return false
			}
		}
	}
	return true
}

// RunID labels an extraction run in reports: runs are numbered from 1 and
// the repair pass is RerunID.
type RunID int

// RerunID identifies the repair pass.
const RerunID RunID = 0

// RunIDForIndex returns the label of the run at zero-based index i.
func RunIDForIndex(i int) RunID { return RunID(i + 1) }

func (r RunID) String() string {
	if r == RerunID {
		return "rerun"
	}
	return strconv.Itoa(int(r))
}

// MarshalJSON renders run numbers as JSON numbers and the repair pass as "rerun".
func (r RunID) MarshalJSON() ([]byte, error) {
	if r == RerunID {
		return []byte(`"rerun"`), nil
	}
	return []byte(strconv.Itoa(int(r))), nil
}

func (r *RunID) UnmarshalJSON(data []byte) error {
	if string(data) == `"rerun"` {
		*r = RerunID
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("run id: %w", err)
	}
	*r = RunID(n)
	return nil
}

// Rejection records one series the validity filter turned away.
type Rejection struct {
	Chart  ChartKey
	Kind   Kind
	Reason RejectReason
}

// Err returns the rejection as a *SeriesError.
func (r Rejection) Err() error {
	return &SeriesError{Chart: r.Chart, Kind: r.Kind, Reason: r.Reason}
}

// RejectionSummary counts one run's rejected series by reason.
type RejectionSummary struct {
	Run          RunID                `json:"run"`
	TotalInvalid int                  `json:"total_invalid"`
	Reasons      map[RejectReason]int `json:"reasons"`
}

// SummarizeRejections folds a run's rejections into a summary. Reasons is
// never nil.
func SummarizeRejections(run RunID, rejections []Rejection) RejectionSummary {
	s := RejectionSummary{Run: run, Reasons: make(map[RejectReason]int)}
	for _, r := range rejections {
		s.TotalInvalid++
		s.Reasons[r.Reason]++
	}
	return s
}
