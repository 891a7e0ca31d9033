package domain

import (
	"context"
	"errors"
	"slices"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"
)

// Rereader produces one fresh, independent reading of a chart. It returns
// ErrNoReread when it has nothing to offer for the chart.
type Rereader interface {
	Reread(ctx context.Context, req RepairRequest) (Series, error)
}

// RepairRequest asks for a single authoritative reading of one chart. Prior
// holds one compact column summary per earlier run, for reference only.
type RepairRequest struct {
	Chart       ChartKey `json:"chart"`
	Kind        Kind     `json:"kind"`
	Instruction string   `json:"instruction"`
	Prior       []string `json:"prior,omitempty"`
}

var kindRereadRules = map[Kind]string{
	KindWind: "Wind chart rules:\n" +
		"- Read exactly 24 hours with hour_index 0..23.\n" +
		"- Speed and gust are whole mph values aligned to the axis ticks; gust is never below speed.\n" +
		"- Direction is the compass text printed above each hour, using 16-point compass names only.",
	KindPrecipitation: "Precipitation chart rules:\n" +
		"- Read exactly 24 hours with hour_index 0..23.\n" +
		"- Rain is in mm to one decimal place (0.0 when absent) and snow in cm to one decimal place.\n" +
		"- Rain and snow bars are separate values for the same hour; never add them.\n" +
		"- Precipitation type must match the text printed above each hour.",
	KindTemperature: "Temperature chart rules:\n" +
		"- Read exactly 24 hours with hour_index 0..23.\n" +
		"- Air temperature comes from the left axis in degrees C to one decimal place.\n" +
		"- Freezing level and wet bulb freezing level come from the right axis, to the nearest 10 m.\n" +
		"- Ignore summit or elevation labels printed on the background.",
}

// BuildRepairRequest assembles the request for one flagged chart from the
// series the earlier runs produced for it.
func BuildRepairRequest(chart FlaggedChart, priors []Series) RepairRequest {
	var sb strings.Builder
	sb.WriteString("Previous readings of this chart disagreed. Read the chart again from the source and return a corrected 24-hour series. ")
	sb.WriteString("Do not average or merge the earlier outputs; derive every value from the plotted data and axis gridlines.\n")
	sb.WriteString(kindRereadRules[chart.Kind])

	req := RepairRequest{Chart: chart.Chart(), Kind: chart.Kind}
	if len(priors) > 0 {
		sb.WriteString("\nEarlier runs, for reference only:")
		for i, s := range priors {
			summary := SummarizeSeries(chart.Kind, s)
			req.Prior = append(req.Prior, summary)
			sb.WriteString("\nRun " + strconv.Itoa(i+1) + ": " + summary)
		}
	}
	sb.WriteString("\nReturn the full series following the schema exactly.")
	req.Instruction = sb.String()
	return req
}

// FlaggedChart is a chart with at least one disagreement, tagged with its kind.
type FlaggedChart struct {
	SourceFile string `json:"SourceFile"`
	Page       int    `json:"Page"`
	Section    string `json:"Section"`
	Kind       Kind   `json:"kind"`
}

// Chart returns the chart key.
func (f FlaggedChart) Chart() ChartKey {
	return ChartKey{SourceFile: f.SourceFile, Page: f.Page, Section: f.Section}
}

// FlaggedCharts returns the distinct charts named by the disagreements, in
// chart order. Charts whose section has no kind are left out.
func FlaggedCharts(entries []DisagreementEntry) []FlaggedChart {
	seen := make(map[ChartKey]struct{})
	var charts []ChartKey
	for _, e := range entries {
		if _, ok := seen[e.Graph]; ok {
			continue
		}
		seen[e.Graph] = struct{}{}
		if _, ok := KindForSection(e.Graph.Section); ok {
			charts = append(charts, e.Graph)
		}
	}
	slices.SortFunc(charts, ChartKey.Compare)

	out := make([]FlaggedChart, 0, len(charts))
	for _, c := range charts {
		kind, _ := KindForSection(c.Section)
		out = append(out, FlaggedChart{SourceFile: c.SourceFile, Page: c.Page, Section: c.Section, Kind: kind})
	}
	return out
}

// RepairStatus is the coarse result of repairing one chart.
type RepairStatus string

const (
	RepairPatched     RepairStatus = "patched"
	RepairInvalid     RepairStatus = "invalid"
	RepairError       RepairStatus = "error"
	RepairUnavailable RepairStatus = "unavailable"
)

// RepairOutcome records what happened to one flagged chart. Outcome is the
// status, with the rejection reason appended for invalid re-reads, e.g.
// "invalid:all_zero_series".
type RepairOutcome struct {
	FlaggedChart
	Outcome string `json:"outcome"`
	Patched int    `json:"patched_keys,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Status returns the outcome without its reason.
func (o RepairOutcome) Status() RepairStatus {
	s, _, _ := strings.Cut(o.Outcome, ":")
	return RepairStatus(s)
}

// RepairReport lists the repair outcome of every flagged chart.
type RepairReport struct {
	Charts []RepairOutcome `json:"graphs"`
}

type reread struct {
	series Series
	err    error
}

// Repair requests one re-read per flagged chart and overwrites the dataset
// rows of every chart whose re-read passes the validity filter. Rows of other
// charts are left untouched and locations are harmonized afterwards. Failed
// re-reads keep the consensus values and are reported, never returned as
// errors. Runs supply the prior readings quoted in each request.
func (r *Reconciler) Repair(ctx context.Context, d Dataset, entries []DisagreementEntry, runs []RunMap, rr Rereader) (Dataset, RepairReport, []Rejection) {
	flagged := FlaggedCharts(entries)
	report := RepairReport{Charts: make([]RepairOutcome, 0, len(flagged))}
	if len(flagged) == 0 {
		return d, report, nil
	}

	results := make([]reread, len(flagged))
	var g errgroup.Group
	g.SetLimit(r.workers)
	for i, fc := range flagged {
		g.Go(func() error {
			req := BuildRepairRequest(fc, PriorSeries(fc.Chart(), runs))
			s, err := rr.Reread(ctx, req)
			results[i] = reread{series: s, err: err}
			return nil
		})
	}
	_ = g.Wait()

	patched := d.Clone()
	var rejections []Rejection
	for i, fc := range flagged {
		out := RepairOutcome{FlaggedChart: fc}
		res := results[i]
		switch {
		case errors.Is(res.err, ErrNoReread):
			out.Outcome = string(RepairUnavailable)
		case res.err != nil:
			out.Outcome = string(RepairError)
			out.Error = res.err.Error()
		default:
			series, reason := ValidateSeries(fc.Kind, res.series)
			if reason != "" {
				out.Outcome = string(RepairInvalid) + ":" + string(reason)
				rejections = append(rejections, Rejection{Chart: fc.Chart(), Kind: fc.Kind, Reason: reason})
				break
			}
			records, err := SeriesToRecords(fc.SourceFile, fc.Page, series.Location, fc.Kind, series)
			if err != nil {
				out.Outcome = string(RepairError)
				out.Error = err.Error()
				break
			}
			for _, rec := range records {
				if v, ok := rec.Value.Float(); ok {
					rec.Value = Numeric(Quantize(rec.Key.Section, rec.Key.MeasurementType, v))
				}
				patched[rec.Key] = rec
			}
			out.Outcome = string(RepairPatched)
			out.Patched = len(records)
		}
		report.Charts = append(report.Charts, out)
	}
	return r.Harmonize(patched), report, rejections
}

// StaticRereader serves re-reads from a fixed set of chart readings, such as
// the repair series embedded in a job or loaded from a file.
type StaticRereader struct {
	series map[ChartKey]Series
}

// NewStaticRereader indexes readings by chart. A later reading of the same
// chart wins.
func NewStaticRereader(readings []ChartReading) *StaticRereader {
	m := make(map[ChartKey]Series, len(readings))
	for _, c := range readings {
		m[c.Chart()] = c.Series
	}
	return &StaticRereader{series: m}
}

// Reread returns the stored series for the chart or ErrNoReread.
func (s *StaticRereader) Reread(_ context.Context, req RepairRequest) (Series, error) {
	series, ok := s.series[req.Chart]
	if !ok {
		return Series{}, ErrNoReread
	}
	return series, nil
}

// Len returns the number of stored charts.
func (s *StaticRereader) Len() int { return len(s.series) }
