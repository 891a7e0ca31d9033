package domain

import "fmt"

// ChartReading is one recognition pass over one chart as delivered by an
// extraction run.
type ChartReading struct {
	SourceFile string `json:"source_file"`
	Page       int    `json:"page"`
	Kind       Kind   `json:"kind"`
	Series     Series `json:"series"`
}

// Chart returns the chart this reading belongs to.
func (c ChartReading) Chart() ChartKey {
	return ChartKey{SourceFile: c.SourceFile, Page: c.Page, Section: c.Kind.Section()}
}

// RunPayload is every chart reading produced by one extraction run.
type RunPayload struct {
	Run    int            `json:"run"`
	Charts []ChartReading `json:"charts"`
}

// BuildRunMap validates each chart reading and expands the valid ones into a
// RunMap. Rejected series are returned, not dropped. A later reading of the
// same chart replaces an earlier one key by key.
func BuildRunMap(charts []ChartReading) (RunMap, []Rejection, error) {
	run := make(RunMap)
	var rejections []Rejection
	for _, c := range charts {
		if c.Kind.Section() == "" {
			return nil, nil, fmt.Errorf("%s page %d: %w: %q", c.SourceFile, c.Page, ErrUnknownKind, c.Kind)
		}
		series, reason := ValidateSeries(c.Kind, c.Series)
		if reason != "" {
			rejections = append(rejections, Rejection{Chart: c.Chart(), Kind: c.Kind, Reason: reason})
			continue
		}
		records, err := SeriesToRecords(c.SourceFile, c.Page, series.Location, c.Kind, series)
		if err != nil {
			return nil, nil, err
		}
		for _, rec := range records {
			run[rec.Key] = rec
		}
	}
	return run, rejections, nil
}

// PriorSeries rebuilds the series each run produced for a chart, skipping
// runs that have none.
func PriorSeries(chart ChartKey, runs []RunMap) []Series {
	var out []Series
	for _, run := range runs {
		if s, ok := SeriesFromRecords(chart, run); ok {
			out = append(out, s)
		}
	}
	return out
}
