package domain

import (
	"cmp"
	"slices"
)

// DataPointKey identifies one hourly reading of one physical quantity on one chart.
type DataPointKey struct {
	SourceFile      string `json:"SourceFile"`
	Page            int    `json:"Page"`
	Section         string `json:"Section"`
	Measurement     string `json:"Measurement"`
	MeasurementType string `json:"MeasurementType"`
	HourIndex       int    `json:"HourIndex"`
	HourLabel       string `json:"HourLabel"`
}

// ChartKey identifies one physical chart. Every hour and measurement type
// plotted on the chart shares it.
type ChartKey struct {
	SourceFile string `json:"SourceFile"`
	Page       int    `json:"Page"`
	Section    string `json:"Section"`
}

// Chart returns the chart that owns k.
func (k DataPointKey) Chart() ChartKey {
	return ChartKey{SourceFile: k.SourceFile, Page: k.Page, Section: k.Section}
}

// Compare orders keys lexicographically on the full tuple.
func (k DataPointKey) Compare(o DataPointKey) int {
	return cmp.Or(
		cmp.Compare(k.SourceFile, o.SourceFile),
		cmp.Compare(k.Page, o.Page),
		cmp.Compare(k.Section, o.Section),
		cmp.Compare(k.Measurement, o.Measurement),
		cmp.Compare(k.MeasurementType, o.MeasurementType),
		cmp.Compare(k.HourIndex, o.HourIndex),
		cmp.Compare(k.HourLabel, o.HourLabel),
	)
}

// Compare orders charts lexicographically on the full tuple.
func (c ChartKey) Compare(o ChartKey) int {
	return cmp.Or(
		cmp.Compare(c.SourceFile, o.SourceFile),
		cmp.Compare(c.Page, o.Page),
		cmp.Compare(c.Section, o.Section),
	)
}

// compareOutput is the dataset output order: (SourceFile, Page, Section,
// HourIndex, MeasurementType). The remaining fields break ties so the order
// is total.
func compareOutput(a, b DataPointKey) int {
	return cmp.Or(
		cmp.Compare(a.SourceFile, b.SourceFile),
		cmp.Compare(a.Page, b.Page),
		cmp.Compare(a.Section, b.Section),
		cmp.Compare(a.HourIndex, b.HourIndex),
		cmp.Compare(a.MeasurementType, b.MeasurementType),
		cmp.Compare(a.Measurement, b.Measurement),
		cmp.Compare(a.HourLabel, b.HourLabel),
	)
}

// unionKeys returns every key present in at least one run, sorted.
func unionKeys(runs []RunMap) []DataPointKey {
	seen := make(map[DataPointKey]struct{})
	for _, run := range runs {
		for k := range run {
			seen[k] = struct{}{}
		}
	}
	keys := make([]DataPointKey, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, DataPointKey.Compare)
	return keys
}

func sortOutput(keys []DataPointKey) {
	slices.SortFunc(keys, compareOutput)
}
