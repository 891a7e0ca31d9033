package domain

import "slices"

// Harmonize returns a copy of d in which every row of a chart carries the
// chart's most frequent normalized location, or "" when no row of the chart
// has one. Votes are counted in key order so ties are stable. Harmonizing a
// harmonized dataset changes nothing.
func Harmonize(d Dataset, match TextMatch) Dataset {
	keys := make([]DataPointKey, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, DataPointKey.Compare)

	votes := make(map[ChartKey]*tally)
	for _, k := range keys {
		loc := NormalizeLocation(d[k].Location)
		if loc == "" {
			continue
		}
		t, ok := votes[k.Chart()]
		if !ok {
			t = newTally(match)
			votes[k.Chart()] = t
		}
		t.add(loc)
	}

	out := make(Dataset, len(d))
	for _, k := range keys {
		row := d[k]
		row.Location = ""
		if t, ok := votes[k.Chart()]; ok {
			row.Location = t.mode()
		}
		out[k] = row
	}
	return out
}

// Harmonize settles one location per chart using the reconciler's text match.
func (r *Reconciler) Harmonize(d Dataset) Dataset { return Harmonize(d, r.match) }
