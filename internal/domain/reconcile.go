package domain

import (
	"slices"

	"golang.org/x/sync/errgroup"
)

// spreadEpsilon absorbs floating-point noise when comparing a spread
// against its tolerance.
const spreadEpsilon = 1e-6

// Reconciler merges independent runs into one consensus dataset. It is
// immutable after construction and safe for concurrent use.
type Reconciler struct {
	tolerances ToleranceTable
	match      TextMatch
	workers    int
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithTolerances replaces the built-in tolerance table.
func WithTolerances(t ToleranceTable) Option {
	return func(r *Reconciler) { r.tolerances = t }
}

// WithTextMatch sets how strictly text values and locations are compared.
func WithTextMatch(m TextMatch) Option {
	return func(r *Reconciler) { r.match = m }
}

// WithWorkers shards per-key reconciliation across n goroutines. Values
// below 1 mean 1.
func WithWorkers(n int) Option {
	return func(r *Reconciler) { r.workers = max(n, 1) }
}

// NewReconciler returns a Reconciler using the built-in tolerances unless
// overridden.
func NewReconciler(opts ...Option) *Reconciler {
	def, _ := NewToleranceTable(DefaultTolerance, DefaultTolerances())
	r := &Reconciler{tolerances: def, match: TextMatchExact, workers: 1}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Tolerances returns the table the reconciler resolves spreads against.
func (r *Reconciler) Tolerances() ToleranceTable { return r.tolerances }

// TextMatch returns the configured text strictness.
func (r *Reconciler) TextMatch() TextMatch { return r.match }

type keyResult struct {
	row   Record
	entry *DisagreementEntry
}

// Reconcile merges the runs into one row per key present in any run and
// lists the disagreements found, in key order. The returned slice is never
// nil. Locations on the returned rows are per key; run Harmonize afterwards
// to settle one location per chart.
func (r *Reconciler) Reconcile(runs []RunMap) (Dataset, []DisagreementEntry) {
	keys := unionKeys(runs)
	results := make([]keyResult, len(keys))

	var g errgroup.Group
	for _, span := range shards(len(keys), r.workers) {
		g.Go(func() error {
			for i := span[0]; i < span[1]; i++ {
				results[i] = r.reconcileKey(keys[i], runs)
			}
			return nil
		})
	}
	_ = g.Wait()

	final := make(Dataset, len(keys))
	entries := make([]DisagreementEntry, 0)
	for i, k := range keys {
		final[k] = results[i].row
		if results[i].entry != nil {
			entries = append(entries, *results[i].entry)
		}
	}
	return final, entries
}

// shards splits [0,n) into at most workers contiguous spans.
func shards(n, workers int) [][2]int {
	if n == 0 {
		return nil
	}
	workers = min(max(workers, 1), n)
	size := (n + workers - 1) / workers
	spans := make([][2]int, 0, workers)
	for lo := 0; lo < n; lo += size {
		spans = append(spans, [2]int{lo, min(lo+size, n)})
	}
	return spans
}

func (r *Reconciler) reconcileKey(key DataPointKey, runs []RunMap) keyResult {
	var (
		available   []Record
		missing     []int
		locations   = newTally(r.match)
		texts       = newTally(r.match)
		textRuns    []int
		numbers     []float64
		numericRuns []int
	)
	for i, run := range runs {
		rec, ok := run[key]
		if !ok {
			missing = append(missing, i)
			continue
		}
		available = append(available, rec)
		if loc := NormalizeLocation(rec.Location); loc != "" {
			locations.add(loc)
		}
		switch rec.Value.Kind() {
		case ReadingText:
			s, _ := rec.Value.Str()
			if t := NormalizeCategory(key.Section, key.MeasurementType, s); t != "" {
				texts.add(t)
				textRuns = append(textRuns, i)
			}
		case ReadingNumeric:
			v, _ := rec.Value.Float()
			numbers = append(numbers, v)
			numericRuns = append(numericRuns, i)
		}
	}

	var issues []Issue
	if len(missing) > 0 {
		issues = append(issues, Issue{Reason: IssueMissingRuns, Runs: missing})
	}
	if locations.distinct() > 1 {
		issues = append(issues, Issue{Reason: IssueLocationMismatch, Locations: locations.values()})
	}

	row := available[0]
	row.Location = locations.mode()

	switch {
	case texts.distinct() > 0:
		row.Value = Text(texts.mode())
		if texts.distinct() > 1 {
			issues = append(issues, Issue{Reason: IssueTextMismatch, Texts: texts.values(), Runs: textRuns})
		}
	case len(numbers) > 0:
		row.Value = Numeric(Quantize(key.Section, key.MeasurementType, median(numbers)))
		if len(numbers) >= 2 {
			tol := r.tolerances.Resolve(key.Section, key.MeasurementType, key.Measurement)
			spread := slices.Max(numbers) - slices.Min(numbers)
			if spread > tol+spreadEpsilon {
				issues = append(issues, Issue{
					Reason:    IssueNumericVariation,
					Numbers:   numbers,
					Runs:      numericRuns,
					Tolerance: tol,
					Spread:    spread,
				})
			}
		}
	default:
		// Keep whatever the first run carried, raw cell included. Blank text
		// normalizes to nothing.
		if row.Value.Kind() == ReadingText {
			row.Value = Absent()
		}
		issues = append(issues, Issue{Reason: IssueMissingValues})
	}

	res := keyResult{row: row}
	if len(issues) > 0 {
		res.entry = &DisagreementEntry{Key: key, Graph: key.Chart(), Issues: issues}
	}
	return res
}

// median of a non-empty slice; the input is not reordered.
func median(vs []float64) float64 {
	s := slices.Clone(vs)
	slices.Sort(s)
	n := len(s)
	if n%2 == 1 {
		return s[n/2]
	}
	return (s[n/2-1] + s[n/2]) / 2
}

// tally counts values for a mode vote. Values that compare equal under the
// text match share a slot displayed with their first spelling; ties go to
// the earliest slot.
type tally struct {
	match   TextMatch
	order   []string
	display map[string]string
	counts  map[string]int
}

func newTally(m TextMatch) *tally {
	return &tally{match: m, display: make(map[string]string), counts: make(map[string]int)}
}

func (t *tally) add(v string) {
	k := t.match.key(v)
	if _, ok := t.counts[k]; !ok {
		t.order = append(t.order, k)
		t.display[k] = v
	}
	t.counts[k]++
}

func (t *tally) distinct() int { return len(t.order) }

// mode returns the most frequent value, or "" for an empty tally.
func (t *tally) mode() string {
	best, bestN := "", 0
	for _, k := range t.order {
		if n := t.counts[k]; n > bestN {
			best, bestN = k, n
		}
	}
	return t.display[best]
}

// values returns the distinct values in encounter order.
func (t *tally) values() []string {
	out := make([]string, len(t.order))
	for i, k := range t.order {
		out[i] = t.display[k]
	}
	return out
}
