package pipeline_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/couchcryptid/chart-consensus/internal/domain"
	"github.com/couchcryptid/chart-consensus/internal/pipeline"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSource = "forecast.pdf"

func f64(v float64) *float64 { return &v }

// windReading builds a 24-hour wind chart reading with a constant speed,
// overriding the given hours.
func windReading(speed float64, overrides map[int]float64) domain.ChartReading {
	s := domain.Series{Location: "Cairn Gorm (1245 metres)"}
	for h := range domain.HoursPerSeries {
		v := speed
		if o, ok := overrides[h]; ok {
			v = o
		}
		s.Hours = append(s.Hours, domain.Hour{
			HourIndex:     h,
			WindSpeedMph:  f64(v),
			WindGustMph:   f64(v + 5),
			WindDirection: "W",
		})
	}
	return domain.ChartReading{SourceFile: testSource, Page: 1, Kind: domain.KindWind, Series: s}
}

func jobOf(readings ...domain.ChartReading) domain.Job {
	job := domain.Job{ID: "job"}
	for i, r := range readings {
		job.Runs = append(job.Runs, domain.RunPayload{Run: i + 1, Charts: []domain.ChartReading{r}})
	}
	return job
}

type fixedRereader struct {
	series domain.Series
	err    error
	calls  int
}

func (f *fixedRereader) Reread(context.Context, domain.RepairRequest) (domain.Series, error) {
	f.calls++
	return f.series, f.err
}

func TestEngine_RunJob_AgreeingRunsSkipRepair(t *testing.T) {
	rr := &fixedRereader{}
	engine := pipeline.NewEngine(domain.NewReconciler(), slog.Default(), newTestMetrics(), pipeline.WithRereader(rr))

	res, err := engine.RunJob(context.Background(), jobOf(windReading(12, nil), windReading(13, nil)))
	require.NoError(t, err)

	assert.Empty(t, res.Report.Disagreements)
	assert.Empty(t, res.Report.FlaggedCharts)
	assert.Nil(t, res.Report.Repair)
	assert.Zero(t, rr.calls)
	assert.Len(t, res.Rows, 3*domain.HoursPerSeries)
}

func TestEngine_RunJob_FallbackRereader(t *testing.T) {
	rr := &fixedRereader{series: windReading(20, nil).Series}
	engine := pipeline.NewEngine(domain.NewReconciler(), slog.Default(), newTestMetrics(), pipeline.WithRereader(rr))

	job := jobOf(windReading(12, nil), windReading(12, map[int]float64{7: 30}))
	res, err := engine.RunJob(context.Background(), job)
	require.NoError(t, err)

	assert.Equal(t, 1, rr.calls)
	require.NotNil(t, res.Report.Repair)
	assert.Equal(t, map[domain.RepairStatus]int{domain.RepairPatched: 1}, res.Report.RepairCounts())
	for _, row := range res.Rows {
		if row.Key.MeasurementType == domain.TypeSpeed {
			v, _ := row.Value.Float()
			assert.InDelta(t, 20.0, v, 1e-9)
		}
	}
}

func TestEngine_RunJob_EmbeddedRepairWins(t *testing.T) {
	fallback := &fixedRereader{err: errors.New("should not be called")}
	engine := pipeline.NewEngine(domain.NewReconciler(), slog.Default(), newTestMetrics(), pipeline.WithRereader(fallback))

	job := jobOf(windReading(12, nil), windReading(12, map[int]float64{7: 30}))
	job.Repair = []domain.ChartReading{windReading(14, nil)}

	res, err := engine.RunJob(context.Background(), job)
	require.NoError(t, err)

	assert.Zero(t, fallback.calls)
	assert.Equal(t, map[domain.RepairStatus]int{domain.RepairPatched: 1}, res.Report.RepairCounts())
}

func TestEngine_RunJob_InvalidRereadKeepsConsensus(t *testing.T) {
	rr := &fixedRereader{series: domain.Series{Location: "Cairn Gorm (1245 metres)"}}
	engine := pipeline.NewEngine(domain.NewReconciler(), slog.Default(), newTestMetrics(), pipeline.WithRereader(rr))

	res, err := engine.RunJob(context.Background(), jobOf(windReading(12, nil), windReading(12, map[int]float64{7: 30})))
	require.NoError(t, err)

	require.NotNil(t, res.Report.Repair)
	require.Len(t, res.Report.Repair.Charts, 1)
	assert.Equal(t, "invalid:empty_hours", res.Report.Repair.Charts[0].Outcome)

	want := []domain.RejectionSummary{
		{Run: 1, Reasons: map[domain.RejectReason]int{}},
		{Run: 2, Reasons: map[domain.RejectReason]int{}},
		{Run: domain.RerunID, TotalInvalid: 1, Reasons: map[domain.RejectReason]int{domain.RejectEmptyHours: 1}},
	}
	if diff := cmp.Diff(want, res.Report.InvalidRuns); diff != "" {
		t.Fatalf("invalid runs mismatch (-want +got):\n%s", diff)
	}

	// Hour 7 keeps the median of 12 and 30.
	for _, row := range res.Rows {
		if row.Key.MeasurementType == domain.TypeSpeed && row.Key.HourIndex == 7 {
			v, _ := row.Value.Float()
			assert.InDelta(t, 21.0, v, 1e-9)
		}
	}
}

func TestEngine_RunJob_NoRepairSource(t *testing.T) {
	engine := pipeline.NewEngine(domain.NewReconciler(), slog.Default(), newTestMetrics())

	res, err := engine.RunJob(context.Background(), jobOf(windReading(12, nil), windReading(12, map[int]float64{7: 30})))
	require.NoError(t, err)

	assert.Len(t, res.Report.FlaggedCharts, 1)
	assert.Nil(t, res.Report.Repair)
}

func TestEngine_RunJob_RunCountCoversMissingRuns(t *testing.T) {
	engine := pipeline.NewEngine(domain.NewReconciler(), slog.Default(), newTestMetrics())

	job := jobOf(windReading(12, nil), windReading(12, nil))
	job.RunCount = 3

	res, err := engine.RunJob(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Report.RunCount)
	assert.Len(t, res.Report.InvalidRuns, 3)

	require.Len(t, res.Report.Disagreements, 3*domain.HoursPerSeries)
	for _, entry := range res.Report.Disagreements {
		require.Len(t, entry.Issues, 1, entry.Key)
		assert.Equal(t, domain.IssueMissingRuns, entry.Issues[0].Reason)
		assert.Equal(t, []int{2}, entry.Issues[0].Runs)
	}
	assert.Len(t, res.Report.FlaggedCharts, 1)

	for _, row := range res.Rows {
		if row.Key.MeasurementType == domain.TypeSpeed {
			v, ok := row.Value.Float()
			require.True(t, ok)
			assert.Equal(t, 12.0, v)
		}
	}
}

func TestEngine_Consolidate_SourceRuns(t *testing.T) {
	engine := pipeline.NewEngine(domain.NewReconciler(), slog.Default(), newTestMetrics())

	set, err := pipeline.BuildRunSet([]domain.RunPayload{
		{Run: 1, Charts: []domain.ChartReading{windReading(12, nil)}},
		{Run: 2, Charts: []domain.ChartReading{windReading(12, nil)}},
	})
	require.NoError(t, err)
	set.SourceRuns = []string{"run1.csv", "run2.csv"}

	dataset, report := engine.Consolidate(context.Background(), set, nil)
	assert.Len(t, dataset, 3*domain.HoursPerSeries)
	assert.Equal(t, 2, report.RunCount)
	assert.Equal(t, []string{"run1.csv", "run2.csv"}, report.SourceRuns)
	assert.Len(t, report.InvalidRuns, 2)
}
