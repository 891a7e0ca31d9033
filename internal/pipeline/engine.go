package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/chart-consensus/internal/domain"
	"github.com/couchcryptid/chart-consensus/internal/observability"
)

// RunSet is a complete snapshot of the runs for one consensus pass.
// Rejections, when present, is parallel to Maps.
type RunSet struct {
	Maps       []domain.RunMap
	Rejections [][]domain.Rejection
	SourceRuns []string
}

// Engine runs the consensus stages in order: reconcile, harmonize, report,
// and repair when any chart is flagged.
type Engine struct {
	reconciler    *domain.Reconciler
	rereader      domain.Rereader
	repairEnabled bool
	logger        *slog.Logger
	metrics       *observability.Metrics
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithRereader sets the fallback repair source used when a job carries no
// repair series of its own.
func WithRereader(rr domain.Rereader) EngineOption {
	return func(e *Engine) { e.rereader = rr }
}

// WithRepair turns the repair loop on or off. It is on by default.
func WithRepair(enabled bool) EngineOption {
	return func(e *Engine) { e.repairEnabled = enabled }
}

// NewEngine creates an Engine around a configured reconciler.
func NewEngine(rc *domain.Reconciler, logger *slog.Logger, metrics *observability.Metrics, opts ...EngineOption) *Engine {
	e := &Engine{
		reconciler:    rc,
		repairEnabled: true,
		logger:        logger,
		metrics:       metrics,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// BuildRunSet validates and expands each run's chart readings.
func BuildRunSet(runs []domain.RunPayload) (RunSet, error) {
	set := RunSet{
		Maps:       make([]domain.RunMap, 0, len(runs)),
		Rejections: make([][]domain.Rejection, 0, len(runs)),
	}
	for i, run := range runs {
		m, rejected, err := domain.BuildRunMap(run.Charts)
		if err != nil {
			return RunSet{}, fmt.Errorf("run %d: %w", i+1, err)
		}
		set.Maps = append(set.Maps, m)
		set.Rejections = append(set.Rejections, rejected)
	}
	return set, nil
}

// RunJob reconciles one job. The job's embedded repair series, when present,
// take precedence over the engine's rereader. A job declaring more runs than
// it carries is reconciled as if the missing runs read nothing.
func (e *Engine) RunJob(ctx context.Context, job domain.Job) (domain.JobResult, error) {
	set, err := BuildRunSet(job.Runs)
	if err != nil {
		return domain.JobResult{}, fmt.Errorf("job %q: %w", job.ID, err)
	}

	// Declared runs that never arrived vote as empty maps so every key
	// reports them under missing_runs.
	for len(set.Maps) < job.RunCount {
		set.Maps = append(set.Maps, domain.RunMap{})
		set.Rejections = append(set.Rejections, nil)
	}

	rr := e.rereader
	if len(job.Repair) > 0 {
		rr = domain.NewStaticRereader(job.Repair)
	}

	dataset, report := e.Consolidate(ctx, set, rr)

	return domain.JobResult{
		JobID:  job.ID,
		Rows:   dataset.Rows(),
		Report: report,
	}, nil
}

// Consolidate produces the final dataset and report for a run set. A nil
// rereader, or a disabled repair loop, leaves flagged charts at their
// consensus values. Data anomalies never fail a pass.
func (e *Engine) Consolidate(ctx context.Context, set RunSet, rr domain.Rereader) (domain.Dataset, domain.Report) {
	start := time.Now()
	defer func() { e.metrics.JobDuration.Observe(time.Since(start).Seconds()) }()

	var invalid []domain.RejectionSummary
	for i := range set.Maps {
		var rejected []domain.Rejection
		if i < len(set.Rejections) {
			rejected = set.Rejections[i]
		}
		invalid = append(invalid, e.recordRejections(domain.RunIDForIndex(i), rejected))
	}

	dataset, entries := e.reconciler.Reconcile(set.Maps)
	dataset = e.reconciler.Harmonize(dataset)
	e.metrics.KeysReconciled.Add(float64(len(dataset)))

	report := domain.NewReport(len(set.Maps), entries)
	report.SourceRuns = set.SourceRuns
	for reason, n := range report.IssueCounts() {
		e.metrics.Disagreements.WithLabelValues(string(reason)).Add(float64(n))
	}
	if len(entries) > 0 {
		e.logger.Warn("runs disagree",
			"disagreements", len(entries),
			"flagged_charts", len(report.FlaggedCharts),
		)
	}

	if len(report.FlaggedCharts) > 0 && e.repairEnabled {
		if rr == nil {
			e.logger.Info("no repair source, keeping consensus values", "flagged_charts", len(report.FlaggedCharts))
		} else {
			var repair domain.RepairReport
			var rejected []domain.Rejection
			dataset, repair, rejected = e.reconciler.Repair(ctx, dataset, entries, set.Maps, rr)
			report.Repair = &repair
			e.recordRepairs(repair)
			if len(rejected) > 0 {
				invalid = append(invalid, e.recordRejections(domain.RerunID, rejected))
			}
		}
	}

	report.InvalidRuns = invalid
	return dataset, report
}

func (e *Engine) recordRejections(run domain.RunID, rejected []domain.Rejection) domain.RejectionSummary {
	for _, r := range rejected {
		e.metrics.SeriesRejected.WithLabelValues(string(r.Reason)).Inc()
		e.logger.Warn("series rejected",
			"run", run.String(),
			"source_file", r.Chart.SourceFile,
			"page", r.Chart.Page,
			"section", r.Chart.Section,
			"kind", r.Kind,
			"reason", r.Reason,
		)
	}
	return domain.SummarizeRejections(run, rejected)
}

func (e *Engine) recordRepairs(repair domain.RepairReport) {
	for _, c := range repair.Charts {
		status := c.Status()
		e.metrics.Repairs.WithLabelValues(string(status)).Inc()
		if status == domain.RepairPatched {
			e.logger.Info("chart repaired",
				"source_file", c.SourceFile,
				"page", c.Page,
				"section", c.Section,
				"patched_keys", c.Patched,
			)
			continue
		}
		e.logger.Warn("chart repair failed",
			"source_file", c.SourceFile,
			"page", c.Page,
			"section", c.Section,
			"kind", c.Kind,
			"outcome", c.Outcome,
			"error", c.Error,
		)
	}
}
