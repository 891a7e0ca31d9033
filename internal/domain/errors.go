package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidSeries marks a series rejected by the validity filter.
	ErrInvalidSeries = errors.New("invalid series")
	// ErrUnknownKind is returned for a chart kind or section with no mapping.
	ErrUnknownKind = errors.New("unknown chart kind")
	// ErrNoRuns is returned for a job that carries no runs.
	ErrNoRuns = errors.New("job has no runs")
	// ErrNoReread is returned by a Rereader that has nothing for a chart.
	ErrNoReread = errors.New("no re-read available")
)

// SeriesError describes a rejected series. It matches ErrInvalidSeries.
type SeriesError struct {
	Chart  ChartKey
	Kind   Kind
	Reason RejectReason
}

func (e *SeriesError) Error() string {
	return fmt.Sprintf("%s %s page %d: %s", e.Kind, e.Chart.SourceFile, e.Chart.Page, e.Reason)
}

func (e *SeriesError) Is(target error) bool { return target == ErrInvalidSeries }
