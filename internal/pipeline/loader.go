package pipeline

import (
	"context"
	"fmt"

	"github.com/couchcryptid/chart-consensus/internal/domain"
)

// FanoutLoader writes every batch to each of its loaders in order and stops
// at the first failure. Offsets are only committed once all sinks accept
// the batch, so a retried batch may be delivered twice to earlier sinks.
type FanoutLoader struct {
	loaders []BatchLoader
}

// NewFanoutLoader combines loaders; nil entries are skipped.
func NewFanoutLoader(loaders ...BatchLoader) *FanoutLoader {
	f := &FanoutLoader{}
	for _, l := range loaders {
		if l != nil {
			f.loaders = append(f.loaders, l)
		}
	}
	return f
}

func (f *FanoutLoader) LoadBatch(ctx context.Context, events []domain.OutputEvent) error {
	for i, l := range f.loaders {
		if err := l.LoadBatch(ctx, events); err != nil {
			return fmt.Errorf("sink %d: %w", i, err)
		}
	}
	return nil
}
