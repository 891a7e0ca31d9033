package pipeline

import (
	"context"

	"github.com/couchcryptid/chart-consensus/internal/domain"
)

// JobTransformer implements Transformer by decoding a job envelope, running
// it through the Engine and serializing the result.
type JobTransformer struct {
	engine *Engine
}

// NewTransformer creates a JobTransformer backed by engine.
func NewTransformer(engine *Engine) *JobTransformer {
	return &JobTransformer{engine: engine}
}

func (t *JobTransformer) Transform(ctx context.Context, raw domain.RawEvent) (domain.OutputEvent, error) {
	job, err := domain.ParseJob(raw)
	if err != nil {
		return domain.OutputEvent{}, err
	}

	res, err := t.engine.RunJob(ctx, job)
	if err != nil {
		return domain.OutputEvent{}, err
	}

	return domain.SerializeResult(res)
}
