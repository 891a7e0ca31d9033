package domain

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// RawEvent represents an unprocessed message from the source topic.
type RawEvent struct {
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Commit    func(ctx context.Context) error
}

// Job is one complete reconciliation request: every run's chart readings
// plus, optionally, re-read series to use as the repair source.
type Job struct {
	ID       string         `json:"job_id"`
	RunCount int            `json:"run_count"`
	Runs     []RunPayload   `json:"runs"`
	Repair   []ChartReading `json:"repair,omitempty"`
}

// ParseJob decodes a job message. Jobs must carry at least one run, and
// every chart kind must be known. A missing job_id falls back to the
// message key; a missing run_count to the number of runs.
func ParseJob(raw RawEvent) (Job, error) {
	var job Job
	if err := json.Unmarshal(raw.Value, &job); err != nil {
		return Job{}, fmt.Errorf("parse job: %w", err)
	}
	if job.ID == "" {
		job.ID = string(raw.Key)
	}
	if len(job.Runs) == 0 {
		return Job{}, fmt.Errorf("parse job %q: %w", job.ID, ErrNoRuns)
	}
	if job.RunCount == 0 {
		job.RunCount = len(job.Runs)
	}
	for _, run := range job.Runs {
		if err := checkKinds(run.Charts); err != nil {
			return Job{}, fmt.Errorf("parse job %q run %d: %w", job.ID, run.Run, err)
		}
	}
	if err := checkKinds(job.Repair); err != nil {
		return Job{}, fmt.Errorf("parse job %q repair: %w", job.ID, err)
	}
	return job, nil
}

func checkKinds(charts []ChartReading) error {
	for i := range charts {
		k, err := ParseKind(string(charts[i].Kind))
		if err != nil {
			return err
		}
		charts[i].Kind = k
	}
	return nil
}

// JobResult is the consensus output for one job.
type JobResult struct {
	JobID  string   `json:"job_id"`
	Rows   []Record `json:"rows"`
	Report Report   `json:"report"`
}

// OutputEvent is the serialized form destined for the sink topic. Result is
// kept alongside the bytes for sinks that store it structurally.
type OutputEvent struct {
	Key     []byte
	Value   []byte
	Headers map[string]string
	Result  *JobResult
}

// SerializeResult marshals a result into an OutputEvent keyed by job ID.
func SerializeResult(res JobResult) (OutputEvent, error) {
	data, err := json.Marshal(res)
	if err != nil {
		return OutputEvent{}, fmt.Errorf("serialize job result: %w", err)
	}
	return OutputEvent{
		Key:   []byte(res.JobID),
		Value: data,
		Headers: map[string]string{
			"job_id":        res.JobID,
			"disagreements": strconv.Itoa(len(res.Report.Disagreements)),
			"generated_at":  res.Report.GeneratedAt.Format(time.RFC3339),
		},
		Result: &res,
	}, nil
}
