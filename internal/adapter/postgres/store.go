package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/chart-consensus/internal/domain"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // postgres driver
)

// rowsPerInsert keeps each multi-row insert under the Postgres bind
// parameter limit.
const rowsPerInsert = 1000

const schema = `
CREATE TABLE IF NOT EXISTS consensus_reports (
	job_id        TEXT PRIMARY KEY,
	run_count     INTEGER NOT NULL,
	generated_at  TIMESTAMPTZ NOT NULL,
	disagreements INTEGER NOT NULL,
	flagged       INTEGER NOT NULL,
	report        JSONB NOT NULL
);

CREATE TABLE IF NOT EXISTS consensus_rows (
	job_id           TEXT NOT NULL REFERENCES consensus_reports (job_id) ON DELETE CASCADE,
	source_file      TEXT NOT NULL,
	page             INTEGER NOT NULL,
	section          TEXT NOT NULL,
	measurement      TEXT NOT NULL,
	measurement_type TEXT NOT NULL,
	hour_index       INTEGER NOT NULL,
	hour_label       TEXT NOT NULL,
	location         TEXT NOT NULL,
	units            TEXT NOT NULL,
	value_numeric    DOUBLE PRECISION,
	value_text       TEXT NOT NULL,
	value_raw        TEXT NOT NULL,
	notes            TEXT NOT NULL,
	PRIMARY KEY (job_id, source_file, page, section, measurement, measurement_type, hour_index, hour_label)
);`

const upsertReportSQL = `
INSERT INTO consensus_reports (job_id, run_count, generated_at, disagreements, flagged, report)
VALUES (:job_id, :run_count, :generated_at, :disagreements, :flagged, :report)
ON CONFLICT (job_id) DO UPDATE SET
	run_count = EXCLUDED.run_count,
	generated_at = EXCLUDED.generated_at,
	disagreements = EXCLUDED.disagreements,
	flagged = EXCLUDED.flagged,
	report = EXCLUDED.report`

const insertRowSQL = `
INSERT INTO consensus_rows (job_id, source_file, page, section, measurement, measurement_type,
	hour_index, hour_label, location, units, value_numeric, value_text, value_raw, notes)
VALUES (:job_id, :source_file, :page, :section, :measurement, :measurement_type,
	:hour_index, :hour_label, :location, :units, :value_numeric, :value_text, :value_raw, :notes)`

// Store persists job results to Postgres. A job's rows are replaced
// wholesale each time its result is written. It implements
// pipeline.BatchLoader.
type Store struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// Open connects to the database at url and verifies the connection.
func Open(ctx context.Context, url string, logger *slog.Logger) (*Store, error) {
	db, err := sqlx.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

// Migrate creates the result tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// LoadBatch writes every event carrying a structured result in a single
// transaction. Events without one are skipped.
func (s *Store) LoadBatch(ctx context.Context, events []domain.OutputEvent) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	stored := 0
	for _, ev := range events {
		if ev.Result == nil {
			continue
		}
		if err := saveResult(ctx, tx, *ev.Result); err != nil {
			return err
		}
		stored++
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	s.logger.Debug("results stored", "jobs", stored)
	return nil
}

func saveResult(ctx context.Context, tx *sqlx.Tx, res domain.JobResult) error {
	report, err := toReportRecord(res)
	if err != nil {
		return err
	}
	if _, err := tx.NamedExecContext(ctx, upsertReportSQL, report); err != nil {
		return fmt.Errorf("upsert report %q: %w", res.JobID, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM consensus_rows WHERE job_id = $1`, res.JobID); err != nil {
		return fmt.Errorf("clear rows %q: %w", res.JobID, err)
	}

	rows := toRowRecords(res.JobID, res.Rows)
	for start := 0; start < len(rows); start += rowsPerInsert {
		chunk := rows[start:min(start+rowsPerInsert, len(rows))]
		if _, err := tx.NamedExecContext(ctx, insertRowSQL, chunk); err != nil {
			return fmt.Errorf("insert rows %q: %w", res.JobID, err)
		}
	}
	return nil
}

// Rows returns the stored dataset for a job in output order.
func (s *Store) Rows(ctx context.Context, jobID string) ([]domain.Record, error) {
	var rows []rowRecord
	err := s.db.SelectContext(ctx, &rows, `
SELECT job_id, source_file, page, section, measurement, measurement_type,
	hour_index, hour_label, location, units, value_numeric, value_text, value_raw, notes
FROM consensus_rows
WHERE job_id = $1
ORDER BY source_file COLLATE "C", page, section COLLATE "C", hour_index,
	measurement_type COLLATE "C", measurement COLLATE "C", hour_label COLLATE "C"`, jobID)
	if err != nil {
		return nil, fmt.Errorf("select rows %q: %w", jobID, err)
	}
	out := make([]domain.Record, len(rows))
	for i, r := range rows {
		out[i] = r.toRecord()
	}
	return out, nil
}

// Report returns the stored report for a job, or sql.ErrNoRows.
func (s *Store) Report(ctx context.Context, jobID string) (domain.Report, error) {
	var data []byte
	if err := s.db.GetContext(ctx, &data, `SELECT report FROM consensus_reports WHERE job_id = $1`, jobID); err != nil {
		return domain.Report{}, fmt.Errorf("get report %q: %w", jobID, err)
	}
	var report domain.Report
	if err := json.Unmarshal(data, &report); err != nil {
		return domain.Report{}, fmt.Errorf("decode report %q: %w", jobID, err)
	}
	return report, nil
}

// CheckReadiness pings the database.
func (s *Store) CheckReadiness(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

type reportRecord struct {
	JobID         string    `db:"job_id"`
	RunCount      int       `db:"run_count"`
	GeneratedAt   time.Time `db:"generated_at"`
	Disagreements int       `db:"disagreements"`
	Flagged       int       `db:"flagged"`
	Report        []byte    `db:"report"`
}

func toReportRecord(res domain.JobResult) (reportRecord, error) {
	data, err := json.Marshal(res.Report)
	if err != nil {
		return reportRecord{}, fmt.Errorf("encode report %q: %w", res.JobID, err)
	}
	return reportRecord{
		JobID:         res.JobID,
		RunCount:      res.Report.RunCount,
		GeneratedAt:   res.Report.GeneratedAt,
		Disagreements: len(res.Report.Disagreements),
		Flagged:       len(res.Report.FlaggedCharts),
		Report:        data,
	}, nil
}

type rowRecord struct {
	JobID           string          `db:"job_id"`
	SourceFile      string          `db:"source_file"`
	Page            int             `db:"page"`
	Section         string          `db:"section"`
	Measurement     string          `db:"measurement"`
	MeasurementType string          `db:"measurement_type"`
	HourIndex       int             `db:"hour_index"`
	HourLabel       string          `db:"hour_label"`
	Location        string          `db:"location"`
	Units           string          `db:"units"`
	ValueNumeric    sql.NullFloat64 `db:"value_numeric"`
	ValueText       string          `db:"value_text"`
	ValueRaw        string          `db:"value_raw"`
	Notes           string          `db:"notes"`
}

func toRowRecords(jobID string, records []domain.Record) []rowRecord {
	out := make([]rowRecord, len(records))
	for i, r := range records {
		row := rowRecord{
			JobID:           jobID,
			SourceFile:      r.Key.SourceFile,
			Page:            r.Key.Page,
			Section:         r.Key.Section,
			Measurement:     r.Key.Measurement,
			MeasurementType: r.Key.MeasurementType,
			HourIndex:       r.Key.HourIndex,
			HourLabel:       r.Key.HourLabel,
			Location:        r.Location,
			Units:           r.Units,
			ValueText:       r.Value.TextCell(),
			ValueRaw:        r.Value.Raw(),
			Notes:           r.Notes,
		}
		if v, ok := r.Value.Float(); ok {
			row.ValueNumeric = sql.NullFloat64{Float64: v, Valid: true}
		}
		out[i] = row
	}
	return out
}

func (r rowRecord) toRecord() domain.Record {
	rec := domain.Record{
		Key: domain.DataPointKey{
			SourceFile:      r.SourceFile,
			Page:            r.Page,
			Section:         r.Section,
			Measurement:     r.Measurement,
			MeasurementType: r.MeasurementType,
			HourIndex:       r.HourIndex,
			HourLabel:       r.HourLabel,
		},
		Location: r.Location,
		Units:    r.Units,
		Notes:    r.Notes,
	}
	switch {
	case r.ValueNumeric.Valid:
		rec.Value = domain.Numeric(r.ValueNumeric.Float64)
	case r.ValueText != "":
		rec.Value = domain.Text(r.ValueText)
	default:
		rec.Value = domain.Unparsed(r.ValueRaw)
	}
	return rec
}
