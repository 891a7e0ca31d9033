package file

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/couchcryptid/chart-consensus/internal/domain"
)

// WriteDataset writes the dataset as CSV in output order.
func WriteDataset(w io.Writer, d domain.Dataset) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, rec := range d.Rows() {
		if err := cw.Write(datasetRow(rec)); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func datasetRow(rec domain.Record) []string {
	return []string{
		rec.Key.SourceFile,
		strconv.Itoa(rec.Key.Page),
		rec.Location,
		rec.Key.Section,
		rec.Key.Measurement,
		rec.Key.MeasurementType,
		rec.Units,
		rec.Key.HourLabel,
		strconv.Itoa(rec.Key.HourIndex),
		rec.Value.NumericCell(),
		rec.Value.TextCell(),
		rec.Notes,
	}
}

// WriteDatasetFile writes the dataset CSV to path, creating parent
// directories as needed.
func WriteDatasetFile(path string, d domain.Dataset) error {
	return writeFile(path, func(w io.Writer) error { return WriteDataset(w, d) })
}

// WriteReport writes the report as indented JSON.
func WriteReport(w io.Writer, report domain.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return nil
}

// WriteReportFile writes the report JSON to path.
func WriteReportFile(path string, report domain.Report) error {
	return writeFile(path, func(w io.Writer) error { return WriteReport(w, report) })
}

func writeFile(path string, write func(io.Writer) error) (err error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close %s: %w", path, cerr)
		}
	}()
	if err := write(f); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

// LoadDatasetFile reads a dataset CSV in file order. Unlike LoadRunFile it
// keeps every row, including duplicates and all-zero series.
func LoadDatasetFile(path string) ([]domain.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset csv: %w", err)
	}
	defer f.Close()

	rows, err := readRows(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	out := make([]domain.Record, 0, len(rows))
	for _, row := range rows {
		rec, err := toRecord(row)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// LoadReportFile reads a report JSON file.
func LoadReportFile(path string) (domain.Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Report{}, fmt.Errorf("read report: %w", err)
	}
	var report domain.Report
	if err := json.Unmarshal(data, &report); err != nil {
		return domain.Report{}, fmt.Errorf("decode report %s: %w", path, err)
	}
	return report, nil
}
