// Package file reads and writes the on-disk artifacts of an offline
// consensus pass: per-run CSVs, the final dataset CSV, the report JSON and
// JSONL files of re-read series.
package file

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/couchcryptid/chart-consensus/internal/domain"
)

// Columns is the dataset column order, shared by run CSVs and the final
// dataset.
var Columns = []string{
	"SourceFile",
	"Page",
	"Location",
	"Section",
	"Measurement",
	"MeasurementType",
	"Units",
	"HourLabel",
	"HourIndex",
	"ValueNumeric",
	"ValueText",
	"Notes",
}

var requiredColumns = []string{"SourceFile", "Page", "Section", "Measurement", "MeasurementType", "HourIndex"}

// zeroEpsilon is the magnitude under which a reading counts as zero.
const zeroEpsilon = 1e-9

// csvRow is a parsed CSV row with field values keyed by header name.
type csvRow struct {
	line   int
	fields map[string]string
}

// groupKey identifies one measurement series on one chart across all hours.
type groupKey struct {
	sourceFile, page, section, measurement, measurementType string
}

func (r csvRow) group() groupKey {
	return groupKey{
		sourceFile:      r.fields["SourceFile"],
		page:            r.fields["Page"],
		section:         r.fields["Section"],
		measurement:     r.fields["Measurement"],
		measurementType: r.fields["MeasurementType"],
	}
}

// LoadRunFile reads one run's CSV from path.
func LoadRunFile(path string) (domain.RunMap, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open run csv: %w", err)
	}
	defer f.Close()

	run, err := LoadRunCSV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return run, nil
}

// LoadRunCSV reads one run's rows into a RunMap. Extra columns are ignored.
// Locations and category text are normalized on load. A measurement series
// whose numeric values are all zero is dropped as a failed read, and a later
// row for the same key replaces an earlier one.
func LoadRunCSV(r io.Reader) (domain.RunMap, error) {
	rows, err := readRows(r)
	if err != nil {
		return nil, err
	}

	dropped := zeroGroups(rows)
	run := make(domain.RunMap, len(rows))
	for _, row := range rows {
		if _, ok := dropped[row.group()]; ok {
			continue
		}
		rec, err := toRecord(row)
		if err != nil {
			return nil, err
		}
		run[rec.Key] = rec
	}
	return run, nil
}

func readRows(r io.Reader) ([]csvRow, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("empty csv")
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	for i, h := range header {
		header[i] = strings.TrimPrefix(strings.TrimSpace(h), "\ufeff")
	}
	for _, col := range requiredColumns {
		if !containsColumn(header, col) {
			return nil, fmt.Errorf("missing column %q", col)
		}
	}

	var rows []csvRow
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		fields := make(map[string]string, len(header))
		for j, h := range header {
			if j < len(rec) {
				fields[h] = rec[j]
			}
		}
		rows = append(rows, csvRow{line: line, fields: fields})
	}
	return rows, nil
}

func containsColumn(header []string, col string) bool {
	for _, h := range header {
		if h == col {
			return true
		}
	}
	return false
}

// zeroGroups returns the groups that carry at least one numeric value and
// no value different from zero.
func zeroGroups(rows []csvRow) map[groupKey]struct{} {
	nonZero := make(map[groupKey]bool)
	for _, row := range rows {
		cell := strings.TrimSpace(row.fields["ValueNumeric"])
		if cell == "" {
			continue
		}
		v, err := strconv.ParseFloat(cell, 64)
		if err != nil {
			continue
		}
		g := row.group()
		nonZero[g] = nonZero[g] || math.Abs(v) >= zeroEpsilon
	}

	out := make(map[groupKey]struct{})
	for g, nz := range nonZero {
		if !nz {
			out[g] = struct{}{}
		}
	}
	return out
}

func toRecord(row csvRow) (domain.Record, error) {
	f := row.fields
	page, err := strconv.Atoi(strings.TrimSpace(f["Page"]))
	if err != nil {
		return domain.Record{}, fmt.Errorf("line %d: invalid Page %q", row.line, f["Page"])
	}
	hour, err := strconv.Atoi(strings.TrimSpace(f["HourIndex"]))
	if err != nil {
		return domain.Record{}, fmt.Errorf("line %d: invalid HourIndex %q", row.line, f["HourIndex"])
	}

	key := domain.DataPointKey{
		SourceFile:      f["SourceFile"],
		Page:            page,
		Section:         f["Section"],
		Measurement:     f["Measurement"],
		MeasurementType: f["MeasurementType"],
		HourIndex:       hour,
		HourLabel:       f["HourLabel"],
	}
	text := domain.NormalizeCategory(key.Section, key.MeasurementType, f["ValueText"])
	return domain.Record{
		Key:      key,
		Location: domain.NormalizeLocation(f["Location"]),
		Value:    domain.ParseReading(strings.TrimSpace(f["ValueNumeric"]), text),
		Units:    f["Units"],
		Notes:    f["Notes"],
	}, nil
}
