// Command validate checks a consensus output against the run CSVs it was
// computed from: every run key reaches the dataset, rows are unique and in
// output order, each chart carries one location, and the report agrees with
// the dataset.
//
// Usage:
//
//	go run ./cmd/validate \
//	  -dataset out/batch_results_recomputed.csv \
//	  -report out/disagreement_report_recomputed.json \
//	  out/run1.csv out/run2.csv out/run3.csv
package main

import (
	"flag"
	"fmt"
	"os"
	"slices"

	"github.com/couchcryptid/chart-consensus/internal/adapter/file"
	"github.com/couchcryptid/chart-consensus/internal/domain"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	datasetPath := flag.String("dataset", "", "path to the consensus dataset CSV")
	reportPath := flag.String("report", "", "path to the disagreement report JSON")
	flag.Parse()

	if *datasetPath == "" || *reportPath == "" || flag.NArg() == 0 {
		flag.Usage()
		os.Exit(1)
	}

	if code := run(*datasetPath, *reportPath, flag.Args()); code != 0 {
		os.Exit(code)
	}
}

func run(datasetPath, reportPath string, runPaths []string) int {
	fmt.Println("=== Chart Consensus Validation ===")
	fmt.Println()

	runs := make([]domain.RunMap, 0, len(runPaths))
	for _, path := range runPaths {
		m, err := file.LoadRunFile(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: load run: %v\n", err)
			return 1
		}
		runs = append(runs, m)
	}

	rows, err := file.LoadDatasetFile(datasetPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load dataset: %v\n", err)
		return 1
	}

	report, err := file.LoadReportFile(reportPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load report: %v\n", err)
		return 1
	}

	phases := []*phase{
		validateKeyCompleteness(runs, rows, report),
		validateOutputOrder(rows),
		validateLocations(rows),
		validateReport(runs, rows, report),
	}

	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Records: %d runs, %d dataset rows, %d disagreements, %d flagged charts\n",
		len(runs), len(rows), len(report.Disagreements), len(report.FlaggedCharts))

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

// patchedCharts returns the charts the repair loop overwrote. Their rows may
// carry keys no run produced.
func patchedCharts(report domain.Report) map[domain.ChartKey]bool {
	out := make(map[domain.ChartKey]bool)
	if report.Repair == nil {
		return out
	}
	for _, c := range report.Repair.Charts {
		if c.Status() == domain.RepairPatched {
			out[c.Chart()] = true
		}
	}
	return out
}

// ── Phase 1: Key Completeness ──
// Every key of every run appears in the dataset, and nothing else does
// unless it belongs to a repaired chart.

func validateKeyCompleteness(runs []domain.RunMap, rows []domain.Record, report domain.Report) *phase {
	p := &phase{name: "Phase 1: Key Completeness (runs vs dataset)"}

	inDataset := make(map[domain.DataPointKey]bool, len(rows))
	for _, r := range rows {
		inDataset[r.Key] = true
	}

	union := make(map[domain.DataPointKey]bool)
	for i, run := range runs {
		for k := range run {
			union[k] = true
			if !inDataset[k] {
				p.errorf("run %d key missing from dataset: %s page %d %s/%s hour %d",
					i+1, k.SourceFile, k.Page, k.Section, k.MeasurementType, k.HourIndex)
			}
		}
	}

	patched := patchedCharts(report)
	for _, r := range rows {
		if !union[r.Key] && !patched[r.Key.Chart()] {
			p.errorf("dataset key not produced by any run: %s page %d %s/%s hour %d",
				r.Key.SourceFile, r.Key.Page, r.Key.Section, r.Key.MeasurementType, r.Key.HourIndex)
		}
	}
	return p
}

// ── Phase 2: Output Order ──
// Rows are unique and sorted by (SourceFile, Page, Section, HourIndex,
// MeasurementType).

func validateOutputOrder(rows []domain.Record) *phase {
	p := &phase{name: "Phase 2: Output Order (unique, sorted)"}

	seen := make(map[domain.DataPointKey]int, len(rows))
	for i, r := range rows {
		if prev, ok := seen[r.Key]; ok {
			p.errorf("row %d duplicates row %d", i+2, prev+2)
		}
		seen[r.Key] = i
	}

	sorted := domain.Dataset{}
	for _, r := range rows {
		sorted[r.Key] = r
	}
	want := sorted.Rows()
	if len(want) != len(rows) {
		return p
	}
	for i := range rows {
		if rows[i].Key != want[i].Key {
			p.errorf("row %d out of order: got %s/%s hour %d, want %s/%s hour %d", i+2,
				rows[i].Key.Section, rows[i].Key.MeasurementType, rows[i].Key.HourIndex,
				want[i].Key.Section, want[i].Key.MeasurementType, want[i].Key.HourIndex)
			break
		}
	}
	return p
}

// ── Phase 3: Location Harmony ──
// Every row of a chart carries the same location.

func validateLocations(rows []domain.Record) *phase {
	p := &phase{name: "Phase 3: Location Harmony (one per chart)"}

	byChart := make(map[domain.ChartKey][]string)
	for _, r := range rows {
		c := r.Key.Chart()
		if !slices.Contains(byChart[c], r.Location) {
			byChart[c] = append(byChart[c], r.Location)
		}
	}
	for c, locs := range byChart {
		if len(locs) > 1 {
			p.errorf("%s page %d %s: %d locations %q", c.SourceFile, c.Page, c.Section, len(locs), locs)
		}
	}
	return p
}

// ── Phase 4: Report Consistency ──
// The report covers the runs given, flags exactly the charts it lists
// disagreements for, and repair outcomes cover exactly the flagged charts.

func validateReport(runs []domain.RunMap, rows []domain.Record, report domain.Report) *phase {
	p := &phase{name: "Phase 4: Report Consistency"}

	if report.RunCount != len(runs) {
		p.errorf("run_count: expected %d, got %d", len(runs), report.RunCount)
	}

	inDataset := make(map[domain.DataPointKey]bool, len(rows))
	for _, r := range rows {
		inDataset[r.Key] = true
	}

	disagreeing := make(map[domain.ChartKey]bool)
	for i, e := range report.Disagreements {
		disagreeing[e.Graph] = true
		if e.Key.Chart() != e.Graph {
			p.errorf("disagreement %d: graph does not match key", i)
		}
		if len(e.Issues) == 0 {
			p.errorf("disagreement %d: no issues", i)
		}
		if !inDataset[e.Key] {
			p.errorf("disagreement %d: key not in dataset", i)
		}
	}

	flagged := make(map[domain.ChartKey]bool)
	for _, f := range report.FlaggedCharts {
		flagged[f.Chart()] = true
		if !disagreeing[f.Chart()] {
			p.errorf("flagged chart %s page %d %s has no disagreement", f.SourceFile, f.Page, f.Section)
		}
	}
	for c := range disagreeing {
		if !flagged[c] {
			p.errorf("chart %s page %d %s disagrees but is not flagged", c.SourceFile, c.Page, c.Section)
		}
	}

	if report.Repair != nil {
		if len(report.Repair.Charts) != len(report.FlaggedCharts) {
			p.errorf("repair covers %d charts, %d flagged", len(report.Repair.Charts), len(report.FlaggedCharts))
		}
		for _, c := range report.Repair.Charts {
			if !flagged[c.Chart()] {
				p.errorf("repaired chart %s page %d %s was not flagged", c.SourceFile, c.Page, c.Section)
			}
		}
	}
	return p
}
