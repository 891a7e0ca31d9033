package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/couchcryptid/chart-consensus/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const runHeader = "SourceFile,Page,Location,Section,Measurement,MeasurementType,Units,HourLabel,HourIndex,ValueNumeric,ValueText,Notes\n"

// writeRun writes a one-hour wind chart read at the given speed.
func writeRun(t *testing.T, dir, name string, speed float64) string {
	t.Helper()
	body := runHeader +
		fmt.Sprintf("cairn_gorm.pdf,2,Wind - Cairn Gorm (1245m),Wind,Wind,Speed,mph,00,0,%g,,\n", speed) +
		"cairn_gorm.pdf,2,Wind - Cairn Gorm (1245m),Wind,Wind,Direction,,00,0,,SW,\n"
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

// writeRereads writes a full-day wind re-read of the chart at the given speed.
func writeRereads(t *testing.T, dir string, speed float64) string {
	t.Helper()
	s := domain.Series{Location: "Cairn Gorm (1245 metres)"}
	for h := range domain.HoursPerSeries {
		gust := speed + 6
		s.Hours = append(s.Hours, domain.Hour{
			HourLabel:     fmt.Sprintf("%02d", h),
			HourIndex:     h,
			WindSpeedMph:  &speed,
			WindGustMph:   &gust,
			WindDirection: "SW",
		})
	}
	line, err := json.Marshal(domain.ChartReading{SourceFile: "cairn_gorm.pdf", Page: 2, Kind: domain.KindWind, Series: s})
	require.NoError(t, err)

	path := filepath.Join(dir, "rereads.jsonl")
	require.NoError(t, os.WriteFile(path, append(line, '\n'), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--log-level", "error"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func readDataset(t *testing.T, path string) map[string]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.NotEmpty(t, rows)

	// MeasurementType|HourIndex -> ValueNumeric or ValueText
	out := make(map[string]string)
	for _, r := range rows[1:] {
		out[r[5]+"|"+r[8]] = r[9] + r[10]
	}
	return out
}

func readReport(t *testing.T, path string) map[string]any {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var report map[string]any
	require.NoError(t, json.Unmarshal(data, &report))
	return report
}

func TestReconcile_Consensus(t *testing.T) {
	dir := t.TempDir()
	runs := []string{
		writeRun(t, dir, "run1.csv", 12),
		writeRun(t, dir, "run2.csv", 12),
		writeRun(t, dir, "run3.csv", 30),
	}
	outCSV := filepath.Join(dir, "out", "final.csv")
	reportPath := filepath.Join(dir, "out", "report.json")

	stdout, err := execute(t, append([]string{"--out-csv", outCSV, "--report", reportPath}, runs...)...)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Recomputed CSV written to "+outCSV)

	values := readDataset(t, outCSV)
	assert.Equal(t, "12", values["Speed|0"])
	assert.Equal(t, "SW", values["Direction|0"])

	report := readReport(t, reportPath)
	assert.EqualValues(t, 3, report["run_count"])
	assert.Len(t, report["source_runs"], 3)
	for _, p := range report["source_runs"].([]any) {
		assert.True(t, filepath.IsAbs(p.(string)))
	}
	assert.Len(t, report["disagreements"], 1)
	assert.Len(t, report["flagged_graphs"], 1)
	assert.NotContains(t, report, "rerun")
}

func TestReconcile_ToleranceOverrideSettlesSpread(t *testing.T) {
	dir := t.TempDir()
	runs := []string{writeRun(t, dir, "run1.csv", 12), writeRun(t, dir, "run2.csv", 30)}
	reportPath := filepath.Join(dir, "report.json")

	_, err := execute(t, append([]string{
		"--out-csv", filepath.Join(dir, "final.csv"),
		"--report", reportPath,
		"--tolerance-override", "Wind:Speed=20",
	}, runs...)...)
	require.NoError(t, err)

	report := readReport(t, reportPath)
	assert.Empty(t, report["disagreements"])
}

func TestReconcile_RereadFilePatchesFlaggedChart(t *testing.T) {
	dir := t.TempDir()
	runs := []string{
		writeRun(t, dir, "run1.csv", 12),
		writeRun(t, dir, "run2.csv", 12),
		writeRun(t, dir, "run3.csv", 30),
	}
	outCSV := filepath.Join(dir, "final.csv")
	reportPath := filepath.Join(dir, "report.json")

	_, err := execute(t, append([]string{
		"--out-csv", outCSV,
		"--report", reportPath,
		"--reread-file", writeRereads(t, dir, 14),
	}, runs...)...)
	require.NoError(t, err)

	values := readDataset(t, outCSV)
	assert.Equal(t, "14", values["Speed|0"])
	assert.Equal(t, "20", values["Gust|23"])

	report := readReport(t, reportPath)
	rerun, ok := report["rerun"].(map[string]any)
	require.True(t, ok, "report must carry the repair section")
	graphs := rerun["graphs"].([]any)
	require.Len(t, graphs, 1)
	assert.Equal(t, "patched", graphs[0].(map[string]any)["outcome"])
}

func TestReconcile_Errors(t *testing.T) {
	dir := t.TempDir()
	run := writeRun(t, dir, "run1.csv", 12)
	out := []string{"--out-csv", filepath.Join(dir, "final.csv"), "--report", filepath.Join(dir, "report.json")}

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"no runs", out, "requires at least 1 arg"},
		{"missing run", append(out, filepath.Join(dir, "nope.csv")), "open run csv"},
		{"bad text match", append([]string{"--text-match", "loose", run}, out...), "--text-match"},
		{"bad workers", append([]string{"--workers", "0", run}, out...), "--workers"},
		{"bad override", append([]string{"--tolerance-override", "Wind:Speed", run}, out...), "Wind:Speed"},
		{"missing reread file", append([]string{"--reread-file", filepath.Join(dir, "nope.jsonl"), run}, out...), "open reread file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			require.Error(t, err)
			assert.True(t, strings.Contains(err.Error(), tt.wantErr), "error %q should mention %q", err, tt.wantErr)
		})
	}
}
