// Command genmock generates the reconciliation job fixture used by the
// pipeline and integration test suites. The fixture holds three extraction
// runs over one forecast document with a small set of known reading errors,
// plus a re-read of the wind chart to serve as the repair source.
//
// Usage:
//
//	go run ./cmd/genmock -out data/mock/consensus_job.json
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"

	"github.com/couchcryptid/chart-consensus/internal/domain"
)

const (
	jobID      = "ben-nevis-240426"
	sourceFile = "ben_nevis_240426.pdf"
	location   = "Ben Nevis (1345 metres)"

	windPage   = 2
	precipPage = 3
	tempPage   = 4
	blankPage  = 5

	runCount = 3
)

var directions = []string{"SW", "WSW", "W", "NW"}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	out := flag.String("out", "data/mock/consensus_job.json", "output path for the job fixture")
	flag.Parse()

	job := buildJob()
	if err := writeJSON(*out, job); err != nil {
		return fmt.Errorf("writing job fixture: %w", err)
	}
	log.Printf("wrote job fixture: %s (%d runs)", *out, len(job.Runs))
	return nil
}

func buildJob() domain.Job {
	job := domain.Job{ID: jobID, RunCount: runCount}
	for r := 1; r <= runCount; r++ {
		charts := []domain.ChartReading{
			{SourceFile: sourceFile, Page: windPage, Kind: domain.KindWind, Series: windSeries(location)},
			{SourceFile: sourceFile, Page: precipPage, Kind: domain.KindPrecipitation, Series: precipSeries()},
			{SourceFile: sourceFile, Page: tempPage, Kind: domain.KindTemperature, Series: tempSeries()},
		}
		applyNoise(r, charts)
		if r == 2 {
			charts = append(charts, domain.ChartReading{
				SourceFile: sourceFile, Page: blankPage, Kind: domain.KindPrecipitation, Series: blankSeries(),
			})
		}
		job.Runs = append(job.Runs, domain.RunPayload{Run: r, Charts: charts})
	}
	job.Repair = []domain.ChartReading{
		{SourceFile: sourceFile, Page: windPage, Kind: domain.KindWind, Series: windSeries(location)},
	}
	return job
}

// applyNoise injects the reading errors the fixture is known for:
// run 2 reads the chart title into the wind location and lower-cases one
// precipitation type, run 3 misreads the hour 5 wind speed.
func applyNoise(run int, charts []domain.ChartReading) {
	switch run {
	case 2:
		charts[0].Series.Location = "Wind - Ben Nevis (1345m)"
		charts[1].Series.Hours[10].PrecipType = "rain"
	case 3:
		charts[0].Series.Hours[5].WindSpeedMph = ptr(42)
	}
}

func hourLabel(h int) string { return fmt.Sprintf("%02d:00", h) }

func windSeries(loc string) domain.Series {
	s := domain.Series{Location: loc}
	for h := range domain.HoursPerSeries {
		speed := float64(10 + h%6)
		s.Hours = append(s.Hours, domain.Hour{
			HourLabel:     hourLabel(h),
			HourIndex:     h,
			WindSpeedMph:  ptr(speed),
			WindGustMph:   ptr(speed + 8),
			WindDirection: directions[(h/6)%len(directions)],
		})
	}
	return s
}

func precipSeries() domain.Series {
	s := domain.Series{Location: location}
	for h := range domain.HoursPerSeries {
		snow := 0.0
		if h >= 12 {
			snow = round1(0.5 * float64(h%3))
		}
		s.Hours = append(s.Hours, domain.Hour{
			HourLabel:  hourLabel(h),
			HourIndex:  h,
			RainMm:     ptr(round1(0.2 * float64(h%4))),
			SnowCm:     ptr(snow),
			PrecipType: precipType(h),
		})
	}
	return s
}

func precipType(h int) string {
	switch {
	case h < 6:
		return domain.NoPrecip
	case h < 12:
		return "Rain"
	case h < 18:
		return "Sleet"
	default:
		return "Snow"
	}
}

func tempSeries() domain.Series {
	s := domain.Series{Location: location}
	for h := range domain.HoursPerSeries {
		s.Hours = append(s.Hours, domain.Hour{
			HourLabel:             hourLabel(h),
			HourIndex:             h,
			AirTempC:              ptr(round1(4.0 - 0.5*float64(h))),
			FreezingLevelM:        ptr(float64(1800 - 40*h)),
			WetBulbFreezingLevelM: ptr(float64(1700 - 40*h)),
		})
	}
	return s
}

func blankSeries() domain.Series {
	s := domain.Series{Location: location}
	for h := range domain.HoursPerSeries {
		s.Hours = append(s.Hours, domain.Hour{
			HourLabel:  hourLabel(h),
			HourIndex:  h,
			RainMm:     ptr(0),
			SnowCm:     ptr(0),
			PrecipType: domain.NoPrecip,
		})
	}
	return s
}

func ptr(v float64) *float64 { return &v }

func round1(v float64) float64 { return math.Round(v*10) / 10 }

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644) //nolint:gosec // fixture file, not sensitive
}
