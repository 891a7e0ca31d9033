package config

import (
	"fmt"
	"os"

	"github.com/couchcryptid/chart-consensus/internal/domain"
	"github.com/goccy/go-yaml"
)

// ToleranceFile is the YAML shape of a tolerance table:
//
//	default: 1.0
//	tolerances:
//	  Wind:
//	    Speed: 3
//	  Temperature:
//	    FreezingLevel_m: 80
//
// Inner keys are a MeasurementType or, for the fallback level, a Measurement.
type ToleranceFile struct {
	Default    *float64                      `yaml:"default"`
	Tolerances map[string]map[string]float64 `yaml:"tolerances"`
}

// LoadToleranceFile reads and decodes a tolerance file.
func LoadToleranceFile(path string) (ToleranceFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ToleranceFile{}, fmt.Errorf("read tolerance file: %w", err)
	}
	var f ToleranceFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return ToleranceFile{}, fmt.Errorf("parse tolerance file %s: %w", path, err)
	}
	return f, nil
}

func (f ToleranceFile) entries() map[domain.ToleranceKey]float64 {
	out := make(map[domain.ToleranceKey]float64)
	for section, fields := range f.Tolerances {
		for field, v := range fields {
			out[domain.ToleranceKey{Section: section, Field: field}] = v
		}
	}
	return out
}

// BuildTolerances merges the built-in tolerances, the optional file at path
// and the comma-separated overrides into one table. A nil def falls back to
// the file's default, then to domain.DefaultTolerance.
func BuildTolerances(def *float64, path, overrides string) (domain.ToleranceTable, error) {
	layers := []map[domain.ToleranceKey]float64{domain.DefaultTolerances()}
	fallback := domain.DefaultTolerance

	if path != "" {
		f, err := LoadToleranceFile(path)
		if err != nil {
			return domain.ToleranceTable{}, err
		}
		if f.Default != nil {
			fallback = *f.Default
		}
		layers = append(layers, f.entries())
	}

	o, err := domain.ParseToleranceOverrides(overrides)
	if err != nil {
		return domain.ToleranceTable{}, err
	}
	layers = append(layers, o)

	if def != nil {
		fallback = *def
	}
	return domain.NewToleranceTable(fallback, layers...)
}
