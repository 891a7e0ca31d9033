package domain

import (
	"fmt"
	"maps"
	"math"
	"strconv"
	"strings"
)

// ToleranceKey names a field for tolerance lookup. Field is either a
// MeasurementType or, for the fallback level, a Measurement.
type ToleranceKey struct {
	Section string
	Field   string
}

func (k ToleranceKey) String() string { return k.Section + ":" + k.Field }

// DefaultTolerances returns the built-in per-field tolerances in each field's
// natural units.
func DefaultTolerances() map[ToleranceKey]float64 {
	return map[ToleranceKey]float64{
		{SectionWind, TypeSpeed}:                  3.0,
		{SectionWind, TypeGust}:                   5.0,
		{SectionPrecip, TypeRain}:                 1.0,
		{SectionPrecip, TypeSnow}:                 0.6,
		{SectionTemperature, TypeAirTemp}:         0.7,
		{SectionTemperature, TypeFreezingLevel}:   80.0,
		{SectionTemperature, TypeWetBulbFreezing}: 80.0,
	}
}

// DefaultTolerance is the fallback spread for fields with no table entry.
const DefaultTolerance = 1.0

// ToleranceTable is an immutable set of per-field tolerances with a fallback
// default. Build one with NewToleranceTable; the zero value resolves every
// field to 0.
type ToleranceTable struct {
	entries map[ToleranceKey]float64
	def     float64
}

// NewToleranceTable merges layers left to right, later layers winning, into a
// new table. Every value, including the default, must be a finite
// non-negative number.
func NewToleranceTable(def float64, layers ...map[ToleranceKey]float64) (ToleranceTable, error) {
	if err := checkTolerance(def); err != nil {
		return ToleranceTable{}, fmt.Errorf("default tolerance: %w", err)
	}
	entries := make(map[ToleranceKey]float64)
	for _, layer := range layers {
		for k, v := range layer {
			if err := checkTolerance(v); err != nil {
				return ToleranceTable{}, fmt.Errorf("tolerance %s: %w", k, err)
			}
			entries[k] = v
		}
	}
	return ToleranceTable{entries: entries, def: def}, nil
}

func checkTolerance(v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return fmt.Errorf("must be a finite non-negative number, got %v", v)
	}
	return nil
}

// Default returns the fallback tolerance.
func (t ToleranceTable) Default() float64 { return t.def }

// Entries returns a copy of the table's explicit entries.
func (t ToleranceTable) Entries() map[ToleranceKey]float64 { return maps.Clone(t.entries) }

// Resolve looks up (section, measurementType), then (section, measurement),
// then falls back to the table default.
func (t ToleranceTable) Resolve(section, measurementType, measurement string) float64 {
	return ResolveTolerance(section, measurementType, measurement, t.entries, t.def)
}

// ResolveTolerance is the lookup behind ToleranceTable.Resolve for callers
// holding a plain map. The map is only read.
func ResolveTolerance(section, measurementType, measurement string, table map[ToleranceKey]float64, def float64) float64 {
	if v, ok := table[ToleranceKey{section, measurementType}]; ok {
		return v
	}
	if v, ok := table[ToleranceKey{section, measurement}]; ok {
		return v
	}
	return def
}

// ParseToleranceOverrides parses a comma-separated list of
// "Section:Field=value" entries. Blank input yields an empty map.
func ParseToleranceOverrides(s string) (map[ToleranceKey]float64, error) {
	out := make(map[ToleranceKey]float64)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		k, v, err := ParseToleranceOverride(part)
		if err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, nil
}

// ParseToleranceOverride parses one "Section:Field=value" entry.
func ParseToleranceOverride(s string) (ToleranceKey, float64, error) {
	name, value, ok := strings.Cut(s, "=")
	if !ok {
		return ToleranceKey{}, 0, fmt.Errorf("tolerance override %q: expected Section:Field=value", s)
	}
	section, field, ok := strings.Cut(strings.TrimSpace(name), ":")
	section, field = strings.TrimSpace(section), strings.TrimSpace(field)
	if !ok || section == "" || field == "" {
		return ToleranceKey{}, 0, fmt.Errorf("tolerance override %q: expected Section:Field=value", s)
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return ToleranceKey{}, 0, fmt.Errorf("tolerance override %q: %w", s, err)
	}
	if err := checkTolerance(v); err != nil {
		return ToleranceKey{}, 0, fmt.Errorf("tolerance override %q: %w", s, err)
	}
	return ToleranceKey{Section: section, Field: field}, v, nil
}
