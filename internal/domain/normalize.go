package domain

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
)

// Section and measurement type names produced by the chart extractors.
const (
	SectionWind        = "Wind"
	SectionPrecip      = "Precip"
	SectionTemperature = "Temperature"

	TypeSpeed           = "Speed"
	TypeGust            = "Gust"
	TypeDirection       = "Direction"
	TypeRain            = "Rain"
	TypeSnow            = "Snow"
	TypePrecipType      = "Type"
	TypeAirTemp         = "AirTemp_C"
	TypeFreezingLevel   = "FreezingLevel_m"
	TypeWetBulbFreezing = "WBFL_m"

	// NoPrecip is the canonical "no precipitation" category label.
	NoPrecip = "No Precip"
)

// locationPrefixes are chart descriptors that sometimes get read as part of
// the place name.
var locationPrefixes = []string{
	"Wind - ",
	"Precipitation - ",
	"Weather and Precipitation - ",
	"Weather & Precipitation - ",
	"Temperature - ",
}

var locationPlaceholders = map[string]struct{}{
	"":        {},
	"unknown": {},
	"n/a":     {},
	"na":      {},
	"none":    {},
}

var precipTypeAliases = map[string]string{
	"None":      NoPrecip,
	"none":      NoPrecip,
	"No precip": NoPrecip,
	"no precip": NoPrecip,
}

// elevationRe matches a trailing elevation annotation, e.g. "(1345m)".
var elevationRe = regexp.MustCompile(`\((\d+)\s*m\)$`)

// NormalizeLocation canonicalizes a chart location label so readings from
// different runs compare equal. Placeholders become "". Leading chart
// descriptors are stripped, stacked ones included, and a placeholder left
// behind them also becomes "". "(1345m)" becomes "(1345 metres)".
// Normalizing an already normalized label returns it unchanged.
func NormalizeLocation(raw string) string {
	s := strings.TrimSpace(raw)
	for {
		if isPlaceholder(s) {
			return ""
		}
		stripped, ok := stripLocationPrefix(s)
		if !ok {
			break
		}
		s = strings.TrimSpace(stripped)
	}
	return elevationRe.ReplaceAllString(s, "($1 metres)")
}

func isPlaceholder(s string) bool {
	_, ok := locationPlaceholders[strings.ToLower(s)]
	return ok
}

func stripLocationPrefix(s string) (string, bool) {
	for _, p := range locationPrefixes {
		if rest, ok := strings.CutPrefix(s, p); ok {
			return rest, true
		}
	}
	return s, false
}

// NormalizeCategory trims a text value and, for the precipitation type field,
// maps the known "no precipitation" aliases onto NoPrecip. Lookup is exact
// first, then lower-cased; an unmatched value keeps its original casing.
func NormalizeCategory(section, measurementType, raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	if section != SectionPrecip || measurementType != TypePrecipType {
		return s
	}
	if alias, ok := precipTypeAliases[s]; ok {
		return alias
	}
	if alias, ok := precipTypeAliases[strings.ToLower(s)]; ok {
		return alias
	}
	return s
}

// Quantize applies the display rounding policy for a field: wind to whole
// units, precipitation and air temperature to one decimal, altitude-based
// temperature fields to the nearest ten, anything else to two decimals.
// Values round by their exact decimal expansion, so 1.05 (stored just above
// 1.05) rounds up and 0.35 (stored just below) rounds down; exact halves
// round to even.
func Quantize(section, measurementType string, v float64) float64 {
	switch section {
	case SectionWind:
		return roundTo(v, 0)
	case SectionPrecip:
		return roundTo(v, 1)
	case SectionTemperature:
		if measurementType == TypeAirTemp {
			return roundTo(v, 1)
		}
		return roundTo(v, -1)
	default:
		return roundTo(v, 2)
	}
}

func roundTo(v float64, decimals int) float64 {
	if decimals < 0 {
		step := math.Pow10(-decimals)
		return math.RoundToEven(v/step) * step
	}
	r, err := strconv.ParseFloat(strconv.FormatFloat(v, 'f', decimals, 64), 64)
	if err != nil {
		return v
	}
	return r
}

// TextMatch controls how strictly free-text values are compared when voting.
type TextMatch string

const (
	// TextMatchExact compares normalized values byte for byte.
	TextMatchExact TextMatch = "exact"
	// TextMatchFold additionally ignores case and runs of whitespace.
	TextMatchFold TextMatch = "fold"
)

// ParseTextMatch validates a strictness name. "" selects TextMatchExact.
func ParseTextMatch(s string) (TextMatch, error) {
	switch TextMatch(strings.ToLower(strings.TrimSpace(s))) {
	case "", TextMatchExact:
		return TextMatchExact, nil
	case TextMatchFold:
		return TextMatchFold, nil
	default:
		return "", fmt.Errorf("unknown text match %q: want %q or %q", s, TextMatchExact, TextMatchFold)
	}
}

// key returns the comparison key for an already normalized value.
func (m TextMatch) key(s string) string {
	if m != TextMatchFold {
		return s
	}
	return cases.Fold().String(strings.Join(strings.Fields(s), " "))
}
