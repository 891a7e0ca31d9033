package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Kind is the physical quantity a chart plots.
type Kind string

const (
	KindWind          Kind = "wind"
	KindPrecipitation Kind = "precipitation"
	KindTemperature   Kind = "temperature"
)

// Kinds lists every supported chart kind.
var Kinds = []Kind{KindWind, KindPrecipitation, KindTemperature}

var sectionKinds = map[string]Kind{
	SectionWind:        KindWind,
	SectionPrecip:      KindPrecipitation,
	SectionTemperature: KindTemperature,
}

// ParseKind validates a chart kind name.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := kindSections[k]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
	return k, nil
}

// KindForSection maps a chart section to its kind.
func KindForSection(section string) (Kind, bool) {
	k, ok := sectionKinds[section]
	return k, ok
}

// Section returns the chart section for k, or "" for an unknown kind.
func (k Kind) Section() string { return kindSections[k] }

var kindSections = map[Kind]string{
	KindWind:          SectionWind,
	KindPrecipitation: SectionPrecip,
	KindTemperature:   SectionTemperature,
}

// HoursPerSeries is the number of hourly entries in a well-formed series.
const HoursPerSeries = 24

// Hour is one hourly entry of a chart series. Only the fields for the
// series' kind are populated.
type Hour struct {
	HourLabel string `json:"hour_label"`
	HourIndex int    `json:"hour_index"`

	WindSpeedMph  *float64 `json:"wind_speed_mph,omitempty"`
	WindGustMph   *float64 `json:"wind_gust_mph,omitempty"`
	WindDirection string   `json:"wind_direction,omitempty"`

	RainMm     *float64 `json:"rain_mm,omitempty"`
	SnowCm     *float64 `json:"snow_cm,omitempty"`
	PrecipType string   `json:"precip_type,omitempty"`

	AirTempC              *float64 `json:"air_temp_c,omitempty"`
	FreezingLevelM        *float64 `json:"freezing_level_m,omitempty"`
	WetBulbFreezingLevelM *float64 `json:"wet_bulb_freezing_level_m,omitempty"`
}

// Series is one recognition pass over one chart.
type Series struct {
	Location string `json:"location"`
	Hours    []Hour `json:"hours"`
}

// field describes how one measurement of a kind maps between an Hour and a
// Record.
type field struct {
	measurement     string
	measurementType string
	units           string
	column          string
	get             func(Hour) Reading
	set             func(*Hour, Reading)
}

func numField(measurement, mtype, units, column string, ptr func(*Hour) **float64) field {
	return field{
		measurement:     measurement,
		measurementType: mtype,
		units:           units,
		column:          column,
		get: func(h Hour) Reading {
			if p := *ptr(&h); p != nil {
				return Numeric(*p)
			}
			return Absent()
		},
		set: func(h *Hour, r Reading) {
			if v, ok := r.Float(); ok {
				*ptr(h) = &v
			}
		},
	}
}

func textField(measurement, mtype, column string, ptr func(*Hour) *string) field {
	return field{
		measurement:     measurement,
		measurementType: mtype,
		column:          column,
		get: func(h Hour) Reading {
			if s := *ptr(&h); s != "" {
				return Text(s)
			}
			return Absent()
		},
		set: func(h *Hour, r Reading) {
			if s, ok := r.Str(); ok {
				*ptr(h) = s
			}
		},
	}
}

var kindFields = map[Kind][]field{
	KindWind: {
		numField("Wind", TypeSpeed, "mph", "wind_speed_mph", func(h *Hour) **float64 { return &h.WindSpeedMph }),
		numField("Wind", TypeGust, "mph", "wind_gust_mph", func(h *Hour) **float64 { return &h.WindGustMph }),
		textField("Wind", TypeDirection, "wind_direction", func(h *Hour) *string { return &h.WindDirection }),
	},
	KindPrecipitation: {
		numField("Precipitation", TypeRain, "mm", "rain_mm", func(h *Hour) **float64 { return &h.RainMm }),
		numField("Precipitation", TypeSnow, "cm", "snow_cm", func(h *Hour) **float64 { return &h.SnowCm }),
		textField("Precipitation", TypePrecipType, "precip_type", func(h *Hour) *string { return &h.PrecipType }),
	},
	KindTemperature: {
		numField("Temperature", TypeAirTemp, "degC", "air_temp_c", func(h *Hour) **float64 { return &h.AirTempC }),
		numField("FreezingLevel", TypeFreezingLevel, "m", "freezing_level_m", func(h *Hour) **float64 { return &h.FreezingLevelM }),
		numField("WetBulbFreezingLevel", TypeWetBulbFreezing, "m", "wet_bulb_freezing_level_m", func(h *Hour) **float64 { return &h.WetBulbFreezingLevelM }),
	},
}

// SeriesToRecords expands a series into one Record per hour and measurement
// type. Location is stamped on every record as given.
func SeriesToRecords(sourceFile string, page int, location string, kind Kind, s Series) ([]Record, error) {
	fields, ok := kindFields[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	section := kind.Section()
	records := make([]Record, 0, len(s.Hours)*len(fields))
	for _, h := range s.Hours {
		for _, f := range fields {
			records = append(records, Record{
				Key: DataPointKey{
					SourceFile:      sourceFile,
					Page:            page,
					Section:         section,
					Measurement:     f.measurement,
					MeasurementType: f.measurementType,
					HourIndex:       h.HourIndex,
					HourLabel:       h.HourLabel,
				},
				Location: location,
				Value:    f.get(h),
				Units:    f.units,
			})
		}
	}
	return records, nil
}

// SeriesFromRecords rebuilds the series of one chart from the records of a
// run or dataset. Hours are ordered by index; the location is taken from the
// first record that carries one.
func SeriesFromRecords(chart ChartKey, records map[DataPointKey]Record) (Series, bool) {
	kind, ok := KindForSection(chart.Section)
	if !ok {
		return Series{}, false
	}
	byType := make(map[string]field, len(kindFields[kind]))
	for _, f := range kindFields[kind] {
		byType[f.measurementType] = f
	}

	hours := make(map[int]*Hour)
	var order []int
	var location string
	for _, k := range sortedChartKeys(chart, records) {
		f, ok := byType[k.MeasurementType]
		if !ok {
			continue
		}
		rec := records[k]
		h, seen := hours[k.HourIndex]
		if !seen {
			h = &Hour{HourLabel: k.HourLabel, HourIndex: k.HourIndex}
			hours[k.HourIndex] = h
			order = append(order, k.HourIndex)
		}
		f.set(h, rec.Value)
		if location == "" {
			location = rec.Location
		}
	}
	if len(order) == 0 {
		return Series{}, false
	}
	s := Series{Location: location, Hours: make([]Hour, 0, len(order))}
	for _, idx := range order {
		s.Hours = append(s.Hours, *hours[idx])
	}
	return s, true
}

func sortedChartKeys(chart ChartKey, records map[DataPointKey]Record) []DataPointKey {
	var keys []DataPointKey
	for k := range records {
		if k.Chart() == chart {
			keys = append(keys, k)
		}
	}
	sortOutput(keys)
	return keys
}

// SummarizeSeries renders the per-column values of a series as compact JSON,
// e.g. {"wind_speed_mph":[12,13],"wind_gust_mph":[20,22],"wind_direction":["N","NE"]}.
// An empty series renders as "(no data)".
func SummarizeSeries(kind Kind, s Series) string {
	if len(s.Hours) == 0 {
		return "(no data)"
	}
	fields, ok := kindFields[kind]
	if !ok {
		b, _ := json.Marshal(map[string]any{"hours": s.Hours})
		return string(b)
	}
	var sb strings.Builder
	sb.WriteByte('{')
	for i, f := range fields {
		if i > 0 {
			sb.WriteByte(',')
		}
		col := make([]any, len(s.Hours))
		for j, h := range s.Hours {
			r := f.get(h)
			switch r.Kind() {
			case ReadingNumeric:
				col[j], _ = r.Float()
			case ReadingText:
				col[j], _ = r.Str()
			}
		}
		name, _ := json.Marshal(f.column)
		values, _ := json.Marshal(col)
		sb.Write(name)
		sb.WriteByte(':')
		sb.Write(values)
	}
	sb.WriteByte('}')
	return sb.String()
}
