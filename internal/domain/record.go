package domain

import (
	"encoding/json"
	"maps"
	"slices"
)

// Record is one run's reading for one data point, plus passthrough metadata.
type Record struct {
	Key      DataPointKey
	Location string
	Value    Reading
	Units    string
	Notes    string
}

// RunMap is one complete, independent extraction pass.
type RunMap map[DataPointKey]Record

// Dataset is the reconciled output, one row per data point.
type Dataset map[DataPointKey]Record

// Clone returns a shallow copy; Records are values so the copy is independent.
func (d Dataset) Clone() Dataset {
	if d == nil {
		return Dataset{}
	}
	return maps.Clone(d)
}

// Rows returns the dataset in output order.
func (d Dataset) Rows() []Record {
	rows := slices.Collect(maps.Values(d))
	slices.SortFunc(rows, func(a, b Record) int { return compareOutput(a.Key, b.Key) })
	return rows
}

// recordJSON is the flat row shape shared by the dataset CSV and the result
// message.
type recordJSON struct {
	SourceFile      string   `json:"SourceFile"`
	Page            int      `json:"Page"`
	Location        string   `json:"Location"`
	Section         string   `json:"Section"`
	Measurement     string   `json:"Measurement"`
	MeasurementType string   `json:"MeasurementType"`
	Units           string   `json:"Units"`
	HourLabel       string   `json:"HourLabel"`
	HourIndex       int      `json:"HourIndex"`
	ValueNumeric    *float64 `json:"ValueNumeric"`
	ValueText       string   `json:"ValueText"`
	ValueRaw        string   `json:"ValueRaw,omitempty"`
	Notes           string   `json:"Notes"`
}

// MarshalJSON flattens the record into a dataset row.
func (r Record) MarshalJSON() ([]byte, error) {
	out := recordJSON{
		SourceFile:      r.Key.SourceFile,
		Page:            r.Key.Page,
		Location:        r.Location,
		Section:         r.Key.Section,
		Measurement:     r.Key.Measurement,
		MeasurementType: r.Key.MeasurementType,
		Units:           r.Units,
		HourLabel:       r.Key.HourLabel,
		HourIndex:       r.Key.HourIndex,
		ValueText:       r.Value.TextCell(),
		ValueRaw:        r.Value.Raw(),
		Notes:           r.Notes,
	}
	if v, ok := r.Value.Float(); ok {
		out.ValueNumeric = &v
	}
	return json.Marshal(out)
}

// UnmarshalJSON reads a flat dataset row.
func (r *Record) UnmarshalJSON(data []byte) error {
	var in recordJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	r.Key = DataPointKey{
		SourceFile:      in.SourceFile,
		Page:            in.Page,
		Section:         in.Section,
		Measurement:     in.Measurement,
		MeasurementType: in.MeasurementType,
		HourIndex:       in.HourIndex,
		HourLabel:       in.HourLabel,
	}
	r.Location = in.Location
	r.Units = in.Units
	r.Notes = in.Notes
	switch {
	case in.ValueText != "":
		r.Value = Text(in.ValueText)
	case in.ValueNumeric != nil:
		r.Value = Numeric(*in.ValueNumeric)
	default:
		r.Value = Unparsed(in.ValueRaw)
	}
	return nil
}
