package domain

import (
	"math"
	"strconv"
)

// ReadingKind tags which slot of a Reading is populated.
type ReadingKind uint8

const (
	ReadingAbsent ReadingKind = iota
	ReadingNumeric
	ReadingText
)

func (k ReadingKind) String() string {
	switch k {
	case ReadingNumeric:
		return "numeric"
	case ReadingText:
		return "text"
	default:
		return "absent"
	}
}

// Reading is the value one run produced for a data point: a number, a piece
// of text, or nothing usable. An absent reading may still carry the raw cell
// it was parsed from so it can be passed through untouched.
type Reading struct {
	kind ReadingKind
	num  float64
	text string
}

// Numeric returns a numeric reading.
func Numeric(v float64) Reading { return Reading{kind: ReadingNumeric, num: v} }

// Text returns a text reading.
func Text(s string) Reading { return Reading{kind: ReadingText, text: s} }

// Absent returns an empty reading.
func Absent() Reading { return Reading{} }

// Unparsed returns an absent reading that remembers the raw cell it came from.
func Unparsed(raw string) Reading { return Reading{kind: ReadingAbsent, text: raw} }

// Kind reports which slot is populated.
func (r Reading) Kind() ReadingKind { return r.kind }

// Float returns the numeric value and whether the reading is numeric.
func (r Reading) Float() (float64, bool) {
	return r.num, r.kind == ReadingNumeric
}

// Str returns the text value and whether the reading is text.
func (r Reading) Str() (string, bool) {
	return r.text, r.kind == ReadingText
}

// Raw returns the unparsed cell of an absent reading, or "".
func (r Reading) Raw() string {
	if r.kind == ReadingAbsent {
		return r.text
	}
	return ""
}

// NumericCell renders the reading for the ValueNumeric column.
func (r Reading) NumericCell() string {
	switch r.kind {
	case ReadingNumeric:
		return strconv.FormatFloat(r.num, 'f', -1, 64)
	case ReadingAbsent:
		return r.text
	default:
		return ""
	}
}

// TextCell renders the reading for the ValueText column.
func (r Reading) TextCell() string {
	if r.kind == ReadingText {
		return r.text
	}
	return ""
}

// ParseReading builds a Reading from the two value columns of a row. Text
// wins when both are populated since a field that yields text is categorical.
// A numeric cell that does not parse is kept as an unparsed absent reading.
func ParseReading(numericCell, textCell string) Reading {
	if textCell != "" {
		return Text(textCell)
	}
	if numericCell == "" {
		return Absent()
	}
	v, err := strconv.ParseFloat(numericCell, 64)
	if err != nil {
		return Unparsed(numericCell)
	}
	if math.IsNaN(v) {
		return Absent()
	}
	if math.IsInf(v, 0) {
		return Unparsed(numericCell)
	}
	return Numeric(v)
}
