// Package frame holds the rectangular dataset model shared by every pipeline
// stage: schema-checked rows of typed values with a declared entity key and
// time key. Schemas are validated once at ingestion so downstream stages see
// a fixed field set.
package frame

import (
	"fmt"
	"strconv"
	"time"
)

// Kind identifies the type of a field.
type Kind int

const (
	KindString Kind = iota
	KindNumber
	KindDate
	KindPeriod
)

// String returns the human-readable kind name.
func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindDate:
		return "date"
	case KindPeriod:
		return "period"
	default:
		return "unknown"
	}
}

// ParseKind converts a kind name from a job or config file into a Kind.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "string":
		return KindString, nil
	case "number":
		return KindNumber, nil
	case "date":
		return KindDate, nil
	case "period":
		return KindPeriod, nil
	default:
		return 0, fmt.Errorf("unknown field kind %q (valid: string, number, date, period)", s)
	}
}

// Value is a single cell: a typed scalar with an explicit missing state.
// A missing Value still carries its kind so coverage accounting stays typed.
type Value struct {
	kind    Kind
	missing bool
	str     string
	num     float64
	date    time.Time
	period  Period
}

// String builds a string value.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Number builds a numeric value.
func Number(f float64) Value { return Value{kind: KindNumber, num: f} }

// Date builds a date value.
func Date(t time.Time) Value { return Value{kind: KindDate, date: t} }

// PeriodValue builds a period value.
func PeriodValue(p Period) Value { return Value{kind: KindPeriod, period: p} }

// Missing builds a missing value of the given kind.
func Missing(k Kind) Value { return Value{kind: k, missing: true} }

// Kind returns the value's kind.
func (v Value) Kind() Kind { return v.kind }

// IsMissing reports whether the value is missing.
func (v Value) IsMissing() bool { return v.missing }

// Str returns the string content. Empty for non-string or missing values.
func (v Value) Str() string {
	if v.missing || v.kind != KindString {
		return ""
	}
	return v.str
}

// Num returns the numeric content and whether it is present.
func (v Value) Num() (float64, bool) {
	if v.missing || v.kind != KindNumber {
		return 0, false
	}
	return v.num, true
}

// Time returns the date content and whether it is present.
func (v Value) Time() (time.Time, bool) {
	if v.missing || v.kind != KindDate {
		return time.Time{}, false
	}
	return v.date, true
}

// Period returns the period content and whether it is present.
func (v Value) Period() (Period, bool) {
	if v.missing || v.kind != KindPeriod {
		return Period{}, false
	}
	return v.period, true
}

// Key returns a canonical comparable representation used for grouping and
// join keys. Missing values share a single sentinel per kind.
func (v Value) Key() string {
	if v.missing {
		return "\x00missing"
	}
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return strconv.FormatFloat(v.num, 'g', -1, 64)
	case KindDate:
		return v.date.Format("2006-01-02")
	case KindPeriod:
		return v.period.String()
	default:
		return ""
	}
}

// Display renders the value for reports and exports. Missing values render
// as the empty string.
func (v Value) Display() string {
	if v.missing {
		return ""
	}
	if v.kind == KindNumber {
		return strconv.FormatFloat(v.num, 'g', -1, 64)
	}
	return v.Key()
}

// dateLayouts are accepted date formats, most common first.
var dateLayouts = []string{"2006-01-02", "2006/01/02", "20060102", "01/02/2006"}

// Parse converts a raw string into a Value of the given kind. The empty
// string always parses to missing; other missing markers are handled by the
// ingest rules before Parse is called.
func Parse(raw string, kind Kind) (Value, error) {
	if raw == "" {
		return Missing(kind), nil
	}
	switch kind {
	case KindString:
		return String(raw), nil
	case KindNumber:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return Value{}, fmt.Errorf("parse number %q: %w", raw, err)
		}
		return Number(f), nil
	case KindDate:
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, raw); err == nil {
				return Date(t), nil
			}
		}
		return Value{}, fmt.Errorf("parse date %q: unrecognized layout", raw)
	case KindPeriod:
		p, err := ParsePeriod(raw)
		if err != nil {
			return Value{}, err
		}
		return PeriodValue(p), nil
	default:
		return Value{}, fmt.Errorf("unknown kind %d", kind)
	}
}
