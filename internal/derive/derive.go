// Package derive synthesizes temporal attributes (Year, Quarter, Month,
// Day) from date-like dimensions.
//
// Derived attributes are never written into records. Each is a tagged value
// (source label + kind) evaluated on demand by Eval, so the record set stays
// exactly as the normalizer produced it.
package derive

import (
	"fmt"
	"math"
	"strings"
	"time"

	"pivot/pkg/records"
)

// Kind is the calendar component a derived attribute extracts.
type Kind int

const (
	Year Kind = iota
	Quarter
	Month
	Day
)

// Kinds lists every kind in the order attributes are synthesized.
var Kinds = []Kind{Year, Quarter, Month, Day}

func (k Kind) String() string {
	switch k {
	case Year:
		return "Year"
	case Quarter:
		return "Quarter"
	case Month:
		return "Month"
	case Day:
		return "Day"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Attribute is one derived column: a calendar component of a source label.
type Attribute struct {
	Source string
	Kind   Kind
}

// Label is the synthetic column name, e.g. "Posting Date (Quarter)".
func (a Attribute) Label() string {
	return a.Source + " (" + a.Kind.String() + ")"
}

// Set is an ordered collection of derived attributes.
type Set []Attribute

// Labels returns the synthetic labels in order.
func (s Set) Labels() []string {
	out := make([]string, len(s))
	for i, a := range s {
		out[i] = a.Label()
	}
	return out
}

// Lookup finds the attribute with the given synthetic label.
func (s Set) Lookup(label string) (Attribute, bool) {
	for _, a := range s {
		if a.Label() == label {
			return a, true
		}
	}
	return Attribute{}, false
}

// Synthesize returns the four attributes (Year, Quarter, Month, Day) for
// each source label, grouped by source.
func Synthesize(labels []string) Set {
	out := make(Set, 0, len(labels)*len(Kinds))
	for _, l := range labels {
		for _, k := range Kinds {
			out = append(out, Attribute{Source: l, Kind: k})
		}
	}
	return out
}

// Eval computes attr for one record using the default (month-first) date
// order. See Evaluator for other orders.
func Eval(attr Attribute, rec records.Record) any {
	return Evaluator{}.Eval(attr, rec)
}

// Evaluator evaluates derived attributes with a fixed date preference.
type Evaluator struct {
	Preference Preference
}

// Eval computes attr for rec.
//
// Year is an int, Quarter is "Q1".."Q4", Month and Day are zero-padded
// two-digit strings. When the source value does not parse as a date every
// kind evaluates to nil.
func (e Evaluator) Eval(attr Attribute, rec records.Record) any {
	t, ok := ParseDate(rec[attr.Source], e.Preference)
	if !ok {
		return nil
	}
	switch attr.Kind {
	case Year:
		return t.Year()
	case Quarter:
		return fmt.Sprintf("Q%d", (int(t.Month())-1)/3+1)
	case Month:
		return fmt.Sprintf("%02d", int(t.Month()))
	case Day:
		return fmt.Sprintf("%02d", t.Day())
	default:
		return nil
	}
}

// Preference decides how ambiguous slash dates (03/04/2024) are read.
type Preference string

const (
	// MonthFirst reads 03/04/2024 as March 4th.
	MonthFirst Preference = "us"
	// DayFirst reads 03/04/2024 as April 3rd.
	DayFirst Preference = "eu"
)

var isoLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05.999999",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02",
	"2006-01",
	"02.01.2006",
	"02.01.2006 15:04:05",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
	"2 January 2006",
	"02-Jan-2006",
	"Mon, 02 Jan 2006 15:04:05 MST",
	"Mon Jan 2 2006",
}

var (
	monthFirstLayouts = []string{"01/02/2006", "1/2/2006", "01/02/2006 15:04:05", "1/2/2006 15:04", "01-02-2006"}
	dayFirstLayouts   = []string{"02/01/2006", "2/1/2006", "02/01/2006 15:04:05", "2/1/2006 15:04", "02-01-2006"}
)

// ParseDate reads a record value as a calendar date.
//
// time.Time values are accepted as is; strings are tried against ISO-8601
// style layouts first, then slash/dash layouts in the order pref asks for
// (month-first unless pref is DayFirst), then the other order. Numbers and
// blank strings are not dates.
func ParseDate(v any, pref Preference) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, !t.IsZero()
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return time.Time{}, false
		}
		for _, lay := range isoLayouts {
			if ts, err := time.Parse(lay, s); err == nil {
				return ts, true
			}
		}
		first, second := monthFirstLayouts, dayFirstLayouts
		if pref == DayFirst {
			first, second = dayFirstLayouts, monthFirstLayouts
		}
		for _, group := range [][]string{first, second} {
			for _, lay := range group {
				if ts, err := time.Parse(lay, s); err == nil {
					return ts, true
				}
			}
		}
	}
	return time.Time{}, false
}

// Options tunes DetectDateLike.
type Options struct {
	// SampleSize is the number of leading records inspected, capped at the
	// record count. <= 0 means 50.
	SampleSize int
	// Threshold is the fraction of sampled records that must parse as a
	// date. <= 0 means 0.4.
	Threshold float64
	// Preference is forwarded to ParseDate.
	Preference Preference
}

// DetectDateLike returns the labels (in label order) whose sampled values
// look like dates: the count of parsable values must be at least
// ceil(sample × threshold) and non-zero.
func DetectDateLike(set records.Set, opt Options) []string {
	size := opt.SampleSize
	if size <= 0 {
		size = 50
	}
	if size > len(set.Rows) {
		size = len(set.Rows)
	}
	if size == 0 {
		return nil
	}
	threshold := opt.Threshold
	if threshold <= 0 {
		threshold = 0.4
	}
	need := int(math.Ceil(float64(size) * threshold))

	var out []string
	for _, l := range set.Labels {
		score := 0
		for _, r := range set.Rows[:size] {
			if _, ok := ParseDate(r[l], opt.Preference); ok {
				score++
			}
		}
		if score > 0 && score >= need {
			out = append(out, l)
		}
	}
	return out
}
