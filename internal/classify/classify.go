// Package classify splits record labels into dimensions (group-by keys) and
// measures (aggregated values) and coerces measure values to numbers.
package classify

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"pivot/internal/report"
	"pivot/pkg/records"
)

// Options tunes the inference step.
type Options struct {
	// SampleRows is how many leading records are inspected when no column
	// declares a numeric type. Blank cells are skipped; a label becomes a
	// measure when it has at least one non-blank sampled value and every
	// non-blank sampled value is numeric-like. <= 0 means 1.
	SampleRows int
}

// Result is the disjoint partition of a set's labels, each list in label
// order.
type Result struct {
	Dimensions []string
	Measures   []string
}

// IsMeasure reports whether label was classified as a measure.
func (r Result) IsMeasure(label string) bool {
	for _, m := range r.Measures {
		if m == label {
			return true
		}
	}
	return false
}

// Classify partitions set.Labels and coerces measure values in place.
//
// Declared numeric columns are measures. When nothing is declared numeric
// and the set has records, labels whose sampled values are numeric-like are
// promoted to measures instead. columns must be the list the set was
// normalized from, in the same order.
func Classify(columns []report.Column, set *records.Set, opt Options) Result {
	var res Result
	for i, l := range set.Labels {
		if i < len(columns) && columns[i].Type == report.TypeNumeric {
			res.Measures = append(res.Measures, l)
		} else {
			res.Dimensions = append(res.Dimensions, l)
		}
	}

	if len(res.Measures) == 0 && len(set.Rows) > 0 {
		res = infer(set, opt.SampleRows)
	}

	Coerce(set, res.Measures)
	return res
}

func infer(set *records.Set, sample int) Result {
	if sample <= 0 {
		sample = 1
	}
	if sample > len(set.Rows) {
		sample = len(set.Rows)
	}

	var res Result
	for _, l := range set.Labels {
		numeric, seen := true, false
		for _, r := range set.Rows[:sample] {
			if isBlank(r[l]) {
				continue
			}
			seen = true
			if !IsNumericLike(r[l]) {
				numeric = false
				break
			}
		}
		if numeric && seen {
			res.Measures = append(res.Measures, l)
		} else {
			res.Dimensions = append(res.Dimensions, l)
		}
	}
	return res
}

func isBlank(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && strings.TrimSpace(s) == ""
}

// Coerce replaces string values of the given labels with their parsed
// number when ParseNumber succeeds. Values that fail to parse are left
// unchanged. Running it twice is the same as running it once.
func Coerce(set *records.Set, measures []string) {
	for _, r := range set.Rows {
		for _, m := range measures {
			s, ok := r[m].(string)
			if !ok {
				continue
			}
			if f, ok := ParseNumber(s); ok {
				r[m] = f
			}
		}
	}
}

// IsNumericLike reports whether v is a finite number or a string that
// ParseNumber accepts.
func IsNumericLike(v any) bool {
	switch t := v.(type) {
	case float64:
		return !math.IsNaN(t) && !math.IsInf(t, 0)
	case string:
		_, ok := ParseNumber(t)
		return ok
	default:
		return false
	}
}

var (
	nonNumeric  = regexp.MustCompile(`[^\d.\-]`)
	floatPrefix = regexp.MustCompile(`^-?(\d+(\.\d*)?|\.\d+)`)
)

// ParseNumber strips every character except digits, '.' and '-' and parses
// the longest leading float in what remains, so "$1,234.50" is 1234.5 and
// "12-3" is 12. It fails when no digits lead the stripped text or the
// result is not finite.
func ParseNumber(s string) (float64, bool) {
	stripped := nonNumeric.ReplaceAllString(s, "")
	m := floatPrefix.FindString(strings.TrimSpace(stripped))
	if m == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(m, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
