// Package records defines the canonical record shape shared by the pivot
// pipeline stages.
//
// A Record is a flat label → scalar mapping. Scalars are float64, string or
// nil. Go maps are unordered, so the declared column order travels beside
// the records in Set.Labels.
package records

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Record is one canonical row keyed by display label.
type Record map[string]any

// Set is an ordered collection of records that all share Labels as their
// key set.
type Set struct {
	Labels []string
	Rows   []Record
}

// Len returns the number of records in the set.
func (s Set) Len() int { return len(s.Rows) }

// HasLabel reports whether label is one of the set's declared labels.
func (s Set) HasLabel(label string) bool {
	for _, l := range s.Labels {
		if l == label {
			return true
		}
	}
	return false
}

// Values returns the values of one label in record order.
func (s Set) Values(label string) []any {
	out := make([]any, len(s.Rows))
	for i, r := range s.Rows {
		out[i] = r[label]
	}
	return out
}

// KeyString converts a scalar to the canonical string form used when
// comparing record values against renderer-supplied filter values
// (e.g. "Germany", "1200", "12.5", "null").
//
// Floats use the shortest representation that round-trips, so 1200.0
// becomes "1200" the same way a browser renders the number.
func KeyString(v any) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case string:
		return t
	case float64:
		return formatFloat(t)
	case float32:
		return formatFloat(float64(t))
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	case []byte:
		return string(t)
	case interface{ String() string }:
		return t.String()
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func formatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
