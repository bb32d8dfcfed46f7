// Package normalize turns the raw output of a report run into canonical
// records keyed by display label.
//
// Reports return rows either positionally ([]any, aligned with the column
// list) or keyed (map[string]any, keyed by the column's internal fieldname
// or by its label). Normalize hides that difference from every later stage.
package normalize

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"

	"pivot/internal/report"
	"pivot/pkg/records"
)

// DefaultMaxRows caps how many rows a single session pivots.
const DefaultMaxRows = 50000

var (
	// ErrMalformedResult means the first row is neither an array nor an
	// object. The session must abort.
	ErrMalformedResult = errors.New("unexpected data format from report")

	// ErrEmptyResult means the report returned nothing to pivot.
	ErrEmptyResult = errors.New("empty result")
)

// EmptyError carries which half of the result was empty so callers can show
// the right status line.
type EmptyError struct {
	NoColumns bool
}

func (e *EmptyError) Error() string {
	if e.NoColumns {
		return "No columns returned from the report."
	}
	return "No data returned for the current filters."
}

func (e *EmptyError) Is(target error) bool { return target == ErrEmptyResult }

// Options tunes normalization. The zero value is usable.
type Options struct {
	// MaxRows truncates the input before normalization. <= 0 means
	// DefaultMaxRows.
	MaxRows int
}

// Result is the normalized record set plus truncation bookkeeping.
type Result struct {
	Set records.Set

	// Total is the number of raw rows the report returned.
	Total int
	// Dropped is how many of them were cut by MaxRows.
	Dropped int
}

// Truncated reports whether MaxRows cut the input.
func (r Result) Truncated() bool { return r.Dropped > 0 }

// Normalize converts raw report rows into canonical records.
//
// Every output record has exactly one entry per column, keyed by the
// column's resolved label (see Labels). Missing cells become nil.
//
// Edge cases:
//   - Keyed rows are looked up by column Key first, then by the raw label.
//   - A row after the first whose shape is neither array nor object yields
//     an all-nil record.
//   - Positional rows shorter than the column list are padded with nil;
//     extra cells are ignored.
//
// Errors:
//   - ErrEmptyResult (as *EmptyError) when there are no columns or no rows.
//   - ErrMalformedResult when the first row has an unsupported shape.
func Normalize(columns []report.Column, rows []any, opt Options) (Result, error) {
	if len(columns) == 0 {
		return Result{}, &EmptyError{NoColumns: true}
	}
	if len(rows) == 0 {
		return Result{}, &EmptyError{}
	}

	switch rows[0].(type) {
	case []any, map[string]any:
	default:
		return Result{}, fmt.Errorf("%w: first row is %T", ErrMalformedResult, rows[0])
	}

	limit := opt.MaxRows
	if limit <= 0 {
		limit = DefaultMaxRows
	}
	res := Result{Total: len(rows)}
	if len(rows) > limit {
		res.Dropped = len(rows) - limit
		rows = rows[:limit]
	}

	labels := Labels(columns)
	out := make([]records.Record, 0, len(rows))
	for _, raw := range rows {
		rec := make(records.Record, len(labels))
		switch row := raw.(type) {
		case []any:
			for i, l := range labels {
				if i < len(row) {
					rec[l] = Scalar(row[i])
				} else {
					rec[l] = nil
				}
			}
		case map[string]any:
			for i, l := range labels {
				rec[l] = Scalar(lookup(row, columns[i]))
			}
		default:
			for _, l := range labels {
				rec[l] = nil
			}
		}
		out = append(out, rec)
	}

	res.Set = records.Set{Labels: labels, Rows: out}
	return res, nil
}

func lookup(row map[string]any, c report.Column) any {
	if c.Key != "" {
		if v, ok := row[c.Key]; ok {
			return v
		}
	}
	if v, ok := row[c.Label]; ok {
		return v
	}
	if l := strings.TrimSpace(c.Label); l != c.Label {
		return row[l]
	}
	return nil
}

// Labels resolves the display label of every column.
//
// For column i the label is the trimmed, NFC-normalized Label; if blank the
// Key; if still blank "Col <i+1>". A label that repeats an earlier one gets
// " <i+1>" appended until it is unique, so the output always has
// len(columns) distinct entries.
func Labels(columns []report.Column) []string {
	out := make([]string, len(columns))
	seen := make(map[string]struct{}, len(columns))
	for i, c := range columns {
		l := clean(c.Label)
		if l == "" {
			l = clean(c.Key)
		}
		if l == "" {
			l = "Col " + strconv.Itoa(i+1)
		}
		for {
			if _, dup := seen[l]; !dup {
				break
			}
			l = l + " " + strconv.Itoa(i+1)
		}
		seen[l] = struct{}{}
		out[i] = l
	}
	return out
}

func clean(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

// Scalar reduces a decoded cell to a canonical scalar: float64, string or
// nil. Numbers (json.Number or any Go numeric) become float64, bools become
// "true"/"false", nested arrays and objects become their compact JSON text.
func Scalar(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		return t
	case json.Number:
		if f, err := t.Float64(); err == nil && !math.IsInf(f, 0) {
			return f
		}
		return t.String()
	case float64:
		return t
	case float32:
		return float64(t)
	case int:
		return float64(t)
	case int8:
		return float64(t)
	case int16:
		return float64(t)
	case int32:
		return float64(t)
	case int64:
		return float64(t)
	case uint:
		return float64(t)
	case uint8:
		return float64(t)
	case uint16:
		return float64(t)
	case uint32:
		return float64(t)
	case uint64:
		return float64(t)
	case bool:
		return strconv.FormatBool(t)
	case []any, map[string]any:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	default:
		return fmt.Sprint(t)
	}
}
