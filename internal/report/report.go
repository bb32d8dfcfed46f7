// Package report defines the report-runner collaborator: the column metadata
// and raw rows a parameterized report returns, plus runners that fetch them.
//
// The pivot core never executes reports itself. It consumes a Runner and
// treats whatever it returns as weakly typed input for the normalizer.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// DeclaredType is the coarse type a report declares for a column.
type DeclaredType string

const (
	TypeNumeric DeclaredType = "numeric"
	TypeText    DeclaredType = "text"
	TypeUnknown DeclaredType = "unknown"
)

// numericFieldTypes are the host field types that carry numbers.
var numericFieldTypes = map[string]struct{}{
	"float":    {},
	"currency": {},
	"int":      {},
	"percent":  {},
	"duration": {},
}

// TypeFromFieldType maps a host field type ("Currency", "Link", ...) to a
// DeclaredType. Matching is case-insensitive; an empty field type is unknown.
func TypeFromFieldType(ft string) DeclaredType {
	ft = strings.ToLower(strings.TrimSpace(ft))
	if ft == "" {
		return TypeUnknown
	}
	if _, ok := numericFieldTypes[ft]; ok {
		return TypeNumeric
	}
	return TypeText
}

// Column is the metadata of one result column.
//
// Key is the stable internal identifier (the host's fieldname). Label is the
// human-facing name and becomes the record key after normalization.
type Column struct {
	Key   string       `json:"fieldname"`
	Label string       `json:"label"`
	Type  DeclaredType `json:"-"`
}

// UnmarshalJSON accepts both the host's column objects
// ({"fieldname","label","fieldtype"}) and bare strings (label only).
func (c *Column) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*c = Column{Label: s, Type: TypeUnknown}
		return nil
	}

	var raw struct {
		Fieldname string `json:"fieldname"`
		Label     string `json:"label"`
		Fieldtype string `json:"fieldtype"`
		Type      string `json:"type"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("report: decode column: %w", err)
	}

	c.Key = raw.Fieldname
	c.Label = raw.Label
	switch DeclaredType(strings.ToLower(raw.Type)) {
	case TypeNumeric, TypeText:
		c.Type = DeclaredType(strings.ToLower(raw.Type))
	default:
		c.Type = TypeFromFieldType(raw.Fieldtype)
	}
	return nil
}

// Result is the raw output of one report run.
//
// Rows holds the raw row values exactly as decoded: each element is either
// a positional []any or a keyed map[string]any. Numbers decode as
// json.Number so no precision is lost before classification.
type Result struct {
	Columns []Column
	Rows    []any
}

// Filters are the report parameters forwarded verbatim to the runner.
type Filters map[string]any

// Runner runs a report and returns its raw result.
//
// Errors are transport errors and are surfaced to the user verbatim.
type Runner interface {
	Run(ctx context.Context, reportID string, filters Filters) (Result, error)
}
