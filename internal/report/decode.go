package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// envelope covers the shapes a query-report response arrives in:
//
//	{"message": {"columns": [...], "result": [...]}}
//	{"columns": [...], "result": [...]}
//
// "values" and "rows" are accepted as aliases for "result".
type envelope struct {
	Message *payload `json:"message"`
	payload
}

type payload struct {
	Columns []Column          `json:"columns"`
	Result  []json.RawMessage `json:"result"`
	Values  []json.RawMessage `json:"values"`
	Rows    []json.RawMessage `json:"rows"`
}

func (p payload) rows() []json.RawMessage {
	switch {
	case len(p.Result) > 0:
		return p.Result
	case len(p.Values) > 0:
		return p.Values
	default:
		return p.Rows
	}
}

// DecodeResult parses a report response body.
//
// Rows are decoded with UseNumber so numeric cells stay json.Number until
// the normalizer reduces them to float64. Row shapes are not validated here;
// the normalizer owns that decision.
//
// Errors:
//   - Returns an error when the body is not a JSON object.
func DecodeResult(r io.Reader) (Result, error) {
	var env envelope
	dec := json.NewDecoder(r)
	if err := dec.Decode(&env); err != nil {
		return Result{}, fmt.Errorf("report: decode response: %w", err)
	}

	p := env.payload
	if env.Message != nil {
		p = *env.Message
	}

	raw := p.rows()
	rows := make([]any, 0, len(raw))
	for i, rm := range raw {
		var v any
		d := json.NewDecoder(bytes.NewReader(rm))
		d.UseNumber()
		if err := d.Decode(&v); err != nil {
			return Result{}, fmt.Errorf("report: decode row %d: %w", i, err)
		}
		rows = append(rows, v)
	}

	return Result{Columns: p.Columns, Rows: rows}, nil
}
