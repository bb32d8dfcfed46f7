package report

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// DecodeCSV reads a report saved as CSV: the header row names the columns
// and every later record becomes one positional row.
//
// Column types are unknown, so classification infers measures from the
// values. Cells are trimmed; empty cells become nil. A leading byte order
// mark on the first header is dropped. Short records are padded by the
// normalizer, long ones are cut there.
//
// Errors:
//   - Returns an error when the header cannot be read or a record is
//     malformed; the line number is included.
func DecodeCSV(r io.Reader) (Result, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	hdr, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return Result{}, nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("report: read csv header: %w", err)
	}

	cols := make([]Column, len(hdr))
	for i, h := range hdr {
		h = strings.TrimSpace(h)
		if i == 0 {
			h = strings.TrimPrefix(h, "\uFEFF")
		}
		cols[i] = Column{Label: h, Type: TypeUnknown}
	}

	var rows []any
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Result{}, fmt.Errorf("report: csv line %d: %w", line, err)
		}
		row := make([]any, len(rec))
		for i, v := range rec {
			v = strings.TrimSpace(v)
			if v == "" {
				row[i] = nil
			} else {
				row[i] = v
			}
		}
		rows = append(rows, row)
	}
	return Result{Columns: cols, Rows: rows}, nil
}
