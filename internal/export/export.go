// Package export serializes a rendered pivot table to comma-separated text.
//
// The input is the grid the renderer materialized (header rows included),
// not the records: what the user sees is what gets exported.
package export

import (
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// DefaultSelector matches the table the pivot renderer emits.
const DefaultSelector = "table.pvtTable"

// ErrNoTable is returned when the rendered output has no table to export,
// which happens when a chart renderer is active.
var ErrNoTable = errors.New("export: no table in rendered output")

// Grid is a rendered table: rows of cell texts. Rows may have different
// lengths (header rows with spans usually do).
type Grid [][]string

var lineBreak = regexp.MustCompile(`\r\n|\n|\r`)

// Cell normalizes one cell: line breaks become single spaces, surrounding
// whitespace is trimmed, and the result is quoted (inner quotes doubled)
// when it contains a comma, a double quote or a newline.
func Cell(s string) string {
	s = strings.TrimSpace(lineBreak.ReplaceAllString(s, " "))
	if strings.ContainsAny(s, "\",\n") {
		s = `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
	}
	return s
}

// Serialize renders grid as comma-joined cells and newline-joined rows,
// with no trailing newline.
//
// Example: [["Region","Total"],["North, East","1,200"]] becomes
//
//	Region,Total
//	"North, East","1,200"
func Serialize(grid Grid) string {
	var b strings.Builder
	for i, row := range grid {
		if i > 0 {
			b.WriteByte('\n')
		}
		for j, c := range row {
			if j > 0 {
				b.WriteByte(',')
			}
			b.WriteString(Cell(c))
		}
	}
	return b.String()
}

// Write serializes grid to w.
func Write(w io.Writer, grid Grid) error {
	if _, err := io.WriteString(w, Serialize(grid)); err != nil {
		return fmt.Errorf("export: write: %w", err)
	}
	return nil
}

// GridFromHTML reads the first table matching selector (DefaultSelector
// when empty) from rendered HTML and returns its th/td texts row by row.
//
// Whitespace runs inside a cell (source line breaks included) collapse to
// one space the way a browser displays them.
//
// Errors:
//   - ErrNoTable when nothing matches selector.
//   - Returns a wrapped error when the HTML cannot be parsed.
func GridFromHTML(r io.Reader, selector string) (Grid, error) {
	if selector == "" {
		selector = DefaultSelector
	}
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("export: parse html: %w", err)
	}

	table := doc.Find(selector).First()
	if table.Length() == 0 {
		return nil, ErrNoTable
	}

	var grid Grid
	table.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		row := []string{}
		tr.Find("th,td").Each(func(_ int, cell *goquery.Selection) {
			row = append(row, whitespaceRun.ReplaceAllString(cell.Text(), " "))
		})
		grid = append(grid, row)
	})
	return grid, nil
}

var whitespaceRun = regexp.MustCompile(`\s+`)

// Filename is the download name for a report's export: whitespace runs in
// the report id become underscores, followed by "_pivot.csv".
func Filename(reportID string) string {
	return whitespaceRun.ReplaceAllString(reportID, "_") + "_pivot.csv"
}
