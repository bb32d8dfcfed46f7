package report

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FileRunner serves report results from files on disk, one file per
// report: <Dir>/<reportID>.json holding a captured query-report response,
// or else <Dir>/<reportID>.csv holding a report export. Filters are
// ignored.
type FileRunner struct {
	Dir string
}

// Run implements Runner.
func (f FileRunner) Run(ctx context.Context, reportID string, _ Filters) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if strings.TrimSpace(reportID) == "" {
		return Result{}, fmt.Errorf("report: empty report id")
	}

	base := filepath.Join(f.Dir, filepath.Base(reportID))
	fh, err := os.Open(base + ".json")
	if errors.Is(err, fs.ErrNotExist) {
		csvFile, cerr := os.Open(base + ".csv")
		if cerr == nil {
			defer csvFile.Close()
			return DecodeCSV(csvFile)
		}
	}
	if err != nil {
		return Result{}, fmt.Errorf("report: open %s.json: %w", base, err)
	}
	defer fh.Close()

	return DecodeResult(fh)
}
