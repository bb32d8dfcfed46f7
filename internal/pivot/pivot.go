// Package pivot runs one report-to-pivot session: run the report,
// normalize and classify its rows, restore the last layout, hand a frame to
// the renderer and serve the renderer's callbacks (drill-down, layout
// changes) plus preset and export actions.
package pivot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"pivot/internal/classify"
	"pivot/internal/derive"
	"pivot/internal/drill"
	"pivot/internal/export"
	"pivot/internal/layout"
	"pivot/internal/metrics"
	"pivot/internal/normalize"
	"pivot/internal/presets"
	"pivot/internal/report"
	"pivot/pkg/records"
)

// Notice is an error whose text is meant for the analyst as is.
type Notice string

func (n Notice) Error() string { return string(n) }

const (
	ErrNoDateColumns Notice = "No obvious date columns found."
	ErrNoTable       Notice = "Switch to a table renderer to export CSV."
	ErrNotOwner      Notice = "You can only delete your own preset."
	ErrNoPresetName  Notice = "Give this preset a name."
)

// ErrNotOpen is returned by every operation that needs an open report.
var ErrNotOpen = errors.New("pivot: no report open")

// Frame is what a renderer receives.
type Frame struct {
	Set       records.Set
	Layout    layout.Layout
	Derived   derive.Set
	Evaluator derive.Evaluator

	// OnCellClick is called with the clicked cell's label → value filters.
	OnCellClick func(filters map[string]any) drill.Result

	// OnLayoutChange is called whenever the user rearranges the pivot.
	OnLayoutChange func(l layout.Layout)
}

// Renderer draws a frame. The pivot engine behind it is not part of this
// module.
type Renderer interface {
	Render(ctx context.Context, f Frame) error
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(ctx context.Context, f Frame) error

func (fn RendererFunc) Render(ctx context.Context, f Frame) error { return fn(ctx, f) }

// Options configures a Session. Runner and Presets are required.
type Options struct {
	Runner   report.Runner
	Presets  presets.Store
	LastUsed presets.LastUsed

	// ListTTL bounds how long a preset listing answers ownership checks.
	ListTTL time.Duration

	MaxRows  int
	Classify classify.Options
	Derive   derive.Options

	Log *slog.Logger
}

// View is the state of the open report.
type View struct {
	ReportID string
	Filters  report.Filters
	Columns  []report.Column
	Set      records.Set
	Classes  classify.Result
	Derived  derive.Set
	Layout   layout.Layout

	// Total and Loaded count raw rows before and after the row cap.
	Total  int
	Loaded int
}

// Status is the line shown above the pivot: empty unless rows were cut.
func (v *View) Status() string {
	if v.Loaded >= v.Total {
		return ""
	}
	return fmt.Sprintf("Showing first %d rows out of %d", v.Loaded, v.Total)
}

// Session holds one open report. Its methods are safe for concurrent use;
// Open calls are serialized.
type Session struct {
	opt Options
	log *slog.Logger

	mu      sync.Mutex
	view    *View
	presets *presets.Manager
}

func NewSession(opt Options) *Session {
	log := opt.Log
	if log == nil {
		log = slog.Default()
	}
	return &Session{opt: opt, log: log}
}

// Open runs reportID with filters and prepares the view.
//
// Errors:
//   - transport errors from the runner, verbatim.
//   - normalize.ErrEmptyResult (as *normalize.EmptyError, whose text is the
//     status line to show) when there is nothing to pivot.
//   - normalize.ErrMalformedResult when the result shape is unsupported.
//
// A failed Open leaves the previously open report in place.
func (s *Session) Open(ctx context.Context, reportID string, filters report.Filters) (*View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.opt.Runner.Run(ctx, reportID, filters)
	if err != nil {
		return nil, err
	}
	norm, err := normalize.Normalize(res.Columns, res.Rows, normalize.Options{MaxRows: s.opt.MaxRows})
	if err != nil {
		return nil, err
	}
	metrics.RecordRows(norm.Set.Len(), norm.Dropped)

	set := norm.Set
	classes := classify.Classify(res.Columns, &set, s.opt.Classify)

	saved, err := s.opt.LastUsed.Get(reportID)
	if err != nil {
		s.log.Warn("pivot: reading last-used layout", "report", reportID, "error", err)
	}

	v := &View{
		ReportID: reportID,
		Filters:  filters,
		Columns:  res.Columns,
		Set:      set,
		Classes:  classes,
		Total:    norm.Total,
		Loaded:   set.Len(),
	}
	v.Layout = s.resolve(v, saved)

	s.view = v
	s.presets = presets.NewManager(s.opt.Presets, reportID, s.opt.ListTTL)
	s.log.Debug("pivot: report opened",
		"report", reportID,
		"rows", v.Loaded,
		"dropped", norm.Dropped,
		"dimensions", len(classes.Dimensions),
		"measures", len(classes.Measures),
	)
	return v, nil
}

func (s *Session) resolve(v *View, saved *layout.Layout) layout.Layout {
	return layout.Resolve(v.Classes, saved, layout.Options{
		Derived: v.Derived.Labels(),
		OnUnresolved: func(k layout.UnresolvedKey) {
			s.log.Debug("pivot: dropping saved layout key", "report", v.ReportID, "field", k.Field, "key", k.Key)
		},
	})
}

func (s *Session) current() (*View, error) {
	if s.view == nil {
		return nil, ErrNotOpen
	}
	return s.view, nil
}

// View returns the open view or nil.
func (s *Session) View() *View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view
}

// Evaluator computes derived attribute values the way drill-down does.
func (s *Session) Evaluator() derive.Evaluator {
	return derive.Evaluator{Preference: s.opt.Derive.Preference}
}

// AddDateDerivatives adds Year/Quarter/Month/Day attributes for every
// date-like label. Calling it again replaces the previous set.
func (s *Session) AddDateDerivatives() (derive.Set, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, err := s.current()
	if err != nil {
		return nil, err
	}
	cols := derive.DetectDateLike(v.Set, s.opt.Derive)
	if len(cols) == 0 {
		return nil, ErrNoDateColumns
	}
	v.Derived = derive.Synthesize(cols)
	return v.Derived, nil
}

// Render hands the current frame to r. A non-nil override replaces the
// layout after being resolved against the current labels. After a
// successful render the current layout becomes the report's last-used
// layout.
func (s *Session) Render(ctx context.Context, r Renderer, override *layout.Layout) error {
	s.mu.Lock()
	v, err := s.current()
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if override != nil {
		v.Layout = s.resolve(v, override)
	}
	f := Frame{
		Set:            v.Set,
		Layout:         v.Layout.Clone(),
		Derived:        v.Derived,
		Evaluator:      s.Evaluator(),
		OnCellClick:    s.DrillDown,
		OnLayoutChange: s.layoutChanged,
	}
	s.mu.Unlock()

	if err := r.Render(ctx, f); err != nil {
		return err
	}
	if err := s.rememberCurrent(); err != nil {
		s.log.Warn("pivot: saving last-used layout", "error", err)
	}
	return nil
}

// rememberCurrent persists the current layout, which already includes any
// change the renderer reported during the render.
func (s *Session) rememberCurrent() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, err := s.current()
	if err != nil {
		return err
	}
	return s.opt.LastUsed.Put(v.ReportID, v.Layout)
}

func (s *Session) layoutChanged(l layout.Layout) {
	if err := s.Remember(l); err != nil {
		s.log.Warn("pivot: saving last-used layout", "error", err)
	}
}

// Remember makes l the current layout and the one the next Open of this
// report starts from.
func (s *Session) Remember(l layout.Layout) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, err := s.current()
	if err != nil {
		return err
	}
	v.Layout = l.Clone()
	return s.opt.LastUsed.Put(v.ReportID, v.Layout)
}

// DrillDown returns the records behind one cell. An empty result means
// "No matching rows for this cell."
func (s *Session) DrillDown(filters map[string]any) drill.Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, err := s.current()
	if err != nil {
		return drill.Result{Rows: []records.Record{}}
	}
	return drill.Resolver{Derived: v.Derived, Evaluator: s.Evaluator()}.Resolve(v.Set, filters)
}

// Export serializes a grid the renderer materialized.
func (s *Session) Export(grid export.Grid) string {
	return export.Serialize(grid)
}

// ExportHTML serializes the pivot table found in the renderer's HTML
// output.
func (s *Session) ExportHTML(r io.Reader) (string, error) {
	grid, err := export.GridFromHTML(r, export.DefaultSelector)
	if errors.Is(err, export.ErrNoTable) {
		return "", ErrNoTable
	}
	if err != nil {
		return "", err
	}
	return export.Serialize(grid), nil
}

// ExportFilename is the download name for the open report.
func (s *Session) ExportFilename() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, err := s.current()
	if err != nil {
		return "", err
	}
	return export.Filename(v.ReportID), nil
}

func (s *Session) manager() (*presets.Manager, *View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, err := s.current()
	if err != nil {
		return nil, nil, err
	}
	return s.presets, v, nil
}

func (s *Session) ListPresets(ctx context.Context) (presets.Listing, error) {
	m, _, err := s.manager()
	if err != nil {
		return presets.Listing{}, err
	}
	return m.List(ctx)
}

// SavePreset stores the current layout under name.
func (s *Session) SavePreset(ctx context.Context, name string, vis presets.Visibility) (presets.Preset, error) {
	m, v, err := s.manager()
	if err != nil {
		return presets.Preset{}, err
	}
	s.mu.Lock()
	l := v.Layout.Clone()
	s.mu.Unlock()

	p, err := m.Save(ctx, name, l, vis)
	if errors.Is(err, presets.ErrEmptyName) {
		return presets.Preset{}, ErrNoPresetName
	}
	return p, err
}

// LoadPreset makes preset id the current layout, dropping keys the current
// result no longer has. It returns nil when no tier holds id.
func (s *Session) LoadPreset(ctx context.Context, id string) (*layout.Layout, error) {
	m, v, err := s.manager()
	if err != nil {
		return nil, err
	}
	saved, err := m.Load(ctx, id)
	if err != nil || saved == nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	v.Layout = s.resolve(v, saved)
	l := v.Layout.Clone()
	return &l, nil
}

func (s *Session) DeletePreset(ctx context.Context, id string) error {
	m, _, err := s.manager()
	if err != nil {
		return err
	}
	err = m.Delete(ctx, id)
	if errors.Is(err, presets.ErrNotOwner) {
		return ErrNotOwner
	}
	return err
}
