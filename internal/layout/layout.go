// Package layout holds the pivot layout (which labels go on rows, columns
// and values, plus the aggregator and renderer names) and resolves the
// initial layout of a session from the classification and any saved state.
package layout

import (
	"sort"

	"github.com/samber/lo"

	"pivot/internal/classify"
)

// Default aggregator and renderer names understood by the renderer.
const (
	AggregatorSum   = "Sum"
	AggregatorCount = "Count"
	RendererTable   = "Table"
)

// Layout is a pivot configuration. The JSON keys match the renderer's own
// configuration keys so a layout can be handed over unchanged.
type Layout struct {
	Rows           []string `json:"rows"`
	Cols           []string `json:"cols"`
	Vals           []string `json:"vals"`
	AggregatorName string   `json:"aggregatorName"`
	RendererName   string   `json:"rendererName"`

	// Exclusions maps a label to the values the user filtered out.
	Exclusions map[string][]string `json:"exclusions,omitempty"`
	RowOrder   string              `json:"rowOrder,omitempty"`
	ColOrder   string              `json:"colOrder,omitempty"`
}

// Clone returns a deep copy.
func (l Layout) Clone() Layout {
	out := l
	out.Rows = append([]string(nil), l.Rows...)
	out.Cols = append([]string(nil), l.Cols...)
	out.Vals = append([]string(nil), l.Vals...)
	if l.Exclusions != nil {
		out.Exclusions = make(map[string][]string, len(l.Exclusions))
		for k, v := range l.Exclusions {
			out.Exclusions[k] = append([]string(nil), v...)
		}
	}
	return out
}

// Keys returns every label the layout references (rows, cols, vals, then
// sorted exclusion keys) without duplicates.
func (l Layout) Keys() []string {
	keys := append(append(append([]string{}, l.Rows...), l.Cols...), l.Vals...)
	keys = append(keys, sortedKeys(l.Exclusions)...)
	return lo.Uniq(keys)
}

func sortedKeys(m map[string][]string) []string {
	keys := lo.Keys(m)
	sort.Strings(keys)
	return keys
}

// UnresolvedKey describes a saved key that no longer exists in the current
// result set. It is a warning, never an error.
type UnresolvedKey struct {
	Field string // "rows", "cols", "vals" or "exclusions"
	Key   string
}

// Options tunes Resolve.
type Options struct {
	// Derived are the labels of derived attributes that are valid layout
	// keys in addition to the record labels.
	Derived []string

	// OnUnresolved is called once per dropped saved key. May be nil.
	OnUnresolved func(UnresolvedKey)
}

// Resolve computes the layout to render.
//
// Each field is resolved independently: a non-empty saved list wins,
// otherwise the default applies (rows=[first dimension], cols=[second
// dimension], vals=[first measure], aggregator Sum when any measure exists
// else Count, renderer Table). Saved keys that are neither a current label
// nor a derived label are dropped and reported through OnUnresolved; a
// saved list emptied by dropping falls back to the default.
func Resolve(c classify.Result, saved *Layout, opt Options) Layout {
	def := Default(c)
	if saved == nil {
		return def
	}

	known := make(map[string]struct{}, len(c.Dimensions)+len(c.Measures)+len(opt.Derived))
	for _, l := range c.Dimensions {
		known[l] = struct{}{}
	}
	for _, l := range c.Measures {
		known[l] = struct{}{}
	}
	for _, l := range opt.Derived {
		known[l] = struct{}{}
	}

	keep := func(field string, keys []string) []string {
		return lo.Filter(keys, func(k string, _ int) bool {
			if _, ok := known[k]; ok {
				return true
			}
			if opt.OnUnresolved != nil {
				opt.OnUnresolved(UnresolvedKey{Field: field, Key: k})
			}
			return false
		})
	}
	pick := func(resolved, fallback []string) []string {
		if len(resolved) > 0 {
			return resolved
		}
		return fallback
	}

	out := Layout{
		Rows:           pick(keep("rows", saved.Rows), def.Rows),
		Cols:           pick(keep("cols", saved.Cols), def.Cols),
		Vals:           pick(keep("vals", saved.Vals), def.Vals),
		AggregatorName: lo.Ternary(saved.AggregatorName != "", saved.AggregatorName, def.AggregatorName),
		RendererName:   lo.Ternary(saved.RendererName != "", saved.RendererName, def.RendererName),
		RowOrder:       saved.RowOrder,
		ColOrder:       saved.ColOrder,
	}

	if len(saved.Exclusions) > 0 {
		ex := make(map[string][]string, len(saved.Exclusions))
		for _, k := range keep("exclusions", sortedKeys(saved.Exclusions)) {
			ex[k] = append([]string(nil), saved.Exclusions[k]...)
		}
		if len(ex) > 0 {
			out.Exclusions = ex
		}
	}
	return out
}

// Default is the layout used when nothing was saved.
func Default(c classify.Result) Layout {
	l := Layout{
		Rows:           []string{},
		Cols:           []string{},
		Vals:           []string{},
		AggregatorName: AggregatorCount,
		RendererName:   RendererTable,
	}
	if len(c.Dimensions) > 0 {
		l.Rows = []string{c.Dimensions[0]}
	}
	if len(c.Dimensions) > 1 {
		l.Cols = []string{c.Dimensions[1]}
	}
	if len(c.Measures) > 0 {
		l.Vals = []string{c.Measures[0]}
		l.AggregatorName = AggregatorSum
	}
	return l
}
