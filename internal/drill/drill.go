// Package drill resolves a clicked pivot cell back to the records that were
// aggregated into it.
package drill

import (
	"pivot/internal/derive"
	"pivot/pkg/records"
)

// Result is the ordered subset of records behind one cell.
type Result struct {
	Rows []records.Record
}

// Empty reports whether no record matched. Callers show "No matching rows
// for this cell." instead of a table.
func (r Result) Empty() bool { return len(r.Rows) == 0 }

// Resolve returns every record of set whose value for each filter key equals
// the filter value, in set order.
//
// Filter keys may be record labels or derived labels; derived values are
// computed with eval. Values are compared in their canonical string form
// (records.KeyString), so 1200.0 matches "1200" and nil matches "null". A
// key that is neither a label nor a derived label reads as nil. An empty
// filter map matches every record.
func Resolve(set records.Set, derived derive.Set, filters map[string]any) Result {
	return Resolver{Derived: derived}.Resolve(set, filters)
}

// Resolver carries the derived attributes and the evaluator used for them.
type Resolver struct {
	Derived   derive.Set
	Evaluator derive.Evaluator
}

type predicate struct {
	label string
	attr  *derive.Attribute
	want  string
}

// Resolve is the method form of the package-level Resolve.
func (rv Resolver) Resolve(set records.Set, filters map[string]any) Result {
	preds := make([]predicate, 0, len(filters))
	for k, v := range filters {
		p := predicate{label: k, want: records.KeyString(v)}
		if !set.HasLabel(k) {
			if a, ok := rv.Derived.Lookup(k); ok {
				p.attr = &a
			}
		}
		preds = append(preds, p)
	}

	out := make([]records.Record, 0)
	for _, r := range set.Rows {
		if rv.matches(r, preds) {
			out = append(out, r)
		}
	}
	return Result{Rows: out}
}

func (rv Resolver) matches(r records.Record, preds []predicate) bool {
	for _, p := range preds {
		var got any
		if p.attr != nil {
			got = rv.Evaluator.Eval(*p.attr, r)
		} else {
			got = r[p.label]
		}
		if records.KeyString(got) != p.want {
			return false
		}
	}
	return true
}
