package records

import (
	"math"
	"testing"
)

func TestKeyString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   any
		want string
	}{
		{"nil", nil, "null"},
		{"string", "Germany", "Germany"},
		{"whole float", 1200.0, "1200"},
		{"fraction", 12.5, "12.5"},
		{"negative", -0.25, "-0.25"},
		{"int", 42, "42"},
		{"int64", int64(7), "7"},
		{"bool", true, "true"},
		{"bytes", []byte("raw"), "raw"},
		{"nan", math.NaN(), "NaN"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := KeyString(tt.in); got != tt.want {
				t.Fatalf("KeyString(%#v) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSet_HasLabelAndValues(t *testing.T) {
	t.Parallel()

	s := Set{
		Labels: []string{"Region", "Amount"},
		Rows: []Record{
			{"Region": "EU", "Amount": 1.0},
			{"Region": "US", "Amount": nil},
		},
	}

	if !s.HasLabel("Region") || s.HasLabel("Ghost") {
		t.Fatalf("HasLabel mismatch")
	}
	vals := s.Values("Region")
	if len(vals) != 2 || vals[0] != "EU" || vals[1] != "US" {
		t.Fatalf("Values(Region) = %v", vals)
	}
	if s.Len() != 2 {
		t.Fatalf("Len = %d, want 2", s.Len())
	}
}
