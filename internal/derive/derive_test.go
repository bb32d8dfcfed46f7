package derive

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"pivot/pkg/records"
)

func TestSynthesize_LabelsAndOrder(t *testing.T) {
	t.Parallel()

	got := Synthesize([]string{"Posting Date"}).Labels()
	want := []string{
		"Posting Date (Year)",
		"Posting Date (Quarter)",
		"Posting Date (Month)",
		"Posting Date (Day)",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("labels mismatch (-want +got):\n%s", diff)
	}

	attr, ok := Synthesize([]string{"A", "B"}).Lookup("B (Month)")
	require.True(t, ok)
	require.Equal(t, Attribute{Source: "B", Kind: Month}, attr)

	_, ok = Synthesize([]string{"A"}).Lookup("A (Week)")
	require.False(t, ok)
}

func TestEval(t *testing.T) {
	t.Parallel()

	rec := records.Record{"D": "2024-11-05", "Bad": "not a date", "Num": 20240105.0}
	tests := []struct {
		attr Attribute
		want any
	}{
		{Attribute{"D", Year}, 2024},
		{Attribute{"D", Quarter}, "Q4"},
		{Attribute{"D", Month}, "11"},
		{Attribute{"D", Day}, "05"},
		{Attribute{"Bad", Year}, nil},
		{Attribute{"Bad", Quarter}, nil},
		{Attribute{"Bad", Month}, nil},
		{Attribute{"Bad", Day}, nil},
		{Attribute{"Num", Year}, nil},
		{Attribute{"Missing", Day}, nil},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, Eval(tt.attr, rec), "Eval(%s)", tt.attr.Label())
	}
}

func TestEval_QuarterBoundaries(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"2024-01-01": "Q1",
		"2024-03-31": "Q1",
		"2024-04-01": "Q2",
		"2024-06-30": "Q2",
		"2024-07-01": "Q3",
		"2024-10-01": "Q4",
		"2024-12-31": "Q4",
	}
	for in, want := range cases {
		require.Equal(t, want, Eval(Attribute{"D", Quarter}, records.Record{"D": in}), in)
	}
}

func TestEval_DoesNotMutateRecordAndIsStable(t *testing.T) {
	t.Parallel()

	rec := records.Record{"D": "2023-02-14T10:00:00Z", "X": "keep"}
	before := records.Record{"D": rec["D"], "X": rec["X"]}

	for _, a := range Synthesize([]string{"D"}) {
		first := Eval(a, rec)
		second := Eval(a, rec)
		require.Equal(t, first, second, a.Label())
	}
	require.Equal(t, before, rec)
}

func TestParseDate_Preference(t *testing.T) {
	t.Parallel()

	us, ok := ParseDate("03/04/2024", MonthFirst)
	require.True(t, ok)
	require.Equal(t, time.March, us.Month())

	eu, ok := ParseDate("03/04/2024", DayFirst)
	require.True(t, ok)
	require.Equal(t, time.April, eu.Month())

	// unambiguous day-first still parses under month-first preference
	d, ok := ParseDate("25/12/2024", MonthFirst)
	require.True(t, ok)
	require.Equal(t, 25, d.Day())

	_, ok = ParseDate("   ", MonthFirst)
	require.False(t, ok)
	_, ok = ParseDate(nil, MonthFirst)
	require.False(t, ok)

	ts := time.Date(2022, 8, 9, 0, 0, 0, 0, time.UTC)
	got, ok := ParseDate(ts, "")
	require.True(t, ok)
	require.Equal(t, ts, got)
}

func TestDetectDateLike(t *testing.T) {
	t.Parallel()

	rows := make([]records.Record, 0, 10)
	for i := 0; i < 10; i++ {
		r := records.Record{
			"Posting Date": "2024-01-15",
			"Customer":     "ACME",
			"Mixed":        "n/a",
			"Empty":        nil,
		}
		if i < 4 {
			r["Mixed"] = "2024-02-01"
		}
		rows = append(rows, r)
	}
	set := records.Set{Labels: []string{"Posting Date", "Customer", "Mixed", "Empty"}, Rows: rows}

	// 4 of 10 dates meets ceil(10*0.4)=4
	require.Equal(t, []string{"Posting Date", "Mixed"}, DetectDateLike(set, Options{}))

	// a stricter threshold drops Mixed
	require.Equal(t, []string{"Posting Date"}, DetectDateLike(set, Options{Threshold: 0.5}))

	require.Empty(t, DetectDateLike(records.Set{Labels: []string{"A"}}, Options{}))
}

func TestDetectDateLike_SampleIsPrefix(t *testing.T) {
	t.Parallel()

	rows := []records.Record{{"D": "x"}, {"D": "x"}, {"D": "2024-01-01"}, {"D": "2024-01-01"}}
	set := records.Set{Labels: []string{"D"}, Rows: rows}

	require.Empty(t, DetectDateLike(set, Options{SampleSize: 2}))
	require.Equal(t, []string{"D"}, DetectDateLike(set, Options{SampleSize: 4}))
}
