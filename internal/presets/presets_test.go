package presets

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLocalID_RoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		report, name string
	}{
		{"Sales Report", "Monthly"},
		{"a/b", "x/y z"},
		{"Ünïcode", "100%"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.report, func(t *testing.T) {
			t.Parallel()

			id := LocalID(tt.report, tt.name)
			require.True(t, IsLocalID(id))

			report, name, err := ParseLocalID(id)
			require.NoError(t, err)
			require.Equal(t, tt.report, report)
			require.Equal(t, tt.name, name)
		})
	}
}

func TestParseLocalID_Rejects(t *testing.T) {
	t.Parallel()

	for _, id := range []string{"3f0c2c3e-uuid", "local:noslash", "local:%zz/name"} {
		_, _, err := ParseLocalID(id)
		require.Error(t, err, id)
	}
}

func TestParseVisibility(t *testing.T) {
	t.Parallel()

	v, err := ParseVisibility("")
	require.NoError(t, err)
	require.Equal(t, Private, v)

	v, err = ParseVisibility(" Shared ")
	require.NoError(t, err)
	require.Equal(t, Shared, v)

	_, err = ParseVisibility("public")
	require.Error(t, err)
}

func TestListing_Owns(t *testing.T) {
	t.Parallel()

	l := Listing{Mine: []Preset{{ID: "a"}}, Shared: []Preset{{ID: "b"}}}
	require.True(t, l.Owns("a"))
	require.False(t, l.Owns("b"))
	require.False(t, l.Owns("c"))
}
