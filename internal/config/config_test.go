package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"pivot/internal/classify"
	"pivot/internal/normalize"
	"pivot/internal/report"
	_ "pivot/internal/storage/sqlite"
	"pivot/pkg/records"
)

func TestLoad_ExpandsAndDefaults(t *testing.T) {
	t.Setenv("PIVOT_TEST_DSN", "file:/tmp/presets.db")

	path := filepath.Join(t.TempDir(), "pivot.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"principal": "alice",
		"presets": {"remote": {"kind": "sqlite", "dsn": "${PIVOT_TEST_DSN}"}, "local": {"kind": "badger"}}
	}`), 0o600))

	c, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "file:/tmp/presets.db", c.Presets.Remote.DSN)
	require.Equal(t, "file", c.Report.Kind)
	require.Equal(t, "reports", c.Report.Dir)
	require.Equal(t, 50000, c.MaxRows)
	require.Equal(t, 1, c.Classify.SampleRows)
	require.Equal(t, 0.4, c.Derive.Threshold)
	require.Equal(t, 5*time.Minute, c.ListTTL())
	require.Empty(t, Validate(c))
}

func TestDefaults_LocalTierPersists(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", t.TempDir())

	c := Defaults(Config{Principal: "alice"})
	require.Equal(t, "badger", c.Presets.Local.Kind)
	require.Equal(t, DefaultCacheDir(), c.Presets.Local.Path)
	require.Equal(t, "pivot", filepath.Base(c.Presets.Local.Path))

	c = Defaults(Config{Presets: Presets{Local: Local{Kind: "badger", Path: "/srv/pivot"}}})
	require.Equal(t, "/srv/pivot", c.Presets.Local.Path)

	c = Defaults(Config{Presets: Presets{Local: Local{Kind: "memory"}}})
	require.Empty(t, c.Presets.Local.Path)
}

func TestDecode_RejectsUnknownFields(t *testing.T) {
	t.Parallel()

	_, err := Decode(strings.NewReader(`{"reprot": {}}`))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	base := func() Config {
		c := Defaults(Config{Principal: "alice"})
		c.Presets.Remote = Remote{Kind: "sqlite", DSN: "file:x.db"}
		c.Presets.Local.Kind = "badger"
		return c
	}

	tests := []struct {
		name     string
		mutate   func(*Config)
		wantPath string
		wantSev  Severity
	}{
		{"http without base url", func(c *Config) { c.Report = Report{Kind: "http", Token: "t"} }, "report.base_url", SeverityError},
		{"relative base url", func(c *Config) { c.Report = Report{Kind: "http", BaseURL: "erp.local", Token: "t"} }, "report.base_url", SeverityError},
		{"no token", func(c *Config) { c.Report = Report{Kind: "http", BaseURL: "https://erp.local"} }, "report.token", SeverityWarning},
		{"bad report kind", func(c *Config) { c.Report.Kind = "ftp" }, "report.kind", SeverityError},
		{"unknown remote", func(c *Config) { c.Presets.Remote.Kind = "oracle" }, "presets.remote.kind", SeverityError},
		{"remote without dsn", func(c *Config) { c.Presets.Remote.DSN = "" }, "presets.remote.dsn", SeverityError},
		{"bad table", func(c *Config) { c.Presets.Remote.Table = "drop table;" }, "presets.remote.table", SeverityError},
		{"local only", func(c *Config) { c.Presets.Remote = Remote{} }, "presets.remote.kind", SeverityWarning},
		{"memory cache", func(c *Config) { c.Presets.Local.Kind = "memory" }, "presets.local.kind", SeverityWarning},
		{"bad ttl", func(c *Config) { c.Presets.ListTTL = "soon" }, "presets.list_ttl", SeverityError},
		{"threshold", func(c *Config) { c.Derive.Threshold = 1.5 }, "derive.threshold", SeverityError},
		{"preference", func(c *Config) { c.Derive.DatePreference = "iso" }, "derive.date_preference", SeverityError},
		{"metrics", func(c *Config) { c.Metrics.Backend = "statsd" }, "metrics.backend", SeverityError},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c := base()
			tt.mutate(&c)
			issues := Validate(c)
			require.Len(t, issues, 1, "%v", issues)
			require.Equal(t, tt.wantPath, issues[0].Path)
			require.Equal(t, tt.wantSev, issues[0].Severity)
			require.Equal(t, tt.wantSev == SeverityError, HasErrors(issues))
		})
	}
}

func TestDefaults_BlankCellKeepsMeasure(t *testing.T) {
	t.Parallel()

	res, err := report.DecodeCSV(strings.NewReader("Region,Amount\nNorth,10\nSouth,\nEast,5\n"))
	require.NoError(t, err)
	norm, err := normalize.Normalize(res.Columns, res.Rows, normalize.Options{})
	require.NoError(t, err)

	for _, sample := range []int{Defaults(Config{}).Classify.SampleRows, 200} {
		set := norm.Set
		set.Rows = make([]records.Record, len(norm.Set.Rows))
		for i, r := range norm.Set.Rows {
			set.Rows[i] = records.Record{}
			for k, v := range r {
				set.Rows[i][k] = v
			}
		}
		got := classify.Classify(res.Columns, &set, classify.Options{SampleRows: sample})
		require.Equal(t, []string{"Region"}, got.Dimensions, "sample_rows=%d", sample)
		require.Equal(t, []string{"Amount"}, got.Measures, "sample_rows=%d", sample)
	}
}
