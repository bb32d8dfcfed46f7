// Package config defines the JSON configuration of the pivot tool.
//
// A config file looks like:
//
//	{
//	  "report":    {"kind": "http", "base_url": "https://erp.example.com", "token": "${ERP_TOKEN}"},
//	  "principal": "alice@example.com",
//	  "presets": {
//	    "remote": {"kind": "postgres", "dsn": "${PRESETS_DSN}"},
//	    "local":  {"kind": "badger", "path": "/var/cache/pivot"}
//	  },
//	  "metrics": {"backend": "datadog", "tags": "team:finance"}
//	}
//
// Strings that carry secrets or DSNs are expanded with os.ExpandEnv on Load.
package config

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

type Config struct {
	Report    Report   `json:"report"`
	Principal string   `json:"principal"`
	MaxRows   int      `json:"max_rows"`
	Classify  Classify `json:"classify"`
	Derive    Derive   `json:"derive"`
	Presets   Presets  `json:"presets"`
	Metrics   Metrics  `json:"metrics"`
	Log       Log      `json:"log"`
}

// Report selects the report runner.
type Report struct {
	// Kind: "file" | "http"
	Kind string `json:"kind"`

	// Dir holds <report>.json files for kind=file.
	Dir string `json:"dir,omitempty"`

	BaseURL string `json:"base_url,omitempty"`
	Method  string `json:"method,omitempty"`
	Token   string `json:"token,omitempty"`
	Retries int    `json:"retries,omitempty"`
}

type Classify struct {
	SampleRows int `json:"sample_rows"`
}

type Derive struct {
	SampleSize int     `json:"sample_size"`
	Threshold  float64 `json:"threshold"`

	// DatePreference orders ambiguous slash dates: "us" (month first) or
	// "eu" (day first).
	DatePreference string `json:"date_preference"`
}

type Presets struct {
	Remote Remote `json:"remote"`
	Local  Local  `json:"local"`

	// ListTTL bounds how long a preset listing answers ownership checks,
	// as a Go duration string.
	ListTTL string `json:"list_ttl,omitempty"`
}

// Remote is the durable preset repository. An empty Kind disables the
// remote tier and presets live only in the local cache.
type Remote struct {
	// Kind: "postgres" | "mssql" | "sqlite" | ""
	Kind  string `json:"kind"`
	DSN   string `json:"dsn"`
	Table string `json:"table,omitempty"`
}

// Local is the fallback preset tier and the last-used layout store. It
// must outlive the process, so it defaults to badger on disk; "memory" is
// for tests and one-off runs.
type Local struct {
	// Kind: "badger" | "memory"
	Kind string `json:"kind"`

	// Path is the badger directory. Empty means DefaultCacheDir.
	Path string `json:"path,omitempty"`
}

// DefaultCacheDir is <user cache dir>/pivot, or <temp dir>/pivot when the
// user cache dir is unknown.
func DefaultCacheDir() string {
	dir, err := os.UserCacheDir()
	if err != nil || dir == "" {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "pivot")
}

type Metrics struct {
	// Backend: "none" | "datadog"
	Backend string `json:"backend"`
	Tags    string `json:"tags,omitempty"`
	Job     string `json:"job,omitempty"`
}

type Log struct {
	Verbose bool `json:"verbose"`
}

// Decode reads a config from r without expanding or defaulting it.
func Decode(r io.Reader) (Config, error) {
	var c Config
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&c); err != nil {
		return Config{}, fmt.Errorf("config: decode: %w", err)
	}
	return c, nil
}

// Load reads path, expands environment references and applies defaults.
// An empty path yields the defaults alone.
func Load(path string) (Config, error) {
	if path == "" {
		return Defaults(Config{}), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: open: %w", err)
	}
	defer f.Close()

	c, err := Decode(f)
	if err != nil {
		return Config{}, err
	}
	return Defaults(Expand(c, os.ExpandEnv)), nil
}

// Expand applies expand to every field that may reference the environment.
func Expand(c Config, expand func(string) string) Config {
	c.Report.Dir = expand(c.Report.Dir)
	c.Report.BaseURL = expand(c.Report.BaseURL)
	c.Report.Token = expand(c.Report.Token)
	c.Principal = expand(c.Principal)
	c.Presets.Remote.DSN = expand(c.Presets.Remote.DSN)
	c.Presets.Local.Path = expand(c.Presets.Local.Path)
	c.Metrics.Tags = expand(c.Metrics.Tags)
	return c
}

// Defaults fills every unset field.
func Defaults(c Config) Config {
	if c.Report.Kind == "" {
		c.Report.Kind = "file"
	}
	if c.Report.Kind == "file" && c.Report.Dir == "" {
		c.Report.Dir = "reports"
	}
	if c.Report.Kind == "http" && c.Report.Method == "" {
		c.Report.Method = "frappe.desk.query_report.run"
	}
	if c.Report.Retries == 0 {
		c.Report.Retries = 3
	}
	if c.Principal == "" {
		c.Principal = os.Getenv("USER")
	}
	if c.MaxRows == 0 {
		c.MaxRows = 50000
	}
	if c.Classify.SampleRows == 0 {
		c.Classify.SampleRows = 1
	}
	if c.Derive.SampleSize == 0 {
		c.Derive.SampleSize = 50
	}
	if c.Derive.Threshold == 0 {
		c.Derive.Threshold = 0.4
	}
	if c.Derive.DatePreference == "" {
		c.Derive.DatePreference = "us"
	}
	if c.Presets.Local.Kind == "" {
		c.Presets.Local.Kind = "badger"
	}
	if c.Presets.Local.Kind == "badger" && c.Presets.Local.Path == "" {
		c.Presets.Local.Path = DefaultCacheDir()
	}
	if c.Presets.ListTTL == "" {
		c.Presets.ListTTL = "5m"
	}
	if c.Metrics.Backend == "" {
		c.Metrics.Backend = "none"
	}
	if c.Metrics.Job == "" {
		c.Metrics.Job = "pivot"
	}
	return c
}

// ListTTL parses Presets.ListTTL. Call Validate first.
func (c Config) ListTTL() time.Duration {
	d, _ := time.ParseDuration(c.Presets.ListTTL)
	return d
}
