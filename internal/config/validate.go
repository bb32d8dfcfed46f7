package config

import (
	"fmt"
	"net/url"
	"time"

	"pivot/internal/storage"
)

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is one validation finding. Path is the JSON path of the field.
type Issue struct {
	Severity Severity
	Path     string
	Message  string
}

func (i Issue) String() string { return fmt.Sprintf("%s: %s: %s", i.Severity, i.Path, i.Message) }

// HasErrors reports whether any issue is an error.
func HasErrors(issues []Issue) bool {
	for _, i := range issues {
		if i.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Validate checks a defaulted config. Warnings describe settings that work
// but are probably not what the user meant.
func Validate(c Config) []Issue {
	var out []Issue
	add := func(sev Severity, path, format string, args ...any) {
		out = append(out, Issue{Severity: sev, Path: path, Message: fmt.Sprintf(format, args...)})
	}

	switch c.Report.Kind {
	case "file":
		if c.Report.Dir == "" {
			add(SeverityError, "report.dir", "required for report.kind=file")
		}
	case "http":
		if c.Report.BaseURL == "" {
			add(SeverityError, "report.base_url", "required for report.kind=http")
		} else if u, err := url.Parse(c.Report.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			add(SeverityError, "report.base_url", "not an absolute URL: %q", c.Report.BaseURL)
		}
		if c.Report.Token == "" {
			add(SeverityWarning, "report.token", "empty; requests are sent unauthenticated")
		}
	default:
		add(SeverityError, "report.kind", "must be file or http, got %q", c.Report.Kind)
	}
	if c.Report.Retries < 0 {
		add(SeverityError, "report.retries", "must not be negative")
	}

	if c.Principal == "" {
		add(SeverityError, "principal", "required to own presets")
	}
	if c.MaxRows < 0 {
		add(SeverityError, "max_rows", "must not be negative")
	}
	if c.Classify.SampleRows < 1 {
		add(SeverityError, "classify.sample_rows", "must be positive")
	}
	if c.Derive.SampleSize < 1 {
		add(SeverityError, "derive.sample_size", "must be positive")
	}
	if c.Derive.Threshold <= 0 || c.Derive.Threshold > 1 {
		add(SeverityError, "derive.threshold", "must be in (0, 1], got %v", c.Derive.Threshold)
	}
	switch c.Derive.DatePreference {
	case "us", "eu":
	default:
		add(SeverityError, "derive.date_preference", "must be us or eu, got %q", c.Derive.DatePreference)
	}

	if k := c.Presets.Remote.Kind; k != "" {
		if !knownKind(k) {
			add(SeverityError, "presets.remote.kind", "unknown backend %q (registered: %v)", k, storage.Kinds())
		}
		if c.Presets.Remote.DSN == "" {
			add(SeverityError, "presets.remote.dsn", "required when presets.remote.kind is set")
		}
		if t := c.Presets.Remote.Table; t != "" {
			if err := storage.ValidateTable(t); err != nil {
				add(SeverityError, "presets.remote.table", "%v", err)
			}
		}
	} else {
		add(SeverityWarning, "presets.remote.kind", "empty; presets are kept on this machine only")
	}
	switch c.Presets.Local.Kind {
	case "memory":
		add(SeverityWarning, "presets.local.kind", "memory; local presets are lost on exit")
	case "badger":
	default:
		add(SeverityError, "presets.local.kind", "must be memory or badger, got %q", c.Presets.Local.Kind)
	}
	if d, err := time.ParseDuration(c.Presets.ListTTL); err != nil || d <= 0 {
		add(SeverityError, "presets.list_ttl", "not a positive duration: %q", c.Presets.ListTTL)
	}

	switch c.Metrics.Backend {
	case "none", "datadog":
	default:
		add(SeverityError, "metrics.backend", "must be none or datadog, got %q", c.Metrics.Backend)
	}
	return out
}

func knownKind(kind string) bool {
	for _, k := range storage.Kinds() {
		if k == kind {
			return true
		}
	}
	return false
}
