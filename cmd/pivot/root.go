package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	"pivot/internal/classify"
	"pivot/internal/config"
	"pivot/internal/derive"
	"pivot/internal/kv"
	"pivot/internal/metrics"
	"pivot/internal/metrics/datadog"
	"pivot/internal/pivot"
	"pivot/internal/presets"
	"pivot/internal/report"
	"pivot/internal/storage"

	// register all backends with the storage factory.
	_ "pivot/internal/storage/all"
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "pivot",
		Short:        "Pivot report results and manage saved layouts.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cmd.Help(); err != nil {
				return fmt.Errorf("failed to show help: %w", err)
			}
			return nil
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringP("config", "c", "", "config JSON path")
	flags.StringP("report", "r", "", "report to open")
	flags.String("principal", "", "user that owns saved presets (overrides config)")
	flags.StringArray("param", nil, "report filter as key=value (repeatable)")
	flags.BoolP("verbose", "v", false, "set debug logging level")

	rootCmd.AddCommand(
		newInspectCmd(),
		newDrillCmd(),
		newExportCmd(),
		newDeriveCmd(),
		newPresetCmd(),
	)
	return rootCmd
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
	}))
}

// app is everything a subcommand needs, built from config and flags.
type app struct {
	cfg      config.Config
	log      *slog.Logger
	reportID string
	filters  report.Filters
	session  *pivot.Session

	closers []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func newApp(cmd *cobra.Command) (*app, error) {
	flags := cmd.Root().PersistentFlags()
	cfgPath, _ := flags.GetString("config")
	reportID, _ := flags.GetString("report")
	principal, _ := flags.GetString("principal")
	params, _ := flags.GetStringArray("param")
	verbose, _ := flags.GetBool("verbose")

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	if principal != "" {
		cfg.Principal = principal
	}
	verbose = verbose || cfg.Log.Verbose
	log := newLogger(cmd.ErrOrStderr(), verbose)

	issues := config.Validate(cfg)
	for _, iss := range issues {
		if iss.Severity == config.SeverityError {
			log.Error("config", "path", iss.Path, "message", iss.Message)
		} else {
			log.Debug("config", "path", iss.Path, "message", iss.Message)
		}
	}
	if config.HasErrors(issues) {
		return nil, fmt.Errorf("configuration is invalid: %s", cfgPath)
	}
	if strings.TrimSpace(reportID) == "" {
		return nil, errors.New("--report is required")
	}
	filters, err := parsePairs(params)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, log: log, reportID: reportID, filters: report.Filters(filters)}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a.setupMetrics(ctx)

	cache, err := kv.Open(cfg.Presets.Local.Kind, cfg.Presets.Local.Path)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.closers = append(a.closers, func() { _ = cache.Close() })

	a.session = pivot.NewSession(pivot.Options{
		Runner: a.runner(),
		Presets: &presets.FallbackStore{
			Remote: a.remoteStore(ctx),
			Local:  presets.NewLocalStore(cache, cfg.Principal, nil),
			Log:    log,
		},
		LastUsed: presets.LastUsed{Cache: cache},
		ListTTL:  cfg.ListTTL(),
		MaxRows:  cfg.MaxRows,
		Classify: classify.Options{SampleRows: cfg.Classify.SampleRows},
		Derive: derive.Options{
			SampleSize: cfg.Derive.SampleSize,
			Threshold:  cfg.Derive.Threshold,
			Preference: derive.Preference(cfg.Derive.DatePreference),
		},
		Log: log,
	})
	return a, nil
}

func (a *app) runner() report.Runner {
	if a.cfg.Report.Kind == "http" {
		return &report.HTTPRunner{
			BaseURL:  a.cfg.Report.BaseURL,
			Method:   a.cfg.Report.Method,
			Token:    a.cfg.Report.Token,
			MaxTries: uint(a.cfg.Report.Retries),
			Log:      a.log,
		}
	}
	return report.FileRunner{Dir: a.cfg.Report.Dir}
}

// remoteStore opens the remote preset tier. A tier that cannot be opened
// is replaced by one that always fails, so presets fall back to the local
// cache instead of aborting the command.
func (a *app) remoteStore(ctx context.Context) presets.Store {
	rc := a.cfg.Presets.Remote
	if rc.Kind == "" {
		return presets.Unavailable{Err: errors.New("no remote preset store configured")}
	}
	repo, err := storage.NewPresets(ctx, storage.Config{Kind: rc.Kind, DSN: rc.DSN, Table: rc.Table})
	if err == nil {
		err = repo.EnsureSchema(ctx)
		if err != nil {
			repo.Close()
		}
	}
	if err != nil {
		a.log.Warn("presets: remote store unavailable", "kind", rc.Kind, "error", err)
		return presets.Unavailable{Err: err}
	}
	a.closers = append(a.closers, repo.Close)
	return presets.NewRemoteStore(repo, a.cfg.Principal, nil)
}

func (a *app) setupMetrics(ctx context.Context) {
	if a.cfg.Metrics.Backend != "datadog" {
		return
	}
	tags := datadog.ParseTagsCSV(a.cfg.Metrics.Tags)
	b, err := datadog.NewBackend(ctx, datadog.Options{
		JobName:    a.cfg.Metrics.Job,
		Tags:       tags,
		FlushEvery: 60 * time.Second,
	})
	if err != nil {
		a.log.Warn("metrics: failed to init datadog backend; using nop", "error", err)
		return
	}
	a.log.Debug("metrics: datadog backend", "job", a.cfg.Metrics.Job, "tags", tags)
	metrics.SetBackend(b)
	a.closers = append(a.closers, func() {
		if err := b.Close(); err != nil {
			a.log.Warn("metrics: close", "error", err)
		}
		metrics.SetBackend(nil)
	})
}

// open runs the report named by --report.
func (a *app) open(ctx context.Context) (*pivot.View, error) {
	v, err := a.session.Open(ctx, a.reportID, a.filters)
	if err != nil {
		return nil, err
	}
	if st := v.Status(); st != "" {
		a.log.Info(st)
	}
	return v, nil
}

// withApp builds the app for one subcommand run and tears it down after.
func withApp(fn func(cmd *cobra.Command, args []string, a *app) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(cmd, args, a)
	}
}

// parsePairs splits key=value arguments. Later keys win.
func parsePairs(pairs []string) (map[string]any, error) {
	out := make(map[string]any, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("expected key=value, got %q", p)
		}
		out[k] = v
	}
	return out, nil
}

func writeFile(path, data string) error {
	return os.WriteFile(path, []byte(data), 0o644)
}
