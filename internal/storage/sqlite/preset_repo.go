package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"pivot/internal/storage"
)

// PresetRepo implements storage.PresetRepository for SQLite.
//
// Key design points vs Postgres:
//   - SQLite has no native TIMESTAMPTZ type, so created_at/updated_at are
//     stored as RFC3339Nano TEXT for reliable round-trips with
//     modernc.org/sqlite.
//   - The pool is pinned to one connection: ":memory:" databases are
//     per-connection and SQLite serializes writers anyway.
type PresetRepo struct {
	db    *sql.DB
	table string
}

func init() {
	storage.RegisterPresets("sqlite", NewPresets)
}

func NewPresets(ctx context.Context, cfg storage.Config) (storage.PresetRepository, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	table := cfg.Table
	if table == "" {
		table = storage.DefaultPresetTable
	}
	return &PresetRepo{db: db, table: table}, nil
}

func (r *PresetRepo) Close() { _ = r.db.Close() }

func (r *PresetRepo) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, buildCreateSQL(r.table)); err != nil {
		return fmt.Errorf("create table %s: %w", r.table, err)
	}
	return nil
}

func (r *PresetRepo) ListPresets(ctx context.Context, reportID, owner string) ([]storage.PresetRow, error) {
	rows, err := r.db.QueryContext(ctx, buildListSQL(r.table), reportID, owner, storage.VisibilityShared)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list presets: %w", err)
	}
	defer rows.Close()

	var out []storage.PresetRow
	for rows.Next() {
		row, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// UpsertPreset relies on the UNIQUE(report_id, owner, display_name)
// constraint: ON CONFLICT keeps id and created_at and replaces the rest.
func (r *PresetRepo) UpsertPreset(ctx context.Context, row storage.PresetRow) (storage.PresetRow, error) {
	_, err := r.db.ExecContext(ctx, buildUpsertSQL(r.table),
		row.ID,
		row.ReportID,
		row.Owner,
		row.Name,
		row.Visibility,
		string(row.Layout),
		formatSQLiteTime(row.CreatedAt),
		formatSQLiteTime(row.UpdatedAt),
	)
	if err != nil {
		return storage.PresetRow{}, fmt.Errorf("sqlite: upsert preset: %w", err)
	}

	q := fmt.Sprintf(`SELECT %s FROM %s WHERE report_id = ? AND owner = ? AND display_name = ?`, selectColumns, r.table)
	stored, err := scanRow(r.db.QueryRowContext(ctx, q, row.ReportID, row.Owner, row.Name))
	if err != nil {
		return storage.PresetRow{}, fmt.Errorf("sqlite: reload preset: %w", err)
	}
	return stored, nil
}

func (r *PresetRepo) GetPreset(ctx context.Context, id, caller string) (storage.PresetRow, error) {
	q := fmt.Sprintf(`SELECT %s FROM %s WHERE id = ? AND (owner = ? OR visibility = ?)`, selectColumns, r.table)
	row, err := scanRow(r.db.QueryRowContext(ctx, q, id, caller, storage.VisibilityShared))
	if errors.Is(err, sql.ErrNoRows) {
		return storage.PresetRow{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.PresetRow{}, fmt.Errorf("sqlite: get preset: %w", err)
	}
	return row, nil
}

func (r *PresetRepo) DeletePreset(ctx context.Context, id, owner string) error {
	res, err := r.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = ? AND owner = ?`, r.table), id, owner)
	if err != nil {
		return fmt.Errorf("sqlite: delete preset: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: delete preset: %w", err)
	}
	if n > 0 {
		return nil
	}

	var exists int
	err = r.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT 1 FROM %s WHERE id = ?`, r.table), id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("sqlite: delete preset: %w", err)
	}
	return storage.ErrForbidden
}

const selectColumns = `id, report_id, owner, display_name, visibility, layout_json, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanRow(s scanner) (storage.PresetRow, error) {
	var (
		row              storage.PresetRow
		layout           string
		created, updated string
	)
	if err := s.Scan(&row.ID, &row.ReportID, &row.Owner, &row.Name, &row.Visibility, &layout, &created, &updated); err != nil {
		return storage.PresetRow{}, err
	}
	row.Layout = []byte(layout)

	var err error
	if row.CreatedAt, err = parseSQLiteTime(created); err != nil {
		return storage.PresetRow{}, fmt.Errorf("sqlite: created_at: %w", err)
	}
	if row.UpdatedAt, err = parseSQLiteTime(updated); err != nil {
		return storage.PresetRow{}, fmt.Errorf("sqlite: updated_at: %w", err)
	}
	return row, nil
}

func buildCreateSQL(table string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
  id TEXT PRIMARY KEY,
  report_id TEXT NOT NULL,
  owner TEXT NOT NULL,
  display_name TEXT NOT NULL,
  visibility TEXT NOT NULL DEFAULT 'private',
  layout_json TEXT NOT NULL,
  created_at TEXT NOT NULL,
  updated_at TEXT NOT NULL,
  UNIQUE (report_id, owner, display_name)
)`, table)
}

func buildListSQL(table string) string {
	return fmt.Sprintf(`SELECT %s FROM %s WHERE report_id = ? AND (owner = ? OR visibility = ?) ORDER BY display_name, owner`, selectColumns, table)
}

func buildUpsertSQL(table string) string {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(table)
	b.WriteString(" (")
	b.WriteString(selectColumns)
	b.WriteString(") VALUES (?, ?, ?, ?, ?, ?, ?, ?)")
	b.WriteString(" ON CONFLICT (report_id, owner, display_name) DO UPDATE SET")
	b.WriteString(" visibility = excluded.visibility,")
	b.WriteString(" layout_json = excluded.layout_json,")
	b.WriteString(" updated_at = excluded.updated_at")
	return b.String()
}

// formatSQLiteTime formats a time as RFC3339Nano in UTC.
// We store timestamps as TEXT for reliable scanning/parsing with modernc.org/sqlite.
func formatSQLiteTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// parseSQLiteTime parses timestamps returned by SQLite into time.Time.
//
// Supported formats:
//   - RFC3339Nano (what we write)
//   - RFC3339
//   - "2006-01-02 15:04:05Z07:00", "2006-01-02 15:04:05.999999999Z07:00"
//   - "2006-01-02 15:04:05" (CURRENT_TIMESTAMP; interpreted as UTC)
func parseSQLiteTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty time string")
	}

	layouts := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05Z07:00",
		"2006-01-02 15:04:05.999999999Z07:00",
	}
	for _, layout := range layouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), nil
		}
	}
	if ts, err := time.ParseInLocation("2006-01-02 15:04:05", s, time.UTC); err == nil {
		return ts, nil
	}
	return time.Time{}, fmt.Errorf("unsupported time format: %q", s)
}
