package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"pivot/internal/storage"
)

/*
PresetRepo implements storage.PresetRepository for Postgres.

Timestamps are TIMESTAMPTZ and the layout is stored as JSONB so presets can
be inspected with SQL. Upserts use ON CONFLICT on the
(report_id, owner, display_name) unique key and return the stored row.
*/
type PresetRepo struct {
	pool  *pgxpool.Pool
	table string
}

// NewPresets creates a new Postgres-backed PresetRepo.
func NewPresets(ctx context.Context, cfg storage.Config) (storage.PresetRepository, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	table := cfg.Table
	if table == "" {
		table = storage.DefaultPresetTable
	}
	return &PresetRepo{pool: pool, table: table}, nil
}

// Close closes the connection pool.
func (r *PresetRepo) Close() {
	r.pool.Close()
}

// EnsureSchema creates the schema (for qualified names) and the preset table.
func (r *PresetRepo) EnsureSchema(ctx context.Context) error {
	schemaSQL, tableSQL := buildCreateSQL(r.table)
	if schemaSQL != "" {
		if _, err := r.pool.Exec(ctx, schemaSQL); err != nil {
			return fmt.Errorf("create schema for %s: %w", r.table, err)
		}
	}
	if _, err := r.pool.Exec(ctx, tableSQL); err != nil {
		return fmt.Errorf("create table %s: %w", r.table, err)
	}
	return nil
}

func (r *PresetRepo) ListPresets(ctx context.Context, reportID, owner string) ([]storage.PresetRow, error) {
	q := fmt.Sprintf(`SELECT %s FROM %s WHERE report_id = $1 AND (owner = $2 OR visibility = $3) ORDER BY display_name, owner`, selectColumns, r.table)
	rows, err := r.pool.Query(ctx, q, reportID, owner, storage.VisibilityShared)
	if err != nil {
		return nil, fmt.Errorf("postgres: list presets: %w", err)
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

func (r *PresetRepo) UpsertPreset(ctx context.Context, row storage.PresetRow) (storage.PresetRow, error) {
	stored, err := scanRow(r.pool.QueryRow(ctx, buildUpsertSQL(r.table),
		row.ID,
		row.ReportID,
		row.Owner,
		row.Name,
		row.Visibility,
		string(row.Layout),
		row.CreatedAt.UTC(),
		row.UpdatedAt.UTC(),
	))
	if err != nil {
		return storage.PresetRow{}, fmt.Errorf("postgres: upsert preset: %w", err)
	}
	return stored, nil
}

func (r *PresetRepo) GetPreset(ctx context.Context, id, caller string) (storage.PresetRow, error) {
	q := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1 AND (owner = $2 OR visibility = $3)`, selectColumns, r.table)
	row, err := scanRow(r.pool.QueryRow(ctx, q, id, caller, storage.VisibilityShared))
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.PresetRow{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.PresetRow{}, fmt.Errorf("postgres: get preset: %w", err)
	}
	return row, nil
}

// DeletePreset deletes and classifies the miss in one round trip: the CTE
// reports whether the id exists at all.
func (r *PresetRepo) DeletePreset(ctx context.Context, id, owner string) error {
	var deleted, exists bool
	err := r.pool.QueryRow(ctx, buildDeleteSQL(r.table), id, owner).Scan(&deleted, &exists)
	if err != nil {
		return fmt.Errorf("postgres: delete preset: %w", err)
	}
	switch {
	case deleted:
		return nil
	case exists:
		return storage.ErrForbidden
	default:
		return storage.ErrNotFound
	}
}

const selectColumns = `id, report_id, owner, display_name, visibility, layout_json::text, created_at, updated_at`

func scanRow(s pgx.Row) (storage.PresetRow, error) {
	var (
		row    storage.PresetRow
		layout string
	)
	if err := s.Scan(&row.ID, &row.ReportID, &row.Owner, &row.Name, &row.Visibility, &layout, &row.CreatedAt, &row.UpdatedAt); err != nil {
		return storage.PresetRow{}, err
	}
	row.Layout = []byte(layout)
	row.CreatedAt = row.CreatedAt.UTC()
	row.UpdatedAt = row.UpdatedAt.UTC()
	return row, nil
}

func buildCreateSQL(table string) (schemaSQL, tableSQL string) {
	if schema, _ := splitQualifiedName(table); schema != "" {
		schemaSQL = fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s;`, pgIdent(schema))
	}
	tableSQL = fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
  id TEXT PRIMARY KEY,
  report_id TEXT NOT NULL,
  owner TEXT NOT NULL,
  display_name TEXT NOT NULL,
  visibility TEXT NOT NULL DEFAULT 'private' CHECK (visibility IN ('private', 'shared')),
  layout_json JSONB NOT NULL,
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL,
  UNIQUE (report_id, owner, display_name)
);`, table)
	return schemaSQL, tableSQL
}

func buildUpsertSQL(table string) string {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(table)
	b.WriteString(" (id, report_id, owner, display_name, visibility, layout_json, created_at, updated_at)")
	b.WriteString(" VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7, $8)")
	b.WriteString(" ON CONFLICT (report_id, owner, display_name) DO UPDATE SET")
	b.WriteString(" visibility = EXCLUDED.visibility,")
	b.WriteString(" layout_json = EXCLUDED.layout_json,")
	b.WriteString(" updated_at = EXCLUDED.updated_at")
	b.WriteString(" RETURNING ")
	b.WriteString(selectColumns)
	return b.String()
}

func buildDeleteSQL(table string) string {
	return fmt.Sprintf(`WITH del AS (
  DELETE FROM %[1]s WHERE id = $1 AND owner = $2 RETURNING id
)
SELECT EXISTS (SELECT 1 FROM del), EXISTS (SELECT 1 FROM %[1]s WHERE id = $1)`, table)
}

// splitQualifiedName splits "schema.table" into its parts. Unqualified
// names return an empty schema.
func splitQualifiedName(name string) (schema, table string) {
	if i := strings.IndexByte(name, '.'); i >= 0 {
		return name[:i], name[i+1:]
	}
	return "", name
}

func pgIdent(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}
