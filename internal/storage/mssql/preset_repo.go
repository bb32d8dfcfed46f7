package mssql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"pivot/internal/storage"
)

// PresetRepo implements storage.PresetRepository for Microsoft SQL Server.
//
// Upserts use MERGE ... WITH (HOLDLOCK) so two concurrent saves of the same
// (report_id, owner, display_name) serialize instead of racing into the
// unique index. The stored row comes back through OUTPUT inserted.*.
//
// Note on driver registration:
//   - This package does NOT blank-import a SQL Server driver. The "sqlserver"
//     driver is registered by internal/storage/all.
type PresetRepo struct {
	db    dbConn
	table string
}

func init() {
	storage.RegisterPresets("mssql", NewPresets)
}

// NewPresets constructs a PresetRepo using database/sql and the "sqlserver" driver.
//
// This method validates connectivity via PingContext.
func NewPresets(ctx context.Context, cfg storage.Config) (storage.PresetRepository, error) {
	raw, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, err
	}

	raw.SetMaxOpenConns(16)
	raw.SetMaxIdleConns(4)

	if err := raw.PingContext(ctx); err != nil {
		_ = raw.Close()
		return nil, err
	}
	table := cfg.Table
	if table == "" {
		table = storage.DefaultPresetTable
	}
	return &PresetRepo{db: &sqlDB{db: raw}, table: table}, nil
}

// Close releases database resources held by this repository.
func (r *PresetRepo) Close() {
	if r == nil || r.db == nil {
		return
	}
	_ = r.db.Close()
}

func (r *PresetRepo) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, buildCreateSQL(r.table)); err != nil {
		return fmt.Errorf("mssql: create table %s: %w", r.table, err)
	}
	return nil
}

func (r *PresetRepo) ListPresets(ctx context.Context, reportID, owner string) ([]storage.PresetRow, error) {
	q := fmt.Sprintf(`SELECT %s FROM %s WHERE report_id = @p1 AND (owner = @p2 OR visibility = @p3) ORDER BY display_name, owner`, selectColumns, r.table)
	rows, err := r.db.QueryContext(ctx, q, reportID, owner, storage.VisibilityShared)
	if err != nil {
		return nil, fmt.Errorf("mssql: list presets: %w", err)
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
	stored, err := scanRow(r.db.QueryRowContext(ctx, buildMergeSQL(r.table),
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
		return storage.PresetRow{}, fmt.Errorf("mssql: upsert preset: %w", err)
	}
	return stored, nil
}

func (r *PresetRepo) GetPreset(ctx context.Context, id, caller string) (storage.PresetRow, error) {
	q := fmt.Sprintf(`SELECT %s FROM %s WHERE id = @p1 AND (owner = @p2 OR visibility = @p3)`, selectColumns, r.table)
	row, err := scanRow(r.db.QueryRowContext(ctx, q, id, caller, storage.VisibilityShared))
	if errors.Is(err, sql.ErrNoRows) {
		return storage.PresetRow{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.PresetRow{}, fmt.Errorf("mssql: get preset: %w", err)
	}
	return row, nil
}

func (r *PresetRepo) DeletePreset(ctx context.Context, id, owner string) error {
	res, err := r.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = @p1 AND owner = @p2`, r.table), id, owner)
	if err != nil {
		return fmt.Errorf("mssql: delete preset: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mssql: delete preset: %w", err)
	}
	if n > 0 {
		return nil
	}

	var count int
	if err := r.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(1) FROM %s WHERE id = @p1`, r.table), id).Scan(&count); err != nil {
		return fmt.Errorf("mssql: delete preset: %w", err)
	}
	if count > 0 {
		return storage.ErrForbidden
	}
	return storage.ErrNotFound
}

const selectColumns = `id, report_id, owner, display_name, visibility, layout_json, created_at, updated_at`

func scanRow(s rowScanner) (storage.PresetRow, error) {
	var (
		row              storage.PresetRow
		layout           string
		created, updated time.Time
	)
	if err := s.Scan(&row.ID, &row.ReportID, &row.Owner, &row.Name, &row.Visibility, &layout, &created, &updated); err != nil {
		return storage.PresetRow{}, err
	}
	row.Layout = []byte(layout)
	row.CreatedAt = created.UTC()
	row.UpdatedAt = updated.UTC()
	return row, nil
}

// buildCreateSQL emits create-if-missing DDL. Key columns are sized so the
// unique index stays under SQL Server's 1700-byte nonclustered key limit.
func buildCreateSQL(table string) string {
	return fmt.Sprintf(`IF OBJECT_ID(N'%[1]s', N'U') IS NULL
BEGIN
  CREATE TABLE %[1]s (
    id NVARCHAR(64) NOT NULL PRIMARY KEY,
    report_id NVARCHAR(255) NOT NULL,
    owner NVARCHAR(140) NOT NULL,
    display_name NVARCHAR(255) NOT NULL,
    visibility NVARCHAR(16) NOT NULL DEFAULT 'private',
    layout_json NVARCHAR(MAX) NOT NULL,
    created_at DATETIMEOFFSET NOT NULL,
    updated_at DATETIMEOFFSET NOT NULL,
    CONSTRAINT %[2]s UNIQUE (report_id, owner, display_name)
  );
END`, table, msIdent("uq_"+strings.ReplaceAll(table, ".", "_")+"_name"))
}

func buildMergeSQL(table string) string {
	var b strings.Builder
	b.WriteString("MERGE INTO ")
	b.WriteString(table)
	b.WriteString(" WITH (HOLDLOCK) AS target")
	b.WriteString(" USING (SELECT @p1 AS id, @p2 AS report_id, @p3 AS owner, @p4 AS display_name,")
	b.WriteString(" @p5 AS visibility, @p6 AS layout_json, @p7 AS created_at, @p8 AS updated_at) AS src")
	b.WriteString(" ON target.report_id = src.report_id AND target.owner = src.owner AND target.display_name = src.display_name")
	b.WriteString(" WHEN MATCHED THEN UPDATE SET visibility = src.visibility, layout_json = src.layout_json, updated_at = src.updated_at")
	b.WriteString(" WHEN NOT MATCHED THEN INSERT (")
	b.WriteString(selectColumns)
	b.WriteString(") VALUES (src.id, src.report_id, src.owner, src.display_name, src.visibility, src.layout_json, src.created_at, src.updated_at)")
	b.WriteString(" OUTPUT ")
	cols := strings.Split(selectColumns, ", ")
	for i, c := range cols {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("inserted.")
		b.WriteString(c)
	}
	b.WriteString(";")
	return b.String()
}

func msIdent(id string) string {
	return "[" + strings.ReplaceAll(id, "]", "]]") + "]"
}

// dbConn is a small interface over *sql.DB used to make this package testable.
//
// It intentionally includes only the methods this file needs.
type dbConn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) rowScanner
	Close() error
}

// rowScanner is a narrow adapter over *sql.Row.Scan.
type rowScanner interface {
	Scan(dest ...any) error
}

// sqlDB wraps *sql.DB to implement dbConn.
type sqlDB struct {
	db *sql.DB
}

func (s *sqlDB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, query, args...)
}

func (s *sqlDB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, query, args...)
}

func (s *sqlDB) QueryRowContext(ctx context.Context, query string, args ...any) rowScanner {
	return s.db.QueryRowContext(ctx, query, args...)
}

func (s *sqlDB) Close() error { return s.db.Close() }

var _ dbConn = (*sqlDB)(nil)
