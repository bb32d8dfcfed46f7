package mssql

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"pivot/internal/storage"
)

type fakeResult struct{ n int64 }

func (f fakeResult) LastInsertId() (int64, error) { return 0, nil }
func (f fakeResult) RowsAffected() (int64, error) { return f.n, nil }

type fakeRow struct {
	vals []any
	err  error
}

func (f fakeRow) Scan(dest ...any) error {
	if f.err != nil {
		return f.err
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *string:
			*p = f.vals[i].(string)
		case *int:
			*p = f.vals[i].(int)
		case *time.Time:
			*p = f.vals[i].(time.Time)
		}
	}
	return nil
}

type fakeDB struct {
	execN   int64
	rows    []fakeRow
	queries []string
	args    [][]any
}

func (f *fakeDB) ExecContext(ctx context.Context, q string, args ...any) (sql.Result, error) {
	f.queries = append(f.queries, q)
	f.args = append(f.args, args)
	return fakeResult{n: f.execN}, nil
}

func (f *fakeDB) QueryContext(ctx context.Context, q string, args ...any) (*sql.Rows, error) {
	return nil, errors.New("not supported by fake")
}

func (f *fakeDB) QueryRowContext(ctx context.Context, q string, args ...any) rowScanner {
	f.queries = append(f.queries, q)
	f.args = append(f.args, args)
	r := f.rows[0]
	f.rows = f.rows[1:]
	return r
}

func (f *fakeDB) Close() error { return nil }

func TestDeletePreset_ClassifiesMisses(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		execN   int64
		count   int
		wantErr error
	}{
		{name: "deleted", execN: 1},
		{name: "someone else's", execN: 0, count: 1, wantErr: storage.ErrForbidden},
		{name: "missing", execN: 0, count: 0, wantErr: storage.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := &fakeDB{execN: tt.execN, rows: []fakeRow{{vals: []any{tt.count}}}}
			repo := &PresetRepo{db: db, table: "pivot_presets"}

			err := repo.DeletePreset(ctx, "p1", "alice")
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("DeletePreset err=%v want %v", err, tt.wantErr)
			}
			if !strings.Contains(db.queries[0], "WHERE id = @p1 AND owner = @p2") {
				t.Fatalf("delete must be owner-scoped: %s", db.queries[0])
			}
			if db.args[0][0] != "p1" || db.args[0][1] != "alice" {
				t.Fatalf("unexpected args %v", db.args[0])
			}
		})
	}
}

func TestGetPreset_NoRowsIsNotFound(t *testing.T) {
	db := &fakeDB{rows: []fakeRow{{err: sql.ErrNoRows}}}
	repo := &PresetRepo{db: db, table: "pivot_presets"}

	if _, err := repo.GetPreset(context.Background(), "p1", "alice"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpsertPreset_ScansOutputRow(t *testing.T) {
	created := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	updated := created.Add(time.Hour)
	db := &fakeDB{rows: []fakeRow{{vals: []any{
		"existing-id", "Sales", "alice", "Monthly", "shared", `{"rows":["Region"]}`, created, updated,
	}}}}
	repo := &PresetRepo{db: db, table: "pivot_presets"}

	got, err := repo.UpsertPreset(context.Background(), storage.PresetRow{
		ID: "new-id", ReportID: "Sales", Owner: "alice", Name: "Monthly",
		Visibility: "shared", Layout: []byte(`{"rows":["Region"]}`),
		CreatedAt: updated, UpdatedAt: updated,
	})
	if err != nil {
		t.Fatalf("UpsertPreset: %v", err)
	}
	if got.ID != "existing-id" || !got.CreatedAt.Equal(created) {
		t.Fatalf("unexpected row %+v", got)
	}
	if !strings.HasPrefix(db.queries[0], "MERGE INTO pivot_presets WITH (HOLDLOCK)") {
		t.Fatalf("unexpected SQL: %s", db.queries[0])
	}
	if len(db.args[0]) != 8 {
		t.Fatalf("expected 8 args, got %d", len(db.args[0]))
	}
}

func TestBuildMergeSQL(t *testing.T) {
	t.Parallel()

	q := buildMergeSQL("dbo.pivot_presets")
	for _, want := range []string{
		"ON target.report_id = src.report_id AND target.owner = src.owner AND target.display_name = src.display_name",
		"WHEN MATCHED THEN UPDATE SET visibility = src.visibility, layout_json = src.layout_json, updated_at = src.updated_at",
		"OUTPUT inserted.id, inserted.report_id",
	} {
		if !strings.Contains(q, want) {
			t.Fatalf("merge SQL missing %q: %s", want, q)
		}
	}
	if !strings.HasSuffix(q, ";") {
		t.Fatalf("MERGE must be terminated: %s", q)
	}
}

func TestBuildCreateSQL(t *testing.T) {
	t.Parallel()

	q := buildCreateSQL("dbo.pivot_presets")
	if !strings.Contains(q, "IF OBJECT_ID(N'dbo.pivot_presets', N'U') IS NULL") {
		t.Fatalf("missing existence guard: %s", q)
	}
	if !strings.Contains(q, "CONSTRAINT [uq_dbo_pivot_presets_name] UNIQUE (report_id, owner, display_name)") {
		t.Fatalf("missing unique constraint: %s", q)
	}
}
