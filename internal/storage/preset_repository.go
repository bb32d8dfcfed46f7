package storage

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"
)

// DefaultPresetTable is the table presets live in when Config.Table is empty.
const DefaultPresetTable = "pivot_presets"

// Visibility values stored in the visibility column.
const (
	VisibilityPrivate = "private"
	VisibilityShared  = "shared"
)

var (
	// ErrNotFound means no preset with the given id is visible to the caller.
	ErrNotFound = errors.New("storage: preset not found")

	// ErrForbidden means the preset exists but belongs to someone else.
	ErrForbidden = errors.New("storage: preset owned by another user")
)

// Config is the minimal configuration needed to create a preset repository.
//
// When to use:
//   - Use Config when constructing a PresetRepository via NewPresets.
//
// Edge cases:
//   - Kind must be non-empty and must match a registered backend kind.
//   - DSN is passed through to the backend factory; validation is backend-specific.
//   - Table defaults to DefaultPresetTable and may be schema-qualified
//     ("pivot.presets").
//
// Errors:
//   - NewPresets returns an error if Kind is empty or unsupported, or if
//     Table is not a plain (optionally schema-qualified) identifier.
type Config struct {
	Kind  string
	DSN   string
	Table string
}

// PresetRow is one stored preset as the repository sees it. Layout is the
// JSON-encoded layout; the repository never interprets it.
type PresetRow struct {
	ID         string
	ReportID   string
	Owner      string
	Name       string
	Visibility string
	Layout     []byte
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// PresetRepository is the remote preset service.
//
// Presets are unique per (ReportID, Owner, Name). Ownership is enforced in
// SQL: callers pass the acting principal and the repository decides what
// that principal may read, overwrite or delete.
type PresetRepository interface {
	// Close releases backend resources. Call once.
	Close()

	// EnsureSchema creates the preset table and its unique key if missing.
	EnsureSchema(ctx context.Context) error

	// ListPresets returns the presets of reportID that owner may read: their
	// own, plus everyone's shared presets. Ordered by name, then owner.
	ListPresets(ctx context.Context, reportID, owner string) ([]PresetRow, error)

	// UpsertPreset inserts row, or replaces the visibility, layout and
	// UpdatedAt of the existing (ReportID, Owner, Name) preset. The existing
	// ID and CreatedAt survive an overwrite. Returns the stored row.
	UpsertPreset(ctx context.Context, row PresetRow) (PresetRow, error)

	// GetPreset returns the preset if caller owns it or it is shared.
	// Returns ErrNotFound otherwise.
	GetPreset(ctx context.Context, id, caller string) (PresetRow, error)

	// DeletePreset removes a preset owned by owner. Returns ErrNotFound when
	// the id does not exist and ErrForbidden when someone else owns it.
	DeletePreset(ctx context.Context, id, owner string) error
}

// ---- preset factories ----

// PresetFactory builds a repository for one backend kind.
type PresetFactory func(ctx context.Context, cfg Config) (PresetRepository, error)

var (
	presetMu        sync.RWMutex
	presetFactories = map[string]PresetFactory{}
)

// RegisterPresets registers a preset backend under a kind (e.g. "postgres", "sqlite").
//
// When to use:
//   - Call RegisterPresets from an init() function in a backend package.
//   - The `kind` string becomes the lookup key used by NewPresets.
//
// Panics:
//   - If kind is empty.
//   - If f is nil.
//   - If kind is already registered.
func RegisterPresets(kind string, f PresetFactory) {
	presetMu.Lock()
	defer presetMu.Unlock()

	if kind == "" {
		panic("storage: RegisterPresets called with empty kind")
	}
	if f == nil {
		panic("storage: RegisterPresets called with nil factory")
	}
	if _, exists := presetFactories[kind]; exists {
		panic(fmt.Sprintf("storage: preset factory already registered for kind=%q", kind))
	}

	presetFactories[kind] = f
}

// NewPresets constructs a PresetRepository using the registered backend factory.
//
// Concurrency:
//   - Safe for concurrent use with RegisterPresets.
//
// Errors:
//   - Returns an error if cfg.Kind is empty or unsupported.
//   - Returns an error if cfg.Table is not a valid identifier.
//   - Returns whatever error the registered factory returns.
func NewPresets(ctx context.Context, cfg Config) (PresetRepository, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("storage: missing presets.Kind")
	}
	if cfg.Table == "" {
		cfg.Table = DefaultPresetTable
	}
	if err := ValidateTable(cfg.Table); err != nil {
		return nil, err
	}

	presetMu.RLock()
	f := presetFactories[cfg.Kind]
	presetMu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("unsupported presets storage.kind=%s", cfg.Kind)
	}
	return f(ctx, cfg)
}

// Kinds returns the registered backend kinds.
func Kinds() []string {
	presetMu.RLock()
	defer presetMu.RUnlock()
	out := make([]string, 0, len(presetFactories))
	for k := range presetFactories {
		out = append(out, k)
	}
	return out
}

var tableIdent = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// ValidateTable rejects table names that are not plain identifiers. Table
// names are interpolated into SQL, so only [A-Za-z0-9_] and one schema dot
// are allowed.
func ValidateTable(name string) error {
	if !tableIdent.MatchString(name) {
		return fmt.Errorf("storage: invalid table name %q", name)
	}
	return nil
}
