// Package presets persists named pivot layouts per report.
//
// Two tiers implement Store: RemoteStore over a SQL repository (durable,
// shared between users) and LocalStore over the local kv cache. The
// FallbackStore decorator tries the remote tier first and absorbs every
// remote failure into the local tier, so the analyst can always save and
// reload a layout. Manager is the per-report facade sessions use; it owns
// the ownership rule for deletes.
package presets

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"pivot/internal/layout"
)

// Visibility controls who may read a preset.
type Visibility string

const (
	Private Visibility = "private"
	Shared  Visibility = "shared"
)

// ParseVisibility accepts "private", "shared" or "" (private).
func ParseVisibility(s string) (Visibility, error) {
	switch Visibility(strings.ToLower(strings.TrimSpace(s))) {
	case "", Private:
		return Private, nil
	case Shared:
		return Shared, nil
	default:
		return "", fmt.Errorf("presets: unknown visibility %q", s)
	}
}

var (
	// ErrNotFound means no tier holds the preset.
	ErrNotFound = errors.New("presets: not found")

	// ErrNotOwner rejects deleting someone else's preset.
	ErrNotOwner = errors.New("presets: preset owned by another user")

	// ErrEmptyName rejects saving a preset without a name.
	ErrEmptyName = errors.New("presets: empty preset name")

	// ErrStoreUnavailable wraps a remote failure that was absorbed by the
	// local tier. It only shows up in logs.
	ErrStoreUnavailable = errors.New("presets: remote store unavailable")
)

// Preset is a named, owned layout for one report.
type Preset struct {
	ID         string
	ReportID   string
	Name       string
	Owner      string
	Visibility Visibility
	Layout     layout.Layout
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Local reports whether the preset lives in the local cache tier.
func (p Preset) Local() bool { return IsLocalID(p.ID) }

// Listing splits a report's presets into the caller's own and other users'
// shared presets.
type Listing struct {
	Mine   []Preset
	Shared []Preset
}

// Empty reports whether the listing holds no preset at all.
func (l Listing) Empty() bool { return len(l.Mine) == 0 && len(l.Shared) == 0 }

// Owns reports whether id is one of l.Mine.
func (l Listing) Owns(id string) bool {
	for _, p := range l.Mine {
		if p.ID == id {
			return true
		}
	}
	return false
}

// Store is one persistence tier.
type Store interface {
	List(ctx context.Context, reportID string) (Listing, error)

	// Save creates or wholesale-replaces the caller's (reportID, name) preset.
	Save(ctx context.Context, reportID, name string, l layout.Layout, vis Visibility) (Preset, error)

	// Load returns ErrNotFound when the tier has no readable preset with id.
	Load(ctx context.Context, id string) (Preset, error)

	// Delete returns ErrNotFound or ErrNotOwner when it cannot delete id.
	Delete(ctx context.Context, id string) error
}

const localPrefix = "local:"

// LocalID is the id of a locally stored preset. It encodes the report and
// name so the local tier can find the entry from the id alone.
func LocalID(reportID, name string) string {
	return localPrefix + url.PathEscape(reportID) + "/" + url.PathEscape(name)
}

// IsLocalID reports whether id was minted by the local tier.
func IsLocalID(id string) bool { return strings.HasPrefix(id, localPrefix) }

// ParseLocalID reverses LocalID.
func ParseLocalID(id string) (reportID, name string, err error) {
	if !IsLocalID(id) {
		return "", "", fmt.Errorf("presets: %q is not a local id", id)
	}
	rest := strings.TrimPrefix(id, localPrefix)
	i := strings.IndexByte(rest, '/')
	if i < 0 {
		return "", "", fmt.Errorf("presets: malformed local id %q", id)
	}
	if reportID, err = url.PathUnescape(rest[:i]); err != nil {
		return "", "", fmt.Errorf("presets: malformed local id %q: %w", id, err)
	}
	if name, err = url.PathUnescape(rest[i+1:]); err != nil {
		return "", "", fmt.Errorf("presets: malformed local id %q: %w", id, err)
	}
	return reportID, name, nil
}

func validateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrEmptyName
	}
	return name, nil
}
