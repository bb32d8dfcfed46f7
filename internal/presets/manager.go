package presets

import (
	"context"
	"errors"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"pivot/internal/layout"
)

// DefaultListTTL bounds how long a listing answers ownership checks.
const DefaultListTTL = 5 * time.Minute

const listingKey = "listing"

// Manager is the per-report preset facade. It remembers the most recent
// listing so ownership checks do not hit the store on every delete.
type Manager struct {
	store    Store
	reportID string
	cache    *ttlcache.Cache[string, Listing]
}

// NewManager binds store to one report. ttl <= 0 means DefaultListTTL.
func NewManager(store Store, reportID string, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = DefaultListTTL
	}
	return &Manager{
		store:    store,
		reportID: reportID,
		cache:    ttlcache.New(ttlcache.WithTTL[string, Listing](ttl)),
	}
}

// ReportID returns the report the manager is bound to.
func (m *Manager) ReportID() string { return m.reportID }

// List fetches and remembers the report's presets.
func (m *Manager) List(ctx context.Context) (Listing, error) {
	l, err := m.store.List(ctx, m.reportID)
	if err != nil {
		return Listing{}, err
	}
	m.cache.Set(listingKey, l, ttlcache.DefaultTTL)
	return l, nil
}

func (m *Manager) Save(ctx context.Context, name string, l layout.Layout, vis Visibility) (Preset, error) {
	p, err := m.store.Save(ctx, m.reportID, name, l, vis)
	if err != nil {
		return Preset{}, err
	}
	m.cache.Delete(listingKey)
	return p, nil
}

// Load returns nil when no tier holds id.
func (m *Manager) Load(ctx context.Context, id string) (*layout.Layout, error) {
	p, err := m.store.Load(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	l := p.Layout.Clone()
	return &l, nil
}

// Delete refuses ids the caller does not own before touching the store.
func (m *Manager) Delete(ctx context.Context, id string) error {
	owned, err := m.IsOwnedByCaller(ctx, id)
	if err != nil {
		return err
	}
	if !owned {
		return ErrNotOwner
	}
	if err := m.store.Delete(ctx, id); err != nil {
		return err
	}
	m.cache.Delete(listingKey)
	return nil
}

// IsOwnedByCaller reports whether the caller may delete id. Local ids are
// always owned. Remote ids are owned when the latest listing has them in
// Mine; with no listing at hand, or an empty one, a fresh List runs first.
func (m *Manager) IsOwnedByCaller(ctx context.Context, id string) (bool, error) {
	if IsLocalID(id) {
		return true, nil
	}
	if item := m.cache.Get(listingKey); item != nil && !item.Value().Empty() {
		return item.Value().Owns(id), nil
	}
	l, err := m.List(ctx)
	if err != nil {
		return false, err
	}
	return l.Owns(id), nil
}
