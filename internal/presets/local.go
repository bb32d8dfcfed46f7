package presets

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"pivot/internal/kv"
	"pivot/internal/layout"
)

// LocalStore keeps presets in the local kv cache, one JSON document per
// report under "presets/<reportID>" mapping name to entry. Everything in it
// belongs to the local principal.
type LocalStore struct {
	cache     kv.Cache
	principal string
	clock     clockwork.Clock

	mu sync.Mutex
}

type localEntry struct {
	Layout     layout.Layout `json:"layout"`
	Visibility Visibility    `json:"visibility"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

// NewLocalStore wraps cache. A nil clock means the real clock.
func NewLocalStore(cache kv.Cache, principal string, clock clockwork.Clock) *LocalStore {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &LocalStore{cache: cache, principal: principal, clock: clock}
}

func presetsKey(reportID string) string { return "presets/" + reportID }

func (s *LocalStore) read(reportID string) (map[string]localEntry, error) {
	b, ok, err := s.cache.Get(presetsKey(reportID))
	if err != nil {
		return nil, err
	}
	out := map[string]localEntry{}
	if !ok {
		return out, nil
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("presets: decode local presets of %q: %w", reportID, err)
	}
	return out, nil
}

func (s *LocalStore) write(reportID string, m map[string]localEntry) error {
	if len(m) == 0 {
		return s.cache.Delete(presetsKey(reportID))
	}
	b, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("presets: encode local presets: %w", err)
	}
	return s.cache.Put(presetsKey(reportID), b)
}

func (s *LocalStore) preset(reportID, name string, e localEntry) Preset {
	return Preset{
		ID:         LocalID(reportID, name),
		ReportID:   reportID,
		Name:       name,
		Owner:      s.principal,
		Visibility: e.Visibility,
		Layout:     e.Layout,
		CreatedAt:  e.CreatedAt,
		UpdatedAt:  e.UpdatedAt,
	}
}

// List returns every local preset of reportID as Mine, sorted by name.
func (s *LocalStore) List(ctx context.Context, reportID string) (Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.read(reportID)
	if err != nil {
		return Listing{}, err
	}
	names := make([]string, 0, len(m))
	for n := range m {
		names = append(names, n)
	}
	sort.Strings(names)

	var out Listing
	for _, n := range names {
		out.Mine = append(out.Mine, s.preset(reportID, n, m[n]))
	}
	return out, nil
}

func (s *LocalStore) Save(ctx context.Context, reportID, name string, l layout.Layout, vis Visibility) (Preset, error) {
	name, err := validateName(name)
	if err != nil {
		return Preset{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.read(reportID)
	if err != nil {
		return Preset{}, err
	}
	now := s.clock.Now().UTC()
	e := localEntry{Layout: l.Clone(), Visibility: vis, CreatedAt: now, UpdatedAt: now}
	if prev, ok := m[name]; ok {
		e.CreatedAt = prev.CreatedAt
	}
	m[name] = e
	if err := s.write(reportID, m); err != nil {
		return Preset{}, err
	}
	return s.preset(reportID, name, e), nil
}

func (s *LocalStore) Load(ctx context.Context, id string) (Preset, error) {
	reportID, name, err := ParseLocalID(id)
	if err != nil {
		return Preset{}, ErrNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.read(reportID)
	if err != nil {
		return Preset{}, err
	}
	e, ok := m[name]
	if !ok {
		return Preset{}, ErrNotFound
	}
	return s.preset(reportID, name, e), nil
}

func (s *LocalStore) Delete(ctx context.Context, id string) error {
	reportID, name, err := ParseLocalID(id)
	if err != nil {
		return ErrNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.read(reportID)
	if err != nil {
		return err
	}
	if _, ok := m[name]; !ok {
		return ErrNotFound
	}
	delete(m, name)
	return s.write(reportID, m)
}
