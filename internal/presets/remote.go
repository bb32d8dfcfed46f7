package presets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"pivot/internal/layout"
	"pivot/internal/storage"
)

// RemoteStore is the durable tier: a storage.PresetRepository acting on
// behalf of one principal.
type RemoteStore struct {
	repo      storage.PresetRepository
	principal string
	clock     clockwork.Clock
	newID     func() string
}

// NewRemoteStore binds repo to principal. A nil clock means the real clock.
func NewRemoteStore(repo storage.PresetRepository, principal string, clock clockwork.Clock) *RemoteStore {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &RemoteStore{repo: repo, principal: principal, clock: clock, newID: uuid.NewString}
}

func (s *RemoteStore) List(ctx context.Context, reportID string) (Listing, error) {
	rows, err := s.repo.ListPresets(ctx, reportID, s.principal)
	if err != nil {
		return Listing{}, err
	}
	var out Listing
	for _, r := range rows {
		p, err := fromRow(r)
		if err != nil {
			return Listing{}, err
		}
		if p.Owner == s.principal {
			out.Mine = append(out.Mine, p)
		} else {
			out.Shared = append(out.Shared, p)
		}
	}
	return out, nil
}

func (s *RemoteStore) Save(ctx context.Context, reportID, name string, l layout.Layout, vis Visibility) (Preset, error) {
	name, err := validateName(name)
	if err != nil {
		return Preset{}, err
	}
	b, err := json.Marshal(l)
	if err != nil {
		return Preset{}, fmt.Errorf("presets: encode layout: %w", err)
	}
	now := s.clock.Now().UTC()
	stored, err := s.repo.UpsertPreset(ctx, storage.PresetRow{
		ID:         s.newID(),
		ReportID:   reportID,
		Owner:      s.principal,
		Name:       name,
		Visibility: string(vis),
		Layout:     b,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	if err != nil {
		return Preset{}, err
	}
	return fromRow(stored)
}

func (s *RemoteStore) Load(ctx context.Context, id string) (Preset, error) {
	row, err := s.repo.GetPreset(ctx, id, s.principal)
	if errors.Is(err, storage.ErrNotFound) {
		return Preset{}, ErrNotFound
	}
	if err != nil {
		return Preset{}, err
	}
	return fromRow(row)
}

func (s *RemoteStore) Delete(ctx context.Context, id string) error {
	err := s.repo.DeletePreset(ctx, id, s.principal)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, storage.ErrForbidden):
		return ErrNotOwner
	default:
		return err
	}
}

func fromRow(r storage.PresetRow) (Preset, error) {
	var l layout.Layout
	if err := json.Unmarshal(r.Layout, &l); err != nil {
		return Preset{}, fmt.Errorf("presets: decode layout of %s: %w", r.ID, err)
	}
	return Preset{
		ID:         r.ID,
		ReportID:   r.ReportID,
		Name:       r.Name,
		Owner:      r.Owner,
		Visibility: Visibility(r.Visibility),
		Layout:     l,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}, nil
}
