package presets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"pivot/internal/layout"
	"pivot/internal/metrics"
)

// FallbackStore tries Remote first and serves every operation Remote
// fails from Local. Remote failures are logged and counted, never
// returned, except for ownership and not-found answers which are real
// results rather than failures.
//
// Local ids never reach Remote.
type FallbackStore struct {
	Remote Store
	Local  Store
	Log    *slog.Logger
}

func (s *FallbackStore) logger() *slog.Logger {
	if s.Log != nil {
		return s.Log
	}
	return slog.Default()
}

// observe runs fn against one tier and records the outcome.
func observe(op, tier string, fn func() error) error {
	start := time.Now()
	err := fn()
	status := "ok"
	if err != nil && !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrNotOwner) {
		status = "error"
	}
	metrics.RecordStoreOp(op, tier, status, time.Since(start))
	return err
}

func (s *FallbackStore) absorb(op, reportID, presetID string, err error) {
	metrics.RecordFallback(op)
	s.logger().Warn("presets: falling back to local store",
		"op", op,
		"report", reportID,
		"preset", presetID,
		"error", fmt.Errorf("%w: %w", ErrStoreUnavailable, err),
	)
}

// List never fails: a broken local tier yields an empty listing.
func (s *FallbackStore) List(ctx context.Context, reportID string) (Listing, error) {
	var out Listing
	err := observe("list", "remote", func() (err error) {
		out, err = s.Remote.List(ctx, reportID)
		return err
	})
	if err == nil {
		return out, nil
	}
	s.absorb("list", reportID, "", err)

	err = observe("list", "local", func() (err error) {
		out, err = s.Local.List(ctx, reportID)
		return err
	})
	if err != nil {
		s.logger().Warn("presets: local list failed", "op", "list", "report", reportID, "error", err)
		return Listing{}, nil
	}
	return Listing{Mine: out.Mine}, nil
}

// Save returns an error only when both tiers fail.
func (s *FallbackStore) Save(ctx context.Context, reportID, name string, l layout.Layout, vis Visibility) (Preset, error) {
	if _, err := validateName(name); err != nil {
		return Preset{}, err
	}
	ctx = context.WithoutCancel(ctx)

	var p Preset
	err := observe("save", "remote", func() (err error) {
		p, err = s.Remote.Save(ctx, reportID, name, l, vis)
		return err
	})
	if err == nil {
		return p, nil
	}
	s.absorb("save", reportID, name, err)

	err = observe("save", "local", func() (err error) {
		p, err = s.Local.Save(ctx, reportID, name, l, vis)
		return err
	})
	if err != nil {
		return Preset{}, fmt.Errorf("presets: save %q: %w", name, err)
	}
	return p, nil
}

func (s *FallbackStore) Load(ctx context.Context, id string) (Preset, error) {
	var p Preset
	if !IsLocalID(id) {
		err := observe("load", "remote", func() (err error) {
			p, err = s.Remote.Load(ctx, id)
			return err
		})
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, ErrNotFound) {
			s.absorb("load", "", id, err)
		}
	}

	err := observe("load", "local", func() (err error) {
		p, err = s.Local.Load(ctx, id)
		return err
	})
	return p, err
}

func (s *FallbackStore) Delete(ctx context.Context, id string) error {
	ctx = context.WithoutCancel(ctx)

	if !IsLocalID(id) {
		err := observe("delete", "remote", func() error {
			return s.Remote.Delete(ctx, id)
		})
		if err == nil || errors.Is(err, ErrNotOwner) || errors.Is(err, ErrNotFound) {
			return err
		}
		s.absorb("delete", "", id, err)

		// A remote id has no local copy; the delete is simply lost.
		return nil
	}

	return observe("delete", "local", func() error {
		return s.Local.Delete(ctx, id)
	})
}

// Unavailable is a Store whose every operation fails with Err. It stands in
// for a remote tier that could not be opened.
type Unavailable struct{ Err error }

func (u Unavailable) List(context.Context, string) (Listing, error) { return Listing{}, u.Err }

func (u Unavailable) Save(context.Context, string, string, layout.Layout, Visibility) (Preset, error) {
	return Preset{}, u.Err
}

func (u Unavailable) Load(context.Context, string) (Preset, error) { return Preset{}, u.Err }

func (u Unavailable) Delete(context.Context, string) error { return u.Err }
