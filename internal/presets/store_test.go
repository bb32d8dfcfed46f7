package presets

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"pivot/internal/kv"
	"pivot/internal/layout"
	"pivot/internal/storage"
	_ "pivot/internal/storage/sqlite"
)

var t0 = time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)

func sampleLayout() layout.Layout {
	return layout.Layout{
		Rows:           []string{"Region"},
		Cols:           []string{"Product"},
		Vals:           []string{"Amount"},
		AggregatorName: layout.AggregatorSum,
		RendererName:   layout.RendererTable,
		Exclusions:     map[string][]string{"Region": {"North"}},
	}
}

func openRepo(t *testing.T) storage.PresetRepository {
	t.Helper()

	dsn := "file:" + filepath.Join(t.TempDir(), "presets.db")
	repo, err := storage.NewPresets(context.Background(), storage.Config{Kind: "sqlite", DSN: dsn})
	require.NoError(t, err)
	t.Cleanup(repo.Close)
	require.NoError(t, repo.EnsureSchema(context.Background()))
	return repo
}

// brokenStore fails every operation.
type brokenStore struct{ calls int }

var errBroken = errors.New("connection refused")

func (b *brokenStore) List(context.Context, string) (Listing, error) {
	b.calls++
	return Listing{}, errBroken
}

func (b *brokenStore) Save(context.Context, string, string, layout.Layout, Visibility) (Preset, error) {
	b.calls++
	return Preset{}, errBroken
}

func (b *brokenStore) Load(context.Context, string) (Preset, error) {
	b.calls++
	return Preset{}, errBroken
}

func (b *brokenStore) Delete(context.Context, string) error {
	b.calls++
	return errBroken
}

func TestRemoteStore_OwnershipAndVisibility(t *testing.T) {
	ctx := context.Background()
	repo := openRepo(t)
	clock := clockwork.NewFakeClockAt(t0)

	alice := NewRemoteStore(repo, "alice", clock)
	bob := NewRemoteStore(repo, "bob", clock)

	shared, err := alice.Save(ctx, "Sales", "Team view", sampleLayout(), Shared)
	require.NoError(t, err)
	require.Equal(t, "alice", shared.Owner)
	require.True(t, shared.CreatedAt.Equal(t0))
	require.False(t, shared.Local())

	_, err = alice.Save(ctx, "Sales", "Scratch", sampleLayout(), Private)
	require.NoError(t, err)

	got, err := bob.List(ctx, "Sales")
	require.NoError(t, err)
	require.Empty(t, got.Mine)
	require.Len(t, got.Shared, 1)
	require.Equal(t, "Team view", got.Shared[0].Name)

	loaded, err := bob.Load(ctx, shared.ID)
	require.NoError(t, err)
	if diff := cmp.Diff(sampleLayout(), loaded.Layout); diff != "" {
		t.Fatalf("layout mismatch (-want +got):\n%s", diff)
	}

	require.ErrorIs(t, bob.Delete(ctx, shared.ID), ErrNotOwner)
	require.ErrorIs(t, bob.Delete(ctx, "missing"), ErrNotFound)

	_, err = bob.Load(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, alice.Delete(ctx, shared.ID))
	mine, err := alice.List(ctx, "Sales")
	require.NoError(t, err)
	require.Len(t, mine.Mine, 1)
	require.Equal(t, "Scratch", mine.Mine[0].Name)
}

func TestRemoteStore_SaveReplacesWholesale(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(t0)
	s := NewRemoteStore(openRepo(t), "alice", clock)

	first, err := s.Save(ctx, "Sales", "Monthly", sampleLayout(), Private)
	require.NoError(t, err)

	clock.Advance(time.Hour)
	replacement := layout.Layout{Rows: []string{"Product"}, Cols: []string{"Region"}, Vals: []string{"Amount"}, AggregatorName: layout.AggregatorCount, RendererName: layout.RendererTable}
	second, err := s.Save(ctx, "Sales", " Monthly ", replacement, Shared)
	require.NoError(t, err)

	require.Equal(t, first.ID, second.ID)
	require.Equal(t, Shared, second.Visibility)
	require.True(t, second.UpdatedAt.Equal(t0.Add(time.Hour)))
	require.Nil(t, second.Layout.Exclusions)
	require.Equal(t, layout.AggregatorCount, second.Layout.AggregatorName)
}

func TestLocalStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(t0)
	s := NewLocalStore(kv.NewMemory(), "alice", clock)

	p, err := s.Save(ctx, "Sales", "Monthly", sampleLayout(), Private)
	require.NoError(t, err)
	require.Equal(t, LocalID("Sales", "Monthly"), p.ID)
	require.True(t, p.Local())

	clock.Advance(time.Minute)
	_, err = s.Save(ctx, "Sales", "Monthly", sampleLayout(), Shared)
	require.NoError(t, err)
	_, err = s.Save(ctx, "Other", "Monthly", sampleLayout(), Private)
	require.NoError(t, err)

	l, err := s.List(ctx, "Sales")
	require.NoError(t, err)
	require.Empty(t, l.Shared)
	require.Len(t, l.Mine, 1)
	require.True(t, l.Mine[0].CreatedAt.Equal(t0))
	require.True(t, l.Mine[0].UpdatedAt.Equal(t0.Add(time.Minute)))
	require.Equal(t, Shared, l.Mine[0].Visibility)

	got, err := s.Load(ctx, p.ID)
	require.NoError(t, err)
	if diff := cmp.Diff(sampleLayout(), got.Layout); diff != "" {
		t.Fatalf("layout mismatch (-want +got):\n%s", diff)
	}

	require.NoError(t, s.Delete(ctx, p.ID))
	require.ErrorIs(t, s.Delete(ctx, p.ID), ErrNotFound)
	_, err = s.Load(ctx, p.ID)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = s.Load(ctx, "remote-id")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestLocalStore_Badger(t *testing.T) {
	ctx := context.Background()
	cache, err := kv.OpenBadger("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })

	s := NewLocalStore(cache, "alice", clockwork.NewFakeClockAt(t0))
	p, err := s.Save(ctx, "Sales", "Monthly", sampleLayout(), Private)
	require.NoError(t, err)

	got, err := s.Load(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"Region"}, got.Layout.Rows)
}

func TestFallbackStore_RemoteDown(t *testing.T) {
	ctx := context.Background()
	remote := &brokenStore{}
	s := &FallbackStore{
		Remote: remote,
		Local:  NewLocalStore(kv.NewMemory(), "alice", clockwork.NewFakeClockAt(t0)),
	}

	l, err := s.List(ctx, "Sales")
	require.NoError(t, err)
	require.Empty(t, l.Mine)

	p, err := s.Save(ctx, "Sales", "Monthly", sampleLayout(), Private)
	require.NoError(t, err)
	require.True(t, p.Local())

	l, err = s.List(ctx, "Sales")
	require.NoError(t, err)
	require.Len(t, l.Mine, 1)
	require.Empty(t, l.Shared)

	calls := remote.calls
	got, err := s.Load(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, sampleLayout().Rows, got.Layout.Rows)
	require.Equal(t, calls, remote.calls, "local ids must not reach the remote tier")

	_, err = s.Load(ctx, "3f0c2c3e")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Delete(ctx, "3f0c2c3e"))
	require.NoError(t, s.Delete(ctx, p.ID))
	l, err = s.List(ctx, "Sales")
	require.NoError(t, err)
	require.Empty(t, l.Mine)
}

func TestFallbackStore_SaveFailsWhenBothTiersFail(t *testing.T) {
	s := &FallbackStore{Remote: Unavailable{Err: errBroken}, Local: &brokenStore{}}

	_, err := s.Save(context.Background(), "Sales", "Monthly", sampleLayout(), Private)
	require.ErrorIs(t, err, errBroken)

	l, err := s.List(context.Background(), "Sales")
	require.NoError(t, err)
	require.Empty(t, l.Mine)
}

func TestFallbackStore_SaveSurvivesCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := &FallbackStore{
		Remote: NewRemoteStore(openRepo(t), "alice", clockwork.NewFakeClockAt(t0)),
		Local:  NewLocalStore(kv.NewMemory(), "alice", nil),
	}
	p, err := s.Save(ctx, "Sales", "Monthly", sampleLayout(), Private)
	require.NoError(t, err)
	require.False(t, p.Local())
}

func TestFallbackStore_RemoteAnswersAreNotAbsorbed(t *testing.T) {
	ctx := context.Background()
	repo := openRepo(t)
	clock := clockwork.NewFakeClockAt(t0)

	owned, err := NewRemoteStore(repo, "alice", clock).Save(ctx, "Sales", "Team", sampleLayout(), Shared)
	require.NoError(t, err)

	local := NewLocalStore(kv.NewMemory(), "bob", clock)
	s := &FallbackStore{Remote: NewRemoteStore(repo, "bob", clock), Local: local}

	require.ErrorIs(t, s.Delete(ctx, owned.ID), ErrNotOwner)

	_, err = s.Load(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestManager_OwnershipCheck(t *testing.T) {
	ctx := context.Background()
	repo := openRepo(t)
	clock := clockwork.NewFakeClockAt(t0)

	alice := NewManager(&FallbackStore{
		Remote: NewRemoteStore(repo, "alice", clock),
		Local:  NewLocalStore(kv.NewMemory(), "alice", clock),
	}, "Sales", 0)
	bob := NewManager(&FallbackStore{
		Remote: NewRemoteStore(repo, "bob", clock),
		Local:  NewLocalStore(kv.NewMemory(), "bob", clock),
	}, "Sales", time.Minute)

	p, err := alice.Save(ctx, "Team", sampleLayout(), Shared)
	require.NoError(t, err)

	owned, err := bob.IsOwnedByCaller(ctx, p.ID)
	require.NoError(t, err)
	require.False(t, owned)
	require.ErrorIs(t, bob.Delete(ctx, p.ID), ErrNotOwner)

	owned, err = bob.IsOwnedByCaller(ctx, LocalID("Sales", "anything"))
	require.NoError(t, err)
	require.True(t, owned)

	l, err := bob.Load(ctx, p.ID)
	require.NoError(t, err)
	require.NotNil(t, l)
	require.Equal(t, []string{"Region"}, l.Rows)

	missing, err := bob.Load(ctx, "missing")
	require.NoError(t, err)
	require.Nil(t, missing)

	require.NoError(t, alice.Delete(ctx, p.ID))
	listing, err := alice.List(ctx)
	require.NoError(t, err)
	require.Empty(t, listing.Mine)
}

func TestLastUsed(t *testing.T) {
	cache := kv.NewMemory()
	u := LastUsed{Cache: cache}

	got, err := u.Get("Sales")
	require.NoError(t, err)
	require.Nil(t, got)

	require.NoError(t, u.Put("Sales", sampleLayout()))
	got, err = u.Get("Sales")
	require.NoError(t, err)
	if diff := cmp.Diff(sampleLayout(), *got); diff != "" {
		t.Fatalf("layout mismatch (-want +got):\n%s", diff)
	}

	require.NoError(t, cache.Put("pivot/last/Broken", []byte("{not json")))
	got, err = u.Get("Broken")
	require.NoError(t, err)
	require.Nil(t, got)

	// Named presets and the last-used layout do not share keys.
	s := NewLocalStore(cache, "alice", nil)
	l, err := s.List(context.Background(), "Sales")
	require.NoError(t, err)
	require.Empty(t, l.Mine)
}

func TestFallbackStore_EmptyNameIsNotAFailure(t *testing.T) {
	remote := &brokenStore{}
	s := &FallbackStore{Remote: remote, Local: NewLocalStore(kv.NewMemory(), "alice", nil)}

	_, err := s.Save(context.Background(), "Sales", "   ", sampleLayout(), Private)
	require.ErrorIs(t, err, ErrEmptyName)
	require.Zero(t, remote.calls)
}

func TestManager_EmptyListingIsRefetched(t *testing.T) {
	ctx := context.Background()
	repo := openRepo(t)
	clock := clockwork.NewFakeClockAt(t0)

	m := NewManager(NewRemoteStore(repo, "alice", clock), "Sales", time.Hour)
	l, err := m.List(ctx)
	require.NoError(t, err)
	require.True(t, l.Empty())

	// Saved by another manager for the same user, so m's cache is not reset.
	p, err := NewRemoteStore(repo, "alice", clock).Save(ctx, "Sales", "Monthly", sampleLayout(), Private)
	require.NoError(t, err)

	owned, err := m.IsOwnedByCaller(ctx, p.ID)
	require.NoError(t, err)
	require.True(t, owned)
	require.NoError(t, m.Delete(ctx, p.ID))
}
