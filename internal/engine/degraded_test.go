package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"safetrack/internal/cache"
	"safetrack/internal/config"
	"safetrack/internal/directory"
	"safetrack/internal/domain"
	"safetrack/internal/engine"
	"safetrack/internal/notify"
	"safetrack/internal/store"
)

func newMemoryEnv(t *testing.T) (*engine.Engine, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	eng := &engine.Engine{
		Store:    mem,
		Dir:      directory.NewStatic(config.Default().Identities()),
		Cache:    cache.NewFile(t.TempDir()),
		Notifier: &notify.Recorder{},
		Now:      func() time.Time { return time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC) },
	}
	return eng, mem
}

func TestFetchVisibleDegradedServesCache(t *testing.T) {
	eng, mem := newMemoryEnv(t)
	ctx := context.Background()
	observer, err := eng.Dir.LookupByID("u-001")
	if err != nil {
		t.Fatal(err)
	}
	o, err := eng.Submit(ctx, "u-001", unsafeDraft(), nil)
	if err != nil {
		t.Fatal(err)
	}

	// First fetch succeeds and primes the cache.
	obs, degraded, err := eng.FetchVisible(ctx, observer)
	if err != nil || degraded {
		t.Fatalf("live fetch: %v degraded=%v", err, degraded)
	}
	if len(obs) != 1 || obs[0].ID != o.ID {
		t.Fatalf("unexpected visible set: %+v", obs)
	}

	// Backend failure serves the prior snapshot, unmodified.
	mem.FailNextRead = errors.New("backend unreachable")
	obs, degraded, err = eng.FetchVisible(ctx, observer)
	if err != nil {
		t.Fatalf("degraded fetch should not error: %v", err)
	}
	if !degraded {
		t.Fatal("expected degraded mode")
	}
	if len(obs) != 1 || obs[0].ID != o.ID {
		t.Fatalf("cached set mismatch: %+v", obs)
	}
}

func TestFetchVisibleDegradedWithoutPriorFetch(t *testing.T) {
	eng, mem := newMemoryEnv(t)
	ctx := context.Background()
	observer, err := eng.Dir.LookupByID("u-002")
	if err != nil {
		t.Fatal(err)
	}
	mem.FailNextRead = errors.New("backend unreachable")
	obs, degraded, err := eng.FetchVisible(ctx, observer)
	if err != nil {
		t.Fatalf("degraded fetch should not error: %v", err)
	}
	if !degraded {
		t.Fatal("expected degraded mode")
	}
	if len(obs) != 0 {
		t.Fatalf("expected empty set with no prior snapshot, got %+v", obs)
	}
}

func TestWriteFailureSurfacesTransient(t *testing.T) {
	eng, mem := newMemoryEnv(t)
	ctx := context.Background()
	mem.FailNextWrite = errors.New("backend unreachable")
	_, err := eng.Submit(ctx, "u-001", unsafeDraft(), nil)
	if !store.IsTransient(err) {
		t.Fatalf("write failure must surface as transient, got %v", err)
	}
}

func TestObserverSnapshotDoesNotDrift(t *testing.T) {
	eng, _ := newMemoryEnv(t)
	ctx := context.Background()
	o, err := eng.Submit(ctx, "u-001", unsafeDraft(), nil)
	if err != nil {
		t.Fatal(err)
	}

	// A different roster later on must not rewrite history.
	eng.Dir = directory.NewStatic([]domain.Identity{
		{ID: "u-001", Name: "Renamed Observer", Department: "Production", Role: domain.RoleObserver},
	})
	got, err := eng.Get(ctx, o.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.ObserverSnapshot.Name != "Emeka Adeyemi" {
		t.Fatalf("snapshot drifted: %s", got.ObserverSnapshot.Name)
	}
}
