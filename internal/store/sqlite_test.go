package store_test

import (
	"context"
	"errors"
	"testing"

	"safetrack/internal/db"
	"safetrack/internal/domain"
	"safetrack/internal/store"
)

func newStore(t *testing.T) *store.SQLite {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := db.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return store.NewSQLite(conn)
}

func sample(observerID, areaManager, createdAt string) domain.Observation {
	return domain.Observation{
		Kind:              domain.KindUnsafe,
		Focus:             domain.FocusAct,
		Location:          "Lagos Plant",
		Unit:              "Canline 1",
		AreaManager:       areaManager,
		Category:          "PPE",
		SubCategory:       "Hands and arms",
		Description:       "No gloves",
		SuggestedSolution: "Issue gloves",
		Status:            domain.StatusOpen,
		ObserverSnapshot:  domain.Identity{ID: observerID, Name: "Observer " + observerID, Department: "Production", Role: domain.RoleObserver},
		CreatedAt:         createdAt,
		IsActionable:      true,
	}
}

func TestCreateGetRoundTrip(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	id, err := s.Create(ctx, sample("u-001", "Sarah Smith", "2026-03-01T10:00:00Z"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if id == "" {
		t.Fatal("create must assign an id")
	}
	got, err := s.Get(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Kind != domain.KindUnsafe || got.AreaManager != "Sarah Smith" || !got.IsActionable {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if got.ObserverSnapshot.ID != "u-001" || got.ObserverSnapshot.Role != domain.RoleObserver {
		t.Fatalf("observer snapshot mismatch: %+v", got.ObserverSnapshot)
	}
	if got.ClosedAt != nil || got.ActionStatus != nil {
		t.Fatalf("nullable fields should be unset: %+v", got)
	}
}

func TestGetUnknownIsNotFound(t *testing.T) {
	s := newStore(t)
	_, err := s.Get(context.Background(), "nope")
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := s.Update(context.Background(), "nope", store.Patch{}); err != nil {
		t.Fatalf("empty patch should be a no-op even for unknown ids, got %v", err)
	}
	st := domain.StatusClosed
	if err := s.Update(context.Background(), "nope", store.Patch{Status: &st}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestQueryScopesAndOrdering(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	if _, err := s.Create(ctx, sample("u-001", "Sarah Smith", "2026-03-01T10:00:00Z")); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Create(ctx, sample("u-002", "John Doe", "2026-03-02T10:00:00Z")); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Create(ctx, sample("u-001", "Sarah Smith", "2026-03-03T10:00:00Z")); err != nil {
		t.Fatal(err)
	}

	all, err := s.Query(ctx, store.QueryDescriptor{Scope: store.ScopeAll})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 || all[0].CreatedAt != "2026-03-03T10:00:00Z" {
		t.Fatalf("all scope should be newest first: %+v", all)
	}

	byArea, err := s.Query(ctx, store.QueryDescriptor{Scope: store.ScopeAreaManagers, AreaManagers: []string{"Sarah Smith"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(byArea) != 2 {
		t.Fatalf("expected 2 for Sarah Smith, got %d", len(byArea))
	}

	empty, err := s.Query(ctx, store.QueryDescriptor{Scope: store.ScopeAreaManagers})
	if err != nil {
		t.Fatal(err)
	}
	if len(empty) != 0 {
		t.Fatalf("empty manager set should return nothing, got %d", len(empty))
	}

	mine, err := s.Query(ctx, store.QueryDescriptor{Scope: store.ScopeObserver, ObserverID: "u-002"})
	if err != nil {
		t.Fatal(err)
	}
	if len(mine) != 1 || mine[0].ObserverSnapshot.ID != "u-002" {
		t.Fatalf("observer scope wrong: %+v", mine)
	}
}

func TestCommentsAppendInOrder(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	id, err := s.Create(ctx, sample("u-001", "Sarah Smith", "2026-03-01T10:00:00Z"))
	if err != nil {
		t.Fatal(err)
	}
	for i, text := range []string{"first", "second", "third"} {
		c := domain.Comment{
			ID:        string(rune('a' + i)),
			AuthorID:  "u-004",
			Text:      text,
			CreatedAt: "2026-03-01T11:00:00Z",
		}
		if err := s.AppendComment(ctx, id, c); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	got, err := s.Get(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Comments) != 3 {
		t.Fatalf("expected 3 comments, got %d", len(got.Comments))
	}
	for i, want := range []string{"first", "second", "third"} {
		if got.Comments[i].Text != want {
			t.Fatalf("comment order broken: %+v", got.Comments)
		}
	}
	if err := s.AppendComment(ctx, "nope", domain.Comment{ID: "x"}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPatchMergesFields(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	id, err := s.Create(ctx, sample("u-001", "Sarah Smith", "2026-03-01T10:00:00Z"))
	if err != nil {
		t.Fatal(err)
	}
	closed := domain.StatusClosed
	closedAt := "2026-03-05T10:00:00Z"
	closedBy := "u-004"
	if err := s.Update(ctx, id, store.Patch{Status: &closed, ClosedAt: &closedAt, ClosedBy: &closedBy}); err != nil {
		t.Fatal(err)
	}
	got, err := s.Get(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.StatusClosed || got.ClosedAt == nil || *got.ClosedBy != "u-004" {
		t.Fatalf("patch not applied: %+v", got)
	}
	if got.AreaManager != "Sarah Smith" {
		t.Fatalf("untouched field changed: %s", got.AreaManager)
	}

	assignee := "u-003"
	pending := domain.ActionPending
	assignedAt := "2026-03-06T10:00:00Z"
	if err := s.Update(ctx, id, store.Patch{ActionAssigneeID: &assignee, ActionStatus: &pending, ActionAssignedAt: &assignedAt}); err != nil {
		t.Fatal(err)
	}
	got, _ = s.Get(ctx, id)
	if got.ActionStatus == nil || *got.ActionStatus != domain.ActionPending || *got.ActionAssigneeID != "u-003" {
		t.Fatalf("action patch not applied: %+v", got)
	}
	if got.Status != domain.StatusClosed {
		t.Fatalf("status clobbered by action patch: %s", got.Status)
	}

	byAssignee, err := s.ListByAssignee(ctx, "u-003")
	if err != nil {
		t.Fatal(err)
	}
	if len(byAssignee) != 1 || byAssignee[0].ID != id {
		t.Fatalf("assignee listing wrong: %+v", byAssignee)
	}
}
