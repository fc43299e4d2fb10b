package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"safetrack/internal/cache"
	"safetrack/internal/config"
	"safetrack/internal/db"
	"safetrack/internal/directory"
	"safetrack/internal/domain"
	"safetrack/internal/engine"
	"safetrack/internal/events"
	"safetrack/internal/notify"
	"safetrack/internal/store"
)

type testEnv struct {
	Engine   *engine.Engine
	Notifier *notify.Recorder
	Ctx      context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := db.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	rec := &notify.Recorder{}
	eng := &engine.Engine{
		Store:    store.NewSQLite(conn),
		Dir:      directory.NewStatic(config.Default().Identities()),
		Cache:    cache.NewFile(dir),
		Notifier: rec,
		Events:   events.Writer{DB: conn},
		Now:      func() time.Time { return time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC) },
	}
	return testEnv{Engine: eng, Notifier: rec, Ctx: context.Background()}
}

func unsafeDraft() domain.Draft {
	return domain.Draft{
		Kind:              domain.KindUnsafe,
		Focus:             domain.FocusAct,
		Location:          "Lagos Plant",
		Unit:              "Canline 1",
		AreaManager:       "Sarah Smith",
		Category:          "PPE",
		SubCategory:       "Hands and arms",
		Description:       "Operator handling sheet metal without gloves",
		SuggestedSolution: "Issue gloves",
	}
}

func TestSubmitSafeCreatedClosed(t *testing.T) {
	env := newTestEnv(t)
	draft := unsafeDraft()
	draft.Kind = domain.KindSafe
	draft.SuggestedSolution = ""
	o, err := env.Engine.Submit(env.Ctx, "u-001", draft, nil)
	if err != nil {
		t.Fatalf("submit safe: %v", err)
	}
	if o.Status != domain.StatusClosed {
		t.Fatalf("safe observation should be closed, got %s", o.Status)
	}
	if o.ClosedAt == nil {
		t.Fatal("safe observation should have closedAt set")
	}
	if o.IsActionable {
		t.Fatal("safe observation should not be actionable")
	}
	if len(env.Notifier.Sent) != 0 {
		t.Fatalf("safe submission should not notify, got %d", len(env.Notifier.Sent))
	}
}

func TestSubmitUnsafeCreatedOpen(t *testing.T) {
	env := newTestEnv(t)
	o, err := env.Engine.Submit(env.Ctx, "u-001", unsafeDraft(), nil)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if o.Status != domain.StatusOpen {
		t.Fatalf("unsafe observation should be open, got %s", o.Status)
	}
	if !o.IsActionable {
		t.Fatal("unsafe observation should be actionable")
	}
	if o.ObserverSnapshot.Name != "Emeka Adeyemi" {
		t.Fatalf("observer snapshot not taken: %+v", o.ObserverSnapshot)
	}
	if len(env.Notifier.Sent) != 1 || env.Notifier.Sent[0].Kind != domain.NotifyAlert {
		t.Fatalf("expected alert to area manager, got %+v", env.Notifier.Sent)
	}
	if env.Notifier.Sent[0].RecipientID != "u-004" {
		t.Fatalf("alert should resolve Sarah Smith to u-004, got %s", env.Notifier.Sent[0].RecipientID)
	}
}

func TestSubmitValidation(t *testing.T) {
	env := newTestEnv(t)
	cases := []struct {
		name   string
		mutate func(*domain.Draft)
	}{
		{"missing description", func(d *domain.Draft) { d.Description = "" }},
		{"missing location", func(d *domain.Draft) { d.Location = "" }},
		{"missing area manager", func(d *domain.Draft) { d.AreaManager = "" }},
		{"unknown unit", func(d *domain.Draft) { d.Unit = "Canline 9" }},
		{"subcategory outside category", func(d *domain.Draft) { d.SubCategory = "Air" }},
		{"unsafe without solution", func(d *domain.Draft) { d.SuggestedSolution = "" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			draft := unsafeDraft()
			tc.mutate(&draft)
			_, err := env.Engine.Submit(env.Ctx, "u-001", draft, nil)
			var ve *engine.ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
		})
	}
}

func TestWorkflowEndToEnd(t *testing.T) {
	env := newTestEnv(t)
	o, err := env.Engine.Submit(env.Ctx, "u-001", unsafeDraft(), nil)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if o.Status != domain.StatusOpen {
		t.Fatalf("expected open, got %s", o.Status)
	}

	o, err = env.Engine.AddComment(env.Ctx, o.ID, "u-004", "Please investigate")
	if err != nil {
		t.Fatalf("comment: %v", err)
	}
	if o.Status != domain.StatusPending {
		t.Fatalf("comment should move to pending, got %s", o.Status)
	}
	if len(o.Comments) != 1 || o.Comments[0].AuthorName != "Sarah Smith" {
		t.Fatalf("comment not recorded: %+v", o.Comments)
	}

	o, err = env.Engine.Reassign(env.Ctx, o.ID, "John Doe", "u-004")
	if err != nil {
		t.Fatalf("reassign: %v", err)
	}
	if o.Status != domain.StatusOpen || o.AreaManager != "John Doe" {
		t.Fatalf("reassign should reopen with new manager, got %s/%s", o.Status, o.AreaManager)
	}

	o, err = env.Engine.Close(env.Ctx, o.ID, "u-003")
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if o.Status != domain.StatusClosed {
		t.Fatalf("expected closed, got %s", o.Status)
	}
	if o.ClosedAt == nil || o.ClosedBy == nil || *o.ClosedBy != "u-003" {
		t.Fatalf("close metadata missing: %+v", o)
	}

	last := env.Notifier.Sent[len(env.Notifier.Sent)-1]
	if last.Kind != domain.NotifySuccess || last.RecipientID != "u-001" {
		t.Fatalf("observer should get success notification, got %+v", last)
	}
}

func TestCommentOnClosedReopensReview(t *testing.T) {
	env := newTestEnv(t)
	o, err := env.Engine.Submit(env.Ctx, "u-001", unsafeDraft(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.Close(env.Ctx, o.ID, "u-004"); err != nil {
		t.Fatal(err)
	}
	o, err = env.Engine.AddComment(env.Ctx, o.ID, "u-001", "Issue recurred")
	if err != nil {
		t.Fatal(err)
	}
	if o.Status != domain.StatusPending {
		t.Fatalf("comment on closed should yield pending, got %s", o.Status)
	}
}

func TestAssignActionGuards(t *testing.T) {
	env := newTestEnv(t)
	o, err := env.Engine.Submit(env.Ctx, "u-001", unsafeDraft(), nil)
	if err != nil {
		t.Fatal(err)
	}

	o, err = env.Engine.AssignAction(env.Ctx, o.ID, "u-004", "u-007")
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if o.ActionStatus == nil || *o.ActionStatus != domain.ActionPending {
		t.Fatalf("action should be pending, got %+v", o.ActionStatus)
	}
	if o.ActionAssignedAt == nil {
		t.Fatal("assignment timestamp missing")
	}

	_, err = env.Engine.AssignAction(env.Ctx, o.ID, "u-003", "u-007")
	var pe *engine.PreconditionError
	if !errors.As(err, &pe) {
		t.Fatalf("second assign should fail precondition, got %v", err)
	}
	got, _ := env.Engine.Get(env.Ctx, o.ID)
	if got.ActionAssigneeID == nil || *got.ActionAssigneeID != "u-004" {
		t.Fatalf("first assignee must not be overwritten, got %+v", got.ActionAssigneeID)
	}

	safe := unsafeDraft()
	safe.Kind = domain.KindSafe
	safe.SuggestedSolution = ""
	so, err := env.Engine.Submit(env.Ctx, "u-001", safe, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.AssignAction(env.Ctx, so.ID, "u-004", "u-007"); !errors.As(err, &pe) {
		t.Fatalf("assign on non-actionable should fail precondition, got %v", err)
	}
}

func TestActionLifecycle(t *testing.T) {
	env := newTestEnv(t)
	o, err := env.Engine.Submit(env.Ctx, "u-001", unsafeDraft(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.AssignAction(env.Ctx, o.ID, "u-004", "u-007"); err != nil {
		t.Fatal(err)
	}
	o, err = env.Engine.StartAction(env.Ctx, o.ID, "u-004")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if *o.ActionStatus != domain.ActionInProgress {
		t.Fatalf("expected in-progress, got %s", *o.ActionStatus)
	}
	o, err = env.Engine.CompleteAction(env.Ctx, o.ID, "u-004")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if *o.ActionStatus != domain.ActionCompleted {
		t.Fatalf("expected completed, got %s", *o.ActionStatus)
	}
	if o.ActionCompletedAt == nil {
		t.Fatal("completion timestamp missing")
	}

	var pe *engine.PreconditionError
	if _, err := env.Engine.CompleteAction(env.Ctx, o.ID, "u-004"); !errors.As(err, &pe) {
		t.Fatalf("re-complete should fail precondition, got %v", err)
	}

	assigned, err := env.Engine.FetchAssigned(env.Ctx, "u-004")
	if err != nil {
		t.Fatal(err)
	}
	if len(assigned) != 1 || assigned[0].ID != o.ID {
		t.Fatalf("assignee work queue wrong: %+v", assigned)
	}
}

func TestNotifierFailureDoesNotFailWorkflow(t *testing.T) {
	env := newTestEnv(t)
	env.Notifier.FailErr = errors.New("broker down")
	o, err := env.Engine.Submit(env.Ctx, "u-001", unsafeDraft(), nil)
	if err != nil {
		t.Fatalf("submit should succeed despite notifier failure: %v", err)
	}
	if _, err := env.Engine.Close(env.Ctx, o.ID, "u-004"); err != nil {
		t.Fatalf("close should succeed despite notifier failure: %v", err)
	}
}

func TestRecloseNotifiesObserverOnce(t *testing.T) {
	env := newTestEnv(t)
	o, err := env.Engine.Submit(env.Ctx, "u-001", unsafeDraft(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.Close(env.Ctx, o.ID, "u-004"); err != nil {
		t.Fatal(err)
	}
	got, err := env.Engine.Close(env.Ctx, o.ID, "u-003")
	if err != nil {
		t.Fatalf("re-close: %v", err)
	}
	if got.ClosedBy == nil || *got.ClosedBy != "u-003" {
		t.Fatalf("re-close should record the latest closer, got %+v", got.ClosedBy)
	}
	successes := 0
	for _, n := range env.Notifier.Sent {
		if n.Kind == domain.NotifySuccess {
			successes++
		}
	}
	if successes != 1 {
		t.Fatalf("only the transition into closed should notify, got %d success notifications", successes)
	}
}

func TestFilterStatus(t *testing.T) {
	obs := []domain.Observation{
		{ID: "a", Status: domain.StatusOpen},
		{ID: "b", Status: domain.StatusPending},
		{ID: "c", Status: domain.StatusClosed},
	}
	all, err := engine.FilterStatus(obs, "")
	if err != nil || len(all) != 3 {
		t.Fatalf("empty selector should keep all: %v %d", err, len(all))
	}
	active, err := engine.FilterStatus(obs, "active")
	if err != nil || len(active) != 2 {
		t.Fatalf("active should drop closed: %v %+v", err, active)
	}
	closed, err := engine.FilterStatus(obs, "closed")
	if err != nil || len(closed) != 1 || closed[0].ID != "c" {
		t.Fatalf("closed selector wrong: %v %+v", err, closed)
	}
	var ve *engine.ValidationError
	if _, err := engine.FilterStatus(obs, "archived"); !errors.As(err, &ve) {
		t.Fatalf("unknown selector should fail validation, got %v", err)
	}
}

func TestUnknownObservationIsNotFound(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.AddComment(env.Ctx, "no-such-id", "u-001", "hello")
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := env.Engine.Get(env.Ctx, "no-such-id"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
