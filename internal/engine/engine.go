// Package engine implements the observation workflow: submission,
// review state transitions, and the remediation action sub-state.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"safetrack/internal/blob"
	"safetrack/internal/cache"
	"safetrack/internal/directory"
	"safetrack/internal/domain"
	"safetrack/internal/events"
	"safetrack/internal/notify"
	"safetrack/internal/store"
	"safetrack/internal/visibility"
	"safetrack/internal/vocab"
)

// ValidationError reports a draft that violates a data-model invariant.
// It is raised before any write is attempted.
type ValidationError struct {
	Fields  []string
	Message string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) > 0 {
		return fmt.Sprintf("%s: %s", e.Message, strings.Join(e.Fields, ", "))
	}
	return e.Message
}

// PreconditionError reports a state-machine guard violation.
type PreconditionError struct {
	Message string
}

func (e *PreconditionError) Error() string { return e.Message }

type Engine struct {
	Store    store.Store
	Dir      directory.Directory
	Cache    cache.Snapshot
	Notifier notify.Notifier
	Events   events.Writer
	Blob     blob.Store
	Now      func() time.Time
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *Engine) stamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

// Submit validates the draft and creates the observation. A safe
// observation is born closed; unsafe and near-miss are born open and
// carry a remediation action sub-state. When image is non-empty it is
// uploaded first and the resulting reference stored on the record.
func (e *Engine) Submit(ctx context.Context, observerID string, draft domain.Draft, image []byte) (domain.Observation, error) {
	observer, err := e.Dir.LookupByID(observerID)
	if err != nil {
		return domain.Observation{}, fmt.Errorf("observer %s: %w", observerID, err)
	}
	if err := validateDraft(draft); err != nil {
		return domain.Observation{}, err
	}

	now := e.stamp()
	o := domain.Observation{
		Kind:              draft.Kind,
		Focus:             draft.Focus,
		Location:          draft.Location,
		Unit:              draft.Unit,
		AreaManager:       draft.AreaManager,
		Category:          draft.Category,
		SubCategory:       draft.SubCategory,
		Description:       draft.Description,
		SuggestedSolution: draft.SuggestedSolution,
		ImageRef:          draft.ImageRef,
		Status:            domain.StatusOpen,
		Comments:          []domain.Comment{},
		ObserverSnapshot:  observer,
		CreatedAt:         now,
		IsActionable:      draft.Kind != domain.KindSafe,
		ActionDeadline:    draft.ActionDeadline,
	}
	if o.Kind == domain.KindSafe {
		o.Status = domain.StatusClosed
		o.ClosedAt = &now
		closer := observer.ID
		o.ClosedBy = &closer
	}
	if len(image) > 0 {
		if e.Blob == nil {
			return domain.Observation{}, &ValidationError{Message: "image upload not supported"}
		}
		ref, err := e.Blob.Upload(image, observer.ID)
		if err != nil {
			return domain.Observation{}, err
		}
		o.ImageRef = ref
	}

	id, err := e.Store.Create(ctx, o)
	if err != nil {
		return domain.Observation{}, err
	}
	o.ID = id

	_ = e.Events.Append(ctx, "observation.created", o.ID, observer.ID, events.EventPayload{
		"kind": string(o.Kind), "status": string(o.Status), "area_manager": o.AreaManager,
	})
	if o.Kind != domain.KindSafe {
		e.notifyBestEffort(ctx, domain.Notification{
			RecipientID:   e.recipientForArea(o.AreaManager),
			Message:       fmt.Sprintf("New %s observation reported in %s (%s)", o.Kind, o.Unit, o.Category),
			Kind:          domain.NotifyAlert,
			ObservationID: o.ID,
		})
	}
	return o, nil
}

// AddComment appends a comment and moves the observation to pending. A
// new comment always reopens review, whatever the prior status.
func (e *Engine) AddComment(ctx context.Context, id, authorID, text string) (domain.Observation, error) {
	if strings.TrimSpace(text) == "" {
		return domain.Observation{}, &ValidationError{Fields: []string{"text"}, Message: "comment text is required"}
	}
	author, err := e.Dir.LookupByID(authorID)
	if err != nil {
		return domain.Observation{}, fmt.Errorf("author %s: %w", authorID, err)
	}
	c := domain.Comment{
		ID:         uuid.New().String(),
		AuthorID:   author.ID,
		AuthorName: author.Name,
		Text:       text,
		CreatedAt:  e.stamp(),
	}
	if err := e.Store.AppendComment(ctx, id, c); err != nil {
		return domain.Observation{}, err
	}
	pending := domain.StatusPending
	if err := e.Store.Update(ctx, id, store.Patch{Status: &pending}); err != nil {
		return domain.Observation{}, err
	}
	_ = e.Events.Append(ctx, "observation.commented", id, author.ID, events.EventPayload{"comment_id": c.ID})
	return e.Store.Get(ctx, id)
}

// Reassign routes the observation to a different area manager and
// reopens it.
func (e *Engine) Reassign(ctx context.Context, id, newAreaManager, actorID string) (domain.Observation, error) {
	if !vocab.KnownAreaManager(newAreaManager) {
		return domain.Observation{}, &ValidationError{Fields: []string{"area_manager"}, Message: fmt.Sprintf("unknown area manager %q", newAreaManager)}
	}
	if _, err := e.Store.Get(ctx, id); err != nil {
		return domain.Observation{}, err
	}
	open := domain.StatusOpen
	if err := e.Store.Update(ctx, id, store.Patch{Status: &open, AreaManager: &newAreaManager}); err != nil {
		return domain.Observation{}, err
	}
	_ = e.Events.Append(ctx, "observation.reassigned", id, actorID, events.EventPayload{"area_manager": newAreaManager})
	return e.Store.Get(ctx, id)
}

// Close marks the observation closed. Re-closing records the latest
// closer and time; the terminal shape does not change.
func (e *Engine) Close(ctx context.Context, id, closerID string) (domain.Observation, error) {
	o, err := e.Store.Get(ctx, id)
	if err != nil {
		return domain.Observation{}, err
	}
	closed := domain.StatusClosed
	closedAt := e.stamp()
	if err := e.Store.Update(ctx, id, store.Patch{Status: &closed, ClosedAt: &closedAt, ClosedBy: &closerID}); err != nil {
		return domain.Observation{}, err
	}
	_ = e.Events.Append(ctx, "observation.closed", id, closerID, nil)
	if o.Status != domain.StatusClosed {
		e.notifyBestEffort(ctx, domain.Notification{
			RecipientID:   o.ObserverSnapshot.ID,
			Message:       fmt.Sprintf("Your %s observation in %s has been resolved", o.Kind, o.Unit),
			Kind:          domain.NotifySuccess,
			ObservationID: id,
		})
	}
	return e.Store.Get(ctx, id)
}

// AssignAction assigns the remediation action. Guarded: the observation
// must be actionable and not already assigned.
func (e *Engine) AssignAction(ctx context.Context, id, assigneeID, actorID string) (domain.Observation, error) {
	if _, err := e.Dir.LookupByID(assigneeID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Observation{}, &ValidationError{Fields: []string{"assignee_id"}, Message: fmt.Sprintf("unknown assignee %q", assigneeID)}
		}
		return domain.Observation{}, err
	}
	o, err := e.Store.Get(ctx, id)
	if err != nil {
		return domain.Observation{}, err
	}
	if !o.IsActionable {
		return domain.Observation{}, &PreconditionError{Message: fmt.Sprintf("observation %s is not actionable", id)}
	}
	if o.ActionAssigneeID != nil {
		return domain.Observation{}, &PreconditionError{Message: fmt.Sprintf("observation %s already has an assignee", id)}
	}
	pending := domain.ActionPending
	assignedAt := e.stamp()
	if err := e.Store.Update(ctx, id, store.Patch{
		ActionAssigneeID: &assigneeID,
		ActionStatus:     &pending,
		ActionAssignedAt: &assignedAt,
	}); err != nil {
		return domain.Observation{}, err
	}
	_ = e.Events.Append(ctx, "action.assigned", id, actorID, events.EventPayload{"assignee_id": assigneeID})
	e.notifyBestEffort(ctx, domain.Notification{
		RecipientID:   assigneeID,
		Message:       fmt.Sprintf("You have been assigned a remediation action for a %s observation in %s", o.Kind, o.Unit),
		Kind:          domain.NotifyInfo,
		ObservationID: id,
	})
	return e.Store.Get(ctx, id)
}

// StartAction moves an assigned action from pending to in-progress.
func (e *Engine) StartAction(ctx context.Context, id, actorID string) (domain.Observation, error) {
	o, err := e.Store.Get(ctx, id)
	if err != nil {
		return domain.Observation{}, err
	}
	if o.ActionStatus == nil || *o.ActionStatus != domain.ActionPending {
		return domain.Observation{}, &PreconditionError{Message: fmt.Sprintf("observation %s has no pending action", id)}
	}
	inProgress := domain.ActionInProgress
	if err := e.Store.Update(ctx, id, store.Patch{ActionStatus: &inProgress}); err != nil {
		return domain.Observation{}, err
	}
	_ = e.Events.Append(ctx, "action.started", id, actorID, nil)
	return e.Store.Get(ctx, id)
}

// CompleteAction finishes the remediation action. Valid from pending or
// in-progress.
func (e *Engine) CompleteAction(ctx context.Context, id, actorID string) (domain.Observation, error) {
	o, err := e.Store.Get(ctx, id)
	if err != nil {
		return domain.Observation{}, err
	}
	if o.ActionStatus == nil {
		return domain.Observation{}, &PreconditionError{Message: fmt.Sprintf("observation %s has no assigned action", id)}
	}
	switch *o.ActionStatus {
	case domain.ActionPending, domain.ActionInProgress:
	default:
		return domain.Observation{}, &PreconditionError{Message: fmt.Sprintf("action on observation %s is already %s", id, *o.ActionStatus)}
	}
	completed := domain.ActionCompleted
	completedAt := e.stamp()
	if err := e.Store.Update(ctx, id, store.Patch{ActionStatus: &completed, ActionCompletedAt: &completedAt}); err != nil {
		return domain.Observation{}, err
	}
	_ = e.Events.Append(ctx, "action.completed", id, actorID, nil)
	return e.Store.Get(ctx, id)
}

// FetchVisible returns the observations the identity may see. On a
// transient read failure it serves the last cached snapshot and reports
// degraded mode; a successful read refreshes the cache.
func (e *Engine) FetchVisible(ctx context.Context, ident domain.Identity) (obs []domain.Observation, degraded bool, err error) {
	q, err := visibility.VisibleQuery(ident)
	if err != nil {
		return nil, false, err
	}
	obs, err = e.Store.Query(ctx, q)
	if err != nil {
		if store.IsTransient(err) && e.Cache != nil {
			return e.Cache.Get(ident.ID), true, nil
		}
		return nil, false, err
	}
	if e.Cache != nil {
		_ = e.Cache.Put(ident.ID, obs)
	}
	return obs, false, nil
}

// FilterStatus narrows a fetched set to one review status. The
// selector "active" keeps everything not yet closed; an empty selector
// keeps the whole set.
func FilterStatus(obs []domain.Observation, selector string) ([]domain.Observation, error) {
	keep := func(o domain.Observation) bool { return true }
	switch selector {
	case "":
	case "active":
		keep = func(o domain.Observation) bool { return o.Status != domain.StatusClosed }
	case string(domain.StatusOpen), string(domain.StatusPending), string(domain.StatusClosed):
		want := domain.Status(selector)
		keep = func(o domain.Observation) bool { return o.Status == want }
	default:
		return nil, &ValidationError{Fields: []string{"status"}, Message: fmt.Sprintf("unknown status filter %q", selector)}
	}
	out := make([]domain.Observation, 0, len(obs))
	for _, o := range obs {
		if keep(o) {
			out = append(out, o)
		}
	}
	return out, nil
}

// FetchAssigned returns the actionable observations assigned to an
// identity, newest first.
func (e *Engine) FetchAssigned(ctx context.Context, assigneeID string) ([]domain.Observation, error) {
	return e.Store.ListByAssignee(ctx, assigneeID)
}

// Get returns a single observation by id.
func (e *Engine) Get(ctx context.Context, id string) (domain.Observation, error) {
	return e.Store.Get(ctx, id)
}

func (e *Engine) notifyBestEffort(ctx context.Context, n domain.Notification) {
	if e.Notifier == nil {
		return
	}
	_ = e.Notifier.Notify(ctx, n)
}

// recipientForArea resolves an area-manager display name to a directory
// id, falling back to the raw name when no identity matches.
func (e *Engine) recipientForArea(areaManager string) string {
	for _, ident := range e.Dir.List() {
		if ident.Role == domain.RoleManager && ident.Name == areaManager {
			return ident.ID
		}
	}
	return areaManager
}

func validateDraft(d domain.Draft) error {
	var missing []string
	if d.Location == "" {
		missing = append(missing, "location")
	}
	if d.Unit == "" {
		missing = append(missing, "unit")
	}
	if d.AreaManager == "" {
		missing = append(missing, "area_manager")
	}
	if d.Category == "" {
		missing = append(missing, "category")
	}
	if d.SubCategory == "" {
		missing = append(missing, "sub_category")
	}
	if strings.TrimSpace(d.Description) == "" {
		missing = append(missing, "description")
	}
	if len(missing) > 0 {
		return &ValidationError{Fields: missing, Message: "missing required fields"}
	}
	if !d.Kind.Valid() {
		return &ValidationError{Fields: []string{"kind"}, Message: fmt.Sprintf("unknown kind %q", d.Kind)}
	}
	if !d.Focus.Valid() {
		return &ValidationError{Fields: []string{"focus"}, Message: fmt.Sprintf("unknown focus %q", d.Focus)}
	}
	if !vocab.KnownLocation(d.Location) {
		return &ValidationError{Fields: []string{"location"}, Message: fmt.Sprintf("unknown location %q", d.Location)}
	}
	if !vocab.KnownUnit(d.Unit) {
		return &ValidationError{Fields: []string{"unit"}, Message: fmt.Sprintf("unknown unit %q", d.Unit)}
	}
	if !vocab.KnownAreaManager(d.AreaManager) {
		return &ValidationError{Fields: []string{"area_manager"}, Message: fmt.Sprintf("unknown area manager %q", d.AreaManager)}
	}
	if !vocab.ValidSubCategory(d.Category, d.SubCategory) {
		return &ValidationError{Fields: []string{"category", "sub_category"}, Message: fmt.Sprintf("subcategory %q does not belong to category %q", d.SubCategory, d.Category)}
	}
	if d.Kind != domain.KindSafe && strings.TrimSpace(d.SuggestedSolution) == "" {
		return &ValidationError{Fields: []string{"suggested_solution"}, Message: "suggested solution is required for unsafe and near-miss observations"}
	}
	return nil
}
