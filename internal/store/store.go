// Package store defines the observation repository contract. Any
// document store that can create, query, and partially update records
// satisfies it; the engine never holds the authoritative copy and
// treats every read as a fresh snapshot.
package store

import (
	"context"
	"errors"
	"fmt"

	"safetrack/internal/domain"
)

var ErrNotFound = errors.New("not found")

// TransientError marks a repository or blob-store failure the caller may
// retry or degrade around (backend unreachable, I/O timeout).
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }
func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err is a degraded-mode candidate.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// Scope selects one of the three supported query shapes.
type Scope string

const (
	// ScopeAll returns every observation.
	ScopeAll Scope = "all"
	// ScopeAreaManagers returns observations whose area manager is in
	// the descriptor's set.
	ScopeAreaManagers Scope = "area-managers"
	// ScopeObserver returns observations submitted by the descriptor's
	// observer id.
	ScopeObserver Scope = "observer"
)

// QueryDescriptor is produced by the visibility filter. Results are
// always ordered by created_at descending.
type QueryDescriptor struct {
	Scope        Scope
	AreaManagers []string
	ObserverID   string
}

// Patch is a partial update applied to a stored observation. Nil fields
// are left untouched. Comments are never patched; use AppendComment.
type Patch struct {
	Status            *domain.Status
	AreaManager       *string
	ClosedAt          *string
	ClosedBy          *string
	ActionAssigneeID  *string
	ActionStatus      *domain.ActionStatus
	ActionAssignedAt  *string
	ActionCompletedAt *string
}

// Store is the observation repository.
type Store interface {
	// Create persists a new observation and returns its assigned id.
	Create(ctx context.Context, o domain.Observation) (string, error)
	// Get returns a single observation with its comments.
	Get(ctx context.Context, id string) (domain.Observation, error)
	// Query returns a point-in-time snapshot matching the descriptor.
	Query(ctx context.Context, q QueryDescriptor) ([]domain.Observation, error)
	// Update merges the patch into the stored record. Last write wins;
	// there is no version check.
	Update(ctx context.Context, id string, p Patch) error
	// AppendComment appends a comment with store-sequenced ordering.
	AppendComment(ctx context.Context, id string, c domain.Comment) error
	// ListByAssignee returns actionable observations assigned to an
	// identity, newest first.
	ListByAssignee(ctx context.Context, assigneeID string) ([]domain.Observation, error)
}
