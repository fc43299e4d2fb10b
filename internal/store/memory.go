package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"safetrack/internal/domain"
)

// Memory is an in-memory Store used by tests and the demo command. The
// FailNext* hooks inject transient failures without touching a real
// backend.
type Memory struct {
	mu   sync.Mutex
	recs map[string]*domain.Observation
	seq  int

	FailNextRead  error
	FailNextWrite error
}

func NewMemory() *Memory {
	return &Memory{recs: map[string]*domain.Observation{}}
}

func (m *Memory) takeReadErr() error {
	err := m.FailNextRead
	m.FailNextRead = nil
	return err
}

func (m *Memory) takeWriteErr() error {
	err := m.FailNextWrite
	m.FailNextWrite = nil
	return err
}

func (m *Memory) Create(ctx context.Context, o domain.Observation) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeWriteErr(); err != nil {
		return "", &TransientError{Op: "create observation", Err: err}
	}
	if o.ID == "" {
		o.ID = uuid.New().String()
	}
	m.seq++
	cp := cloneObservation(o)
	m.recs[o.ID] = &cp
	return o.ID, nil
}

func (m *Memory) Get(ctx context.Context, id string) (domain.Observation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeReadErr(); err != nil {
		return domain.Observation{}, &TransientError{Op: "get observation", Err: err}
	}
	rec, ok := m.recs[id]
	if !ok {
		return domain.Observation{}, ErrNotFound
	}
	return cloneObservation(*rec), nil
}

func (m *Memory) Query(ctx context.Context, q QueryDescriptor) ([]domain.Observation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeReadErr(); err != nil {
		return nil, &TransientError{Op: "query observations", Err: err}
	}
	res := []domain.Observation{}
	for _, rec := range m.recs {
		switch q.Scope {
		case ScopeAll:
		case ScopeAreaManagers:
			if !containsString(q.AreaManagers, rec.AreaManager) {
				continue
			}
		case ScopeObserver:
			if rec.ObserverSnapshot.ID != q.ObserverID {
				continue
			}
		default:
			return nil, fmt.Errorf("unsupported query scope %q", q.Scope)
		}
		res = append(res, cloneObservation(*rec))
	}
	sortNewestFirst(res)
	return res, nil
}

func (m *Memory) ListByAssignee(ctx context.Context, assigneeID string) ([]domain.Observation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeReadErr(); err != nil {
		return nil, &TransientError{Op: "list by assignee", Err: err}
	}
	res := []domain.Observation{}
	for _, rec := range m.recs {
		if !rec.IsActionable || rec.ActionAssigneeID == nil || *rec.ActionAssigneeID != assigneeID {
			continue
		}
		res = append(res, cloneObservation(*rec))
	}
	sortNewestFirst(res)
	return res, nil
}

func (m *Memory) Update(ctx context.Context, id string, p Patch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeWriteErr(); err != nil {
		return &TransientError{Op: "update observation", Err: err}
	}
	rec, ok := m.recs[id]
	if !ok {
		return ErrNotFound
	}
	if p.Status != nil {
		rec.Status = *p.Status
	}
	if p.AreaManager != nil {
		rec.AreaManager = *p.AreaManager
	}
	if p.ClosedAt != nil {
		v := *p.ClosedAt
		rec.ClosedAt = &v
	}
	if p.ClosedBy != nil {
		v := *p.ClosedBy
		rec.ClosedBy = &v
	}
	if p.ActionAssigneeID != nil {
		v := *p.ActionAssigneeID
		rec.ActionAssigneeID = &v
	}
	if p.ActionStatus != nil {
		v := *p.ActionStatus
		rec.ActionStatus = &v
	}
	if p.ActionAssignedAt != nil {
		v := *p.ActionAssignedAt
		rec.ActionAssignedAt = &v
	}
	if p.ActionCompletedAt != nil {
		v := *p.ActionCompletedAt
		rec.ActionCompletedAt = &v
	}
	return nil
}

func (m *Memory) AppendComment(ctx context.Context, id string, c domain.Comment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeWriteErr(); err != nil {
		return &TransientError{Op: "append comment", Err: err}
	}
	rec, ok := m.recs[id]
	if !ok {
		return ErrNotFound
	}
	rec.Comments = append(rec.Comments, c)
	return nil
}

func sortNewestFirst(obs []domain.Observation) {
	sort.Slice(obs, func(i, j int) bool {
		if obs[i].CreatedAt != obs[j].CreatedAt {
			return obs[i].CreatedAt > obs[j].CreatedAt
		}
		return obs[i].ID > obs[j].ID
	})
}

func cloneObservation(o domain.Observation) domain.Observation {
	cp := o
	cp.Comments = append([]domain.Comment(nil), o.Comments...)
	if cp.Comments == nil {
		cp.Comments = []domain.Comment{}
	}
	cp.ClosedAt = cloneStr(o.ClosedAt)
	cp.ClosedBy = cloneStr(o.ClosedBy)
	cp.ActionAssigneeID = cloneStr(o.ActionAssigneeID)
	cp.ActionDeadline = cloneStr(o.ActionDeadline)
	cp.ActionAssignedAt = cloneStr(o.ActionAssignedAt)
	cp.ActionCompletedAt = cloneStr(o.ActionCompletedAt)
	if o.ActionStatus != nil {
		v := *o.ActionStatus
		cp.ActionStatus = &v
	}
	return cp
}

func cloneStr(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func containsString(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
