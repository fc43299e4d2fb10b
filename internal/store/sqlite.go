package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"safetrack/internal/domain"
)

// SQLite is the production Store backed by the workspace database.
type SQLite struct {
	DB *sql.DB
}

func NewSQLite(db *sql.DB) *SQLite {
	return &SQLite{DB: db}
}

const observationColumns = `id, kind, focus, location, unit, area_manager, category, sub_category,
description, COALESCE(suggested_solution,''), COALESCE(image_ref,''), status,
observer_id, observer_name, COALESCE(observer_department,''), observer_role,
created_at, closed_at, closed_by, is_actionable,
action_assignee_id, action_status, action_deadline, action_assigned_at, action_completed_at`

func (s *SQLite) Create(ctx context.Context, o domain.Observation) (string, error) {
	id := o.ID
	if id == "" {
		id = uuid.New().String()
	}
	_, err := s.DB.ExecContext(ctx, `INSERT INTO observations(
id, kind, focus, location, unit, area_manager, category, sub_category,
description, suggested_solution, image_ref, status,
observer_id, observer_name, observer_department, observer_role,
created_at, closed_at, closed_by, is_actionable,
action_assignee_id, action_status, action_deadline, action_assigned_at, action_completed_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		id, string(o.Kind), string(o.Focus), o.Location, o.Unit, o.AreaManager, o.Category, o.SubCategory,
		o.Description, nullable(o.SuggestedSolution), nullable(o.ImageRef), string(o.Status),
		o.ObserverSnapshot.ID, o.ObserverSnapshot.Name, nullable(o.ObserverSnapshot.Department), string(o.ObserverSnapshot.Role),
		o.CreatedAt, o.ClosedAt, o.ClosedBy, boolToInt(o.IsActionable),
		o.ActionAssigneeID, actionStatusValue(o.ActionStatus), o.ActionDeadline, o.ActionAssignedAt, o.ActionCompletedAt)
	if err != nil {
		return "", &TransientError{Op: "create observation", Err: err}
	}
	return id, nil
}

func (s *SQLite) Get(ctx context.Context, id string) (domain.Observation, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+observationColumns+` FROM observations WHERE id=?`, id)
	o, err := scanObservation(row)
	if err == sql.ErrNoRows {
		return o, ErrNotFound
	}
	if err != nil {
		return o, &TransientError{Op: "get observation", Err: err}
	}
	if err := s.loadComments(ctx, &o); err != nil {
		return o, err
	}
	return o, nil
}

func (s *SQLite) Query(ctx context.Context, q QueryDescriptor) ([]domain.Observation, error) {
	query := `SELECT ` + observationColumns + ` FROM observations`
	var args []any
	switch q.Scope {
	case ScopeAll:
	case ScopeAreaManagers:
		if len(q.AreaManagers) == 0 {
			return []domain.Observation{}, nil
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(q.AreaManagers)), ",")
		query += ` WHERE area_manager IN (` + placeholders + `)`
		for _, m := range q.AreaManagers {
			args = append(args, m)
		}
	case ScopeObserver:
		query += ` WHERE observer_id=?`
		args = append(args, q.ObserverID)
	default:
		return nil, fmt.Errorf("unsupported query scope %q", q.Scope)
	}
	query += ` ORDER BY created_at DESC, id DESC`
	return s.queryObservations(ctx, query, args...)
}

func (s *SQLite) ListByAssignee(ctx context.Context, assigneeID string) ([]domain.Observation, error) {
	return s.queryObservations(ctx, `SELECT `+observationColumns+` FROM observations
WHERE is_actionable=1 AND action_assignee_id=? ORDER BY created_at DESC, id DESC`, assigneeID)
}

func (s *SQLite) Update(ctx context.Context, id string, p Patch) error {
	var (
		fields []string
		args   []any
	)
	if p.Status != nil {
		fields = append(fields, "status=?")
		args = append(args, string(*p.Status))
	}
	if p.AreaManager != nil {
		fields = append(fields, "area_manager=?")
		args = append(args, *p.AreaManager)
	}
	if p.ClosedAt != nil {
		fields = append(fields, "closed_at=?")
		args = append(args, *p.ClosedAt)
	}
	if p.ClosedBy != nil {
		fields = append(fields, "closed_by=?")
		args = append(args, *p.ClosedBy)
	}
	if p.ActionAssigneeID != nil {
		fields = append(fields, "action_assignee_id=?")
		args = append(args, *p.ActionAssigneeID)
	}
	if p.ActionStatus != nil {
		fields = append(fields, "action_status=?")
		args = append(args, string(*p.ActionStatus))
	}
	if p.ActionAssignedAt != nil {
		fields = append(fields, "action_assigned_at=?")
		args = append(args, *p.ActionAssignedAt)
	}
	if p.ActionCompletedAt != nil {
		fields = append(fields, "action_completed_at=?")
		args = append(args, *p.ActionCompletedAt)
	}
	if len(fields) == 0 {
		return nil
	}
	args = append(args, id)
	res, err := s.DB.ExecContext(ctx, fmt.Sprintf(`UPDATE observations SET %s WHERE id=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return &TransientError{Op: "update observation", Err: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLite) AppendComment(ctx context.Context, id string, c domain.Comment) error {
	var exists int
	err := s.DB.QueryRowContext(ctx, `SELECT 1 FROM observations WHERE id=?`, id).Scan(&exists)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return &TransientError{Op: "append comment", Err: err}
	}
	_, err = s.DB.ExecContext(ctx, `INSERT INTO comments(id, observation_id, author_id, author_name, text, created_at)
VALUES (?,?,?,?,?,?)`, c.ID, id, c.AuthorID, c.AuthorName, c.Text, c.CreatedAt)
	if err != nil {
		return &TransientError{Op: "append comment", Err: err}
	}
	return nil
}

func (s *SQLite) queryObservations(ctx context.Context, query string, args ...any) ([]domain.Observation, error) {
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &TransientError{Op: "query observations", Err: err}
	}
	defer rows.Close()
	res := []domain.Observation{}
	for rows.Next() {
		o, err := scanObservation(rows)
		if err != nil {
			return nil, &TransientError{Op: "scan observation", Err: err}
		}
		res = append(res, o)
	}
	if err := rows.Err(); err != nil {
		return nil, &TransientError{Op: "query observations", Err: err}
	}
	for i := range res {
		if err := s.loadComments(ctx, &res[i]); err != nil {
			return nil, err
		}
	}
	return res, nil
}

func (s *SQLite) loadComments(ctx context.Context, o *domain.Observation) error {
	rows, err := s.DB.QueryContext(ctx, `SELECT id, author_id, author_name, text, created_at
FROM comments WHERE observation_id=? ORDER BY seq ASC`, o.ID)
	if err != nil {
		return &TransientError{Op: "load comments", Err: err}
	}
	defer rows.Close()
	o.Comments = []domain.Comment{}
	for rows.Next() {
		var c domain.Comment
		if err := rows.Scan(&c.ID, &c.AuthorID, &c.AuthorName, &c.Text, &c.CreatedAt); err != nil {
			return &TransientError{Op: "scan comment", Err: err}
		}
		o.Comments = append(o.Comments, c)
	}
	return rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanObservation(row rowScanner) (domain.Observation, error) {
	var (
		o            domain.Observation
		kind         string
		focus        string
		status       string
		role         string
		actionable   int
		closedAt     sql.NullString
		closedBy     sql.NullString
		assignee     sql.NullString
		actionStatus sql.NullString
		deadline     sql.NullString
		assignedAt   sql.NullString
		completedAt  sql.NullString
	)
	err := row.Scan(&o.ID, &kind, &focus, &o.Location, &o.Unit, &o.AreaManager, &o.Category, &o.SubCategory,
		&o.Description, &o.SuggestedSolution, &o.ImageRef, &status,
		&o.ObserverSnapshot.ID, &o.ObserverSnapshot.Name, &o.ObserverSnapshot.Department, &role,
		&o.CreatedAt, &closedAt, &closedBy, &actionable,
		&assignee, &actionStatus, &deadline, &assignedAt, &completedAt)
	if err != nil {
		return o, err
	}
	o.Kind = domain.Kind(kind)
	o.Focus = domain.Focus(focus)
	o.Status = domain.Status(status)
	o.ObserverSnapshot.Role = domain.Role(role)
	o.IsActionable = actionable != 0
	o.ClosedAt = nullString(closedAt)
	o.ClosedBy = nullString(closedBy)
	o.ActionAssigneeID = nullString(assignee)
	if actionStatus.Valid {
		st := domain.ActionStatus(actionStatus.String)
		o.ActionStatus = &st
	}
	o.ActionDeadline = nullString(deadline)
	o.ActionAssignedAt = nullString(assignedAt)
	o.ActionCompletedAt = nullString(completedAt)
	o.Comments = []domain.Comment{}
	return o, nil
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func actionStatusValue(a *domain.ActionStatus) any {
	if a == nil {
		return nil
	}
	return string(*a)
}
