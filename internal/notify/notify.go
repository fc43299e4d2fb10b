// Package notify delivers best-effort side-channel messages. Delivery
// failure never fails the workflow operation that triggered it.
package notify

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"safetrack/internal/domain"
)

// Notifier is the outbound notification port.
type Notifier interface {
	Notify(ctx context.Context, n domain.Notification) error
}

// StoreNotifier persists notifications to the workspace database so
// recipients can poll them later.
type StoreNotifier struct {
	DB  *sql.DB
	Now func() time.Time
}

func (s StoreNotifier) Notify(ctx context.Context, n domain.Notification) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.CreatedAt == "" {
		now := time.Now
		if s.Now != nil {
			now = s.Now
		}
		n.CreatedAt = now().UTC().Format(time.RFC3339)
	}
	_, err := s.DB.ExecContext(ctx, `INSERT INTO notifications(id,recipient_id,message,kind,observation_id,created_at,read)
VALUES (?,?,?,?,?,?,0)`, n.ID, n.RecipientID, n.Message, string(n.Kind), nullable(n.ObservationID), n.CreatedAt)
	return err
}

// ListForRecipient returns a recipient's notifications, newest first.
func (s StoreNotifier) ListForRecipient(ctx context.Context, recipientID string) ([]domain.Notification, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT id,recipient_id,message,kind,COALESCE(observation_id,''),created_at,read
FROM notifications WHERE recipient_id=? ORDER BY created_at DESC, id DESC`, recipientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Notification{}
	for rows.Next() {
		var (
			n    domain.Notification
			kind string
			read int
		)
		if err := rows.Scan(&n.ID, &n.RecipientID, &n.Message, &kind, &n.ObservationID, &n.CreatedAt, &read); err != nil {
			return nil, err
		}
		n.Kind = domain.NotificationKind(kind)
		n.Read = read != 0
		res = append(res, n)
	}
	return res, rows.Err()
}

// MarkRead flags a notification as seen.
func (s StoreNotifier) MarkRead(ctx context.Context, id string) error {
	_, err := s.DB.ExecContext(ctx, `UPDATE notifications SET read=1 WHERE id=?`, id)
	return err
}

// Recorder collects notifications in memory. Test double.
type Recorder struct {
	Sent    []domain.Notification
	FailErr error
}

func (r *Recorder) Notify(ctx context.Context, n domain.Notification) error {
	if r.FailErr != nil {
		return r.FailErr
	}
	r.Sent = append(r.Sent, n)
	return nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
