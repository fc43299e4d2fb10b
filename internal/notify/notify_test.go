package notify_test

import (
	"context"
	"testing"
	"time"

	"safetrack/internal/db"
	"safetrack/internal/domain"
	"safetrack/internal/notify"
)

func TestStoreNotifierRoundTrip(t *testing.T) {
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer conn.Close()
	if err := db.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	clock := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	n := notify.StoreNotifier{DB: conn, Now: func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}}
	ctx := context.Background()

	if err := n.Notify(ctx, domain.Notification{RecipientID: "u-001", Message: "older", Kind: domain.NotifyAlert, ObservationID: "o-1"}); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if err := n.Notify(ctx, domain.Notification{RecipientID: "u-001", Message: "newer", Kind: domain.NotifySuccess}); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if err := n.Notify(ctx, domain.Notification{RecipientID: "u-002", Message: "other recipient", Kind: domain.NotifyInfo}); err != nil {
		t.Fatalf("notify: %v", err)
	}

	items, err := n.ListForRecipient(ctx, "u-001")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(items))
	}
	if items[0].Message != "newer" || items[1].Message != "older" {
		t.Fatalf("expected newest first, got %+v", items)
	}
	if items[0].Read {
		t.Fatal("new notification should be unread")
	}

	if err := n.MarkRead(ctx, items[0].ID); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	items, _ = n.ListForRecipient(ctx, "u-001")
	if !items[0].Read {
		t.Fatal("notification should be read after MarkRead")
	}
}
