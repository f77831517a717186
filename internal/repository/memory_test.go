package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/beaconlabs/deploybeacon/internal/models"
)

func TestMemoryCreateIsNoOpOnConflict(t *testing.T) {
	repo := NewMemoryNotificationRepository()
	ctx := context.Background()

	first, err := repo.Create(ctx, CreateNotificationParams{
		RefID:     "sha1",
		Type:      models.NotificationTypeDeploy,
		Channel:   "D123",
		MessageTS: "100.1",
		Context:   map[string]interface{}{"status": "ready_to_deploy"},
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	second, err := repo.Create(ctx, CreateNotificationParams{
		RefID:     "sha1",
		Type:      models.NotificationTypeDeploy,
		Channel:   "D999",
		MessageTS: "200.2",
	})
	if err != nil {
		t.Fatalf("conflicting create failed: %v", err)
	}
	if second.ID != first.ID || second.Channel != "D123" {
		t.Errorf("expected conflicting create to return the existing record, got %+v", second)
	}
}

func TestMemoryUpdateContextMergesNotReplaces(t *testing.T) {
	repo := NewMemoryNotificationRepository()
	ctx := context.Background()

	record, err := repo.Create(ctx, CreateNotificationParams{
		RefID: "sha1",
		Type:  models.NotificationTypeDeploy,
		Context: map[string]interface{}{
			"status":      "ready_to_deploy",
			"target_user": "U123",
		},
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	updated, err := repo.UpdateContext(ctx, record.ID, map[string]interface{}{"status": "in_progress"})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	rc := updated.DecodeContext()
	if rc.Status != models.StatusInProgress {
		t.Errorf("expected patched status, got %s", rc.Status)
	}
	if rc.TargetUser != "U123" {
		t.Errorf("expected untouched key to survive, got %q", rc.TargetUser)
	}
}

func TestMemoryUpdateContextUnknownID(t *testing.T) {
	repo := NewMemoryNotificationRepository()
	if _, err := repo.UpdateContext(context.Background(), "nope", map[string]interface{}{}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryFindByRefIDPartitionsByType(t *testing.T) {
	repo := NewMemoryNotificationRepository()
	ctx := context.Background()

	if _, err := repo.Create(ctx, CreateNotificationParams{RefID: "sha1", Type: models.NotificationTypeDeploy}); err != nil {
		t.Fatal(err)
	}
	if _, err := repo.FindByRefID(ctx, "sha1", models.NotificationTypeDeploy); err != nil {
		t.Errorf("expected hit, got %v", err)
	}
	if _, err := repo.FindByRefID(ctx, "sha1", models.NotificationType("other")); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected miss for other type, got %v", err)
	}
}

func TestMemoryQueuedCommitExpiry(t *testing.T) {
	repo := NewMemoryQueuedCommitRepository()
	ctx := context.Background()

	if err := repo.Put(ctx, "sha1"); err != nil {
		t.Fatal(err)
	}

	fresh, err := repo.Exists(ctx, "sha1", time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if !fresh {
		t.Error("expected fresh marker to exist")
	}

	expired, err := repo.Exists(ctx, "sha1", -time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if expired {
		t.Error("expected marker older than max age to read as absent")
	}

	if err := repo.Delete(ctx, "sha1"); err != nil {
		t.Fatal(err)
	}
	gone, err := repo.Exists(ctx, "sha1", time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if gone {
		t.Error("expected deleted marker to be absent")
	}
}
