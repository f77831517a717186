package repository

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/beaconlabs/deploybeacon/internal/models"
)

// In-memory implementations mirroring the Postgres semantics, including the
// context merge and the no-op-on-conflict create. Used by tests and by local
// runs without a database.

type memoryNotificationRepository struct {
	mu      sync.Mutex
	records map[string]models.NotificationRecord // keyed by refID|type
	nextID  int
}

func NewMemoryNotificationRepository() NotificationRepository {
	return &memoryNotificationRepository{records: make(map[string]models.NotificationRecord)}
}

func recordKey(refID string, typ models.NotificationType) string {
	return refID + "|" + string(typ)
}

func (r *memoryNotificationRepository) Create(_ context.Context, params CreateNotificationParams) (models.NotificationRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := recordKey(params.RefID, params.Type)
	if existing, ok := r.records[key]; ok {
		return existing, nil
	}

	contextJSON, err := marshalContext(params.Context)
	if err != nil {
		return models.NotificationRecord{}, err
	}

	r.nextID++
	now := time.Now().UTC()
	record := models.NotificationRecord{
		ID:        strconv.Itoa(r.nextID),
		RefID:     params.RefID,
		Type:      params.Type,
		Channel:   params.Channel,
		MessageTS: params.MessageTS,
		Context:   json.RawMessage(contextJSON),
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.records[key] = record
	return record, nil
}

func (r *memoryNotificationRepository) UpdateContext(_ context.Context, id string, patch map[string]interface{}) (models.NotificationRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for key, record := range r.records {
		if record.ID != id {
			continue
		}
		merged, err := models.MergeContext(record.Context, patch)
		if err != nil {
			return models.NotificationRecord{}, err
		}
		record.Context = merged
		record.UpdatedAt = time.Now().UTC()
		r.records[key] = record
		return record, nil
	}
	return models.NotificationRecord{}, ErrNotFound
}

func (r *memoryNotificationRepository) FindByRefID(_ context.Context, refID string, typ models.NotificationType) (models.NotificationRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.records[recordKey(refID, typ)]
	if !ok {
		return models.NotificationRecord{}, ErrNotFound
	}
	return record, nil
}

type memoryQueuedCommitRepository struct {
	mu     sync.Mutex
	queued map[string]time.Time
}

func NewMemoryQueuedCommitRepository() QueuedCommitRepository {
	return &memoryQueuedCommitRepository{queued: make(map[string]time.Time)}
}

func (r *memoryQueuedCommitRepository) Put(_ context.Context, sha string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queued[sha] = time.Now().UTC()
	return nil
}

func (r *memoryQueuedCommitRepository) Exists(_ context.Context, sha string, maxAge time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	queuedAt, ok := r.queued[sha]
	if !ok {
		return false, nil
	}
	return time.Since(queuedAt) <= maxAge, nil
}

func (r *memoryQueuedCommitRepository) Delete(_ context.Context, sha string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.queued, sha)
	return nil
}
