package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/beaconlabs/deploybeacon/internal/models"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("repository: not found")

type CreateNotificationParams struct {
	RefID     string
	Type      models.NotificationType
	Channel   string
	MessageTS string
	Context   map[string]interface{}
}

// NotificationRepository persists one record per (ref id, type). Create is
// safe under a write-write race: the unique index plus no-op-on-conflict
// semantics guarantee the row is never duplicated, and the surviving row is
// returned either way. UpdateContext merges server-side so writers touching
// disjoint context keys compose.
type NotificationRepository interface {
	Create(ctx context.Context, params CreateNotificationParams) (models.NotificationRecord, error)
	UpdateContext(ctx context.Context, id string, patch map[string]interface{}) (models.NotificationRecord, error)
	FindByRefID(ctx context.Context, refID string, typ models.NotificationType) (models.NotificationRecord, error)
}

type notificationRepository struct {
	db *sql.DB
}

func NewNotificationRepository(db *sql.DB) NotificationRepository {
	return &notificationRepository{db: db}
}

func (r *notificationRepository) Create(ctx context.Context, params CreateNotificationParams) (models.NotificationRecord, error) {
	const query = `
		INSERT INTO notifications (ref_id, notification_type, channel, message_ts, context)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (ref_id, notification_type) DO NOTHING
		RETURNING id, ref_id, notification_type, channel, message_ts, context, created_at, updated_at
	`

	contextJSON, err := marshalContext(params.Context)
	if err != nil {
		return models.NotificationRecord{}, err
	}

	row := r.db.QueryRowContext(ctx, query, params.RefID, params.Type, params.Channel, params.MessageTS, contextJSON)
	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		// Lost the insert race; the surviving row is authoritative.
		return r.FindByRefID(ctx, params.RefID, params.Type)
	}
	return record, err
}

func (r *notificationRepository) UpdateContext(ctx context.Context, id string, patch map[string]interface{}) (models.NotificationRecord, error) {
	const query = `
		UPDATE notifications
		SET context = context || $2::jsonb, updated_at = NOW()
		WHERE id = $1
		RETURNING id, ref_id, notification_type, channel, message_ts, context, created_at, updated_at
	`

	patchJSON, err := marshalContext(patch)
	if err != nil {
		return models.NotificationRecord{}, err
	}

	row := r.db.QueryRowContext(ctx, query, id, patchJSON)
	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.NotificationRecord{}, ErrNotFound
	}
	return record, err
}

func (r *notificationRepository) FindByRefID(ctx context.Context, refID string, typ models.NotificationType) (models.NotificationRecord, error) {
	const query = `
		SELECT id, ref_id, notification_type, channel, message_ts, context, created_at, updated_at
		FROM notifications
		WHERE ref_id = $1 AND notification_type = $2
	`

	row := r.db.QueryRowContext(ctx, query, refID, typ)
	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.NotificationRecord{}, ErrNotFound
	}
	return record, err
}

func marshalContext(context map[string]interface{}) ([]byte, error) {
	if len(context) == 0 {
		return []byte(`{}`), nil
	}
	bytes, err := json.Marshal(context)
	if err != nil {
		return nil, fmt.Errorf("marshal context: %w", err)
	}
	return bytes, nil
}

func scanRecord(scanner interface {
	Scan(dest ...interface{}) error
}) (models.NotificationRecord, error) {
	var (
		record     models.NotificationRecord
		contextRaw []byte
	)

	if err := scanner.Scan(
		&record.ID,
		&record.RefID,
		&record.Type,
		&record.Channel,
		&record.MessageTS,
		&contextRaw,
		&record.CreatedAt,
		&record.UpdatedAt,
	); err != nil {
		return models.NotificationRecord{}, err
	}

	if len(contextRaw) > 0 {
		record.Context = contextRaw
	}
	return record, nil
}
