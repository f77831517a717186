package models

import (
	"encoding/json"
	"time"
)

// NotificationType partitions records per logical notification kind; the
// store enforces at most one live record per (ref id, type).
type NotificationType string

const (
	NotificationTypeDeploy NotificationType = "deploy"
)

// Status is the lifecycle state persisted in a record's context.
// ready_to_deploy -> queued -> in_progress -> deployed | failed.
// failed accepts further updates on retry; deployed is absorbing.
type Status string

const (
	StatusReadyToDeploy Status = "ready_to_deploy"
	StatusQueued        Status = "queued"
	StatusInProgress    Status = "in_progress"
	StatusDeployed      Status = "deployed"
	StatusFailed        Status = "failed"
)

// NotificationRecord is the one persistent artifact of the correlation
// engine: a single chat message tracked by (ref id, type).
type NotificationRecord struct {
	ID        string           `json:"id" db:"id"`
	RefID     string           `json:"ref_id" db:"ref_id"`
	Type      NotificationType `json:"notification_type" db:"notification_type"`
	Channel   string           `json:"channel" db:"channel"`
	MessageTS string           `json:"message_ts" db:"message_ts"`
	Context   json.RawMessage  `json:"context" db:"context"`
	CreatedAt time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt time.Time        `json:"updated_at" db:"updated_at"`
}

// RecordContext is the typed view of the JSON context blob. Independent
// update paths write disjoint keys, so the blob is always merged, never
// replaced wholesale.
type RecordContext struct {
	Status       Status  `json:"status,omitempty"`
	TargetUser   string  `json:"target_user,omitempty"`
	WrapperSHA   string  `json:"wrapper_sha,omitempty"`
	Text         string  `json:"text,omitempty"`
	StageName    string  `json:"stage_name,omitempty"`
	StageCounter int     `json:"stage_counter"`
	Phase        Phase   `json:"phase,omitempty"`
	Muted        bool    `json:"muted,omitempty"`
	Commit       *Commit `json:"commit,omitempty"`
}

// DecodeContext parses the stored blob. An empty or malformed blob decodes
// to the zero context so stale rows never make a handler error out.
func (r NotificationRecord) DecodeContext() RecordContext {
	var rc RecordContext
	if len(r.Context) == 0 {
		return rc
	}
	_ = json.Unmarshal(r.Context, &rc)
	return rc
}

// MergeContext applies patch onto base key by key, mirroring the store's
// server-side jsonb concatenation: keys present in patch win, all other keys
// in base survive untouched.
func MergeContext(base json.RawMessage, patch map[string]interface{}) (json.RawMessage, error) {
	merged := map[string]interface{}{}
	if len(base) > 0 {
		if err := json.Unmarshal(base, &merged); err != nil {
			return nil, err
		}
	}
	for k, v := range patch {
		merged[k] = v
	}
	return json.Marshal(merged)
}

// QueuedCommit marks a commit that entered a pipeline queue before any stage
// event named it explicitly.
type QueuedCommit struct {
	SHA      string    `json:"sha" db:"sha"`
	QueuedAt time.Time `json:"queued_at" db:"queued_at"`
}
