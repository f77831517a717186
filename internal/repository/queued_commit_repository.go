package repository

import (
	"context"
	"database/sql"
	"time"
)

// QueuedCommitRepository tracks commits that entered a pipeline queue before
// any stage event named them. Markers answer "is this commit already being
// handled" without a full pipeline lookup.
type QueuedCommitRepository interface {
	Put(ctx context.Context, sha string) error
	Exists(ctx context.Context, sha string, maxAge time.Duration) (bool, error)
	Delete(ctx context.Context, sha string) error
}

type queuedCommitRepository struct {
	db *sql.DB
}

func NewQueuedCommitRepository(db *sql.DB) QueuedCommitRepository {
	return &queuedCommitRepository{db: db}
}

func (r *queuedCommitRepository) Put(ctx context.Context, sha string) error {
	const query = `
		INSERT INTO queued_commits (sha, queued_at)
		VALUES ($1, NOW())
		ON CONFLICT (sha) DO UPDATE SET queued_at = NOW()
	`
	_, err := r.db.ExecContext(ctx, query, sha)
	return err
}

func (r *queuedCommitRepository) Exists(ctx context.Context, sha string, maxAge time.Duration) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM queued_commits WHERE sha = $1 AND queued_at > $2)`

	var exists bool
	err := r.db.QueryRowContext(ctx, query, sha, time.Now().Add(-maxAge)).Scan(&exists)
	return exists, err
}

func (r *queuedCommitRepository) Delete(ctx context.Context, sha string) error {
	const query = `DELETE FROM queued_commits WHERE sha = $1`
	_, err := r.db.ExecContext(ctx, query, sha)
	return err
}
