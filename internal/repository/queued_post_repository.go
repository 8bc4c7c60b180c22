package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/cmis-platform/queue-api/internal/models"
)

// ErrDuplicateSlot is returned when an insert collides with the uniqueness
// constraint on (social_account_id, scheduled_for). The schedule retry loop
// keys on it.
var ErrDuplicateSlot = errors.New("slot already occupied")

const pqUniqueViolation = "23505"

// QueuedPostRepository provides persistence for slot assignments.
type QueuedPostRepository struct {
	db *sqlx.DB
}

// NewQueuedPostRepository creates a new queued post repository.
func NewQueuedPostRepository(db *sqlx.DB) *QueuedPostRepository {
	return &QueuedPostRepository{db: db}
}

// Insert stores a new slot assignment. A collision on the account/timestamp
// uniqueness constraint surfaces as ErrDuplicateSlot.
func (r *QueuedPostRepository) Insert(ctx context.Context, post *models.QueuedPost) error {
	if post.ID == "" {
		post.ID = uuid.NewString()
	}
	if post.CreatedAt.IsZero() {
		post.CreatedAt = time.Now().UTC()
	}
	if post.Status == "" {
		post.Status = models.QueuedPostStatusQueued
	}

	const query = `INSERT INTO queued_posts (id, org_id, post_id, social_account_id, scheduled_for, status, created_at) VALUES (:id, :org_id, :post_id, :social_account_id, :scheduled_for, :status, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, post); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
			return ErrDuplicateSlot
		}
		return fmt.Errorf("insert queued post: %w", err)
	}
	return nil
}

// ExistsAt reports whether a queued post already occupies the exact timestamp
// for the account.
func (r *QueuedPostRepository) ExistsAt(ctx context.Context, accountID string, ts time.Time) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM queued_posts WHERE social_account_id = $1 AND scheduled_for = $2 AND status = $3)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, accountID, ts, models.QueuedPostStatusQueued); err != nil {
		return false, fmt.Errorf("check slot occupancy: %w", err)
	}
	return exists, nil
}

// ListByAccount returns queued posts for an account in chronological order.
func (r *QueuedPostRepository) ListByAccount(ctx context.Context, orgID, accountID string) ([]models.QueuedPost, error) {
	const query = `SELECT id, org_id, post_id, social_account_id, scheduled_for, status, created_at FROM queued_posts WHERE org_id = $1 AND social_account_id = $2 AND status = $3 ORDER BY scheduled_for ASC`
	var posts []models.QueuedPost
	if err := r.db.SelectContext(ctx, &posts, query, orgID, accountID, models.QueuedPostStatusQueued); err != nil {
		return nil, fmt.Errorf("list queued posts: %w", err)
	}
	return posts, nil
}

// DeleteByPostID removes the assignment for a content item. It returns the
// account the row belonged to, so callers can invalidate only that account's
// derived state, and reports whether a row was actually deleted.
func (r *QueuedPostRepository) DeleteByPostID(ctx context.Context, orgID, postID string) (string, bool, error) {
	const query = `DELETE FROM queued_posts WHERE org_id = $1 AND post_id = $2 RETURNING social_account_id`
	var accountID string
	if err := r.db.GetContext(ctx, &accountID, query, orgID, postID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("delete queued post: %w", err)
	}
	return accountID, true, nil
}

// ListDue returns queued posts whose slot has passed, oldest first.
func (r *QueuedPostRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]models.QueuedPost, error) {
	if limit <= 0 {
		limit = 100
	}
	const query = `SELECT id, org_id, post_id, social_account_id, scheduled_for, status, created_at FROM queued_posts WHERE status = $1 AND scheduled_for <= $2 ORDER BY scheduled_for ASC LIMIT $3`
	var posts []models.QueuedPost
	if err := r.db.SelectContext(ctx, &posts, query, models.QueuedPostStatusQueued, now, limit); err != nil {
		return nil, fmt.Errorf("list due posts: %w", err)
	}
	return posts, nil
}

// ClaimForDispatch transitions a post from QUEUED to DISPATCHING. It reports
// false when the post has already been claimed, so overlapping sweep ticks
// cannot enqueue the same post twice.
func (r *QueuedPostRepository) ClaimForDispatch(ctx context.Context, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `UPDATE queued_posts SET status = $2 WHERE id = $1 AND status = $3`,
		id, models.QueuedPostStatusDispatching, models.QueuedPostStatusQueued)
	if err != nil {
		return false, fmt.Errorf("claim queued post: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim queued post rows affected: %w", err)
	}
	return affected > 0, nil
}

// UpdateStatus transitions a queued post's lifecycle state.
func (r *QueuedPostRepository) UpdateStatus(ctx context.Context, id, status string) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE queued_posts SET status = $2 WHERE id = $1`, id, status); err != nil {
		return fmt.Errorf("update queued post status: %w", err)
	}
	return nil
}

// InsertPublishRecord stores the outcome of a publisher dispatch.
func (r *QueuedPostRepository) InsertPublishRecord(ctx context.Context, record *models.PublishRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.PublishedAt.IsZero() {
		record.PublishedAt = time.Now().UTC()
	}
	const query = `INSERT INTO publish_records (id, queued_post_id, social_account_id, status, detail, published_at) VALUES (:id, :queued_post_id, :social_account_id, :status, :detail, :published_at)`
	if _, err := r.db.NamedExecContext(ctx, query, record); err != nil {
		return fmt.Errorf("insert publish record: %w", err)
	}
	return nil
}
