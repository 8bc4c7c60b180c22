package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/cmis-platform/queue-api/internal/models"
)

// QueueConfigRepository provides persistence for posting-schedule configs.
type QueueConfigRepository struct {
	db *sqlx.DB
}

// NewQueueConfigRepository creates a new queue config repository.
func NewQueueConfigRepository(db *sqlx.DB) *QueueConfigRepository {
	return &QueueConfigRepository{db: db}
}

// GetByAccount loads the config for an account within an organization.
// Returns sql.ErrNoRows untouched when no config exists.
func (r *QueueConfigRepository) GetByAccount(ctx context.Context, orgID, accountID string) (*models.QueueConfig, error) {
	const query = `SELECT id, org_id, social_account_id, weekdays_enabled, time_slots, timezone, is_active, created_at, updated_at FROM queue_configs WHERE org_id = $1 AND social_account_id = $2 LIMIT 1`
	var cfg models.QueueConfig
	if err := r.db.GetContext(ctx, &cfg, query, orgID, accountID); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Upsert creates the config row or replaces its schedule fields, keyed on
// (org_id, social_account_id). Queued posts are never touched here.
func (r *QueueConfigRepository) Upsert(ctx context.Context, cfg *models.QueueConfig) error {
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if cfg.CreatedAt.IsZero() {
		cfg.CreatedAt = now
	}
	cfg.UpdatedAt = now

	const query = `
INSERT INTO queue_configs (id, org_id, social_account_id, weekdays_enabled, time_slots, timezone, is_active, created_at, updated_at)
VALUES (:id, :org_id, :social_account_id, :weekdays_enabled, :time_slots, :timezone, :is_active, :created_at, :updated_at)
ON CONFLICT (org_id, social_account_id) DO UPDATE
SET weekdays_enabled = EXCLUDED.weekdays_enabled,
    time_slots = EXCLUDED.time_slots,
    timezone = EXCLUDED.timezone,
    is_active = EXCLUDED.is_active,
    updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, cfg); err != nil {
		return fmt.Errorf("upsert queue config: %w", err)
	}
	return nil
}
