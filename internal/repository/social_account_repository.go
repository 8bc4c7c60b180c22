package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/cmis-platform/queue-api/internal/models"
)

// SocialAccountRepository provides persistence for connected channels.
type SocialAccountRepository struct {
	db *sqlx.DB
}

// NewSocialAccountRepository creates a new social account repository.
func NewSocialAccountRepository(db *sqlx.DB) *SocialAccountRepository {
	return &SocialAccountRepository{db: db}
}

// List returns accounts for an organization with optional filtering.
func (r *SocialAccountRepository) List(ctx context.Context, orgID string, filter models.SocialAccountFilter) ([]models.SocialAccount, int, error) {
	base := "FROM social_accounts WHERE org_id = $1"
	args := []interface{}{orgID}
	var conditions []string

	if filter.Platform != "" {
		conditions = append(conditions, fmt.Sprintf("platform = $%d", len(args)+1))
		args = append(args, filter.Platform)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]bool{
		"platform":   true,
		"handle":     true,
		"created_at": true,
	}
	if !allowedSorts[sortBy] {
		sortBy = "created_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT id, org_id, platform, handle, display_name, status, created_at, updated_at %s ORDER BY %s %s LIMIT %d OFFSET %d", base, sortBy, order, size, offset)
	var accounts []models.SocialAccount
	if err := r.db.SelectContext(ctx, &accounts, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list social accounts: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count social accounts: %w", err)
	}

	return accounts, total, nil
}

// FindByID loads an account by id scoped to the organization.
func (r *SocialAccountRepository) FindByID(ctx context.Context, orgID, id string) (*models.SocialAccount, error) {
	const query = `SELECT id, org_id, platform, handle, display_name, status, created_at, updated_at FROM social_accounts WHERE org_id = $1 AND id = $2 LIMIT 1`
	var account models.SocialAccount
	if err := r.db.GetContext(ctx, &account, query, orgID, id); err != nil {
		return nil, err
	}
	return &account, nil
}

// Create stores a newly connected account.
func (r *SocialAccountRepository) Create(ctx context.Context, account *models.SocialAccount) error {
	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if account.CreatedAt.IsZero() {
		account.CreatedAt = now
	}
	account.UpdatedAt = now

	const query = `INSERT INTO social_accounts (id, org_id, platform, handle, display_name, status, created_at, updated_at) VALUES (:id, :org_id, :platform, :handle, :display_name, :status, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, account); err != nil {
		return fmt.Errorf("create social account: %w", err)
	}
	return nil
}

// UpdateStatus flips the connection state for an account.
func (r *SocialAccountRepository) UpdateStatus(ctx context.Context, orgID, id string, status models.SocialAccountStatus) error {
	const query = `UPDATE social_accounts SET status = $3, updated_at = $4 WHERE org_id = $1 AND id = $2`
	if _, err := r.db.ExecContext(ctx, query, orgID, id, status, time.Now().UTC()); err != nil {
		return fmt.Errorf("update social account status: %w", err)
	}
	return nil
}
