package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/cmis-platform/queue-api/internal/models"
	appErrors "github.com/cmis-platform/queue-api/pkg/errors"
)

type socialAccountRepository interface {
	List(ctx context.Context, orgID string, filter models.SocialAccountFilter) ([]models.SocialAccount, int, error)
	FindByID(ctx context.Context, orgID, id string) (*models.SocialAccount, error)
	Create(ctx context.Context, account *models.SocialAccount) error
	UpdateStatus(ctx context.Context, orgID, id string, status models.SocialAccountStatus) error
}

// ConnectAccountRequest registers a publishing channel for an organization.
type ConnectAccountRequest struct {
	Platform    string `json:"platform" validate:"required"`
	Handle      string `json:"handle" validate:"required"`
	DisplayName string `json:"display_name"`
}

// SocialAccountService manages the channel registry queues point at.
type SocialAccountService struct {
	repo      socialAccountRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewSocialAccountService instantiates SocialAccountService.
func NewSocialAccountService(repo socialAccountRepository, validate *validator.Validate, logger *zap.Logger) *SocialAccountService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SocialAccountService{repo: repo, validator: validate, logger: logger}
}

// List returns the organization's accounts with pagination metadata.
func (s *SocialAccountService) List(ctx context.Context, tenant models.TenantContext, filter models.SocialAccountFilter) ([]models.SocialAccount, *models.Pagination, error) {
	accounts, total, err := s.repo.List(ctx, tenant.OrgID, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list social accounts")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return accounts, pagination, nil
}

// Get loads a single account.
func (s *SocialAccountService) Get(ctx context.Context, tenant models.TenantContext, id string) (*models.SocialAccount, error) {
	account, err := s.repo.FindByID(ctx, tenant.OrgID, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "social account not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load social account")
	}
	return account, nil
}

// Connect registers a new channel.
func (s *SocialAccountService) Connect(ctx context.Context, tenant models.TenantContext, req ConnectAccountRequest) (*models.SocialAccount, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid account payload")
	}

	account := &models.SocialAccount{
		OrgID:       tenant.OrgID,
		Platform:    req.Platform,
		Handle:      req.Handle,
		DisplayName: req.DisplayName,
		Status:      models.SocialAccountConnected,
	}
	if err := s.repo.Create(ctx, account); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to connect social account")
	}
	return account, nil
}

// Disconnect flips the channel to disconnected. Queued posts stay in place;
// the publisher skips disconnected channels at dispatch time.
func (s *SocialAccountService) Disconnect(ctx context.Context, tenant models.TenantContext, id string) error {
	if _, err := s.Get(ctx, tenant, id); err != nil {
		return err
	}
	if err := s.repo.UpdateStatus(ctx, tenant.OrgID, id, models.SocialAccountDisconnected); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to disconnect social account")
	}
	return nil
}
