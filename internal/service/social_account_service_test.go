package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cmis-platform/queue-api/internal/models"
	appErrors "github.com/cmis-platform/queue-api/pkg/errors"
)

type fakeAccountRepo struct {
	accounts   []models.SocialAccount
	total      int
	account    *models.SocialAccount
	created    *models.SocialAccount
	lastStatus models.SocialAccountStatus
}

func (f *fakeAccountRepo) List(context.Context, string, models.SocialAccountFilter) ([]models.SocialAccount, int, error) {
	return f.accounts, f.total, nil
}

func (f *fakeAccountRepo) FindByID(context.Context, string, string) (*models.SocialAccount, error) {
	if f.account == nil {
		return nil, sql.ErrNoRows
	}
	return f.account, nil
}

func (f *fakeAccountRepo) Create(_ context.Context, account *models.SocialAccount) error {
	f.created = account
	return nil
}

func (f *fakeAccountRepo) UpdateStatus(_ context.Context, _, _ string, status models.SocialAccountStatus) error {
	f.lastStatus = status
	return nil
}

func TestSocialAccountServiceList(t *testing.T) {
	repo := &fakeAccountRepo{
		accounts: []models.SocialAccount{{ID: "acc-1", Platform: "instagram"}},
		total:    7,
	}
	svc := NewSocialAccountService(repo, nil, nil)

	accounts, pagination, err := svc.List(context.Background(), testTenant, models.SocialAccountFilter{})

	require.NoError(t, err)
	assert.Len(t, accounts, 1)
	assert.Equal(t, 7, pagination.TotalCount)
	assert.Equal(t, 1, pagination.Page)
	assert.Equal(t, 20, pagination.PageSize)
}

func TestSocialAccountServiceGetNotFound(t *testing.T) {
	svc := NewSocialAccountService(&fakeAccountRepo{}, nil, nil)

	_, err := svc.Get(context.Background(), testTenant, "acc-404")

	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestSocialAccountServiceConnect(t *testing.T) {
	repo := &fakeAccountRepo{}
	svc := NewSocialAccountService(repo, nil, nil)

	account, err := svc.Connect(context.Background(), testTenant, ConnectAccountRequest{
		Platform: "instagram",
		Handle:   "@acme",
	})

	require.NoError(t, err)
	assert.Equal(t, models.SocialAccountConnected, account.Status)
	assert.Equal(t, "org-1", account.OrgID)
	require.NotNil(t, repo.created)
}

func TestSocialAccountServiceConnectValidation(t *testing.T) {
	svc := NewSocialAccountService(&fakeAccountRepo{}, nil, nil)

	_, err := svc.Connect(context.Background(), testTenant, ConnectAccountRequest{Platform: "instagram"})

	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestSocialAccountServiceDisconnect(t *testing.T) {
	repo := &fakeAccountRepo{account: &models.SocialAccount{ID: "acc-1", Status: models.SocialAccountConnected}}
	svc := NewSocialAccountService(repo, nil, nil)

	require.NoError(t, svc.Disconnect(context.Background(), testTenant, "acc-1"))
	assert.Equal(t, models.SocialAccountDisconnected, repo.lastStatus)
}
