package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/cmis-platform/queue-api/internal/models"
	appErrors "github.com/cmis-platform/queue-api/pkg/errors"
)

type fakeUserRepo struct {
	user          *models.User
	refreshToken  *models.RefreshToken
	createdTokens []*models.RefreshToken
	revokedAll    bool
	revokedIDs    []string
}

func (f *fakeUserRepo) FindByEmail(context.Context, string) (*models.User, error) {
	if f.user == nil {
		return nil, sql.ErrNoRows
	}
	return f.user, nil
}

func (f *fakeUserRepo) FindByID(context.Context, string) (*models.User, error) {
	if f.user == nil {
		return nil, sql.ErrNoRows
	}
	return f.user, nil
}

func (f *fakeUserRepo) UpdateLastLogin(context.Context, string, time.Time) error {
	return nil
}

func (f *fakeUserRepo) CreateRefreshToken(_ context.Context, token *models.RefreshToken) error {
	f.createdTokens = append(f.createdTokens, token)
	return nil
}

func (f *fakeUserRepo) FindRefreshToken(context.Context, string) (*models.RefreshToken, error) {
	if f.refreshToken == nil {
		return nil, sql.ErrNoRows
	}
	return f.refreshToken, nil
}

func (f *fakeUserRepo) RevokeRefreshToken(_ context.Context, id string, _ time.Time) error {
	f.revokedIDs = append(f.revokedIDs, id)
	return nil
}

func (f *fakeUserRepo) RevokeUserRefreshTokens(context.Context, string) error {
	f.revokedAll = true
	return nil
}

func testAuthConfig() AuthConfig {
	return AuthConfig{
		AccessTokenSecret:  "test-secret",
		AccessTokenExpiry:  time.Hour,
		RefreshTokenExpiry: 24 * time.Hour,
		Issuer:             "cmis-queue-api",
	}
}

func activeUser(t *testing.T) *models.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("secret123"), bcrypt.MinCost)
	require.NoError(t, err)
	return &models.User{
		ID:           "user-1",
		OrgID:        "org-1",
		Email:        "editor@example.com",
		PasswordHash: string(hash),
		FullName:     "Editor",
		Role:         models.RoleEditor,
		Active:       true,
	}
}

func TestAuthServiceLogin(t *testing.T) {
	repo := &fakeUserRepo{user: activeUser(t)}
	svc := NewAuthService(repo, nil, nil, testAuthConfig())

	res, err := svc.Login(context.Background(), models.LoginRequest{Email: "editor@example.com", Password: "secret123"})

	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)
	assert.NotEmpty(t, res.RefreshToken)
	assert.Equal(t, "org-1", res.User.OrgID)
	require.Len(t, repo.createdTokens, 1)
}

func TestAuthServiceLoginWrongPassword(t *testing.T) {
	repo := &fakeUserRepo{user: activeUser(t)}
	svc := NewAuthService(repo, nil, nil, testAuthConfig())

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "editor@example.com", Password: "wrong"})

	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceLoginUnknownEmail(t *testing.T) {
	svc := NewAuthService(&fakeUserRepo{}, nil, nil, testAuthConfig())

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "nobody@example.com", Password: "secret123"})

	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceLoginInactiveUser(t *testing.T) {
	user := activeUser(t)
	user.Active = false
	svc := NewAuthService(&fakeUserRepo{user: user}, nil, nil, testAuthConfig())

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "editor@example.com", Password: "secret123"})

	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInactiveAccount.Code, appErrors.FromError(err).Code)
}

// Access tokens round-trip through validation and carry the org claim.
func TestAuthServiceValidateToken(t *testing.T) {
	repo := &fakeUserRepo{user: activeUser(t)}
	svc := NewAuthService(repo, nil, nil, testAuthConfig())

	res, err := svc.Login(context.Background(), models.LoginRequest{Email: "editor@example.com", Password: "secret123"})
	require.NoError(t, err)

	claims, err := svc.ValidateToken(res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "org-1", claims.OrgID)
	assert.Equal(t, models.RoleEditor, claims.Role)
}

func TestAuthServiceValidateTokenGarbage(t *testing.T) {
	svc := NewAuthService(&fakeUserRepo{}, nil, nil, testAuthConfig())

	_, err := svc.ValidateToken("not-a-token")

	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

// A used refresh token is revoked and replaced.
func TestAuthServiceRefreshRotation(t *testing.T) {
	repo := &fakeUserRepo{
		user: activeUser(t),
		refreshToken: &models.RefreshToken{
			ID:        "rt-1",
			UserID:    "user-1",
			Token:     "old-token",
			ExpiresAt: time.Now().UTC().Add(time.Hour),
		},
	}
	svc := NewAuthService(repo, nil, nil, testAuthConfig())

	res, err := svc.Refresh(context.Background(), models.RefreshTokenRequest{RefreshToken: "old-token"})

	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)
	assert.NotEqual(t, "old-token", res.RefreshToken)
	assert.Contains(t, repo.revokedIDs, "rt-1")
	require.Len(t, repo.createdTokens, 1)
}

func TestAuthServiceRefreshExpiredToken(t *testing.T) {
	repo := &fakeUserRepo{
		user: activeUser(t),
		refreshToken: &models.RefreshToken{
			ID:        "rt-1",
			UserID:    "user-1",
			Token:     "old-token",
			ExpiresAt: time.Now().UTC().Add(-time.Hour),
		},
	}
	svc := NewAuthService(repo, nil, nil, testAuthConfig())

	_, err := svc.Refresh(context.Background(), models.RefreshTokenRequest{RefreshToken: "old-token"})

	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceLogout(t *testing.T) {
	repo := &fakeUserRepo{}
	svc := NewAuthService(repo, nil, nil, testAuthConfig())

	require.NoError(t, svc.Logout(context.Background(), "user-1"))
	assert.True(t, repo.revokedAll)
}
