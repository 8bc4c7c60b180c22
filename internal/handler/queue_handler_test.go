package handler

import (
	"bytes"
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cmis-platform/queue-api/internal/middleware"
	"github.com/cmis-platform/queue-api/internal/models"
	"github.com/cmis-platform/queue-api/internal/repository"
	"github.com/cmis-platform/queue-api/internal/service"
)

type stubConfigRepo struct {
	cfg *models.QueueConfig
}

func (s *stubConfigRepo) GetByAccount(context.Context, string, string) (*models.QueueConfig, error) {
	if s.cfg == nil {
		return nil, sql.ErrNoRows
	}
	clone := *s.cfg
	return &clone, nil
}

func (s *stubConfigRepo) Upsert(_ context.Context, cfg *models.QueueConfig) error {
	s.cfg = cfg
	return nil
}

type stubPostRepo struct {
	insertErr error
	posts     []models.QueuedPost
	deleted   bool
}

func (s *stubPostRepo) Insert(_ context.Context, post *models.QueuedPost) error {
	return s.insertErr
}

func (s *stubPostRepo) ExistsAt(context.Context, string, time.Time) (bool, error) {
	return false, nil
}

func (s *stubPostRepo) ListByAccount(context.Context, string, string) ([]models.QueuedPost, error) {
	return s.posts, nil
}

func (s *stubPostRepo) DeleteByPostID(context.Context, string, string) (string, bool, error) {
	if !s.deleted {
		return "", false, nil
	}
	return "acc-1", true, nil
}

func activeConfig() *models.QueueConfig {
	return &models.QueueConfig{
		ID:              "cfg-1",
		OrgID:           "org-1",
		SocialAccountID: "acc-1",
		WeekdaysEnabled: "1111100",
		TimeSlots:       pq.StringArray{"09:00", "17:00"},
		Timezone:        "UTC",
		IsActive:        true,
	}
}

func newQueueTestContext(t *testing.T, method, path string, body string) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	var reader *bytes.Buffer
	if body != "" {
		reader = bytes.NewBufferString(body)
	} else {
		reader = &bytes.Buffer{}
	}
	req, err := http.NewRequest(method, path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "user-1", OrgID: "org-1", Role: models.RoleAdmin})
	return c, w
}

func newHandler(cfgRepo *stubConfigRepo, postRepo *stubPostRepo) *QueueHandler {
	svc := service.NewQueueService(cfgRepo, postRepo, nil, nil, nil, nil, 30, 3)
	return NewQueueHandler(svc)
}

func TestQueueHandlerGetConfig(t *testing.T) {
	h := newHandler(&stubConfigRepo{cfg: activeConfig()}, &stubPostRepo{})

	c, w := newQueueTestContext(t, http.MethodGet, "/queues/acc-1", "")
	c.Params = gin.Params{{Key: "accountId", Value: "acc-1"}}

	h.GetConfig(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "1111100")
}

func TestQueueHandlerGetConfigNotFound(t *testing.T) {
	h := newHandler(&stubConfigRepo{}, &stubPostRepo{})

	c, w := newQueueTestContext(t, http.MethodGet, "/queues/acc-404", "")
	c.Params = gin.Params{{Key: "accountId", Value: "acc-404"}}

	h.GetConfig(c)

	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "NOT_CONFIGURED")
}

func TestQueueHandlerCreateConfig(t *testing.T) {
	h := newHandler(&stubConfigRepo{}, &stubPostRepo{})

	c, w := newQueueTestContext(t, http.MethodPost, "/queues", `{"social_account_id":"acc-1","time_slots":["09:00"]}`)

	h.CreateConfig(c)

	require.Equal(t, http.StatusCreated, w.Code)
}

func TestQueueHandlerCreateConfigInvalidPayload(t *testing.T) {
	h := newHandler(&stubConfigRepo{}, &stubPostRepo{})

	c, w := newQueueTestContext(t, http.MethodPost, "/queues", `{"social_account_id":`)

	h.CreateConfig(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestQueueHandlerCreateConfigValidationError(t *testing.T) {
	h := newHandler(&stubConfigRepo{}, &stubPostRepo{})

	c, w := newQueueTestContext(t, http.MethodPost, "/queues", `{"social_account_id":"acc-1","weekdays_enabled":"2222222"}`)

	h.CreateConfig(c)

	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "VALIDATION_ERROR")
}

func TestQueueHandlerNextSlot(t *testing.T) {
	h := newHandler(&stubConfigRepo{cfg: activeConfig()}, &stubPostRepo{})

	c, w := newQueueTestContext(t, http.MethodGet, "/queues/acc-1/next-slot?after=2025-06-02T08:00:00Z", "")
	c.Params = gin.Params{{Key: "accountId", Value: "acc-1"}}

	h.NextSlot(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "2025-06-02T09:00:00Z")
}

func TestQueueHandlerNextSlotBadAfter(t *testing.T) {
	h := newHandler(&stubConfigRepo{cfg: activeConfig()}, &stubPostRepo{})

	c, w := newQueueTestContext(t, http.MethodGet, "/queues/acc-1/next-slot?after=yesterday", "")
	c.Params = gin.Params{{Key: "accountId", Value: "acc-1"}}

	h.NextSlot(c)

	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestQueueHandlerScheduleConflict(t *testing.T) {
	h := newHandler(&stubConfigRepo{cfg: activeConfig()}, &stubPostRepo{insertErr: repository.ErrDuplicateSlot})

	c, w := newQueueTestContext(t, http.MethodPost, "/queues/acc-1/schedule", `{"post_id":"post-1","scheduled_for":"2025-06-02T09:00:00Z"}`)
	c.Params = gin.Params{{Key: "accountId", Value: "acc-1"}}

	h.Schedule(c)

	require.Equal(t, http.StatusConflict, w.Code)
}

func TestQueueHandlerRemovePostNotFound(t *testing.T) {
	h := newHandler(&stubConfigRepo{}, &stubPostRepo{deleted: false})

	c, w := newQueueTestContext(t, http.MethodDelete, "/queues/posts/post-404", "")
	c.Params = gin.Params{{Key: "postId", Value: "post-404"}}

	h.RemovePost(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "POST_NOT_FOUND")
}

func TestQueueHandlerExportPosts(t *testing.T) {
	posts := []models.QueuedPost{
		{PostID: "post-1", SocialAccountID: "acc-1", ScheduledFor: time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC), Status: models.QueuedPostStatusQueued},
	}
	h := newHandler(&stubConfigRepo{cfg: activeConfig()}, &stubPostRepo{posts: posts})

	c, w := newQueueTestContext(t, http.MethodGet, "/queues/acc-1/posts/export", "")
	c.Params = gin.Params{{Key: "accountId", Value: "acc-1"}}

	h.ExportPosts(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), "post_id,social_account_id,scheduled_for,status")
	assert.Contains(t, w.Body.String(), "post-1")
}

func TestQueueHandlerStatistics(t *testing.T) {
	h := newHandler(&stubConfigRepo{cfg: activeConfig()}, &stubPostRepo{})

	c, w := newQueueTestContext(t, http.MethodGet, "/queues/acc-1/statistics", "")
	c.Params = gin.Params{{Key: "accountId", Value: "acc-1"}}

	h.Statistics(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "total_queued")
}
