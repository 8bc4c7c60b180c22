package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cmis-platform/queue-api/internal/service"
	appErrors "github.com/cmis-platform/queue-api/pkg/errors"
	"github.com/cmis-platform/queue-api/pkg/export"
	"github.com/cmis-platform/queue-api/pkg/response"
)

// QueueHandler exposes posting-queue endpoints.
type QueueHandler struct {
	queues   *service.QueueService
	exporter *export.CSVExporter
}

// NewQueueHandler constructs QueueHandler.
func NewQueueHandler(queues *service.QueueService) *QueueHandler {
	return &QueueHandler{queues: queues, exporter: export.NewCSVExporter()}
}

// GetConfig godoc
// @Summary Get queue configuration
// @Tags Queues
// @Produce json
// @Param accountId path string true "Social account ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /queues/{accountId} [get]
func (h *QueueHandler) GetConfig(c *gin.Context) {
	cfg, err := h.queues.GetConfig(c.Request.Context(), tenantFromContext(c), c.Param("accountId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, cfg, nil)
}

// CreateConfig godoc
// @Summary Create queue configuration
// @Tags Queues
// @Accept json
// @Produce json
// @Param payload body service.UpsertQueueConfigRequest true "Queue configuration"
// @Success 201 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /queues [post]
func (h *QueueHandler) CreateConfig(c *gin.Context) {
	var req service.UpsertQueueConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid queue payload"))
		return
	}
	cfg, err := h.queues.UpsertConfig(c.Request.Context(), tenantFromContext(c), req.SocialAccountID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, cfg)
}

// UpdateConfig godoc
// @Summary Update queue configuration
// @Tags Queues
// @Accept json
// @Produce json
// @Param accountId path string true "Social account ID"
// @Param payload body service.UpsertQueueConfigRequest true "Fields to change"
// @Success 200 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /queues/{accountId} [put]
func (h *QueueHandler) UpdateConfig(c *gin.Context) {
	var req service.UpsertQueueConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid queue payload"))
		return
	}
	cfg, err := h.queues.UpsertConfig(c.Request.Context(), tenantFromContext(c), c.Param("accountId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, cfg, nil)
}

// NextSlot godoc
// @Summary Compute the next available slot
// @Tags Queues
// @Produce json
// @Param accountId path string true "Social account ID"
// @Param after query string false "RFC3339 lower bound, defaults to now"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /queues/{accountId}/next-slot [get]
func (h *QueueHandler) NextSlot(c *gin.Context) {
	var after *time.Time
	if raw := c.Query("after"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "after must be an RFC3339 timestamp"))
			return
		}
		after = &parsed
	}
	result, err := h.queues.NextAvailableSlot(c.Request.Context(), tenantFromContext(c), c.Param("accountId"), after)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// ListPosts godoc
// @Summary List queued posts in chronological order
// @Tags Queues
// @Produce json
// @Param accountId path string true "Social account ID"
// @Success 200 {object} response.Envelope
// @Router /queues/{accountId}/posts [get]
func (h *QueueHandler) ListPosts(c *gin.Context) {
	posts, err := h.queues.ListQueuedPosts(c.Request.Context(), tenantFromContext(c), c.Param("accountId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, posts, nil)
}

// ExportPosts godoc
// @Summary Export queued posts as CSV
// @Tags Queues
// @Produce text/csv
// @Param accountId path string true "Social account ID"
// @Success 200 {string} string "CSV payload"
// @Router /queues/{accountId}/posts/export [get]
func (h *QueueHandler) ExportPosts(c *gin.Context) {
	accountID := c.Param("accountId")
	posts, err := h.queues.ListQueuedPosts(c.Request.Context(), tenantFromContext(c), accountID)
	if err != nil {
		response.Error(c, err)
		return
	}

	dataset := export.Dataset{
		Headers: []string{"post_id", "social_account_id", "scheduled_for", "status"},
	}
	for _, post := range posts {
		dataset.Rows = append(dataset.Rows, []string{
			post.PostID,
			post.SocialAccountID,
			post.ScheduledFor.UTC().Format(time.RFC3339),
			post.Status,
		})
	}

	payload, err := h.exporter.Render(dataset)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export"))
		return
	}

	filename := fmt.Sprintf("queue-%s-%s.csv", accountID, time.Now().UTC().Format("20060102"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "text/csv", payload)
}

// Schedule godoc
// @Summary Add a post to the queue
// @Tags Queues
// @Accept json
// @Produce json
// @Param accountId path string true "Social account ID"
// @Param payload body service.SchedulePostRequest true "Post to schedule"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /queues/{accountId}/schedule [post]
func (h *QueueHandler) Schedule(c *gin.Context) {
	var req service.SchedulePostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid schedule payload"))
		return
	}
	post, err := h.queues.SchedulePost(c.Request.Context(), tenantFromContext(c), c.Param("accountId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, post, nil)
}

// RemovePost godoc
// @Summary Remove a post from the queue
// @Tags Queues
// @Produce json
// @Param postId path string true "Post ID"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /queues/posts/{postId} [delete]
func (h *QueueHandler) RemovePost(c *gin.Context) {
	if err := h.queues.RemoveFromQueue(c.Request.Context(), tenantFromContext(c), c.Param("postId")); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"removed": true}, nil)
}

// Statistics godoc
// @Summary Queue statistics
// @Tags Queues
// @Produce json
// @Param accountId path string true "Social account ID"
// @Success 200 {object} response.Envelope
// @Router /queues/{accountId}/statistics [get]
func (h *QueueHandler) Statistics(c *gin.Context) {
	stats, err := h.queues.Statistics(c.Request.Context(), tenantFromContext(c), c.Param("accountId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil)
}
