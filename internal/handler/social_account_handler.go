package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/cmis-platform/queue-api/internal/models"
	"github.com/cmis-platform/queue-api/internal/service"
	appErrors "github.com/cmis-platform/queue-api/pkg/errors"
	"github.com/cmis-platform/queue-api/pkg/response"
)

// SocialAccountHandler exposes channel registry endpoints.
type SocialAccountHandler struct {
	accounts *service.SocialAccountService
}

// NewSocialAccountHandler constructs SocialAccountHandler.
func NewSocialAccountHandler(accounts *service.SocialAccountService) *SocialAccountHandler {
	return &SocialAccountHandler{accounts: accounts}
}

// List godoc
// @Summary List social accounts
// @Tags Accounts
// @Produce json
// @Param platform query string false "Filter by platform"
// @Param status query string false "Filter by connection status"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /accounts [get]
func (h *SocialAccountHandler) List(c *gin.Context) {
	var filter models.SocialAccountFilter
	filter.Platform = c.Query("platform")
	filter.Status = c.Query("status")
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	accounts, pagination, err := h.accounts.List(c.Request.Context(), tenantFromContext(c), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, accounts, pagination)
}

// Get godoc
// @Summary Get social account detail
// @Tags Accounts
// @Produce json
// @Param id path string true "Account ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /accounts/{id} [get]
func (h *SocialAccountHandler) Get(c *gin.Context) {
	account, err := h.accounts.Get(c.Request.Context(), tenantFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, account, nil)
}

// Connect godoc
// @Summary Register a publishing channel
// @Tags Accounts
// @Accept json
// @Produce json
// @Param payload body service.ConnectAccountRequest true "Account payload"
// @Success 201 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /accounts [post]
func (h *SocialAccountHandler) Connect(c *gin.Context) {
	var req service.ConnectAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid account payload"))
		return
	}
	account, err := h.accounts.Connect(c.Request.Context(), tenantFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, account)
}

// Disconnect godoc
// @Summary Disconnect a publishing channel
// @Tags Accounts
// @Produce json
// @Param id path string true "Account ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /accounts/{id} [delete]
func (h *SocialAccountHandler) Disconnect(c *gin.Context) {
	if err := h.accounts.Disconnect(c.Request.Context(), tenantFromContext(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"disconnected": true}, nil)
}
