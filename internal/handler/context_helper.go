package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/cmis-platform/queue-api/internal/middleware"
	"github.com/cmis-platform/queue-api/internal/models"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}

func tenantFromContext(c *gin.Context) models.TenantContext {
	claims := claimsFromContext(c)
	if claims == nil {
		return models.TenantContext{}
	}
	return models.TenantContext{OrgID: claims.OrgID, UserID: claims.UserID}
}
