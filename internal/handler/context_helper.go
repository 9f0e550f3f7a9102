package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/testbridge/exam-sync-api/internal/middleware"
	"github.com/testbridge/exam-sync-api/internal/models"
)

// claimsFromContext extracts the authenticated principal. Routes behind the
// JWT middleware always have one; a nil return fails every center check.
func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, ok := c.Get(middleware.ContextUserKey)
	if !ok {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}
