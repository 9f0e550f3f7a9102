package middleware

import (
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/testbridge/exam-sync-api/internal/models"
	"github.com/testbridge/exam-sync-api/internal/repository"
)

const auditResourceKey = "audit_resource_id"

// SetAuditResource lets a handler attach the id of the package or batch it
// touched, so the trail entry points at a concrete resource.
func SetAuditResource(c *gin.Context, id string) {
	c.Set(auditResourceKey, id)
}

// Audit records a trail entry after each successful request. Failed requests
// are skipped; the interesting rejections (forbidden, package mismatch)
// already surface in the response body.
func Audit(repo *repository.AuditRepository, action, resource string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now().UTC()
		c.Next()

		if c.Writer.Status() >= 400 {
			return
		}

		var userID *string
		if claims, ok := c.Get(ContextUserKey); ok {
			if user, ok := claims.(*models.JWTClaims); ok {
				userID = &user.UserID
			}
		}
		var resourceID *string
		if v, ok := c.Get(auditResourceKey); ok {
			if id, ok := v.(string); ok && id != "" {
				resourceID = &id
			}
		}

		newValues, _ := json.Marshal(map[string]interface{}{
			"method":     c.Request.Method,
			"path":       c.FullPath(),
			"status":     c.Writer.Status(),
			"latency_ms": time.Since(start).Milliseconds(),
		})

		_ = repo.CreateAuditLog(c.Request.Context(), &models.AuditLog{
			UserID:     userID,
			Action:     action,
			Resource:   resource,
			ResourceID: resourceID,
			NewValues:  newValues,
			IPAddress:  c.ClientIP(),
			UserAgent:  c.GetHeader("User-Agent"),
		})
	}
}
