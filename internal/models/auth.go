package models

import "github.com/golang-jwt/jwt/v5"

// UserRole represents the roles accepted on sync endpoints.
type UserRole string

// Roles issued by the identity service.
const (
	RoleAdmin          UserRole = "ADMIN"
	RoleCenterOperator UserRole = "CENTER_OPERATOR"
)

// JWTClaims is the access-token payload the identity service issues. A center
// operator's token carries the owning test-center id; admins have it empty.
type JWTClaims struct {
	UserID       string   `json:"user_id"`
	Role         UserRole `json:"role"`
	Email        string   `json:"email"`
	TestCenterID string   `json:"test_center_id,omitempty"`
	jwt.RegisteredClaims
}

// CanAccessCenter reports whether the principal may operate on the center.
func (c *JWTClaims) CanAccessCenter(testCenterID string) bool {
	if c == nil {
		return false
	}
	if c.Role == RoleAdmin {
		return true
	}
	return c.Role == RoleCenterOperator && c.TestCenterID == testCenterID
}
