package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/testbridge/exam-sync-api/internal/models"
	appErrors "github.com/testbridge/exam-sync-api/pkg/errors"
)

const testAccessSecret = "unit-test-secret"

func signTestToken(t *testing.T, secret string, claims models.JWTClaims) string {
	t.Helper()
	if claims.ExpiresAt == nil {
		claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(time.Hour))
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestAuthServiceValidateToken(t *testing.T) {
	svc := NewAuthService(zap.NewNop(), AuthConfig{AccessTokenSecret: testAccessSecret})
	token := signTestToken(t, testAccessSecret, models.JWTClaims{
		UserID:       "u1",
		Role:         models.RoleCenterOperator,
		TestCenterID: "tc1",
	})

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, models.RoleCenterOperator, claims.Role)
	assert.Equal(t, "tc1", claims.TestCenterID)
}

func TestAuthServiceValidateTokenWrongSecret(t *testing.T) {
	svc := NewAuthService(zap.NewNop(), AuthConfig{AccessTokenSecret: testAccessSecret})
	token := signTestToken(t, "other-secret", models.JWTClaims{UserID: "u1", Role: models.RoleAdmin})

	_, err := svc.ValidateToken(token)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceValidateTokenExpired(t *testing.T) {
	svc := NewAuthService(zap.NewNop(), AuthConfig{AccessTokenSecret: testAccessSecret})
	claims := models.JWTClaims{UserID: "u1", Role: models.RoleAdmin}
	claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
	token := signTestToken(t, testAccessSecret, claims)

	_, err := svc.ValidateToken(token)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceValidateTokenIssuerMismatch(t *testing.T) {
	svc := NewAuthService(zap.NewNop(), AuthConfig{AccessTokenSecret: testAccessSecret, Issuer: "identity-service"})
	claims := models.JWTClaims{UserID: "u1", Role: models.RoleAdmin}
	claims.Issuer = "somewhere-else"
	token := signTestToken(t, testAccessSecret, claims)

	_, err := svc.ValidateToken(token)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceValidateTokenDisallowedRole(t *testing.T) {
	svc := NewAuthService(zap.NewNop(), AuthConfig{AccessTokenSecret: testAccessSecret})
	token := signTestToken(t, testAccessSecret, models.JWTClaims{UserID: "u1", Role: "STUDENT"})

	_, err := svc.ValidateToken(token)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestJWTClaimsCanAccessCenter(t *testing.T) {
	admin := &models.JWTClaims{Role: models.RoleAdmin}
	assert.True(t, admin.CanAccessCenter("tc1"))
	assert.True(t, admin.CanAccessCenter("tc2"))

	operator := &models.JWTClaims{Role: models.RoleCenterOperator, TestCenterID: "tc1"}
	assert.True(t, operator.CanAccessCenter("tc1"))
	assert.False(t, operator.CanAccessCenter("tc2"))

	var nobody *models.JWTClaims
	assert.False(t, nobody.CanAccessCenter("tc1"))
}
