package storage

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// BundleSigner mints and verifies the download tokens that gate access to
// archived bundle artifacts. A token pins one artifact of one package and
// expires after the configured TTL, so operators can hand the URL to a
// courier without handing out credentials.
type BundleSigner struct {
	secret []byte
	ttl    time.Duration
}

// NewBundleSigner constructs a signer. A non-positive TTL falls back to 24h.
func NewBundleSigner(secret string, ttl time.Duration) *BundleSigner {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &BundleSigner{secret: []byte(secret), ttl: ttl}
}

// Sign returns a token for one artifact of the given package.
func (s *BundleSigner) Sign(packageID, relPath string) (string, time.Time, error) {
	if packageID == "" || relPath == "" {
		return "", time.Time{}, fmt.Errorf("package id and artifact path required")
	}
	if len(s.secret) == 0 {
		return "", time.Time{}, fmt.Errorf("signing secret missing")
	}
	expiresAt := time.Now().Add(s.ttl)
	encodedPath := base64.RawURLEncoding.EncodeToString([]byte(relPath))
	exp := strconv.FormatInt(expiresAt.Unix(), 10)
	token := strings.Join([]string{packageID, exp, encodedPath, s.mac(packageID, exp, encodedPath)}, ".")
	return token, expiresAt, nil
}

// Verify checks the signature and expiry, returning the embedded package id
// and artifact path.
func (s *BundleSigner) Verify(token string) (packageID, relPath string, expiresAt time.Time, err error) {
	parts := strings.Split(token, ".")
	if len(parts) != 4 {
		return "", "", time.Time{}, fmt.Errorf("malformed token")
	}
	packageID, exp, encodedPath, signature := parts[0], parts[1], parts[2], parts[3]

	if !hmac.Equal([]byte(s.mac(packageID, exp, encodedPath)), []byte(signature)) {
		return "", "", time.Time{}, fmt.Errorf("invalid token signature")
	}
	expUnix, err := strconv.ParseInt(exp, 10, 64)
	if err != nil {
		return "", "", time.Time{}, fmt.Errorf("invalid token timestamp")
	}
	expiresAt = time.Unix(expUnix, 0)
	if time.Now().After(expiresAt) {
		return "", "", time.Time{}, fmt.Errorf("token expired")
	}
	rawPath, err := base64.RawURLEncoding.DecodeString(encodedPath)
	if err != nil {
		return "", "", time.Time{}, fmt.Errorf("decode artifact path: %w", err)
	}
	return packageID, string(rawPath), expiresAt, nil
}

func (s *BundleSigner) mac(packageID, exp, encodedPath string) string {
	mac := hmac.New(sha256.New, s.secret)
	fmt.Fprintf(mac, "%s|%s|%s", packageID, exp, encodedPath)
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
