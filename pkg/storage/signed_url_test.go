package storage

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBundleSignerSignAndVerify(t *testing.T) {
	signer := NewBundleSigner("secret", time.Hour)
	token, expiresAt, err := signer.Sign("tc1_t1_1", "tc1_t1_1/import.sh")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	packageID, path, parsedExpiry, err := signer.Verify(token)
	require.NoError(t, err)
	require.Equal(t, "tc1_t1_1", packageID)
	require.Equal(t, "tc1_t1_1/import.sh", path)
	require.WithinDuration(t, expiresAt, parsedExpiry, time.Second)
}

func TestBundleSignerExpired(t *testing.T) {
	signer := NewBundleSigner("secret", time.Millisecond*10)
	token, _, err := signer.Sign("tc1_t1_1", "tc1_t1_1/import.sh")
	require.NoError(t, err)
	time.Sleep(time.Millisecond * 20)

	_, _, _, err = signer.Verify(token)
	require.ErrorContains(t, err, "expired")
}

func TestBundleSignerTampered(t *testing.T) {
	signer := NewBundleSigner("secret", time.Hour)
	token, _, err := signer.Sign("tc1_t1_1", "tc1_t1_1/import.sh")
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	parts[0] = "tc2_t9_9"
	_, _, _, err = signer.Verify(strings.Join(parts, "."))
	require.ErrorContains(t, err, "signature")

	_, _, _, err = NewBundleSigner("other-secret", time.Hour).Verify(token)
	require.ErrorContains(t, err, "signature")
}
