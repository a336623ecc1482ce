package signature

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSecret(t *testing.T) {
	t.Run("success - minimum size", func(t *testing.T) {
		secret, err := GenerateSecret(MinSecretBytes)
		require.NoError(t, err)
		assert.Len(t, secret, MinSecretBytes*2) // hex doubles the length
	})

	t.Run("success - maximum size", func(t *testing.T) {
		secret, err := GenerateSecret(MaxSecretBytes)
		require.NoError(t, err)
		assert.Len(t, secret, MaxSecretBytes*2)
	})

	t.Run("error - too small", func(t *testing.T) {
		_, err := GenerateSecret(MinSecretBytes - 1)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "secret size must be between")
	})

	t.Run("error - too large", func(t *testing.T) {
		_, err := GenerateSecret(MaxSecretBytes + 1)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "secret size must be between")
	})

	t.Run("randomness - generates different secrets", func(t *testing.T) {
		secret1, err1 := GenerateSecret(32)
		secret2, err2 := GenerateSecret(32)
		require.NoError(t, err1)
		require.NoError(t, err2)
		assert.NotEqual(t, secret1, secret2)
	})
}

func TestSign(t *testing.T) {
	secret := "tournament-signing-secret"
	payload := `{"event":"match.completed","data":{"match_id":42}}`
	timestamp := int64(1700000000000)

	t.Run("success - deterministic", func(t *testing.T) {
		sig1 := Sign(secret, payload, timestamp)
		sig2 := Sign(secret, payload, timestamp)
		assert.Equal(t, sig1, sig2)
		assert.Len(t, sig1, 64) // hex-encoded SHA-256
		assert.Equal(t, strings.ToLower(sig1), sig1)
	})

	t.Run("success - timestamp bound into signature", func(t *testing.T) {
		sig1 := Sign(secret, payload, timestamp)
		sig2 := Sign(secret, payload, timestamp+1)
		assert.NotEqual(t, sig1, sig2)
	})

	t.Run("success - zero timestamp signs payload alone", func(t *testing.T) {
		sig := Sign(secret, payload, 0)
		assert.NotEmpty(t, sig)
		assert.NotEqual(t, Sign(secret, payload, timestamp), sig)
	})

	t.Run("success - different payloads produce different signatures", func(t *testing.T) {
		sig1 := Sign(secret, payload, timestamp)
		sig2 := Sign(secret, payload+" ", timestamp)
		assert.NotEqual(t, sig1, sig2)
	})

	t.Run("no secret - empty signature", func(t *testing.T) {
		assert.Empty(t, Sign("", payload, timestamp))
	})
}

func TestVerify(t *testing.T) {
	secret := "tournament-signing-secret"
	payload := `{"event":"match.completed","data":{"match_id":42}}`

	t.Run("success - valid signature within window", func(t *testing.T) {
		timestamp := time.Now().UnixMilli()
		sig := Sign(secret, payload, timestamp)

		valid, reason := Verify(secret, payload, sig, timestamp, 5*time.Minute)
		assert.True(t, valid)
		assert.Empty(t, reason)
	})

	t.Run("success - no timestamp skips freshness check", func(t *testing.T) {
		sig := Sign(secret, payload, 0)

		valid, reason := Verify(secret, payload, sig, 0, time.Minute)
		assert.True(t, valid)
		assert.Empty(t, reason)
	})

	t.Run("rejects - tampered payload", func(t *testing.T) {
		timestamp := time.Now().UnixMilli()
		sig := Sign(secret, payload, timestamp)

		valid, reason := Verify(secret, `{"event":"match.completed","data":{"match_id":43}}`, sig, timestamp, 5*time.Minute)
		assert.False(t, valid)
		assert.Equal(t, ReasonInvalidSignature, reason)
	})

	t.Run("rejects - wrong secret", func(t *testing.T) {
		timestamp := time.Now().UnixMilli()
		sig := Sign(secret, payload, timestamp)

		valid, reason := Verify("other-secret", payload, sig, timestamp, 5*time.Minute)
		assert.False(t, valid)
		assert.Equal(t, ReasonInvalidSignature, reason)
	})

	t.Run("rejects - timestamp too old", func(t *testing.T) {
		timestamp := time.Now().Add(-10 * time.Minute).UnixMilli()
		sig := Sign(secret, payload, timestamp)

		valid, reason := Verify(secret, payload, sig, timestamp, 5*time.Minute)
		assert.False(t, valid)
		assert.Equal(t, ReasonTimestampTooOld, reason)
	})

	t.Run("rejects - timestamp in future beyond skew tolerance", func(t *testing.T) {
		timestamp := time.Now().Add(time.Minute).UnixMilli()
		sig := Sign(secret, payload, timestamp)

		valid, reason := Verify(secret, payload, sig, timestamp, 5*time.Minute)
		assert.False(t, valid)
		assert.Equal(t, ReasonTimestampFuture, reason)
	})

	t.Run("accepts - small clock skew within tolerance", func(t *testing.T) {
		timestamp := time.Now().Add(10 * time.Second).UnixMilli()
		sig := Sign(secret, payload, timestamp)

		valid, reason := Verify(secret, payload, sig, timestamp, 5*time.Minute)
		assert.True(t, valid)
		assert.Empty(t, reason)
	})

	t.Run("stale timestamp reported before signature mismatch", func(t *testing.T) {
		timestamp := time.Now().Add(-10 * time.Minute).UnixMilli()

		valid, reason := Verify(secret, payload, "deadbeef", timestamp, 5*time.Minute)
		assert.False(t, valid)
		assert.Equal(t, ReasonTimestampTooOld, reason)
	})

	t.Run("zero max age falls back to default window", func(t *testing.T) {
		timestamp := time.Now().Add(-time.Minute).UnixMilli()
		sig := Sign(secret, payload, timestamp)

		valid, _ := Verify(secret, payload, sig, timestamp, 0)
		assert.True(t, valid)
	})
}
