package signature

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

const (
	// ClockSkewTolerance is how far in the future a timestamp may be
	// before verification rejects it
	ClockSkewTolerance = 30 * time.Second

	// DefaultMaxAge is the freshness window applied when the caller
	// does not supply one
	DefaultMaxAge = 5 * time.Minute

	// MinSecretBytes is the minimum recommended secret size (192 bits)
	MinSecretBytes = 24

	// MaxSecretBytes is the maximum recommended secret size (512 bits)
	MaxSecretBytes = 64
)

/* Verification failure reasons
 * After the timestamp checks pass, any mismatch reports the generic
 * ReasonInvalidSignature so callers cannot probe which byte differed
 */
const (
	ReasonTimestampTooOld  = "timestamp too old"
	ReasonTimestampFuture  = "timestamp in future"
	ReasonInvalidSignature = "invalid signature"
)

// GenerateSecret creates a new cryptographically secure signing secret,
// hex-encoded, between MinSecretBytes and MaxSecretBytes in size.
func GenerateSecret(size int) (string, error) {
	if size < MinSecretBytes || size > MaxSecretBytes {
		return "", fmt.Errorf("secret size must be between %d and %d bytes", MinSecretBytes, MaxSecretBytes)
	}

	bytes := make([]byte, size)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("generating random bytes: %w", err)
	}

	return hex.EncodeToString(bytes), nil
}

// Sign computes the HMAC-SHA256 signature for a payload as lowercase hex.
// When timestamp (milliseconds since epoch) is positive, the signed content
// is "{timestamp}.{payload}", binding freshness into the signature for
// replay protection. A zero timestamp signs the payload alone.
//
// With no secret configured the signature is empty; the caller decides
// whether unsigned delivery is acceptable.
func Sign(secret, payload string, timestamp int64) string {
	if secret == "" {
		return ""
	}

	content := payload
	if timestamp > 0 {
		content = fmt.Sprintf("%d.%s", timestamp, payload)
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(content))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify recomputes the expected signature and compares it in constant time.
// When timestamp is positive the freshness window is checked first: a
// timestamp older than maxAge or more than ClockSkewTolerance in the future
// is rejected before any signature comparison. A maxAge of zero or less
// falls back to DefaultMaxAge.
//
// Returns whether the signature is valid and, when it is not, the reason.
func Verify(secret, payload, sig string, timestamp int64, maxAge time.Duration) (bool, string) {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}

	if timestamp > 0 {
		now := time.Now().UnixMilli()
		if age := now - timestamp; age > maxAge.Milliseconds() {
			return false, ReasonTimestampTooOld
		}
		if ahead := timestamp - now; ahead > ClockSkewTolerance.Milliseconds() {
			return false, ReasonTimestampFuture
		}
	}

	expected := Sign(secret, payload, timestamp)
	if !hmac.Equal([]byte(expected), []byte(sig)) {
		return false, ReasonInvalidSignature
	}

	return true, ""
}
