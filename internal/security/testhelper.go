package security

import (
	"crypto/ed25519"
	"crypto/rand"
	"time"
)

// NewTestTokenProvider returns a TokenProvider backed by a freshly generated Ed25519 key pair
// (15m access, 24h refresh). For unit tests only.
func NewTestTokenProvider() (*TokenProvider, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return NewTokenProvider(priv, pub, "test-issuer", "test-audience", 15*time.Minute, 24*time.Hour)
}
