package auth

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/google/uuid"
)

// RandomHex generates a random hexadecimal string of n bytes
func RandomHex(n int) (string, error) {
	bytes := make([]byte, n)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

// NewPairingToken mints a single-use pairing token: 32 hex characters.
func NewPairingToken() (string, error) {
	return RandomHex(16)
}

// NewSharedSecret mints the symmetric HMAC key two nodes share after pairing.
func NewSharedSecret() (string, error) {
	return RandomHex(32)
}

// NewViewerToken mints an opaque single-use viewer token.
func NewViewerToken() (string, error) {
	return RandomHex(32)
}

// NewPUID assigns a public unique identifier to a locally created entity.
// PUIDs are globally stable and never reassigned.
func NewPUID() string {
	return uuid.NewString()
}

// NewCUID assigns a content unique identifier to a locally authored post.
func NewCUID() string {
	return uuid.NewString()
}
