package internal

import (
	"crypto/rand"
	"encoding/base64"

	"github.com/google/uuid"
)

const secretSize = 32

// NewSecret returns an opaque, URL-safe secret with 256 bits of entropy.
func NewSecret() (string, error) {
	var raw [secretSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	// base64url, no padding, compact
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// NewCredentialID returns a random identifier for a stored record.
func NewCredentialID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
