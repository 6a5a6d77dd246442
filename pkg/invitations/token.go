package invitations

import (
	"crypto/rand"
	"encoding/base64"
)

const tokenBytes = 32

// generateToken returns a URL-safe random token
func generateToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
