package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
)

// Token format: fh_admin_{secret}
// Example: fh_admin_4f8d2e1b9c7a5f3d2e1b9c7a5f3d2e1b
const (
	TokenPrefix    = "fh_admin_"
	TokenSecretLen = 32 // hex encoded 16 bytes
)

var (
	// ErrInvalidTokenFormat indicates the token is not an admin token.
	ErrInvalidTokenFormat = errors.New("invalid admin token format")

	tokenFormatRegex = regexp.MustCompile(`^fh_admin_[a-f0-9]{32}$`)
)

// GeneratedToken is a freshly generated admin token.
type GeneratedToken struct {
	Plaintext string // shown once
	Hash      string // value for ADMIN_TOKEN_HASH
}

// GenerateAdminToken creates a random admin token and its hash.
func GenerateAdminToken() (*GeneratedToken, error) {
	secret := make([]byte, TokenSecretLen/2)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("generate secret: %w", err)
	}
	plaintext := TokenPrefix + hex.EncodeToString(secret)

	hash, err := HashToken(plaintext)
	if err != nil {
		return nil, fmt.Errorf("hash token: %w", err)
	}
	return &GeneratedToken{Plaintext: plaintext, Hash: hash}, nil
}

// ValidateTokenFormat returns ErrInvalidTokenFormat unless token looks
// like a generated admin token.
func ValidateTokenFormat(token string) error {
	if !tokenFormatRegex.MatchString(token) {
		return ErrInvalidTokenFormat
	}
	return nil
}
