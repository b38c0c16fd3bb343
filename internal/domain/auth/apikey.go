// Package auth verifies API keys for the administrative endpoints.
package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
)

// ErrUnauthorized is returned for any key that fails verification.
var ErrUnauthorized = fmt.Errorf("unauthorized")

// APIKeyInfo holds the identity and permission data for a validated API key.
type APIKeyInfo struct {
	ID      string
	KeyHash string
	Name    string
	Scopes  []string
}

// Repository provides lookup of API keys by their HMAC hash.
type Repository interface {
	FindByHash(ctx context.Context, hash string) (*APIKeyInfo, error)
}

// Verifier authenticates raw API keys against stored HMAC-SHA256 hashes.
type Verifier struct {
	apikeys Repository
	pepper  []byte
}

// NewVerifier creates a Verifier with the given repository and HMAC pepper.
func NewVerifier(apikeys Repository, pepper []byte) *Verifier {
	return &Verifier{apikeys: apikeys, pepper: pepper}
}

// Verify computes the HMAC-SHA256 of the presented key, looks it up, and
// confirms the stored hash with a constant-time comparison.
func (v *Verifier) Verify(ctx context.Context, key string) (*APIKeyInfo, error) {
	mac := hmac.New(sha256.New, v.pepper)
	mac.Write([]byte(key))
	hash := mac.Sum(nil)

	info, err := v.apikeys.FindByHash(ctx, hex.EncodeToString(hash))
	if err != nil {
		return nil, ErrUnauthorized
	}

	stored, err := hex.DecodeString(info.KeyHash)
	if err != nil {
		return nil, ErrUnauthorized
	}
	if subtle.ConstantTimeCompare(hash, stored) != 1 {
		return nil, ErrUnauthorized
	}
	return info, nil
}
