// Package auth holds API key identities for the admin surface (status
// transitions, stock recovery). Shopper traffic arrives through the chat
// gateway and is identified by chat user ID instead.
package auth

import (
	"context"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned when no API key matches the given hash.
var ErrNotFound = errors.New("api key not found")

// APIKey holds the identity data for a validated admin key. Only the
// HMAC-SHA256 hash of the key material is ever stored.
type APIKey struct {
	ID      int64
	KeyHash string
	Name    string
}

// Repository provides lookup of API keys by their HMAC-SHA256 hash.
type Repository interface {
	FindByHash(ctx context.Context, hash string) (*APIKey, error)
}
