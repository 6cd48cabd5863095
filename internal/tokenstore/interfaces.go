package tokenstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Read when no token is stored.
var ErrNotFound = errors.New("token not found")

// TokenStore reads, writes and clears the bearer token in persistent storage.
// Implementations are safe for concurrent use.
type TokenStore interface {
	// Read returns the stored token. Returns ErrNotFound if the token is missing or empty.
	Read(ctx context.Context) (string, error)

	// Write persists the token, replacing any previously stored one.
	Write(ctx context.Context, token string) error

	// Clear removes the stored token. Clearing an empty store is not an error.
	Clear(ctx context.Context) error
}
