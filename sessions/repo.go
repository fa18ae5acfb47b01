package sessions

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Store.Get for a key that has never been set or was deleted.
var ErrNotFound = errors.New("not found")

// Store is durable key/value persistence for the session artifacts. It holds no policy;
// the auth manager is its only writer.
type Store interface {
	// Get returns the value stored under key, or ErrNotFound
	Get(ctx context.Context, key string) ([]byte, error)

	// Set creates or replaces the value stored under key
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting a missing key is not an error
	Delete(ctx context.Context, key string) error
}
