package credential

import (
	"context"
	"errors"
)

const (
	// KeyAccessToken is the store key holding the short-lived access credential.
	KeyAccessToken = "accessToken"
	// KeyRefreshToken is the store key holding the refresh credential.
	KeyRefreshToken = "refreshToken"
)

var (
	// ErrStoreUnavailable is returned when a backend cannot be reached.
	ErrStoreUnavailable = errors.New("credential store unavailable")
	// ErrEmptyKey is returned when a store operation is called with an empty key.
	ErrEmptyKey = errors.New("credential store key is empty")
)

// Store is the key-value capability credentials are persisted through.
//
// Get reports ok=false for a missing key. Remove of a missing key is not an error.
// Implementations must be safe for concurrent use.
type Store interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}
