package secrets

import (
	"context"
	"errors"
)

// ErrNotFound is returned by a provider that has no value for a name.
var ErrNotFound = errors.New("secret not found")

// Provider retrieves secrets from one backend.
type Provider interface {
	// Get returns the value of name or an error wrapping ErrNotFound.
	Get(ctx context.Context, name string) (string, error)

	// Names lists the secrets the provider knows about. Values are never
	// returned.
	Names(ctx context.Context) ([]string, error)

	// Name identifies the backend in logs.
	Name() string
}

// Refresher is implemented by providers holding their own cache.
type Refresher interface {
	Refresh(ctx context.Context) error
}
