// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the domain/service
// layer from concrete implementations.
package port

import (
	"context"

	"github.com/boddenberg/burger-place-bfa-go/internal/domain"
)

// Substrate is the key/value persistence the whole state lives on.
// It mirrors browser local storage: one string value per key.
type Substrate interface {
	// GetItem returns ok=false when the key is absent.
	GetItem(ctx context.Context, key string) (value string, ok bool, err error)
	SetItem(ctx context.Context, key, value string) error
	RemoveItem(ctx context.Context, key string) error
}

// Notifier delivers order notifications on the channel the core decided.
type Notifier interface {
	Notify(ctx context.Context, n domain.Notification) error
}

// Cache provides generic caching with TTL.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
}

// Pinger is implemented by substrates that can report reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}
