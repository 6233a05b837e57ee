package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned by KV.Get when the key does not exist.
var ErrNotFound = errors.New("key not found")

// UpdateFunc receives the current value of a key (nil and false when the
// key does not exist) and returns the value to store.
type UpdateFunc func(current []byte, exists bool) ([]byte, error)

// KV is the key-value persistence layer the stores are built on.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	// GetMany returns the values of the keys that exist; missing keys are
	// absent from the result.
	GetMany(ctx context.Context, keys []string) (map[string][]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	// Update applies fn to the value under key atomically with respect to
	// other Update calls on the same key.
	Update(ctx context.Context, key string, fn UpdateFunc) error
	// Keys lists the keys starting with prefix in ascending order.
	Keys(ctx context.Context, prefix string) ([]string, error)
	Close() error
}
