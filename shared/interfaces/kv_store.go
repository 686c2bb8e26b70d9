package interfaces

import "context"

// KVStore - порт персистентности: значение по ключу, перезапись целиком.
// Реализации находятся в shared/database.
type KVStore interface {
	// Get returns the raw value stored under key.
	// Returns models.ErrNotFound if the key has never been written.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set overwrites the whole value stored under key.
	Set(ctx context.Context, key string, value []byte) error
}
