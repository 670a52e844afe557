// Package kvstore is the durable key-value primitive under the collection,
// session and image-metadata stores: string values under string keys, with
// get, set and remove.
package kvstore

import (
	"context"

	"github.com/mycolog/mycolog/internal/errors"
)

// Store is a durable string key-value store. Every failure is reported as a
// persistence-category error. A missing key is not an error: Get returns ok=false.
type Store interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
	Driver() string
	Close() error
}

// Well-known keys
const (
	KeyCollection    = "mushroom_collection"
	KeyFavorites     = "mushroom_favorites" // legacy favorite id list
	KeyUser          = "user"
	KeyImageMetadata = "image_metadata"
)

// persistenceError wraps a backend failure with the key and operation.
func persistenceError(err error, driver, op, key string) error {
	return errors.New(err).
		Component("kvstore").
		Category(errors.CategoryPersistence).
		Context("driver", driver).
		Context("operation", op).
		Context("key", key).
		Build()
}

func validateKey(driver, op, key string) error {
	if key == "" {
		return persistenceError(errors.NewStd("empty key"), driver, op, key)
	}
	return nil
}
