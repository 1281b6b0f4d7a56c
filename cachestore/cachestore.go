// TTL cache for lookups against the social network API (accounts,
// relationships), so that a burst of events from the same author does not
// repeat the same requests.
//
// Values are JSON strings. Includes an interface and implementations using
// redis and in-process memory.
package cachestore

import (
	"context"
	"encoding/json"
)

type CacheStore interface {
	// returns empty string on cache miss
	Get(ctx context.Context, name, key string) (string, error)
	Set(ctx context.Context, name, key string, val string) error
	Purge(ctx context.Context, name, key string) error
}

// GetJSON decodes a cached value into out. Returns false on cache miss.
func GetJSON(ctx context.Context, c CacheStore, name, key string, out any) (bool, error) {
	raw, err := c.Get(ctx, name, key)
	if err != nil {
		return false, err
	}
	if raw == "" {
		return false, nil
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		// treat undecodable entries as a miss; they get overwritten
		return false, nil
	}
	return true, nil
}

func SetJSON(ctx context.Context, c CacheStore, name, key string, val any) error {
	b, err := json.Marshal(val)
	if err != nil {
		return err
	}
	return c.Set(ctx, name, key, string(b))
}
