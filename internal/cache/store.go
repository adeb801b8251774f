package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Store is a best-effort key/value cache. Backend failures are reported as a miss (reads)
// or as false/0 (writes) and are never returned to the caller.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) bool
	Delete(ctx context.Context, key string) bool
	DeleteByPattern(ctx context.Context, pattern string) int
	// GetMany returns one entry per key, nil where the key is absent.
	GetMany(ctx context.Context, keys []string) [][]byte
	SetMany(ctx context.Context, entries map[string][]byte, ttl time.Duration) bool
}

// CacheError describes a failed cache operation. It is logged, never propagated.
type CacheError struct {
	Op  string
	Key string
	Err error
}

func (e *CacheError) Error() string {
	return fmt.Sprintf("cache %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *CacheError) Unwrap() error {
	return e.Err
}

// GetJSON decodes a cached JSON value into dst. An undecodable entry counts as a miss.
func GetJSON(ctx context.Context, s Store, key string, dst any) bool {
	data, ok := s.Get(ctx, key)
	if !ok {
		return false
	}
	return json.Unmarshal(data, dst) == nil
}

// SetJSON encodes v as JSON and caches it for ttl
func SetJSON(ctx context.Context, s Store, key string, v any, ttl time.Duration) bool {
	data, err := json.Marshal(v)
	if err != nil {
		return false
	}
	return s.Set(ctx, key, data, ttl)
}
