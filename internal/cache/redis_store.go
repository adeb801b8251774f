package cache

import (
	"context"
	"errors"
	"time"

	"storefront-catalog/internal/observability"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

const scanBatchSize = 200

// RedisOptions configures a RedisStore
type RedisOptions struct {
	KeyPrefix string        // namespace of every key, e.g. "app:"
	OpTimeout time.Duration // upper bound of a single cache round trip

	BreakerFailureRatio float64
	BreakerMinRequests  uint32
	BreakerOpenTimeout  time.Duration

	Metrics *observability.Collector
}

// DefaultRedisOptions returns the options used when nothing is configured
func DefaultRedisOptions() RedisOptions {
	return RedisOptions{
		KeyPrefix:           "app:",
		OpTimeout:           250 * time.Millisecond,
		BreakerFailureRatio: 0.6,
		BreakerMinRequests:  10,
		BreakerOpenTimeout:  30 * time.Second,
	}
}

// RedisStore implements Store on top of go-redis. It is safe for concurrent use.
type RedisStore struct {
	client  redis.Cmdable
	opts    RedisOptions
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

// NewRedisStore creates a new RedisStore
func NewRedisStore(client redis.Cmdable, opts RedisOptions, logger *zap.Logger) *RedisStore {
	defaults := DefaultRedisOptions()
	if opts.OpTimeout <= 0 {
		opts.OpTimeout = defaults.OpTimeout
	}
	if opts.BreakerFailureRatio <= 0 {
		opts.BreakerFailureRatio = defaults.BreakerFailureRatio
	}
	if opts.BreakerMinRequests == 0 {
		opts.BreakerMinRequests = defaults.BreakerMinRequests
	}
	if opts.BreakerOpenTimeout <= 0 {
		opts.BreakerOpenTimeout = defaults.BreakerOpenTimeout
	}

	s := &RedisStore{
		client: client,
		opts:   opts,
		logger: logger,
	}

	s.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "redis-cache",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     opts.BreakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < opts.BreakerMinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= opts.BreakerFailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Cache circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			opts.Metrics.RecordBreakerState(name, int(to))
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, redis.Nil)
		},
	})

	return s
}

func (s *RedisStore) key(k string) string {
	return s.opts.KeyPrefix + k
}

// run executes fn against redis with the op timeout, through the circuit breaker.
// It returns the raw error so callers can tell redis.Nil apart; failures are logged here.
func (s *RedisStore) run(ctx context.Context, op, key string, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.opts.OpTimeout)
	defer cancel()

	_, err := s.breaker.Execute(func() (interface{}, error) {
		return nil, fn(ctx)
	})
	if err == nil || errors.Is(err, redis.Nil) {
		return err
	}

	s.opts.Metrics.RecordCacheError(op)
	cacheErr := &CacheError{Op: op, Key: key, Err: err}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		s.logger.Debug("Cache bypassed by circuit breaker", zap.Error(cacheErr))
	} else {
		s.logger.Warn("Cache operation failed, bypassing cache", zap.Error(cacheErr))
	}
	return cacheErr
}

// Get returns the cached value for key
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool) {
	var value []byte
	err := s.run(ctx, "get", key, func(ctx context.Context) error {
		var err error
		value, err = s.client.Get(ctx, s.key(key)).Bytes()
		return err
	})

	hit := err == nil
	s.opts.Metrics.RecordCacheLookup(namespaceOf(key), hit)
	if !hit {
		return nil, false
	}
	return value, true
}

// Set stores value under key for ttl
func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) bool {
	err := s.run(ctx, "set", key, func(ctx context.Context) error {
		return s.client.Set(ctx, s.key(key), value, ttl).Err()
	})
	return err == nil
}

// Delete removes key
func (s *RedisStore) Delete(ctx context.Context, key string) bool {
	err := s.run(ctx, "delete", key, func(ctx context.Context) error {
		return s.client.Del(ctx, s.key(key)).Err()
	})
	return err == nil
}

// DeleteByPattern removes every key matching pattern (redis glob syntax) inside the prefix.
// SCAN is used instead of KEYS so large keyspaces do not block redis.
func (s *RedisStore) DeleteByPattern(ctx context.Context, pattern string) int {
	deleted := 0
	err := s.run(ctx, "delete_pattern", pattern, func(ctx context.Context) error {
		var cursor uint64
		for {
			keys, next, err := s.client.Scan(ctx, cursor, s.key(pattern), scanBatchSize).Result()
			if err != nil {
				return err
			}
			if len(keys) > 0 {
				n, err := s.client.Del(ctx, keys...).Result()
				if err != nil {
					return err
				}
				deleted += int(n)
			}
			if next == 0 {
				return nil
			}
			cursor = next
		}
	})
	if err != nil {
		s.logger.Debug("Pattern delete incomplete", zap.String("pattern", pattern), zap.Int("deleted", deleted))
	}
	return deleted
}

// GetMany fetches keys with a single MGET
func (s *RedisStore) GetMany(ctx context.Context, keys []string) [][]byte {
	out := make([][]byte, len(keys))
	if len(keys) == 0 {
		return out
	}

	prefixed := make([]string, len(keys))
	for i, k := range keys {
		prefixed[i] = s.key(k)
	}

	var values []interface{}
	err := s.run(ctx, "get_many", keys[0], func(ctx context.Context) error {
		var err error
		values, err = s.client.MGet(ctx, prefixed...).Result()
		return err
	})
	if err != nil {
		for _, k := range keys {
			s.opts.Metrics.RecordCacheLookup(namespaceOf(k), false)
		}
		return out
	}

	for i, v := range values {
		if i >= len(out) {
			break
		}
		str, ok := v.(string)
		if ok {
			out[i] = []byte(str)
		}
		s.opts.Metrics.RecordCacheLookup(namespaceOf(keys[i]), ok)
	}
	return out
}

// SetMany writes all entries in one pipeline
func (s *RedisStore) SetMany(ctx context.Context, entries map[string][]byte, ttl time.Duration) bool {
	if len(entries) == 0 {
		return true
	}
	err := s.run(ctx, "set_many", "", func(ctx context.Context) error {
		_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
			for k, v := range entries {
				pipe.Set(ctx, s.key(k), v, ttl)
			}
			return nil
		})
		return err
	})
	return err == nil
}

// Ping reports whether redis is reachable, for health checks
func (s *RedisStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.opts.OpTimeout)
	defer cancel()
	return s.client.Ping(ctx).Err()
}

// BreakerState returns the current circuit breaker state
func (s *RedisStore) BreakerState() gobreaker.State {
	return s.breaker.State()
}
