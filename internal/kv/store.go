// Package kv defines the shared, atomic-operation-capable store that every
// chat instance reads and writes. Presence, room indices and message feeds
// all live behind this interface so that instances agree on them.
package kv

import (
	"context"
	"errors"
	"time"
)

// ErrNil is returned when a string or hash value does not exist.
var ErrNil = errors.New("kv: nil")

// Store is the capability set the chat core needs from the shared store.
// All implementations must be safe for concurrent use and every single
// operation must be atomic with respect to other instances.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	// SetNX sets key only if it does not exist and reports whether it did.
	// A zero ttl means no expiry.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Exists(ctx context.Context, key string) (bool, error)
	Del(ctx context.Context, keys ...string) error
	Incr(ctx context.Context, key string) (int64, error)

	HGet(ctx context.Context, key, field string) (string, error)
	HSet(ctx context.Context, key string, values map[string]string) error

	// SAdd returns the number of members that were not already present.
	SAdd(ctx context.Context, key string, members ...string) (int64, error)
	SRem(ctx context.Context, key string, members ...string) error
	SMembers(ctx context.Context, key string) ([]string, error)
	SIsMember(ctx context.Context, key, member string) (bool, error)

	ZAdd(ctx context.Context, key string, score float64, member string) error
	// ZRange returns members ordered by ascending score, with redis index
	// semantics for start and stop (inclusive, negative counts from the end).
	ZRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	ZCard(ctx context.Context, key string) (int64, error)

	Ping(ctx context.Context) error
	Close() error
}
