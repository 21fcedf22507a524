// Package clickcache is a redis-backed fast path for click duplicate
// detection. It only ever short-circuits obvious repeats; the database
// unique constraint stays the authority, so cache failures degrade to
// the slow path instead of blocking billing.
package clickcache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultKeyPrefix = "billing:click:"
	defaultTTL       = 24 * time.Hour
)

// Config tunes the guard.
type Config struct {
	KeyPrefix string
	TTL       time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		KeyPrefix: defaultKeyPrefix,
		TTL:       defaultTTL,
	}
}

// Guard caches already-billed (offer, client) pairs.
type Guard struct {
	client *redis.Client
	config Config
}

// New wires a Guard over an existing redis client.
func New(client *redis.Client, config Config) *Guard {
	if config.KeyPrefix == "" {
		config.KeyPrefix = defaultKeyPrefix
	}
	if config.TTL <= 0 {
		config.TTL = defaultTTL
	}
	return &Guard{client: client, config: config}
}

// Seen reports whether the pair was billed recently.
func (guard *Guard) Seen(ctx context.Context, offerID string, clientID string) (bool, error) {
	count, err := guard.client.Exists(ctx, guard.key(offerID, clientID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	return count > 0, nil
}

// Remember marks the pair as billed for the configured TTL.
func (guard *Guard) Remember(ctx context.Context, offerID string, clientID string) error {
	return guard.client.Set(ctx, guard.key(offerID, clientID), "1", guard.config.TTL).Err()
}

func (guard *Guard) key(offerID string, clientID string) string {
	return guard.config.KeyPrefix + offerID + ":" + clientID
}
