package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ReplayGuard remembers one-time values for a bounded window.
type ReplayGuard struct {
	client *redis.Client
	prefix string
}

func NewReplayGuard(client *redis.Client, prefix string) *ReplayGuard {
	if prefix == "" {
		prefix = "replay"
	}
	return &ReplayGuard{client: client, prefix: prefix}
}

// Claim records key and reports whether this is its first use within ttl.
func (g *ReplayGuard) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := g.client.SetNX(ctx, g.prefix+":"+key, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", key, err)
	}
	return ok, nil
}
