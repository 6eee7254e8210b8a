package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/jammysunshine/astro-whatsapp-bot/pkg/ports"
	backend "github.com/redis/go-redis/v9"
)

// Deduplicator implements ports.Deduplicator with SET NX, so redeliveries are
// caught across replicas.
type Deduplicator struct {
	client *backend.Client
	prefix string
}

// NewDeduplicator creates a deduplicator writing prefix + "dedup:" + key.
func NewDeduplicator(client *backend.Client, prefix string) *Deduplicator {
	return &Deduplicator{client: client, prefix: prefix}
}

// Claim records key until ttl elapses.
func (d *Deduplicator) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := d.client.SetNX(ctx, d.prefix+"dedup:"+key, time.Now().Unix(), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim message id: %w", err)
	}
	return ok, nil
}

// Release forgets key.
func (d *Deduplicator) Release(ctx context.Context, key string) error {
	if err := d.client.Del(ctx, d.prefix+"dedup:"+key).Err(); err != nil {
		return fmt.Errorf("failed to release message id: %w", err)
	}
	return nil
}

var (
	_ ports.Deduplicator = (*Deduplicator)(nil)
	_ ports.SessionStore = (*Store)(nil)
)
