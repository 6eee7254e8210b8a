package sqlstore

import (
	"context"
	"fmt"
	"time"

	"github.com/jammysunshine/astro-whatsapp-bot/pkg/ports"
)

// Claim records key until ttl elapses.
func (s *Store) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	now := s.now()
	if _, err := s.db.ExecContext(ctx,
		s.rebind(`DELETE FROM inbound_dedup WHERE message_id = ? AND expires_at < ?`),
		key, now.UnixNano(),
	); err != nil {
		return false, fmt.Errorf("dedup cleanup failed: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		s.rebind(`INSERT INTO inbound_dedup (message_id, expires_at) VALUES (?, ?) ON CONFLICT (message_id) DO NOTHING`),
		key, now.Add(ttl).UnixNano(),
	)
	if err != nil {
		return false, fmt.Errorf("record inbound failed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("dedup rows affected check failed: %w", err)
	}
	return n > 0, nil
}

// Release forgets key.
func (s *Store) Release(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM inbound_dedup WHERE message_id = ?`), key); err != nil {
		return fmt.Errorf("dedup release failed: %w", err)
	}
	return nil
}

var _ ports.Deduplicator = (*Store)(nil)
