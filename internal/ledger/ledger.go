// Package ledger records idempotency tokens so replayed booking
// requests return the original reservation instead of taking seats
// twice.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/linyucheng/seatbook-backend/pkg/redis"
)

// kv is the Redis surface the ledger depends on, narrowed for tests.
type kv interface {
	Get(ctx context.Context, key string) (string, error)
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	IdempotencyKey(token string) string
}

// Ledger maps idempotency tokens to reservation ids with a TTL. Entries
// are written only after the reservation record is durable, so a token
// in the ledger always points at a completed booking.
type Ledger struct {
	store kv
	ttl   time.Duration
}

// New wires the ledger to its Redis store.
func New(store kv, ttl time.Duration) (*Ledger, error) {
	if store == nil {
		return nil, fmt.Errorf("ledger store required")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Ledger{store: store, ttl: ttl}, nil
}

// Lookup returns the reservation id recorded for the token, if any.
func (l *Ledger) Lookup(ctx context.Context, token string) (string, bool, error) {
	id, err := l.store.Get(ctx, l.store.IdempotencyKey(token))
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("ledger lookup: %w", err)
	}
	return id, true, nil
}

// Remember records the token for a completed booking. First writer
// wins; the return reports whether this call created the entry.
func (l *Ledger) Remember(ctx context.Context, token, reservationID string) (bool, error) {
	created, err := l.store.SetNX(ctx, l.store.IdempotencyKey(token), reservationID, l.ttl)
	if err != nil {
		return false, fmt.Errorf("ledger remember: %w", err)
	}
	return created, nil
}
