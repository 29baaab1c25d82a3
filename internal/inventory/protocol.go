package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/linyucheng/seatbook-backend/pkg/logger"
	"github.com/linyucheng/seatbook-backend/pkg/metrics"
)

// Protocol drives the seat adjustment protocol over an inventory Store:
// read snapshot, mutate in memory, conditional write, retry on version
// conflict with bounded exponential backoff. Backends implementing
// Adjuster short-circuit the loop with their native conditional update.
type Protocol struct {
	store       Store
	maxAttempts int
	baseDelay   time.Duration
	logg        *logger.Logger
	metrics     *metrics.BookingMetrics
}

// NewProtocol wires the protocol to a backend store.
func NewProtocol(store Store, maxAttempts int, baseDelay time.Duration, logg *logger.Logger, m *metrics.BookingMetrics) (*Protocol, error) {
	if store == nil {
		return nil, fmt.Errorf("inventory store required")
	}
	if maxAttempts <= 0 {
		maxAttempts = 4
	}
	if baseDelay <= 0 {
		baseDelay = 50 * time.Millisecond
	}
	return &Protocol{
		store:       store,
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		logg:        logg,
		metrics:     m,
	}, nil
}

// Store exposes the underlying backend for snapshot reads.
func (p *Protocol) Store() Store {
	return p.store
}

// Reserve atomically takes n seats from the table. Fails with
// ErrTableNotFound, ErrInsufficientSeats (no retry), or
// ErrVersionConflict once the retry budget is exhausted.
func (p *Protocol) Reserve(ctx context.Context, tableID, n int) error {
	if n <= 0 {
		return fmt.Errorf("seat count must be positive, got %d", n)
	}
	return p.adjust(ctx, tableID, -n)
}

// Release returns n seats to the table, clamped so seats_left never
// exceeds total. The clamp firing indicates a double release and is
// logged as a warning, not an error.
func (p *Protocol) Release(ctx context.Context, tableID, n int) error {
	if n <= 0 {
		return fmt.Errorf("seat count must be positive, got %d", n)
	}
	return p.adjust(ctx, tableID, n)
}

func (p *Protocol) adjust(ctx context.Context, tableID, delta int) error {
	if adjuster, ok := p.store.(Adjuster); ok {
		return adjuster.AdjustSeats(ctx, tableID, delta)
	}
	return p.adjustCAS(ctx, tableID, delta)
}

func (p *Protocol) adjustCAS(ctx context.Context, tableID, delta int) error {
	backoff := retry.WithMaxRetries(uint64(p.maxAttempts-1), retry.NewExponential(p.baseDelay))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		snap, err := p.store.ReadAll(ctx)
		if err != nil {
			return err
		}
		table, ok := snap.Tables[tableID]
		if !ok {
			return ErrTableNotFound
		}

		next := table.SeatsLeft + delta
		if next < 0 {
			return ErrInsufficientSeats
		}
		if next > table.Total {
			if p.logg != nil {
				ctx := p.logg.WithFields(ctx, map[string]any{
					"table_id":   tableID,
					"seats_left": table.SeatsLeft,
					"delta":      delta,
				})
				p.logg.Warn(ctx, "seat release clamped at table capacity")
			}
			next = table.Total
		}

		table.SeatsLeft = next
		tables := CloneTables(snap.Tables)
		tables[tableID] = table

		if err := p.store.WriteAll(ctx, tables, snap.Version); err != nil {
			if errors.Is(err, ErrVersionConflict) {
				p.metrics.ObserveCASRetry()
				return retry.RetryableError(err)
			}
			return err
		}
		return nil
	})
	return err
}
