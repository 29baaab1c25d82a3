// Package booking coordinates reservations across the inventory store,
// the record store, the idempotency ledger, and the listing cache. All
// seat mutations flow through here so the compensation edges stay in
// one place.
package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/linyucheng/seatbook-backend/internal/inventory"
	"github.com/linyucheng/seatbook-backend/internal/records"
	pkgerrors "github.com/linyucheng/seatbook-backend/pkg/errors"
	"github.com/linyucheng/seatbook-backend/pkg/logger"
	"github.com/linyucheng/seatbook-backend/pkg/metrics"
)

const defaultHolderName = "Guest"

// seatProtocol is the seat adjustment surface of the inventory package.
type seatProtocol interface {
	Reserve(ctx context.Context, tableID, n int) error
	Release(ctx context.Context, tableID, n int) error
	Store() inventory.Store
}

// idempotencyLedger is the ledger surface; absent ledgers are not
// allowed, tokens are optional per request instead.
type idempotencyLedger interface {
	Lookup(ctx context.Context, token string) (string, bool, error)
	Remember(ctx context.Context, token, reservationID string) (bool, error)
}

// listingCache is the read-through reservation listing.
type listingCache interface {
	List(ctx context.Context) ([]records.Reservation, error)
	Invalidate()
}

// Service is the reservation coordinator.
type Service struct {
	seats  seatProtocol
	recs   records.Store
	ledger idempotencyLedger
	cache  listingCache
	logg   *logger.Logger
	m      *metrics.BookingMetrics

	maxPerBooking int
	storeTimeout  time.Duration
	loc           *time.Location
	now           func() time.Time
	newID         func() string
}

// Options bundles the coordinator knobs.
type Options struct {
	MaxPerBooking int
	StoreTimeout  time.Duration
	Location      *time.Location
}

// NewService wires the coordinator. Every collaborator is required.
func NewService(seats seatProtocol, recs records.Store, ledg idempotencyLedger, listing listingCache, logg *logger.Logger, m *metrics.BookingMetrics, opts Options) (*Service, error) {
	if seats == nil {
		return nil, fmt.Errorf("seat protocol required")
	}
	if recs == nil {
		return nil, fmt.Errorf("record store required")
	}
	if ledg == nil {
		return nil, fmt.Errorf("idempotency ledger required")
	}
	if listing == nil {
		return nil, fmt.Errorf("listing cache required")
	}
	if opts.MaxPerBooking <= 0 {
		opts.MaxPerBooking = 3
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = 5 * time.Second
	}
	if opts.Location == nil {
		opts.Location = time.FixedZone("UTC+8", 8*60*60)
	}
	return &Service{
		seats:         seats,
		recs:          recs,
		ledger:        ledg,
		cache:         listing,
		logg:          logg,
		m:             m,
		maxPerBooking: opts.MaxPerBooking,
		storeTimeout:  opts.StoreTimeout,
		loc:           opts.Location,
		now:           time.Now,
		newID:         newReservationID,
	}, nil
}

// opCtx bounds the store interactions of one coordinator operation so
// a hung backend cannot pin a request forever.
func (s *Service) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.storeTimeout)
}

// seatError translates inventory sentinels into the API taxonomy.
func seatError(err error) error {
	switch {
	case err == nil:
		return nil
	case pkgerrors.As(err) != nil:
		return err
	case errors.Is(err, inventory.ErrTableNotFound):
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "table not found")
	case errors.Is(err, inventory.ErrInsufficientSeats):
		return pkgerrors.Wrap(pkgerrors.CodeInsufficientSeats, err, "not enough seats left")
	case errors.Is(err, inventory.ErrVersionConflict):
		return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "inventory update contention")
	default:
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "inventory store failure")
	}
}

// existsLogin answers the case-insensitive uniqueness check, preferring
// a backend login index over a listing scan. excludeID skips the record
// being updated.
func (s *Service) existsLogin(ctx context.Context, loginID, excludeID string) (bool, error) {
	if excludeID == "" {
		if lookup, ok := s.recs.(records.LoginLookup); ok {
			return lookup.ExistsLogin(ctx, loginID)
		}
	}
	all, err := s.cache.List(ctx)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "listing reservations")
	}
	needle := records.NormalizeLogin(loginID)
	for _, rec := range all {
		if rec.ID == excludeID {
			continue
		}
		if records.NormalizeLogin(rec.LoginID) == needle {
			return true, nil
		}
	}
	return false, nil
}

func (s *Service) observe(operation string, err error) {
	result := "success"
	if err != nil {
		result = "error"
		if typed := pkgerrors.As(err); typed != nil {
			result = string(typed.Code())
		}
	}
	s.m.ObserveBooking(operation, result)
}
