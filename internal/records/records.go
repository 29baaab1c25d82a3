// Package records persists reservation records across the rotating
// storage backends. Records are partitioned by civil booking date; the
// seat counts themselves live in the inventory package.
package records

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrNotFound is returned when no record exists for an id.
var ErrNotFound = errors.New("reservation not found")

// Reservation is one booked table-and-seats record.
type Reservation struct {
	ID          string    `json:"id"`
	TableID     int       `json:"table_id"`
	SeatsTaken  int       `json:"seats_taken"`
	HolderName  string    `json:"holder_name"`
	LoginID     string    `json:"login_id"`
	BookingDate string    `json:"booking_date"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Store is the persistence surface for reservation records. Update and
// Delete take the full record because the S3 backend derives the object
// key from the booking date partition.
type Store interface {
	Create(ctx context.Context, r *Reservation) error
	Get(ctx context.Context, id string) (*Reservation, error)
	Update(ctx context.Context, r *Reservation) error
	Delete(ctx context.Context, r *Reservation) error
	ListAll(ctx context.Context) ([]Reservation, error)
}

// LoginLookup is an optional capability: backends with an index on the
// login id answer uniqueness checks without a full listing.
type LoginLookup interface {
	ExistsLogin(ctx context.Context, loginID string) (bool, error)
}

// NormalizeLogin folds a login id for case-insensitive comparison.
func NormalizeLogin(loginID string) string {
	return strings.ToLower(strings.TrimSpace(loginID))
}
