package inventory

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// TableState is one table's seat counters inside the inventory snapshot.
type TableState struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	Total     int    `json:"total"`
	SeatsLeft int    `json:"seats_left"`
}

// Snapshot is the full inventory plus the opaque version token it was read at.
type Snapshot struct {
	Tables  map[int]TableState
	Version string
}

var (
	// ErrVersionConflict signals the persisted inventory moved past the
	// version a write was conditioned on. Retryable.
	ErrVersionConflict = errors.New("inventory version conflict")
	// ErrTableNotFound signals an unknown table id.
	ErrTableNotFound = errors.New("table not found")
	// ErrInsufficientSeats signals a legitimate business rejection, never retried.
	ErrInsufficientSeats = errors.New("insufficient seats")
)

// Store is the minimal capability every inventory backend provides: a
// versioned snapshot read and a conditional whole-snapshot replace.
type Store interface {
	ReadAll(ctx context.Context) (Snapshot, error)
	WriteAll(ctx context.Context, tables map[int]TableState, expectedVersion string) error
}

// Adjuster is the optional fast path for backends with a native atomic
// conditional update (single-statement SQL, DynamoDB condition expressions).
// AdjustSeats must fail with ErrInsufficientSeats when delta would push
// seats_left below zero, and must clamp at total when releasing.
type Adjuster interface {
	AdjustSeats(ctx context.Context, tableID, delta int) error
}

// Seeder is implemented by backends that can bootstrap an empty inventory.
type Seeder interface {
	Seed(ctx context.Context, tableCount, seatsPerTable int) (bool, error)
}

// Fingerprint derives a deterministic version token from table states.
// Backends without a storage-native version marker (relational rows)
// use it as their CAS token.
func Fingerprint(tables map[int]TableState) string {
	ids := make([]int, 0, len(tables))
	for id := range tables {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	var b strings.Builder
	for _, id := range ids {
		t := tables[id]
		fmt.Fprintf(&b, "%d|%s|%d|%d\n", t.ID, t.Name, t.Total, t.SeatsLeft)
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// CloneTables deep-copies a snapshot's table map before local mutation.
func CloneTables(tables map[int]TableState) map[int]TableState {
	out := make(map[int]TableState, len(tables))
	for id, t := range tables {
		out[id] = t
	}
	return out
}

// SeedTables builds the bootstrap inventory: tables 1..count with every
// seat free.
func SeedTables(count, seatsPerTable int) map[int]TableState {
	tables := make(map[int]TableState, count)
	for i := 1; i <= count; i++ {
		tables[i] = TableState{
			ID:        i,
			Name:      fmt.Sprintf("Table %d", i),
			Total:     seatsPerTable,
			SeatsLeft: seatsPerTable,
		}
	}
	return tables
}
