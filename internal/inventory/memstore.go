package inventory

import (
	"context"
	"strconv"
	"sync"
)

// MemStore is an in-process inventory store with real CAS semantics,
// used by the concurrency tests.
type MemStore struct {
	mu      sync.Mutex
	tables  map[int]TableState
	version uint64

	// FailWrites forces the next N conditional writes to report a
	// version conflict, for exercising the retry budget in tests.
	FailWrites int
}

// NewMemStore returns an empty in-memory inventory.
func NewMemStore() *MemStore {
	return &MemStore{tables: map[int]TableState{}}
}

func (m *MemStore) ReadAll(_ context.Context) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		Tables:  CloneTables(m.tables),
		Version: strconv.FormatUint(m.version, 10),
	}, nil
}

func (m *MemStore) WriteAll(_ context.Context, tables map[int]TableState, expectedVersion string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites > 0 {
		m.FailWrites--
		return ErrVersionConflict
	}
	if expectedVersion != strconv.FormatUint(m.version, 10) {
		return ErrVersionConflict
	}
	m.tables = CloneTables(tables)
	m.version++
	return nil
}

func (m *MemStore) Seed(_ context.Context, tableCount, seatsPerTable int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.tables) > 0 {
		return false, nil
	}
	m.tables = SeedTables(tableCount, seatsPerTable)
	m.version++
	return true, nil
}
