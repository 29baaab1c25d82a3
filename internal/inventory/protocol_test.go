package inventory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProtocol(t *testing.T, store Store) *Protocol {
	t.Helper()
	p, err := NewProtocol(store, 4, time.Millisecond, nil, nil)
	require.NoError(t, err)
	return p
}

func seededMemStore(t *testing.T, tableCount, seats int) *MemStore {
	t.Helper()
	store := NewMemStore()
	created, err := store.Seed(context.Background(), tableCount, seats)
	require.NoError(t, err)
	require.True(t, created)
	return store
}

func TestNewProtocolRequiresStore(t *testing.T) {
	_, err := NewProtocol(nil, 4, time.Millisecond, nil, nil)
	assert.Error(t, err)
}

func TestReserveTakesSeats(t *testing.T) {
	store := seededMemStore(t, 3, 10)
	p := newTestProtocol(t, store)

	require.NoError(t, p.Reserve(context.Background(), 2, 3))

	snap, err := store.ReadAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, snap.Tables[2].SeatsLeft)
	assert.Equal(t, 10, snap.Tables[1].SeatsLeft)
}

func TestReserveRejectsNonPositive(t *testing.T) {
	p := newTestProtocol(t, seededMemStore(t, 1, 10))
	assert.Error(t, p.Reserve(context.Background(), 1, 0))
	assert.Error(t, p.Release(context.Background(), 1, -2))
}

func TestReserveUnknownTable(t *testing.T) {
	p := newTestProtocol(t, seededMemStore(t, 3, 10))
	err := p.Reserve(context.Background(), 99, 1)
	assert.ErrorIs(t, err, ErrTableNotFound)
}

func TestReserveInsufficientSeatsNotRetried(t *testing.T) {
	store := seededMemStore(t, 1, 2)
	p := newTestProtocol(t, store)

	err := p.Reserve(context.Background(), 1, 3)
	assert.ErrorIs(t, err, ErrInsufficientSeats)

	// A shortage must fail fast, not burn the retry budget.
	snap, err := store.ReadAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, snap.Tables[1].SeatsLeft)
}

func TestReserveRetriesThroughConflicts(t *testing.T) {
	store := seededMemStore(t, 1, 10)
	store.FailWrites = 2
	p := newTestProtocol(t, store)

	require.NoError(t, p.Reserve(context.Background(), 1, 4))

	snap, err := store.ReadAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 6, snap.Tables[1].SeatsLeft)
}

func TestReserveExhaustsRetryBudget(t *testing.T) {
	store := seededMemStore(t, 1, 10)
	store.FailWrites = 100
	p := newTestProtocol(t, store)

	err := p.Reserve(context.Background(), 1, 1)
	assert.ErrorIs(t, err, ErrVersionConflict)
}

func TestReleaseClampsAtCapacity(t *testing.T) {
	store := seededMemStore(t, 1, 10)
	p := newTestProtocol(t, store)

	require.NoError(t, p.Reserve(context.Background(), 1, 2))
	require.NoError(t, p.Release(context.Background(), 1, 5))

	snap, err := store.ReadAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10, snap.Tables[1].SeatsLeft)
}

func TestConcurrentReservesNeverOversell(t *testing.T) {
	const seats = 10
	store := seededMemStore(t, 1, seats)
	p, err := NewProtocol(store, 50, time.Millisecond, nil, nil)
	require.NoError(t, err)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		won  int
		lost int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := p.Reserve(context.Background(), 1, 3)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				won++
			case errors.Is(err, ErrInsufficientSeats):
				lost++
			default:
				t.Errorf("unexpected reserve error: %v", err)
			}
		}()
	}
	wg.Wait()

	snap, err := store.ReadAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, seats-won*3, snap.Tables[1].SeatsLeft)
	assert.GreaterOrEqual(t, snap.Tables[1].SeatsLeft, 0)
	assert.Equal(t, 20, won+lost)
}

type adjusterStore struct {
	*MemStore
	calls int
}

func (a *adjusterStore) AdjustSeats(ctx context.Context, tableID, delta int) error {
	a.calls++
	snap, err := a.ReadAll(ctx)
	if err != nil {
		return err
	}
	table, ok := snap.Tables[tableID]
	if !ok {
		return ErrTableNotFound
	}
	if table.SeatsLeft+delta < 0 {
		return ErrInsufficientSeats
	}
	table.SeatsLeft += delta
	snap.Tables[tableID] = table
	return a.WriteAll(ctx, snap.Tables, snap.Version)
}

func TestAdjusterShortCircuitsCASLoop(t *testing.T) {
	store := &adjusterStore{MemStore: seededMemStore(t, 1, 10)}
	p := newTestProtocol(t, store)

	require.NoError(t, p.Reserve(context.Background(), 1, 2))
	assert.Equal(t, 1, store.calls)
}
