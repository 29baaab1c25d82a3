package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linyucheng/seatbook-backend/internal/records"
)

type countingLister struct {
	calls   atomic.Int64
	delay   time.Duration
	entries []records.Reservation
}

func (l *countingLister) ListAll(context.Context) ([]records.Reservation, error) {
	l.calls.Add(1)
	if l.delay > 0 {
		time.Sleep(l.delay)
	}
	return l.entries, nil
}

func TestCacheRequiresSource(t *testing.T) {
	_, err := New(nil, time.Second, nil)
	assert.Error(t, err)
}

func TestCacheServesFromMemoryUntilTTL(t *testing.T) {
	ctx := context.Background()
	source := &countingLister{entries: []records.Reservation{{ID: "r-1"}}}
	c, err := New(source, time.Minute, nil)
	require.NoError(t, err)

	first, err := c.List(ctx)
	require.NoError(t, err)
	require.Len(t, first, 1)

	second, err := c.List(ctx)
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, int64(1), source.calls.Load())
}

func TestCacheRefreshesAfterTTL(t *testing.T) {
	ctx := context.Background()
	source := &countingLister{}
	c, err := New(source, time.Nanosecond, nil)
	require.NoError(t, err)

	_, err = c.List(ctx)
	require.NoError(t, err)
	time.Sleep(time.Millisecond)
	_, err = c.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), source.calls.Load())
}

func TestCacheInvalidateForcesRefresh(t *testing.T) {
	ctx := context.Background()
	source := &countingLister{}
	c, err := New(source, time.Minute, nil)
	require.NoError(t, err)

	_, err = c.List(ctx)
	require.NoError(t, err)
	c.Invalidate()
	_, err = c.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), source.calls.Load())
}

// gatedLister blocks its first read until released, returning the
// entries captured when the read began.
type gatedLister struct {
	mu      sync.Mutex
	entries []records.Reservation
	started chan struct{}
	release chan struct{}
	gated   atomic.Bool
}

func (l *gatedLister) ListAll(context.Context) ([]records.Reservation, error) {
	l.mu.Lock()
	out := make([]records.Reservation, len(l.entries))
	copy(out, l.entries)
	l.mu.Unlock()
	if l.gated.CompareAndSwap(true, false) {
		close(l.started)
		<-l.release
	}
	return out, nil
}

func (l *gatedLister) add(rec records.Reservation) {
	l.mu.Lock()
	l.entries = append(l.entries, rec)
	l.mu.Unlock()
}

func TestCacheRefreshRacingInvalidateIsNotKept(t *testing.T) {
	ctx := context.Background()
	source := &gatedLister{started: make(chan struct{}), release: make(chan struct{})}
	source.gated.Store(true)
	c, err := New(source, time.Minute, nil)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = c.List(ctx)
	}()
	<-source.started

	// A booking lands while the refresh is still reading the old state.
	source.add(records.Reservation{ID: "r-1"})
	c.Invalidate()

	close(source.release)
	<-done

	got, err := c.List(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 1, "listing after Invalidate must reflect the booking")
}

func TestCacheCollapsesConcurrentRefreshes(t *testing.T) {
	ctx := context.Background()
	source := &countingLister{delay: 20 * time.Millisecond}
	c, err := New(source, time.Minute, nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.List(ctx)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(1), source.calls.Load())
}

func TestCacheReturnsCopies(t *testing.T) {
	ctx := context.Background()
	source := &countingLister{entries: []records.Reservation{{ID: "r-1", HolderName: "Ada"}}}
	c, err := New(source, time.Minute, nil)
	require.NoError(t, err)

	first, err := c.List(ctx)
	require.NoError(t, err)
	first[0].HolderName = "mutated"

	second, err := c.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Ada", second[0].HolderName)
}
