package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linyucheng/seatbook-backend/pkg/redis"
)

type stubKV struct {
	entries map[string]string
	ttls    map[string]time.Duration
	getErr  error
}

func newStubKV() *stubKV {
	return &stubKV{entries: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (s *stubKV) Get(_ context.Context, key string) (string, error) {
	if s.getErr != nil {
		return "", s.getErr
	}
	value, ok := s.entries[key]
	if !ok {
		return "", redis.Nil
	}
	return value, nil
}

func (s *stubKV) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if _, ok := s.entries[key]; ok {
		return false, nil
	}
	s.entries[key] = value.(string)
	s.ttls[key] = ttl
	return true, nil
}

func (s *stubKV) IdempotencyKey(token string) string {
	return "sb:idempotency:" + token
}

func TestLedgerRequiresStore(t *testing.T) {
	_, err := New(nil, time.Hour)
	assert.Error(t, err)
}

func TestLedgerRoundTrip(t *testing.T) {
	ctx := context.Background()
	kv := newStubKV()
	l, err := New(kv, time.Hour)
	require.NoError(t, err)

	_, found, err := l.Lookup(ctx, "tok-1")
	require.NoError(t, err)
	assert.False(t, found)

	created, err := l.Remember(ctx, "tok-1", "res-42")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, time.Hour, kv.ttls["sb:idempotency:tok-1"])

	id, found, err := l.Lookup(ctx, "tok-1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "res-42", id)
}

func TestLedgerFirstWriterWins(t *testing.T) {
	ctx := context.Background()
	l, err := New(newStubKV(), time.Hour)
	require.NoError(t, err)

	created, err := l.Remember(ctx, "tok", "res-1")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = l.Remember(ctx, "tok", "res-2")
	require.NoError(t, err)
	assert.False(t, created)

	id, _, err := l.Lookup(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, "res-1", id)
}

func TestLedgerDefaultTTL(t *testing.T) {
	kv := newStubKV()
	l, err := New(kv, 0)
	require.NoError(t, err)

	_, err = l.Remember(context.Background(), "tok", "res")
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, kv.ttls["sb:idempotency:tok"])
}
