package inventory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type testTxRunner struct {
	db *gorm.DB
}

func (r *testTxRunner) DB() *gorm.DB { return r.db }

func (r *testTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

func newSQLiteStore(t *testing.T) *GormStore {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&TableRow{}))
	require.NoError(t, db.Exec("DELETE FROM tables").Error)
	return NewGormStore(&testTxRunner{db: db}, nil)
}

func TestGormStoreSeedAndRead(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStore(t)

	created, err := store.Seed(ctx, 5, 10)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = store.Seed(ctx, 5, 10)
	require.NoError(t, err)
	assert.False(t, created)

	snap, err := store.ReadAll(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Tables, 5)
	assert.Equal(t, "Table 3", snap.Tables[3].Name)
	assert.Equal(t, 10, snap.Tables[3].SeatsLeft)
	assert.NotEmpty(t, snap.Version)
}

func TestGormStoreAdjustSeats(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStore(t)
	_, err := store.Seed(ctx, 2, 10)
	require.NoError(t, err)

	require.NoError(t, store.AdjustSeats(ctx, 1, -3))

	snap, err := store.ReadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 7, snap.Tables[1].SeatsLeft)

	err = store.AdjustSeats(ctx, 1, -8)
	assert.ErrorIs(t, err, ErrInsufficientSeats)

	err = store.AdjustSeats(ctx, 42, -1)
	assert.ErrorIs(t, err, ErrTableNotFound)

	// Releases clamp at capacity instead of overflowing.
	require.NoError(t, store.AdjustSeats(ctx, 1, 50))
	snap, err = store.ReadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10, snap.Tables[1].SeatsLeft)
}

func TestGormStoreWriteAllVersionCheck(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStore(t)
	_, err := store.Seed(ctx, 2, 10)
	require.NoError(t, err)

	snap, err := store.ReadAll(ctx)
	require.NoError(t, err)

	tables := CloneTables(snap.Tables)
	state := tables[2]
	state.SeatsLeft = 4
	tables[2] = state
	require.NoError(t, store.WriteAll(ctx, tables, snap.Version))

	// The fingerprint captured before the write is stale now.
	err = store.WriteAll(ctx, tables, snap.Version)
	assert.ErrorIs(t, err, ErrVersionConflict)

	snap, err = store.ReadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, snap.Tables[2].SeatsLeft)
}
