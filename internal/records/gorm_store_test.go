package records

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type testDBProvider struct {
	db *gorm.DB
}

func (p *testDBProvider) DB() *gorm.DB { return p.db }

func newSQLiteStore(t *testing.T) *GormStore {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&ReservationRow{}))
	require.NoError(t, db.Exec("DELETE FROM reservations").Error)
	return NewGormStore(&testDBProvider{db: db})
}

func sampleReservation(id string) *Reservation {
	now := time.Now().Truncate(time.Second)
	return &Reservation{
		ID:          id,
		TableID:     12,
		SeatsTaken:  2,
		HolderName:  "Ada",
		LoginID:     "ada01",
		BookingDate: "2026-08-29",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestGormStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStore(t)

	rec := sampleReservation("r-1")
	require.NoError(t, store.Create(ctx, rec))

	got, err := store.Get(ctx, "r-1")
	require.NoError(t, err)
	assert.Equal(t, rec.TableID, got.TableID)
	assert.Equal(t, rec.LoginID, got.LoginID)
	assert.Equal(t, rec.BookingDate, got.BookingDate)

	got.HolderName = "Grace"
	got.SeatsTaken = 3
	require.NoError(t, store.Update(ctx, got))

	got, err = store.Get(ctx, "r-1")
	require.NoError(t, err)
	assert.Equal(t, "Grace", got.HolderName)
	assert.Equal(t, 3, got.SeatsTaken)

	require.NoError(t, store.Delete(ctx, got))
	_, err = store.Get(ctx, "r-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGormStoreUpdateMissing(t *testing.T) {
	store := newSQLiteStore(t)
	err := store.Update(context.Background(), sampleReservation("ghost"))
	assert.ErrorIs(t, err, ErrNotFound)
	err = store.Delete(context.Background(), sampleReservation("ghost"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGormStoreExistsLoginIsCaseInsensitive(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStore(t)
	require.NoError(t, store.Create(ctx, sampleReservation("r-1")))

	exists, err := store.ExistsLogin(ctx, "ADA01")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = store.ExistsLogin(ctx, "someone-else")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestGormStoreListAllOrdersByCreation(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStore(t)

	first := sampleReservation("r-1")
	second := sampleReservation("r-2")
	second.LoginID = "grace02"
	second.CreatedAt = first.CreatedAt.Add(time.Minute)
	require.NoError(t, store.Create(ctx, first))
	require.NoError(t, store.Create(ctx, second))

	all, err := store.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "r-1", all[0].ID)
	assert.Equal(t, "r-2", all[1].ID)
}
