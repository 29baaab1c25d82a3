package records

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

// ReservationRow is the relational mapping for one reservation record.
type ReservationRow struct {
	ID          string    `gorm:"column:id;primaryKey"`
	TableID     int       `gorm:"column:table_id;not null;index"`
	SeatsTaken  int       `gorm:"column:seats_taken;not null"`
	HolderName  string    `gorm:"column:holder_name;not null;default:'Guest'"`
	LoginID     string    `gorm:"column:login_id;not null;index"`
	BookingDate string    `gorm:"column:booking_date;not null;index"`
	CreatedAt   time.Time `gorm:"column:created_at"`
	UpdatedAt   time.Time `gorm:"column:updated_at"`
}

// TableName pins the goose-managed table name.
func (ReservationRow) TableName() string { return "reservations" }

func (r ReservationRow) record() Reservation {
	return Reservation{
		ID:          r.ID,
		TableID:     r.TableID,
		SeatsTaken:  r.SeatsTaken,
		HolderName:  r.HolderName,
		LoginID:     r.LoginID,
		BookingDate: r.BookingDate,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

func rowFrom(rec *Reservation) ReservationRow {
	return ReservationRow{
		ID:          rec.ID,
		TableID:     rec.TableID,
		SeatsTaken:  rec.SeatsTaken,
		HolderName:  rec.HolderName,
		LoginID:     rec.LoginID,
		BookingDate: rec.BookingDate,
		CreatedAt:   rec.CreatedAt,
		UpdatedAt:   rec.UpdatedAt,
	}
}

type dbProvider interface {
	DB() *gorm.DB
}

// GormStore keeps reservation records in the relational backend.
type GormStore struct {
	client dbProvider
}

// NewGormStore binds the store to a database client.
func NewGormStore(client dbProvider) *GormStore {
	return &GormStore{client: client}
}

func (s *GormStore) Create(ctx context.Context, rec *Reservation) error {
	row := rowFrom(rec)
	return s.client.DB().WithContext(ctx).Create(&row).Error
}

func (s *GormStore) Get(ctx context.Context, id string) (*Reservation, error) {
	var row ReservationRow
	err := s.client.DB().WithContext(ctx).Where("id = ?", id).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	rec := row.record()
	return &rec, nil
}

func (s *GormStore) Update(ctx context.Context, rec *Reservation) error {
	row := rowFrom(rec)
	res := s.client.DB().WithContext(ctx).Model(&ReservationRow{}).
		Where("id = ?", rec.ID).
		Updates(map[string]any{
			"table_id":     row.TableID,
			"seats_taken":  row.SeatsTaken,
			"holder_name":  row.HolderName,
			"login_id":     row.LoginID,
			"booking_date": row.BookingDate,
			"updated_at":   row.UpdatedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) Delete(ctx context.Context, rec *Reservation) error {
	res := s.client.DB().WithContext(ctx).Where("id = ?", rec.ID).Delete(&ReservationRow{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) ListAll(ctx context.Context) ([]Reservation, error) {
	var rows []ReservationRow
	if err := s.client.DB().WithContext(ctx).Order("created_at").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]Reservation, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.record())
	}
	return out, nil
}

// ExistsLogin answers the case-insensitive uniqueness check with one
// indexed query.
func (s *GormStore) ExistsLogin(ctx context.Context, loginID string) (bool, error) {
	var count int64
	err := s.client.DB().WithContext(ctx).Model(&ReservationRow{}).
		Where("LOWER(login_id) = ?", NormalizeLogin(loginID)).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
