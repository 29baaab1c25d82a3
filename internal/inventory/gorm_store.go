package inventory

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/linyucheng/seatbook-backend/pkg/logger"
)

// TableRow is the relational mapping for one inventory table.
type TableRow struct {
	ID        int       `gorm:"column:id;primaryKey"`
	Name      string    `gorm:"column:name;not null;default:''"`
	Total     int       `gorm:"column:total;not null;default:10"`
	SeatsLeft int       `gorm:"column:seats_left;not null;default:10"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

// TableName pins the goose-managed table name.
func (TableRow) TableName() string { return "tables" }

func (r TableRow) state() TableState {
	return TableState{ID: r.ID, Name: r.Name, Total: r.Total, SeatsLeft: r.SeatsLeft}
}

type txRunner interface {
	DB() *gorm.DB
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// GormStore keeps inventory in the relational backend. Its native
// adjustment path is a single conditional UPDATE, the strongest
// guarantee of the three backends.
type GormStore struct {
	client txRunner
	logg   *logger.Logger
}

// NewGormStore binds the store to a database client.
func NewGormStore(client txRunner, logg *logger.Logger) *GormStore {
	return &GormStore{client: client, logg: logg}
}

func (s *GormStore) ReadAll(ctx context.Context) (Snapshot, error) {
	var rows []TableRow
	if err := s.client.DB().WithContext(ctx).Order("id").Find(&rows).Error; err != nil {
		return Snapshot{}, err
	}
	tables := make(map[int]TableState, len(rows))
	for _, row := range rows {
		tables[row.ID] = row.state()
	}
	return Snapshot{Tables: tables, Version: Fingerprint(tables)}, nil
}

// WriteAll replaces the inventory inside one transaction. The version
// check is a fingerprint comparison against a re-read of the rows, so
// the compare and the swap commit together.
func (s *GormStore) WriteAll(ctx context.Context, tables map[int]TableState, expectedVersion string) error {
	return s.client.WithTx(ctx, func(tx *gorm.DB) error {
		var rows []TableRow
		if err := tx.Order("id").Find(&rows).Error; err != nil {
			return err
		}
		current := make(map[int]TableState, len(rows))
		for _, row := range rows {
			current[row.ID] = row.state()
		}
		if Fingerprint(current) != expectedVersion {
			return ErrVersionConflict
		}

		now := time.Now()
		for _, state := range tables {
			row := TableRow{
				ID:        state.ID,
				Name:      state.Name,
				Total:     state.Total,
				SeatsLeft: state.SeatsLeft,
				UpdatedAt: now,
			}
			if err := tx.Save(&row).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// AdjustSeats applies the delta with one conditional UPDATE. Decrements
// are guarded by seats_left >= n; increments clamp at total in SQL so
// the invariant holds even under concurrent releases.
func (s *GormStore) AdjustSeats(ctx context.Context, tableID, delta int) error {
	if delta == 0 {
		return nil
	}
	conn := s.client.DB().WithContext(ctx)

	if delta < 0 {
		take := -delta
		res := conn.Model(&TableRow{}).
			Where("id = ? AND seats_left >= ?", tableID, take).
			Updates(map[string]any{
				"seats_left": gorm.Expr("seats_left - ?", take),
				"updated_at": time.Now(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return s.classifyRejection(ctx, tableID)
		}
		return nil
	}

	s.warnIfClamping(ctx, tableID, delta)
	res := conn.Model(&TableRow{}).
		Where("id = ?", tableID).
		Updates(map[string]any{
			"seats_left": gorm.Expr("CASE WHEN seats_left + ? > total THEN total ELSE seats_left + ? END", delta, delta),
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrTableNotFound
	}
	return nil
}

func (s *GormStore) classifyRejection(ctx context.Context, tableID int) error {
	var count int64
	if err := s.client.DB().WithContext(ctx).Model(&TableRow{}).Where("id = ?", tableID).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return ErrTableNotFound
	}
	return ErrInsufficientSeats
}

// warnIfClamping is advisory only; the SQL clamp is what protects the
// invariant.
func (s *GormStore) warnIfClamping(ctx context.Context, tableID, delta int) {
	if s.logg == nil {
		return
	}
	var row TableRow
	if err := s.client.DB().WithContext(ctx).Where("id = ?", tableID).First(&row).Error; err != nil {
		return
	}
	if row.SeatsLeft+delta > row.Total {
		lctx := s.logg.WithFields(ctx, map[string]any{
			"table_id":   tableID,
			"seats_left": row.SeatsLeft,
			"delta":      delta,
		})
		s.logg.Warn(lctx, "seat release clamped at table capacity")
	}
}

// Seed creates tables 1..tableCount when the inventory is empty.
func (s *GormStore) Seed(ctx context.Context, tableCount, seatsPerTable int) (bool, error) {
	var count int64
	if err := s.client.DB().WithContext(ctx).Model(&TableRow{}).Count(&count).Error; err != nil {
		return false, err
	}
	if count > 0 {
		return false, nil
	}

	now := time.Now()
	rows := make([]TableRow, 0, tableCount)
	for _, state := range SeedTables(tableCount, seatsPerTable) {
		rows = append(rows, TableRow{
			ID:        state.ID,
			Name:      state.Name,
			Total:     state.Total,
			SeatsLeft: state.SeatsLeft,
			UpdatedAt: now,
		})
	}
	if err := s.client.DB().WithContext(ctx).Create(&rows).Error; err != nil {
		return false, err
	}
	return true, nil
}
