package booking

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"sort"

	"github.com/linyucheng/seatbook-backend/internal/records"
	pkgerrors "github.com/linyucheng/seatbook-backend/pkg/errors"
	"github.com/linyucheng/seatbook-backend/pkg/pagination"
)

// ListTables returns every table with its remaining seats.
func (s *Service) ListTables(ctx context.Context) ([]Table, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	snap, err := s.seats.Store().ReadAll(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reading inventory")
	}
	return tableDTOs(snap.Tables), nil
}

// TableStatus returns every table with the bookings held at it.
func (s *Service) TableStatus(ctx context.Context) ([]TableStatus, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	snap, err := s.seats.Store().ReadAll(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reading inventory")
	}
	all, err := s.cache.List(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "listing reservations")
	}

	byTable := map[int][]records.Reservation{}
	for _, rec := range all {
		byTable[rec.TableID] = append(byTable[rec.TableID], rec)
	}

	out := make([]TableStatus, 0, len(snap.Tables))
	for _, table := range tableDTOs(snap.Tables) {
		recs := byTable[table.ID]
		sort.Slice(recs, func(i, j int) bool { return recs[i].CreatedAt.Before(recs[j].CreatedAt) })
		resvs := make([]TableReservation, 0, len(recs))
		for _, rec := range recs {
			resvs = append(resvs, TableReservation{Name: rec.HolderName, Seats: rec.SeatsTaken})
		}
		out = append(out, TableStatus{Table: table, Reservations: resvs})
	}
	return out, nil
}

// ListReservations returns one page of reservations, newest last,
// optionally filtered to a table.
func (s *Service) ListReservations(ctx context.Context, params pagination.Params, tableID *int) (ReservationPage, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	all, err := s.cache.List(ctx)
	if err != nil {
		return ReservationPage{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "listing reservations")
	}

	filtered := make([]records.Reservation, 0, len(all))
	for _, rec := range all {
		if tableID != nil && rec.TableID != *tableID {
			continue
		}
		filtered = append(filtered, rec)
	}
	sort.Slice(filtered, func(i, j int) bool {
		if filtered[i].CreatedAt.Equal(filtered[j].CreatedAt) {
			return filtered[i].ID < filtered[j].ID
		}
		return filtered[i].CreatedAt.Before(filtered[j].CreatedAt)
	})

	params = pagination.Normalize(params)
	page := pagination.Slice(filtered, params)
	items := make([]Reservation, 0, len(page))
	for i := range page {
		items = append(items, s.reservationDTO(&page[i]))
	}

	totalPages := (len(filtered) + params.PageSize - 1) / params.PageSize
	return ReservationPage{
		Items:      items,
		Total:      len(filtered),
		Page:       params.Page,
		PageSize:   params.PageSize,
		TotalPages: totalPages,
	}, nil
}

// ExportCSV writes every reservation as CSV, optionally restricted to
// one table. The export reads the record store directly so it never
// serves a stale cache entry.
func (s *Service) ExportCSV(ctx context.Context, w io.Writer, tableID *int) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	all, err := s.recs.ListAll(ctx)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "listing reservations for export")
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.Before(all[j].CreatedAt) })

	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"id", "table_id", "seats_taken", "employee_name", "login_id", "created_at"}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "writing export header")
	}
	for i := range all {
		rec := &all[i]
		if tableID != nil && rec.TableID != *tableID {
			continue
		}
		row := []string{
			rec.ID,
			fmt.Sprintf("%d", rec.TableID),
			fmt.Sprintf("%d", rec.SeatsTaken),
			rec.HolderName,
			rec.LoginID,
			s.renderTime(rec.CreatedAt),
		}
		if err := writer.Write(row); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "writing export row")
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "flushing export")
	}
	return nil
}

// ExportFilename names the CSV attachment after the current civil date.
func (s *Service) ExportFilename() string {
	return fmt.Sprintf("reservations_%s.csv", s.now().In(s.loc).Format("2006-01-02"))
}
