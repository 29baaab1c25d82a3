package booking

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/linyucheng/seatbook-backend/internal/inventory"
	"github.com/linyucheng/seatbook-backend/internal/records"
)

const timestampLayout = "2006-01-02 15:04:05"

func newReservationID() string {
	return uuid.NewString()
}

// BookRequest carries a booking attempt. IdempotencyToken is optional;
// when present a replayed token returns the original reservation.
type BookRequest struct {
	TableID          int
	Seats            int
	EmployeeName     string
	LoginID          string
	IdempotencyToken string
}

// UpdateRequest carries a partial reservation update. Nil fields are
// left untouched.
type UpdateRequest struct {
	EmployeeName *string
	LoginID      *string
	Seats        *int
}

// Reservation is the API shape of a reservation record. Timestamps are
// rendered in the configured civil timezone.
type Reservation struct {
	ID           string `json:"id"`
	TableID      int    `json:"table_id"`
	Seats        int    `json:"seats_taken"`
	EmployeeName string `json:"employee_name"`
	LoginID      string `json:"login_id"`
	BookingDate  string `json:"booking_date"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
}

// BookResult is a booking outcome; Replayed marks an idempotent replay.
type BookResult struct {
	Reservation Reservation
	Replayed    bool
}

// Table is the API shape of one inventory table.
type Table struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	Total     int    `json:"total"`
	SeatsLeft int    `json:"seats_left"`
}

// TableReservation is one booking at a table, as shown in the status
// listing.
type TableReservation struct {
	Name  string `json:"name"`
	Seats int    `json:"seats"`
}

// TableStatus adds the bookings held at the table.
type TableStatus struct {
	Table
	Reservations []TableReservation `json:"reservations"`
}

// ReservationPage is one page of the reservation listing.
type ReservationPage struct {
	Items      []Reservation `json:"items"`
	Total      int           `json:"total"`
	Page       int           `json:"page"`
	PageSize   int           `json:"page_size"`
	TotalPages int           `json:"total_pages"`
}

// ResyncReport summarizes one drift-repair pass.
type ResyncReport struct {
	TablesChecked  int   `json:"tables_checked"`
	TablesAdjusted int   `json:"tables_adjusted"`
	AdjustedIDs    []int `json:"adjusted_table_ids"`
}

func (s *Service) reservationDTO(rec *records.Reservation) Reservation {
	return Reservation{
		ID:           rec.ID,
		TableID:      rec.TableID,
		Seats:        rec.SeatsTaken,
		EmployeeName: rec.HolderName,
		LoginID:      rec.LoginID,
		BookingDate:  rec.BookingDate,
		CreatedAt:    s.renderTime(rec.CreatedAt),
		UpdatedAt:    s.renderTime(rec.UpdatedAt),
	}
}

func (s *Service) renderTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.In(s.loc).Format(timestampLayout)
}

func tableDTOs(tables map[int]inventory.TableState) []Table {
	out := make([]Table, 0, len(tables))
	for _, state := range tables {
		out = append(out, Table{
			ID:        state.ID,
			Name:      state.Name,
			Total:     state.Total,
			SeatsLeft: state.SeatsLeft,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
