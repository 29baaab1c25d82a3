package controllers

import (
	"bytes"
	"context"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/linyucheng/seatbook-backend/api/responses"
	"github.com/linyucheng/seatbook-backend/api/validators"
	"github.com/linyucheng/seatbook-backend/internal/booking"
	"github.com/linyucheng/seatbook-backend/pkg/logger"
	"github.com/linyucheng/seatbook-backend/pkg/pagination"
)

const idempotencyHeader = "Idempotency-Key"

// ReservationsService is the reservation-facing slice of the booking
// coordinator.
type ReservationsService interface {
	Book(ctx context.Context, req booking.BookRequest) (booking.BookResult, error)
	GetReservation(ctx context.Context, id string) (booking.Reservation, error)
	UpdateDetails(ctx context.Context, id string, req booking.UpdateRequest) (booking.Reservation, error)
	Cancel(ctx context.Context, id string) error
	ListReservations(ctx context.Context, params pagination.Params, tableID *int) (booking.ReservationPage, error)
	ExportCSV(ctx context.Context, w io.Writer, tableID *int) error
	ExportFilename() string
}

type createReservationRequest struct {
	TableID      int    `json:"table_id" validate:"required,gt=0"`
	SeatsTaken   int    `json:"seats_taken" validate:"required,min=1"`
	EmployeeName string `json:"employee_name"`
	LoginID      string `json:"login_id" validate:"required"`
}

type updateReservationRequest struct {
	SeatsTaken   *int    `json:"seats_taken" validate:"omitempty,min=1"`
	EmployeeName *string `json:"employee_name"`
	LoginID      *string `json:"login_id" validate:"omitempty,min=1"`
}

func CreateReservation(svc ReservationsService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body createReservationRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Book(r.Context(), booking.BookRequest{
			TableID:          body.TableID,
			Seats:            body.SeatsTaken,
			EmployeeName:     body.EmployeeName,
			LoginID:          body.LoginID,
			IdempotencyToken: r.Header.Get(idempotencyHeader),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		status := http.StatusCreated
		if result.Replayed {
			status = http.StatusOK
		}
		responses.WriteSuccessStatus(w, status, result.Reservation)
	}
}

func GetReservation(svc ReservationsService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reservation, err := svc.GetReservation(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, reservation)
	}
}

func UpdateReservation(svc ReservationsService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body updateReservationRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		reservation, err := svc.UpdateDetails(r.Context(), chi.URLParam(r, "id"), booking.UpdateRequest{
			Seats:        body.SeatsTaken,
			EmployeeName: body.EmployeeName,
			LoginID:      body.LoginID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, reservation)
	}
}

func DeleteReservation(svc ReservationsService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.Cancel(r.Context(), chi.URLParam(r, "id")); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]bool{"cancelled": true})
	}
}

func ListReservations(svc ReservationsService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, err := validators.IntQuery(r, "page", 1)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		pageSize, err := validators.IntQuery(r, "page_size", pagination.DefaultPageSize)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		tableID, err := validators.OptionalIntQuery(r, "table_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.ListReservations(r.Context(), pagination.Params{Page: page, PageSize: pageSize}, tableID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// ExportReservations serves the CSV export as an attachment, optionally
// filtered to one table.
func ExportReservations(svc ReservationsService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tableID, err := validators.OptionalIntQuery(r, "table_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		// Build the document before committing headers so a store
		// failure still answers with the error envelope instead of a
		// truncated 200.
		var buf bytes.Buffer
		if err := svc.ExportCSV(r.Context(), &buf, tableID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="`+svc.ExportFilename()+`"`)
		if _, err := w.Write(buf.Bytes()); err != nil && logg != nil {
			logg.Error(r.Context(), "writing csv export response", err)
		}
	}
}
