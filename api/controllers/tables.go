package controllers

import (
	"context"
	"net/http"

	"github.com/linyucheng/seatbook-backend/api/responses"
	"github.com/linyucheng/seatbook-backend/internal/booking"
	"github.com/linyucheng/seatbook-backend/pkg/logger"
)

// TablesService is the table-facing slice of the booking coordinator.
type TablesService interface {
	ListTables(ctx context.Context) ([]booking.Table, error)
	TableStatus(ctx context.Context) ([]booking.TableStatus, error)
}

func ListTables(svc TablesService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tables, err := svc.ListTables(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, tables)
	}
}

func TableStatus(svc TablesService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, err := svc.TableStatus(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, status)
	}
}
