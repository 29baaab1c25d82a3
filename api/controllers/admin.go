package controllers

import (
	"context"
	"net/http"

	"github.com/linyucheng/seatbook-backend/api/responses"
	"github.com/linyucheng/seatbook-backend/internal/booking"
	"github.com/linyucheng/seatbook-backend/pkg/logger"
)

// AdminService is the admin-facing slice of the booking coordinator.
type AdminService interface {
	Resync(ctx context.Context) (booking.ResyncReport, error)
}

// Resync triggers one drift-repair pass over the inventory.
func Resync(svc AdminService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, err := svc.Resync(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, report)
	}
}
