package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/linyucheng/seatbook-backend/api/controllers"
	"github.com/linyucheng/seatbook-backend/api/middleware"
	"github.com/linyucheng/seatbook-backend/internal/booking"
	"github.com/linyucheng/seatbook-backend/pkg/config"
	"github.com/linyucheng/seatbook-backend/pkg/logger"
	"github.com/linyucheng/seatbook-backend/pkg/redis"
)

// NewRouter wires every endpoint to the booking coordinator. The
// readiness map carries whichever dependencies the selected backend
// actually uses.
func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	svc *booking.Service,
	redisClient *redis.Client,
	readiness map[string]controllers.Pinger,
	registry *prometheus.Registry,
) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, readiness))
	})

	if registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/tables", func(r chi.Router) {
			r.Get("/", controllers.ListTables(svc, logg))
			r.Get("/status", controllers.TableStatus(svc, logg))
		})

		r.Route("/reservations", func(r chi.Router) {
			r.Get("/", controllers.ListReservations(svc, logg))
			r.Get("/export", controllers.ExportReservations(svc, logg))
			r.Get("/{id}", controllers.GetReservation(svc, logg))

			r.Group(func(r chi.Router) {
				if redisClient != nil {
					r.Use(middleware.RateLimit(cfg.RateLimit, redisClient, logg))
				}
				r.Post("/", controllers.CreateReservation(svc, logg))
				r.Put("/{id}", controllers.UpdateReservation(svc, logg))
				r.Delete("/{id}", controllers.DeleteReservation(svc, logg))
			})
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.AdminAuth(cfg.JWT, logg))
		r.Post("/resync", controllers.Resync(svc, logg))
	})

	return r
}
