// Package app assembles the object graph shared by the API server and
// the resync job: config-selected storage backend, Redis, metrics, and
// the booking coordinator.
package app

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/linyucheng/seatbook-backend/internal/booking"
	"github.com/linyucheng/seatbook-backend/internal/cache"
	"github.com/linyucheng/seatbook-backend/internal/inventory"
	"github.com/linyucheng/seatbook-backend/internal/ledger"
	"github.com/linyucheng/seatbook-backend/internal/records"
	"github.com/linyucheng/seatbook-backend/pkg/awsx"
	"github.com/linyucheng/seatbook-backend/pkg/config"
	"github.com/linyucheng/seatbook-backend/pkg/db"
	"github.com/linyucheng/seatbook-backend/pkg/logger"
	"github.com/linyucheng/seatbook-backend/pkg/metrics"
	"github.com/linyucheng/seatbook-backend/pkg/migrate"
	"github.com/linyucheng/seatbook-backend/pkg/redis"
)

// App holds the wired dependencies for one process.
type App struct {
	Cfg      *config.Config
	Logg     *logger.Logger
	Service  *booking.Service
	DB       *db.Client
	Redis    *redis.Client
	Registry *prometheus.Registry
	Metrics  *metrics.BookingMetrics
}

// Bootstrap builds the full graph for the configured storage backend
// and seeds the inventory when it is empty.
func Bootstrap(ctx context.Context, cfg *config.Config, logg *logger.Logger) (*App, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	bookingMetrics := metrics.NewBookingMetrics(registry)

	redisClient, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("bootstrap redis: %w", err)
	}

	a := &App{
		Cfg:      cfg,
		Logg:     logg,
		Redis:    redisClient,
		Registry: registry,
		Metrics:  bookingMetrics,
	}

	invStore, recStore, err := a.buildStores(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	if seeder, ok := invStore.(inventory.Seeder); ok {
		created, err := seeder.Seed(ctx, cfg.Booking.TableCount, cfg.Booking.SeatsPerTable)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("seed inventory: %w", err)
		}
		if created && logg != nil {
			lctx := logg.WithFields(ctx, map[string]any{
				"tables":          cfg.Booking.TableCount,
				"seats_per_table": cfg.Booking.SeatsPerTable,
			})
			logg.Info(lctx, "inventory seeded")
		}
	}

	protocol, err := inventory.NewProtocol(invStore, cfg.Booking.CASMaxAttempts, cfg.Booking.CASBaseDelay, logg, bookingMetrics)
	if err != nil {
		a.Close()
		return nil, err
	}

	listing, err := cache.New(recStore, cfg.Cache.ListTTL, bookingMetrics)
	if err != nil {
		a.Close()
		return nil, err
	}

	ledg, err := ledger.New(redisClient, cfg.Booking.IdempotencyTTL)
	if err != nil {
		a.Close()
		return nil, err
	}

	svc, err := booking.NewService(protocol, recStore, ledg, listing, logg, bookingMetrics, booking.Options{
		MaxPerBooking: cfg.Booking.MaxPerBooking,
		StoreTimeout:  cfg.Booking.StoreTimeout,
		Location:      cfg.Booking.Location(),
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Service = svc
	return a, nil
}

func (a *App) buildStores(ctx context.Context) (inventory.Store, records.Store, error) {
	cfg := a.Cfg
	switch cfg.Storage.Normalized() {
	case config.BackendSQL:
		dbClient, err := db.New(ctx, cfg.DB, a.Logg)
		if err != nil {
			return nil, nil, fmt.Errorf("bootstrap database: %w", err)
		}
		a.DB = dbClient
		if cfg.DB.AutoMigrate {
			sqlDB, err := dbClient.DB().DB()
			if err != nil {
				return nil, nil, err
			}
			if err := migrate.Up(ctx, sqlDB, cfg.DB.Driver, migrate.DefaultDir); err != nil {
				return nil, nil, fmt.Errorf("run migrations: %w", err)
			}
		}
		return inventory.NewGormStore(dbClient, a.Logg), records.NewGormStore(dbClient), nil

	case config.BackendS3:
		clients, err := awsx.New(ctx, cfg.AWS)
		if err != nil {
			return nil, nil, fmt.Errorf("bootstrap aws clients: %w", err)
		}
		return inventory.NewS3Store(clients.S3, cfg.AWS.S3Bucket, cfg.AWS.S3InventoryKey),
			records.NewS3Store(clients.S3, cfg.AWS.S3Bucket, cfg.AWS.S3RecordPrefix), nil

	case config.BackendDynamoDB:
		clients, err := awsx.New(ctx, cfg.AWS)
		if err != nil {
			return nil, nil, fmt.Errorf("bootstrap aws clients: %w", err)
		}
		return inventory.NewDynamoStore(clients.Dynamo, cfg.AWS.DynamoTablesTable, a.Logg),
			records.NewDynamoStore(clients.Dynamo, cfg.AWS.DynamoReservationsTable), nil
	}
	return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
}

// Close releases every held connection.
func (a *App) Close() {
	if a.DB != nil {
		if err := a.DB.Close(); err != nil && a.Logg != nil {
			a.Logg.Error(context.Background(), "error closing database", err)
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil && a.Logg != nil {
			a.Logg.Error(context.Background(), "error closing redis", err)
		}
	}
}
