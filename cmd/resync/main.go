// Command resync runs one drift-repair pass and exits. It shares the
// API server's bootstrap so it always talks to the same backend.
package main

import (
	"context"
	"os"

	"github.com/joho/godotenv"

	"github.com/linyucheng/seatbook-backend/internal/app"
	"github.com/linyucheng/seatbook-backend/pkg/config"
	"github.com/linyucheng/seatbook-backend/pkg/logger"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "resync"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "resync",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	application, err := app.Bootstrap(context.Background(), cfg, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap", err)
		os.Exit(1)
	}
	defer application.Close()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Booking.StoreTimeout*4)
	defer cancel()

	report, err := application.Service.Resync(ctx)
	if err != nil {
		logg.Error(ctx, "resync failed", err)
		os.Exit(1)
	}

	lctx := logg.WithFields(ctx, map[string]any{
		"tables_checked":  report.TablesChecked,
		"tables_adjusted": report.TablesAdjusted,
		"adjusted_ids":    report.AdjustedIDs,
	})
	logg.Info(lctx, "resync complete")
}
