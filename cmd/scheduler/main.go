// Command scheduler advances the policy phase of every departure inside
// the lock window.  Run it from cron for a single sweep, or pass -interval
// to keep sweeping.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/iliyamo/journey-seat-booking/internal/app"
	"github.com/iliyamo/journey-seat-booking/internal/config"
	"github.com/iliyamo/journey-seat-booking/internal/logging"
	"github.com/iliyamo/journey-seat-booking/internal/service"
)

func main() {
	logging.Setup()
	cfg := config.Load()
	interval := flag.Duration("interval", cfg.SchedulerEvery, "sweep every interval; 0 runs one sweep and exits")
	flag.Parse()
	logger := logging.Component("scheduler")

	a, err := app.Open(cfg, slog.Default())
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *interval <= 0 {
		if !sweep(ctx, a.Service, logger) {
			a.Close()
			os.Exit(1)
		}
		return
	}

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()
	logger.Info("sweeping", "interval", *interval)
	for {
		sweep(ctx, a.Service, logger)
		select {
		case <-ctx.Done():
			logger.Info("stopped")
			return
		case <-ticker.C:
		}
	}
}

// sweep runs one AdvanceDue pass and reports whether every departure was
// handled.
func sweep(ctx context.Context, svc *service.BookingService, logger *slog.Logger) bool {
	start := time.Now()
	res, err := svc.AdvanceDue(ctx)
	logger.Info("sweep done", "checked", res.Checked, "advanced", res.Advanced,
		"failed", res.Failed, "duration", time.Since(start))
	if err != nil {
		logger.Error("sweep errors", "error", err)
		return false
	}
	return true
}
