// Package app wires the booking service from configuration.  cmd/server
// and cmd/scheduler share it so both run the same pricing policy against
// the same stores.
package app

import (
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/journey-seat-booking/internal/config"
	"github.com/iliyamo/journey-seat-booking/internal/database"
	"github.com/iliyamo/journey-seat-booking/internal/metrics"
	"github.com/iliyamo/journey-seat-booking/internal/queue"
	"github.com/iliyamo/journey-seat-booking/internal/repository"
	"github.com/iliyamo/journey-seat-booking/internal/service"
)

// App holds the opened stores and the service built on them.  Redis is nil
// when the server could not be reached.
type App struct {
	DB      *sql.DB
	Redis   *redis.Client
	Metrics *metrics.Metrics
	Service *service.BookingService
}

// Open connects the database, Redis and the event publisher and builds the
// booking service.  Without Redis, quote tokens live in process memory,
// which only suits a single server instance.
func Open(cfg config.Config, logger *slog.Logger) (*App, error) {
	pricing, err := config.LoadPricing(cfg.PricingPath)
	if err != nil {
		return nil, err
	}
	db, err := database.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	a := &App{DB: db, Redis: config.NewRedisClient(), Metrics: metrics.New()}
	var tokens repository.QuoteTokenStore
	if a.Redis != nil {
		tokens = repository.NewRedisQuoteTokens(a.Redis, "quote")
	} else {
		logger.Warn("redis unavailable, quote tokens kept in memory")
		tokens = repository.NewMemoryQuoteTokens(nil)
	}

	var pub queue.Publisher = queue.Discard{}
	if cfg.EventsEnabled {
		pub = queue.NewAMQPPublisher(cfg.RabbitURL, logger)
	}

	a.Service = service.New(db, tokens, pub, pricing, a.Metrics, logger)
	logger.Info("booking service ready",
		"driver", cfg.DBDriver,
		"currency", pricing.Currency,
		"tie_break", pricing.TieBreak,
		"redis", a.Redis != nil,
		"events", cfg.EventsEnabled,
	)
	return a, nil
}

// Close releases the database and Redis connections.
func (a *App) Close() {
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	_ = a.DB.Close()
}
