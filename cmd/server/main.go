package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/iliyamo/journey-seat-booking/internal/app"
	"github.com/iliyamo/journey-seat-booking/internal/config"
	"github.com/iliyamo/journey-seat-booking/internal/handler"
	"github.com/iliyamo/journey-seat-booking/internal/logging"
	"github.com/iliyamo/journey-seat-booking/internal/middleware"
	"github.com/iliyamo/journey-seat-booking/internal/router"
)

func main() {
	logging.Setup()
	cfg := config.Load()
	logger := logging.Component("server")
	if cfg.JWTSecret == "" {
		logger.Error("missing required env var", "key", "JWT_SECRET")
		os.Exit(1)
	}

	a, err := app.Open(cfg, slog.Default())
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(middleware.Logging(slog.Default(), a.Metrics))

	svc := a.Service
	limit := middleware.NewTokenBucket(config.LoadRateLimitConfig(), a.Redis, slog.Default())
	cache := middleware.NewRedisCache(config.LoadCacheConfig(), a.Redis, slog.Default())

	router.RegisterRoutes(e, a.DB, a.Metrics)
	router.RegisterPublic(e, handler.NewPublicHandler(svc), limit)
	router.RegisterCustomer(e, handler.NewCustomerHandler(svc), cfg.JWTSecret)
	ops := handler.NewOperatorHandler(svc)
	router.RegisterOperator(e, ops, cfg.JWTSecret, cache)
	router.RegisterAdmin(e, ops, cfg.JWTSecret)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := ":" + cfg.Port
	go func() {
		logger.Info("listening", "addr", addr, "env", cfg.Env)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", "error", err)
	}
	logger.Info("stopped")
}
