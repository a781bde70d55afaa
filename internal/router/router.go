// Package router registers the HTTP routes of the booking API and the
// middleware each group runs.
package router

import (
	"database/sql"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iliyamo/journey-seat-booking/internal/handler"
	"github.com/iliyamo/journey-seat-booking/internal/metrics"
)

// RegisterRoutes registers the probes and the Prometheus scrape endpoint.
// None of them require authentication.
func RegisterRoutes(e *echo.Echo, db *sql.DB, m *metrics.Metrics) {
	e.GET("/healthz", handler.Health)
	e.GET("/readyz", handler.Ready(db))
	if m != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})))
	}
}

// RegisterPublic registers the quote endpoint.  limit wraps it with the
// rate limiter; pass nil to leave it unlimited.
func RegisterPublic(e *echo.Echo, h *handler.PublicHandler, limit echo.MiddlewareFunc) {
	var mw []echo.MiddlewareFunc
	if limit != nil {
		mw = append(mw, limit)
	}
	e.GET("/v1/routes/:id/quote", h.Quote, mw...)
}
