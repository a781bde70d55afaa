package middleware

import (
	"log/slog"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/journey-seat-booking/internal/metrics"
)

// Logging logs one line per request and observes its latency.  m may be
// nil.  Routes are labelled by their pattern, not the raw path, to keep
// metric cardinality bounded.
func Logging(logger *slog.Logger, m *metrics.Metrics) echo.MiddlewareFunc {
	if logger == nil {
		logger = slog.Default()
	}
	log := logger.With("component", "http")
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			elapsed := time.Since(start)
			status := c.Response().Status
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}

			if m != nil {
				m.RequestDuration.WithLabelValues(c.Request().Method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())
			}
			level := slog.LevelInfo
			if status >= 500 {
				level = slog.LevelError
			}
			log.Log(c.Request().Context(), level, "request",
				"method", c.Request().Method,
				"path", c.Request().URL.Path,
				"route", route,
				"status", status,
				"duration", elapsed,
				"ip", c.RealIP(),
				"subject", subject(c),
			)
			return nil
		}
	}
}
