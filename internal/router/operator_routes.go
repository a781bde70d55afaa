package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/journey-seat-booking/internal/handler"
	"github.com/iliyamo/journey-seat-booking/internal/middleware"
)

// RegisterOperator registers the allocation and finalization views for
// OPERATOR and ADMIN tokens.  cache, when non-nil, fronts the finalization
// report, which never changes once written.
func RegisterOperator(e *echo.Echo, h *handler.OperatorHandler, jwtSecret string, cache echo.MiddlewareFunc) {
	g := e.Group(
		"/v1/departures",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(middleware.RoleOperator, middleware.RoleAdmin),
	)
	g.GET("/:id/allocation", h.Allocation)
	if cache != nil {
		g.GET("/:id/finalization", h.Finalization, cache)
	} else {
		g.GET("/:id/finalization", h.Finalization)
	}
}

// RegisterAdmin registers the manual phase controls.  ADMIN only.
func RegisterAdmin(e *echo.Echo, h *handler.OperatorHandler, jwtSecret string) {
	g := e.Group(
		"/v1/admin/departures",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(middleware.RoleAdmin),
	)
	g.POST("/advance-due", h.AdvanceDue)
	g.POST("/:id/advance", h.Advance)
}
