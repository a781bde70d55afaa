package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/journey-seat-booking/internal/handler"
	"github.com/iliyamo/journey-seat-booking/internal/middleware"
)

// RegisterCustomer registers the booking endpoints.  All routes require a
// valid JWT with the CUSTOMER role; ownership of a booking is checked in
// the service.
func RegisterCustomer(e *echo.Echo, h *handler.CustomerHandler, jwtSecret string) {
	g := e.Group(
		"/v1/bookings",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(middleware.RoleCustomer),
	)
	g.POST("", h.Confirm)
	g.GET("", h.List)
	g.DELETE("/:id", h.Cancel)
}
