package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/journey-seat-booking/internal/engine"
	"github.com/iliyamo/journey-seat-booking/internal/service"
)

// PublicHandler serves the unauthenticated quote endpoint.
type PublicHandler struct {
	Svc *service.BookingService
}

// NewPublicHandler panics on a nil service.
func NewPublicHandler(svc *service.BookingService) *PublicHandler {
	if svc == nil {
		panic("nil service passed to NewPublicHandler")
	}
	return &PublicHandler{Svc: svc}
}

// Quote handles GET /v1/routes/:id/quote?date=YYYY-MM-DD&qty=N[&vehicle_id=X].
// Business outcomes other than available are still 200 responses; the
// availability field tells them apart.
func (h *PublicHandler) Quote(c echo.Context) error {
	routeID := strings.TrimSpace(c.Param("id"))
	if routeID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid route id"})
	}
	date := c.QueryParam("date")
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "date must be YYYY-MM-DD"})
	}
	qty := 1
	if raw := c.QueryParam("qty"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "qty must be an integer"})
		}
		if n < 1 {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "qty must be at least 1"})
		}
		qty = n
	}

	res, err := h.Svc.Quote(c.Request().Context(), service.QuoteRequest{
		RouteID:   routeID,
		Date:      date,
		Qty:       qty,
		VehicleID: c.QueryParam("vehicle_id"),
	})
	if err != nil {
		return failure(c, err, "route")
	}
	out := echo.Map{"availability": res.Availability}
	if res.DepartureID != "" {
		out["departure_id"] = res.DepartureID
		out["phase"] = res.Phase
	}
	if res.Availability == engine.Available {
		q := res.Quote
		out["qty"] = q.Qty
		out["unit_price_minor"] = q.UnitPriceMinor
		out["currency"] = q.Currency
		out["base_minor"] = q.Breakdown.Base
		out["tax_minor"] = q.Breakdown.Tax
		out["fees_minor"] = q.Breakdown.Fees
		out["vehicle_id"] = q.VehicleID
		out["max_qty_at_price"] = q.MaxQtyAtCurrentPrice
		out["token"] = q.Token
		out["expires_at"] = res.ExpiresAt.Format(time.RFC3339)
	}
	return c.JSON(http.StatusOK, out)
}
