package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/journey-seat-booking/internal/middleware"
	"github.com/iliyamo/journey-seat-booking/internal/service"
)

// OperatorHandler serves the allocation and finalization views and the
// admin phase controls.  OPERATOR tokens only see their own vehicles.
type OperatorHandler struct {
	Svc *service.BookingService
}

// NewOperatorHandler panics on a nil service.
func NewOperatorHandler(svc *service.BookingService) *OperatorHandler {
	if svc == nil {
		panic("nil service passed to NewOperatorHandler")
	}
	return &OperatorHandler{Svc: svc}
}

func departureID(c echo.Context) (string, bool) {
	id := strings.TrimSpace(c.Param("id"))
	return id, id != ""
}

// Allocation handles GET /v1/departures/:id/allocation.
func (h *OperatorHandler) Allocation(c echo.Context) error {
	id, ok := departureID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid departure id"})
	}
	view, err := h.Svc.Allocation(c.Request().Context(), id, middleware.OperatorScope(c))
	if err != nil {
		return failure(c, err, "departure")
	}
	return c.JSON(http.StatusOK, view)
}

// Finalization handles GET /v1/departures/:id/finalization.  It answers
// 409 until the departure is finalized.
func (h *OperatorHandler) Finalization(c echo.Context) error {
	id, ok := departureID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid departure id"})
	}
	rep, err := h.Svc.Report(c.Request().Context(), id, middleware.OperatorScope(c))
	if err != nil {
		return failure(c, err, "departure")
	}
	return c.JSON(http.StatusOK, echo.Map{"departure_id": id, "rows": rep.Rows, "totals": rep.Totals})
}

// Advance handles POST /v1/admin/departures/:id/advance.
func (h *OperatorHandler) Advance(c echo.Context) error {
	id, ok := departureID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid departure id"})
	}
	tr, err := h.Svc.Advance(c.Request().Context(), id)
	if err != nil {
		return failure(c, err, "departure")
	}
	return c.JSON(http.StatusOK, tr)
}

// AdvanceDue handles POST /v1/admin/departures/advance-due and runs one
// scheduler sweep.  Partial failures are reported next to the counts.
func (h *OperatorHandler) AdvanceDue(c echo.Context) error {
	res, err := h.Svc.AdvanceDue(c.Request().Context())
	if err != nil {
		c.Logger().Error(err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "sweep incomplete", "result": res})
	}
	return c.JSON(http.StatusOK, res)
}
