package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/journey-seat-booking/internal/service"
)

// CustomerHandler confirms, cancels and lists bookings for the
// authenticated customer.  JWT and role checks happen in middleware.
type CustomerHandler struct {
	Svc *service.BookingService
}

// NewCustomerHandler panics on a nil service.
func NewCustomerHandler(svc *service.BookingService) *CustomerHandler {
	if svc == nil {
		panic("nil service passed to NewCustomerHandler")
	}
	return &CustomerHandler{Svc: svc}
}

// Confirm handles POST /v1/bookings with {"token": "...", "qty": N}.  It
// returns 201 when the quoted seats were committed, 409 with the fresh
// quote when the price moved, 410 when the token is gone and 409 when the
// departure closed in between.
func (h *CustomerHandler) Confirm(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var body struct {
		Token string `json:"token"`
		Qty   int    `json:"qty"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	body.Token = strings.TrimSpace(body.Token)
	if body.Token == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "token is required"})
	}
	if body.Qty < 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "qty must not be negative"})
	}

	res, err := h.Svc.Confirm(c.Request().Context(), userID, body.Token, body.Qty)
	if err != nil {
		return failure(c, err, "departure")
	}
	switch res.Status {
	case service.ConfirmOK:
		out := bookingJSON(res.Booking)
		out["vehicle_id"] = res.VehicleID
		return c.JSON(http.StatusCreated, out)
	case service.ConfirmStalePrice:
		return c.JSON(http.StatusConflict, echo.Map{"error": string(res.Status), "fresh": res.Fresh})
	case service.ConfirmTokenExpired:
		return c.JSON(http.StatusGone, echo.Map{"error": string(res.Status)})
	default:
		return c.JSON(http.StatusConflict, echo.Map{"error": string(res.Status)})
	}
}

// Cancel handles DELETE /v1/bookings/:id.
func (h *CustomerHandler) Cancel(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid booking id"})
	}
	p, err := h.Svc.Cancel(c.Request().Context(), userID, id)
	if err != nil {
		return failure(c, err, "booking")
	}
	return c.JSON(http.StatusOK, bookingJSON(p))
}

// List handles GET /v1/bookings and returns the caller's bookings, newest
// first.
func (h *CustomerHandler) List(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	parties, err := h.Svc.MyBookings(c.Request().Context(), userID)
	if err != nil {
		return failure(c, err, "booking")
	}
	items := make([]echo.Map, 0, len(parties))
	for i := range parties {
		items = append(items, bookingJSON(&parties[i]))
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}
