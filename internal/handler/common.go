package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/journey-seat-booking/internal/middleware"
	"github.com/iliyamo/journey-seat-booking/internal/model"
	"github.com/iliyamo/journey-seat-booking/internal/repository"
	"github.com/iliyamo/journey-seat-booking/internal/service"
)

// getUserID extracts the user_id set by JWTAuth and converts it to uint64.
func getUserID(c echo.Context) (uint64, error) {
	switch t := c.Get(middleware.CtxUserID).(type) {
	case uint64:
		return t, nil
	case int:
		return uint64(t), nil
	case int64:
		return uint64(t), nil
	case float64:
		if t > 0 {
			return uint64(t), nil
		}
	case string:
		if n, err := strconv.ParseUint(t, 10, 64); err == nil {
			return n, nil
		}
	}
	return 0, errors.New("invalid user_id in context")
}

// failure maps service and repository errors to a JSON error response.
// Anything unrecognised is a 500 and is not echoed to the client.
func failure(c echo.Context, err error, what string) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": what + " not found"})
	case errors.Is(err, repository.ErrForbidden):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	case errors.Is(err, repository.ErrConflict):
		return c.JSON(http.StatusConflict, echo.Map{"error": what + " is no longer active"})
	case errors.Is(err, service.ErrBookingClosed):
		return c.JSON(http.StatusConflict, echo.Map{"error": string(service.ConfirmBookingClosed)})
	case errors.Is(err, service.ErrNotFinalized):
		return c.JSON(http.StatusConflict, echo.Map{"error": "not_finalized"})
	case errors.Is(err, service.ErrQtyMismatch):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "qty does not match quote"})
	}
	c.Logger().Error(err)
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
}

func bookingJSON(p *model.Party) echo.Map {
	out := echo.Map{
		"booking_id":       p.ID,
		"departure_id":     p.DepartureID,
		"qty":              p.Size,
		"status":           p.Status,
		"unit_price_minor": p.UnitPriceMinor,
		"total_minor":      p.TotalMinor,
		"created_at":       p.CreatedAt.Format(time.RFC3339),
	}
	if p.VehicleID != "" {
		out["vehicle_id"] = p.VehicleID
	}
	return out
}
