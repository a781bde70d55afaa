package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/journey-seat-booking/internal/engine"
	"github.com/iliyamo/journey-seat-booking/internal/repository"
)

// QuoteRequest asks what qty seats on a route's departure cost now.
// VehicleID optionally pins the shopping session to an earlier quote.
type QuoteRequest struct {
	RouteID   string
	Date      string
	Qty       int
	VehicleID string
}

// QuoteResult is a quote plus the departure it was priced on.  Quote and
// ExpiresAt are only set when Availability is available.
type QuoteResult struct {
	Availability engine.Availability `json:"availability"`
	DepartureID  string              `json:"departure_id,omitempty"`
	Phase        engine.Phase        `json:"phase,omitempty"`
	Quote        engine.Quote        `json:"quote"`
	ExpiresAt    time.Time           `json:"expires_at"`
}

// Quote prices req against the current allocation of the departure and
// issues a token binding the result for the configured window.
func (s *BookingService) Quote(ctx context.Context, req QuoteRequest) (QuoteResult, error) {
	res, err := s.quote(ctx, req)
	if err == nil {
		s.Metrics.ObserveQuote(string(res.Availability))
	}
	return res, err
}

func (s *BookingService) quote(ctx context.Context, req QuoteRequest) (QuoteResult, error) {
	route, err := s.Routes.GetByID(ctx, req.RouteID)
	if errors.Is(err, repository.ErrNotFound) {
		return QuoteResult{Availability: engine.NoJourney}, nil
	}
	if err != nil {
		return QuoteResult{}, err
	}
	dep, err := s.Departures.GetByRouteAndDate(ctx, req.RouteID, req.Date)
	if errors.Is(err, repository.ErrNotFound) {
		return QuoteResult{Availability: engine.NoJourney}, nil
	}
	if err != nil {
		return QuoteResult{}, err
	}
	if dep, err = s.catchUp(ctx, dep); err != nil {
		return QuoteResult{}, err
	}

	m, err := s.machine(ctx)
	if err != nil {
		return QuoteResult{}, err
	}
	st, in, err := s.loadState(ctx, nil, m, dep)
	if err != nil {
		return QuoteResult{}, err
	}
	current := m.Current(st, in)
	out := s.quoter(route.Currency).Quote(current.Snapshot, in.Vehicles, m.Policy(st), req.Qty, req.VehicleID)

	res := QuoteResult{Availability: out.Availability, DepartureID: dep.ID, Phase: st.Phase}
	if out.Availability != engine.Available {
		return res, nil
	}
	claim := &repository.QuoteClaim{
		DepartureID: dep.ID,
		RouteID:     dep.RouteID,
		Phase:       st.Phase,
		Quote:       out.Quote,
		IssuedAt:    s.Now(),
	}
	if err := s.Tokens.Put(ctx, claim, s.Pricing.QuoteTokenTTL); err != nil {
		return QuoteResult{}, fmt.Errorf("store quote token: %w", err)
	}
	res.Quote = claim.Quote
	res.ExpiresAt = claim.ExpiresAt
	return res, nil
}
