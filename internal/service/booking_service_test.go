package service

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/journey-seat-booking/internal/config"
	"github.com/iliyamo/journey-seat-booking/internal/database"
	"github.com/iliyamo/journey-seat-booking/internal/engine"
	"github.com/iliyamo/journey-seat-booking/internal/metrics"
	"github.com/iliyamo/journey-seat-booking/internal/model"
	"github.com/iliyamo/journey-seat-booking/internal/queue"
	"github.com/iliyamo/journey-seat-booking/internal/repository"
)

const serviceDate = "2026-11-20"

var departsAt = time.Date(2026, 11, 20, 9, 0, 0, 0, time.UTC)

type published struct {
	queue string
	event any
}

type fakePublisher struct {
	mu     sync.Mutex
	events []published
}

func (f *fakePublisher) Publish(_ context.Context, q string, event any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, published{queue: q, event: event})
	return nil
}

func (f *fakePublisher) on(q string) []any {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []any
	for _, p := range f.events {
		if p.queue == q {
			out = append(out, p.event)
		}
	}
	return out
}

type fixture struct {
	svc *BookingService
	db  *sql.DB
	pub *fakePublisher
	now time.Time
}

func (f *fixture) at(t time.Time) { f.now = t }

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "svc.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	f := &fixture{db: db, pub: &fakePublisher{}, now: departsAt.Add(-10 * 24 * time.Hour)}
	pricing := config.PricingConfig{
		Currency:                "EUR",
		TaxRate:                 0.10,
		FeeRate:                 0.05,
		RoundingUnit:            1,
		DefaultCommissionRate:   0.10,
		OperatorCommissionRates: map[string]float64{},
		QuoteTokenTTL:           10 * time.Minute,
	}
	clock := func() time.Time { return f.now }
	f.svc = New(db, repository.NewMemoryQuoteTokens(clock), f.pub, pricing, metrics.New(), nil)
	f.svc.Now = clock
	seed(t, db)
	return f
}

// seed creates route "lagoon" served by A (400/4), B (480/4) and C (800/4),
// all 4 to 6 seats with a half-price band, and one departure "d1".
func seed(t *testing.T, db *sql.DB) {
	t.Helper()
	ctx := context.Background()
	ops := repository.NewOperatorRepo(db)
	rateB := 0.15
	require.NoError(t, ops.Create(ctx, &model.Operator{ID: "op-a", Name: "Alpha", Rating: 4}))
	require.NoError(t, ops.Create(ctx, &model.Operator{ID: "op-b", Name: "Beta", Rating: 4, CommissionRate: &rateB}))
	require.NoError(t, ops.Create(ctx, &model.Operator{ID: "op-c", Name: "Gamma", Rating: 3}))
	require.NoError(t, repository.NewRouteRepo(db).Create(ctx, &model.Route{ID: "lagoon", Name: "Lagoon", Currency: "EUR"}))

	vehicles := repository.NewVehicleRepo(db)
	for _, v := range []model.Vehicle{
		{ID: "A", OperatorID: "op-a", Name: "A", MinSeats: 4, MaxSeats: 6, MinRevenueMinor: 400, DiscountFraction: 0.5, Active: true},
		{ID: "B", OperatorID: "op-b", Name: "B", MinSeats: 4, MaxSeats: 6, MinRevenueMinor: 480, DiscountFraction: 0.5, Active: true},
		{ID: "C", OperatorID: "op-c", Name: "C", MinSeats: 4, MaxSeats: 6, MinRevenueMinor: 800, DiscountFraction: 0.5, Active: true},
	} {
		v := v
		require.NoError(t, vehicles.Create(ctx, &v))
		require.NoError(t, vehicles.LinkRoute(ctx, "lagoon", v.ID))
	}
	require.NoError(t, repository.NewDepartureRepo(db).Create(ctx, &model.Departure{
		ID: "d1", RouteID: "lagoon", ServiceDate: serviceDate, DepartsAt: departsAt,
	}))
}

// book stores confirmed parties directly, in the given order.
func (f *fixture) book(t *testing.T, sizes map[string]int, order ...string) {
	t.Helper()
	ctx := context.Background()
	tx, err := f.db.BeginTx(ctx, nil)
	require.NoError(t, err)
	for i, id := range order {
		require.NoError(t, f.svc.Parties.CreateTx(ctx, tx, &model.Party{
			ID: id, DepartureID: "d1", UserID: 1, Size: sizes[id],
			CreatedAt: f.now.Add(time.Duration(i) * time.Second),
		}))
	}
	require.NoError(t, tx.Commit())
}

func (f *fixture) quote(t *testing.T, qty int, pin string) QuoteResult {
	t.Helper()
	res, err := f.svc.Quote(context.Background(), QuoteRequest{RouteID: "lagoon", Date: serviceDate, Qty: qty, VehicleID: pin})
	require.NoError(t, err)
	return res
}

func TestQuote_FormingEmptyDeparture(t *testing.T) {
	f := newFixture(t)

	res := f.quote(t, 2, "")

	require.Equal(t, engine.Available, res.Availability)
	assert.Equal(t, "d1", res.DepartureID)
	assert.Equal(t, engine.PhaseForming, res.Phase)
	assert.Equal(t, "A", res.Quote.VehicleID, "cheapest vehicle opens first")
	assert.Equal(t, int64(116), res.Quote.UnitPriceMinor)
	assert.Equal(t, "EUR", res.Quote.Currency)
	assert.Equal(t, 4, res.Quote.MaxQtyAtCurrentPrice)
	assert.Equal(t, engine.SeatPrice{Base: 100, Tax: 10, Fees: 6, Unit: 116}, res.Quote.Breakdown)
	assert.NotEmpty(t, res.Quote.Token)
	assert.True(t, res.ExpiresAt.Equal(f.now.Add(10*time.Minute)))
}

func TestQuote_Availability(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  QuoteRequest
		want engine.Availability
	}{
		{name: "unknown route", req: QuoteRequest{RouteID: "nowhere", Date: serviceDate, Qty: 1}, want: engine.NoJourney},
		{name: "no departure that day", req: QuoteRequest{RouteID: "lagoon", Date: "2026-11-21", Qty: 1}, want: engine.NoJourney},
		{name: "party larger than any vehicle", req: QuoteRequest{RouteID: "lagoon", Date: serviceDate, Qty: 7}, want: engine.InsufficientCapacityForParty},
		{name: "fits", req: QuoteRequest{RouteID: "lagoon", Date: serviceDate, Qty: 6}, want: engine.Available},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := f.svc.Quote(ctx, tt.req)
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Availability)
			if tt.want != engine.Available {
				assert.Empty(t, res.Quote.Token, "only available quotes get a token")
			}
		})
	}
}

func TestQuote_NoVehicles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, id := range []string{"A", "B", "C"} {
		require.NoError(t, f.svc.Vehicles.SetActive(ctx, id, false))
	}

	assert.Equal(t, engine.NoVehicles, f.quote(t, 1, "").Availability)
}

func TestConfirm_CommitsQuotedParty(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	q := f.quote(t, 2, "")

	res, err := f.svc.Confirm(ctx, 7, q.Quote.Token, 2)

	require.NoError(t, err)
	require.Equal(t, ConfirmOK, res.Status)
	b := res.Booking
	assert.Equal(t, uint64(7), b.UserID)
	assert.Equal(t, 2, b.Size)
	assert.Equal(t, int64(116), b.UnitPriceMinor)
	assert.Equal(t, int64(232), b.TotalMinor)
	assert.Empty(t, b.VehicleID, "forming bookings are repacked, not pinned")

	active, err := f.svc.Parties.ListActiveByDeparture(ctx, nil, "d1")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, b.ID, active[0].ID)

	events := f.pub.on(queue.BookingConfirmedQueue)
	require.Len(t, events, 1)
	ev := events[0].(queue.BookingConfirmedEvent)
	assert.Equal(t, b.ID, ev.BookingID)
	assert.Equal(t, "A", ev.VehicleID)
	assert.Equal(t, int64(232), ev.TotalMinor)

	again, err := f.svc.Confirm(ctx, 7, q.Quote.Token, 2)
	require.NoError(t, err)
	assert.Equal(t, ConfirmTokenExpired, again.Status, "tokens are single use")
}

func TestConfirm_StalePrice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.quote(t, 3, "")
	second := f.quote(t, 3, "")
	require.Equal(t, int64(116), first.Quote.UnitPriceMinor)
	require.Equal(t, int64(116), second.Quote.UnitPriceMinor)

	ok, err := f.svc.Confirm(ctx, 8, second.Quote.Token, 3)
	require.NoError(t, err)
	require.Equal(t, ConfirmOK, ok.Status)

	stale, err := f.svc.Confirm(ctx, 7, first.Quote.Token, 3)
	require.NoError(t, err)
	assert.Equal(t, ConfirmStalePrice, stale.Status)
	require.NotNil(t, stale.Fresh)
	assert.Equal(t, "A", stale.Fresh.Quote.VehicleID)
	assert.Equal(t, int64(58), stale.Fresh.Quote.UnitPriceMinor, "the sixth seat on A is in band")
	assert.Nil(t, stale.Booking)

	active, err := f.svc.Parties.ListActiveByDeparture(ctx, nil, "d1")
	require.NoError(t, err)
	assert.Len(t, active, 1, "a stale confirmation writes nothing")
	assert.Len(t, f.pub.on(queue.BookingConfirmedQueue), 1)
}

func TestConfirm_TokenProblems(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.Confirm(ctx, 7, "bogus", 1)
	require.NoError(t, err)
	assert.Equal(t, ConfirmTokenExpired, res.Status)

	q := f.quote(t, 2, "")
	_, err = f.svc.Confirm(ctx, 7, q.Quote.Token, 3)
	assert.ErrorIs(t, err, ErrQtyMismatch)

	f.at(f.now.Add(11 * time.Minute))
	res, err = f.svc.Confirm(ctx, 7, q.Quote.Token, 2)
	require.NoError(t, err)
	assert.Equal(t, ConfirmTokenExpired, res.Status)
}

func TestAdvance_LockPinsPartiesAndFinalizeStoresLedger(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.book(t, map[string]int{"p1": 3, "p2": 2, "p3": 2}, "p1", "p2", "p3")

	f.at(departsAt.Add(-60 * time.Hour))
	tr, err := f.svc.Advance(ctx, "d1")
	require.NoError(t, err)
	require.True(t, tr.Changed)
	assert.Equal(t, engine.PhaseLocked, tr.To)
	assert.Equal(t, map[string]string{"p1": "A", "p2": "A", "p3": "B"}, tr.Assignments)

	dep, err := f.svc.Departures.GetByID(ctx, nil, "d1")
	require.NoError(t, err)
	assert.Equal(t, engine.PhaseLocked, dep.Phase)
	kept, err := f.svc.Departures.InPlay(ctx, nil, "d1")
	require.NoError(t, err)
	assert.Equal(t, []model.DepartureVehicle{
		{DepartureID: "d1", VehicleID: "A", ForceDiscount: true},
		{DepartureID: "d1", VehicleID: "B", ForceDiscount: false},
	}, kept)

	view, err := f.svc.Allocation(ctx, "d1", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, view.InPlay)
	assert.Equal(t, 5, view.Snapshot.Seats("A"))
	assert.Equal(t, int64(290), view.Snapshot.Vehicles["A"].RevenueAccrued)
	assert.Equal(t, int64(278), view.Snapshot.Vehicles["B"].RevenueAccrued)
	assert.Equal(t, 0, view.Snapshot.Seats("C"))

	again, err := f.svc.Advance(ctx, "d1")
	require.NoError(t, err)
	assert.False(t, again.Changed, "the clock has not moved")

	f.at(departsAt.Add(-12 * time.Hour))
	tr, err = f.svc.Advance(ctx, "d1")
	require.NoError(t, err)
	require.NotNil(t, tr.Report)
	assert.Equal(t, engine.PhaseFinalized, tr.To)

	rep, err := f.svc.Report(ctx, "d1", "")
	require.NoError(t, err)
	assert.Equal(t, *tr.Report, rep, "the stored ledger matches the one built at finalization")
	require.Len(t, rep.Rows, 2)
	assert.Equal(t, int64(25), rep.Rows[0].Commission)
	assert.Equal(t, int64(36), rep.Rows[1].Commission, "stored operator rate applies")
	assert.Equal(t, int64(568), rep.Totals.Revenue)
	assert.Equal(t, 2, rep.Totals.Shortfalls)

	mine, err := f.svc.Report(ctx, "d1", "op-b")
	require.NoError(t, err)
	require.Len(t, mine.Rows, 1)
	assert.Equal(t, "B", mine.Rows[0].VehicleID)

	events := f.pub.on(queue.DepartureFinalizedQueue)
	require.Len(t, events, 1)
	assert.Equal(t, "d1", events[0].(queue.DepartureFinalizedEvent).DepartureID)
}

func TestLockedPhase_QuotesOnlyInPlayVehicles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.book(t, map[string]int{"p1": 3, "p2": 2, "p3": 2}, "p1", "p2", "p3")
	f.at(departsAt.Add(-60 * time.Hour))

	big := f.quote(t, 6, "")
	assert.Equal(t, engine.InsufficientCapacityForParty, big.Availability, "C stays closed once locked")
	assert.Equal(t, engine.PhaseLocked, big.Phase, "quoting catches the phase up")

	q := f.quote(t, 2, "")
	require.Equal(t, engine.Available, q.Availability)
	assert.Equal(t, "B", q.Quote.VehicleID, "B is still below its minimum")
	assert.Equal(t, int64(139), q.Quote.UnitPriceMinor)
	assert.Equal(t, 2, q.Quote.MaxQtyAtCurrentPrice)

	res, err := f.svc.Confirm(ctx, 9, q.Quote.Token, 2)
	require.NoError(t, err)
	require.Equal(t, ConfirmOK, res.Status)
	assert.Equal(t, "B", res.Booking.VehicleID, "locked bookings are pinned")

	view, err := f.svc.Allocation(ctx, "d1", "op-b")
	require.NoError(t, err)
	assert.Equal(t, []string{"B"}, view.InPlay)
	assert.Equal(t, 4, view.Snapshot.Seats("B"))
	_, hasA := view.Snapshot.Vehicles["A"]
	assert.False(t, hasA, "operators only see their own vehicles")
}

func TestLock_FallbackWhenNothingBooked(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.at(departsAt.Add(-48 * time.Hour))

	_, err := f.svc.Advance(ctx, "d1")
	require.NoError(t, err)

	dep, err := f.svc.Departures.GetByID(ctx, nil, "d1")
	require.NoError(t, err)
	assert.Equal(t, "A", dep.FallbackVehicleID)

	q := f.quote(t, 1, "")
	require.Equal(t, engine.Available, q.Availability)
	assert.Equal(t, "A", q.Quote.VehicleID)
}

func TestLocked_VehicleReachingMinimumIsForced(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.at(departsAt.Add(-48 * time.Hour))
	_, err := f.svc.Advance(ctx, "d1")
	require.NoError(t, err)

	var paid []int64
	for i := 0; i < 3; i++ {
		q := f.quote(t, 2, "")
		require.Equal(t, engine.Available, q.Availability)
		require.Equal(t, "A", q.Quote.VehicleID)
		res, err := f.svc.Confirm(ctx, 7, q.Quote.Token, 2)
		require.NoError(t, err)
		require.Equal(t, ConfirmOK, res.Status)
		paid = append(paid, res.Booking.UnitPriceMinor)
	}
	assert.Equal(t, []int64{116, 116, 58}, paid)

	kept, err := f.svc.Departures.InPlay(ctx, nil, "d1")
	require.NoError(t, err)
	assert.Equal(t, []model.DepartureVehicle{{DepartureID: "d1", VehicleID: "A", ForceDiscount: true}}, kept)

	view, err := f.svc.Allocation(ctx, "d1", "")
	require.NoError(t, err)
	assert.Equal(t, 6, view.Snapshot.Seats("A"))
	assert.Equal(t, int64(6*58), view.Snapshot.Vehicles["A"].RevenueAccrued)

	f.at(departsAt.Add(-12 * time.Hour))
	_, err = f.svc.Advance(ctx, "d1")
	require.NoError(t, err)
	rep, err := f.svc.Report(ctx, "d1", "")
	require.NoError(t, err)
	require.Len(t, rep.Rows, 1)
	assert.Equal(t, 6, rep.Rows[0].Seats)
	assert.Equal(t, int64(58), rep.Rows[0].UnitPrice, "a full vehicle keeps the discount it reached")
	assert.Equal(t, int64(6*58), rep.Rows[0].Revenue)
	assert.True(t, rep.Rows[0].Shortfall)
}

func TestFinalized_AllocationSurvivesFleetChanges(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.book(t, map[string]int{"p1": 3, "p2": 2, "p3": 2}, "p1", "p2", "p3")
	f.at(departsAt.Add(-60 * time.Hour))
	_, err := f.svc.Advance(ctx, "d1")
	require.NoError(t, err)
	f.at(departsAt.Add(-12 * time.Hour))
	_, err = f.svc.Advance(ctx, "d1")
	require.NoError(t, err)

	before, err := f.svc.Allocation(ctx, "d1", "")
	require.NoError(t, err)
	rep, err := f.svc.Report(ctx, "d1", "")
	require.NoError(t, err)

	require.NoError(t, f.svc.Vehicles.SetActive(ctx, "A", false))
	_, err = f.db.ExecContext(ctx, `UPDATE vehicles SET max_seats = 2 WHERE id = ?`, "B")
	require.NoError(t, err)

	after, err := f.svc.Allocation(ctx, "d1", "")
	require.NoError(t, err)
	assert.Equal(t, before.Snapshot, after.Snapshot)
	assert.Equal(t, []string{"A", "B"}, after.InPlay)
	assert.Equal(t, 5, after.Snapshot.Seats("A"))
	assert.Equal(t, 2, after.Snapshot.Seats("B"))

	again, err := f.svc.Report(ctx, "d1", "")
	require.NoError(t, err)
	assert.Equal(t, rep, again)
}

func TestLocked_DeactivatedVehicleKeepsItsParties(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.book(t, map[string]int{"p1": 3, "p2": 2, "p3": 2}, "p1", "p2", "p3")
	f.at(departsAt.Add(-60 * time.Hour))
	_, err := f.svc.Advance(ctx, "d1")
	require.NoError(t, err)

	require.NoError(t, f.svc.Vehicles.SetActive(ctx, "A", false))

	view, err := f.svc.Allocation(ctx, "d1", "")
	require.NoError(t, err)
	assert.Equal(t, 5, view.Snapshot.Seats("A"))
	assert.Equal(t, []string{"p1", "p2"}, view.Snapshot.Vehicles["A"].PartyIDs)
}

func TestFinalized_ClosesBooking(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.svc.Pricing.QuoteTokenTTL = 24 * time.Hour
	f.at(departsAt.Add(-30 * time.Hour))
	q := f.quote(t, 1, "")
	require.Equal(t, engine.Available, q.Availability)

	f.at(departsAt.Add(-23 * time.Hour))
	assert.Equal(t, engine.SoldOut, f.quote(t, 1, "").Availability)

	res, err := f.svc.Confirm(ctx, 7, q.Quote.Token, 1)
	require.NoError(t, err)
	assert.Equal(t, ConfirmBookingClosed, res.Status)
}

func TestCancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	q := f.quote(t, 2, "")
	res, err := f.svc.Confirm(ctx, 7, q.Quote.Token, 0)
	require.NoError(t, err)
	id := res.Booking.ID

	_, err = f.svc.Cancel(ctx, 8, id)
	assert.ErrorIs(t, err, repository.ErrForbidden)
	_, err = f.svc.Cancel(ctx, 7, "missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	p, err := f.svc.Cancel(ctx, 7, id)
	require.NoError(t, err)
	assert.Equal(t, model.PartyCancelled, p.Status)
	_, err = f.svc.Cancel(ctx, 7, id)
	assert.ErrorIs(t, err, repository.ErrConflict)

	active, err := f.svc.Parties.ListActiveByDeparture(ctx, nil, "d1")
	require.NoError(t, err)
	assert.Empty(t, active)
	assert.Len(t, f.pub.on(queue.BookingCancelledQueue), 1)

	mine, err := f.svc.MyBookings(ctx, 7)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, model.PartyCancelled, mine[0].Status)
}

func TestCancel_ClosedOnceFinalized(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	q := f.quote(t, 1, "")
	res, err := f.svc.Confirm(ctx, 7, q.Quote.Token, 1)
	require.NoError(t, err)

	f.at(departsAt.Add(-time.Hour))
	_, err = f.svc.Cancel(ctx, 7, res.Booking.ID)
	assert.ErrorIs(t, err, ErrBookingClosed)
}

func TestReport_NotFinalized(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Report(context.Background(), "d1", "")
	assert.ErrorIs(t, err, ErrNotFinalized)

	_, err = f.svc.Report(context.Background(), "nope", "")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestAdvanceDue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.svc.Departures.Create(ctx, &model.Departure{
		ID: "d2", RouteID: "lagoon", ServiceDate: "2026-12-20", DepartsAt: departsAt.Add(30 * 24 * time.Hour),
	}))
	f.at(departsAt.Add(-50 * time.Hour))

	res, err := f.svc.AdvanceDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{Checked: 1, Advanced: 1}, res)

	res, err = f.svc.AdvanceDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{Checked: 1, Advanced: 0}, res, "a locked departure stays due until finalized")

	far, err := f.svc.Departures.GetByID(ctx, nil, "d2")
	require.NoError(t, err)
	assert.Equal(t, engine.PhaseForming, far.Phase)
}
