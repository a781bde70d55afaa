package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/journey-seat-booking/internal/engine"
)

func TestMemoryQuoteTokens(t *testing.T) {
	now := t0
	store := NewMemoryQuoteTokens(func() time.Time { return now })
	ctx := context.Background()

	claim := &QuoteClaim{DepartureID: "d1", RouteID: "lagoon", Phase: engine.PhaseForming,
		Quote: engine.Quote{Qty: 2, UnitPriceMinor: 116, Currency: "EUR", VehicleID: "A"}}
	require.NoError(t, store.Put(ctx, claim, 10*time.Minute))

	require.Len(t, claim.Token, 48)
	assert.Equal(t, claim.Token, claim.Quote.Token)
	assert.True(t, claim.ExpiresAt.Equal(t0.Add(10*time.Minute)))

	got, err := store.Get(ctx, claim.Token)
	require.NoError(t, err)
	assert.Equal(t, "A", got.Quote.VehicleID)

	now = t0.Add(10 * time.Minute)
	_, err = store.Get(ctx, claim.Token)
	assert.ErrorIs(t, err, ErrNotFound, "expired tokens are gone")

	now = t0
	other := &QuoteClaim{DepartureID: "d1"}
	require.NoError(t, store.Put(ctx, other, time.Minute))
	assert.NotEqual(t, claim.Token, other.Token)
	require.NoError(t, store.Delete(ctx, other.Token))
	_, err = store.Get(ctx, other.Token)
	assert.ErrorIs(t, err, ErrNotFound)
}
