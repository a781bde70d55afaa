package queue

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/journey-seat-booking/internal/engine"
)

var at = time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

func TestHandleMessage_BookingConfirmed(t *testing.T) {
	body, err := json.Marshal(BookingConfirmedEvent{
		BookingID: "b1", DepartureID: "d1", RouteID: "lagoon", UserID: 7, Qty: 2,
		VehicleID: "A", Phase: engine.PhaseForming, UnitPriceMinor: 116, TotalMinor: 232, Currency: "EUR",
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, handleMessage(&buf, BookingConfirmedQueue, body, at))

	var line struct {
		Queue      string                `json:"queue"`
		ReceivedAt string                `json:"received_at"`
		Event      BookingConfirmedEvent `json:"event"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, BookingConfirmedQueue, line.Queue)
	assert.Equal(t, "2026-06-01T09:00:00Z", line.ReceivedAt)
	assert.Equal(t, "b1", line.Event.BookingID)
	assert.Equal(t, int64(232), line.Event.TotalMinor)
	assert.True(t, bytes.HasSuffix(buf.Bytes(), []byte("\n")))
}

func TestHandleMessage_Finalized(t *testing.T) {
	body, err := json.Marshal(DepartureFinalizedEvent{
		DepartureID: "d1",
		Report:      engine.Report{Rows: []engine.FinalizationRow{{VehicleID: "A", Seats: 5}}},
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, handleMessage(&buf, DepartureFinalizedQueue, body, at))
	assert.Contains(t, buf.String(), `"vehicle_id":"A"`)
}

func TestHandleMessage_Rejects(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, handleMessage(&buf, BookingConfirmedQueue, []byte("{not json"), at))
	assert.Error(t, handleMessage(&buf, "other.queue", []byte("{}"), at))
	assert.Zero(t, buf.Len(), "nothing is written for rejected messages")
}

func TestAuditConsumer_AppendsLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "audit.log")
	c := &AuditConsumer{Path: path}

	require.NoError(t, c.append(BookingCancelledQueue, []byte(`{"booking_id":"b1"}`)))
	require.NoError(t, c.append(BookingCancelledQueue, []byte(`{"booking_id":"b2"}`)))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := bytes.Split(bytes.TrimSpace(data), []byte("\n"))
	assert.Len(t, lines, 2)
}
