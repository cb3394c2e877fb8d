package session_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/breatheroute/airvoice/internal/geo"
	"github.com/breatheroute/airvoice/internal/host"
	"github.com/breatheroute/airvoice/internal/session"
)

func newManager(t *testing.T) (*session.Manager, *fakeFetcher, *recordingDisplay, *fakeClock) {
	t.Helper()
	clock := newClock()
	fetcher := &fakeFetcher{clock: clock, index: 33}
	display := newDisplay()
	m := session.NewManager(newConfig(t, clock, fetcher, display))
	t.Cleanup(func() { _ = m.Shutdown(context.Background()) })
	return m, fetcher, display, clock
}

func TestManager_StartRunsInitialCycle(t *testing.T) {
	m, fetcher, display, _ := newManager(t)
	ctx := context.Background()

	require.NoError(t, m.StartSession(ctx, host.SessionStart{SessionID: "a", UserID: "u"}))
	assert.Contains(t, display.next(t), "AQI 33")
	assert.Equal(t, 1, m.Count())

	// Host retries of the same webhook must not restart the session.
	require.NoError(t, m.StartSession(ctx, host.SessionStart{SessionID: "a", UserID: "u"}))
	display.none(t)
	assert.Equal(t, 1, m.Count())
	assert.Equal(t, int32(1), fetcher.calls.Load())
}

func TestManager_SessionsAreIsolated(t *testing.T) {
	m, fetcher, display, _ := newManager(t)
	ctx := context.Background()

	require.NoError(t, m.StartSession(ctx, host.SessionStart{SessionID: "a"}))
	require.NoError(t, m.StartSession(ctx, host.SessionStart{SessionID: "b"}))
	display.next(t)
	display.next(t)

	assert.Equal(t, int32(2), fetcher.calls.Load(), "each session has its own cache")
	assert.Equal(t, []string{"a", "b"}, m.IDs())

	require.NoError(t, m.Location(ctx, "a", host.LocationEvent{Lat: utrecht.Lat, Lon: utrecht.Lon}))

	a, ok := m.Get("a")
	require.True(t, ok)
	b, ok := m.Get("b")
	require.True(t, ok)
	assert.NotNil(t, a.State().DeviceFix())
	assert.Nil(t, b.State().DeviceFix())
}

func TestManager_RoutesTranscriptions(t *testing.T) {
	m, _, display, clock := newManager(t)
	ctx := context.Background()

	require.NoError(t, m.StartSession(ctx, host.SessionStart{SessionID: "a"}))
	display.next(t)
	s, _ := m.Get("a")
	s.Wait()
	clock.Advance(30 * time.Second)

	require.NoError(t, m.Transcription(ctx, "a", host.TranscriptionEvent{Text: "how is the air", IsFinal: true}))
	assert.Contains(t, display.next(t), "(same as ~30s ago)")
}

func TestManager_UnknownSession(t *testing.T) {
	m, _, _, _ := newManager(t)
	ctx := context.Background()

	assert.ErrorIs(t, m.Transcription(ctx, "nope", host.TranscriptionEvent{Text: "aqi"}), session.ErrNotFound)
	assert.ErrorIs(t, m.Location(ctx, "nope", host.LocationEvent{Lat: 1, Lon: 1}), session.ErrNotFound)
	assert.ErrorIs(t, m.EndSession(ctx, "nope"), session.ErrNotFound)

	_, ok := m.Get("nope")
	assert.False(t, ok)
}

func TestManager_LocationValidation(t *testing.T) {
	m, _, display, _ := newManager(t)
	ctx := context.Background()

	require.NoError(t, m.StartSession(ctx, host.SessionStart{SessionID: "a"}))
	display.next(t)

	err := m.Location(ctx, "a", host.LocationEvent{Lat: 0, Lon: 0})
	var verr *geo.ValidationError
	assert.True(t, errors.As(err, &verr))

	err = m.Location(ctx, "a", host.LocationEvent{Lat: 45, Lon: 181})
	assert.True(t, errors.As(err, &verr))
}

func TestManager_StartRequiresID(t *testing.T) {
	m, _, _, _ := newManager(t)
	assert.ErrorIs(t, m.StartSession(context.Background(), host.SessionStart{}), session.ErrMissingSessionID)
}

func TestManager_EndSession(t *testing.T) {
	m, _, display, _ := newManager(t)
	ctx := context.Background()

	require.NoError(t, m.StartSession(ctx, host.SessionStart{SessionID: "a"}))
	display.next(t)
	s, _ := m.Get("a")

	require.NoError(t, m.EndSession(ctx, "a"))
	assert.Equal(t, 0, m.Count())
	assert.Equal(t, 0, s.Hub().Subscribers())
	assert.ErrorIs(t, m.EndSession(ctx, "a"), session.ErrNotFound)
}

func TestManager_Shutdown(t *testing.T) {
	m, _, display, _ := newManager(t)
	ctx := context.Background()

	require.NoError(t, m.StartSession(ctx, host.SessionStart{SessionID: "a"}))
	require.NoError(t, m.StartSession(ctx, host.SessionStart{SessionID: "b"}))
	display.next(t)
	display.next(t)

	shutdownCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	assert.False(t, m.ShuttingDown())
	require.NoError(t, m.Shutdown(shutdownCtx))

	assert.True(t, m.ShuttingDown())
	assert.Equal(t, 0, m.Count())
	assert.ErrorIs(t, m.StartSession(ctx, host.SessionStart{SessionID: "c"}), session.ErrShuttingDown)
}

func TestManager_Snapshot(t *testing.T) {
	m, _, display, _ := newManager(t)
	ctx := context.Background()

	_, ok := m.Snapshot("a")
	assert.False(t, ok)

	require.NoError(t, m.StartSession(ctx, host.SessionStart{SessionID: "a", UserID: "u"}))
	display.next(t)
	s, _ := m.Get("a")
	s.Wait()

	snap, ok := m.Snapshot("a")
	require.True(t, ok)
	assert.Equal(t, "a", snap.ID)
	assert.Equal(t, "u", snap.UserID)
	require.NotNil(t, snap.Cached)
	assert.Equal(t, 33, snap.Cached.Reading.Index)
}
