package session_test

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/breatheroute/airvoice/internal/airquality"
	"github.com/breatheroute/airvoice/internal/geo"
	"github.com/breatheroute/airvoice/internal/location"
	"github.com/breatheroute/airvoice/internal/present"
	"github.com/breatheroute/airvoice/internal/session"
)

var (
	t0          = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	utrecht     = geo.Coordinate{Lat: 52.0907, Lon: 5.1214}
	defaultSpot = location.Resolved{
		Coordinate: geo.Coordinate{Lat: 51.9244, Lon: 4.4777},
		PlaceName:  "Rotterdam",
	}
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *fakeClock { return &fakeClock{now: t0} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// fakeFetcher returns readings stamped with the fake clock. When gate is set,
// each fetch waits for a value on it.
type fakeFetcher struct {
	clock *fakeClock
	index int
	err   error
	gate  chan struct{}
	calls atomic.Int32
}

func (f *fakeFetcher) Fetch(ctx context.Context, coord geo.Coordinate) (*airquality.Reading, error) {
	f.calls.Add(1)
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, &airquality.TimeoutError{Provider: "fake", Timeout: time.Second, Err: ctx.Err()}
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return &airquality.Reading{
		Index:       f.index,
		StationName: "Test Station",
		Station:     coord,
		Query:       coord,
		FetchedAt:   f.clock.Now(),
		Provider:    "fake",
	}, nil
}

type recordingDisplay struct {
	messages chan string
}

func newDisplay() *recordingDisplay {
	return &recordingDisplay{messages: make(chan string, 16)}
}

func (d *recordingDisplay) ShowText(_ context.Context, _ string, text string, _ time.Duration) error {
	d.messages <- text
	return nil
}

func (d *recordingDisplay) next(t *testing.T) string {
	t.Helper()
	select {
	case msg := <-d.messages:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for display message")
		return ""
	}
}

func (d *recordingDisplay) none(t *testing.T) {
	t.Helper()
	select {
	case msg := <-d.messages:
		t.Fatalf("unexpected display message: %q", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func newConfig(t *testing.T, clock *fakeClock, fetcher airquality.Fetcher, display *recordingDisplay) session.Config {
	t.Helper()
	resolver, err := location.NewResolver(location.Config{
		Default:           defaultSpot,
		StaleDeviceMaxAge: -1,
		Logger:            zerolog.New(io.Discard),
		Now:               clock.Now,
	})
	require.NoError(t, err)

	return session.Config{
		Resolver:  resolver,
		Fetcher:   fetcher,
		Display:   display,
		Presenter: present.New(present.Config{DiscloseApproximate: true}),
		Logger:    zerolog.New(io.Discard),
		Now:       clock.Now,
	}
}
