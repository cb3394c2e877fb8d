package location_test

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/breatheroute/airvoice/internal/geo"
	"github.com/breatheroute/airvoice/internal/location"
)

var (
	now         = time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC)
	deviceCoord = geo.Coordinate{Lat: 52.0894, Lon: 5.1102}
	ipCoord     = geo.Coordinate{Lat: 52.3676, Lon: 4.9041}
	defaultLoc  = location.Resolved{
		Coordinate: geo.Coordinate{Lat: 51.9244, Lon: 4.4777},
		PlaceName:  "Rotterdam",
	}
)

type fakeIPLocator struct {
	estimate *location.Estimate
	err      error
	delay    time.Duration
	calls    atomic.Int32
	lastIP   string
}

func (f *fakeIPLocator) Locate(ctx context.Context, ip string) (*location.Estimate, error) {
	f.calls.Add(1)
	f.lastIP = ip
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.estimate, f.err
}

type fakeGeocoder struct {
	name  string
	err   error
	calls atomic.Int32
}

func (f *fakeGeocoder) PlaceName(_ context.Context, _ geo.Coordinate) (string, error) {
	f.calls.Add(1)
	return f.name, f.err
}

func newResolver(t *testing.T, ip location.IPLocator, geocoder location.ReverseGeocoder) *location.Resolver {
	t.Helper()
	r, err := location.NewResolver(location.Config{
		Default:   defaultLoc,
		IPLocator: ip,
		Geocoder:  geocoder,
		IPTimeout: 50 * time.Millisecond,
		Logger:    zerolog.New(io.Discard),
		Now:       func() time.Time { return now },
	})
	require.NoError(t, err)
	return r
}

func freshFix(c geo.Coordinate) *location.Fix {
	return &location.Fix{Coordinate: c, ReceivedAt: now.Add(-5 * time.Second)}
}

func TestResolver_DeviceTierWins(t *testing.T) {
	ip := &fakeIPLocator{estimate: &location.Estimate{Coordinate: ipCoord, PlaceName: "Amsterdam"}}
	geocoder := &fakeGeocoder{name: "Utrecht"}
	r := newResolver(t, ip, geocoder)

	got := r.Resolve(context.Background(), location.Request{DeviceFix: freshFix(deviceCoord)})

	assert.Equal(t, location.SourceDevice, got.Source)
	assert.Equal(t, deviceCoord, got.Coordinate)
	assert.Equal(t, "Utrecht", got.PlaceName)
	assert.False(t, got.Approximate())
	assert.Equal(t, int32(0), ip.calls.Load(), "device tier must not fall through to ip")
}

func TestResolver_DeviceGeocodeFailureUsesGenericLabel(t *testing.T) {
	r := newResolver(t, nil, &fakeGeocoder{err: errors.New("geocoder down")})

	got := r.Resolve(context.Background(), location.Request{DeviceFix: freshFix(deviceCoord)})

	assert.Equal(t, location.SourceDevice, got.Source)
	assert.Equal(t, location.DefaultGenericPlaceLabel, got.PlaceName)
}

func TestResolver_InvalidOrStaleDeviceFallsToIP(t *testing.T) {
	tests := []struct {
		name string
		fix  *location.Fix
	}{
		{"no fix", nil},
		{"null sentinel", freshFix(geo.Coordinate{})},
		{"out of range", freshFix(geo.Coordinate{Lat: 95, Lon: 4})},
		{"older than freshness", &location.Fix{Coordinate: deviceCoord, ReceivedAt: now.Add(-time.Minute)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ip := &fakeIPLocator{estimate: &location.Estimate{Coordinate: ipCoord, PlaceName: "Amsterdam"}}
			r := newResolver(t, ip, nil)

			got := r.Resolve(context.Background(), location.Request{DeviceFix: tt.fix, ClientIP: "203.0.113.7"})

			assert.Equal(t, location.SourceIP, got.Source)
			assert.Equal(t, ipCoord, got.Coordinate)
			assert.Equal(t, "Amsterdam", got.PlaceName)
			assert.True(t, got.Approximate())
			assert.Equal(t, "203.0.113.7", ip.lastIP)
		})
	}
}

func TestResolver_IPWithoutPlaceNameIsGeocoded(t *testing.T) {
	ip := &fakeIPLocator{estimate: &location.Estimate{Coordinate: ipCoord}}
	r := newResolver(t, ip, &fakeGeocoder{name: "Amsterdam-Centrum"})

	got := r.Resolve(context.Background(), location.Request{})

	assert.Equal(t, location.SourceIP, got.Source)
	assert.Equal(t, "Amsterdam-Centrum", got.PlaceName)
}

func TestResolver_StaleDeviceFallback(t *testing.T) {
	ip := &fakeIPLocator{err: errors.New("rate limited")}
	geocoder := &fakeGeocoder{name: "Utrecht"}
	r := newResolver(t, ip, geocoder)

	fix := &location.Fix{Coordinate: deviceCoord, ReceivedAt: now.Add(-10 * time.Minute)}
	got := r.Resolve(context.Background(), location.Request{DeviceFix: fix})

	assert.Equal(t, location.SourceReverseGeocoded, got.Source)
	assert.Equal(t, deviceCoord, got.Coordinate)
	assert.Equal(t, "Utrecht", got.PlaceName)
}

func TestResolver_AllTiersFailTerminateAtDefault(t *testing.T) {
	tests := []struct {
		name string
		ip   location.IPLocator
		fix  *location.Fix
	}{
		{"no collaborators", nil, nil},
		{"ip error", &fakeIPLocator{err: errors.New("boom")}, nil},
		{"ip nil estimate", &fakeIPLocator{}, nil},
		{"ip null island", &fakeIPLocator{estimate: &location.Estimate{Coordinate: geo.Coordinate{}}}, nil},
		{"ip timeout", &fakeIPLocator{estimate: &location.Estimate{Coordinate: ipCoord}, delay: time.Second}, nil},
		{
			"ip error and ancient device fix",
			&fakeIPLocator{err: errors.New("boom")},
			&location.Fix{Coordinate: deviceCoord, ReceivedAt: now.Add(-2 * time.Hour)},
		},
		{
			"ip error and invalid device fix",
			&fakeIPLocator{err: errors.New("boom")},
			freshFix(geo.Coordinate{Lat: 200, Lon: 0}),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newResolver(t, tt.ip, &fakeGeocoder{err: errors.New("down")})

			start := time.Now()
			got := r.Resolve(context.Background(), location.Request{DeviceFix: tt.fix})

			assert.Equal(t, location.SourceStaticDefault, got.Source)
			assert.Equal(t, defaultLoc.Coordinate, got.Coordinate)
			assert.Equal(t, "Rotterdam", got.PlaceName)
			assert.Less(t, time.Since(start), 500*time.Millisecond, "ip timeout bounds the chain")
		})
	}
}

func TestNewResolver_InvalidDefault(t *testing.T) {
	_, err := location.NewResolver(location.Config{
		Default: location.Resolved{Coordinate: geo.Coordinate{}, PlaceName: "Nowhere"},
	})
	assert.ErrorIs(t, err, location.ErrResolutionExhausted)

	_, err = location.NewResolver(location.Config{
		Default: location.Resolved{Coordinate: ipCoord},
	})
	assert.ErrorIs(t, err, location.ErrResolutionExhausted)
}
