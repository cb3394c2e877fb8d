// Package airquality provides AQI readings, severity classification and the
// provider contract for air-quality lookups.
package airquality

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/breatheroute/airvoice/internal/geo"
)

// ErrUnavailable matches every ProviderError and TimeoutError.
var ErrUnavailable = errors.New("air quality provider unavailable")

// Reading is a single AQI observation fetched for one coordinate.
// Readings are never mutated once returned; a newer fetch supersedes them.
type Reading struct {
	// Index is the provider-computed AQI (>= 0).
	Index int

	// StationName is the reporting station's human-readable name.
	StationName string

	// Station is the reporting station's coordinate.
	Station geo.Coordinate

	// Query is the coordinate the reading was requested for.
	Query geo.Coordinate

	// DistanceMeters is the great-circle distance between Query and Station.
	// Display only; it never affects caching.
	DistanceMeters float64

	// FetchedAt is when the provider answered.
	FetchedAt time.Time

	// Provider identifies the data source.
	Provider string
}

// FetchedAtEpochMs returns FetchedAt as Unix milliseconds.
func (r *Reading) FetchedAtEpochMs() int64 {
	return r.FetchedAt.UnixMilli()
}

// Level classifies the reading against the default severity table.
func (r *Reading) Level() SeverityLevel {
	return Classify(r.Index)
}

// Fetcher fetches a reading for a coordinate.
type Fetcher interface {
	Fetch(ctx context.Context, coord geo.Coordinate) (*Reading, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, coord geo.Coordinate) (*Reading, error)

// Fetch calls f.
func (f FetcherFunc) Fetch(ctx context.Context, coord geo.Coordinate) (*Reading, error) {
	return f(ctx, coord)
}

// ProviderError is a well-formed but semantically failed provider exchange:
// non-success status, malformed body, or a missing index.
type ProviderError struct {
	Provider string
	Reason   string
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Provider, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Reason)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Is reports ErrUnavailable as a match.
func (e *ProviderError) Is(target error) bool {
	return target == ErrUnavailable
}

// TimeoutError is returned when a provider call exceeded its deadline.
type TimeoutError struct {
	Provider string
	Timeout  time.Duration
	Err      error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: timed out after %s", e.Provider, e.Timeout)
}

func (e *TimeoutError) Unwrap() error {
	return e.Err
}

// Is reports ErrUnavailable as a match.
func (e *TimeoutError) Is(target error) bool {
	return target == ErrUnavailable
}
