// Package host defines the boundary with the session runtime that delivers
// speech and location events and renders text on the user's display.
package host

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/breatheroute/airvoice/internal/geo"
)

var (
	// ErrMissingCoordinate is returned when a location payload lacks an axis.
	ErrMissingCoordinate = errors.New("location event requires latitude and longitude")

	// ErrUnknownSession is returned by dispatchers for events addressed to
	// a session that is not live.
	ErrUnknownSession = errors.New("session not found")
)

// TranscriptionEvent is one transcribed utterance, partial or final.
type TranscriptionEvent struct {
	Text    string `json:"text"`
	IsFinal bool   `json:"isFinal"`
}

// LocationEvent is a raw coordinate pushed by the host.
type LocationEvent struct {
	Lat float64
	Lon float64
}

// Coordinate returns the event as a geo.Coordinate.
func (e LocationEvent) Coordinate() geo.Coordinate {
	return geo.Coordinate{Lat: e.Lat, Lon: e.Lon}
}

// UnmarshalJSON accepts both {latitude, longitude} and {lat, lon}.
// An absent axis is an error rather than zero.
func (e *LocationEvent) UnmarshalJSON(data []byte) error {
	var raw struct {
		Latitude  *float64 `json:"latitude"`
		Longitude *float64 `json:"longitude"`
		Lat       *float64 `json:"lat"`
		Lon       *float64 `json:"lon"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	lat := raw.Latitude
	if lat == nil {
		lat = raw.Lat
	}
	lon := raw.Longitude
	if lon == nil {
		lon = raw.Lon
	}
	if lat == nil || lon == nil {
		return ErrMissingCoordinate
	}

	e.Lat, e.Lon = *lat, *lon
	return nil
}

// MarshalJSON writes the long key form.
func (e LocationEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	}{e.Lat, e.Lon})
}

// SessionStart describes a session the host has opened.
type SessionStart struct {
	SessionID string
	UserID    string
	ClientIP  string
}

// Display renders text on the user's display.
type Display interface {
	ShowText(ctx context.Context, sessionID, text string, duration time.Duration) error
}

// DisplayFunc adapts a function to the Display interface.
type DisplayFunc func(ctx context.Context, sessionID, text string, duration time.Duration) error

// ShowText calls f.
func (f DisplayFunc) ShowText(ctx context.Context, sessionID, text string, duration time.Duration) error {
	return f(ctx, sessionID, text, duration)
}

// Dispatcher receives host events from any ingress: webhook, MQTT or Pub/Sub.
type Dispatcher interface {
	StartSession(ctx context.Context, start SessionStart) error
	EndSession(ctx context.Context, sessionID string) error
	Transcription(ctx context.Context, sessionID string, event TranscriptionEvent) error
	Location(ctx context.Context, sessionID string, event LocationEvent) error
}
