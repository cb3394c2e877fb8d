// Package hosttest provides a recording host.Dispatcher for ingress tests.
package hosttest

import (
	"context"
	"sync"

	"github.com/breatheroute/airvoice/internal/host"
)

// Call is one recorded dispatcher invocation.
type Call struct {
	Method        string
	SessionID     string
	Start         host.SessionStart
	Transcription host.TranscriptionEvent
	Location      host.LocationEvent
}

// Dispatcher records every call and returns Err.
type Dispatcher struct {
	Err error

	mu    sync.Mutex
	calls []Call
}

var _ host.Dispatcher = (*Dispatcher)(nil)

func (d *Dispatcher) record(c Call) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, c)
	return d.Err
}

// Calls returns a copy of the recorded calls.
func (d *Dispatcher) Calls() []Call {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Call(nil), d.calls...)
}

func (d *Dispatcher) StartSession(_ context.Context, start host.SessionStart) error {
	return d.record(Call{Method: "StartSession", SessionID: start.SessionID, Start: start})
}

func (d *Dispatcher) EndSession(_ context.Context, sessionID string) error {
	return d.record(Call{Method: "EndSession", SessionID: sessionID})
}

func (d *Dispatcher) Transcription(_ context.Context, sessionID string, event host.TranscriptionEvent) error {
	return d.record(Call{Method: "Transcription", SessionID: sessionID, Transcription: event})
}

func (d *Dispatcher) Location(_ context.Context, sessionID string, event host.LocationEvent) error {
	return d.record(Call{Method: "Location", SessionID: sessionID, Location: event})
}
