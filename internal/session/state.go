// Package session owns per-session state and runs air-quality lookup cycles
// for host sessions.
package session

import (
	"sync"

	"github.com/breatheroute/airvoice/internal/location"
)

// State is everything a session remembers between events. It is owned by
// one session and discarded when the session ends.
type State struct {
	Trigger *Trigger
	Cache   *Cache

	mu        sync.Mutex
	deviceFix *location.Fix
	clientIP  string
}

// NewState creates state for a new session.
func NewState(trigger *Trigger, cache *Cache, clientIP string) *State {
	return &State{Trigger: trigger, Cache: cache, clientIP: clientIP}
}

// SetDeviceFix records the latest coordinate pushed by the host.
func (s *State) SetDeviceFix(fix location.Fix) {
	s.mu.Lock()
	s.deviceFix = &fix
	s.mu.Unlock()
}

// DeviceFix returns a copy of the latest device fix, if any.
func (s *State) DeviceFix() *location.Fix {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.deviceFix == nil {
		return nil
	}
	fix := *s.deviceFix
	return &fix
}

// ClientIP returns the user's public IP as reported by the host.
func (s *State) ClientIP() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clientIP
}

// resolveRequest snapshots the inputs of a location resolution.
func (s *State) resolveRequest() location.Request {
	return location.Request{DeviceFix: s.DeviceFix(), ClientIP: s.ClientIP()}
}
