package resilience

import (
	"sort"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
)

// Health is a point-in-time view of one outbound provider.
type Health struct {
	Name   string
	State  gobreaker.State
	Counts gobreaker.Counts

	LastSuccessAt *time.Time
	LastFailureAt *time.Time
	LastError     string
}

// Closed reports whether requests flow normally.
func (h Health) Closed() bool { return h.State == gobreaker.StateClosed }

// HalfOpen reports whether the breaker is probing a recovering provider.
func (h Health) HalfOpen() bool { return h.State == gobreaker.StateHalfOpen }

// Open reports whether requests are being rejected without a call.
func (h Health) Open() bool { return h.State == gobreaker.StateOpen }

// Registry tracks the outbound clients of one process (AQI, IP lookup,
// geocoder, host display) and their last outcomes. Clients join it through
// ClientConfig.Registry.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]*tracked
	now     func() time.Time
}

type tracked struct {
	client      *Client
	lastSuccess time.Time
	lastFailure time.Time
	lastError   string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		clients: make(map[string]*tracked),
		now:     time.Now,
	}
}

// track adds c under name; a later client with the same name replaces it.
func (r *Registry) track(name string, c *Client) {
	r.mu.Lock()
	r.clients[name] = &tracked{client: c}
	r.mu.Unlock()
}

// observe records the outcome of one call made through name.
func (r *Registry) observe(name string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.clients[name]
	if !ok {
		return
	}
	if err == nil {
		t.lastSuccess = r.now()
		return
	}
	t.lastFailure = r.now()
	t.lastError = err.Error()
}

// Health returns the view of one provider.
func (r *Registry) Health(name string) (Health, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.clients[name]
	if !ok {
		return Health{}, false
	}
	return t.health(name), true
}

// Snapshot returns every provider sorted by name.
func (r *Registry) Snapshot() []Health {
	r.mu.RLock()
	out := make([]Health, 0, len(r.clients))
	for name, t := range r.clients {
		out = append(out, t.health(name))
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Degraded reports whether any provider's breaker is not closed.
func (r *Registry) Degraded() bool {
	for _, h := range r.Snapshot() {
		if !h.Closed() {
			return true
		}
	}
	return false
}

// Len returns the number of tracked providers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

func (t *tracked) health(name string) Health {
	return Health{
		Name:          name,
		State:         t.client.CircuitBreakerState(),
		Counts:        t.client.CircuitBreakerCounts(),
		LastSuccessAt: timePtr(t.lastSuccess),
		LastFailureAt: timePtr(t.lastFailure),
		LastError:     t.lastError,
	}
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
