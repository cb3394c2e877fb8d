package resilience_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/breatheroute/airvoice/internal/provider/resilience"
)

func tracked(registry *resilience.Registry, names ...string) {
	for _, name := range names {
		cfg := resilience.DefaultClientConfig(name)
		cfg.Registry = registry
		_ = resilience.NewClient(cfg)
	}
}

func TestRegistry_TracksNewClients(t *testing.T) {
	registry := resilience.NewRegistry()
	tracked(registry, "waqi")

	assert.Equal(t, 1, registry.Len())

	health, ok := registry.Health("waqi")
	require.True(t, ok)
	assert.Equal(t, "waqi", health.Name)
	assert.Equal(t, gobreaker.StateClosed, health.State)
	assert.True(t, health.Closed())
	assert.Nil(t, health.LastSuccessAt)
	assert.Nil(t, health.LastFailureAt)
	assert.False(t, registry.Degraded())
}

func TestRegistry_SameNameReplaces(t *testing.T) {
	registry := resilience.NewRegistry()
	tracked(registry, "ipapi", "ipapi")

	assert.Equal(t, 1, registry.Len())
}

func TestRegistry_UnknownProvider(t *testing.T) {
	registry := resilience.NewRegistry()

	_, ok := registry.Health("nonexistent")
	assert.False(t, ok)
	assert.Empty(t, registry.Snapshot())
	assert.False(t, registry.Degraded())
}

func TestRegistry_SnapshotSorted(t *testing.T) {
	registry := resilience.NewRegistry()
	tracked(registry, "waqi", "host-display", "ipapi")

	snapshot := registry.Snapshot()
	require.Len(t, snapshot, 3)

	assert.Equal(t, "host-display", snapshot[0].Name)
	assert.Equal(t, "ipapi", snapshot[1].Name)
	assert.Equal(t, "waqi", snapshot[2].Name)
}

func TestRegistry_DegradedWhenCircuitOpens(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	registry := resilience.NewRegistry()
	tracked(registry, "ipapi")

	breaker := resilience.DefaultCircuitBreakerConfig("waqi")
	breaker.ReadyToTrip = func(counts gobreaker.Counts) bool { return counts.ConsecutiveFailures >= 1 }
	cfg := resilience.ProviderClientConfig("waqi", time.Second)
	cfg.CircuitBreaker = &breaker
	cfg.Registry = registry
	client := resilience.NewClient(cfg)

	resp, err := get(t, client, server.URL)
	require.NoError(t, err)
	resp.Body.Close()

	health, ok := registry.Health("waqi")
	require.True(t, ok)
	assert.True(t, health.Open())
	assert.NotNil(t, health.LastFailureAt)
	assert.Contains(t, health.LastError, "Bad Gateway")
	assert.True(t, registry.Degraded())
}

func TestHealth_States(t *testing.T) {
	tests := []struct {
		state    gobreaker.State
		closed   bool
		halfOpen bool
		open     bool
	}{
		{gobreaker.StateClosed, true, false, false},
		{gobreaker.StateHalfOpen, false, true, false},
		{gobreaker.StateOpen, false, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.state.String(), func(t *testing.T) {
			h := resilience.Health{State: tt.state}
			assert.Equal(t, tt.closed, h.Closed())
			assert.Equal(t, tt.halfOpen, h.HalfOpen())
			assert.Equal(t, tt.open, h.Open())
		})
	}
}
