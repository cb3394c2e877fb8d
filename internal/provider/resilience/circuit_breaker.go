// Package resilience provides HTTP client wrappers with circuit breakers,
// timeouts and optional retries for outbound provider calls.
package resilience

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

// CircuitBreakerConfig holds configuration for the circuit breaker.
type CircuitBreakerConfig struct {
	// Name identifies the circuit breaker for logging/metrics.
	Name string

	// MaxRequests is the maximum number of requests allowed in half-open state.
	// Default: 1
	MaxRequests uint32

	// Interval is the cyclic period for clearing internal counts when closed.
	// Default: 0 (disabled)
	Interval time.Duration

	// Timeout is the period of open state before switching to half-open.
	// Default: ProviderOpenTimeout
	Timeout time.Duration

	// ReadyToTrip determines when to trip the circuit breaker.
	// If nil, uses DefaultReadyToTrip.
	ReadyToTrip func(counts gobreaker.Counts) bool

	// OnStateChange is called when the circuit breaker state changes.
	OnStateChange func(name string, from gobreaker.State, to gobreaker.State)
}

const (
	// ProviderOpenTimeout is how long a tripped provider is skipped.
	ProviderOpenTimeout = 30 * time.Second

	// ConsecutiveFailureThreshold trips a circuit regardless of failure ratio.
	ConsecutiveFailureThreshold = 3
)

// DefaultCircuitBreakerConfig returns the configuration shared by provider clients.
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:        name,
		MaxRequests: 1,
		Interval:    0,
		Timeout:     ProviderOpenTimeout,
		ReadyToTrip: DefaultReadyToTrip,
	}
}

// ProviderBreaker returns the default configuration with transitions logged to log.
func ProviderBreaker(name string, log zerolog.Logger) *CircuitBreakerConfig {
	cfg := DefaultCircuitBreakerConfig(name)
	cfg.OnStateChange = LogStateChanges(log)
	return &cfg
}

// DefaultReadyToTrip trips after ConsecutiveFailureThreshold failures in a row,
// or once at least 5 requests have been made with a failure rate of 50% or higher.
func DefaultReadyToTrip(counts gobreaker.Counts) bool {
	if counts.ConsecutiveFailures >= ConsecutiveFailureThreshold {
		return true
	}
	if counts.Requests < 5 {
		return false
	}
	return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.5
}

// LogStateChanges returns an OnStateChange callback that logs transitions.
func LogStateChanges(log zerolog.Logger) func(name string, from, to gobreaker.State) {
	return func(name string, from, to gobreaker.State) {
		level := zerolog.InfoLevel
		if to == gobreaker.StateOpen {
			level = zerolog.WarnLevel
		}
		log.WithLevel(level).
			Str("provider", name).
			Str("from", from.String()).
			Str("to", to.String()).
			Msg("circuit breaker state changed")
	}
}

// NewCircuitBreaker creates a new circuit breaker with the given configuration.
func NewCircuitBreaker[T any](cfg CircuitBreakerConfig) *gobreaker.CircuitBreaker[T] {
	readyToTrip := cfg.ReadyToTrip
	if readyToTrip == nil {
		readyToTrip = DefaultReadyToTrip
	}

	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: readyToTrip,
	}

	if cfg.OnStateChange != nil {
		settings.OnStateChange = cfg.OnStateChange
	}

	return gobreaker.NewCircuitBreaker[T](settings)
}
