package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const lookupMeterName = "github.com/breatheroute/airvoice/internal/session"

// Cycle outcomes.
const (
	OutcomePresented   = "presented"
	OutcomeUnavailable = "unavailable"
	OutcomeTimeout     = "timeout"
	OutcomePanic       = "panic"
)

// LookupMetrics holds the instruments recorded by lookup cycles.
type LookupMetrics struct {
	cycleTotal      metric.Int64Counter
	cycleDuration   metric.Float64Histogram
	cacheTierTotal  metric.Int64Counter
	locationSource  metric.Int64Counter
	providerLatency metric.Float64Histogram
	ignoredTotal    metric.Int64Counter
}

// NewLookupMetrics creates lookup metrics on the global meter provider.
func NewLookupMetrics() (*LookupMetrics, error) {
	meter := otel.Meter(lookupMeterName)

	cycleTotal, err := meter.Int64Counter(
		"airvoice.cycle.total",
		metric.WithDescription("Lookup cycles by outcome"),
		metric.WithUnit("{cycle}"),
	)
	if err != nil {
		return nil, err
	}

	cycleDuration, err := meter.Float64Histogram(
		"airvoice.cycle.duration",
		metric.WithDescription("Duration of lookup cycles in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	cacheTierTotal, err := meter.Int64Counter(
		"airvoice.cache.tier",
		metric.WithDescription("Cache decisions by staleness tier"),
		metric.WithUnit("{lookup}"),
	)
	if err != nil {
		return nil, err
	}

	locationSource, err := meter.Int64Counter(
		"airvoice.location.source",
		metric.WithDescription("Resolved locations by fallback tier"),
		metric.WithUnit("{resolution}"),
	)
	if err != nil {
		return nil, err
	}

	providerLatency, err := meter.Float64Histogram(
		"provider.request.duration",
		metric.WithDescription("Duration of provider requests in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	ignoredTotal, err := meter.Int64Counter(
		"airvoice.trigger.ignored",
		metric.WithDescription("Recognized utterances ignored by the trigger"),
		metric.WithUnit("{utterance}"),
	)
	if err != nil {
		return nil, err
	}

	return &LookupMetrics{
		cycleTotal:      cycleTotal,
		cycleDuration:   cycleDuration,
		cacheTierTotal:  cacheTierTotal,
		locationSource:  locationSource,
		providerLatency: providerLatency,
		ignoredTotal:    ignoredTotal,
	}, nil
}

// RecordCycle records a finished cycle. Safe on a nil receiver.
func (m *LookupMetrics) RecordCycle(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("cycle.outcome", outcome))
	ctx := context.TODO()
	m.cycleTotal.Add(ctx, 1, attrs)
	m.cycleDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordCacheTier records which staleness tier served a lookup.
func (m *LookupMetrics) RecordCacheTier(tier string) {
	if m == nil {
		return
	}
	m.cacheTierTotal.Add(context.TODO(), 1, metric.WithAttributes(attribute.String("cache.tier", tier)))
}

// RecordLocationSource records which fallback tier resolved a location.
func (m *LookupMetrics) RecordLocationSource(source string) {
	if m == nil {
		return
	}
	m.locationSource.Add(context.TODO(), 1, metric.WithAttributes(attribute.String("location.source", source)))
}

// RecordProviderRequest records the latency of an air-quality fetch.
func (m *LookupMetrics) RecordProviderRequest(provider string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("provider.name", provider),
		attribute.String("provider.operation", "fetch"),
	}
	if err != nil {
		attrs = append(attrs, attribute.Bool("error", true))
	}
	m.providerLatency.Record(context.TODO(), duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordIgnored records a recognized utterance dropped because a cycle was
// in flight or cooling down.
func (m *LookupMetrics) RecordIgnored(state string) {
	if m == nil {
		return
	}
	m.ignoredTotal.Add(context.TODO(), 1, metric.WithAttributes(attribute.String("trigger.state", state)))
}
