// Package config loads airvoice configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/breatheroute/airvoice/internal/geo"
)

// ErrMissingWAQIToken is returned when the air-quality credential is absent.
var ErrMissingWAQIToken = errors.New("WAQI_TOKEN is required")

// Config holds all runtime configuration.
type Config struct {
	Port         string
	Env          string
	LogLevel     string
	OTelEnabled  bool
	OTLPEndpoint string
	SampleRatio  float64

	WAQIToken          string
	WAQIBaseURL        string
	IPAPIBaseURL       string
	NominatimBaseURL   string
	NominatimUserAgent string

	DefaultLatitude  float64
	DefaultLongitude float64
	DefaultPlaceName string

	VoiceCommands       []string
	TriggerCooldown     time.Duration
	CacheRecentTTL      time.Duration
	CacheRefreshTTL     time.Duration
	CacheMoveThreshold  float64
	DeviceFixFreshness  time.Duration
	StaleDeviceMaxAge   time.Duration
	AQITimeout          time.Duration
	IPTimeout           time.Duration
	GeocodeTimeout      time.Duration
	CycleTimeout        time.Duration
	DisplayDuration     time.Duration
	DiscloseApproximate bool
	EventRateLimit      int

	HostDisplayURL string
	HostAPIKey     string

	MQTTBroker      string
	MQTTPort        int
	MQTTClientID    string
	MQTTTopicPrefix string

	PubSubProjectID    string
	PubSubSubscription string
}

// FromEnv reads configuration from the process environment.
func FromEnv() (Config, error) {
	return FromLookup(os.LookupEnv)
}

// FromLookup reads configuration through lookup. Malformed values are
// reported together; absent values fall back to defaults.
func FromLookup(lookup func(string) (string, bool)) (Config, error) {
	r := reader{lookup: lookup}

	cfg := Config{
		Port:         r.getEnvOrDefault("APP_PORT", "8080"),
		Env:          r.getEnvOrDefault("APP_ENV", "development"),
		LogLevel:     r.getEnvOrDefault("LOG_LEVEL", "info"),
		OTelEnabled:  r.bool("OTEL_ENABLED", false),
		OTLPEndpoint: r.getEnvOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		SampleRatio:  r.float("OTEL_SAMPLE_RATIO", 1),

		WAQIToken:          r.getEnvOrDefault("WAQI_TOKEN", ""),
		WAQIBaseURL:        r.getEnvOrDefault("WAQI_BASE_URL", "https://api.waqi.info"),
		IPAPIBaseURL:       r.getEnvOrDefault("IPAPI_BASE_URL", "http://ip-api.com/json"),
		NominatimBaseURL:   r.getEnvOrDefault("NOMINATIM_BASE_URL", "https://nominatim.openstreetmap.org"),
		NominatimUserAgent: r.getEnvOrDefault("NOMINATIM_USER_AGENT", "airvoice/1.0"),

		DefaultLatitude:  r.float("DEFAULT_LATITUDE", 52.3676),
		DefaultLongitude: r.float("DEFAULT_LONGITUDE", 4.9041),
		DefaultPlaceName: r.getEnvOrDefault("DEFAULT_PLACE_NAME", "Amsterdam"),

		VoiceCommands:       r.list("VOICE_COMMANDS"),
		TriggerCooldown:     r.duration("TRIGGER_COOLDOWN", 1750*time.Millisecond),
		CacheRecentTTL:      r.duration("CACHE_RECENT_TTL", 2*time.Minute),
		CacheRefreshTTL:     r.duration("CACHE_REFRESH_TTL", 15*time.Minute),
		CacheMoveThreshold:  r.float("CACHE_MOVE_THRESHOLD_METERS", 2000),
		DeviceFixFreshness:  r.duration("DEVICE_FIX_FRESHNESS", 30*time.Second),
		StaleDeviceMaxAge:   r.duration("STALE_DEVICE_MAX_AGE", 30*time.Minute),
		AQITimeout:          r.duration("AQI_TIMEOUT", 4*time.Second),
		IPTimeout:           r.duration("IP_TIMEOUT", 2500*time.Millisecond),
		GeocodeTimeout:      r.duration("GEOCODE_TIMEOUT", 2*time.Second),
		CycleTimeout:        r.duration("CYCLE_TIMEOUT", 9*time.Second),
		DisplayDuration:     r.duration("DISPLAY_DURATION", 10*time.Second),
		DiscloseApproximate: r.bool("DISCLOSE_APPROXIMATE", true),
		EventRateLimit:      r.int("EVENT_RATE_LIMIT", 60),

		HostDisplayURL: r.getEnvOrDefault("HOST_DISPLAY_URL", ""),
		HostAPIKey:     r.getEnvOrDefault("HOST_API_KEY", ""),

		MQTTBroker:      r.getEnvOrDefault("MQTT_BROKER", ""),
		MQTTPort:        r.int("MQTT_PORT", 1883),
		MQTTClientID:    r.getEnvOrDefault("MQTT_CLIENT_ID", "airvoice"),
		MQTTTopicPrefix: r.getEnvOrDefault("MQTT_TOPIC_PREFIX", "airvoice/sessions"),

		PubSubProjectID:    r.getEnvOrDefault("PUBSUB_PROJECT_ID", ""),
		PubSubSubscription: r.getEnvOrDefault("PUBSUB_SUBSCRIPTION", ""),
	}

	return cfg, errors.Join(r.errs...)
}

// Validate checks required keys and cross-field constraints.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.WAQIToken) == "" {
		errs = append(errs, ErrMissingWAQIToken)
	}
	if err := geo.Validate(c.DefaultCoordinate()); err != nil {
		errs = append(errs, fmt.Errorf("DEFAULT_LATITUDE/DEFAULT_LONGITUDE: %w", err))
	}
	if strings.TrimSpace(c.DefaultPlaceName) == "" {
		errs = append(errs, errors.New("DEFAULT_PLACE_NAME must not be empty"))
	}
	if c.CacheRefreshTTL < c.CacheRecentTTL {
		errs = append(errs, fmt.Errorf("CACHE_REFRESH_TTL (%s) must not be shorter than CACHE_RECENT_TTL (%s)",
			c.CacheRefreshTTL, c.CacheRecentTTL))
	}
	if c.SampleRatio < 0 || c.SampleRatio > 1 {
		errs = append(errs, fmt.Errorf("OTEL_SAMPLE_RATIO %v must be within [0, 1]", c.SampleRatio))
	}
	if c.EventRateLimit <= 0 {
		errs = append(errs, errors.New("EVENT_RATE_LIMIT must be positive"))
	}
	if c.MQTTEnabled() && (c.MQTTPort <= 0 || c.MQTTPort > 65535) {
		errs = append(errs, fmt.Errorf("MQTT_PORT %d out of range", c.MQTTPort))
	}
	if (c.PubSubProjectID == "") != (c.PubSubSubscription == "") {
		errs = append(errs, errors.New("PUBSUB_PROJECT_ID and PUBSUB_SUBSCRIPTION must be set together"))
	}
	return errors.Join(errs...)
}

// DefaultCoordinate returns the static fallback coordinate.
func (c Config) DefaultCoordinate() geo.Coordinate {
	return geo.Coordinate{Lat: c.DefaultLatitude, Lon: c.DefaultLongitude}
}

// IsDevelopment reports whether APP_ENV is development.
func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

// MQTTEnabled reports whether MQTT ingress is configured.
func (c Config) MQTTEnabled() bool {
	return c.MQTTBroker != ""
}

// PubSubEnabled reports whether Pub/Sub ingress is configured.
func (c Config) PubSubEnabled() bool {
	return c.PubSubProjectID != "" && c.PubSubSubscription != ""
}

type reader struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (r *reader) getEnvOrDefault(key, defaultValue string) string {
	if value, ok := r.lookup(key); ok && value != "" {
		return value
	}
	return defaultValue
}

func (r *reader) duration(key string, defaultValue time.Duration) time.Duration {
	raw := r.getEnvOrDefault(key, "")
	if raw == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return d
}

func (r *reader) float(key string, defaultValue float64) float64 {
	raw := r.getEnvOrDefault(key, "")
	if raw == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return f
}

func (r *reader) int(key string, defaultValue int) int {
	raw := r.getEnvOrDefault(key, "")
	if raw == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return n
}

func (r *reader) bool(key string, defaultValue bool) bool {
	raw := r.getEnvOrDefault(key, "")
	if raw == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return b
}

func (r *reader) list(key string) []string {
	raw := r.getEnvOrDefault(key, "")
	if raw == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
