// Package location resolves where a session's user is through an ordered
// fallback chain: fresh device fix, IP estimate, stale device fix, static default.
package location

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/breatheroute/airvoice/internal/geo"
)

// ErrResolutionExhausted means even the static default is unusable.
// It is a startup configuration fault, never a runtime result.
var ErrResolutionExhausted = errors.New("location resolution exhausted: static default is invalid")

// Source records which tier of the chain produced a location.
type Source string

const (
	SourceDevice          Source = "device"
	SourceIP              Source = "ip"
	SourceReverseGeocoded Source = "reverse-geocoded-fallback"
	SourceStaticDefault   Source = "static-default"
)

// Resolved is the result of one resolution. It lives for a single lookup cycle.
type Resolved struct {
	Coordinate geo.Coordinate
	PlaceName  string
	Source     Source
}

// Approximate reports whether the location came from anything but the device.
// Whether to tell the user is up to the presenter.
func (r Resolved) Approximate() bool {
	return r.Source != SourceDevice
}

// Fix is a raw coordinate pushed by the host, with its receipt time.
type Fix struct {
	Coordinate geo.Coordinate
	ReceivedAt time.Time
}

// Request carries the per-session inputs of a resolution.
type Request struct {
	// DeviceFix is the last coordinate pushed for the session, if any.
	DeviceFix *Fix

	// ClientIP is the user's public IP if the host supplied one.
	// Empty asks the IP provider to locate the caller.
	ClientIP string
}

// Estimate is a network-origin location guess.
type Estimate struct {
	Coordinate geo.Coordinate
	PlaceName  string
}

// IPLocator estimates a location from an IP address.
type IPLocator interface {
	Locate(ctx context.Context, ip string) (*Estimate, error)
}

// ReverseGeocoder turns a coordinate into a human-readable place name.
type ReverseGeocoder interface {
	PlaceName(ctx context.Context, coord geo.Coordinate) (string, error)
}

// Default tuning for the resolver.
const (
	DefaultDeviceFreshness   = 30 * time.Second
	DefaultStaleDeviceMaxAge = 30 * time.Minute
	DefaultIPTimeout         = 2500 * time.Millisecond
	DefaultGeocodeTimeout    = 2 * time.Second
	DefaultGenericPlaceLabel = "your location"
)

// Config holds configuration for the Resolver.
type Config struct {
	// Default is the static fallback location (required, must be valid).
	Default Resolved

	// IPLocator is the network-origin tier (optional).
	IPLocator IPLocator

	// Geocoder names device coordinates (optional).
	Geocoder ReverseGeocoder

	// DeviceFreshness is how old a device fix may be to count as current (default: 30s).
	DeviceFreshness time.Duration

	// StaleDeviceMaxAge bounds the stale device tier; zero uses the default,
	// a negative value disables the tier.
	StaleDeviceMaxAge time.Duration

	// IPTimeout bounds the IP lookup (default: 2.5s).
	IPTimeout time.Duration

	// GeocodeTimeout bounds reverse geocoding (default: 2s).
	GeocodeTimeout time.Duration

	// GenericPlaceLabel replaces a place name that could not be resolved.
	GenericPlaceLabel string

	// Logger for tier failures.
	Logger zerolog.Logger

	// Now returns the current time (default: time.Now).
	Now func() time.Time
}

// Resolver produces one Resolved per lookup cycle. It never fails at runtime.
type Resolver struct {
	cfg Config
}

// NewResolver validates cfg and returns a Resolver.
func NewResolver(cfg Config) (*Resolver, error) {
	if err := geo.Validate(cfg.Default.Coordinate); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResolutionExhausted, err)
	}
	if strings.TrimSpace(cfg.Default.PlaceName) == "" {
		return nil, fmt.Errorf("%w: empty place name", ErrResolutionExhausted)
	}
	cfg.Default.Source = SourceStaticDefault

	if cfg.DeviceFreshness <= 0 {
		cfg.DeviceFreshness = DefaultDeviceFreshness
	}
	if cfg.StaleDeviceMaxAge == 0 {
		cfg.StaleDeviceMaxAge = DefaultStaleDeviceMaxAge
	}
	if cfg.IPTimeout <= 0 {
		cfg.IPTimeout = DefaultIPTimeout
	}
	if cfg.GeocodeTimeout <= 0 {
		cfg.GeocodeTimeout = DefaultGeocodeTimeout
	}
	if cfg.GenericPlaceLabel == "" {
		cfg.GenericPlaceLabel = DefaultGenericPlaceLabel
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Resolver{cfg: cfg}, nil
}

// Resolve walks the fallback chain. Each tier's failure is logged and the
// chain advances; the static default always terminates it.
func (r *Resolver) Resolve(ctx context.Context, req Request) Resolved {
	log := zerolog.Ctx(ctx)
	if log.GetLevel() == zerolog.Disabled {
		log = &r.cfg.Logger
	}

	if loc, ok := r.fromDevice(ctx, req.DeviceFix, log); ok {
		return loc
	}
	if loc, ok := r.fromIP(ctx, req.ClientIP, log); ok {
		return loc
	}
	if loc, ok := r.fromStaleDevice(ctx, req.DeviceFix, log); ok {
		return loc
	}

	log.Info().
		Str("place", r.cfg.Default.PlaceName).
		Msg("using static default location")
	return r.cfg.Default
}

func (r *Resolver) fromDevice(ctx context.Context, fix *Fix, log *zerolog.Logger) (Resolved, bool) {
	if fix == nil {
		log.Debug().Msg("no device fix for session")
		return Resolved{}, false
	}
	if err := geo.Validate(fix.Coordinate); err != nil {
		log.Debug().Err(err).Msg("device fix rejected")
		return Resolved{}, false
	}
	age := r.cfg.Now().Sub(fix.ReceivedAt)
	if age > r.cfg.DeviceFreshness {
		log.Debug().Dur("age", age).Msg("device fix too old for device tier")
		return Resolved{}, false
	}

	return Resolved{
		Coordinate: fix.Coordinate,
		PlaceName:  r.placeName(ctx, fix.Coordinate, log),
		Source:     SourceDevice,
	}, true
}

func (r *Resolver) fromIP(ctx context.Context, ip string, log *zerolog.Logger) (Resolved, bool) {
	if r.cfg.IPLocator == nil {
		return Resolved{}, false
	}

	ipCtx, cancel := context.WithTimeout(ctx, r.cfg.IPTimeout)
	estimate, err := r.cfg.IPLocator.Locate(ipCtx, ip)
	cancel()
	if err != nil {
		log.Warn().Err(err).Msg("ip location lookup failed")
		return Resolved{}, false
	}
	if estimate == nil {
		log.Warn().Msg("ip location lookup returned nothing")
		return Resolved{}, false
	}
	if err := geo.Validate(estimate.Coordinate); err != nil {
		log.Warn().Err(err).Msg("ip location rejected")
		return Resolved{}, false
	}

	place := strings.TrimSpace(estimate.PlaceName)
	if place == "" {
		place = r.placeName(ctx, estimate.Coordinate, log)
	}
	return Resolved{
		Coordinate: estimate.Coordinate,
		PlaceName:  place,
		Source:     SourceIP,
	}, true
}

func (r *Resolver) fromStaleDevice(ctx context.Context, fix *Fix, log *zerolog.Logger) (Resolved, bool) {
	if fix == nil || r.cfg.StaleDeviceMaxAge < 0 || !geo.IsValid(fix.Coordinate) {
		return Resolved{}, false
	}
	age := r.cfg.Now().Sub(fix.ReceivedAt)
	if age > r.cfg.StaleDeviceMaxAge {
		log.Debug().Dur("age", age).Msg("device fix too old for fallback tier")
		return Resolved{}, false
	}

	return Resolved{
		Coordinate: fix.Coordinate,
		PlaceName:  r.placeName(ctx, fix.Coordinate, log),
		Source:     SourceReverseGeocoded,
	}, true
}

// placeName reverse-geocodes coord, substituting the generic label on any failure.
func (r *Resolver) placeName(ctx context.Context, coord geo.Coordinate, log *zerolog.Logger) string {
	if r.cfg.Geocoder == nil {
		return r.cfg.GenericPlaceLabel
	}

	geoCtx, cancel := context.WithTimeout(ctx, r.cfg.GeocodeTimeout)
	defer cancel()

	name, err := r.cfg.Geocoder.PlaceName(geoCtx, coord)
	if err != nil {
		log.Warn().Err(err).Msg("reverse geocoding failed")
		return r.cfg.GenericPlaceLabel
	}
	if name = strings.TrimSpace(name); name == "" {
		return r.cfg.GenericPlaceLabel
	}
	return name
}
