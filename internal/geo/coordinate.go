// Package geo provides coordinate validation and distance helpers.
package geo

import (
	"fmt"
	"math"
)

// Coordinate is a WGS84 latitude/longitude pair in degrees.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// ValidationError describes why a coordinate was rejected.
type ValidationError struct {
	Field  string
	Value  float64
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid coordinate: " + e.Reason
	}
	return fmt.Sprintf("invalid coordinate: %s %v %s", e.Field, e.Value, e.Reason)
}

// Validate checks that c is a usable coordinate.
// The pair (0, 0) is the default of uninitialized clients and is treated as absent.
func Validate(c Coordinate) error {
	if math.IsNaN(c.Lat) || math.IsInf(c.Lat, 0) {
		return &ValidationError{Field: "lat", Value: c.Lat, Reason: "is not a number"}
	}
	if math.IsNaN(c.Lon) || math.IsInf(c.Lon, 0) {
		return &ValidationError{Field: "lon", Value: c.Lon, Reason: "is not a number"}
	}
	if c.Lat < -90 || c.Lat > 90 {
		return &ValidationError{Field: "lat", Value: c.Lat, Reason: "out of range [-90, 90]"}
	}
	if c.Lon < -180 || c.Lon > 180 {
		return &ValidationError{Field: "lon", Value: c.Lon, Reason: "out of range [-180, 180]"}
	}
	if c.Lat == 0 && c.Lon == 0 {
		return &ValidationError{Reason: "null island sentinel (0, 0)"}
	}
	return nil
}

// IsValid reports whether c passes Validate.
func IsValid(c Coordinate) bool {
	return Validate(c) == nil
}

// String formats the coordinate with five decimals (about one meter).
func (c Coordinate) String() string {
	return fmt.Sprintf("%.5f,%.5f", c.Lat, c.Lon)
}

// Distance returns the great-circle distance between a and b in meters
// using the Haversine formula.
func Distance(a, b Coordinate) float64 {
	const earthRadius = 6371000 // meters

	lat1Rad := a.Lat * math.Pi / 180
	lat2Rad := b.Lat * math.Pi / 180
	deltaLat := (b.Lat - a.Lat) * math.Pi / 180
	deltaLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(deltaLon/2)*math.Sin(deltaLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadius * c
}
