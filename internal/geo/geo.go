// Package geo provides geodesic distance math and coordinate parsing for
// shipping cost calculations.
package geo

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// ErrInvalidCoordinate is returned when a coordinate string cannot be parsed
// or falls outside the valid latitude/longitude range.
var ErrInvalidCoordinate = errors.New("geo: invalid coordinate")

// earthRadiusKm is the mean Earth radius used by the haversine formula.
const earthRadiusKm = 6371.0

var coordinatePattern = regexp.MustCompile(`^-?\d+(\.\d+)?\s*,\s*-?\d+(\.\d+)?$`)

// Point is a WGS84 latitude/longitude pair in decimal degrees.
type Point struct {
	Lat float64
	Lng float64
}

// ParsePoint parses a "lat,lng" string into a Point. The input must match the
// strict decimal form and stay within [-90,90] latitude and [-180,180]
// longitude. Anything else is rejected rather than guessed at.
func ParsePoint(raw string) (Point, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Point{}, fmt.Errorf("%w: empty input", ErrInvalidCoordinate)
	}
	if !coordinatePattern.MatchString(trimmed) {
		return Point{}, fmt.Errorf("%w: %q", ErrInvalidCoordinate, raw)
	}

	parts := strings.SplitN(trimmed, ",", 2)
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return Point{}, fmt.Errorf("%w: %q", ErrInvalidCoordinate, raw)
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return Point{}, fmt.Errorf("%w: %q", ErrInvalidCoordinate, raw)
	}

	if lat < -90 || lat > 90 {
		return Point{}, fmt.Errorf("%w: latitude %v out of range", ErrInvalidCoordinate, lat)
	}
	if lng < -180 || lng > 180 {
		return Point{}, fmt.Errorf("%w: longitude %v out of range", ErrInvalidCoordinate, lng)
	}

	return Point{Lat: lat, Lng: lng}, nil
}

// Distance returns the great-circle distance between two points in
// kilometres using the haversine formula.
func Distance(a, b Point) float64 {
	latA := radians(a.Lat)
	latB := radians(b.Lat)
	dLat := radians(b.Lat - a.Lat)
	dLng := radians(b.Lng - a.Lng)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(latA)*math.Cos(latB)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusKm * c
}

// RoundKm rounds a distance to two decimal places for display and storage.
func RoundKm(km float64) float64 {
	return math.Round(km*100) / 100
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
