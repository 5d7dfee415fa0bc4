package entities

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrInvalidArgument is returned for malformed coordinates, non-positive radii
// and empty identifiers. Callers match it with errors.Is.
var ErrInvalidArgument = errors.New("invalid argument")

// GeoPoint is a latitude/longitude pair in degrees.
//
// Go Learning Note — Value Types vs Reference Types:
// GeoPoint is a small, immutable data holder. It is passed and returned by
// value (not a pointer), which is idiomatic for small structs. Value types are
// copied on assignment, which is fine here since GeoPoint is only 16 bytes
// (two float64s), and it means no caller can mutate a point another caller
// holds.
type GeoPoint struct {
	Latitude  float64 `json:"lat" firestore:"lat"`
	Longitude float64 `json:"lng" firestore:"lng"`
}

// NewGeoPoint creates a GeoPoint value from latitude and longitude.
func NewGeoPoint(lat, lng float64) GeoPoint {
	return GeoPoint{
		Latitude:  lat,
		Longitude: lng,
	}
}

// Validate reports whether the point lies within [-90,90] x [-180,180].
// NaN and infinite values are rejected.
func (p GeoPoint) Validate() error {
	if math.IsNaN(p.Latitude) || math.IsInf(p.Latitude, 0) || p.Latitude < -90 || p.Latitude > 90 {
		return fmt.Errorf("%w: latitude %v out of range [-90, 90]", ErrInvalidArgument, p.Latitude)
	}
	if math.IsNaN(p.Longitude) || math.IsInf(p.Longitude, 0) || p.Longitude < -180 || p.Longitude > 180 {
		return fmt.Errorf("%w: longitude %v out of range [-180, 180]", ErrInvalidArgument, p.Longitude)
	}
	return nil
}

// Valid is the boolean form of Validate.
func (p GeoPoint) Valid() bool {
	return p.Validate() == nil
}

// PositionUpdate is a single device's current position together with its
// geohash. It is the unit written by the proximity publisher; the Geohash
// field is what the live window queries range over.
type PositionUpdate struct {
	ID        string    `json:"id"`
	Point     GeoPoint  `json:"location"`
	Geohash   string    `json:"geohash"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewPositionUpdate creates a PositionUpdate with the current timestamp.
// The geohash parameter should be pre-computed by the geo package.
func NewPositionUpdate(id string, point GeoPoint, geohash string) *PositionUpdate {
	return &PositionUpdate{
		ID:        id,
		Point:     point,
		Geohash:   geohash,
		UpdatedAt: time.Now(),
	}
}
