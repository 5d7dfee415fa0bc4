package entities

import "time"

// Collections hold the records the nearby feeds range over.
const (
	CollectionRides = "rideEvents"
	CollectionSOS   = "sosEvents"
)

// TrackedRecord is a geotagged record as delivered by a live window stream.
// ID is unique per record and stable across updates; a moved record arrives
// as a new TrackedRecord with the same ID and a new Point.
//
// Payload carries the domain fields. For the two feeds in this service it is
// either *RideEvent or *SOSEvent; code that needs domain fields uses a type
// switch rather than assuming one.
type TrackedRecord struct {
	ID        string    `json:"id"`
	Point     GeoPoint  `json:"location"`
	HasPoint  bool      `json:"-"`
	Geohash   string    `json:"geohash"`
	Status    string    `json:"status,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	Payload   any       `json:"payload,omitempty"`
}

// Locatable reports whether the record carries a usable point. Rides may be
// created without a location and are then invisible to proximity queries.
func (r TrackedRecord) Locatable() bool {
	return r.HasPoint && r.Point.Valid()
}
