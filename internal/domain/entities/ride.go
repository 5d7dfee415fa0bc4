package entities

import (
	"errors"
	"time"
)

var ErrRideNotFound = errors.New("ride not found")

// JoinWindow is how long after StartAt riders may still join a ride.
const JoinWindow = 45 * time.Minute

// RideEvent is a scheduled group ride. Location is optional; rides without it
// never appear in nearby feeds.
//
// Go Learning Note — "omitempty" Struct Tag:
// Fields tagged with `json:"...,omitempty"` are excluded from JSON output when
// they hold their zero value. For strings that's "", for pointers nil. A ride
// created without a location therefore serializes without "location" and
// "geohash" keys at all, which is exactly what clients test for.
type RideEvent struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	IsPublic    bool      `json:"is_public"`
	LeaderUID   string    `json:"leader_uid"`
	StartAt     time.Time `json:"start_at"`
	JoinCloseAt time.Time `json:"join_close_at"`
	MemberCount int       `json:"member_count"`
	Location    *GeoPoint `json:"location,omitempty"`
	Geohash     string    `json:"geohash,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewRideEvent creates a ride led by leaderUID with a single member. The
// geohash parameter should be pre-computed by the geo package and is ignored
// when location is nil.
func NewRideEvent(id, leaderUID, title string, isPublic bool, startAt time.Time, location *GeoPoint, geohash string) *RideEvent {
	ride := &RideEvent{
		ID:          id,
		Title:       title,
		IsPublic:    isPublic,
		LeaderUID:   leaderUID,
		StartAt:     startAt,
		JoinCloseAt: startAt.Add(JoinWindow),
		MemberCount: 1,
		CreatedAt:   time.Now(),
	}
	if location != nil {
		loc := *location
		ride.Location = &loc
		ride.Geohash = geohash
	}
	return ride
}

// JoinOpen reports whether the join window is still open at now.
func (r *RideEvent) JoinOpen(now time.Time) bool {
	return !now.After(r.JoinCloseAt)
}

// Record projects the ride into the shape the proximity layer consumes.
func (r *RideEvent) Record() TrackedRecord {
	rec := TrackedRecord{
		ID:        r.ID,
		Geohash:   r.Geohash,
		CreatedAt: r.CreatedAt,
		Payload:   r,
	}
	if r.Location != nil {
		rec.Point = *r.Location
		rec.HasPoint = true
	}
	return rec
}
