package entities

import (
	"errors"
	"time"
)

// SOSStatus is the lifecycle state of an SOS alert.
type SOSStatus string

const (
	SOSStatusActive   SOSStatus = "active"
	SOSStatusResolved SOSStatus = "resolved"
)

var (
	ErrSOSNotFound     = errors.New("sos not found")
	ErrActiveSOSExists = errors.New("user already has an active sos")
	ErrNotSOSOwner     = errors.New("only the sender can resolve an sos")
)

// SOSEvent is a rider's distress alert. A user has at most one active SOS;
// only its sender may resolve it.
type SOSEvent struct {
	ID         string     `json:"id"`
	UID        string     `json:"uid"`
	Status     SOSStatus  `json:"status"`
	Point      GeoPoint   `json:"location"`
	Geohash    string     `json:"geohash"`
	Username   string     `json:"username,omitempty"`
	BloodGroup string     `json:"blood_group,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

// SOSProfile is the best-effort profile snapshot attached to an alert so
// responders see who needs help without another lookup.
type SOSProfile struct {
	Username   string `json:"username"`
	BloodGroup string `json:"blood_group"`
}

// NewSOSEvent creates an active alert at point.
func NewSOSEvent(id, uid string, point GeoPoint, geohash string, profile SOSProfile) *SOSEvent {
	return &SOSEvent{
		ID:         id,
		UID:        uid,
		Status:     SOSStatusActive,
		Point:      point,
		Geohash:    geohash,
		Username:   profile.Username,
		BloodGroup: profile.BloodGroup,
		CreatedAt:  time.Now(),
	}
}

// IsActive reports whether the alert has not been resolved.
func (s *SOSEvent) IsActive() bool {
	return s.Status == SOSStatusActive
}

// Resolve marks the alert resolved at now. Resolving twice keeps the first
// timestamp.
func (s *SOSEvent) Resolve(now time.Time) {
	if s.Status == SOSStatusResolved {
		return
	}
	s.Status = SOSStatusResolved
	s.ResolvedAt = &now
}

// Record projects the alert into the shape the proximity layer consumes.
func (s *SOSEvent) Record() TrackedRecord {
	return TrackedRecord{
		ID:        s.ID,
		Point:     s.Point,
		HasPoint:  true,
		Geohash:   s.Geohash,
		Status:    string(s.Status),
		CreatedAt: s.CreatedAt,
		Payload:   s,
	}
}
