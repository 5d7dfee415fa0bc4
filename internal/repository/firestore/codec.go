package firestore

import (
	"fmt"
	"time"

	"cloud.google.com/go/firestore"

	"convoy/internal/domain/entities"
)

// rideDoc is the stored shape of a ride. Location fields are nullable: rides
// created without a place have lat, lng and geohash set to null.
type rideDoc struct {
	Title       string    `firestore:"title"`
	IsPublic    bool      `firestore:"isPublic"`
	LeaderUID   string    `firestore:"leaderUid"`
	StartAt     time.Time `firestore:"startAt"`
	JoinCloseAt time.Time `firestore:"joinCloseAt"`
	MemberCount int       `firestore:"memberCount"`
	Lat         *float64  `firestore:"lat"`
	Lng         *float64  `firestore:"lng"`
	Geohash     *string   `firestore:"geohash"`
	CreatedAt   time.Time `firestore:"createdAt,serverTimestamp"`
}

type sosDoc struct {
	UID        string     `firestore:"uid"`
	Status     string     `firestore:"status"`
	Lat        float64    `firestore:"lat"`
	Lng        float64    `firestore:"lng"`
	Geohash    string     `firestore:"geohash"`
	Username   *string    `firestore:"username"`
	BloodGroup *string    `firestore:"bloodGroup"`
	CreatedAt  time.Time  `firestore:"createdAt,serverTimestamp"`
	ResolvedAt *time.Time `firestore:"resolvedAt"`
}

type locationDoc struct {
	Lat       float64   `firestore:"lat"`
	Lng       float64   `firestore:"lng"`
	Geohash   string    `firestore:"geohash"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

type userDoc struct {
	LastLocation *locationDoc `firestore:"lastLocation"`
	ActiveSOSID  *string      `firestore:"activeSosId"`
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func toRideDoc(r *entities.RideEvent) rideDoc {
	d := rideDoc{
		Title:       r.Title,
		IsPublic:    r.IsPublic,
		LeaderUID:   r.LeaderUID,
		StartAt:     r.StartAt,
		JoinCloseAt: r.JoinCloseAt,
		MemberCount: r.MemberCount,
		CreatedAt:   r.CreatedAt,
	}
	if r.Location != nil {
		lat, lng := r.Location.Latitude, r.Location.Longitude
		d.Lat, d.Lng = &lat, &lng
		d.Geohash = optional(r.Geohash)
	}
	return d
}

func (d rideDoc) toEntity(id string) *entities.RideEvent {
	r := &entities.RideEvent{
		ID:          id,
		Title:       d.Title,
		IsPublic:    d.IsPublic,
		LeaderUID:   d.LeaderUID,
		StartAt:     d.StartAt,
		JoinCloseAt: d.JoinCloseAt,
		MemberCount: d.MemberCount,
		CreatedAt:   d.CreatedAt,
	}
	if d.Lat != nil && d.Lng != nil {
		loc := entities.NewGeoPoint(*d.Lat, *d.Lng)
		r.Location = &loc
		r.Geohash = deref(d.Geohash)
	}
	return r
}

func toSOSDoc(s *entities.SOSEvent) sosDoc {
	return sosDoc{
		UID:        s.UID,
		Status:     string(s.Status),
		Lat:        s.Point.Latitude,
		Lng:        s.Point.Longitude,
		Geohash:    s.Geohash,
		Username:   optional(s.Username),
		BloodGroup: optional(s.BloodGroup),
		CreatedAt:  s.CreatedAt,
		ResolvedAt: s.ResolvedAt,
	}
}

func (d sosDoc) toEntity(id string) *entities.SOSEvent {
	return &entities.SOSEvent{
		ID:         id,
		UID:        d.UID,
		Status:     entities.SOSStatus(d.Status),
		Point:      entities.NewGeoPoint(d.Lat, d.Lng),
		Geohash:    d.Geohash,
		Username:   deref(d.Username),
		BloodGroup: deref(d.BloodGroup),
		CreatedAt:  d.CreatedAt,
		ResolvedAt: d.ResolvedAt,
	}
}

// decodeRecord turns a window query document into a TrackedRecord for the
// given collection.
func decodeRecord(collection string, snap *firestore.DocumentSnapshot) (entities.TrackedRecord, error) {
	id := snap.Ref.ID
	switch collection {
	case entities.CollectionRides:
		var d rideDoc
		if err := snap.DataTo(&d); err != nil {
			return entities.TrackedRecord{}, fmt.Errorf("decode ride %s: %w", id, err)
		}
		return d.toEntity(id).Record(), nil
	case entities.CollectionSOS:
		var d sosDoc
		if err := snap.DataTo(&d); err != nil {
			return entities.TrackedRecord{}, fmt.Errorf("decode sos %s: %w", id, err)
		}
		return d.toEntity(id).Record(), nil
	default:
		return entities.TrackedRecord{}, fmt.Errorf("%w: no decoder for collection %q", entities.ErrInvalidArgument, collection)
	}
}
