// Package repository declares the storage collaborators of the proximity
// service. Implementations live in the memory, firestore and redis
// subpackages and are chosen at startup by config.
package repository

import (
	"context"
	"time"

	"convoy/internal/domain/entities"
	"convoy/internal/geo"
	"convoy/internal/proximity"
)

// WindowQuerier opens live queries over one geohash window of a collection.
// The returned stream delivers the window's current contents as Upserted
// events, then a Synced event, then incremental changes. An empty status
// matches every record.
type WindowQuerier interface {
	Watch(ctx context.Context, collection string, window geo.QueryWindow, status string) (proximity.Stream, error)
}

// PointWriter persists the latest position of a user or device. A write
// replaces the previous position for the same id.
type PointWriter interface {
	WritePosition(ctx context.Context, update *entities.PositionUpdate) error
}

// PositionReader returns the last written position, or (nil, nil) when the id
// has never published one.
type PositionReader interface {
	GetPosition(ctx context.Context, id string) (*entities.PositionUpdate, error)
}

// PositionStore is a PointWriter that can also read back.
type PositionStore interface {
	PointWriter
	PositionReader
}

// PositionHit is one result of a position search.
type PositionHit struct {
	Position   entities.PositionUpdate `json:"position"`
	DistanceKm float64                 `json:"distance_km"`
}

// PositionSearcher is implemented by position backends that can answer a
// radius query directly. Only the debug surface uses it; the nearby feeds
// read the live-query store.
type PositionSearcher interface {
	SearchPositions(ctx context.Context, center entities.GeoPoint, radiusKm float64, limit int) ([]PositionHit, error)
}

type SOSRepository interface {
	Create(ctx context.Context, sos *entities.SOSEvent) error
	// GetByID returns entities.ErrSOSNotFound for unknown ids.
	GetByID(ctx context.Context, id string) (*entities.SOSEvent, error)
	Update(ctx context.Context, sos *entities.SOSEvent) error
	// GetActiveByUID returns (nil, nil) when the user has no active SOS.
	GetActiveByUID(ctx context.Context, uid string) (*entities.SOSEvent, error)
}

type RideRepository interface {
	Create(ctx context.Context, ride *entities.RideEvent) error
	// GetByID returns entities.ErrRideNotFound for unknown ids.
	GetByID(ctx context.Context, id string) (*entities.RideEvent, error)
}

type LockManager interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key string) error
	IsLocked(ctx context.Context, key string) (bool, error)
}
