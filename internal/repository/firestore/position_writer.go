package firestore

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"convoy/internal/domain/entities"
)

// PositionWriter stores positions on users/{id}.lastLocation, merging into
// the user document so other fields survive.
type PositionWriter struct {
	client *firestore.Client
}

func NewPositionWriter(c *Client) *PositionWriter {
	return &PositionWriter{client: c.client}
}

func (w *PositionWriter) WritePosition(ctx context.Context, update *entities.PositionUpdate) error {
	_, err := w.client.Collection(usersCollection).Doc(update.ID).Set(ctx, map[string]any{
		fieldLastLocation: map[string]any{
			"lat":        update.Point.Latitude,
			"lng":        update.Point.Longitude,
			fieldGeohash: update.Geohash,
			"updatedAt":  update.UpdatedAt,
		},
		fieldUpdatedAt: firestore.ServerTimestamp,
	}, firestore.MergeAll)
	if err != nil {
		return fmt.Errorf("write position for %s: %w", update.ID, err)
	}
	return nil
}

func (w *PositionWriter) GetPosition(ctx context.Context, id string) (*entities.PositionUpdate, error) {
	snap, err := w.client.Collection(usersCollection).Doc(id).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read position for %s: %w", id, err)
	}

	var u userDoc
	if err := snap.DataTo(&u); err != nil {
		return nil, fmt.Errorf("decode user %s: %w", id, err)
	}
	if u.LastLocation == nil {
		return nil, nil
	}
	return &entities.PositionUpdate{
		ID:        id,
		Point:     entities.NewGeoPoint(u.LastLocation.Lat, u.LastLocation.Lng),
		Geohash:   u.LastLocation.Geohash,
		UpdatedAt: u.LastLocation.UpdatedAt,
	}, nil
}
