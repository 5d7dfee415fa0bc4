package firestore

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"convoy/internal/domain/entities"
)

type RideRepository struct {
	client *firestore.Client
}

func NewRideRepository(c *Client) *RideRepository {
	return &RideRepository{client: c.client}
}

func (r *RideRepository) Create(ctx context.Context, ride *entities.RideEvent) error {
	_, err := r.client.Collection(entities.CollectionRides).Doc(ride.ID).Create(ctx, toRideDoc(ride))
	if err != nil {
		return fmt.Errorf("create ride %s: %w", ride.ID, err)
	}
	return nil
}

func (r *RideRepository) GetByID(ctx context.Context, id string) (*entities.RideEvent, error) {
	snap, err := r.client.Collection(entities.CollectionRides).Doc(id).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, entities.ErrRideNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get ride %s: %w", id, err)
	}
	var d rideDoc
	if err := snap.DataTo(&d); err != nil {
		return nil, fmt.Errorf("decode ride %s: %w", id, err)
	}
	return d.toEntity(id), nil
}
