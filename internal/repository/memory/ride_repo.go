package memory

import (
	"context"
	"sync"

	"convoy/internal/domain/entities"
)

// RideRepository stores rides in memory and mirrors each one into the
// RecordStore's ride collection so nearby feeds see it.
type RideRepository struct {
	mu    sync.RWMutex
	rides map[string]*entities.RideEvent
	feed  *RecordStore
}

func NewRideRepository(feed *RecordStore) *RideRepository {
	return &RideRepository{
		rides: make(map[string]*entities.RideEvent),
		feed:  feed,
	}
}

func (r *RideRepository) Create(ctx context.Context, ride *entities.RideEvent) error {
	stored := *ride

	r.mu.Lock()
	r.rides[stored.ID] = &stored
	r.mu.Unlock()

	return r.feed.Put(ctx, entities.CollectionRides, stored.Record())
}

func (r *RideRepository) GetByID(ctx context.Context, id string) (*entities.RideEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ride, ok := r.rides[id]
	if !ok {
		return nil, entities.ErrRideNotFound
	}
	out := *ride
	return &out, nil
}

// Delete removes a ride from the repository and from live feeds.
func (r *RideRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	_, ok := r.rides[id]
	delete(r.rides, id)
	r.mu.Unlock()

	if !ok {
		return entities.ErrRideNotFound
	}
	return r.feed.Delete(ctx, entities.CollectionRides, id)
}
