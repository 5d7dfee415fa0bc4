package memory

import (
	"context"
	"sync"

	"convoy/internal/domain/entities"
)

// SOSRepository stores alerts in memory with a secondary index of the active
// alert per user, and mirrors every write into the RecordStore's SOS
// collection.
type SOSRepository struct {
	mu       sync.RWMutex
	alerts   map[string]*entities.SOSEvent
	activeBy map[string]string // uid → id of the user's active alert
	feed     *RecordStore
}

func NewSOSRepository(feed *RecordStore) *SOSRepository {
	return &SOSRepository{
		alerts:   make(map[string]*entities.SOSEvent),
		activeBy: make(map[string]string),
		feed:     feed,
	}
}

func (r *SOSRepository) Create(ctx context.Context, sos *entities.SOSEvent) error {
	stored := *sos

	r.mu.Lock()
	if stored.IsActive() {
		if id, ok := r.activeBy[stored.UID]; ok && id != stored.ID {
			r.mu.Unlock()
			return entities.ErrActiveSOSExists
		}
		r.activeBy[stored.UID] = stored.ID
	}
	r.alerts[stored.ID] = &stored
	r.mu.Unlock()

	return r.feed.Put(ctx, entities.CollectionSOS, stored.Record())
}

func (r *SOSRepository) GetByID(ctx context.Context, id string) (*entities.SOSEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sos, ok := r.alerts[id]
	if !ok {
		return nil, entities.ErrSOSNotFound
	}
	out := *sos
	return &out, nil
}

func (r *SOSRepository) Update(ctx context.Context, sos *entities.SOSEvent) error {
	stored := *sos

	r.mu.Lock()
	if _, ok := r.alerts[stored.ID]; !ok {
		r.mu.Unlock()
		return entities.ErrSOSNotFound
	}
	r.alerts[stored.ID] = &stored
	if stored.IsActive() {
		r.activeBy[stored.UID] = stored.ID
	} else if r.activeBy[stored.UID] == stored.ID {
		delete(r.activeBy, stored.UID)
	}
	r.mu.Unlock()

	return r.feed.Put(ctx, entities.CollectionSOS, stored.Record())
}

func (r *SOSRepository) GetActiveByUID(ctx context.Context, uid string) (*entities.SOSEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.activeBy[uid]
	if !ok {
		return nil, nil
	}
	out := *r.alerts[id]
	return &out, nil
}
