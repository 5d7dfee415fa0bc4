package memory

import (
	"context"
	"io"
	"sync"

	"convoy/internal/domain/entities"
	"convoy/internal/geo"
	"convoy/internal/proximity"
)

// RecordStore is an in-process live-query provider. It keeps records per
// collection and fans every change out to the watchers whose window and
// status filter match, with the same snapshot-then-changes shape a Firestore
// snapshot listener has.
//
// Watchers get an unbounded queue each, so Put and Delete never block on a
// slow reader.
type RecordStore struct {
	mu       sync.RWMutex
	records  map[string]map[string]entities.TrackedRecord // collection → id → record
	watchers map[*recordStream]struct{}
}

func NewRecordStore() *RecordStore {
	return &RecordStore{
		records:  make(map[string]map[string]entities.TrackedRecord),
		watchers: make(map[*recordStream]struct{}),
	}
}

// Put inserts or replaces a record and notifies watchers. A record that no
// longer matches a watcher's window (it moved, or its status changed) is
// delivered to that watcher as Removed.
func (s *RecordStore) Put(ctx context.Context, collection string, rec entities.TrackedRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	coll, ok := s.records[collection]
	if !ok {
		coll = make(map[string]entities.TrackedRecord)
		s.records[collection] = coll
	}
	old, existed := coll[rec.ID]
	coll[rec.ID] = rec

	for w := range s.watchers {
		if w.collection != collection {
			continue
		}
		switch {
		case w.matches(rec):
			w.push(proximity.UpsertedEvent(rec))
		case existed && w.matches(old):
			w.push(proximity.RemovedEvent(rec.ID))
		}
	}
	return nil
}

// Delete removes a record. Deleting an unknown id is a no-op.
func (s *RecordStore) Delete(ctx context.Context, collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.records[collection][id]
	if !ok {
		return nil
	}
	delete(s.records[collection], id)

	for w := range s.watchers {
		if w.collection == collection && w.matches(old) {
			w.push(proximity.RemovedEvent(id))
		}
	}
	return nil
}

// Get returns a stored record.
func (s *RecordStore) Get(collection, id string) (entities.TrackedRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[collection][id]
	return rec, ok
}

// Watch implements repository.WindowQuerier.
func (s *RecordStore) Watch(ctx context.Context, collection string, window geo.QueryWindow, status string) (proximity.Stream, error) {
	w := &recordStream{
		store:      s,
		ctx:        ctx,
		collection: collection,
		window:     window,
		status:     status,
		signal:     make(chan struct{}, 1),
		done:       make(chan struct{}),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Snapshot and registration happen under one lock so no change can fall
	// between them.
	for _, rec := range s.records[collection] {
		if w.matches(rec) {
			w.push(proximity.UpsertedEvent(rec))
		}
	}
	w.push(proximity.SyncedEvent())
	s.watchers[w] = struct{}{}
	return w, nil
}

// WatcherCount returns the number of open streams.
func (s *RecordStore) WatcherCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.watchers)
}

func (s *RecordStore) unregister(w *recordStream) {
	s.mu.Lock()
	delete(s.watchers, w)
	s.mu.Unlock()
}

// recordStream is one watcher. push is called with the store lock held;
// Next drains the queue from the subscriber's goroutine.
type recordStream struct {
	store      *RecordStore
	ctx        context.Context
	collection string
	window     geo.QueryWindow
	status     string

	mu     sync.Mutex
	queue  []proximity.RecordEvent
	signal chan struct{}

	done     chan struct{}
	stopOnce sync.Once
}

func (w *recordStream) matches(rec entities.TrackedRecord) bool {
	if rec.Geohash == "" || !w.window.Contains(rec.Geohash) {
		return false
	}
	return w.status == "" || rec.Status == w.status
}

func (w *recordStream) push(ev proximity.RecordEvent) {
	w.mu.Lock()
	w.queue = append(w.queue, ev)
	w.mu.Unlock()

	select {
	case w.signal <- struct{}{}:
	default:
	}
}

// Next returns io.EOF once the stream is stopped, and the context error when
// the watch context ends first.
func (w *recordStream) Next() (proximity.RecordEvent, error) {
	for {
		select {
		case <-w.done:
			return proximity.RecordEvent{}, io.EOF
		default:
		}

		w.mu.Lock()
		if len(w.queue) > 0 {
			ev := w.queue[0]
			w.queue[0] = proximity.RecordEvent{}
			w.queue = w.queue[1:]
			w.mu.Unlock()
			return ev, nil
		}
		w.mu.Unlock()

		select {
		case <-w.signal:
		case <-w.done:
			return proximity.RecordEvent{}, io.EOF
		case <-w.ctx.Done():
			w.Stop()
			return proximity.RecordEvent{}, w.ctx.Err()
		}
	}
}

func (w *recordStream) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.store.unregister(w)
	})
}
