package firestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	"convoy/internal/domain/entities"
	"convoy/internal/geo"
	"convoy/internal/logger"
	"convoy/internal/proximity"
)

// Querier opens snapshot listeners over geohash windows:
//
//	collection [where status == s] orderBy geohash startAt(w.Start) endAt(w.End) limit n
type Querier struct {
	client *firestore.Client
	limit  int
	log    *slog.Logger
}

func NewQuerier(c *Client, windowLimit int) *Querier {
	return &Querier{
		client: c.client,
		limit:  windowLimit,
		log:    logger.With("firestore"),
	}
}

func (q *Querier) query(collection string, window geo.QueryWindow, status string) firestore.Query {
	query := q.client.Collection(collection).Query
	if status != "" {
		query = query.Where(fieldStatus, "==", status)
	}
	query = query.OrderBy(fieldGeohash, firestore.Asc).StartAt(window.Start).EndAt(window.End)
	if q.limit > 0 {
		query = query.Limit(q.limit)
	}
	return query
}

// Watch implements repository.WindowQuerier.
func (q *Querier) Watch(ctx context.Context, collection string, window geo.QueryWindow, status string) (proximity.Stream, error) {
	switch collection {
	case entities.CollectionRides, entities.CollectionSOS:
	default:
		return nil, fmt.Errorf("%w: no decoder for collection %q", entities.ErrInvalidArgument, collection)
	}

	ctx, cancel := context.WithCancel(ctx)
	it := q.query(collection, window, status).Snapshots(ctx)
	return newWindowStream(ctx, cancel, it, collection, window, q.log), nil
}

// snapshotIterator is the part of *firestore.QuerySnapshotIterator a
// windowStream uses. Next and Stop must not run concurrently.
type snapshotIterator interface {
	Next() (*firestore.QuerySnapshot, error)
	Stop()
}

// windowStream adapts a QuerySnapshotIterator to proximity.Stream. Each
// snapshot is flattened into its document changes; the first snapshot is
// followed by a Synced event.
//
// The iterator is only stopped by the goroutine calling Next, or by Stop when
// no Next is in flight. Stop otherwise cancels the listen context, which ends
// the pending Next.
type windowStream struct {
	ctx        context.Context
	cancel     context.CancelFunc
	it         snapshotIterator
	collection string
	window     geo.QueryWindow
	log        *slog.Logger

	mu     sync.Mutex
	inNext bool
	closed bool

	pending []proximity.RecordEvent
	synced  bool
}

func newWindowStream(ctx context.Context, cancel context.CancelFunc, it snapshotIterator, collection string, window geo.QueryWindow, log *slog.Logger) *windowStream {
	return &windowStream{
		ctx:        ctx,
		cancel:     cancel,
		it:         it,
		collection: collection,
		window:     window,
		log:        log,
	}
}

// Next returns io.EOF once the stream was stopped or the query ended.
func (s *windowStream) Next() (proximity.RecordEvent, error) {
	for len(s.pending) == 0 {
		s.mu.Lock()
		if s.closed || s.ctx.Err() != nil {
			s.closeLocked()
			s.mu.Unlock()
			return proximity.RecordEvent{}, io.EOF
		}
		s.inNext = true
		s.mu.Unlock()

		snap, err := s.it.Next()

		s.mu.Lock()
		s.inNext = false
		if err != nil {
			s.closeLocked()
		}
		s.mu.Unlock()

		if err != nil {
			if errors.Is(err, iterator.Done) || s.ctx.Err() != nil {
				return proximity.RecordEvent{}, io.EOF
			}
			return proximity.RecordEvent{}, err
		}
		s.pending = s.changes(snap.Changes)
		if !s.synced {
			s.synced = true
			s.pending = append(s.pending, proximity.SyncedEvent())
		}
	}

	ev := s.pending[0]
	s.pending = s.pending[1:]
	return ev, nil
}

func (s *windowStream) closeLocked() {
	if !s.closed {
		s.closed = true
		s.it.Stop()
	}
}

func (s *windowStream) changes(changes []firestore.DocumentChange) []proximity.RecordEvent {
	events := make([]proximity.RecordEvent, 0, len(changes))
	for _, ch := range changes {
		id := ch.Doc.Ref.ID
		if ch.Kind == firestore.DocumentRemoved {
			events = append(events, proximity.RemovedEvent(id))
			continue
		}
		rec, err := decodeRecord(s.collection, ch.Doc)
		if err != nil {
			// An undecodable document is dropped rather than left stale.
			s.log.Warn("skipping document", "window", s.window.String(), "id", id, "error", err)
			events = append(events, proximity.RemovedEvent(id))
			continue
		}
		events = append(events, proximity.UpsertedEvent(rec))
	}
	return events
}

// Stop ends the listener. A blocked Next returns io.EOF. Stop may be called
// from any goroutine and more than once.
func (s *windowStream) Stop() {
	s.cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.inNext {
		s.closeLocked()
	}
}
