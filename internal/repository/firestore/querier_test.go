package firestore

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"convoy/internal/geo"
	"convoy/internal/logger"
	"convoy/internal/proximity"
)

// blockingIterator hands out queued snapshots, then blocks in Next until the
// listen context ends, the way a live snapshot listener does. It records any
// Stop that lands while Next is running.
type blockingIterator struct {
	ctx   context.Context
	snaps chan *firestore.QuerySnapshot
	err   error

	mu         sync.Mutex
	inNext     bool
	stops      int
	overlapped bool
}

func (it *blockingIterator) Next() (*firestore.QuerySnapshot, error) {
	it.mu.Lock()
	it.inNext = true
	it.mu.Unlock()
	defer func() {
		it.mu.Lock()
		it.inNext = false
		it.mu.Unlock()
	}()

	if it.err != nil {
		return nil, it.err
	}
	select {
	case snap := <-it.snaps:
		return snap, nil
	case <-it.ctx.Done():
		return nil, it.ctx.Err()
	}
}

func (it *blockingIterator) Stop() {
	it.mu.Lock()
	defer it.mu.Unlock()
	it.stops++
	if it.inNext {
		it.overlapped = true
	}
}

func (it *blockingIterator) stats() (stops int, overlapped bool) {
	it.mu.Lock()
	defer it.mu.Unlock()
	return it.stops, it.overlapped
}

func newTestStream(t *testing.T) (*windowStream, *blockingIterator) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	it := &blockingIterator{ctx: ctx, snaps: make(chan *firestore.QuerySnapshot, 4)}
	w := geo.QueryWindow{Start: "te7u", End: "te7u~"}
	return newWindowStream(ctx, cancel, it, "rides", w, logger.With("test")), it
}

func TestWindowStream_StopDuringNextDoesNotRaceIterator(t *testing.T) {
	s, it := newTestStream(t)

	done := make(chan error, 1)
	go func() {
		_, err := s.Next()
		done <- err
	}()

	require.Eventually(t, func() bool {
		it.mu.Lock()
		defer it.mu.Unlock()
		return it.inNext
	}, time.Second, time.Millisecond)

	s.Stop()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, io.EOF)
	case <-time.After(time.Second):
		t.Fatal("Next did not return after Stop")
	}

	s.Stop()
	stops, overlapped := it.stats()
	assert.False(t, overlapped, "iterator stopped while Next was running")
	assert.Equal(t, 1, stops)
}

func TestWindowStream_FirstSnapshotIsFollowedBySynced(t *testing.T) {
	s, it := newTestStream(t)
	it.snaps <- &firestore.QuerySnapshot{}

	ev, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, proximity.SyncedEvent(), ev)

	s.Stop()
	stops, _ := it.stats()
	assert.Equal(t, 1, stops, "idle stream stops its iterator directly")

	_, err = s.Next()
	assert.ErrorIs(t, err, io.EOF)
	stops, _ = it.stats()
	assert.Equal(t, 1, stops)
}

func TestWindowStream_ListenerErrorIsSurfaced(t *testing.T) {
	s, it := newTestStream(t)
	it.err = errors.New("permission denied")

	_, err := s.Next()
	require.Error(t, err)
	assert.NotErrorIs(t, err, io.EOF)

	stops, overlapped := it.stats()
	assert.Equal(t, 1, stops)
	assert.False(t, overlapped)

	s.Stop()
	stops, _ = it.stats()
	assert.Equal(t, 1, stops)
}
