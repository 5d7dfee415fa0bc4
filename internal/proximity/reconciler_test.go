package proximity

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"convoy/internal/domain/entities"
	"convoy/internal/geo"
)

var mumbai = entities.NewGeoPoint(19.0760, 72.8777)

// fakeStream is a Stream fed by the test through a channel. Closing the
// channel ends the stream with io.EOF; a pushed error terminates it.
type fakeStream struct {
	events   chan RecordEvent
	errs     chan error
	stopped  chan struct{}
	stopOnce sync.Once
}

func newFakeStream() *fakeStream {
	return &fakeStream{
		events:  make(chan RecordEvent, 64),
		errs:    make(chan error, 1),
		stopped: make(chan struct{}),
	}
}

func (f *fakeStream) Next() (RecordEvent, error) {
	select {
	case ev, ok := <-f.events:
		if !ok {
			return RecordEvent{}, io.EOF
		}
		return ev, nil
	case err := <-f.errs:
		return RecordEvent{}, err
	case <-f.stopped:
		return RecordEvent{}, context.Canceled
	}
}

func (f *fakeStream) Stop() {
	f.stopOnce.Do(func() { close(f.stopped) })
}

func (f *fakeStream) isStopped() bool {
	select {
	case <-f.stopped:
		return true
	default:
		return false
	}
}

// harness wires fake streams to windows and records every emission.
type harness struct {
	mu      sync.Mutex
	streams map[geo.QueryWindow]*fakeStream
	openErr map[geo.QueryWindow]error
	emitted [][]Result
	errs    []geo.QueryWindow
	notify  chan struct{}
}

func newHarness(windows ...geo.QueryWindow) *harness {
	h := &harness{
		streams: make(map[geo.QueryWindow]*fakeStream),
		openErr: make(map[geo.QueryWindow]error),
		notify:  make(chan struct{}, 1024),
	}
	for _, w := range windows {
		h.streams[w] = newFakeStream()
	}
	return h
}

func (h *harness) open(_ context.Context, w geo.QueryWindow) (Stream, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.openErr[w]; err != nil {
		return nil, err
	}
	return h.streams[w], nil
}

func (h *harness) onResults(results []Result) {
	h.mu.Lock()
	h.emitted = append(h.emitted, results)
	h.mu.Unlock()
	h.notify <- struct{}{}
}

func (h *harness) onStreamError(w geo.QueryWindow, _ error) {
	h.mu.Lock()
	h.errs = append(h.errs, w)
	h.mu.Unlock()
	h.notify <- struct{}{}
}

func (h *harness) emissions() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.emitted)
}

func (h *harness) latest() []Result {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.emitted) == 0 {
		return nil
	}
	return h.emitted[len(h.emitted)-1]
}

// waitEmissions blocks until at least n results have been emitted.
func (h *harness) waitEmissions(t *testing.T, n int) []Result {
	t.Helper()
	require.Eventually(t, func() bool { return h.emissions() >= n }, time.Second, time.Millisecond)
	return h.latest()
}

func (h *harness) options(radiusKm float64) Options {
	return Options{
		Center:        mumbai,
		RadiusKm:      radiusKm,
		OnResults:     h.onResults,
		OnStreamError: h.onStreamError,
	}
}

func record(id string, lat, lng float64) entities.TrackedRecord {
	return entities.TrackedRecord{
		ID:       id,
		Point:    entities.NewGeoPoint(lat, lng),
		HasPoint: true,
	}
}

func ids(results []Result) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.ID
	}
	return out
}

var (
	windowA = geo.QueryWindow{Start: "te7u", End: "te7u~"}
	windowB = geo.QueryWindow{Start: "te7v", End: "te7v~"}
)

func start(t *testing.T, h *harness, opts Options, windows ...geo.QueryWindow) *Subscription {
	t.Helper()
	r, err := NewReconciler(opts)
	require.NoError(t, err)
	sub, err := r.Start(context.Background(), windows, h.open)
	require.NoError(t, err)
	t.Cleanup(func() {
		sub.Stop()
		sub.Wait()
	})
	return sub
}

func TestNewReconciler_Validation(t *testing.T) {
	tests := []struct {
		name string
		opts Options
	}{
		{name: "invalid center", opts: Options{Center: entities.NewGeoPoint(95, 0), RadiusKm: 1}},
		{name: "zero radius", opts: Options{Center: mumbai}},
		{name: "negative radius", opts: Options{Center: mumbai, RadiusKm: -2}},
		{name: "negative limit", opts: Options{Center: mumbai, RadiusKm: 1, Limit: -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewReconciler(tt.opts)
			assert.ErrorIs(t, err, entities.ErrInvalidArgument)
		})
	}
}

func TestReconciler_StartRejectsEmptyWindows(t *testing.T) {
	r, err := NewReconciler(Options{Center: mumbai, RadiusKm: 1})
	require.NoError(t, err)

	_, err = r.Start(context.Background(), nil, newHarness().open)
	assert.ErrorIs(t, err, entities.ErrInvalidArgument)
}

func TestSubscription_MumbaiScenario(t *testing.T) {
	h := newHarness(windowA)
	start(t, h, h.options(5.5), windowA)

	s := h.streams[windowA]
	s.events <- UpsertedEvent(record("a", 19.08, 72.88)) // ~0.5 km
	s.events <- UpsertedEvent(record("b", 19.20, 73.00)) // ~18.9 km

	h.waitEmissions(t, 2)
	got := h.latest()
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].ID)
	assert.InDelta(t, 0.506, got[0].DistanceKm, 0.05)

	s.events <- RemovedEvent("a")
	h.waitEmissions(t, 3)
	assert.Empty(t, h.latest())
}

func TestSubscription_DeduplicatesAcrossWindows(t *testing.T) {
	h := newHarness(windowA, windowB)
	start(t, h, h.options(5.5), windowA, windowB)

	rec := record("shared", 19.08, 72.88)
	h.streams[windowA].events <- UpsertedEvent(rec)
	h.waitEmissions(t, 1)
	h.streams[windowB].events <- UpsertedEvent(rec)

	got := h.waitEmissions(t, 2)
	assert.Equal(t, []string{"shared"}, ids(got))
}

func TestSubscription_RemovalAndMovement(t *testing.T) {
	h := newHarness(windowA)
	start(t, h, h.options(5.5), windowA)
	s := h.streams[windowA]

	s.events <- UpsertedEvent(record("x", 19.08, 72.88))
	s.events <- UpsertedEvent(record("y", 19.07, 72.87))
	assert.ElementsMatch(t, []string{"x", "y"}, ids(h.waitEmissions(t, 2)))

	s.events <- RemovedEvent("x")
	assert.Equal(t, []string{"y"}, ids(h.waitEmissions(t, 3)))

	// y moves out of range; the newest upsert wins.
	s.events <- UpsertedEvent(record("y", 19.50, 73.50))
	assert.Empty(t, h.waitEmissions(t, 4))
}

func TestSubscription_SortStabilityAndTieBreak(t *testing.T) {
	h := newHarness(windowA)
	start(t, h, h.options(5.0), windowA)
	s := h.streams[windowA]

	// Points due north of the center at 2.0, 0.5 and 4.9 km.
	north := func(km float64) float64 { return mumbai.Latitude + km/111.195 }
	s.events <- UpsertedEvent(record("far", north(2.0), mumbai.Longitude))
	s.events <- UpsertedEvent(record("near", north(0.5), mumbai.Longitude))
	s.events <- UpsertedEvent(record("rim", north(4.9), mumbai.Longitude))

	got := h.waitEmissions(t, 3)
	assert.Equal(t, []string{"near", "far", "rim"}, ids(got))

	// Same distance: id decides.
	s.events <- UpsertedEvent(record("b-twin", north(0.5), mumbai.Longitude))
	s.events <- UpsertedEvent(record("a-twin", north(0.5), mumbai.Longitude))
	got = h.waitEmissions(t, 5)
	assert.Equal(t, []string{"a-twin", "b-twin", "near", "far", "rim"}, ids(got))
}

func TestSubscription_LimitAndFilter(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	h := newHarness(windowA)

	opts := h.options(30)
	opts.Limit = 2
	opts.Now = func() time.Time { return now }
	opts.Filter = func(rec entities.TrackedRecord, at time.Time) bool {
		return rec.CreatedAt.After(at)
	}
	start(t, h, opts, windowA)
	s := h.streams[windowA]

	for i, id := range []string{"r1", "r2", "r3"} {
		rec := record(id, 19.08+float64(i)*0.01, 72.88)
		rec.CreatedAt = now.Add(time.Hour)
		s.events <- UpsertedEvent(rec)
	}
	past := record("past", 19.076, 72.8777)
	past.CreatedAt = now.Add(-time.Hour)
	s.events <- UpsertedEvent(past)

	got := h.waitEmissions(t, 4)
	assert.Equal(t, []string{"r1", "r2"}, ids(got))
}

func TestSubscription_ByRecency(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	h := newHarness(windowA)

	opts := h.options(5.5)
	opts.Sort = ByRecency
	start(t, h, opts, windowA)
	s := h.streams[windowA]

	older := record("older", 19.076, 72.8777)
	older.CreatedAt = base
	newer := record("newer", 19.09, 72.89)
	newer.CreatedAt = base.Add(time.Minute)
	s.events <- UpsertedEvent(older)
	s.events <- UpsertedEvent(newer)

	assert.Equal(t, []string{"newer", "older"}, ids(h.waitEmissions(t, 2)))
}

func TestSubscription_IgnoresRecordsWithoutLocation(t *testing.T) {
	h := newHarness(windowA)
	sub := start(t, h, h.options(5.5), windowA)
	s := h.streams[windowA]

	s.events <- UpsertedEvent(record("located", 19.08, 72.88))
	s.events <- UpsertedEvent(entities.TrackedRecord{ID: "nowhere"})
	s.events <- UpsertedEvent(entities.TrackedRecord{ID: "", Point: mumbai, HasPoint: true})
	s.events <- SyncedEvent()

	<-sub.Ready()
	assert.Equal(t, []string{"located"}, ids(sub.Snapshot()))
}

func TestSubscription_ReadyAfterAllWindowsSync(t *testing.T) {
	h := newHarness(windowA, windowB)
	sub := start(t, h, h.options(5.5), windowA, windowB)

	h.streams[windowA].events <- SyncedEvent()
	h.waitEmissions(t, 1)
	select {
	case <-sub.Ready():
		t.Fatal("ready before every window synced")
	default:
	}

	h.streams[windowB].events <- SyncedEvent()
	select {
	case <-sub.Ready():
	case <-time.After(time.Second):
		t.Fatal("not ready after every window synced")
	}
}

func TestSubscription_DegradedOnStreamError(t *testing.T) {
	h := newHarness(windowA, windowB)
	sub := start(t, h, h.options(5.5), windowA, windowB)

	h.streams[windowA].errs <- errors.New("permission denied")
	require.Eventually(t, sub.Degraded, time.Second, time.Millisecond)

	h.mu.Lock()
	assert.Equal(t, []geo.QueryWindow{windowA}, h.errs)
	h.mu.Unlock()

	// The sibling window keeps delivering.
	h.streams[windowB].events <- UpsertedEvent(record("still-here", 19.08, 72.88))
	h.streams[windowB].events <- SyncedEvent()
	<-sub.Ready()
	require.Eventually(t, func() bool { return len(sub.Snapshot()) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, "still-here", sub.Snapshot()[0].ID)
}

func TestSubscription_OpenFailureDegrades(t *testing.T) {
	h := newHarness(windowA, windowB)
	h.openErr[windowB] = errors.New("unavailable")
	sub := start(t, h, h.options(5.5), windowA, windowB)

	require.Eventually(t, sub.Degraded, time.Second, time.Millisecond)
	h.streams[windowA].events <- SyncedEvent()
	<-sub.Ready()
	assert.True(t, sub.Active())
}

func TestSubscription_EndOfStreamSettlesWindow(t *testing.T) {
	h := newHarness(windowA)
	sub := start(t, h, h.options(5.5), windowA)

	close(h.streams[windowA].events)
	select {
	case <-sub.Ready():
	case <-time.After(time.Second):
		t.Fatal("not ready after stream ended")
	}
	assert.False(t, sub.Degraded())
}

func TestSubscription_StopIsIdempotentAndSilencesEmission(t *testing.T) {
	h := newHarness(windowA, windowB)
	sub := start(t, h, h.options(5.5), windowA, windowB)

	h.streams[windowA].events <- UpsertedEvent(record("a", 19.08, 72.88))
	h.waitEmissions(t, 1)

	sub.Stop()
	sub.Stop()
	sub.Wait()

	assert.False(t, sub.Active())
	assert.True(t, h.streams[windowA].isStopped())
	assert.True(t, h.streams[windowB].isStopped())
	select {
	case <-sub.Ready():
	default:
		t.Fatal("stop must release Ready")
	}

	before := h.emissions()
	h.streams[windowB].events <- UpsertedEvent(record("late", 19.08, 72.88))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, before, h.emissions())
	h.mu.Lock()
	assert.Empty(t, h.errs)
	h.mu.Unlock()
}

func TestSubscription_StopsWhenContextEnds(t *testing.T) {
	h := newHarness(windowA, windowB)
	r, err := NewReconciler(h.options(5.5))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	sub, err := r.Start(ctx, []geo.QueryWindow{windowA, windowB}, h.open)
	require.NoError(t, err)
	t.Cleanup(sub.Wait)

	h.streams[windowA].events <- UpsertedEvent(record("a", 19.08, 72.88))
	h.waitEmissions(t, 1)

	cancel()

	select {
	case <-sub.Ready():
	case <-time.After(time.Second):
		t.Fatal("Ready not closed after context cancellation")
	}
	require.Eventually(t, func() bool {
		return !sub.Active() &&
			h.streams[windowA].isStopped() &&
			h.streams[windowB].isStopped()
	}, time.Second, 5*time.Millisecond)
	sub.Wait()

	// Explicit Stop after the context ended is a no-op.
	sub.Stop()
}

func TestSubscription_Windows(t *testing.T) {
	h := newHarness(windowA, windowB)
	sub := start(t, h, h.options(5.5), windowA, windowB)
	assert.Equal(t, []geo.QueryWindow{windowA, windowB}, sub.Windows())
}
