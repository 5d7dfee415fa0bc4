package proximity

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"slices"
	"strings"
	"sync"
	"time"

	"convoy/internal/domain/entities"
	"convoy/internal/geo"
)

// Options configures one logical proximity query.
//
// OnResults and OnStreamError are invoked synchronously while the
// Subscription holds its lock, so every invocation sees a consistent map and
// invocations never overlap. They must return quickly (queue and return) and
// must not call Stop on the Subscription that invoked them.
type Options struct {
	Center   entities.GeoPoint
	RadiusKm float64

	// Sort orders the emitted results. Defaults to ByDistance.
	Sort SortPolicy
	// Limit caps the emitted results after sorting. Zero means no cap.
	Limit int
	// Filter is an extra predicate evaluated at emission time, e.g. "ride has
	// not started yet". Nil accepts every record.
	Filter func(rec entities.TrackedRecord, now time.Time) bool

	OnResults     func(results []Result)
	OnStreamError func(w geo.QueryWindow, err error)

	// Now is the clock handed to Filter. Defaults to time.Now.
	Now func() time.Time
}

// Reconciler starts subscriptions for one center/radius/predicate
// combination. It holds no live state itself and may be started repeatedly.
type Reconciler struct {
	opts Options
}

// NewReconciler validates opts and returns a Reconciler.
func NewReconciler(opts Options) (*Reconciler, error) {
	if err := opts.Center.Validate(); err != nil {
		return nil, err
	}
	if math.IsNaN(opts.RadiusKm) || math.IsInf(opts.RadiusKm, 0) || opts.RadiusKm <= 0 {
		return nil, fmt.Errorf("%w: radius %v must be a positive finite number of km", entities.ErrInvalidArgument, opts.RadiusKm)
	}
	if opts.Limit < 0 {
		return nil, fmt.Errorf("%w: negative result limit %d", entities.ErrInvalidArgument, opts.Limit)
	}
	if opts.Sort == nil {
		opts.Sort = ByDistance
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Reconciler{opts: opts}, nil
}

// Start opens one stream per window and returns immediately. Stream opening
// and event delivery happen on background goroutines; results arrive through
// Options.OnResults.
//
// The subscription stops itself when ctx ends, exactly as if Stop had been
// called: Ready closes and Active reports false.
func (r *Reconciler) Start(ctx context.Context, windows []geo.QueryWindow, open StreamFactory) (*Subscription, error) {
	if len(windows) == 0 {
		return nil, fmt.Errorf("%w: no query windows", entities.ErrInvalidArgument)
	}
	if open == nil {
		return nil, fmt.Errorf("%w: nil stream factory", entities.ErrInvalidArgument)
	}

	parent := ctx
	ctx, cancel := context.WithCancel(parent)
	s := &Subscription{
		opts:    r.opts,
		cancel:  cancel,
		active:  true,
		records: make(map[string]entry),
		windows: make([]windowState, len(windows)),
		pending: len(windows),
		ready:   make(chan struct{}),
	}
	for i, w := range windows {
		s.windows[i].window = w
	}

	s.mu.Lock()
	s.release = context.AfterFunc(parent, s.Stop)
	s.mu.Unlock()

	s.wg.Add(len(windows))
	for i := range windows {
		go s.pump(ctx, i, open)
	}
	return s, nil
}

type entry struct {
	record     entities.TrackedRecord
	distanceKm float64
}

type windowState struct {
	window  geo.QueryWindow
	stream  Stream
	settled bool
	failed  bool
}

// Subscription is the live state of one started query: the deduplicated
// id→record map and the streams feeding it.
//
// Go Learning Note — sync.Mutex vs a dedicated goroutine:
// Every window stream runs on its own goroutine, but the map has exactly one
// owner. Two shapes serialize that: funnel all events into one channel read by
// a single goroutine, or guard the map with a mutex. The mutex is used here
// because it makes Stop synchronous: once Stop has taken the lock and cleared
// the active flag, no goroutine can mutate the map or emit again.
type Subscription struct {
	opts    Options
	cancel  context.CancelFunc
	release func() bool
	wg      sync.WaitGroup

	mu          sync.Mutex
	active      bool
	records     map[string]entry
	last        []Result
	windows     []windowState
	pending     int
	ready       chan struct{}
	readyClosed bool
	degraded    bool
}

// pump opens the stream for window i and feeds its events into the map until
// the stream ends or the subscription stops.
func (s *Subscription) pump(ctx context.Context, i int, open StreamFactory) {
	defer s.wg.Done()

	w := s.windows[i].window
	stream, err := open(ctx, w)
	if err != nil {
		s.fail(i, fmt.Errorf("open window %s: %w", w, err))
		return
	}

	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		stream.Stop()
		return
	}
	s.windows[i].stream = stream
	s.mu.Unlock()

	for {
		ev, err := stream.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				s.settle(i)
				return
			}
			if ctx.Err() != nil {
				return
			}
			s.fail(i, fmt.Errorf("window %s: %w", w, err))
			return
		}
		s.apply(i, ev)
	}
}

// apply mutates the map for one event and re-emits.
func (s *Subscription) apply(i int, ev RecordEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		return
	}

	switch ev.Kind {
	case Upserted:
		rec := ev.Record
		if rec.ID == "" {
			return
		}
		if !rec.Locatable() {
			delete(s.records, rec.ID)
			break
		}
		// Movement arrives as another Upserted with the same id; a record
		// that moved out of range is dropped here.
		d := geo.DistanceKm(s.opts.Center, rec.Point)
		if d <= s.opts.RadiusKm {
			s.records[rec.ID] = entry{record: rec, distanceKm: d}
		} else {
			delete(s.records, rec.ID)
		}
	case Removed:
		delete(s.records, ev.ID)
	case Synced:
		s.settleLocked(i)
	default:
		return
	}

	s.emitLocked()
}

func (s *Subscription) settle(i int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return
	}
	s.settleLocked(i)
}

// fail records a terminated window. Sibling windows keep running; the
// subscription is degraded from here on because part of the search area is no
// longer watched.
func (s *Subscription) fail(i int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return
	}

	s.windows[i].failed = true
	s.degraded = true
	s.settleLocked(i)
	if s.opts.OnStreamError != nil {
		s.opts.OnStreamError(s.windows[i].window, err)
	}
}

func (s *Subscription) settleLocked(i int) {
	if s.windows[i].settled {
		return
	}
	s.windows[i].settled = true
	s.pending--
	if s.pending == 0 {
		s.closeReadyLocked()
	}
}

func (s *Subscription) closeReadyLocked() {
	if !s.readyClosed {
		s.readyClosed = true
		close(s.ready)
	}
}

// emitLocked rebuilds the sorted result list from the map and hands it to
// the observer. Entries are re-checked against the radius and the filter at
// this point, so nothing outside the radius is ever emitted.
func (s *Subscription) emitLocked() {
	now := s.opts.Now()

	results := make([]Result, 0, len(s.records))
	for id, e := range s.records {
		if e.distanceKm > s.opts.RadiusKm {
			continue
		}
		if s.opts.Filter != nil && !s.opts.Filter(e.record, now) {
			continue
		}
		results = append(results, Result{ID: id, Record: e.record, DistanceKm: e.distanceKm})
	}

	slices.SortFunc(results, func(a, b Result) int {
		if c := s.opts.Sort(a, b); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	if s.opts.Limit > 0 && len(results) > s.opts.Limit {
		results = results[:s.opts.Limit]
	}

	s.last = results
	if s.opts.OnResults != nil {
		s.opts.OnResults(slices.Clone(results))
	}
}

// Stop cancels every window stream. After Stop returns no further results or
// stream errors are delivered. Stop is idempotent and also releases anyone
// blocked on Ready. It runs on its own when the context given to Start ends.
func (s *Subscription) Stop() {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return
	}
	s.active = false
	streams := make([]Stream, 0, len(s.windows))
	for _, ws := range s.windows {
		if ws.stream != nil {
			streams = append(streams, ws.stream)
		}
	}
	s.records = make(map[string]entry)
	s.closeReadyLocked()
	release := s.release
	s.mu.Unlock()

	if release != nil {
		release()
	}
	s.cancel()
	for _, st := range streams {
		st.Stop()
	}
}

// Wait blocks until every stream goroutine has exited. It is meant for
// orderly shutdown after Stop.
func (s *Subscription) Wait() {
	s.wg.Wait()
}

// Ready is closed once every window has delivered its initial snapshot or
// failed, or when the subscription is stopped.
func (s *Subscription) Ready() <-chan struct{} {
	return s.ready
}

// Snapshot returns the most recently emitted results.
func (s *Subscription) Snapshot() []Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.last)
}

// Degraded reports whether any window stream has failed. A degraded
// subscription may under-cover the search area.
func (s *Subscription) Degraded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.degraded
}

// Active reports whether Stop has not been called yet.
func (s *Subscription) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Windows returns the windows this subscription watches.
func (s *Subscription) Windows() []geo.QueryWindow {
	out := make([]geo.QueryWindow, len(s.windows))
	for i := range s.windows {
		out[i] = s.windows[i].window
	}
	return out
}
