package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"convoy/internal/config"
	"convoy/internal/domain/entities"
	"convoy/internal/geo"
	"convoy/internal/logger"
	"convoy/internal/metrics"
	"convoy/internal/proximity"
	"convoy/internal/repository"
)

// Feed names a nearby view.
type Feed string

const (
	FeedRides Feed = "rides"
	FeedSOS   Feed = "sos"
)

// FeedConfig is everything that differs between two nearby views. Both feeds
// run through the same partition-watch-reconcile path.
type FeedConfig struct {
	Collection string
	RadiusKm   float64
	Limit      int
	// Status restricts the window queries; empty means any status.
	Status string
	Sort   proximity.SortPolicy
	Filter func(rec entities.TrackedRecord, now time.Time) bool
}

// RideFeed lists upcoming rides, soonest first.
func RideFeed(cfg config.FeedsConfig) FeedConfig {
	return FeedConfig{
		Collection: entities.CollectionRides,
		RadiusKm:   cfg.RidesRadiusKm,
		Limit:      cfg.RidesLimit,
		Sort:       proximity.SortPolicy(ByStartTime).Then(proximity.ByDistance),
		Filter:     UpcomingRide,
	}
}

// SOSFeed lists active alerts, newest first.
func SOSFeed(cfg config.FeedsConfig) FeedConfig {
	return FeedConfig{
		Collection: entities.CollectionSOS,
		RadiusKm:   cfg.SOSRadiusKm,
		Limit:      cfg.SOSLimit,
		Status:     string(entities.SOSStatusActive),
		Sort:       proximity.SortPolicy(proximity.ByRecency).Then(proximity.ByDistance),
	}
}

func rideStart(r proximity.Result) time.Time {
	if ride, ok := r.Record.Payload.(*entities.RideEvent); ok {
		return ride.StartAt
	}
	return time.Time{}
}

// ByStartTime sorts rides by StartAt ascending. Records without a start time
// sort first.
func ByStartTime(a, b proximity.Result) int {
	return rideStart(a).Compare(rideStart(b))
}

// UpcomingRide keeps rides that have not started yet. Rides without a start
// time are kept.
func UpcomingRide(rec entities.TrackedRecord, now time.Time) bool {
	ride, ok := rec.Payload.(*entities.RideEvent)
	if !ok || ride.StartAt.IsZero() {
		return true
	}
	return !ride.StartAt.Before(now)
}

// NearbyService runs the nearby feeds against a WindowQuerier.
type NearbyService struct {
	querier         repository.WindowQuerier
	feeds           map[Feed]FeedConfig
	snapshotTimeout time.Duration
	now             func() time.Time
	log             *slog.Logger
}

func NewNearbyService(querier repository.WindowQuerier, cfg *config.Config) *NearbyService {
	return &NearbyService{
		querier: querier,
		feeds: map[Feed]FeedConfig{
			FeedRides: RideFeed(cfg.Feeds),
			FeedSOS:   SOSFeed(cfg.Feeds),
		},
		snapshotTimeout: cfg.Feeds.SnapshotTimeout,
		now:             time.Now,
		log:             logger.With("nearby"),
	}
}

// ParseFeed maps a path segment to a Feed.
func (s *NearbyService) ParseFeed(name string) (Feed, error) {
	f := Feed(name)
	if _, ok := s.feeds[f]; !ok {
		return "", fmt.Errorf("%w: unknown feed %q", entities.ErrInvalidArgument, name)
	}
	return f, nil
}

// FeedConfig returns the configuration of a feed.
func (s *NearbyService) FeedConfig(feed Feed) (FeedConfig, bool) {
	fc, ok := s.feeds[feed]
	return fc, ok
}

// FeedSubscription is a running nearby view. It ends on Stop or when the
// context passed to Watch ends, whichever comes first.
type FeedSubscription struct {
	*proximity.Subscription
	Feed     Feed
	Center   entities.GeoPoint
	RadiusKm float64

	mu      sync.Mutex
	stopped bool
	release func() bool
}

// Stop stops the underlying subscription. It is idempotent.
func (f *FeedSubscription) Stop() {
	f.mu.Lock()
	if f.stopped {
		f.mu.Unlock()
		return
	}
	f.stopped = true
	release := f.release
	f.mu.Unlock()

	if release != nil {
		release()
	}
	f.Subscription.Stop()
	metrics.FeedSubscriptionsActive.WithLabelValues(string(f.Feed)).Dec()
}

// Watch starts a live view of feed around center. onResults receives every
// re-emitted result set; onStreamError (optional) hears about window streams
// that died. Both run under the subscription lock and must not block.
func (s *NearbyService) Watch(
	ctx context.Context,
	feed Feed,
	center entities.GeoPoint,
	onResults func([]proximity.Result),
	onStreamError func(geo.QueryWindow, error),
) (*FeedSubscription, error) {
	fc, ok := s.feeds[feed]
	if !ok {
		return nil, fmt.Errorf("%w: unknown feed %q", entities.ErrInvalidArgument, feed)
	}

	windows, err := geo.ComputeWindows(center, fc.RadiusKm)
	if err != nil {
		return nil, err
	}

	label := string(feed)
	rec, err := proximity.NewReconciler(proximity.Options{
		Center:   center,
		RadiusKm: fc.RadiusKm,
		Sort:     fc.Sort,
		Limit:    fc.Limit,
		Filter:   fc.Filter,
		Now:      s.now,
		OnResults: func(results []proximity.Result) {
			metrics.FeedEmissionsTotal.WithLabelValues(label).Inc()
			if onResults != nil {
				onResults(results)
			}
		},
		OnStreamError: func(w geo.QueryWindow, err error) {
			metrics.FeedStreamErrorsTotal.WithLabelValues(label).Inc()
			s.log.Warn("window stream failed", "feed", label, "window", w.String(), "error", err)
			if onStreamError != nil {
				onStreamError(w, err)
			}
		},
	})
	if err != nil {
		return nil, err
	}

	sub, err := rec.Start(ctx, windows, func(ctx context.Context, w geo.QueryWindow) (proximity.Stream, error) {
		return s.querier.Watch(ctx, fc.Collection, w, fc.Status)
	})
	if err != nil {
		return nil, err
	}

	metrics.FeedSubscriptionsActive.WithLabelValues(label).Inc()
	metrics.FeedWindows.WithLabelValues(label).Observe(float64(len(windows)))
	s.log.Debug("subscription started", "feed", label, "windows", len(windows), "radius_km", fc.RadiusKm)

	fs := &FeedSubscription{
		Subscription: sub,
		Feed:         feed,
		Center:       center,
		RadiusKm:     fc.RadiusKm,
	}
	fs.mu.Lock()
	fs.release = context.AfterFunc(ctx, fs.Stop)
	fs.mu.Unlock()
	return fs, nil
}

// WatchRides is Watch for the ride feed.
func (s *NearbyService) WatchRides(ctx context.Context, center entities.GeoPoint, onResults func([]proximity.Result), onStreamError func(geo.QueryWindow, error)) (*FeedSubscription, error) {
	return s.Watch(ctx, FeedRides, center, onResults, onStreamError)
}

// WatchSOS is Watch for the SOS feed.
func (s *NearbyService) WatchSOS(ctx context.Context, center entities.GeoPoint, onResults func([]proximity.Result), onStreamError func(geo.QueryWindow, error)) (*FeedSubscription, error) {
	return s.Watch(ctx, FeedSOS, center, onResults, onStreamError)
}

// NearbyResult is a one-shot answer.
type NearbyResult struct {
	Feed     Feed               `json:"feed"`
	Center   entities.GeoPoint  `json:"center"`
	RadiusKm float64            `json:"radius_km"`
	Results  []proximity.Result `json:"results"`
	// Degraded is set when a window stream failed; results may be missing.
	Degraded bool `json:"degraded"`
	// Complete is false when the snapshot timeout fired before every window
	// delivered its initial contents.
	Complete bool `json:"complete"`
}

// Nearby starts a subscription, waits until every window has synced (or the
// snapshot timeout passes, or ctx ends) and returns the current results.
func (s *NearbyService) Nearby(ctx context.Context, feed Feed, center entities.GeoPoint) (*NearbyResult, error) {
	sub, err := s.Watch(ctx, feed, center, nil, nil)
	if err != nil {
		return nil, err
	}
	defer sub.Stop()

	timer := time.NewTimer(s.snapshotTimeout)
	defer timer.Stop()

	complete := true
	select {
	case <-sub.Ready():
	case <-timer.C:
		complete = false
		metrics.FeedSnapshotTimeoutsTotal.WithLabelValues(string(feed)).Inc()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	results := sub.Snapshot()
	if results == nil {
		results = []proximity.Result{}
	}
	return &NearbyResult{
		Feed:     feed,
		Center:   center,
		RadiusKm: sub.RadiusKm,
		Results:  results,
		Degraded: sub.Degraded(),
		Complete: complete,
	}, nil
}
