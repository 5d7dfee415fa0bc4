package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"convoy/internal/domain/entities"
	"convoy/internal/geo"
	"convoy/internal/logger"
	"convoy/internal/metrics"
	"convoy/internal/repository"
)

// ErrWriteFailed wraps any error from the position backend. Publish does not
// retry; the next device fix is the retry.
var ErrWriteFailed = errors.New("position write failed")

// ProximityPublisher writes a user's current position, tagged with its
// record-precision geohash, so other users' window queries can find it.
type ProximityPublisher struct {
	writer repository.PointWriter
	log    *slog.Logger
}

func NewProximityPublisher(writer repository.PointWriter) *ProximityPublisher {
	return &ProximityPublisher{
		writer: writer,
		log:    logger.With("publisher"),
	}
}

// Publish validates the input, derives the geohash and performs a single
// upsert. Invalid input returns entities.ErrInvalidArgument; a backend
// failure returns an error wrapping ErrWriteFailed.
func (p *ProximityPublisher) Publish(ctx context.Context, id string, point entities.GeoPoint) (*entities.PositionUpdate, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: empty id", entities.ErrInvalidArgument)
	}
	if err := point.Validate(); err != nil {
		return nil, err
	}

	hash := geo.Encode(point.Latitude, point.Longitude, geo.RecordPrecision)
	update := entities.NewPositionUpdate(id, point, hash)

	if err := p.writer.WritePosition(ctx, update); err != nil {
		metrics.PositionWritesTotal.WithLabelValues("failed").Inc()
		p.log.Warn("position write failed", "id", id, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}
	metrics.PositionWritesTotal.WithLabelValues("ok").Inc()
	return update, nil
}

// MovementGate decides whether a device fix is worth publishing. The first
// fix for an id always passes; later ones pass once the device has moved at
// least minMeters and minInterval has elapsed since the last accepted fix.
// Users who switched location sharing off never pass.
type MovementGate struct {
	mu          sync.Mutex
	minMeters   float64
	minInterval time.Duration
	last        map[string]gateEntry
	disabled    map[string]bool
}

type gateEntry struct {
	point entities.GeoPoint
	at    time.Time
}

func NewMovementGate(minMeters float64, minInterval time.Duration) *MovementGate {
	return &MovementGate{
		minMeters:   minMeters,
		minInterval: minInterval,
		last:        make(map[string]gateEntry),
		disabled:    make(map[string]bool),
	}
}

// Allow reports whether the fix should be published and, if so, records it
// as the new reference point.
func (g *MovementGate) Allow(id string, point entities.GeoPoint, now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.disabled[id] {
		return false
	}
	prev, ok := g.last[id]
	if ok {
		movedMeters := geo.DistanceKm(prev.point, point) * 1000
		if movedMeters < g.minMeters || now.Sub(prev.at) < g.minInterval {
			return false
		}
	}
	g.last[id] = gateEntry{point: point, at: now}
	return true
}

// Forget drops the reference point so the next fix passes.
func (g *MovementGate) Forget(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.last, id)
}

// SetSharing turns location sharing on or off for id. Sharing is on by
// default; switching it back on lets the next fix through.
func (g *MovementGate) SetSharing(id string, enabled bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if enabled {
		delete(g.disabled, id)
		delete(g.last, id)
		return
	}
	g.disabled[id] = true
}

// Sharing reports whether id currently shares its location.
func (g *MovementGate) Sharing(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return !g.disabled[id]
}
