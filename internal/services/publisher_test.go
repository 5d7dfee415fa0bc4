package services

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"convoy/internal/domain/entities"
	"convoy/internal/geo"
	"convoy/internal/repository/memory"
)

type failingWriter struct{ err error }

func (w failingWriter) WritePosition(context.Context, *entities.PositionUpdate) error { return w.err }

func TestProximityPublisher_Publish(t *testing.T) {
	ctx := context.Background()
	store := memory.NewPositionStore(6)
	pub := NewProximityPublisher(store)

	update, err := pub.Publish(ctx, "u1", entities.NewGeoPoint(19.0760, 72.8777))
	require.NoError(t, err)
	assert.Len(t, update.Geohash, geo.RecordPrecision)
	assert.Equal(t, geo.Encode(19.0760, 72.8777, geo.RecordPrecision), update.Geohash)

	stored, err := store.GetPosition(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, update.Geohash, stored.Geohash)

	// A second publish replaces the first.
	_, err = pub.Publish(ctx, "u1", entities.NewGeoPoint(19.08, 72.88))
	require.NoError(t, err)
	stored, _ = store.GetPosition(ctx, "u1")
	assert.Equal(t, 19.08, stored.Point.Latitude)
}

func TestProximityPublisher_InvalidArgument(t *testing.T) {
	pub := NewProximityPublisher(memory.NewPositionStore(6))

	tests := []struct {
		name  string
		id    string
		point entities.GeoPoint
	}{
		{name: "empty id", id: "", point: entities.NewGeoPoint(0, 0)},
		{name: "blank id", id: "   ", point: entities.NewGeoPoint(0, 0)},
		{name: "latitude out of range", id: "u1", point: entities.NewGeoPoint(120, 0)},
		{name: "NaN longitude", id: "u1", point: entities.NewGeoPoint(0, math.NaN())},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := pub.Publish(context.Background(), tt.id, tt.point)
			assert.ErrorIs(t, err, entities.ErrInvalidArgument)
		})
	}
}

func TestProximityPublisher_WriteFailed(t *testing.T) {
	cause := errors.New("backend unavailable")
	pub := NewProximityPublisher(failingWriter{err: cause})

	_, err := pub.Publish(context.Background(), "u1", entities.NewGeoPoint(1, 1))
	assert.ErrorIs(t, err, ErrWriteFailed)
	assert.ErrorIs(t, err, cause)
}

func TestMovementGate(t *testing.T) {
	gate := NewMovementGate(10, 5*time.Second)
	t0 := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	home := entities.NewGeoPoint(19.0760, 72.8777)
	// ~11 m north
	moved := entities.NewGeoPoint(19.0761, 72.8777)
	// ~3 m north
	nudged := entities.NewGeoPoint(19.07603, 72.8777)

	assert.True(t, gate.Allow("u1", home, t0), "first fix always passes")
	assert.False(t, gate.Allow("u1", moved, t0.Add(time.Second)), "too soon")
	assert.False(t, gate.Allow("u1", nudged, t0.Add(10*time.Second)), "too close")
	assert.True(t, gate.Allow("u1", moved, t0.Add(6*time.Second)))

	assert.True(t, gate.Allow("u2", home, t0), "ids are independent")

	gate.Forget("u1")
	assert.True(t, gate.Allow("u1", moved, t0.Add(7*time.Second)))
}

func TestMovementGate_Sharing(t *testing.T) {
	gate := NewMovementGate(10, 5*time.Second)
	now := time.Now()
	p := entities.NewGeoPoint(10, 10)

	assert.True(t, gate.Sharing("u1"))
	gate.SetSharing("u1", false)
	assert.False(t, gate.Sharing("u1"))
	assert.False(t, gate.Allow("u1", p, now))

	gate.SetSharing("u1", true)
	assert.True(t, gate.Allow("u1", p, now))
}
