package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"convoy/internal/domain/entities"
)

func TestSOSRepository_ActiveIndex(t *testing.T) {
	ctx := context.Background()
	feed := NewRecordStore()
	repo := NewSOSRepository(feed)

	sos := entities.NewSOSEvent("s1", "u1", entities.NewGeoPoint(19.08, 72.88), "te7u0p4m1z", entities.SOSProfile{Username: "asha"})
	require.NoError(t, repo.Create(ctx, sos))

	active, err := repo.GetActiveByUID(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, "s1", active.ID)

	second := entities.NewSOSEvent("s2", "u1", entities.NewGeoPoint(19.08, 72.88), "te7u0p4m1z", entities.SOSProfile{})
	assert.ErrorIs(t, repo.Create(ctx, second), entities.ErrActiveSOSExists)

	active.Resolve(time.Now())
	require.NoError(t, repo.Update(ctx, active))

	none, err := repo.GetActiveByUID(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, none)

	rec, ok := feed.Get(entities.CollectionSOS, "s1")
	require.True(t, ok)
	assert.Equal(t, "resolved", rec.Status)
}

func TestSOSRepository_NotFound(t *testing.T) {
	repo := NewSOSRepository(NewRecordStore())

	_, err := repo.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, entities.ErrSOSNotFound)

	err = repo.Update(context.Background(), &entities.SOSEvent{ID: "missing"})
	assert.ErrorIs(t, err, entities.ErrSOSNotFound)
}

func TestRideRepository_MirrorsIntoFeed(t *testing.T) {
	ctx := context.Background()
	feed := NewRecordStore()
	repo := NewRideRepository(feed)

	loc := entities.NewGeoPoint(19.08, 72.88)
	ride := entities.NewRideEvent("r1", "u1", "Sunday loop", true, time.Now().Add(time.Hour), &loc, "te7u0p4m1z")
	require.NoError(t, repo.Create(ctx, ride))

	got, err := repo.GetByID(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "Sunday loop", got.Title)

	rec, ok := feed.Get(entities.CollectionRides, "r1")
	require.True(t, ok)
	assert.True(t, rec.Locatable())

	require.NoError(t, repo.Delete(ctx, "r1"))
	_, ok = feed.Get(entities.CollectionRides, "r1")
	assert.False(t, ok)
	_, err = repo.GetByID(ctx, "r1")
	assert.ErrorIs(t, err, entities.ErrRideNotFound)
}
