// Package redis stores positions in a Redis GEO set. It is an alternate
// position backend for deployments that keep live positions out of the
// system of record.
package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"convoy/internal/config"
	"convoy/internal/domain/entities"
	"convoy/internal/geo"
	"convoy/internal/logger"
	"convoy/internal/repository"
)

// Open connects to cfg.Addr and pings it.
func Open(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Addr, err)
	}
	logger.With("redis").Debug("redis connected", "addr", cfg.Addr, "db", cfg.DB)
	return client, nil
}

// geoMaxLatitude is the latitude limit of Redis GEO sets (EPSG:3857).
const geoMaxLatitude = 85.05112878

// geoIndexable reports whether GEOADD accepts p.
func geoIndexable(p entities.GeoPoint) bool {
	return p.Latitude >= -geoMaxLatitude && p.Latitude <= geoMaxLatitude
}

// PositionStore keeps every id's coordinates in one GEO set and the
// geohash and timestamp in a per-id hash. Both are written in a single
// MULTI/EXEC so a reader never sees one without the other. Points beyond
// the GEO latitude limit are kept in the hash only and never show up in
// SearchPositions.
type PositionStore struct {
	client *redis.Client
	geoKey string
}

func NewPositionStore(client *redis.Client, geoKey string) *PositionStore {
	return &PositionStore{client: client, geoKey: geoKey}
}

func (s *PositionStore) hashKey(id string) string {
	return "position:" + id
}

func (s *PositionStore) WritePosition(ctx context.Context, update *entities.PositionUpdate) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if geoIndexable(update.Point) {
			pipe.GeoAdd(ctx, s.geoKey, &redis.GeoLocation{
				Name:      update.ID,
				Longitude: update.Point.Longitude,
				Latitude:  update.Point.Latitude,
			})
		} else {
			// Drop any earlier, now stale, index entry.
			pipe.ZRem(ctx, s.geoKey, update.ID)
		}
		pipe.HSet(ctx, s.hashKey(update.ID),
			"lat", strconv.FormatFloat(update.Point.Latitude, 'f', -1, 64),
			"lng", strconv.FormatFloat(update.Point.Longitude, 'f', -1, 64),
			"geohash", update.Geohash,
			"updated_at", update.UpdatedAt.UTC().Format(time.RFC3339Nano),
		)
		return nil
	})
	if err != nil {
		return fmt.Errorf("write position for %s: %w", update.ID, err)
	}
	return nil
}

// GetPosition reads back the exact coordinates from the hash; the GEO set
// only keeps 52-bit precision.
func (s *PositionStore) GetPosition(ctx context.Context, id string) (*entities.PositionUpdate, error) {
	fields, err := s.client.HGetAll(ctx, s.hashKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("read position for %s: %w", id, err)
	}
	if len(fields) == 0 {
		return nil, nil
	}

	lat, err := strconv.ParseFloat(fields["lat"], 64)
	if err != nil {
		return nil, fmt.Errorf("position %s: bad lat %q: %w", id, fields["lat"], err)
	}
	lng, err := strconv.ParseFloat(fields["lng"], 64)
	if err != nil {
		return nil, fmt.Errorf("position %s: bad lng %q: %w", id, fields["lng"], err)
	}
	updatedAt, _ := time.Parse(time.RFC3339Nano, fields["updated_at"])

	return &entities.PositionUpdate{
		ID:        id,
		Point:     entities.NewGeoPoint(lat, lng),
		Geohash:   fields["geohash"],
		UpdatedAt: updatedAt,
	}, nil
}

// SearchPositions lists ids within radiusKm of center, nearest first. Hits
// carry the GEO set's coordinates, which are rounded to about 0.6 m.
func (s *PositionStore) SearchPositions(ctx context.Context, center entities.GeoPoint, radiusKm float64, limit int) ([]repository.PositionHit, error) {
	locs, err := s.client.GeoSearchLocation(ctx, s.geoKey, &redis.GeoSearchLocationQuery{
		GeoSearchQuery: redis.GeoSearchQuery{
			Longitude:  center.Longitude,
			Latitude:   center.Latitude,
			Radius:     radiusKm,
			RadiusUnit: "km",
			Sort:       "ASC",
			Count:      max(limit, 0),
		},
		WithCoord: true,
		WithDist:  true,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("search positions: %w", err)
	}

	hits := make([]repository.PositionHit, 0, len(locs))
	for _, loc := range locs {
		point := entities.NewGeoPoint(loc.Latitude, loc.Longitude)
		hits = append(hits, repository.PositionHit{
			Position: entities.PositionUpdate{
				ID:      loc.Name,
				Point:   point,
				Geohash: geo.Encode(point.Latitude, point.Longitude, geo.RecordPrecision),
			},
			DistanceKm: loc.Dist,
		})
	}
	return hits, nil
}
