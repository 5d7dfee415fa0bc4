package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"convoy/internal/config"
	"convoy/internal/repository"
	"convoy/internal/repository/firestore"
	"convoy/internal/repository/memory"
	"convoy/internal/repository/redis"
)

// backends is the storage wiring picked by STORE_BACKEND and
// POSITION_BACKEND.
type backends struct {
	querier   repository.WindowQuerier
	sos       repository.SOSRepository
	rides     repository.RideRepository
	positions repository.PositionStore
	locks     *memory.LockManager

	fs    *firestore.Client
	redis *goredis.Client
}

func openBackends(ctx context.Context, cfg *config.Config) (*backends, error) {
	b := &backends{locks: memory.NewLockManager(time.Second)}

	needFirestore := cfg.Store.Backend == config.BackendFirestore ||
		cfg.Store.PositionBackend == config.BackendFirestore
	if needFirestore {
		fs, err := firestore.NewClient(ctx, cfg.Firestore)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.fs = fs
	}

	switch cfg.Store.Backend {
	case config.BackendFirestore:
		b.querier = firestore.NewQuerier(b.fs, cfg.Firestore.WindowLimit)
		b.sos = firestore.NewSOSRepository(b.fs)
		b.rides = firestore.NewRideRepository(b.fs)
	default:
		feed := memory.NewRecordStore()
		b.querier = feed
		b.sos = memory.NewSOSRepository(feed)
		b.rides = memory.NewRideRepository(feed)
	}

	switch cfg.Store.PositionBackend {
	case config.BackendFirestore:
		b.positions = firestore.NewPositionWriter(b.fs)
	case config.BackendRedis:
		client, err := redis.Open(ctx, cfg.Redis)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.redis = client
		b.positions = redis.NewPositionStore(client, cfg.Redis.GeoKey)
	default:
		b.positions = memory.NewPositionStore(6)
	}

	return b, nil
}

func (b *backends) Close() error {
	b.locks.Stop()

	var errs []error
	if b.fs != nil {
		if err := b.fs.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close firestore: %w", err))
		}
	}
	if b.redis != nil {
		if err := b.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	return errors.Join(errs...)
}
