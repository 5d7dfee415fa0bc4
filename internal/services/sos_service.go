package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"convoy/internal/config"
	"convoy/internal/domain/entities"
	"convoy/internal/geo"
	"convoy/internal/logger"
	"convoy/internal/metrics"
	"convoy/internal/repository"
	"convoy/pkg/utils"
)

// SOSService raises and resolves distress alerts. A user has at most one
// active alert, and only its sender may resolve it.
type SOSService struct {
	repo    repository.SOSRepository
	locks   repository.LockManager
	lockTTL time.Duration
	now     func() time.Time
	log     *slog.Logger
}

func NewSOSService(repo repository.SOSRepository, locks repository.LockManager, cfg *config.Config) *SOSService {
	return &SOSService{
		repo:    repo,
		locks:   locks,
		lockTTL: cfg.SOS.LockTTL,
		now:     time.Now,
		log:     logger.With("sos"),
	}
}

func sosLockKey(uid string) string {
	return "sos:" + uid
}

// Trigger creates an active alert for uid at point. The per-user lock
// serializes concurrent triggers; the repository check rejects a second alert
// while the first is still active.
func (s *SOSService) Trigger(ctx context.Context, uid string, point entities.GeoPoint, profile entities.SOSProfile) (*entities.SOSEvent, error) {
	if strings.TrimSpace(uid) == "" {
		return nil, fmt.Errorf("%w: empty uid", entities.ErrInvalidArgument)
	}
	if err := point.Validate(); err != nil {
		return nil, err
	}

	key := sosLockKey(uid)
	acquired, err := s.locks.AcquireLock(ctx, key, s.lockTTL)
	if err != nil {
		return nil, fmt.Errorf("acquire %s: %w", key, err)
	}
	if !acquired {
		// Another trigger for this user is in flight.
		return nil, entities.ErrActiveSOSExists
	}
	defer func() {
		if err := s.locks.ReleaseLock(context.WithoutCancel(ctx), key); err != nil {
			s.log.Warn("release lock failed", "key", key, "error", err)
		}
	}()

	active, err := s.repo.GetActiveByUID(ctx, uid)
	if err != nil {
		return nil, err
	}
	if active != nil {
		return nil, entities.ErrActiveSOSExists
	}

	hash := geo.Encode(point.Latitude, point.Longitude, geo.RecordPrecision)
	sos := entities.NewSOSEvent(utils.GenerateID(), uid, point, hash, profile)
	sos.CreatedAt = s.now()
	if err := s.repo.Create(ctx, sos); err != nil {
		return nil, err
	}

	metrics.SOSTriggeredTotal.Inc()
	s.log.Info("sos triggered", "id", sos.ID, "uid", uid, "geohash", hash)
	return sos, nil
}

// Resolve marks the alert resolved. Resolving an already resolved alert is a
// no-op that returns it unchanged.
func (s *SOSService) Resolve(ctx context.Context, uid, sosID string) (*entities.SOSEvent, error) {
	sos, err := s.repo.GetByID(ctx, sosID)
	if err != nil {
		return nil, err
	}
	if sos.UID != uid {
		return nil, entities.ErrNotSOSOwner
	}
	if !sos.IsActive() {
		return sos, nil
	}

	sos.Resolve(s.now())
	if err := s.repo.Update(ctx, sos); err != nil {
		return nil, err
	}

	metrics.SOSResolvedTotal.Inc()
	s.log.Info("sos resolved", "id", sos.ID, "uid", uid)
	return sos, nil
}

// Get returns an alert by id.
func (s *SOSService) Get(ctx context.Context, sosID string) (*entities.SOSEvent, error) {
	return s.repo.GetByID(ctx, sosID)
}

// Active returns the caller's active alert or entities.ErrSOSNotFound.
func (s *SOSService) Active(ctx context.Context, uid string) (*entities.SOSEvent, error) {
	sos, err := s.repo.GetActiveByUID(ctx, uid)
	if err != nil {
		return nil, err
	}
	if sos == nil {
		return nil, entities.ErrSOSNotFound
	}
	return sos, nil
}
