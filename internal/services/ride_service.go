package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"convoy/internal/domain/entities"
	"convoy/internal/geo"
	"convoy/internal/logger"
	"convoy/internal/metrics"
	"convoy/internal/repository"
	"convoy/pkg/utils"
)

// RideService creates group rides. Rides with a location show up in the
// nearby rides feed.
type RideService struct {
	repo repository.RideRepository
	now  func() time.Time
	log  *slog.Logger
}

func NewRideService(repo repository.RideRepository) *RideService {
	return &RideService{
		repo: repo,
		now:  time.Now,
		log:  logger.With("rides"),
	}
}

type CreateRideRequest struct {
	Title    string             `json:"title"`
	IsPublic bool               `json:"is_public"`
	StartAt  time.Time          `json:"start_at"`
	Location *entities.GeoPoint `json:"location,omitempty"`
}

// CreateRide validates the request and stores a ride led by leaderUID. The
// join window closes 45 minutes after the start.
func (s *RideService) CreateRide(ctx context.Context, leaderUID string, req CreateRideRequest) (*entities.RideEvent, error) {
	if strings.TrimSpace(leaderUID) == "" {
		return nil, fmt.Errorf("%w: empty leader uid", entities.ErrInvalidArgument)
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", entities.ErrInvalidArgument)
	}
	if req.StartAt.IsZero() {
		return nil, fmt.Errorf("%w: start_at is required", entities.ErrInvalidArgument)
	}

	var hash string
	if req.Location != nil {
		if err := req.Location.Validate(); err != nil {
			return nil, err
		}
		hash = geo.Encode(req.Location.Latitude, req.Location.Longitude, geo.RecordPrecision)
	}

	ride := entities.NewRideEvent(utils.GenerateID(), leaderUID, title, req.IsPublic, req.StartAt, req.Location, hash)
	ride.CreatedAt = s.now()
	if err := s.repo.Create(ctx, ride); err != nil {
		return nil, err
	}

	metrics.RidesCreatedTotal.Inc()
	s.log.Info("ride created", "id", ride.ID, "leader", leaderUID, "located", ride.Location != nil)
	return ride, nil
}

func (s *RideService) GetRide(ctx context.Context, rideID string) (*entities.RideEvent, error) {
	return s.repo.GetByID(ctx, rideID)
}
