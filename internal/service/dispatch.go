package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"rideengine/internal/domain"
	"rideengine/internal/observability"
	"rideengine/internal/redis"
	"rideengine/internal/repository"
)

const (
	// DefaultRideRequestTTL is how long a REQUESTED ride waits for the driver.
	DefaultRideRequestTTL = 5 * time.Hour

	// DefaultRiderLockTTL bounds how long one rider's request may hold the
	// request lock.
	DefaultRiderLockTTL = 10 * time.Second
)

// Geocoder resolves a coordinate to an address.
type Geocoder interface {
	ReverseGeocode(ctx context.Context, lat, lng float64) (string, error)
}

// DispatchConfig tunes the dispatch orchestrator.
type DispatchConfig struct {
	RequestTTL   time.Duration
	RiderLockTTL time.Duration
}

// DispatchService turns ride requests into REQUESTED rides bound to the best
// available driver.
type DispatchService struct {
	tx       repository.Transactor
	rides    repository.RideRepository
	pool     repository.DriverPool
	geocoder Geocoder
	locks    redis.LockStoreInterface
	notifier *NotificationService
	logger   *slog.Logger
	cfg      DispatchConfig
	now      func() time.Time
}

// NewDispatchService creates a new DispatchService.
func NewDispatchService(
	tx repository.Transactor,
	rides repository.RideRepository,
	pool repository.DriverPool,
	geocoder Geocoder,
	locks redis.LockStoreInterface,
	notifier *NotificationService,
	logger *slog.Logger,
	cfg DispatchConfig,
) *DispatchService {
	if cfg.RequestTTL <= 0 {
		cfg.RequestTTL = DefaultRideRequestTTL
	}
	if cfg.RiderLockTTL <= 0 {
		cfg.RiderLockTTL = DefaultRiderLockTTL
	}
	return &DispatchService{
		tx:       tx,
		rides:    rides,
		pool:     pool,
		geocoder: geocoder,
		locks:    locks,
		notifier: notifier,
		logger:   logger,
		cfg:      cfg,
		now:      time.Now,
	}
}

// WithClock replaces the service clock.
func (s *DispatchService) WithClock(now func() time.Time) *DispatchService {
	s.now = now
	return s
}

// RequestRideRequest contains the parameters for requesting a ride.
type RequestRideRequest struct {
	PickUp      domain.Point
	DropOff     domain.Point
	Fare        float64
	DistanceKm  *float64
	DurationMin *float64
}

// RequestRideResult contains the created ride and how many drivers were
// considered.
type RequestRideResult struct {
	Ride           *domain.Ride
	Driver         domain.Candidate
	CandidateCount int
}

// RequestRide validates the request, takes a fresh snapshot of the driver
// pool, resolves the drop-off address, selects a driver and stores a
// REQUESTED ride bound to that driver.
func (s *DispatchService) RequestRide(ctx context.Context, rider domain.Principal, req RequestRideRequest) (*RequestRideResult, error) {
	start := time.Now()

	result, err := s.requestRide(ctx, rider, req)
	observability.RideRequestsTotal.WithLabelValues(ErrorKind(err)).Inc()
	if err != nil {
		s.logger.Info("ride request rejected", "rider_id", rider.UserID, "kind", ErrorKind(err), "error", err)
		return nil, err
	}

	observability.DispatchLatency.Observe(time.Since(start).Seconds())
	s.logger.Info("ride requested",
		"ride_id", result.Ride.ID,
		"rider_id", rider.UserID,
		"driver_id", result.Driver.DriverID,
		"distance_km", result.Driver.DistanceKm,
		"candidates", result.CandidateCount,
	)
	return result, nil
}

func (s *DispatchService) requestRide(ctx context.Context, rider domain.Principal, req RequestRideRequest) (*RequestRideResult, error) {
	if rider.UserID == "" {
		return nil, ErrMissingPrincipal
	}
	if err := validateRideRequest(req); err != nil {
		return nil, err
	}

	token, locked, err := s.locks.AcquireRiderLock(ctx, rider.UserID, s.cfg.RiderLockTTL)
	if err != nil {
		return nil, fmt.Errorf("acquire rider lock: %w", err)
	}
	if !locked {
		return nil, ErrRideRequestInProgress
	}
	defer func() {
		if err := s.locks.ReleaseRiderLock(context.WithoutCancel(ctx), rider.UserID, token); err != nil {
			s.logger.Warn("release rider lock failed", "rider_id", rider.UserID, "error", err)
		}
	}()

	now := s.now()

	outstanding, err := s.rides.HasOutstandingRequest(ctx, rider.UserID, now)
	if err != nil {
		return nil, err
	}
	if outstanding {
		return nil, ErrOutstandingRideRequest
	}

	candidates, err := s.pool.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	observability.CandidatesPerRequest.Observe(float64(len(candidates)))
	if len(candidates) == 0 {
		return nil, ErrNoDriversOnline
	}

	address, err := s.geocoder.ReverseGeocode(ctx, req.DropOff.Lat(), req.DropOff.Lng())
	if err != nil {
		s.logger.Warn("reverse geocode failed", "rider_id", rider.UserID, "error", err)
		return nil, ErrGeocodeUnavailable
	}

	winner, err := SelectDriver(req.PickUp, candidates)
	if err != nil {
		return nil, err
	}

	expiresAt := now.Add(s.cfg.RequestTTL)
	ride := &domain.Ride{
		ID:             uuid.NewString(),
		RiderID:        rider.UserID,
		RiderUsername:  rider.Username,
		DriverID:       winner.DriverID,
		DriverUserID:   winner.UserID,
		DriverUsername: winner.Username,
		PickUp:         domain.NewPoint(req.PickUp.Lat(), req.PickUp.Lng(), req.PickUp.Address),
		DropOff:        domain.NewPoint(req.DropOff.Lat(), req.DropOff.Lng(), address),
		Fare:           req.Fare,
		DistanceKm:     req.DistanceKm,
		DurationMin:    req.DurationMin,
		Status:         domain.RideStatusRequested,
		RequestedAt:    now,
		ExpiresAt:      &expiresAt,
		UpdatedAt:      now,
	}
	if winner.Location != nil {
		loc := *winner.Location
		ride.DriverLocation = &loc
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		if _, err := repos.Rides.DeleteExpiredRequests(ctx, rider.UserID, now); err != nil {
			return err
		}
		return repos.Rides.Create(ctx, ride)
	})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrOutstandingRideRequest
		}
		return nil, err
	}

	s.notifier.NotifyRideRequested(ctx, ride, winner.UserID)

	return &RequestRideResult{
		Ride:           ride,
		Driver:         winner,
		CandidateCount: len(candidates),
	}, nil
}

// AvailableDrivers returns the current dispatchable drivers ranked for a
// pickup point.
func (s *DispatchService) AvailableDrivers(ctx context.Context, pickup domain.Point) ([]domain.Candidate, error) {
	if !pickup.Valid() {
		return nil, ErrInvalidPickupLocation
	}
	candidates, err := s.pool.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return RankCandidates(pickup, candidates), nil
}

// PurgeExpiredRequests deletes every REQUESTED ride whose expiry has elapsed.
func (s *DispatchService) PurgeExpiredRequests(ctx context.Context) (int64, error) {
	n, err := s.rides.DeleteExpiredRequests(ctx, "", s.now())
	if err != nil {
		return 0, err
	}
	observability.ExpiredRequestsPurgedTotal.Add(float64(n))
	return n, nil
}

// RunExpirySweeper purges expired requests every interval until ctx is done.
// Expiry is enforced on every read, so the sweeper only reclaims storage.
func (s *DispatchService) RunExpirySweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.PurgeExpiredRequests(ctx)
			if err != nil {
				s.logger.Error("expiry sweep failed", "error", err)
				continue
			}
			if n > 0 {
				s.logger.Info("expired ride requests purged", "count", n)
			}
		}
	}
}

func validateRideRequest(req RequestRideRequest) error {
	if req.PickUp.Type != domain.PointType || !req.PickUp.Valid() {
		return ErrInvalidPickupLocation
	}
	if req.DropOff.Type != domain.PointType || !req.DropOff.Valid() {
		return ErrInvalidDropOffLocation
	}
	if math.IsNaN(req.Fare) || math.IsInf(req.Fare, 0) || req.Fare < 0 {
		return ErrInvalidFare
	}
	if req.DistanceKm != nil && !(*req.DistanceKm >= 0) {
		return ErrInvalidTripEstimate
	}
	if req.DurationMin != nil && !(*req.DurationMin >= 0) {
		return ErrInvalidTripEstimate
	}
	return nil
}
