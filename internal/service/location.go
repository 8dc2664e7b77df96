package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"rideengine/internal/domain"
	"rideengine/internal/observability"
	"rideengine/internal/redis"
	"rideengine/internal/repository"
)

// LocationChanged is a coordinate update reported for a user.
type LocationChanged struct {
	UserID string
	// Coordinates are ordered [lng, lat].
	Coordinates [2]float64
	Address     string
}

// LocationBridge propagates a user's coordinates into the user record, the
// driver GEO index and every live ride bound to the user's driver profile.
type LocationBridge struct {
	users     repository.UserRepository
	drivers   repository.DriverRepository
	rides     repository.RideRepository
	locations redis.LocationStoreInterface
	cache     redis.RideCacheInterface
	notifier  *NotificationService
	logger    *slog.Logger
	now       func() time.Time
}

// NewLocationBridge creates a new LocationBridge. locations and cache may be
// nil.
func NewLocationBridge(
	users repository.UserRepository,
	drivers repository.DriverRepository,
	rides repository.RideRepository,
	locations redis.LocationStoreInterface,
	cache redis.RideCacheInterface,
	notifier *NotificationService,
	logger *slog.Logger,
) *LocationBridge {
	return &LocationBridge{
		users:     users,
		drivers:   drivers,
		rides:     rides,
		locations: locations,
		cache:     cache,
		notifier:  notifier,
		logger:    logger,
		now:       time.Now,
	}
}

// WithClock replaces the bridge clock.
func (b *LocationBridge) WithClock(now func() time.Time) *LocationBridge {
	b.now = now
	return b
}

// HandleLocationChanged applies one location event. It returns the rides the
// coordinate was mirrored into; having none is not an error.
func (b *LocationBridge) HandleLocationChanged(ctx context.Context, ev LocationChanged) ([]repository.RideRef, error) {
	refs, err := b.handle(ctx, ev)
	switch {
	case err != nil && errors.Is(err, ErrBadRequest):
		observability.LocationEventsTotal.WithLabelValues("invalid").Inc()
	case err != nil:
		observability.LocationEventsTotal.WithLabelValues("error").Inc()
	case len(refs) > 0:
		observability.LocationEventsTotal.WithLabelValues("mirrored").Inc()
	default:
		observability.LocationEventsTotal.WithLabelValues("stored").Inc()
	}
	return refs, err
}

func (b *LocationBridge) handle(ctx context.Context, ev LocationChanged) ([]repository.RideRef, error) {
	if ev.UserID == "" {
		return nil, ErrInvalidUserID
	}
	loc := domain.Point{Type: domain.PointType, Coordinates: ev.Coordinates, Address: ev.Address}
	if !loc.Valid() {
		return nil, ErrInvalidLocation
	}

	now := b.now()

	// The user's own record is updated whatever role they hold.
	if err := b.users.UpdateLocation(ctx, ev.UserID, loc, now); err != nil {
		return nil, err
	}

	driver, err := b.drivers.GetByUserID(ctx, ev.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	if b.locations != nil {
		if err := b.locations.UpdateLocation(ctx, driver.ID, loc.Lat(), loc.Lng()); err != nil {
			b.logger.Warn("driver geo index update failed", "driver_id", driver.ID, "error", err)
		}
	}

	refs, err := b.rides.MirrorDriverLocation(ctx, driver.ID, loc, now)
	if err != nil {
		return nil, err
	}
	if len(refs) == 0 {
		return nil, nil
	}
	observability.RidesMirroredTotal.Add(float64(len(refs)))

	for _, ref := range refs {
		if b.cache != nil {
			if err := b.cache.InvalidateRide(ctx, ref.ID); err != nil {
				b.logger.Warn("ride cache invalidation failed", "ride_id", ref.ID, "error", err)
			}
		}
		b.notifier.NotifyDriverLocationUpdated(ctx, ref.ID, ref.RiderID, driver.ID, loc)
	}

	b.logger.Debug("driver location mirrored", "driver_id", driver.ID, "rides", len(refs))
	return refs, nil
}
