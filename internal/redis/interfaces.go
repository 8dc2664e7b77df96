package redis

import (
	"context"
	"time"

	"rideengine/internal/domain"
)

// LocationStoreInterface defines the interface for the driver GEO index.
type LocationStoreInterface interface {
	UpdateLocation(ctx context.Context, driverID string, lat, lng float64) error
	FindNearbyDrivers(ctx context.Context, lat, lng, radiusKm float64) ([]DriverPosition, error)
	RemoveLocation(ctx context.Context, driverID string) error
}

// LockStoreInterface defines the interface for the per-rider request lock.
type LockStoreInterface interface {
	AcquireRiderLock(ctx context.Context, riderID string, ttl time.Duration) (string, bool, error)
	ReleaseRiderLock(ctx context.Context, riderID, token string) error
}

// RideCacheInterface defines the interface for the ride read cache.
type RideCacheInterface interface {
	GetRide(ctx context.Context, rideID string) (*domain.Ride, error)
	SetRide(ctx context.Context, ride *domain.Ride) error
	InvalidateRide(ctx context.Context, rideID string) error
}

// AddressCacheInterface defines the interface for cached geocoding results.
type AddressCacheInterface interface {
	GetAddress(ctx context.Context, cell string) (string, bool, error)
	SetAddress(ctx context.Context, cell, address string, ttl time.Duration) error
}

// Ensure concrete types implement interfaces.
var (
	_ LocationStoreInterface = (*LocationStore)(nil)
	_ LockStoreInterface     = (*LockStore)(nil)
	_ RideCacheInterface     = (*CacheStore)(nil)
	_ AddressCacheInterface  = (*CacheStore)(nil)
)
