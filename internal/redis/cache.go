package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"rideengine/internal/domain"
)

// CacheStore handles read-through caching in Redis.
type CacheStore struct {
	client  redis.Cmdable
	rideTTL time.Duration
}

// NewCacheStore creates a new CacheStore.
func NewCacheStore(client redis.Cmdable) *CacheStore {
	return &CacheStore{client: client, rideTTL: RideCacheTTL}
}

// Cache TTL constants
const (
	RideCacheTTL    = 10 * time.Second // rides move through statuses quickly
	AddressCacheTTL = 24 * time.Hour   // street addresses rarely change
)

// Key prefixes
const (
	rideCachePrefix    = "cache:ride:"
	addressCachePrefix = "cache:address:"
)

// GetRide retrieves a ride from cache. Returns nil on a miss.
func (s *CacheStore) GetRide(ctx context.Context, rideID string) (*domain.Ride, error) {
	data, err := s.client.Get(ctx, rideCachePrefix+rideID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var ride domain.Ride
	if err := json.Unmarshal(data, &ride); err != nil {
		return nil, err
	}
	return &ride, nil
}

// SetRide stores a ride in cache.
func (s *CacheStore) SetRide(ctx context.Context, ride *domain.Ride) error {
	data, err := json.Marshal(ride)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, rideCachePrefix+ride.ID, data, s.rideTTL).Err()
}

// InvalidateRide removes a ride from cache.
func (s *CacheStore) InvalidateRide(ctx context.Context, rideID string) error {
	return s.client.Del(ctx, rideCachePrefix+rideID).Err()
}

// GetAddress returns a cached reverse-geocoding result for a cell key.
func (s *CacheStore) GetAddress(ctx context.Context, cell string) (string, bool, error) {
	address, err := s.client.Get(ctx, addressCachePrefix+cell).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, err
	}
	return address, true, nil
}

// SetAddress caches a reverse-geocoding result for a cell key.
func (s *CacheStore) SetAddress(ctx context.Context, cell, address string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = AddressCacheTTL
	}
	return s.client.Set(ctx, addressCachePrefix+cell, address, ttl).Err()
}
