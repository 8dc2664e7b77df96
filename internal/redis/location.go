package redis

import (
	"context"

	"github.com/redis/go-redis/v9"
)

const driverPositionsKey = "dispatch:driver_positions"

// maxNearbyResults caps GEO radius replies.
const maxNearbyResults = 50

// DriverPosition is a driver's last known point in the GEO index.
type DriverPosition struct {
	DriverID   string
	Lat        float64
	Lng        float64
	DistanceKm float64
}

// LocationStore keeps a GEO index of driver positions in Redis. It serves
// proximity lookups only; dispatch always reads positions from the database.
type LocationStore struct {
	client redis.Cmdable
}

// NewLocationStore creates a new LocationStore.
func NewLocationStore(client redis.Cmdable) *LocationStore {
	return &LocationStore{client: client}
}

// UpdateLocation stores a driver's position using GEOADD.
func (s *LocationStore) UpdateLocation(ctx context.Context, driverID string, lat, lng float64) error {
	return s.client.GeoAdd(ctx, driverPositionsKey, &redis.GeoLocation{
		Name:      driverID,
		Longitude: lng,
		Latitude:  lat,
	}).Err()
}

// FindNearbyDrivers returns drivers within radiusKm of the point, nearest first.
func (s *LocationStore) FindNearbyDrivers(ctx context.Context, lat, lng, radiusKm float64) ([]DriverPosition, error) {
	results, err := s.client.GeoRadius(ctx, driverPositionsKey, lng, lat, &redis.GeoRadiusQuery{
		Radius:    radiusKm,
		Unit:      "km",
		WithCoord: true,
		WithDist:  true,
		Count:     maxNearbyResults,
		Sort:      "ASC",
	}).Result()
	if err != nil {
		return nil, err
	}

	positions := make([]DriverPosition, 0, len(results))
	for _, r := range results {
		positions = append(positions, DriverPosition{
			DriverID:   r.Name,
			Lat:        r.Latitude,
			Lng:        r.Longitude,
			DistanceKm: r.Dist,
		})
	}
	return positions, nil
}

// RemoveLocation removes a driver from the GEO index.
func (s *LocationStore) RemoveLocation(ctx context.Context, driverID string) error {
	return s.client.ZRem(ctx, driverPositionsKey, driverID).Err()
}
