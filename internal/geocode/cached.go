package geocode

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/mmcloughlin/geohash"
)

// cellPrecision is the geohash length used as the cache key. Seven characters
// is a cell of roughly 150m, small enough that one street address fits it.
const cellPrecision = 7

// Geocoder resolves a coordinate to an address.
type Geocoder interface {
	ReverseGeocode(ctx context.Context, lat, lng float64) (string, error)
}

// AddressCache stores addresses by geohash cell.
type AddressCache interface {
	GetAddress(ctx context.Context, cell string) (string, bool, error)
	SetAddress(ctx context.Context, cell, address string, ttl time.Duration) error
}

// CachedGeocoder serves repeat lookups for the same cell from a cache. Cache
// failures fall through to the wrapped geocoder.
type CachedGeocoder struct {
	next   Geocoder
	cache  AddressCache
	ttl    time.Duration
	logger *slog.Logger
}

// NewCachedGeocoder wraps next with a cache.
func NewCachedGeocoder(next Geocoder, cache AddressCache, ttl time.Duration, logger *slog.Logger) *CachedGeocoder {
	return &CachedGeocoder{next: next, cache: cache, ttl: ttl, logger: logger}
}

// ReverseGeocode returns the cached address for the point's cell, asking the
// wrapped geocoder on a miss.
func (g *CachedGeocoder) ReverseGeocode(ctx context.Context, lat, lng float64) (string, error) {
	cell := CellKey(lat, lng)

	if address, ok, err := g.cache.GetAddress(ctx, cell); err != nil {
		g.logger.Warn("address cache read failed", "cell", cell, "error", err)
	} else if ok {
		return address, nil
	}

	address, err := g.next.ReverseGeocode(ctx, lat, lng)
	if err != nil {
		return "", err
	}

	if err := g.cache.SetAddress(ctx, cell, address, g.ttl); err != nil {
		g.logger.Warn("address cache write failed", "cell", cell, "error", err)
	}
	return address, nil
}

// CellKey returns the geohash cell used to key cached addresses.
func CellKey(lat, lng float64) string {
	return geohash.EncodeWithPrecision(lat, lng, cellPrecision)
}

// CoordinateGeocoder formats the coordinate itself as the address. It is used
// in local setups without a maps API key.
type CoordinateGeocoder struct{}

// ReverseGeocode returns "lat, lng" with six decimals.
func (CoordinateGeocoder) ReverseGeocode(_ context.Context, lat, lng float64) (string, error) {
	return fmt.Sprintf("%s, %s",
		strconv.FormatFloat(lat, 'f', 6, 64),
		strconv.FormatFloat(lng, 'f', 6, 64),
	), nil
}
