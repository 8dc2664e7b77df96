package app

import (
	"fmt"
	"log/slog"

	"rideengine/internal/config"
	"rideengine/internal/geocode"
)

// NewGeocoder builds the reverse geocoder named by the config, wrapped in the
// Redis address cache when one is given.
func NewGeocoder(cfg config.GeocoderConfig, cache geocode.AddressCache, logger *slog.Logger) (geocode.Geocoder, error) {
	var base geocode.Geocoder
	switch cfg.Provider {
	case "google":
		g, err := geocode.NewGoogleGeocoder(cfg.APIKey, cfg.Language)
		if err != nil {
			return nil, fmt.Errorf("google geocoder: %w", err)
		}
		base = g
	case "coordinates", "":
		base = geocode.CoordinateGeocoder{}
	default:
		return nil, fmt.Errorf("unknown geocoder provider %q", cfg.Provider)
	}

	if cache == nil {
		return base, nil
	}
	return geocode.NewCachedGeocoder(base, cache, cfg.CacheTTL, logger), nil
}
