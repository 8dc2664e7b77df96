// Package geocode resolves coordinates to human-readable addresses.
package geocode

import (
	"context"
	"errors"
	"fmt"

	"googlemaps.github.io/maps"
)

// ErrNoResults is returned when the provider has no address for a point.
var ErrNoResults = errors.New("geocode: no results")

// GoogleGeocoder reverse-geocodes through the Google Maps Geocoding API.
type GoogleGeocoder struct {
	client   *maps.Client
	language string
}

// NewGoogleGeocoder creates a GoogleGeocoder with the given API key.
func NewGoogleGeocoder(apiKey, language string) (*GoogleGeocoder, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &GoogleGeocoder{client: client, language: language}, nil
}

// ReverseGeocode returns the formatted address of the best match.
func (g *GoogleGeocoder) ReverseGeocode(ctx context.Context, lat, lng float64) (string, error) {
	r := &maps.GeocodingRequest{
		LatLng:   &maps.LatLng{Lat: lat, Lng: lng},
		Language: g.language,
	}

	results, err := g.client.ReverseGeocode(ctx, r)
	if err != nil {
		return "", fmt.Errorf("maps api error: %w", err)
	}
	for _, res := range results {
		if res.FormattedAddress != "" {
			return res.FormattedAddress, nil
		}
	}
	return "", ErrNoResults
}
