package maps

import (
	"context"
	"fmt"

	"googlemaps.github.io/maps"
)

// LatLng is a coordinate pair.
type LatLng struct {
	Lat float64
	Lng float64
}

// RouteResult is the distance and duration between two points.
// Estimated is true when the result came from the great-circle fallback
// rather than the provider.
type RouteResult struct {
	DistanceMeters  float64 `json:"distance_meters"`
	DurationSeconds float64 `json:"duration_seconds"`
	Estimated       bool    `json:"estimated"`
}

// GeocodeResult is a resolved address.
type GeocodeResult struct {
	Lat               float64 `json:"lat"`
	Lng               float64 `json:"lng"`
	NormalizedAddress string  `json:"normalized_address"`
}

// Suggestion is one autocomplete candidate.
type Suggestion struct {
	Description string `json:"description"`
	PlaceID     string `json:"place_id"`
}

// Provider is the external routing/geocoding backend. The concrete
// implementation talks to Google Maps; tests substitute a fake.
type Provider interface {
	Directions(ctx context.Context, origin, destination LatLng) (RouteResult, error)
	Geocode(ctx context.Context, address string) (GeocodeResult, error)
	Autocomplete(ctx context.Context, prefix string) ([]Suggestion, error)
}

// GoogleProvider implements Provider against the Google Maps API.
type GoogleProvider struct {
	client *maps.Client
}

// NewGoogleProvider creates a provider with the given API key.
func NewGoogleProvider(apiKey string) (*GoogleProvider, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &GoogleProvider{client: client}, nil
}

// Directions queries driving directions and returns the first leg's
// distance and duration.
func (p *GoogleProvider) Directions(ctx context.Context, origin, destination LatLng) (RouteResult, error) {
	req := &maps.DirectionsRequest{
		Origin:      fmt.Sprintf("%f,%f", origin.Lat, origin.Lng),
		Destination: fmt.Sprintf("%f,%f", destination.Lat, destination.Lng),
		Mode:        maps.TravelModeDriving,
	}

	routes, _, err := p.client.Directions(ctx, req)
	if err != nil {
		return RouteResult{}, fmt.Errorf("directions request failed: %w", err)
	}
	if len(routes) == 0 || len(routes[0].Legs) == 0 {
		return RouteResult{}, fmt.Errorf("no route found")
	}

	leg := routes[0].Legs[0]
	return RouteResult{
		DistanceMeters:  float64(leg.Distance.Meters),
		DurationSeconds: leg.Duration.Seconds(),
	}, nil
}

// Geocode resolves an address to coordinates.
func (p *GoogleProvider) Geocode(ctx context.Context, address string) (GeocodeResult, error) {
	results, err := p.client.Geocode(ctx, &maps.GeocodingRequest{Address: address})
	if err != nil {
		return GeocodeResult{}, fmt.Errorf("geocoding failed: %w", err)
	}
	if len(results) == 0 {
		return GeocodeResult{}, fmt.Errorf("no geocode result")
	}

	r := results[0]
	return GeocodeResult{
		Lat:               r.Geometry.Location.Lat,
		Lng:               r.Geometry.Location.Lng,
		NormalizedAddress: r.FormattedAddress,
	}, nil
}

// Autocomplete returns place suggestions for a text prefix.
func (p *GoogleProvider) Autocomplete(ctx context.Context, prefix string) ([]Suggestion, error) {
	resp, err := p.client.PlaceAutocomplete(ctx, &maps.PlaceAutocompleteRequest{Input: prefix})
	if err != nil {
		return nil, fmt.Errorf("autocomplete failed: %w", err)
	}

	suggestions := make([]Suggestion, 0, len(resp.Predictions))
	for _, pred := range resp.Predictions {
		suggestions = append(suggestions, Suggestion{
			Description: pred.Description,
			PlaceID:     pred.PlaceID,
		})
	}
	return suggestions, nil
}
