package maps

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"googlemaps.github.io/maps"
)

type GoogleMapsConfig struct {
	APIKey         string
	RequestTimeout time.Duration
	RateLimit      int
}

type GoogleMapsProvider struct {
	client *maps.Client
}

func NewGoogleMapsProvider(config GoogleMapsConfig) (*GoogleMapsProvider, error) {
	opts := []maps.ClientOption{maps.WithAPIKey(config.APIKey)}
	if config.RequestTimeout > 0 {
		opts = append(opts, maps.WithHTTPClient(&http.Client{Timeout: config.RequestTimeout}))
	}
	if config.RateLimit > 0 {
		opts = append(opts, maps.WithRateLimit(config.RateLimit))
	}

	client, err := maps.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Google Maps client: %w", err)
	}

	return &GoogleMapsProvider{
		client: client,
	}, nil
}

func (g *GoogleMapsProvider) ReverseGeocode(ctx context.Context, lat, lng float64) (*GeocodeResponse, error) {
	req := &maps.GeocodingRequest{
		LatLng: &maps.LatLng{Lat: lat, Lng: lng},
	}

	resp, err := g.client.ReverseGeocode(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("reverse geocoding failed: %w", err)
	}

	results := make([]GeocodeResult, len(resp))
	for i, result := range resp {
		results[i] = GeocodeResult{
			PlaceID: result.PlaceID,
			Address: result.FormattedAddress,
			Coordinates: Location{
				Latitude:  result.Geometry.Location.Lat,
				Longitude: result.Geometry.Location.Lng,
			},
			Types: result.Types,
		}
	}

	return &GeocodeResponse{Results: results}, nil
}

// EstimateRoute asks the distance matrix for a driving estimate. A zero
// departure time means "now", which is what enables traffic durations.
func (g *GoogleMapsProvider) EstimateRoute(ctx context.Context, origin, destination Location, departure time.Time) (*RouteEstimate, error) {
	departureTime := "now"
	if !departure.IsZero() && departure.After(time.Now()) {
		departureTime = fmt.Sprintf("%d", departure.Unix())
	}

	req := &maps.DistanceMatrixRequest{
		Origins:       []string{formatLatLng(origin)},
		Destinations:  []string{formatLatLng(destination)},
		Mode:          maps.TravelModeDriving,
		Units:         maps.UnitsMetric,
		DepartureTime: departureTime,
		TrafficModel:  maps.TrafficModelBestGuess,
	}

	resp, err := g.client.DistanceMatrix(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("distance matrix request failed: %w", err)
	}

	if len(resp.Rows) == 0 || len(resp.Rows[0].Elements) == 0 {
		return nil, ErrNoRoute
	}

	element := resp.Rows[0].Elements[0]
	if element.Status != "OK" {
		return nil, fmt.Errorf("%w: %s", ErrNoRoute, element.Status)
	}

	return &RouteEstimate{
		DistanceMeters:    element.Distance.Meters,
		Duration:          element.Duration,
		DurationInTraffic: element.DurationInTraffic,
	}, nil
}

func formatLatLng(l Location) string {
	return fmt.Sprintf("%f,%f", l.Latitude, l.Longitude)
}
