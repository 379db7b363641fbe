package maps

import (
	"context"
	"errors"
	"time"
)

var ErrNoRoute = errors.New("no route between points")

// Provider is the subset of a maps backend the ride core relies on.
type Provider interface {
	ReverseGeocode(ctx context.Context, lat, lng float64) (*GeocodeResponse, error)
	EstimateRoute(ctx context.Context, origin, destination Location, departure time.Time) (*RouteEstimate, error)
}

type GeocodeResponse struct {
	Results []GeocodeResult `json:"results"`
}

type GeocodeResult struct {
	PlaceID     string   `json:"place_id"`
	Address     string   `json:"formatted_address"`
	Coordinates Location `json:"geometry"`
	Types       []string `json:"types"`
}

type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// RouteEstimate is a single origin/destination pair from the distance
// matrix. DurationInTraffic is zero when the backend has no live data.
type RouteEstimate struct {
	DistanceMeters    int           `json:"distance_meters"`
	Duration          time.Duration `json:"duration"`
	DurationInTraffic time.Duration `json:"duration_in_traffic"`
}

// CongestionRatio compares the live travel time to the free-flow time.
// It returns 1 when either value is missing.
func (r *RouteEstimate) CongestionRatio() float64 {
	if r == nil || r.Duration <= 0 || r.DurationInTraffic <= 0 {
		return 1
	}
	return float64(r.DurationInTraffic) / float64(r.Duration)
}

// FirstAddress returns the first formatted address, or empty.
func (g *GeocodeResponse) FirstAddress() string {
	if g == nil || len(g.Results) == 0 {
		return ""
	}
	return g.Results[0].Address
}
