package signals

import (
	"context"
	"time"

	"ridematch/internal/utils"
	"ridematch/pkg/maps"
)

const (
	TrafficLight    = "light"
	TrafficModerate = "moderate"
	TrafficHeavy    = "heavy"
	TrafficSevere   = "severe"
)

// ClassifyTraffic maps a congestion ratio (live duration over free-flow
// duration) to a reading.
func ClassifyTraffic(ratio float64) Reading {
	switch {
	case ratio < 1.15:
		return Reading{Label: TrafficLight, Multiplier: 1.0, Raw: ratio}
	case ratio < 1.4:
		return Reading{Label: TrafficModerate, Multiplier: 1.1, Raw: ratio}
	case ratio < 1.75:
		return Reading{Label: TrafficHeavy, Multiplier: 1.25, Raw: ratio}
	default:
		return Reading{Label: TrafficSevere, Multiplier: 1.4, Raw: ratio}
	}
}

type RouteEstimator interface {
	EstimateRoute(ctx context.Context, origin, destination maps.Location, departure time.Time) (*maps.RouteEstimate, error)
}

// TrafficProvider probes a short drive from the coordinate and compares the
// in-traffic duration to the free-flow one.
type TrafficProvider struct {
	routes          RouteEstimator
	probeDistanceKM float64
	probeBearing    float64
}

func NewTrafficProvider(routes RouteEstimator, probeDistanceKM, probeBearing float64) *TrafficProvider {
	return &TrafficProvider{
		routes:          routes,
		probeDistanceKM: probeDistanceKM,
		probeBearing:    probeBearing,
	}
}

func (p *TrafficProvider) Name() string { return NameTraffic }

func (p *TrafficProvider) Estimate(ctx context.Context, lat, lng float64, at time.Time) (Reading, error) {
	probe := utils.DestinationPoint(lat, lng, p.probeBearing, p.probeDistanceKM)

	estimate, err := p.routes.EstimateRoute(ctx,
		maps.Location{Latitude: lat, Longitude: lng},
		maps.Location{Latitude: probe.Lat, Longitude: probe.Lng},
		time.Time{},
	)
	if err != nil {
		return Reading{}, err
	}

	return ClassifyTraffic(estimate.CongestionRatio()), nil
}
