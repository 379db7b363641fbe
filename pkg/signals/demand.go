package signals

import (
	"context"
	"time"
)

const (
	DemandNormal   = "normal"
	DemandElevated = "elevated"
	DemandHigh     = "high"
	DemandVeryHigh = "very_high"
)

type DemandSnapshot struct {
	Requesters int64   `json:"requesters"`
	Capacity   int64   `json:"capacity"`
	Ratio      float64 `json:"ratio"`
}

// ClassifyDemand maps active requesters against available capacity. Zero
// capacity is treated as one so the ratio stays finite.
func ClassifyDemand(requesters, capacity int64) Reading {
	if capacity <= 0 {
		capacity = 1
	}
	if requesters < 0 {
		requesters = 0
	}
	ratio := float64(requesters) / float64(capacity)
	snap := DemandSnapshot{Requesters: requesters, Capacity: capacity, Ratio: ratio}

	switch {
	case ratio > 5:
		return Reading{Label: DemandVeryHigh, Multiplier: 1.5, Raw: snap}
	case ratio > 3:
		return Reading{Label: DemandHigh, Multiplier: 1.3, Raw: snap}
	case ratio > 1.5:
		return Reading{Label: DemandElevated, Multiplier: 1.15, Raw: snap}
	default:
		return Reading{Label: DemandNormal, Multiplier: 1.0, Raw: snap}
	}
}

// DemandSource counts recent requesters and online capacity around a point.
type DemandSource interface {
	DemandSupply(ctx context.Context, lat, lng float64, since time.Time) (requesters, capacity int64, err error)
}

type DemandProvider struct {
	source DemandSource
	window time.Duration
}

func NewDemandProvider(source DemandSource, window time.Duration) *DemandProvider {
	return &DemandProvider{source: source, window: window}
}

func (p *DemandProvider) Name() string { return NameDemand }

func (p *DemandProvider) Estimate(ctx context.Context, lat, lng float64, at time.Time) (Reading, error) {
	requesters, capacity, err := p.source.DemandSupply(ctx, lat, lng, at.Add(-p.window))
	if err != nil {
		return Reading{}, err
	}
	return ClassifyDemand(requesters, capacity), nil
}
