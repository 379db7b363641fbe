// Package signals estimates the live conditions that feed ride pricing.
// Every provider answers with a label and a multiplier for one coordinate.
package signals

import (
	"context"
	"time"
)

const (
	NameWeather = "weather"
	NameTraffic = "traffic"
	NameDemand  = "demand"
	NameTime    = "time"
)

// Reading is a provider's answer. Raw carries the source data for display.
type Reading struct {
	Label      string      `json:"label"`
	Multiplier float64     `json:"multiplier"`
	Raw        interface{} `json:"raw,omitempty"`
}

type Provider interface {
	Name() string
	Estimate(ctx context.Context, lat, lng float64, at time.Time) (Reading, error)
}

// Neutral readings returned when a source is unavailable.
var (
	NeutralWeather = Reading{Label: WeatherClear, Multiplier: 1.0}
	NeutralTraffic = Reading{Label: TrafficLight, Multiplier: 1.0}
	NeutralDemand  = Reading{Label: DemandNormal, Multiplier: 1.0}
	NeutralTime    = Reading{Label: TimeOffPeak, Multiplier: 1.0}
)

func NeutralFor(name string) Reading {
	switch name {
	case NameWeather:
		return NeutralWeather
	case NameTraffic:
		return NeutralTraffic
	case NameDemand:
		return NeutralDemand
	case NameTime:
		return NeutralTime
	}
	return Reading{Label: "unknown", Multiplier: 1.0}
}

// Static always returns the same reading. It backs synthetic sources and
// stands in for providers whose credentials are not configured.
type Static struct {
	name    string
	reading Reading
	err     error
}

func NewStatic(name string, reading Reading) *Static {
	return &Static{name: name, reading: reading}
}

// NewFailing returns a provider that always errors.
func NewFailing(name string, err error) *Static {
	return &Static{name: name, err: err}
}

func (s *Static) Name() string { return s.name }

func (s *Static) Estimate(ctx context.Context, lat, lng float64, at time.Time) (Reading, error) {
	if s.err != nil {
		return Reading{}, s.err
	}
	return s.reading, nil
}
