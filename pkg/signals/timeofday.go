package signals

import (
	"context"
	"time"
)

const (
	TimeMorningPeak = "morning_peak"
	TimeEveningPeak = "evening_peak"
	TimeLateNight   = "late_night"
	TimeOffPeak     = "off_peak"
)

// ClassifyTime reads the wall clock of t in its own location.
func ClassifyTime(t time.Time) Reading {
	hour := t.Hour()
	weekend := t.Weekday() == time.Saturday || t.Weekday() == time.Sunday

	switch {
	case hour >= 23 || hour < 5:
		return Reading{Label: TimeLateNight, Multiplier: 1.3}
	case !weekend && hour >= 7 && hour < 10:
		return Reading{Label: TimeMorningPeak, Multiplier: 1.2}
	case hour >= 17 && hour < 21:
		if weekend {
			return Reading{Label: TimeEveningPeak, Multiplier: 1.1}
		}
		return Reading{Label: TimeEveningPeak, Multiplier: 1.25}
	default:
		return Reading{Label: TimeOffPeak, Multiplier: 1.0}
	}
}

type TimeOfDayProvider struct {
	location *time.Location
}

func NewTimeOfDayProvider(location *time.Location) *TimeOfDayProvider {
	if location == nil {
		location = time.UTC
	}
	return &TimeOfDayProvider{location: location}
}

func (p *TimeOfDayProvider) Name() string { return NameTime }

func (p *TimeOfDayProvider) Estimate(ctx context.Context, lat, lng float64, at time.Time) (Reading, error) {
	return ClassifyTime(at.In(p.location)), nil
}
