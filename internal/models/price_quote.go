package models

import (
	"time"

	"ridematch/internal/utils"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type PricingPolicy string

const (
	// PricingPolicyUpfront pins the combined multiplier to 1.0 so the quoted
	// fare is exactly what is charged. Factors are still recorded.
	PricingPolicyUpfront PricingPolicy = "upfront"
	PricingPolicySurge   PricingPolicy = "surge"
)

func (p PricingPolicy) IsValid() bool {
	return p == PricingPolicyUpfront || p == PricingPolicySurge
}

type RateSource string

const (
	RateSourceExplicit RateSource = "explicit"
	RateSourceTable    RateSource = "table"
	RateSourceFallback RateSource = "fallback"
)

// FactorLabel is the condition reported by a pricing signal.
type FactorLabel string

const (
	LabelFallback FactorLabel = "fallback"

	WeatherClear        FactorLabel = "clear"
	WeatherCloudy       FactorLabel = "cloudy"
	WeatherRain         FactorLabel = "rain"
	WeatherThunderstorm FactorLabel = "thunderstorm"
	WeatherSnow         FactorLabel = "snow"
	WeatherExtreme      FactorLabel = "extreme"

	TrafficLight    FactorLabel = "light"
	TrafficModerate FactorLabel = "moderate"
	TrafficHeavy    FactorLabel = "heavy"
	TrafficSevere   FactorLabel = "severe"

	DemandNormal   FactorLabel = "normal"
	DemandElevated FactorLabel = "elevated"
	DemandHigh     FactorLabel = "high"
	DemandVeryHigh FactorLabel = "very_high"

	TimeOffPeak     FactorLabel = "off_peak"
	TimeMorningPeak FactorLabel = "morning_peak"
	TimeEveningPeak FactorLabel = "evening_peak"
	TimeLateNight   FactorLabel = "late_night"
)

type Factor struct {
	Label      FactorLabel `json:"label" bson:"label"`
	Multiplier float64     `json:"multiplier" bson:"multiplier"`
}

type PricingFactors struct {
	Weather Factor `json:"weather" bson:"weather"`
	Traffic Factor `json:"traffic" bson:"traffic"`
	Demand  Factor `json:"demand" bson:"demand"`
	Time    Factor `json:"time" bson:"time"`
}

func FallbackFactors() PricingFactors {
	f := Factor{Label: LabelFallback, Multiplier: 1.0}
	return PricingFactors{Weather: f, Traffic: f, Demand: f, Time: f}
}

// Product multiplies the four signal multipliers.
func (f PricingFactors) Product() float64 {
	return f.Weather.Multiplier * f.Traffic.Multiplier * f.Demand.Multiplier * f.Time.Multiplier
}

// PriceQuote is an immutable pricing snapshot kept for zone analytics.
type PriceQuote struct {
	ID                 primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	ZoneID             string             `json:"zone_id" bson:"zone_id"`
	ZoneBounds         utils.Bounds       `json:"zone_bounds" bson:"zone_bounds"`
	ZoneCenter         utils.Point        `json:"zone_center" bson:"zone_center"`
	VehicleType        VehicleType        `json:"vehicle_type" bson:"vehicle_type"`
	DistanceKM         float64            `json:"distance_km" bson:"distance_km"`
	RatePerKM          float64            `json:"rate_per_km" bson:"rate_per_km"`
	RateSource         RateSource         `json:"rate_source" bson:"rate_source"`
	BasePrice          float64            `json:"base_price" bson:"base_price"`
	Factors            PricingFactors     `json:"factors" bson:"factors"`
	ZoneAdjustment     float64            `json:"zone_adjustment" bson:"zone_adjustment"`
	SignalMultiplier   float64            `json:"signal_multiplier" bson:"signal_multiplier"`
	CombinedMultiplier float64            `json:"combined_multiplier" bson:"combined_multiplier"`
	FinalFare          float64            `json:"final_fare" bson:"final_fare"`
	Currency           string             `json:"currency" bson:"currency"`
	Policy             PricingPolicy      `json:"policy" bson:"policy"`
	Fallback           bool               `json:"fallback" bson:"fallback"`
	CreatedAt          time.Time          `json:"created_at" bson:"created_at"`
}
