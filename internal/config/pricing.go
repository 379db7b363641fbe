package config

import (
	"fmt"
	"time"
)

type PricingConfig struct {
	Policy          string             `yaml:"policy"`
	RatesPerKM      map[string]float64 `yaml:"rates_per_km"`
	FallbackBase    float64            `yaml:"fallback_base_fare"`
	FallbackPerKM   float64            `yaml:"fallback_per_km"`
	MinSurge        float64            `yaml:"min_surge"`
	MaxSurge        float64            `yaml:"max_surge"`
	ZoneCellSizeDeg float64            `yaml:"zone_cell_size_deg"`
	ZoneWindow      time.Duration      `yaml:"zone_window"`
	QuoteRetention  time.Duration      `yaml:"quote_retention"`
	SignalTimeout   time.Duration      `yaml:"signal_timeout"`
	ProviderTimeout time.Duration      `yaml:"provider_timeout"`
}

func loadPricingConfig() *PricingConfig {
	return &PricingConfig{
		Policy: getEnv("PRICING_POLICY", "upfront"),
		RatesPerKM: map[string]float64{
			"bike":   getEnvAsFloat64("PRICING_RATE_BIKE", 8),
			"auto":   getEnvAsFloat64("PRICING_RATE_AUTO", 12),
			"parcel": getEnvAsFloat64("PRICING_RATE_PARCEL", 10),
			"car":    getEnvAsFloat64("PRICING_RATE_CAR", 15),
			"suv":    getEnvAsFloat64("PRICING_RATE_SUV", 20),
		},
		FallbackBase:    getEnvAsFloat64("PRICING_FALLBACK_BASE_FARE", 30),
		FallbackPerKM:   getEnvAsFloat64("PRICING_FALLBACK_PER_KM", 12),
		MinSurge:        getEnvAsFloat64("PRICING_MIN_SURGE", 1.0),
		MaxSurge:        getEnvAsFloat64("PRICING_MAX_SURGE", 2.5),
		ZoneCellSizeDeg: getEnvAsFloat64("ZONE_CELL_SIZE_DEG", 0.01),
		ZoneWindow:      getEnvAsDuration("PRICING_ZONE_WINDOW", time.Hour),
		QuoteRetention:  getEnvAsDuration("PRICING_QUOTE_RETENTION", 6*time.Hour),
		SignalTimeout:   getEnvAsDuration("PRICING_SIGNAL_TIMEOUT", 2*time.Second),
		ProviderTimeout: getEnvAsDuration("PRICING_PROVIDER_TIMEOUT", 1500*time.Millisecond),
	}
}

func (p *PricingConfig) validate() []string {
	var problems []string
	if p.Policy != "upfront" && p.Policy != "surge" {
		problems = append(problems, fmt.Sprintf("pricing.policy %q must be upfront or surge", p.Policy))
	}
	if p.MinSurge <= 0 || p.MaxSurge < p.MinSurge {
		problems = append(problems, fmt.Sprintf("pricing surge bounds [%v, %v] are invalid", p.MinSurge, p.MaxSurge))
	}
	if p.ZoneCellSizeDeg <= 0 {
		problems = append(problems, "pricing.zone_cell_size_deg must be positive")
	}
	if p.FallbackBase < 0 || p.FallbackPerKM <= 0 {
		problems = append(problems, "pricing fallback fare must be non-negative with a positive per-km increment")
	}
	for vehicle, rate := range p.RatesPerKM {
		if rate <= 0 {
			problems = append(problems, fmt.Sprintf("pricing rate for %s must be positive", vehicle))
		}
	}
	return problems
}
