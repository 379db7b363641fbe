package config

import "time"

type SignalsConfig struct {
	Weather *WeatherConfig `yaml:"weather"`
	Traffic *TrafficConfig `yaml:"traffic"`
	Demand  *DemandConfig  `yaml:"demand"`
}

type WeatherConfig struct {
	// Provider is "openweather" or "static".
	Provider string        `yaml:"provider"`
	APIKey   string        `yaml:"api_key"`
	BaseURL  string        `yaml:"base_url"`
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

type TrafficConfig struct {
	ProbeDistanceKM float64 `yaml:"probe_distance_km"`
	ProbeBearing    float64 `yaml:"probe_bearing"`
}

type DemandConfig struct {
	Window time.Duration `yaml:"window"`
}

func loadSignalsConfig() *SignalsConfig {
	return &SignalsConfig{
		Weather: &WeatherConfig{
			Provider: getEnv("WEATHER_PROVIDER", "openweather"),
			APIKey:   getEnv("OPENWEATHER_API_KEY", ""),
			BaseURL:  getEnv("OPENWEATHER_BASE_URL", "https://api.openweathermap.org/data/2.5/weather"),
			CacheTTL: getEnvAsDuration("WEATHER_CACHE_TTL", 10*time.Minute),
		},
		Traffic: &TrafficConfig{
			ProbeDistanceKM: getEnvAsFloat64("TRAFFIC_PROBE_DISTANCE_KM", 2),
			ProbeBearing:    getEnvAsFloat64("TRAFFIC_PROBE_BEARING", 45),
		},
		Demand: &DemandConfig{
			Window: getEnvAsDuration("DEMAND_WINDOW", time.Hour),
		},
	}
}
