package config

import "time"

type MapsConfig struct {
	Provider   string            `yaml:"provider"`
	GoogleMaps *GoogleMapsConfig `yaml:"google_maps"`
}

type GoogleMapsConfig struct {
	APIKey         string        `yaml:"api_key"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	// RateLimit is queries per second sent to Google.
	RateLimit int `yaml:"rate_limit"`
}

func (m *MapsConfig) Enabled() bool {
	return m.Provider == "google" && m.GoogleMaps != nil && m.GoogleMaps.APIKey != ""
}

func loadMapsConfig() *MapsConfig {
	return &MapsConfig{
		Provider: getEnv("MAPS_PROVIDER", "google"),
		GoogleMaps: &GoogleMapsConfig{
			APIKey:         getEnv("GOOGLE_MAPS_API_KEY", ""),
			RequestTimeout: getEnvAsDuration("GOOGLE_MAPS_TIMEOUT", 2*time.Second),
			RateLimit:      getEnvAsInt("GOOGLE_MAPS_RATE_LIMIT", 10),
		},
	}
}
