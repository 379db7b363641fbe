package signals

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const (
	WeatherClear        = "clear"
	WeatherCloudy       = "cloudy"
	WeatherRain         = "rain"
	WeatherThunderstorm = "thunderstorm"
	WeatherSnow         = "snow"
	WeatherExtreme      = "extreme"
)

var weatherMultipliers = map[string]float64{
	WeatherClear:        1.0,
	WeatherCloudy:       1.0,
	WeatherRain:         1.2,
	WeatherThunderstorm: 1.4,
	WeatherSnow:         1.3,
	WeatherExtreme:      1.5,
}

const (
	extremeHeatC         = 40.0
	extremeColdC         = 0.0
	temperatureSurcharge = 0.1
)

// Cache is satisfied by cache.RedisCache.
type Cache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
}

type WeatherObservation struct {
	ConditionCode int     `json:"condition_code"`
	Condition     string  `json:"condition"`
	TemperatureC  float64 `json:"temperature_c"`
}

// ClassifyWeather maps an OpenWeatherMap condition code and temperature to
// a reading. The label always comes from the condition code and prices at
// weatherMultipliers[label]; hot or freezing temperatures add a fixed
// surcharge on top without changing the label.
func ClassifyWeather(obs WeatherObservation) Reading {
	label := WeatherClear
	code := obs.ConditionCode
	switch {
	case code >= 200 && code < 300:
		label = WeatherThunderstorm
	case code >= 300 && code < 400:
		label = WeatherRain
	case code == 511:
		label = WeatherSnow
	case code >= 500 && code < 600:
		label = WeatherRain
	case code >= 600 && code < 700:
		label = WeatherSnow
	case code == 771 || code == 781:
		label = WeatherExtreme
	case code >= 700 && code < 800:
		label = WeatherCloudy
	case code == 800:
		label = WeatherClear
	case code > 800 && code < 900:
		label = WeatherCloudy
	}

	multiplier := weatherMultipliers[label]
	if obs.TemperatureC >= extremeHeatC || obs.TemperatureC <= extremeColdC {
		multiplier += temperatureSurcharge
	}

	return Reading{Label: label, Multiplier: multiplier, Raw: obs}
}

type OpenWeatherConfig struct {
	APIKey   string
	BaseURL  string
	CacheTTL time.Duration
}

// OpenWeatherProvider reads current conditions from the OpenWeatherMap
// current weather endpoint. Observations are cached per 0.01 degree cell.
type OpenWeatherProvider struct {
	config     OpenWeatherConfig
	httpClient *http.Client
	cache      Cache
}

func NewOpenWeatherProvider(config OpenWeatherConfig, httpClient *http.Client, cache Cache) *OpenWeatherProvider {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Second}
	}
	return &OpenWeatherProvider{
		config:     config,
		httpClient: httpClient,
		cache:      cache,
	}
}

func (p *OpenWeatherProvider) Name() string { return NameWeather }

func (p *OpenWeatherProvider) Estimate(ctx context.Context, lat, lng float64, at time.Time) (Reading, error) {
	key := fmt.Sprintf("signal:weather:%.2f:%.2f", lat, lng)

	var obs WeatherObservation
	if p.cache != nil {
		if err := p.cache.Get(ctx, key, &obs); err == nil {
			return ClassifyWeather(obs), nil
		}
	}

	obs, err := p.fetch(ctx, lat, lng)
	if err != nil {
		return Reading{}, err
	}

	if p.cache != nil && p.config.CacheTTL > 0 {
		// a failed write only costs a refetch
		_ = p.cache.Set(ctx, key, obs, p.config.CacheTTL)
	}

	return ClassifyWeather(obs), nil
}

type openWeatherResponse struct {
	Weather []struct {
		ID   int    `json:"id"`
		Main string `json:"main"`
	} `json:"weather"`
	Main struct {
		Temp float64 `json:"temp"`
	} `json:"main"`
}

func (p *OpenWeatherProvider) fetch(ctx context.Context, lat, lng float64) (WeatherObservation, error) {
	if p.config.APIKey == "" {
		return WeatherObservation{}, errors.New("openweather api key not configured")
	}

	q := url.Values{}
	q.Set("lat", fmt.Sprintf("%f", lat))
	q.Set("lon", fmt.Sprintf("%f", lng))
	q.Set("units", "metric")
	q.Set("appid", p.config.APIKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.config.BaseURL+"?"+q.Encode(), nil)
	if err != nil {
		return WeatherObservation{}, fmt.Errorf("failed to build weather request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return WeatherObservation{}, fmt.Errorf("weather request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return WeatherObservation{}, fmt.Errorf("weather request returned %d: %s", resp.StatusCode, body)
	}

	var payload openWeatherResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return WeatherObservation{}, fmt.Errorf("failed to decode weather response: %w", err)
	}
	if len(payload.Weather) == 0 {
		return WeatherObservation{}, errors.New("weather response has no conditions")
	}

	return WeatherObservation{
		ConditionCode: payload.Weather[0].ID,
		Condition:     payload.Weather[0].Main,
		TemperatureC:  payload.Main.Temp,
	}, nil
}
