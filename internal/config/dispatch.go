package config

import (
	"fmt"
	"time"
)

type DispatchConfig struct {
	// Backend is "redis" for multi-node fan-out or "local" for a single process.
	Backend             string        `yaml:"backend"`
	PublishTimeout      time.Duration `yaml:"publish_timeout"`
	SubscriberBuffer    int           `yaml:"subscriber_buffer"`
	PendingTTL          time.Duration `yaml:"pending_ttl"`
	ExpirySweepInterval time.Duration `yaml:"expiry_sweep_interval"`
	PendingLimit        int           `yaml:"pending_limit"`
}

func loadDispatchConfig() *DispatchConfig {
	return &DispatchConfig{
		Backend:             getEnv("DISPATCH_BACKEND", "redis"),
		PublishTimeout:      getEnvAsDuration("DISPATCH_PUBLISH_TIMEOUT", 2*time.Second),
		SubscriberBuffer:    getEnvAsInt("DISPATCH_SUBSCRIBER_BUFFER", 256),
		PendingTTL:          getEnvAsDuration("RIDE_PENDING_TTL", 15*time.Minute),
		ExpirySweepInterval: getEnvAsDuration("RIDE_EXPIRY_SWEEP_INTERVAL", time.Minute),
		PendingLimit:        getEnvAsInt("RIDE_PENDING_LIMIT", 50),
	}
}

func (d *DispatchConfig) validate() []string {
	var problems []string
	if d.Backend != "redis" && d.Backend != "local" {
		problems = append(problems, fmt.Sprintf("dispatch.backend %q must be redis or local", d.Backend))
	}
	if d.PendingTTL < 0 {
		problems = append(problems, "dispatch.pending_ttl must not be negative")
	}
	if d.PendingTTL > 0 && d.ExpirySweepInterval <= 0 {
		problems = append(problems, "dispatch.expiry_sweep_interval must be positive when pending_ttl is set")
	}
	return problems
}
