package config

import "time"

type EventsConfig struct {
	Kafka *KafkaConfig `yaml:"kafka"`
}

type KafkaConfig struct {
	Brokers      []string      `yaml:"brokers"`
	PaymentTopic string        `yaml:"payment_topic"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

func (k *KafkaConfig) Enabled() bool {
	return k != nil && len(k.Brokers) > 0
}

func loadEventsConfig() *EventsConfig {
	return &EventsConfig{
		Kafka: &KafkaConfig{
			Brokers:      getEnvAsSlice("KAFKA_BROKERS", nil),
			PaymentTopic: getEnv("KAFKA_PAYMENT_TOPIC", "ride.payment_ready"),
			WriteTimeout: getEnvAsDuration("KAFKA_WRITE_TIMEOUT", 2*time.Second),
		},
	}
}
