// Package config builds the process configuration from the environment so
// main stays lean.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Backend selects the persistence implementation.
type Backend string

const (
	BackendMemory   Backend = "memory"
	BackendPostgres Backend = "postgres"
)

// Server is the full process configuration.
type Server struct {
	Addr          string
	JWTSigningKey string

	Storage     Backend
	PostgresDSN string

	Redis Redis
	Kafka Kafka

	// SweepInterval is how often the offer-deadline sweep runs. Zero disables
	// the in-process scheduler; an external one can drive the expire endpoint.
	SweepInterval time.Duration

	// SeedUnits pre-populates the in-memory unit pool, for development and
	// demo deployments without an inventory integration.
	SeedUnits int
}

// Redis configures the shared deadline index. Empty URL disables Redis and
// falls back to the in-memory index.
type Redis struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Kafka configures notification publishing. No brokers means notifications
// go to the log only.
type Kafka struct {
	Brokers []string
	Topic   string
}

// FromEnv reads HABITA_* variables with development defaults.
func FromEnv() Server {
	cfg := Server{
		Addr:          envOr("HABITA_ADDR", ":8080"),
		JWTSigningKey: envOr("HABITA_JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		Storage:       Backend(envOr("HABITA_STORAGE", string(BackendMemory))),
		PostgresDSN:   os.Getenv("HABITA_POSTGRES_DSN"),
		Redis: Redis{
			URL:          os.Getenv("HABITA_REDIS_URL"),
			PoolSize:     envIntOr("HABITA_REDIS_POOL_SIZE", 10),
			MinIdleConns: envIntOr("HABITA_REDIS_MIN_IDLE", 2),
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Kafka: Kafka{
			Topic: envOr("HABITA_KAFKA_TOPIC", "habita.application.events"),
		},
		SweepInterval: envDurationOr("HABITA_SWEEP_INTERVAL", time.Minute),
		SeedUnits:     envIntOr("HABITA_SEED_UNITS", 0),
	}
	if brokers := os.Getenv("HABITA_KAFKA_BROKERS"); brokers != "" {
		for _, broker := range strings.Split(brokers, ",") {
			if broker = strings.TrimSpace(broker); broker != "" {
				cfg.Kafka.Brokers = append(cfg.Kafka.Brokers, broker)
			}
		}
	}
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
