// Package config loads service configuration from the environment with
// defaults suitable for local development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is the full service configuration.
type Config struct {
	Service  ServiceConfig
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	NATS     NATSConfig
	Clients  ClientsConfig
	Workflow WorkflowConfig
}

// ServiceConfig identifies the service in logs and events.
type ServiceConfig struct {
	Name        string
	Version     string
	Environment string
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig controls the pgx pool.
type DatabaseConfig struct {
	Host        string
	Port        int
	User        string
	Password    string
	Database    string
	SSLMode     string
	MaxConns    int32
	MinConns    int32
	MaxConnTime time.Duration
	MaxIdleTime time.Duration
}

// RedisConfig controls the draft/wizard key-value store backend.
type RedisConfig struct {
	URL string
}

// NATSConfig controls the notification publisher connection.
type NATSConfig struct {
	URL     string
	Enabled bool
}

// ClientsConfig points at the engine's external collaborators.
type ClientsConfig struct {
	EstablishmentsURL string
}

// WorkflowConfig carries the engine's business thresholds. The TTL and
// cadence values are operational policy, not invariants, so they stay
// configurable.
type WorkflowConfig struct {
	AutoSaveInterval  time.Duration // draft auto-save cadence
	DraftSettleDelay  time.Duration // wait after reconnect before the extra save
	WizardProgressTTL time.Duration // resumable wizard progress expiry
	WizardDebounce    time.Duration // debounce before persisting progress
	RoutingCacheTTL   time.Duration // directory lookup cache; 0 recomputes per decision
	ProbeTimeout      time.Duration // connectivity probe abort timeout
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{
		Service: ServiceConfig{
			Name:        getEnv("SERVICE_NAME", "be-inspections"),
			Version:     getEnv("SERVICE_VERSION", "dev"),
			Environment: getEnv("ENVIRONMENT", "development"),
		},
		Server: ServerConfig{
			Port:            getEnvInt("HTTP_PORT", 8086),
			ReadTimeout:     getEnvDuration("HTTP_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("HTTP_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvDuration("HTTP_IDLE_TIMEOUT", 60*time.Second),
			RequestTimeout:  getEnvDuration("HTTP_REQUEST_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Database: DatabaseConfig{
			Host:        getEnv("DB_HOST", "localhost"),
			Port:        getEnvInt("DB_PORT", 5432),
			User:        getEnv("DB_USER", "inspections"),
			Password:    getEnv("DB_PASSWORD", ""),
			Database:    getEnv("DB_NAME", "inspections"),
			SSLMode:     getEnv("DB_SSLMODE", "disable"),
			MaxConns:    int32(getEnvInt("DB_MAX_CONNS", 10)),
			MinConns:    int32(getEnvInt("DB_MIN_CONNS", 2)),
			MaxConnTime: getEnvDuration("DB_MAX_CONN_LIFETIME", time.Hour),
			MaxIdleTime: getEnvDuration("DB_MAX_IDLE_TIME", 30*time.Minute),
		},
		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", "redis://localhost:6379/0"),
		},
		NATS: NATSConfig{
			URL:     getEnv("NATS_URL", "nats://localhost:4222"),
			Enabled: getEnvBool("NATS_ENABLED", true),
		},
		Clients: ClientsConfig{
			EstablishmentsURL: getEnv("ESTABLISHMENTS_URL", "http://localhost:8087"),
		},
		Workflow: WorkflowConfig{
			AutoSaveInterval:  getEnvDuration("AUTO_SAVE_INTERVAL", 30*time.Second),
			DraftSettleDelay:  getEnvDuration("DRAFT_SETTLE_DELAY", 2*time.Second),
			WizardProgressTTL: getEnvDuration("WIZARD_PROGRESS_TTL", 24*time.Hour),
			WizardDebounce:    getEnvDuration("WIZARD_DEBOUNCE", time.Second),
			RoutingCacheTTL:   getEnvDuration("ROUTING_CACHE_TTL", 0),
			ProbeTimeout:      getEnvDuration("PROBE_TIMEOUT", 5*time.Second),
		},
	}

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return nil, fmt.Errorf("invalid HTTP_PORT %d", cfg.Server.Port)
	}
	if cfg.Workflow.AutoSaveInterval <= 0 {
		return nil, fmt.Errorf("AUTO_SAVE_INTERVAL must be positive")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
