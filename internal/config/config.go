package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/skoocda/async-ticket-server/internal/domain"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App    AppConfig
	Server ServerConfig
	Logger LoggerConfig
}

// AppConfig controls the hosting process.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// ServerConfig tunes the ticket server loop.
type ServerConfig struct {
	// QueueCapacity is the command channel buffer. Zero means a
	// rendezvous queue; submitters then block until the loop dequeues.
	QueueCapacity       int
	TitleMaxBytes       int
	DescriptionMaxBytes int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	limits := domain.DefaultLimits()

	queueCapacity := getEnvAsInt("TICKET_QUEUE_CAPACITY", 64)
	if queueCapacity < 0 {
		return nil, fmt.Errorf("invalid TICKET_QUEUE_CAPACITY: %d", queueCapacity)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "async-ticket-server"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Server: ServerConfig{
			QueueCapacity:       queueCapacity,
			TitleMaxBytes:       getEnvAsInt("TICKET_TITLE_MAX_BYTES", limits.TitleMaxBytes),
			DescriptionMaxBytes: getEnvAsInt("TICKET_DESCRIPTION_MAX_BYTES", limits.DescriptionMaxBytes),
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// Limits returns the ticket field bounds as domain limits.
func (s ServerConfig) Limits() domain.Limits {
	return domain.Limits{
		TitleMaxBytes:       s.TitleMaxBytes,
		DescriptionMaxBytes: s.DescriptionMaxBytes,
	}
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}
