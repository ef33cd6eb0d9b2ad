// Package config loads and validates application configuration from environment variables.
// A .env file in the working directory, when present, is loaded first; variables
// already set in the environment take precedence over it.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Push transport modes accepted by PUSH_MODE.
const (
	PushModeLog   = "log"
	PushModeHTTP  = "http"
	PushModeRedis = "redis"
)

// Config holds all configuration values for the API server.
// Values are populated by Load from environment variables.
type Config struct {
	// Port is the TCP port the HTTP server listens on. Defaults to "8080".
	Port string

	// DatabaseURL is the Postgres connection string. Required.
	DatabaseURL string

	// LogLevel controls the minimum log level. Defaults to "info".
	// Valid values: debug, info, warn, error.
	LogLevel string

	// CORSOrigins is the list of allowed cross-origin request origins.
	// Defaults to ["http://localhost:5173"].
	// Set CORS_ORIGINS to a comma-separated list to override.
	CORSOrigins []string

	// MaxBodyBytes caps request bodies. Defaults to 1 MiB.
	MaxBodyBytes int64

	// DefaultTripDuration is the window length assumed by availability checks
	// that give neither an end nor a duration. Defaults to 4h.
	DefaultTripDuration time.Duration

	Notify NotifyConfig
	Push   PushConfig
}

// NotifyConfig sizes the detached notification dispatcher.
type NotifyConfig struct {
	Workers   int           // NOTIFY_WORKERS, default 2
	QueueSize int           // NOTIFY_QUEUE_SIZE, default 128
	Timeout   time.Duration // NOTIFY_TIMEOUT, default 10s
	// OpsRoles are the user roles that receive every schedule change.
	OpsRoles []string
	// TemplatesFile optionally points at a YAML file of template overrides.
	TemplatesFile string
}

// PushConfig selects and configures the push transport.
type PushConfig struct {
	Mode       string // log | http | redis
	URL        string
	APIKey     string
	RatePerSec float64
	RedisURL   string
	Channel    string
}

// Load reads configuration from environment variables and returns a Config.
// Returns an error listing any required variables that are not set, or the
// first variable that cannot be parsed.
func Load() (Config, error) {
	// A missing .env is the normal case outside local development.
	_ = godotenv.Load()

	cfg := Config{
		Port:        getEnv("PORT", "8080"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		CORSOrigins: splitCSV(getEnv("CORS_ORIGINS", "http://localhost:5173")),
		Notify: NotifyConfig{
			OpsRoles:      splitCSV(getEnv("OPS_ROLES", "scheduler,admin,super-admin")),
			TemplatesFile: os.Getenv("NOTIFY_TEMPLATES_FILE"),
		},
		Push: PushConfig{
			Mode:     strings.ToLower(getEnv("PUSH_MODE", PushModeLog)),
			URL:      os.Getenv("PUSH_URL"),
			APIKey:   os.Getenv("PUSH_API_KEY"),
			RedisURL: getEnv("REDIS_URL", "redis://localhost:6379/0"),
			Channel:  getEnv("REDIS_CHANNEL", "trip-scheduler:push"),
		},
	}

	var err error
	if cfg.MaxBodyBytes, err = getInt64("MAX_BODY_BYTES", 1<<20); err != nil {
		return Config{}, err
	}
	if cfg.DefaultTripDuration, err = getDuration("DEFAULT_TRIP_DURATION", 4*time.Hour); err != nil {
		return Config{}, err
	}
	if cfg.Notify.Workers, err = getInt("NOTIFY_WORKERS", 2); err != nil {
		return Config{}, err
	}
	if cfg.Notify.QueueSize, err = getInt("NOTIFY_QUEUE_SIZE", 128); err != nil {
		return Config{}, err
	}
	if cfg.Notify.Timeout, err = getDuration("NOTIFY_TIMEOUT", 10*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.Push.RatePerSec, err = getFloat("PUSH_RATE_PER_SEC", 50); err != nil {
		return Config{}, err
	}

	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	switch cfg.Push.Mode {
	case PushModeLog, PushModeRedis:
	case PushModeHTTP:
		if cfg.Push.URL == "" {
			missing = append(missing, "PUSH_URL")
		}
	default:
		return Config{}, fmt.Errorf("PUSH_MODE must be one of log, http, redis; got %q", cfg.Push.Mode)
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("required environment variables not set: %s", strings.Join(missing, ", "))
	}

	return cfg, nil
}

// getEnv returns the value of the environment variable named by key,
// or fallback if the variable is not set or is empty.
func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", key, v)
	}
	return n, nil
}

func getInt64(key string, fallback int64) (int64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", key, v)
	}
	return n, nil
}

func getFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		return 0, fmt.Errorf("%s must be a positive number, got %q", key, v)
	}
	return f, nil
}

// getDuration parses Go duration syntax ("90m", "4h").
func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%s must be a positive duration such as 90m, got %q", key, v)
	}
	return d, nil
}

// splitCSV splits a comma-separated string into a trimmed slice, ignoring empty entries.
func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if t := strings.TrimSpace(part); t != "" {
			out = append(out, t)
		}
	}
	return out
}
