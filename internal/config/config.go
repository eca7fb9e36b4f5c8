package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config captures the runtime configuration for the application.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Logging   LoggingConfig
	Recompute RecomputeConfig
	Metrics   MetricsConfig
}

// ServerConfig configures the HTTP server runtime behavior.
type ServerConfig struct {
	Addr string
}

// DatabaseConfig contains the database connection settings.
type DatabaseConfig struct {
	Driver          string
	URL             string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	UseMock         bool
	// StoreTimeout bounds every store call made without a caller deadline.
	StoreTimeout time.Duration
}

// LoggingConfig controls the global logger.
type LoggingConfig struct {
	Level string
}

// RecomputeConfig schedules the stock snapshot recomputation pass. An empty
// schedule disables it.
type RecomputeConfig struct {
	Schedule string
	// Timeout bounds one scheduled pass.
	Timeout time.Duration
}

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool
}

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Load inspects the environment and builds a Config value. A .env file is read
// first when present; ENV_FILE names an alternative file.
func Load() (Config, error) {
	if err := loadEnvFile(os.Getenv("ENV_FILE")); err != nil {
		return Config{}, err
	}

	cfg := Config{}

	cfg.Server = ServerConfig{
		Addr: firstNonEmpty(
			os.Getenv("SERVER_ADDR"),
			os.Getenv("ADDR"),
			":8080",
		),
	}

	cfg.Database = DatabaseConfig{
		Driver: strings.ToLower(strings.TrimSpace(firstNonEmpty(
			os.Getenv("DATABASE_DRIVER"),
			DriverPostgres,
		))),
		URL: firstNonEmpty(
			os.Getenv("DATABASE_URL"),
			os.Getenv("DB_URL"),
			"",
		),
		MaxIdleConns:    parseIntWithDefault(os.Getenv("DATABASE_MAX_IDLE_CONNS"), 0),
		MaxOpenConns:    parseIntWithDefault(os.Getenv("DATABASE_MAX_OPEN_CONNS"), 0),
		ConnMaxLifetime: parseDurationWithDefault(os.Getenv("DATABASE_CONN_MAX_LIFETIME"), 0),
		ConnMaxIdleTime: parseDurationWithDefault(os.Getenv("DATABASE_CONN_MAX_IDLE_TIME"), 0),
		UseMock:         parseBoolWithDefault(os.Getenv("DATABASE_USE_MOCK"), false),
		StoreTimeout:    parseDurationWithDefault(os.Getenv("STORE_TIMEOUT"), 5*time.Second),
	}

	cfg.Logging = LoggingConfig{
		Level: firstNonEmpty(os.Getenv("LOG_LEVEL"), "info"),
	}

	cfg.Recompute = RecomputeConfig{
		Schedule: strings.TrimSpace(os.Getenv("RECOMPUTE_SCHEDULE")),
		Timeout:  parseDurationWithDefault(os.Getenv("RECOMPUTE_TIMEOUT"), 5*time.Minute),
	}

	cfg.Metrics = MetricsConfig{
		Enabled: parseBoolWithDefault(os.Getenv("METRICS_ENABLED"), true),
	}

	if strings.TrimSpace(cfg.Server.Addr) == "" {
		return Config{}, fmt.Errorf("server address must not be empty")
	}

	switch cfg.Database.Driver {
	case DriverPostgres, DriverSQLite:
	default:
		return Config{}, fmt.Errorf("unsupported database driver: %s", cfg.Database.Driver)
	}

	if cfg.Database.StoreTimeout <= 0 {
		return Config{}, fmt.Errorf("store timeout must be positive")
	}

	return cfg, nil
}

func loadEnvFile(path string) error {
	if strings.TrimSpace(path) == "" {
		// A missing .env is fine when the environment is set directly.
		_ = godotenv.Load()
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

func parseIntWithDefault(value string, def int) int {
	value = strings.TrimSpace(value)
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func parseDurationWithDefault(value string, def time.Duration) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return parsed
}

func parseBoolWithDefault(value string, def bool) bool {
	value = strings.TrimSpace(value)
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return def
	}
	return parsed
}
