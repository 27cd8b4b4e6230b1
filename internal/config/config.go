package config

import (
	"fmt"
	"os"
	"time"

	"github.com/Dan9191/agriconnect/internal/password"
)

// Supported values for DB_DRIVER
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds application configuration
type Config struct {
	Port            string
	DBDriver        string
	DBConn          string
	LogLevel        string
	HashScheme      string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// NewConfig loads configuration from environment variables
func NewConfig() (*Config, error) {
	cfg := &Config{
		Port:       getEnv("PORT", "8000"),
		DBDriver:   getEnv("DB_DRIVER", DriverSQLite),
		DBConn:     getEnv("DB_CONN", "file:users.db?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"),
		LogLevel:   getEnv("LOG_LEVEL", "info"),
		HashScheme: getEnv("HASH_SCHEME", "argon2id"),
	}

	var err error
	if cfg.ReadTimeout, err = getDuration("READ_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.WriteTimeout, err = getDuration("WRITE_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.ShutdownTimeout, err = getDuration("SHUTDOWN_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}

	if cfg.DBConn == "" {
		return nil, fmt.Errorf("DB_CONN is required")
	}
	if cfg.DBDriver != DriverSQLite && cfg.DBDriver != DriverPostgres {
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DBDriver)
	}
	scheme, err := password.ParseScheme(cfg.HashScheme)
	if err != nil {
		return nil, fmt.Errorf("invalid HASH_SCHEME: %w", err)
	}
	cfg.HashScheme = string(scheme)

	return cfg, nil
}

func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}

func getDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
