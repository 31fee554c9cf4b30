// Package config provides configuration management for the broker server.
// Settings come from environment variables, optionally layered over a YAML
// file named by CONFIG_PATH.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// MaxPullBatch mirrors the broker's hard cap on one pull.
const MaxPullBatch = 1000

// Config holds all configuration for the broker server.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Broker   BrokerConfig   `yaml:"broker"`
	Logger   LoggerConfig   `yaml:"log"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `yaml:"host" env:"SERVER_HOST" env-default:"0.0.0.0"`
	Port            int           `yaml:"port" env:"SERVER_PORT" env-default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"SERVER_READ_TIMEOUT" env-default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"SERVER_WRITE_TIMEOUT" env-default:"15s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" env:"SERVER_IDLE_TIMEOUT" env-default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT" env-default:"30s"`
	EnableDocs      bool          `yaml:"enable_docs" env:"SERVER_ENABLE_DOCS" env-default:"false"` // Swagger UI at /api/v1/swagger/index.html
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	Memory       bool   `yaml:"memory" env:"DB_MEMORY" env-default:"false"` // In-process store, nothing persisted
	Driver       string `yaml:"driver" env:"DB_DRIVER" env-default:"mysql"` // mysql, postgres, sqlite3
	Host         string `yaml:"host" env:"DB_HOST" env-default:"localhost"`
	Port         int    `yaml:"port" env:"DB_PORT" env-default:"3306"`
	User         string `yaml:"user" env:"DB_USER" env-default:"pubsub"`
	Password     string `yaml:"password" env:"DB_PASSWORD"`
	Name         string `yaml:"name" env:"DB_NAME" env-default:"pubsub"` // Database name, or file path for sqlite3
	Prefix       string `yaml:"prefix" env:"DB_PREFIX" env-default:"pubsub_"`
	AutoMigrate  bool   `yaml:"auto_migrate" env:"DB_AUTO_MIGRATE" env-default:"true"`
	MaxOpenConns int    `yaml:"max_open_conns" env:"DB_MAX_OPEN_CONNS" env-default:"10"`
}

// BrokerConfig holds delivery defaults.
type BrokerConfig struct {
	MessageTTL          time.Duration `yaml:"message_ttl" env:"BROKER_MESSAGE_TTL" env-default:"24h"`
	LeaseDuration       time.Duration `yaml:"lease_duration" env:"BROKER_LEASE_DURATION" env-default:"30s"`
	PullBatch           int           `yaml:"pull_batch" env:"BROKER_PULL_BATCH" env-default:"10"`
	SweepInterval       time.Duration `yaml:"sweep_interval" env:"BROKER_SWEEP_INTERVAL" env-default:"5s"`
	EnableNotifications bool          `yaml:"enable_notifications" env:"BROKER_ENABLE_NOTIFICATIONS" env-default:"true"`
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level      string   `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
	FormatJSON bool     `yaml:"format_json" env:"LOG_FORMAT_JSON" env-default:"false"`
	Rotation   Rotation `yaml:"rotation"`
}

// Rotation configures file output. An empty File logs to stdout only.
type Rotation struct {
	File       string `yaml:"file" env:"LOG_FILE"`
	MaxSize    int    `yaml:"max_size" env:"LOG_MAX_SIZE" env-default:"100"` // megabytes
	MaxBackups int    `yaml:"max_backups" env:"LOG_MAX_BACKUPS" env-default:"3"`
	MaxAge     int    `yaml:"max_age" env:"LOG_MAX_AGE" env-default:"28"` // days
}

// Load reads the configuration. When CONFIG_PATH is set the YAML file is read
// first and environment variables override it.
func Load() (*Config, error) {
	var cfg Config

	if path := os.Getenv("CONFIG_PATH"); path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file %s: %w", path, err)
		}
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field rules cleanenv cannot express.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("SERVER_PORT out of range: %d", c.Server.Port))
	}

	if !c.Database.Memory {
		switch c.Database.DriverName() {
		case "mysql", "postgres":
			if c.Database.Password == "" {
				errs = append(errs, errors.New("DB_PASSWORD environment variable is required"))
			}
		case "sqlite3":
		default:
			errs = append(errs, fmt.Errorf("unsupported DB_DRIVER %q (mysql, postgres, sqlite3)", c.Database.Driver))
		}
	}

	if c.Broker.MessageTTL <= 0 {
		errs = append(errs, errors.New("BROKER_MESSAGE_TTL must be positive"))
	}
	if c.Broker.LeaseDuration <= 0 {
		errs = append(errs, errors.New("BROKER_LEASE_DURATION must be positive"))
	}
	if c.Broker.SweepInterval <= 0 {
		errs = append(errs, errors.New("BROKER_SWEEP_INTERVAL must be positive"))
	}
	if c.Broker.PullBatch <= 0 || c.Broker.PullBatch > MaxPullBatch {
		errs = append(errs, fmt.Errorf("BROKER_PULL_BATCH must be in 1..%d", MaxPullBatch))
	}

	return errors.Join(errs...)
}

// DriverName returns the normalized driver name.
func (c *DatabaseConfig) DriverName() string {
	return strings.ToLower(strings.TrimSpace(c.Driver))
}

// GetDSN returns the database connection string based on driver.
func (c *DatabaseConfig) GetDSN() string {
	switch c.DriverName() {
	case "mysql":
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&loc=UTC",
			c.User, c.Password, c.Host, c.Port, c.Name)
	case "postgres":
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
			c.Host, c.Port, c.User, c.Password, c.Name)
	case "sqlite3":
		return c.Name // SQLite uses file path as DSN
	default:
		return ""
	}
}

// Addr returns the HTTP listen address.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
