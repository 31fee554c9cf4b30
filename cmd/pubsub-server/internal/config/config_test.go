package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("DB_PASSWORD", "secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr())
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "mysql", cfg.Database.Driver)
	assert.Equal(t, "pubsub_", cfg.Database.Prefix)
	assert.True(t, cfg.Database.AutoMigrate)
	assert.Equal(t, 24*time.Hour, cfg.Broker.MessageTTL)
	assert.Equal(t, 30*time.Second, cfg.Broker.LeaseDuration)
	assert.Equal(t, 10, cfg.Broker.PullBatch)
	assert.Equal(t, 5*time.Second, cfg.Broker.SweepInterval)
	assert.Equal(t, "info", cfg.Logger.Level)
	assert.False(t, cfg.Server.EnableDocs)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("DB_DRIVER", "sqlite3")
	t.Setenv("DB_NAME", "/tmp/broker.db")
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("BROKER_LEASE_DURATION", "2m")
	t.Setenv("BROKER_PULL_BATCH", "50")
	t.Setenv("LOG_FORMAT_JSON", "true")
	t.Setenv("SERVER_ENABLE_DOCS", "true")

	cfg, err := Load()
	require.NoError(t, err, "sqlite3 needs no password")

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "/tmp/broker.db", cfg.Database.GetDSN())
	assert.Equal(t, 2*time.Minute, cfg.Broker.LeaseDuration)
	assert.Equal(t, 50, cfg.Broker.PullBatch)
	assert.True(t, cfg.Logger.FormatJSON)
	assert.True(t, cfg.Server.EnableDocs)
}

func TestLoad_YAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 7070
database:
  memory: true
broker:
  sweep_interval: 1s
log:
  level: debug
`), 0o600))
	t.Setenv("CONFIG_PATH", path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.True(t, cfg.Database.Memory)
	assert.Equal(t, time.Second, cfg.Broker.SweepInterval)
	assert.Equal(t, "debug", cfg.Logger.Level)
	assert.Equal(t, 30*time.Second, cfg.Broker.LeaseDuration, "defaults fill gaps")
}

func TestLoad_MissingFile(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))

	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Server:   ServerConfig{Port: 8080},
			Database: DatabaseConfig{Driver: "postgres", Password: "x"},
			Broker: BrokerConfig{
				MessageTTL:    time.Hour,
				LeaseDuration: time.Second,
				PullBatch:     10,
				SweepInterval: time.Second,
			},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"missing password", func(c *Config) { c.Database.Password = "" }, "DB_PASSWORD"},
		{"memory needs no password", func(c *Config) { c.Database.Password = ""; c.Database.Memory = true }, ""},
		{"unknown driver", func(c *Config) { c.Database.Driver = "oracle" }, "unsupported DB_DRIVER"},
		{"driver case-insensitive", func(c *Config) { c.Database.Driver = "Postgres" }, ""},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "SERVER_PORT"},
		{"zero ttl", func(c *Config) { c.Broker.MessageTTL = 0 }, "BROKER_MESSAGE_TTL"},
		{"zero lease", func(c *Config) { c.Broker.LeaseDuration = 0 }, "BROKER_LEASE_DURATION"},
		{"zero sweep", func(c *Config) { c.Broker.SweepInterval = 0 }, "BROKER_SWEEP_INTERVAL"},
		{"batch too large", func(c *Config) { c.Broker.PullBatch = MaxPullBatch + 1 }, "BROKER_PULL_BATCH"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestGetDSN(t *testing.T) {
	db := DatabaseConfig{Driver: "mysql", User: "u", Password: "p", Host: "h", Port: 3306, Name: "n"}
	assert.Equal(t, "u:p@tcp(h:3306)/n?parseTime=true&loc=UTC", db.GetDSN())

	db.Driver = "postgres"
	assert.Equal(t, "host=h port=3306 user=u password=p dbname=n sslmode=disable", db.GetDSN())

	db.Driver = "unknown"
	assert.Empty(t, db.GetDSN())
}
