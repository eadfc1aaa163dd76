package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            7343,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "notesync",
			Password: "notesync",
			Database: "notesync",
			SSLMode:  "disable",
		},
		Backend: BackendConfig{
			BaseURL:        "http://localhost:9090",
			RequestTimeout: 10 * time.Second,
		},
		Sync: SyncConfig{
			UserID:      "u1",
			StoreDriver: "postgres",
			RetryBase:   500 * time.Millisecond,
			MaxAttempts: 5,
			Parallelism: 2,
			LeaseTTL:    30 * time.Second,
		},
	}
}

func TestConfig_Validate_Success(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestConfig_Validate_InvalidServerPort(t *testing.T) {
	tests := []struct {
		name string
		port int
	}{
		{"port zero", 0},
		{"port negative", -1},
		{"port too high", 99999},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Server.Port = tt.port
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestConfig_Validate_RequiresUserID(t *testing.T) {
	cfg := validConfig()
	cfg.Sync.UserID = ""

	err := cfg.Validate()
	assert.ErrorContains(t, err, "sync.user_id")
}

func TestConfig_Validate_RequiresBackendBaseURL(t *testing.T) {
	cfg := validConfig()
	cfg.Backend.BaseURL = ""

	err := cfg.Validate()
	assert.ErrorContains(t, err, "backend.base_url")
}

func TestConfig_Validate_StoreDriver(t *testing.T) {
	cfg := validConfig()
	cfg.Sync.StoreDriver = "sqlite"
	assert.ErrorContains(t, cfg.Validate(), "store_driver")

	cfg.Sync.StoreDriver = "memory"
	cfg.Database = DatabaseConfig{} // no database needed for the memory driver
	assert.NoError(t, cfg.Validate())
}

func TestConfig_Validate_PostgresDriverNeedsDatabase(t *testing.T) {
	cfg := validConfig()
	cfg.Database.Host = ""

	err := cfg.Validate()
	assert.ErrorContains(t, err, "database.host")
}

func TestConfig_Validate_SyncBounds(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero max attempts", func(c *Config) { c.Sync.MaxAttempts = 0 }},
		{"zero retry base", func(c *Config) { c.Sync.RetryBase = 0 }},
		{"zero lease ttl", func(c *Config) { c.Sync.LeaseTTL = 0 }},
		{"zero parallelism", func(c *Config) { c.Sync.Parallelism = 0 }},
		{"excessive parallelism", func(c *Config) { c.Sync.Parallelism = 64 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestDatabaseConfig_DSN(t *testing.T) {
	cfg := validConfig()
	dsn := cfg.Database.DatabaseDSN()

	assert.Contains(t, dsn, "host=localhost")
	assert.Contains(t, dsn, "dbname=notesync")
	assert.Contains(t, dsn, "sslmode=disable")
}

func TestRedisConfig_Addr(t *testing.T) {
	cfg := RedisConfig{Host: "redis.internal", Port: 6380}
	assert.Equal(t, "redis.internal:6380", cfg.RedisAddr())
}
