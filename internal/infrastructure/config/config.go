package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Backend       BackendConfig       `mapstructure:"backend"`
	Sync          SyncConfig          `mapstructure:"sync"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	InstanceID    string              `mapstructure:"instance_id"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORS            CORSConfig    `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	MaxConnections  int           `mapstructure:"max_connections"`
	MinConnections  int           `mapstructure:"min_connections"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	SSLMode         string        `mapstructure:"ssl_mode"`
}

type RedisConfig struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	DB                int           `mapstructure:"db"`
	Password          string        `mapstructure:"password"`
	ConnectRetries    int           `mapstructure:"connect_retries"`
	ConnectRetryDelay time.Duration `mapstructure:"connect_retry_delay"`
}

type BackendConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

type SyncConfig struct {
	UserID           string        `mapstructure:"user_id"`
	StoreDriver      string        `mapstructure:"store_driver"` // postgres or memory
	RetryBase        time.Duration `mapstructure:"retry_base"`
	RetryMaxDelay    time.Duration `mapstructure:"retry_max_delay"`
	MaxAttempts      int           `mapstructure:"max_attempts"`
	Parallelism      int           `mapstructure:"parallelism"`
	AttemptTimeout   time.Duration `mapstructure:"attempt_timeout"`
	FallbackInterval time.Duration `mapstructure:"fallback_interval"`
	LeaseTTL         time.Duration `mapstructure:"lease_ttl"`
	Debounce         time.Duration `mapstructure:"debounce"`
	ProbeInterval    time.Duration `mapstructure:"probe_interval"`
	ProbeStaleness   time.Duration `mapstructure:"probe_staleness"`
	ProbeTimeout     time.Duration `mapstructure:"probe_timeout"`
	DraftTTL         time.Duration `mapstructure:"draft_ttl"`
}

type ObservabilityConfig struct {
	LogLevel       string `mapstructure:"log_level"`
	JaegerEndpoint string `mapstructure:"jaeger_endpoint"`
	EnableMetrics  bool   `mapstructure:"enable_metrics"`
	EnableTracing  bool   `mapstructure:"enable_tracing"`
}

func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("NOTESYNC")
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/notesync")

	// Config file is optional
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, fmt.Errorf("server.read_timeout must be positive"))
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, fmt.Errorf("server.write_timeout must be positive"))
	}
	if c.Backend.BaseURL == "" {
		errs = append(errs, fmt.Errorf("backend.base_url is required"))
	}
	if c.Sync.UserID == "" {
		errs = append(errs, fmt.Errorf("sync.user_id is required"))
	}
	switch c.Sync.StoreDriver {
	case "postgres", "memory":
	default:
		errs = append(errs, fmt.Errorf("sync.store_driver must be postgres or memory, got %q", c.Sync.StoreDriver))
	}
	if c.Sync.StoreDriver == "postgres" {
		if c.Database.Host == "" {
			errs = append(errs, fmt.Errorf("database.host is required"))
		}
		if c.Database.Port <= 0 {
			errs = append(errs, fmt.Errorf("database.port must be positive"))
		}
	}
	if c.Sync.MaxAttempts <= 0 {
		errs = append(errs, fmt.Errorf("sync.max_attempts must be positive"))
	}
	if c.Sync.RetryBase <= 0 {
		errs = append(errs, fmt.Errorf("sync.retry_base must be positive"))
	}
	if c.Sync.LeaseTTL <= 0 {
		errs = append(errs, fmt.Errorf("sync.lease_ttl must be positive"))
	}
	if c.Sync.Parallelism <= 0 || c.Sync.Parallelism > 8 {
		errs = append(errs, fmt.Errorf("sync.parallelism must be between 1 and 8, got %d", c.Sync.Parallelism))
	}

	return errors.Join(errs...)
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", 7343)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.cors.allowed_origins", []string{"*"})
	v.SetDefault("server.cors.allow_credentials", false)

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "notesync")
	v.SetDefault("database.database", "notesync")
	v.SetDefault("database.max_connections", 10)
	v.SetDefault("database.min_connections", 2)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.ssl_mode", "disable")

	// Redis defaults
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.connect_retries", 5)
	v.SetDefault("redis.connect_retry_delay", "1s")

	// Backend defaults
	v.SetDefault("backend.base_url", "")
	v.SetDefault("backend.request_timeout", "10s")

	// Sync defaults
	v.SetDefault("sync.store_driver", "postgres")
	v.SetDefault("sync.retry_base", "500ms")
	v.SetDefault("sync.retry_max_delay", "30s")
	v.SetDefault("sync.max_attempts", 5)
	v.SetDefault("sync.parallelism", 2)
	v.SetDefault("sync.attempt_timeout", "10s")
	v.SetDefault("sync.fallback_interval", "60s")
	v.SetDefault("sync.lease_ttl", "30s")
	v.SetDefault("sync.debounce", "2s")
	v.SetDefault("sync.probe_interval", "30s")
	v.SetDefault("sync.probe_staleness", "90s")
	v.SetDefault("sync.probe_timeout", "5s")
	v.SetDefault("sync.draft_ttl", "720h")

	// Observability defaults
	v.SetDefault("observability.log_level", "info")
	v.SetDefault("observability.jaeger_endpoint", "http://localhost:14268/api/traces")
	v.SetDefault("observability.enable_metrics", true)
	v.SetDefault("observability.enable_tracing", false)

	// Instance ID
	v.SetDefault("instance_id", "notesync-1")
}

func (c *DatabaseConfig) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
