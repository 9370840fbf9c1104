package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. FINSYNC_REALTIME_MAX_ATTEMPTS
const EnvPrefix = "FINSYNC"

const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	API       APIConfig       `mapstructure:"api"`
	Realtime  RealtimeConfig  `mapstructure:"realtime"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Network   NetworkConfig   `mapstructure:"network"`
	Refresh   RefreshConfig   `mapstructure:"refresh"`
	Status    StatusConfig    `mapstructure:"status"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Log       LogConfig       `mapstructure:"log"`
	Auth      AuthConfig      `mapstructure:"auth"`
}

type APIConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type RealtimeConfig struct {
	URL               string        `mapstructure:"url"`
	Path              string        `mapstructure:"path"`
	MaxAttempts       int           `mapstructure:"max_attempts"`
	ReconnectDelay    time.Duration `mapstructure:"reconnect_delay"`
	BackoffMultiplier float64       `mapstructure:"backoff_multiplier"`
	MaxDelay          time.Duration `mapstructure:"max_delay"`
	ConnectTimeout    time.Duration `mapstructure:"connect_timeout"`
}

type CacheConfig struct {
	Driver           string `mapstructure:"driver"`
	Path             string `mapstructure:"path"`
	DSN              string `mapstructure:"dsn"`
	EncryptionSecret string `mapstructure:"encryption_secret"`
	LogMode          bool   `mapstructure:"log_mode"`
}

type NetworkConfig struct {
	ProbeAddr     string        `mapstructure:"probe_addr"`
	ProbeInterval time.Duration `mapstructure:"probe_interval"`
	ProbeTimeout  time.Duration `mapstructure:"probe_timeout"`
}

type RefreshConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Interval     time.Duration `mapstructure:"interval"`
	Workers      int           `mapstructure:"workers"`
	QueueSize    int           `mapstructure:"queue_size"`
	JobDelay     time.Duration `mapstructure:"job_delay"`
	RunOnStartup bool          `mapstructure:"run_on_startup"`
}

type StatusConfig struct {
	Enabled      bool     `mapstructure:"enabled"`
	Addr         string   `mapstructure:"addr"`
	AllowedHosts []string `mapstructure:"allowed_hosts"`
}

type TelemetryConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	ServiceName  string  `mapstructure:"service_name"`
	Environment  string  `mapstructure:"environment"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	MetricsPort  string  `mapstructure:"metrics_port"`
	SampleRatio  float64 `mapstructure:"sample_ratio"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// AuthConfig supplies the bearer token directly, or credentials to log in with
type AuthConfig struct {
	Token    string `mapstructure:"token"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.base_url", "http://localhost:3000")
	v.SetDefault("api.timeout", 30*time.Second)

	v.SetDefault("realtime.url", "")
	v.SetDefault("realtime.path", "/socket.io")
	v.SetDefault("realtime.max_attempts", 5)
	v.SetDefault("realtime.reconnect_delay", time.Second)
	v.SetDefault("realtime.backoff_multiplier", 1.0)
	v.SetDefault("realtime.max_delay", 30*time.Second)
	v.SetDefault("realtime.connect_timeout", 20*time.Second)

	v.SetDefault("cache.driver", DriverSQLite)
	v.SetDefault("cache.path", "data/finsync.db")
	v.SetDefault("cache.dsn", "")
	v.SetDefault("cache.encryption_secret", "")
	v.SetDefault("cache.log_mode", false)

	v.SetDefault("network.probe_addr", "")
	v.SetDefault("network.probe_interval", 15*time.Second)
	v.SetDefault("network.probe_timeout", 3*time.Second)

	v.SetDefault("refresh.enabled", true)
	v.SetDefault("refresh.interval", 15*time.Minute)
	v.SetDefault("refresh.workers", 2)
	v.SetDefault("refresh.queue_size", 32)
	v.SetDefault("refresh.job_delay", time.Duration(0))
	v.SetDefault("refresh.run_on_startup", true)

	v.SetDefault("status.enabled", true)
	v.SetDefault("status.addr", "127.0.0.1:8787")
	v.SetDefault("status.allowed_hosts", []string{"localhost", "127.0.0.1", "::1"})

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "finsync")
	v.SetDefault("telemetry.environment", "development")
	v.SetDefault("telemetry.otlp_endpoint", "localhost:4317")
	v.SetDefault("telemetry.metrics_port", "9464")
	v.SetDefault("telemetry.sample_ratio", 1.0)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("auth.token", "")
	v.SetDefault("auth.username", "")
	v.SetDefault("auth.password", "")
}

// Load reads defaults, then the optional file at path, then FINSYNC_* environment overrides
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Realtime URL follows the REST base URL unless set
	if cfg.Realtime.URL == "" {
		cfg.Realtime.URL = cfg.API.BaseURL
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks required fields and numeric ranges
func (c *Config) Validate() error {
	var errs []error

	if c.API.BaseURL == "" {
		errs = append(errs, errors.New("api.base_url is required"))
	}
	if c.API.Timeout <= 0 {
		errs = append(errs, errors.New("api.timeout must be positive"))
	}

	if c.Realtime.MaxAttempts < 1 {
		errs = append(errs, errors.New("realtime.max_attempts must be at least 1"))
	}
	if c.Realtime.BackoffMultiplier < 1 {
		errs = append(errs, errors.New("realtime.backoff_multiplier must be at least 1"))
	}
	if c.Realtime.ReconnectDelay <= 0 || c.Realtime.ConnectTimeout <= 0 || c.Realtime.MaxDelay <= 0 {
		errs = append(errs, errors.New("realtime durations must be positive"))
	}

	switch c.Cache.Driver {
	case DriverMemory:
	case DriverSQLite:
		if c.Cache.Path == "" {
			errs = append(errs, errors.New("cache.path is required for the sqlite driver"))
		}
	case DriverPostgres:
		if c.Cache.DSN == "" {
			errs = append(errs, errors.New("cache.dsn is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("cache.driver %q is not one of memory, sqlite, postgres", c.Cache.Driver))
	}

	if c.Network.ProbeInterval <= 0 || c.Network.ProbeTimeout <= 0 {
		errs = append(errs, errors.New("network probe durations must be positive"))
	}

	if c.Refresh.Enabled {
		if c.Refresh.Interval <= 0 {
			errs = append(errs, errors.New("refresh.interval must be positive"))
		}
		if c.Refresh.Workers < 1 {
			errs = append(errs, errors.New("refresh.workers must be at least 1"))
		}
		if c.Refresh.QueueSize < 1 {
			errs = append(errs, errors.New("refresh.queue_size must be at least 1"))
		}
	}

	if c.Auth.Username != "" && c.Auth.Password == "" {
		errs = append(errs, errors.New("auth.password is required with auth.username"))
	}

	if c.Telemetry.Enabled && (c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1) {
		errs = append(errs, errors.New("telemetry.sample_ratio must be between 0 and 1"))
	}

	if c.Status.Enabled && c.Status.Addr == "" {
		errs = append(errs, errors.New("status.addr is required when status is enabled"))
	}

	return errors.Join(errs...)
}
