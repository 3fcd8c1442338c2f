// Package config loads and validates service configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/JakeFAU/realtime-aqi-etl/internal/policy/ratelimit"
	"github.com/JakeFAU/realtime-aqi-etl/internal/storage"
)

// EnvPrefix prefixes every environment override, e.g. AQI_API_TOKEN.
const EnvPrefix = "AQI"

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	API      APIConfig      `mapstructure:"api"`
	Cities   []string       `mapstructure:"cities"`
	Schedule ScheduleConfig `mapstructure:"schedule"`
	Poller   PollerConfig   `mapstructure:"poller"`
	DB       DBConfig       `mapstructure:"db"`
	Archive  ArchiveConfig  `mapstructure:"archive"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// APIConfig describes the upstream feed.
type APIConfig struct {
	Token     string        `mapstructure:"token"`
	BaseURL   string        `mapstructure:"base_url"`
	UserAgent string        `mapstructure:"user_agent"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// ScheduleConfig holds the two independent job intervals.
type ScheduleConfig struct {
	PollInterval      time.Duration `mapstructure:"poll_interval"`
	KeepAliveInterval time.Duration `mapstructure:"keepalive_interval"`
}

// PollerConfig governs the fetch cycle.
type PollerConfig struct {
	Concurrency int `mapstructure:"concurrency"`
	// RateLimit paces feed requests per host; rps 0 disables it.
	RateLimit ratelimit.Config `mapstructure:"rate_limit"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Name            string        `mapstructure:"name"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"sslmode"`
	Table           string        `mapstructure:"table"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// ArchiveConfig selects the raw payload store.
type ArchiveConfig struct {
	storage.Config `mapstructure:",squash"`
	Prefix         string `mapstructure:"prefix"`
}

// NotifyConfig holds metadata for batch notifications.
type NotifyConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// ServerConfig controls the ops HTTP server in schedule mode.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from .env, disk and environment, in increasing precedence.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.token", "")
	v.SetDefault("api.base_url", "https://api.waqi.info")
	v.SetDefault("api.user_agent", "aqi-etl/0.1")
	v.SetDefault("api.timeout", "30s")
	v.SetDefault("cities", []string{"hanoi", "da-nang", "ho-chi-minh-city"})
	v.SetDefault("schedule.poll_interval", "0s")
	v.SetDefault("schedule.keepalive_interval", "0s")
	v.SetDefault("poller.concurrency", 1)
	v.SetDefault("poller.rate_limit.rps", 0)
	v.SetDefault("poller.rate_limit.burst", 1)
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.name", "postgres")
	v.SetDefault("db.user", "postgres")
	v.SetDefault("db.password", "")
	v.SetDefault("db.sslmode", "prefer")
	v.SetDefault("db.table", "air_quality")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.max_conn_lifetime", "0s")
	v.SetDefault("archive.provider", storage.ProviderLocal)
	v.SetDefault("archive.base_dir", "data_lake")
	v.SetDefault("archive.prefix", "raw_data")
	v.SetDefault("archive.gcs_bucket", "")
	v.SetDefault("archive.minio.endpoint", "")
	v.SetDefault("archive.minio.access_key", "")
	v.SetDefault("archive.minio.secret_key", "")
	v.SetDefault("archive.minio.bucket", "")
	v.SetDefault("archive.minio.use_ssl", false)
	v.SetDefault("archive.minio.region", "")
	v.SetDefault("notify.project_id", "")
	v.SetDefault("notify.topic", "")
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
}

// Validate enforces values every entry point needs.
func (c Config) Validate() error {
	if strings.TrimSpace(c.API.Token) == "" {
		return fmt.Errorf("api.token is required")
	}
	if _, err := url.ParseRequestURI(c.API.BaseURL); err != nil {
		return fmt.Errorf("api.base_url is invalid: %w", err)
	}
	if c.API.Timeout < 0 {
		return fmt.Errorf("api.timeout must be >= 0")
	}
	if len(c.Cities) == 0 {
		return fmt.Errorf("cities must list at least one city")
	}
	for _, city := range c.Cities {
		if strings.TrimSpace(city) == "" {
			return fmt.Errorf("cities must not contain empty entries")
		}
	}
	if c.Poller.Concurrency <= 0 {
		return fmt.Errorf("poller.concurrency must be > 0")
	}
	if c.Poller.RateLimit.RPS < 0 {
		return fmt.Errorf("poller.rate_limit.rps must be >= 0")
	}
	if c.DB.Port <= 0 {
		return fmt.Errorf("db.port must be > 0")
	}
	switch c.Archive.Provider {
	case storage.ProviderLocal, storage.ProviderGCS, storage.ProviderMinIO, storage.ProviderMemory:
	default:
		return fmt.Errorf("archive.provider %q is not supported", c.Archive.Provider)
	}
	if c.Notify.Topic != "" && c.Notify.ProjectID == "" {
		return fmt.Errorf("notify.project_id must be set when notify.topic is set")
	}
	return nil
}

// ValidateSchedule enforces the intervals needed by schedule mode. Neither has a default.
func (c Config) ValidateSchedule() error {
	if c.Schedule.PollInterval <= 0 {
		return fmt.Errorf("schedule.poll_interval must be > 0")
	}
	if c.Schedule.KeepAliveInterval <= 0 {
		return fmt.Errorf("schedule.keepalive_interval must be > 0")
	}
	return nil
}

// DSN renders the database settings as a postgres URL.
func (c DBConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.Password),
		Host:   net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:   "/" + c.Name,
	}
	if c.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": {c.SSLMode}}.Encode()
	}
	return u.String()
}
