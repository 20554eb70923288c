// Package config loads and validates application configuration from YAML files
// and environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root application configuration.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Store         StoreConfig         `yaml:"store"`
	Dashboard     DashboardConfig     `yaml:"dashboard"`
	Catalog       CatalogConfig       `yaml:"catalog"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig describes the operational HTTP server.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// StoreConfig describes workflow, user and notification persistence.
type StoreConfig struct {
	Driver          string             `yaml:"driver"`
	DSNEnv          string             `yaml:"dsn_env"`
	MaxOpenConns    int                `yaml:"max_open_conns"`
	MaxIdleConns    int                `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration      `yaml:"conn_max_lifetime"`
	ConnectTimeout  time.Duration      `yaml:"connect_timeout"`
	Notifications   NotificationConfig `yaml:"notifications"`
}

// NotificationConfig describes where user notifications are kept.
type NotificationConfig struct {
	Driver    string `yaml:"driver"`
	AddrEnv   string `yaml:"addr_env"`
	DB        int    `yaml:"db"`
	Namespace string `yaml:"namespace"`

	// BreakerFailures consecutive write failures open the circuit for
	// BreakerCooldown. Applies to the redis driver.
	BreakerFailures int           `yaml:"breaker_failures"`
	BreakerCooldown time.Duration `yaml:"breaker_cooldown"`
}

// DashboardConfig holds the thresholds used by dashboards and reports.
type DashboardConfig struct {
	UrgentWithin      time.Duration `yaml:"urgent_within"`
	UpcomingWindow    time.Duration `yaml:"upcoming_window"`
	BottleneckFactor  float64       `yaml:"bottleneck_factor"`
	OverloadThreshold int           `yaml:"overload_threshold"`
	RefreshInterval   time.Duration `yaml:"refresh_interval"`
}

// CatalogConfig points at the optional tuning file.
type CatalogConfig struct {
	TuningFile string `yaml:"tuning_file"`
	HotReload  bool   `yaml:"hot_reload"`
}

// ObservabilityConfig describes logging, tracing, and metrics settings.
type ObservabilityConfig struct {
	LogLevel string        `yaml:"log_level"`
	Tracing  TracingConfig `yaml:"tracing"`
	Metrics  MetricsConfig `yaml:"metrics"`
}

// TracingConfig describes distributed tracing settings.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"`
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"sampling_rate"`
}

// MetricsConfig describes Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Defaults returns a Config with sensible default values.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Store: StoreConfig{
			Driver:          "memory",
			DSNEnv:          "CRMFLOW_DATABASE_URL",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			ConnectTimeout:  30 * time.Second,
			Notifications: NotificationConfig{
				Driver:    "memory",
				AddrEnv:   "CRMFLOW_REDIS_ADDR",
				Namespace: "crmflow",

				BreakerFailures: 5,
				BreakerCooldown: 30 * time.Second,
			},
		},
		Dashboard: DashboardConfig{
			UrgentWithin:      72 * time.Hour,
			UpcomingWindow:    7 * 24 * time.Hour,
			BottleneckFactor:  1.5,
			OverloadThreshold: 5,
			RefreshInterval:   time.Minute,
		},
		Observability: ObservabilityConfig{
			LogLevel: "info",
			Tracing: TracingConfig{
				Exporter:     "otlp",
				SamplingRate: 0.1,
			},
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
		},
	}
}

// Load reads a YAML config file, applies environment variable overrides,
// and validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation: %w", err)
	}

	return cfg, nil
}

var (
	validStoreDrivers        = map[string]bool{"memory": true, "postgres": true}
	validNotificationDrivers = map[string]bool{"memory": true, "redis": true}
	validExporters           = map[string]bool{"otlp": true, "stdout": true}
)

// Validate checks that all required fields are present and valid.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}
	if !validStoreDrivers[c.Store.Driver] {
		errs = append(errs, fmt.Sprintf("store.driver %q is not supported (memory, postgres)", c.Store.Driver))
	}
	if c.Store.Driver == "postgres" && c.Store.DSNEnv == "" {
		errs = append(errs, "store.dsn_env is required for the postgres driver")
	}
	if !validNotificationDrivers[c.Store.Notifications.Driver] {
		errs = append(errs, fmt.Sprintf("store.notifications.driver %q is not supported (memory, redis)", c.Store.Notifications.Driver))
	}
	if c.Store.Notifications.Driver == "redis" && c.Store.Notifications.AddrEnv == "" {
		errs = append(errs, "store.notifications.addr_env is required for the redis driver")
	}
	if c.Store.Notifications.BreakerFailures < 0 || c.Store.Notifications.BreakerCooldown < 0 {
		errs = append(errs, "store.notifications breaker settings must not be negative")
	}
	if c.Dashboard.UrgentWithin <= 0 {
		errs = append(errs, "dashboard.urgent_within must be positive")
	}
	if c.Dashboard.UpcomingWindow <= 0 {
		errs = append(errs, "dashboard.upcoming_window must be positive")
	}
	if c.Dashboard.BottleneckFactor <= 0 {
		errs = append(errs, "dashboard.bottleneck_factor must be positive")
	}
	if c.Dashboard.OverloadThreshold < 1 {
		errs = append(errs, "dashboard.overload_threshold must be at least 1")
	}
	if c.Catalog.HotReload && c.Catalog.TuningFile == "" {
		errs = append(errs, "catalog.hot_reload requires catalog.tuning_file")
	}
	if c.Observability.Tracing.Enabled && !validExporters[c.Observability.Tracing.Exporter] {
		errs = append(errs, fmt.Sprintf("observability.tracing.exporter %q is not supported (otlp, stdout)", c.Observability.Tracing.Exporter))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// applyEnvOverrides reads CRMFLOW_* environment variables and overrides config
// values. Only the most commonly overridden fields are supported.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CRMFLOW_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("CRMFLOW_STORE_DRIVER"); v != "" {
		cfg.Store.Driver = v
	}
	if v := os.Getenv("CRMFLOW_NOTIFICATIONS_DRIVER"); v != "" {
		cfg.Store.Notifications.Driver = v
	}
	if v := os.Getenv("CRMFLOW_TUNING_FILE"); v != "" {
		cfg.Catalog.TuningFile = v
	}
	if v := os.Getenv("CRMFLOW_OBSERVABILITY_LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}
	if v := os.Getenv("CRMFLOW_TRACING_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Observability.Tracing.Enabled = b
		}
	}
}
