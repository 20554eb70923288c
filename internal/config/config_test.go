package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoad_valid(t *testing.T) {
	cfg, err := Load("testdata/valid.yaml")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("Server.ReadTimeout = %v, want 15s", cfg.Server.ReadTimeout)
	}
	if cfg.Server.WriteTimeout != 10*time.Second {
		t.Errorf("Server.WriteTimeout = %v, want default 10s", cfg.Server.WriteTimeout)
	}
	if cfg.Store.Driver != "postgres" || cfg.Store.DSNEnv != "CRM_DB_URL" {
		t.Errorf("Store = %+v", cfg.Store)
	}
	if cfg.Store.MaxOpenConns != 10 {
		t.Errorf("Store.MaxOpenConns = %d, want 10", cfg.Store.MaxOpenConns)
	}
	if n := cfg.Store.Notifications; n.Driver != "redis" || n.DB != 2 || n.Namespace != "crm-test" {
		t.Errorf("Store.Notifications = %+v", n)
	}
	if n := cfg.Store.Notifications; n.BreakerCooldown != time.Minute || n.BreakerFailures != 5 {
		t.Errorf("breaker = %d/%v, want default 5 failures and 1m cooldown", n.BreakerFailures, n.BreakerCooldown)
	}
	if cfg.Dashboard.UrgentWithin != 48*time.Hour {
		t.Errorf("Dashboard.UrgentWithin = %v, want 48h", cfg.Dashboard.UrgentWithin)
	}
	if cfg.Dashboard.UpcomingWindow != 14*24*time.Hour {
		t.Errorf("Dashboard.UpcomingWindow = %v, want 336h", cfg.Dashboard.UpcomingWindow)
	}
	if cfg.Dashboard.BottleneckFactor != 2 {
		t.Errorf("Dashboard.BottleneckFactor = %v, want 2", cfg.Dashboard.BottleneckFactor)
	}
	if cfg.Dashboard.OverloadThreshold != 8 {
		t.Errorf("Dashboard.OverloadThreshold = %d, want 8", cfg.Dashboard.OverloadThreshold)
	}
	if !cfg.Catalog.HotReload || cfg.Catalog.TuningFile != "/etc/crmflow/tuning.yaml" {
		t.Errorf("Catalog = %+v", cfg.Catalog)
	}
	if !cfg.Observability.Tracing.Enabled || cfg.Observability.Tracing.Exporter != "stdout" {
		t.Errorf("Tracing = %+v", cfg.Observability.Tracing)
	}
}

func TestLoad_missing_file(t *testing.T) {
	_, err := Load("testdata/nonexistent.yaml")
	if err == nil {
		t.Fatal("Load() with missing file should return error")
	}
}

func TestLoad_empty_path_uses_defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error = %v", err)
	}
	if cfg.Store.Driver != "memory" {
		t.Errorf("Store.Driver = %q, want memory", cfg.Store.Driver)
	}
}

func TestLoad_invalid_reports_every_problem(t *testing.T) {
	_, err := Load("testdata/bad_driver.yaml")
	if err == nil {
		t.Fatal("Load() with unsupported driver should return error")
	}
	msg := err.Error()
	for _, want := range []string{"store.driver", "dashboard.bottleneck_factor"} {
		if !strings.Contains(msg, want) {
			t.Errorf("error %q does not mention %s", msg, want)
		}
	}
}

func TestLoad_env_overrides(t *testing.T) {
	t.Setenv("CRMFLOW_SERVER_PORT", "7070")
	t.Setenv("CRMFLOW_OBSERVABILITY_LOG_LEVEL", "warn")
	t.Setenv("CRMFLOW_STORE_DRIVER", "memory")
	t.Setenv("CRMFLOW_TRACING_ENABLED", "false")

	cfg, err := Load("testdata/valid.yaml")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("Server.Port = %d, want 7070", cfg.Server.Port)
	}
	if cfg.Observability.LogLevel != "warn" {
		t.Errorf("LogLevel = %q, want warn", cfg.Observability.LogLevel)
	}
	if cfg.Store.Driver != "memory" {
		t.Errorf("Store.Driver = %q, want memory", cfg.Store.Driver)
	}
	if cfg.Observability.Tracing.Enabled {
		t.Error("Tracing.Enabled = true, want false")
	}
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	if cfg.Server.Port != 8080 {
		t.Errorf("default Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Dashboard.UrgentWithin != 72*time.Hour {
		t.Errorf("default UrgentWithin = %v, want 72h", cfg.Dashboard.UrgentWithin)
	}
	if cfg.Dashboard.UpcomingWindow != 7*24*time.Hour {
		t.Errorf("default UpcomingWindow = %v, want 168h", cfg.Dashboard.UpcomingWindow)
	}
	if cfg.Dashboard.BottleneckFactor != 1.5 {
		t.Errorf("default BottleneckFactor = %v, want 1.5", cfg.Dashboard.BottleneckFactor)
	}
	if cfg.Dashboard.OverloadThreshold != 5 {
		t.Errorf("default OverloadThreshold = %d, want 5", cfg.Dashboard.OverloadThreshold)
	}
	if cfg.Observability.LogLevel != "info" {
		t.Errorf("default LogLevel = %q, want info", cfg.Observability.LogLevel)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Defaults().Validate() error = %v", err)
	}
}

func TestValidate_port(t *testing.T) {
	cfg := Defaults()
	cfg.Server.Port = 0
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "server.port") {
		t.Errorf("Validate() error = %v, want server.port", err)
	}
}
