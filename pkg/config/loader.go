package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/farmbi")
	}

	v.SetEnvPrefix("FARMBI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// No file: defaults and env vars only
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Default returns the configuration with every default applied and no file
// or environment overrides.
func Default() *Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	// Defaults are static; unmarshal cannot fail on them.
	_ = v.Unmarshal(&cfg)
	return &cfg
}

func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "farm-bi")
	v.SetDefault("app.mode", "development")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.log_max_size_mb", 50)
	v.SetDefault("app.log_max_backups", 5)
	v.SetDefault("app.log_max_age_days", 30)
	v.SetDefault("app.shutdown_timeout", "30s")

	// Database defaults
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.path", "farmbi.db")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "farmbi")
	v.SetDefault("database.user", "admin")
	v.SetDefault("database.password", "password")
	v.SetDefault("database.max_connections", 10)
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.ping_timeout", "10s")
	v.SetDefault("database.migration_timeout", "60s")

	// Cache defaults
	v.SetDefault("cache.backend", "sql")
	v.SetDefault("cache.default_ttl", "1h")
	v.SetDefault("cache.comparison_ttl", "90m")
	v.SetDefault("cache.kpi_tag", "kpi")
	v.SetDefault("cache.redis.addr", "localhost:6379")
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("cache.redis.key_prefix", "farmbi:cache:")
	v.SetDefault("cache.redis.pool_size", 10)

	// Snapshot defaults
	v.SetDefault("snapshot.retention_months", 24)
	v.SetDefault("snapshot.alert_lookback", "720h")
	v.SetDefault("snapshot.alert_cap", 20)

	// Anomaly detector defaults
	v.SetDefault("anomaly.window", 7)
	v.SetDefault("anomaly.min_values", 3)
	v.SetDefault("anomaly.metrics", []string{
		"costo_total", "ingreso_total", "produccion_total", "margen_bruto_pct", "mortalidad_pct",
	})
	v.SetDefault("anomaly.z_weight", 20.0)
	v.SetDefault("anomaly.pct_weight", 0.5)
	v.SetDefault("anomaly.medium_score", 30)
	v.SetDefault("anomaly.high_score", 60)
	v.SetDefault("anomaly.cache_ttl", "2h")

	// Pattern detector defaults
	v.SetDefault("pattern.window", 13)
	v.SetDefault("pattern.metrics", []string{
		"produccion_total", "costo_total", "ingreso_total", "margen_bruto_pct",
	})
	v.SetDefault("pattern.cost_metrics", []string{"costo_total"})
	v.SetDefault("pattern.seasonal_medium", 10.0)
	v.SetDefault("pattern.seasonal_high", 20.0)
	v.SetDefault("pattern.ramp_values", 6)
	v.SetDefault("pattern.ramp_min_values", 4)
	v.SetDefault("pattern.ramp_length", 3)
	v.SetDefault("pattern.cache_ttl", "2h")

	// Alert rule defaults
	v.SetDefault("alerts.dedup_window", "168h")
	v.SetDefault("alerts.average_months", 6)
	v.SetDefault("alerts.spend_pct", 130.0)
	v.SetDefault("alerts.spend_high_pct", 150.0)
	v.SetDefault("alerts.output_window_days", 30)
	v.SetDefault("alerts.output_base_days", 180)
	v.SetDefault("alerts.output_pct", 80.0)
	v.SetDefault("alerts.output_high_pct", 70.0)
	v.SetDefault("alerts.loss_pct", 5.0)
	v.SetDefault("alerts.loss_high_pct", 10.0)
	v.SetDefault("alerts.success_window_days", 90)
	v.SetDefault("alerts.success_pct", 60.0)
	v.SetDefault("alerts.success_high_pct", 50.0)
	v.SetDefault("alerts.min_sample", 5)
	v.SetDefault("alerts.review_days", 180)
	v.SetDefault("alerts.review_min_animals", 5)
	v.SetDefault("alerts.payroll_days", 45)
	v.SetDefault("alerts.payroll_high_count", 3)
	v.SetDefault("alerts.quality_high", 85.0)
	v.SetDefault("alerts.quality_medium", 70.0)
	v.SetDefault("alerts.quality_coverage_pct", 80.0)
	v.SetDefault("alerts.quality_min_days", 7)

	// Close defaults
	v.SetDefault("close.min_year", 2020)
	v.SetDefault("close.lock_domains", []string{"ventas", "gastos", "nomina", "produccion"})

	// Backup defaults
	v.SetDefault("backup.enabled", false)
	v.SetDefault("backup.endpoint", "http://localhost:9100/backups")
	v.SetDefault("backup.timeout", "10s")
	v.SetDefault("backup.retry_attempts", 3)
	v.SetDefault("backup.retry_delay", "2s")
	v.SetDefault("backup.circuit_breaker.max_failures", 3)
	v.SetDefault("backup.circuit_breaker.timeout", "5m")

	// Scheduler defaults
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.rules_interval", "1h")
	v.SetDefault("scheduler.sweep_interval", "15m")
	v.SetDefault("scheduler.prune_interval", "24h")

	// API defaults
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.read_timeout", "15s")
	v.SetDefault("api.write_timeout", "60s")
	v.SetDefault("api.idle_timeout", "60s")
	v.SetDefault("api.jwt_secret", "change-me-in-production")
	v.SetDefault("api.jwt_duration", "12h")
	v.SetDefault("api.jwt_issuer", "farm-bi")
	v.SetDefault("api.max_body_bytes", 1<<20)
	v.SetDefault("api.cors_origins", []string{"*"})

	// WebSocket defaults
	v.SetDefault("websocket.max_connections", 100)
	v.SetDefault("websocket.ping_interval", "30s")
	v.SetDefault("websocket.write_timeout", "10s")
	v.SetDefault("websocket.pong_timeout", "60s")
	v.SetDefault("websocket.max_message_size", 512)
	v.SetDefault("websocket.read_buffer_size", 1024)
	v.SetDefault("websocket.write_buffer_size", 1024)
	v.SetDefault("websocket.broadcast_buffer", 256)
	v.SetDefault("websocket.client_buffer", 64)

	// Prometheus defaults
	v.SetDefault("prometheus.enabled", true)
	v.SetDefault("prometheus.path", "/metrics")
	v.SetDefault("prometheus.port", 0)

	// Events defaults
	v.SetDefault("events.buffer_size", 100)
}
