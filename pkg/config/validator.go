package config

import (
	"errors"
	"fmt"
)

func (c *Config) Validate() error {
	var errs []error

	// App validation
	if c.App.Name == "" {
		errs = append(errs, errors.New("app.name is required"))
	}

	validModes := map[string]bool{"development": true, "production": true, "test": true}
	if !validModes[c.App.Mode] {
		errs = append(errs, fmt.Errorf("app.mode must be one of: development, production, test"))
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.App.LogLevel] {
		errs = append(errs, fmt.Errorf("app.log_level must be one of: debug, info, warn, error"))
	}

	// Database validation
	switch c.Database.Driver {
	case "postgres":
		if c.Database.Host == "" {
			errs = append(errs, errors.New("database.host is required"))
		}
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			errs = append(errs, errors.New("database.port must be between 1 and 65535"))
		}
		if c.Database.Name == "" {
			errs = append(errs, errors.New("database.name is required"))
		}
	case "sqlite":
		if c.Database.Path == "" {
			errs = append(errs, errors.New("database.path is required for sqlite"))
		}
	default:
		errs = append(errs, errors.New("database.driver must be one of: postgres, sqlite"))
	}
	if c.Database.MaxConnections <= 0 {
		errs = append(errs, errors.New("database.max_connections must be positive"))
	}

	// Cache validation
	if c.Cache.Backend != "sql" && c.Cache.Backend != "redis" {
		errs = append(errs, errors.New("cache.backend must be one of: sql, redis"))
	}
	if c.Cache.Backend == "redis" && c.Cache.Redis.Addr == "" {
		errs = append(errs, errors.New("cache.redis.addr is required for the redis backend"))
	}
	if c.Cache.DefaultTTL <= 0 {
		errs = append(errs, errors.New("cache.default_ttl must be positive"))
	}

	// Snapshot validation
	if c.Snapshot.RetentionMonths <= 0 {
		errs = append(errs, errors.New("snapshot.retention_months must be positive"))
	}
	if c.Snapshot.AlertCap <= 0 {
		errs = append(errs, errors.New("snapshot.alert_cap must be positive"))
	}

	// Detector validation
	if c.Anomaly.Window < 2 {
		errs = append(errs, errors.New("anomaly.window must be at least 2"))
	}
	if c.Anomaly.MinValues < 2 || c.Anomaly.MinValues > c.Anomaly.Window {
		errs = append(errs, errors.New("anomaly.min_values must be between 2 and anomaly.window"))
	}
	if c.Anomaly.HighScore <= c.Anomaly.MediumScore {
		errs = append(errs, errors.New("anomaly.high_score must be greater than medium_score"))
	}
	if c.Pattern.Window <= 0 {
		errs = append(errs, errors.New("pattern.window must be positive"))
	}
	if c.Pattern.SeasonalHigh <= c.Pattern.SeasonalMedium {
		errs = append(errs, errors.New("pattern.seasonal_high must be greater than seasonal_medium"))
	}
	if c.Pattern.RampLength <= 0 || c.Pattern.RampLength >= c.Pattern.RampValues {
		errs = append(errs, errors.New("pattern.ramp_length must be positive and less than ramp_values"))
	}

	// Alert rule validation
	if c.Alerts.DedupWindow <= 0 {
		errs = append(errs, errors.New("alerts.dedup_window must be positive"))
	}
	if c.Alerts.SpendHighPct < c.Alerts.SpendPct {
		errs = append(errs, errors.New("alerts.spend_high_pct must be >= spend_pct"))
	}
	if c.Alerts.OutputHighPct > c.Alerts.OutputPct {
		errs = append(errs, errors.New("alerts.output_high_pct must be <= output_pct"))
	}
	if c.Alerts.OutputBaseDays <= c.Alerts.OutputWindowDays {
		errs = append(errs, errors.New("alerts.output_base_days must be greater than output_window_days"))
	}
	if c.Alerts.LossHighPct < c.Alerts.LossPct {
		errs = append(errs, errors.New("alerts.loss_high_pct must be >= loss_pct"))
	}
	if c.Alerts.SuccessHighPct > c.Alerts.SuccessPct {
		errs = append(errs, errors.New("alerts.success_high_pct must be <= success_pct"))
	}
	if c.Alerts.QualityMedium > c.Alerts.QualityHigh {
		errs = append(errs, errors.New("alerts.quality_medium must be <= quality_high"))
	}

	// Close validation
	if len(c.Close.LockDomains) == 0 {
		errs = append(errs, errors.New("close.lock_domains must not be empty"))
	}

	// Backup validation
	if c.Backup.Enabled && c.Backup.Endpoint == "" {
		errs = append(errs, errors.New("backup.endpoint is required when backups are enabled"))
	}

	// API validation
	if c.API.Port <= 0 || c.API.Port > 65535 {
		errs = append(errs, errors.New("api.port must be between 1 and 65535"))
	}
	if c.App.Mode == "production" && c.API.JWTSecret == "change-me-in-production" {
		errs = append(errs, errors.New("api.jwt_secret must be changed in production"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed: %v", errs)
	}

	return nil
}
