package config

import (
	"fmt"
	"time"
)

type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Snapshot   SnapshotConfig   `mapstructure:"snapshot"`
	Anomaly    AnomalyConfig    `mapstructure:"anomaly"`
	Pattern    PatternConfig    `mapstructure:"pattern"`
	Alerts     AlertsConfig     `mapstructure:"alerts"`
	Close      CloseConfig      `mapstructure:"close"`
	Backup     BackupConfig     `mapstructure:"backup"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	API        APIConfig        `mapstructure:"api"`
	WebSocket  WebSocketConfig  `mapstructure:"websocket"`
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
	Events     EventsConfig     `mapstructure:"events"`
}

type AppConfig struct {
	Name            string        `mapstructure:"name"`
	Mode            string        `mapstructure:"mode"`
	LogLevel        string        `mapstructure:"log_level"`
	LogFile         string        `mapstructure:"log_file"`
	LogMaxSizeMB    int           `mapstructure:"log_max_size_mb"`
	LogMaxBackups   int           `mapstructure:"log_max_backups"`
	LogMaxAgeDays   int           `mapstructure:"log_max_age_days"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Driver           string        `mapstructure:"driver"`
	Path             string        `mapstructure:"path"`
	Host             string        `mapstructure:"host"`
	Port             int           `mapstructure:"port"`
	Name             string        `mapstructure:"name"`
	User             string        `mapstructure:"user"`
	Password         string        `mapstructure:"password"`
	MaxConnections   int           `mapstructure:"max_connections"`
	SSLMode          string        `mapstructure:"ssl_mode"`
	ConnMaxLifetime  time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime  time.Duration `mapstructure:"conn_max_idle_time"`
	PingTimeout      time.Duration `mapstructure:"ping_timeout"`
	MigrationTimeout time.Duration `mapstructure:"migration_timeout"`
}

func (d DatabaseConfig) DSN() string {
	if d.Driver == "sqlite" {
		return d.Path
	}
	sslMode := d.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, sslMode,
	)
}

type CacheConfig struct {
	Backend       string        `mapstructure:"backend"`
	DefaultTTL    time.Duration `mapstructure:"default_ttl"`
	ComparisonTTL time.Duration `mapstructure:"comparison_ttl"`
	KPITag        string        `mapstructure:"kpi_tag"`
	Redis         RedisConfig   `mapstructure:"redis"`
}

type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
	PoolSize  int    `mapstructure:"pool_size"`
}

type SnapshotConfig struct {
	RetentionMonths int           `mapstructure:"retention_months"`
	AlertLookback   time.Duration `mapstructure:"alert_lookback"`
	AlertCap        int           `mapstructure:"alert_cap"`
}

type AnomalyConfig struct {
	Window      int           `mapstructure:"window"`
	MinValues   int           `mapstructure:"min_values"`
	Metrics     []string      `mapstructure:"metrics"`
	ZWeight     float64       `mapstructure:"z_weight"`
	PctWeight   float64       `mapstructure:"pct_weight"`
	MediumScore int           `mapstructure:"medium_score"`
	HighScore   int           `mapstructure:"high_score"`
	CacheTTL    time.Duration `mapstructure:"cache_ttl"`
}

type PatternConfig struct {
	Window         int           `mapstructure:"window"`
	Metrics        []string      `mapstructure:"metrics"`
	CostMetrics    []string      `mapstructure:"cost_metrics"`
	SeasonalMedium float64       `mapstructure:"seasonal_medium"`
	SeasonalHigh   float64       `mapstructure:"seasonal_high"`
	RampValues     int           `mapstructure:"ramp_values"`
	RampMinValues  int           `mapstructure:"ramp_min_values"`
	RampLength     int           `mapstructure:"ramp_length"`
	CacheTTL       time.Duration `mapstructure:"cache_ttl"`
}

type AlertsConfig struct {
	DedupWindow        time.Duration `mapstructure:"dedup_window"`
	AverageMonths      int           `mapstructure:"average_months"`
	SpendPct           float64       `mapstructure:"spend_pct"`
	SpendHighPct       float64       `mapstructure:"spend_high_pct"`
	OutputWindowDays   int           `mapstructure:"output_window_days"`
	OutputBaseDays     int           `mapstructure:"output_base_days"`
	OutputPct          float64       `mapstructure:"output_pct"`
	OutputHighPct      float64       `mapstructure:"output_high_pct"`
	LossPct            float64       `mapstructure:"loss_pct"`
	LossHighPct        float64       `mapstructure:"loss_high_pct"`
	SuccessWindowDays  int           `mapstructure:"success_window_days"`
	SuccessPct         float64       `mapstructure:"success_pct"`
	SuccessHighPct     float64       `mapstructure:"success_high_pct"`
	MinSample          int           `mapstructure:"min_sample"`
	ReviewDays         int           `mapstructure:"review_days"`
	ReviewMinAnimals   int           `mapstructure:"review_min_animals"`
	PayrollDays        int           `mapstructure:"payroll_days"`
	PayrollHighCount   int           `mapstructure:"payroll_high_count"`
	QualityHigh        float64       `mapstructure:"quality_high"`
	QualityMedium      float64       `mapstructure:"quality_medium"`
	QualityCoveragePct float64       `mapstructure:"quality_coverage_pct"`
	QualityMinDays     int           `mapstructure:"quality_min_days"`
}

type CloseConfig struct {
	MinYear     int      `mapstructure:"min_year"`
	LockDomains []string `mapstructure:"lock_domains"`
}

type BackupConfig struct {
	Enabled        bool                 `mapstructure:"enabled"`
	Endpoint       string               `mapstructure:"endpoint"`
	Timeout        time.Duration        `mapstructure:"timeout"`
	RetryAttempts  int                  `mapstructure:"retry_attempts"`
	RetryDelay     time.Duration        `mapstructure:"retry_delay"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
}

type CircuitBreakerConfig struct {
	MaxFailures int           `mapstructure:"max_failures"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type SchedulerConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	RulesInterval time.Duration `mapstructure:"rules_interval"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	PruneInterval time.Duration `mapstructure:"prune_interval"`
}

type APIConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	JWTSecret    string        `mapstructure:"jwt_secret"`
	JWTDuration  time.Duration `mapstructure:"jwt_duration"`
	JWTIssuer    string        `mapstructure:"jwt_issuer"`
	MaxBodyBytes int64         `mapstructure:"max_body_bytes"`
	CORSOrigins  []string      `mapstructure:"cors_origins"`
}

type WebSocketConfig struct {
	MaxConnections  int           `mapstructure:"max_connections"`
	PingInterval    time.Duration `mapstructure:"ping_interval"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	PongTimeout     time.Duration `mapstructure:"pong_timeout"`
	MaxMessageSize  int64         `mapstructure:"max_message_size"`
	ReadBufferSize  int           `mapstructure:"read_buffer_size"`
	WriteBufferSize int           `mapstructure:"write_buffer_size"`
	BroadcastBuffer int           `mapstructure:"broadcast_buffer"`
	ClientBuffer    int           `mapstructure:"client_buffer"`
}

type PrometheusConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
	// Port serves metrics on a separate listener; 0 mounts them on the API.
	Port    int    `mapstructure:"port"`
}

type EventsConfig struct {
	BufferSize int `mapstructure:"buffer_size"`
}
