// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the HTTP server listens on (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// DatabaseURL is the Postgres DSN. Required by server, worker, migrate, and seed.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// SessionSigningKey is the HMAC secret for session tokens. Required by the server;
	// startup fails without it.
	SessionSigningKey string `mapstructure:"SESSION_SIGNING_KEY"`
	// SessionIssuer is the iss claim on session tokens.
	SessionIssuer string `mapstructure:"SESSION_ISSUER"`
	// SessionAudience is the aud claim on session tokens.
	SessionAudience string `mapstructure:"SESSION_AUDIENCE"`
	// SessionBaseTTL is the base session lifetime before risk/trust scaling (e.g. "24h").
	SessionBaseTTL string `mapstructure:"SESSION_BASE_TTL"`
	// MaxConcurrentSessions caps active sessions per user; oldest are evicted beyond it.
	MaxConcurrentSessions int `mapstructure:"MAX_CONCURRENT_SESSIONS"`
	// AdminAPIToken is the static bearer token for the admin surface. Admin routes are
	// disabled when empty.
	AdminAPIToken string `mapstructure:"ADMIN_API_TOKEN"`

	// RiskDistanceModerateKM and RiskDistanceFarKM are the IP travel-distance
	// thresholds (km) for the moderate and far risk signals.
	RiskDistanceModerateKM float64 `mapstructure:"RISK_DISTANCE_MODERATE_KM"`
	RiskDistanceFarKM      float64 `mapstructure:"RISK_DISTANCE_FAR_KM"`

	// GeoIPBaseURL is the geo-IP lookup API base URL. Lookups degrade to an unknown
	// location when empty or failing.
	GeoIPBaseURL string `mapstructure:"GEOIP_BASE_URL"`
	// GeoIPTimeout is the per-lookup timeout (e.g. "5s").
	GeoIPTimeout string `mapstructure:"GEOIP_TIMEOUT"`

	// AlertCooldown is the minimum gap between two alerts for one (metric, level) (e.g. "30m").
	AlertCooldown string `mapstructure:"ALERT_COOLDOWN"`
	// AlertWebhookURL receives critical alert notifications (best-effort email/webhook relay).
	AlertWebhookURL string `mapstructure:"ALERT_WEBHOOK_URL"`
	// AlertWebhookToken is the Authorization value for the alert webhook.
	AlertWebhookToken string `mapstructure:"ALERT_WEBHOOK_TOKEN"`
	// RedisAddr enables the shared Redis cooldown store when set (host:port).
	// Empty uses the in-process store (single-instance deployments).
	RedisAddr string `mapstructure:"REDIS_ADDR"`
	// RedisPassword is the optional Redis AUTH password.
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`

	// CleanupInterval is the worker's expired-session sweep cadence (e.g. "5m").
	CleanupInterval string `mapstructure:"CLEANUP_INTERVAL"`

	// OTLPEndpoint enables OpenTelemetry export when set (e.g. http://localhost:4317).
	OTLPEndpoint string `mapstructure:"OTLP_ENDPOINT"`
	// OTLPInsecure forces plaintext OTLP even for https endpoints.
	OTLPInsecure bool `mapstructure:"OTLP_INSECURE"`

	// MetricsKafkaBrokers is a comma-separated broker list; metric samples flow through
	// Kafka to the worker when set.
	MetricsKafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// MetricsKafkaTopic is the metric-sample topic (default sessionguard-metrics).
	MetricsKafkaTopic string `mapstructure:"METRICS_KAFKA_TOPIC"`
	// KafkaGroupID is the consumer group ID for the worker.
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`
	// LokiURL is where the worker pushes fired alerts (e.g. http://localhost:3100).
	LokiURL string `mapstructure:"LOKI_URL"`

	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("SESSION_SIGNING_KEY", "")
	v.SetDefault("SESSION_ISSUER", "sessionguard")
	v.SetDefault("SESSION_AUDIENCE", "sessionguard-api")
	v.SetDefault("SESSION_BASE_TTL", "24h")
	v.SetDefault("MAX_CONCURRENT_SESSIONS", 5)
	v.SetDefault("ADMIN_API_TOKEN", "")
	v.SetDefault("RISK_DISTANCE_MODERATE_KM", 100)
	v.SetDefault("RISK_DISTANCE_FAR_KM", 1000)
	v.SetDefault("GEOIP_BASE_URL", "")
	v.SetDefault("GEOIP_TIMEOUT", "5s")
	v.SetDefault("ALERT_COOLDOWN", "30m")
	v.SetDefault("ALERT_WEBHOOK_URL", "")
	v.SetDefault("ALERT_WEBHOOK_TOKEN", "")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("CLEANUP_INTERVAL", "5m")
	v.SetDefault("OTLP_ENDPOINT", "")
	v.SetDefault("OTLP_INSECURE", false)
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("METRICS_KAFKA_TOPIC", "sessionguard-metrics")
	v.SetDefault("KAFKA_GROUP_ID", "sessionguard-alert-worker")
	v.SetDefault("LOKI_URL", "")
	v.SetDefault("APP_ENV", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}
	if cfg.MaxConcurrentSessions < 1 {
		return nil, errors.New("config: MAX_CONCURRENT_SESSIONS must be at least 1")
	}
	if cfg.RiskDistanceModerateKM <= 0 || cfg.RiskDistanceFarKM <= cfg.RiskDistanceModerateKM {
		return nil, errors.New("config: RISK_DISTANCE_FAR_KM must be greater than RISK_DISTANCE_MODERATE_KM, both positive")
	}

	return &cfg, nil
}

// ValidateServing checks fields only the serving binary needs. Missing
// SESSION_SIGNING_KEY or DATABASE_URL is fatal at startup, not at request time.
func (c *Config) ValidateServing() error {
	if c.DatabaseURL == "" {
		return errors.New("config: DATABASE_URL must be set")
	}
	if c.SessionSigningKey == "" {
		return errors.New("config: SESSION_SIGNING_KEY must be set")
	}
	return nil
}

// BaseTTL parses SessionBaseTTL. Returns 24h if unset or invalid.
func (c *Config) BaseTTL() time.Duration {
	d, err := time.ParseDuration(c.SessionBaseTTL)
	if err != nil || d <= 0 {
		return 24 * time.Hour
	}
	return d
}

// Cooldown parses AlertCooldown. Returns 30m if unset or invalid.
func (c *Config) Cooldown() time.Duration {
	d, err := time.ParseDuration(c.AlertCooldown)
	if err != nil || d <= 0 {
		return 30 * time.Minute
	}
	return d
}

// GeoTimeout parses GeoIPTimeout. Returns 5s if unset or invalid.
func (c *Config) GeoTimeout() time.Duration {
	d, err := time.ParseDuration(c.GeoIPTimeout)
	if err != nil || d <= 0 {
		return 5 * time.Second
	}
	return d
}

// CleanupEvery parses CleanupInterval. Returns 5m if unset or invalid.
func (c *Config) CleanupEvery() time.Duration {
	d, err := time.ParseDuration(c.CleanupInterval)
	if err != nil || d <= 0 {
		return 5 * time.Minute
	}
	return d
}

// MetricsKafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// Non-empty means metric sampling through Kafka is enabled.
func (c *Config) MetricsKafkaBrokersList() []string {
	if c == nil || c.MetricsKafkaBrokers == "" {
		return nil
	}
	parts := strings.Split(c.MetricsKafkaBrokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
