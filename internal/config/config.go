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
	// HTTPAddr is the address the HTTP server listens on (e.g. :8000).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// DatabaseURL is the Postgres DSN; empty selects the in-memory user store.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// MigrateOnStart applies embedded migrations before serving when DatabaseURL is set.
	MigrateOnStart bool `mapstructure:"MIGRATE_ON_START"`

	// Auth0Domain is the identity provider domain (e.g. "tenant.eu.auth0.com") or a full base URL.
	Auth0Domain string `mapstructure:"AUTH0_DOMAIN"`
	// Auth0Audience is the API identifier expected in the aud claim of access tokens.
	Auth0Audience string `mapstructure:"AUTH0_AUDIENCE"`
	// Auth0ClientID is the public client id used by the login client (cmd/client).
	Auth0ClientID string `mapstructure:"AUTH0_CLIENT_ID"`
	// Auth0RedirectURI is where the provider sends the authorization code back to.
	Auth0RedirectURI string `mapstructure:"AUTH0_REDIRECT_URI"`
	// FrontendURL is the single origin allowed by CORS.
	FrontendURL string `mapstructure:"FRONTEND_URL"`
	// StaticDir holds the built single-page app; index.html is the fallback for unknown routes.
	StaticDir string `mapstructure:"STATIC_DIR"`

	// JWKSMinRefreshInterval is the minimum time between key set fetches for the same unknown kid.
	JWKSMinRefreshInterval string `mapstructure:"JWKS_MIN_REFRESH_INTERVAL"`
	// JWKSRequestsPerMinute caps key set fetches across all kids.
	JWKSRequestsPerMinute int `mapstructure:"JWKS_REQUESTS_PER_MINUTE"`
	// JWTClockSkew is the leeway applied to exp/nbf checks (default 0s).
	JWTClockSkew string `mapstructure:"JWT_CLOCK_SKEW"`
	// UserInfoTimeout bounds the outbound /userinfo call.
	UserInfoTimeout string `mapstructure:"USERINFO_TIMEOUT"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `mapstructure:"LOG_LEVEL"`
	// Env is the application environment (e.g. "development", "production"); production switches logs to JSON.
	Env string `mapstructure:"APP_ENV"`

	// OTLPEndpoint is the OpenTelemetry collector endpoint; empty disables export.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	// OTLPInsecure forces a plaintext connection to the collector.
	OTLPInsecure bool `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`

	// KafkaBrokers is a comma-separated list of Kafka broker addresses; when set identity events go to Kafka.
	KafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// EventsKafkaTopic is the Kafka topic for identity events.
	EventsKafkaTopic string `mapstructure:"EVENTS_KAFKA_TOPIC"`
	// Worker-only: KafkaGroupID is the consumer group ID for the events worker.
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`
	// Worker-only: LokiURL is where the events worker pushes log lines (e.g. http://localhost:3100).
	LokiURL string `mapstructure:"LOKI_URL"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8000")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("MIGRATE_ON_START", false)
	v.SetDefault("AUTH0_DOMAIN", "")
	v.SetDefault("AUTH0_AUDIENCE", "")
	v.SetDefault("AUTH0_CLIENT_ID", "")
	v.SetDefault("AUTH0_REDIRECT_URI", "http://localhost:8000")
	v.SetDefault("FRONTEND_URL", "http://localhost:4200")
	v.SetDefault("STATIC_DIR", "public")
	v.SetDefault("JWKS_MIN_REFRESH_INTERVAL", "12s")
	v.SetDefault("JWKS_REQUESTS_PER_MINUTE", 5)
	v.SetDefault("JWT_CLOCK_SKEW", "0s")
	v.SetDefault("USERINFO_TIMEOUT", "10s")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("EVENTS_KAFKA_TOPIC", "identity-events")
	v.SetDefault("KAFKA_GROUP_ID", "identity-events-worker")
	v.SetDefault("LOKI_URL", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}
	cfg.Auth0Domain = strings.TrimSpace(cfg.Auth0Domain)
	if cfg.Auth0Domain == "" {
		return nil, errors.New("config: AUTH0_DOMAIN must be set")
	}
	if strings.TrimSpace(cfg.Auth0Audience) == "" {
		return nil, errors.New("config: AUTH0_AUDIENCE must be set")
	}
	if cfg.JWKSRequestsPerMinute <= 0 {
		cfg.JWKSRequestsPerMinute = 5
	}
	return &cfg, nil
}

// IssuerURL returns the expected iss claim: "https://{domain}/". A domain that already carries a
// scheme (e.g. a local test server) is kept as is. Always ends with a slash.
func (c *Config) IssuerURL() string {
	d := strings.TrimRight(c.Auth0Domain, "/")
	if !strings.Contains(d, "://") {
		d = "https://" + d
	}
	return d + "/"
}

// JWKSURL returns the provider's published key set URL.
func (c *Config) JWKSURL() string {
	return c.IssuerURL() + ".well-known/jwks.json"
}

// UserInfoURL returns the provider's user-info endpoint.
func (c *Config) UserInfoURL() string {
	return c.IssuerURL() + "userinfo"
}

// MinRefreshInterval parses JWKSMinRefreshInterval. Returns 12s if unset or invalid.
func (c *Config) MinRefreshInterval() time.Duration {
	return parseDuration(c.JWKSMinRefreshInterval, 12*time.Second, false)
}

// ClockSkew parses JWTClockSkew. Returns 0 if unset or invalid.
func (c *Config) ClockSkew() time.Duration {
	return parseDuration(c.JWTClockSkew, 0, true)
}

// UserInfoTimeoutDuration parses UserInfoTimeout. Returns 10s if unset or invalid.
func (c *Config) UserInfoTimeoutDuration() time.Duration {
	return parseDuration(c.UserInfoTimeout, 10*time.Second, false)
}

// KafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// Used to decide if Kafka event delivery is enabled (non-empty list) and to create the producer.
func (c *Config) KafkaBrokersList() []string {
	if c == nil || c.KafkaBrokers == "" {
		return nil
	}
	parts := strings.Split(c.KafkaBrokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

func parseDuration(s string, fallback time.Duration, allowZero bool) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil || d < 0 || (d == 0 && !allowZero) {
		return fallback
	}
	return d
}
