// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"math"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"course-admin/backend/internal/session/policy"
	"course-admin/backend/internal/session/service"
)

// Config holds application configuration loaded from the environment. Read once at startup.
type Config struct {
	// GRPCAddr is the address the gRPC server listens on (e.g. :8080).
	GRPCAddr string `mapstructure:"GRPC_ADDR"`
	// RedisURL is the session store (redis:// or rediss://). Empty selects the in-memory store, which is
	// refused in production.
	RedisURL string `mapstructure:"REDIS_URL"`
	// RedisOpTimeout bounds each store call, and so how long validate/refresh can block.
	RedisOpTimeout string `mapstructure:"REDIS_OP_TIMEOUT"`
	// DatabaseURL is the Postgres DSN for the audit trail; empty sends audit events to OTel logs only.
	DatabaseURL string `mapstructure:"DATABASE_URL"`

	// JWTPrivateKey is the PEM private key (RSA, ECDSA or Ed25519) or a path to it.
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	// JWTPublicKey is the matching PEM public key or a path to it.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	JWTIssuer    string `mapstructure:"JWT_ISSUER"`
	JWTAudience  string `mapstructure:"JWT_AUDIENCE"`
	// AccessTokenTTL and RefreshTokenTTL accept seconds ("900") or a Go duration ("15m").
	AccessTokenTTL  string `mapstructure:"ACCESS_TOKEN_TTL"`
	RefreshTokenTTL string `mapstructure:"REFRESH_TOKEN_TTL"`

	MaxSessionsPerUser int  `mapstructure:"MAX_SESSIONS_PER_USER"`
	SessionIPBinding   bool `mapstructure:"SESSION_IP_BINDING"`
	SessionUABinding   bool `mapstructure:"SESSION_UA_BINDING"`
	// SessionPrivateNetworks is a comma-separated CIDR list; empty uses the RFC1918/loopback defaults.
	SessionPrivateNetworks   string `mapstructure:"SESSION_PRIVATE_NETWORKS"`
	SessionStatelessFallback bool   `mapstructure:"SESSION_STATELESS_FALLBACK"`
	// TrustedProxies is a comma-separated CIDR list of load balancers whose x-forwarded-for and x-real-ip
	// headers are believed. Empty trusts no one and binds sessions to the transport peer address.
	TrustedProxies string `mapstructure:"TRUSTED_PROXIES"`

	// AuditBufferSize is the capacity of the async audit queue.
	AuditBufferSize int `mapstructure:"AUDIT_BUFFER_SIZE"`

	OTelEndpoint    string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTelInsecure    bool   `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	OTelServiceName string `mapstructure:"OTEL_SERVICE_NAME"`

	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`

	accessTTL, refreshTTL, opTimeout time.Duration
	trustedProxies                   []netip.Prefix
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("GRPC_ADDR", ":8080")
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("REDIS_OP_TIMEOUT", "2s")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("JWT_PRIVATE_KEY", "")
	v.SetDefault("JWT_PUBLIC_KEY", "")
	v.SetDefault("JWT_ISSUER", "course-admin-auth")
	v.SetDefault("JWT_AUDIENCE", "course-admin-api")
	v.SetDefault("ACCESS_TOKEN_TTL", "900")
	v.SetDefault("REFRESH_TOKEN_TTL", "604800")
	v.SetDefault("MAX_SESSIONS_PER_USER", 5)
	v.SetDefault("SESSION_IP_BINDING", true)
	v.SetDefault("SESSION_UA_BINDING", true)
	v.SetDefault("SESSION_PRIVATE_NETWORKS", "")
	v.SetDefault("SESSION_STATELESS_FALLBACK", true)
	v.SetDefault("TRUSTED_PROXIES", "")
	v.SetDefault("AUDIT_BUFFER_SIZE", 256)
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("OTEL_SERVICE_NAME", "course-admin-sessions")
	v.SetDefault("APP_ENV", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.GRPCAddr == "" {
		return errors.New("config: GRPC_ADDR must be set")
	}
	var err error
	if c.accessTTL, err = ParseSeconds(c.AccessTokenTTL); err != nil {
		return fmt.Errorf("config: ACCESS_TOKEN_TTL: %w", err)
	}
	if c.refreshTTL, err = ParseSeconds(c.RefreshTokenTTL); err != nil {
		return fmt.Errorf("config: REFRESH_TOKEN_TTL: %w", err)
	}
	if c.opTimeout, err = ParseSeconds(c.RedisOpTimeout); err != nil {
		return fmt.Errorf("config: REDIS_OP_TIMEOUT: %w", err)
	}
	if c.MaxSessionsPerUser < 1 {
		return errors.New("config: MAX_SESSIONS_PER_USER must be at least 1")
	}
	if c.AuditBufferSize < 0 {
		return errors.New("config: AUDIT_BUFFER_SIZE must not be negative")
	}
	for _, cidr := range c.PrivateNetworks() {
		if _, err := netip.ParsePrefix(cidr); err != nil {
			return fmt.Errorf("config: SESSION_PRIVATE_NETWORKS: %w", err)
		}
	}
	c.trustedProxies = nil
	for _, cidr := range splitList(c.TrustedProxies) {
		p, err := netip.ParsePrefix(cidr)
		if err != nil {
			return fmt.Errorf("config: TRUSTED_PROXIES: %w", err)
		}
		c.trustedProxies = append(c.trustedProxies, p.Masked())
	}
	if c.RedisURL == "" && c.IsProduction() {
		return errors.New("config: REDIS_URL must be set when APP_ENV=production")
	}
	return nil
}

// ParseSeconds parses a positive duration given as whole seconds ("900") or a Go duration ("15m").
func ParseSeconds(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty duration")
	}
	var d time.Duration
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n > math.MaxInt64/int64(time.Second) {
			return 0, fmt.Errorf("duration %q is too large", s)
		}
		d = time.Duration(n) * time.Second
	} else if d, err = time.ParseDuration(s); err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration must be positive, got %q", s)
	}
	return d, nil
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// AccessTTL is the parsed access token lifetime.
func (c *Config) AccessTTL() time.Duration { return c.accessTTL }

// RefreshTTL is the parsed refresh token lifetime; standard sessions live this long.
func (c *Config) RefreshTTL() time.Duration { return c.refreshTTL }

// OpTimeout is the parsed per-operation store timeout.
func (c *Config) OpTimeout() time.Duration { return c.opTimeout }

// PrivateNetworks returns the configured CIDRs, or policy.DefaultPrivateNetworks when unset.
func (c *Config) PrivateNetworks() []string {
	if strings.TrimSpace(c.SessionPrivateNetworks) == "" {
		return policy.DefaultPrivateNetworks
	}
	return splitList(c.SessionPrivateNetworks)
}

// TrustedProxyPrefixes is the parsed TRUSTED_PROXIES list; nil when no proxy is trusted.
func (c *Config) TrustedProxyPrefixes() []netip.Prefix { return c.trustedProxies }

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Session returns the immutable session manager configuration.
func (c *Config) Session() service.Config {
	return service.Config{
		AccessTokenTTL:     c.accessTTL,
		RefreshTokenTTL:    c.refreshTTL,
		MaxSessionsPerUser: c.MaxSessionsPerUser,
		IPBinding:          c.SessionIPBinding,
		UABinding:          c.SessionUABinding,
		StatelessFallback:  c.SessionStatelessFallback,
	}
}
