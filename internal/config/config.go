// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"net/netip"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// MinPBKDF2Iterations is the lowest iteration count accepted outside of tests.
const MinPBKDF2Iterations = 100000

// Config holds application configuration loaded from the environment.
// It is built once at startup and passed explicitly to the components that need it.
type Config struct {
	// HTTPAddr is the address the HTTP API listens on (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// GRPCAddr is the address the gRPC health service listens on. Empty disables it.
	GRPCAddr string `mapstructure:"GRPC_ADDR"`
	// DatabaseURL is the Postgres DSN.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// Env is the application environment (e.g. "development", "production"). Production enables Secure cookies.
	Env string `mapstructure:"APP_ENV"`

	// JWTPrivateKey is the PEM-encoded private key (RSA, ECDSA P-256 or Ed25519) or path to file.
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	// JWTPublicKey is the PEM-encoded public key or path to file; used with JWT_PRIVATE_KEY.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	// JWTIssuer is the iss claim on session and master-verified tokens.
	JWTIssuer string `mapstructure:"JWT_ISSUER"`
	// JWTAudience is the aud claim on session and master-verified tokens.
	JWTAudience string `mapstructure:"JWT_AUDIENCE"`
	// SessionTTLRaw is the session token lifetime (e.g. "24h").
	SessionTTLRaw string `mapstructure:"SESSION_TTL"`

	// RPID is the WebAuthn relying-party id (a registrable domain, e.g. "jobtrackr.app").
	RPID string `mapstructure:"WEBAUTHN_RP_ID"`
	// RPName is the relying-party display name shown by authenticators.
	RPName string `mapstructure:"WEBAUTHN_RP_NAME"`
	// RPOrigin is the exact origin (scheme://host[:port]) accepted in client data.
	RPOrigin string `mapstructure:"WEBAUTHN_RP_ORIGIN"`
	// WebAuthnTimeoutRaw is the ceremony timeout advertised to clients (e.g. "60s").
	WebAuthnTimeoutRaw string `mapstructure:"WEBAUTHN_TIMEOUT"`
	// RequireUserVerification makes the authenticator policy reject assertions without the UV flag.
	RequireUserVerification bool `mapstructure:"WEBAUTHN_REQUIRE_USER_VERIFICATION"`

	// ChallengeTTLRaw is the registration/authentication challenge lifetime (e.g. "5m").
	ChallengeTTLRaw string `mapstructure:"CHALLENGE_TTL"`
	// MasterVerifiedTTLRaw is the master-password-verified grace window (e.g. "60m").
	MasterVerifiedTTLRaw string `mapstructure:"MASTER_VERIFIED_TTL"`
	// ChallengeStore selects the challenge backend: postgres, redis or memory.
	ChallengeStore string `mapstructure:"CHALLENGE_STORE"`
	// RedisURL is the redis:// URL used when ChallengeStore is redis.
	RedisURL string `mapstructure:"REDIS_URL"`

	// PBKDF2Iterations is the vault KDF iteration count.
	PBKDF2Iterations int `mapstructure:"PBKDF2_ITERATIONS"`
	// KDFConcurrency bounds concurrent PBKDF2 computations; 0 means GOMAXPROCS.
	KDFConcurrency int `mapstructure:"KDF_CONCURRENCY"`

	// CORSAllowedOrigins is a comma-separated list of origins allowed by CORS. Empty disables CORS.
	CORSAllowedOrigins string `mapstructure:"CORS_ALLOWED_ORIGINS"`
	// TrustedProxiesRaw is a comma-separated list of proxy IPs or CIDRs whose X-Forwarded-For is honoured.
	// Empty means the remote address is always the client.
	TrustedProxiesRaw string `mapstructure:"TRUSTED_PROXIES"`
	// RateLimitRPM is the per-client requests-per-minute limit on verify endpoints. 0 disables.
	RateLimitRPM int `mapstructure:"RATE_LIMIT_RPM"`

	// OTLPEndpoint is the OTLP gRPC collector endpoint. Empty uses no-op providers.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	// OTLPInsecure forces plaintext OTLP even for https endpoints.
	OTLPInsecure bool `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	// ServiceName is the OTel resource service name.
	ServiceName string `mapstructure:"OTEL_SERVICE_NAME"`
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
	v.SetDefault("GRPC_ADDR", ":9090")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("APP_ENV", "")
	v.SetDefault("JWT_PRIVATE_KEY", "")
	v.SetDefault("JWT_PUBLIC_KEY", "")
	v.SetDefault("JWT_ISSUER", "jobtrackr-auth")
	v.SetDefault("JWT_AUDIENCE", "jobtrackr-api")
	v.SetDefault("SESSION_TTL", "24h")
	v.SetDefault("WEBAUTHN_RP_ID", "localhost")
	v.SetDefault("WEBAUTHN_RP_NAME", "Job Tracker")
	v.SetDefault("WEBAUTHN_RP_ORIGIN", "http://localhost:3000")
	v.SetDefault("WEBAUTHN_TIMEOUT", "60s")
	v.SetDefault("WEBAUTHN_REQUIRE_USER_VERIFICATION", false)
	v.SetDefault("CHALLENGE_TTL", "5m")
	v.SetDefault("MASTER_VERIFIED_TTL", "60m")
	v.SetDefault("CHALLENGE_STORE", "postgres")
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("PBKDF2_ITERATIONS", MinPBKDF2Iterations)
	v.SetDefault("KDF_CONCURRENCY", 0)
	v.SetDefault("CORS_ALLOWED_ORIGINS", "")
	v.SetDefault("RATE_LIMIT_RPM", 30)
	v.SetDefault("TRUSTED_PROXIES", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("OTEL_SERVICE_NAME", "jobtrackr-auth")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field combinations that Load cannot default away.
func (c *Config) Validate() error {
	if c.HTTPAddr == "" {
		return errors.New("config: HTTP_ADDR must be set")
	}
	if c.RPID == "" {
		return errors.New("config: WEBAUTHN_RP_ID must be set")
	}
	if err := validateOrigin(c.RPOrigin); err != nil {
		return err
	}
	switch c.ChallengeStore {
	case "postgres", "memory":
	case "redis":
		if c.RedisURL == "" {
			return errors.New("config: REDIS_URL must be set when CHALLENGE_STORE=redis")
		}
	default:
		return errors.New("config: CHALLENGE_STORE must be postgres, redis or memory")
	}
	if c.ChallengeStore == "memory" && c.IsProduction() {
		return errors.New("config: CHALLENGE_STORE=memory must not be used when APP_ENV=production")
	}
	if c.PBKDF2Iterations == 0 {
		c.PBKDF2Iterations = MinPBKDF2Iterations
	}
	if c.PBKDF2Iterations < MinPBKDF2Iterations {
		return errors.New("config: PBKDF2_ITERATIONS must be at least 100000")
	}
	if c.KDFConcurrency < 0 {
		return errors.New("config: KDF_CONCURRENCY must not be negative")
	}
	if c.RateLimitRPM < 0 {
		return errors.New("config: RATE_LIMIT_RPM must not be negative")
	}
	if _, err := c.TrustedProxies(); err != nil {
		return err
	}
	return nil
}

func validateOrigin(origin string) error {
	if origin == "" {
		return errors.New("config: WEBAUTHN_RP_ORIGIN must be set")
	}
	u, err := url.Parse(origin)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return errors.New("config: WEBAUTHN_RP_ORIGIN must be scheme://host[:port]")
	}
	if u.Path != "" && u.Path != "/" {
		return errors.New("config: WEBAUTHN_RP_ORIGIN must not contain a path")
	}
	return nil
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return c != nil && strings.EqualFold(c.Env, "production")
}

// SessionTTL parses SessionTTLRaw. Returns 24h if unset or invalid.
func (c *Config) SessionTTL() time.Duration {
	return parseDurationOr(c.SessionTTLRaw, 24*time.Hour)
}

// WebAuthnTimeout parses WebAuthnTimeoutRaw. Returns 60s if unset or invalid.
func (c *Config) WebAuthnTimeout() time.Duration {
	return parseDurationOr(c.WebAuthnTimeoutRaw, 60*time.Second)
}

// ChallengeTTL parses ChallengeTTLRaw. Returns 5m if unset or invalid.
func (c *Config) ChallengeTTL() time.Duration {
	return parseDurationOr(c.ChallengeTTLRaw, 5*time.Minute)
}

// MasterVerifiedTTL parses MasterVerifiedTTLRaw. Returns 60m if unset or invalid.
func (c *Config) MasterVerifiedTTL() time.Duration {
	return parseDurationOr(c.MasterVerifiedTTLRaw, 60*time.Minute)
}

// CORSOrigins returns allowed CORS origins from the comma-separated config.
func (c *Config) CORSOrigins() []string {
	if c == nil || c.CORSAllowedOrigins == "" {
		return nil
	}
	parts := strings.Split(c.CORSAllowedOrigins, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// TrustedProxies parses TrustedProxiesRaw. A bare IP is a single-address prefix.
func (c *Config) TrustedProxies() ([]netip.Prefix, error) {
	if c == nil {
		return nil, nil
	}
	var out []netip.Prefix
	for _, part := range strings.Split(c.TrustedProxiesRaw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if strings.Contains(part, "/") {
			p, err := netip.ParsePrefix(part)
			if err != nil {
				return nil, fmt.Errorf("config: TRUSTED_PROXIES entry %q is not a CIDR", part)
			}
			out = append(out, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(part)
		if err != nil {
			return nil, fmt.Errorf("config: TRUSTED_PROXIES entry %q is not an IP", part)
		}
		addr = addr.Unmap()
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out, nil
}

func parseDurationOr(raw string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
