package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
)

// Environment is the deployment environment, gating stricter validation.
type Environment string

const (
	EnvDev  Environment = "dev"
	EnvProd Environment = "prod"
)

// SwaggerMode controls exposure of API documentation.
type SwaggerMode string

const (
	SwaggerPublic        SwaggerMode = "public"
	SwaggerAuthenticated SwaggerMode = "authenticated"
	SwaggerDisabled      SwaggerMode = "disabled"
)

// Config holds every recognized configuration key, loaded from the
// process environment.
type Config struct {
	Environment    Environment `env:"ENVIRONMENT" envDefault:"dev"`
	ServiceName    string      `env:"SERVICE_NAME" envDefault:"identity"`
	ServiceVersion string      `env:"SERVICE_VERSION" envDefault:"dev"`
	LogLevel       string      `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat      string      `env:"LOG_FORMAT" envDefault:"json"`
	Host           string      `env:"HOST" envDefault:"0.0.0.0"`
	Port           int         `env:"PORT" envDefault:"8080"`

	DatabaseURL string `env:"DATABASE_URL,required"`
	RedisURL    string `env:"REDIS_URL,required"`

	OTLPEndpoint string `env:"OTLP_ENDPOINT"`

	MigrationsDir string `env:"MIGRATIONS_DIR" envDefault:"migrations"`

	JWTPrivateKeyPath    string `env:"JWT_PRIVATE_KEY_PATH,required"`
	JWTPublicKeyPath     string `env:"JWT_PUBLIC_KEY_PATH,required"`
	JWTIssuer            string `env:"JWT_ISSUER" envDefault:"identity-service"`
	JWTAudience          string `env:"JWT_AUDIENCE" envDefault:"identity-service"`
	JWTAccessExpiryMin   int64  `env:"JWT_ACCESS_EXPIRY_MIN" envDefault:"15"`
	JWTRefreshExpiryDays int64  `env:"JWT_REFRESH_EXPIRY_DAYS" envDefault:"30"`

	GoogleClientID     string `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `env:"GOOGLE_CLIENT_SECRET"`
	GoogleRedirectURI  string `env:"GOOGLE_REDIRECT_URI"`
	// SocialTenantSlug is the tenant that first-time social-login users
	// are provisioned into.
	SocialTenantSlug string `env:"SOCIAL_LOGIN_TENANT_SLUG"`

	SecurityAllowedOrigins        []string `env:"SECURITY_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
	SecurityRequireSignatures     bool     `env:"SECURITY_REQUIRE_SIGNATURES" envDefault:"false"`
	SecurityTrustInternalServices bool     `env:"SECURITY_TRUST_INTERNAL_SERVICES" envDefault:"false"`
	SecurityAdminAPIKey           string   `env:"SECURITY_ADMIN_API_KEY"`
	// SignatureExemptPrefixes is the set of path prefixes the signature
	// middleware always passes through.
	SignatureExemptPrefixes []string `env:"SECURITY_SIGNATURE_EXEMPT_PREFIXES" envDefault:"/healthz,/readyz,/metrics,/.well-known/jwks.json,/v1/auth/verify,/v1/auth/oauth" envSeparator:","`

	SwaggerEnabled SwaggerMode `env:"SWAGGER_ENABLED" envDefault:"disabled"`

	RateLimitLoginAttempts          int `env:"RATE_LIMIT_LOGIN_ATTEMPTS" envDefault:"5"`
	RateLimitLoginWindowSeconds     int `env:"RATE_LIMIT_LOGIN_WINDOW_SECONDS" envDefault:"900"`
	RateLimitRegisterAttempts       int `env:"RATE_LIMIT_REGISTER_ATTEMPTS" envDefault:"3"`
	RateLimitRegisterWindowSeconds  int `env:"RATE_LIMIT_REGISTER_WINDOW_SECONDS" envDefault:"3600"`
	RateLimitPasswordResetAttempts  int `env:"RATE_LIMIT_PASSWORD_RESET_ATTEMPTS" envDefault:"3"`
	RateLimitPasswordResetWindowSec int `env:"RATE_LIMIT_PASSWORD_RESET_WINDOW_SECONDS" envDefault:"3600"`

	AdminBootstrapAPIKey string `env:"ADMIN_BOOTSTRAP_API_KEY"`
}

// Load reads configuration from environment variables and validates it.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config from env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate enforces boot-time invariants: positive port and JWT expiries,
// no wildcard CORS origin in prod, social login configured all-or-nothing.
// Public swagger in prod is a warning, not a boot failure — callers should
// log cfg.SwaggerWarning() themselves.
func (c *Config) Validate() error {
	if c.Port <= 0 {
		return fmt.Errorf("config: port must be positive, got %d", c.Port)
	}
	if c.JWTAccessExpiryMin <= 0 {
		return fmt.Errorf("config: jwt access expiry must be positive")
	}
	if c.JWTRefreshExpiryDays <= 0 {
		return fmt.Errorf("config: jwt refresh expiry must be positive")
	}
	if c.Environment == EnvProd {
		for _, origin := range c.SecurityAllowedOrigins {
			if origin == "*" {
				return fmt.Errorf("config: wildcard CORS origin is forbidden in prod")
			}
		}
	}
	if (c.GoogleClientID == "") != (c.GoogleClientSecret == "") {
		return fmt.Errorf("config: google client id and secret must be set together")
	}
	return nil
}

// SwaggerWarning returns a non-empty warning string if swagger is exposed
// publicly in prod. Deliberately a warning, not a boot failure.
func (c *Config) SwaggerWarning() string {
	if c.Environment == EnvProd && c.SwaggerEnabled == SwaggerPublic {
		return "swagger documentation is publicly exposed in a production environment"
	}
	return ""
}

// SocialLoginEnabled reports whether Google OAuth social login is configured.
func (c *Config) SocialLoginEnabled() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != ""
}

// ListenAddr returns the address the HTTP server should listen on.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// HasSignatureExemptPrefix reports whether path matches a configured
// signature-exempt prefix.
func (c *Config) HasSignatureExemptPrefix(path string) bool {
	for _, prefix := range c.SignatureExemptPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}
