package config

import "testing"

func baseConfig() *Config {
	return &Config{
		Environment:          EnvDev,
		Port:                 8080,
		JWTAccessExpiryMin:   15,
		JWTRefreshExpiryDays: 30,
		SecurityAllowedOrigins: []string{"*"},
	}
}

func TestValidateRejectsNonPositivePort(t *testing.T) {
	cfg := baseConfig()
	cfg.Port = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for non-positive port")
	}
}

func TestValidateRejectsNonPositiveExpiries(t *testing.T) {
	cfg := baseConfig()
	cfg.JWTAccessExpiryMin = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for non-positive access expiry")
	}
}

func TestValidateRejectsWildcardCORSInProd(t *testing.T) {
	cfg := baseConfig()
	cfg.Environment = EnvProd
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for wildcard CORS origin in prod")
	}
}

func TestValidateAllowsWildcardCORSInDev(t *testing.T) {
	cfg := baseConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error in dev: %v", err)
	}
}

func TestSwaggerWarningOnlyInProdPublic(t *testing.T) {
	cfg := baseConfig()
	cfg.SwaggerEnabled = SwaggerPublic
	if cfg.SwaggerWarning() != "" {
		t.Fatal("expected no warning in dev")
	}
	cfg.Environment = EnvProd
	cfg.SecurityAllowedOrigins = []string{"https://app.example.com"}
	if cfg.SwaggerWarning() == "" {
		t.Fatal("expected a warning for public swagger in prod")
	}
}

func TestListenAddr(t *testing.T) {
	cfg := baseConfig()
	cfg.Host = "0.0.0.0"
	if cfg.ListenAddr() != "0.0.0.0:8080" {
		t.Fatalf("unexpected listen addr: %s", cfg.ListenAddr())
	}
}

func TestHasSignatureExemptPrefix(t *testing.T) {
	cfg := baseConfig()
	cfg.SignatureExemptPrefixes = []string{"/healthz", "/.well-known/jwks.json"}
	if !cfg.HasSignatureExemptPrefix("/healthz") {
		t.Fatal("expected /healthz to be exempt")
	}
	if cfg.HasSignatureExemptPrefix("/v1/login") {
		t.Fatal("did not expect /v1/login to be exempt")
	}
}
