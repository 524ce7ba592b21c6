// Package app wires configuration, infrastructure, and the HTTP surface
// into a runnable identity service.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/aegiscore/identity/internal/authz"
	"github.com/aegiscore/identity/internal/bootstrap"
	"github.com/aegiscore/identity/internal/cache"
	"github.com/aegiscore/identity/internal/config"
	"github.com/aegiscore/identity/internal/crypto"
	"github.com/aegiscore/identity/internal/handlers"
	"github.com/aegiscore/identity/internal/httpserver"
	"github.com/aegiscore/identity/internal/identity"
	identitypg "github.com/aegiscore/identity/internal/identity/postgres"
	"github.com/aegiscore/identity/internal/platform"
	"github.com/aegiscore/identity/internal/ratelimit"
	"github.com/aegiscore/identity/internal/signature"
	"github.com/aegiscore/identity/internal/telemetry"
	"github.com/aegiscore/identity/internal/token"
)

// Run is the main application entry point. It reads infrastructure handles
// from cfg, builds every component once, and serves until ctx is canceled.
func Run(ctx context.Context, cfg *config.Config) error {
	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("starting identity service",
		"service", cfg.ServiceName,
		"version", cfg.ServiceVersion,
		"listen", cfg.ListenAddr(),
	)
	if warn := cfg.SwaggerWarning(); warn != "" {
		logger.Warn(warn)
	}

	// Tracing
	shutdownTracer, err := telemetry.InitTracer(ctx, cfg.OTLPEndpoint, cfg.ServiceName, cfg.ServiceVersion)
	if err != nil {
		return fmt.Errorf("initializing tracer: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(shutdownCtx); err != nil {
			logger.Error("shutting down tracer", "error", err)
		}
	}()

	// Database
	db, err := platform.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()

	// Redis
	rdb, err := platform.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error("closing redis", "error", err)
		}
	}()

	// Migrations
	if err := platform.RunMigrations(cfg.DatabaseURL, cfg.MigrationsDir); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("migrations applied")

	// Key material: loaded once, held read-only for the process lifetime.
	privateKey, err := token.LoadPrivateKey(cfg.JWTPrivateKeyPath)
	if err != nil {
		return fmt.Errorf("loading jwt private key: %w", err)
	}
	tokens := token.NewService(
		privateKey,
		token.KeyID(&privateKey.PublicKey),
		cfg.JWTIssuer,
		cfg.JWTAudience,
		time.Duration(cfg.JWTAccessExpiryMin)*time.Minute,
		time.Duration(cfg.JWTRefreshExpiryDays)*24*time.Hour,
	)

	store := identitypg.New(db)
	kv := cache.NewRedisStore(rdb)
	hasher := crypto.DefaultPasswordHasher()
	engine := authz.New(store, cfg.SecurityTrustInternalServices)
	if cfg.SecurityTrustInternalServices {
		logger.Warn("trust_internal_services is enabled: this hop will accept x-user-id/x-tenant-id metadata without validating tokens")
	}

	metricsReg := telemetry.NewMetricsRegistry()

	// Social login (optional).
	oauthCfg := handlers.OAuthConfig{
		TenantSlug: cfg.SocialTenantSlug,
		Providers:  map[string]*handlers.OAuthProvider{},
	}
	if cfg.SocialLoginEnabled() {
		provider, err := oidc.NewProvider(ctx, "https://accounts.google.com")
		if err != nil {
			return fmt.Errorf("discovering google oidc provider: %w", err)
		}
		oauthCfg.Providers["google"] = &handlers.OAuthProvider{
			Config: &oauth2.Config{
				ClientID:     cfg.GoogleClientID,
				ClientSecret: cfg.GoogleClientSecret,
				RedirectURL:  cfg.GoogleRedirectURI,
				Endpoint:     google.Endpoint,
				Scopes:       []string{oidc.ScopeOpenID, "email", "profile"},
			},
			Verifier: provider.Verifier(&oidc.Config{ClientID: cfg.GoogleClientID}),
		}
		logger.Info("google social login enabled")
	} else {
		logger.Info("social login disabled (GOOGLE_CLIENT_ID not set)")
	}

	h := handlers.New(handlers.Deps{
		Logger:    logger,
		Store:     store,
		Tokens:    tokens,
		Authz:     engine,
		Cache:     kv,
		Hasher:    hasher,
		Bootstrap: bootstrap.New(store, tokens, hasher),
		LoginLimit: ratelimit.NewByRemoteAddress(rdb, "login",
			cfg.RateLimitLoginAttempts, time.Duration(cfg.RateLimitLoginWindowSeconds)*time.Second),
		RegisterLimit: ratelimit.NewByRemoteAddress(rdb, "register",
			cfg.RateLimitRegisterAttempts, time.Duration(cfg.RateLimitRegisterWindowSeconds)*time.Second),
		ResetLimit: ratelimit.NewByRemoteAddress(rdb, "password_reset",
			cfg.RateLimitPasswordResetAttempts, time.Duration(cfg.RateLimitPasswordResetWindowSec)*time.Second),
		ClientLimit: ratelimit.NewByClientID(rdb, "client", time.Minute),
		AdminAPIKey: cfg.SecurityAdminAPIKey,
		OAuth:       oauthCfg,
	})

	sigMW := signature.Middleware(signature.Config{
		RequireSignatures: cfg.SecurityRequireSignatures,
		ExemptPrefixes:    cfg.SignatureExemptPrefixes,
	}, kv, identity.ClientSecrets{Store: store})

	srv := httpserver.NewServer(cfg, logger, db, rdb, metricsReg,
		httpserver.JWKSHandler(tokens.PublicKeySet()), sigMW)
	srv.Router.Mount("/v1", h.Routes())

	httpSrv := &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      srv,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("identity service listening", "addr", cfg.ListenAddr())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down identity service")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
