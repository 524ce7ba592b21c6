package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aegiscore/identity/internal/crypto"
	"github.com/aegiscore/identity/internal/httpserver"
	"github.com/aegiscore/identity/internal/identity"
	"github.com/aegiscore/identity/internal/ratelimit"
	"github.com/aegiscore/identity/internal/telemetry"
	"github.com/aegiscore/identity/internal/token"
	"github.com/aegiscore/identity/pkg/apperr"
)

// RegisterRequest is the body of POST /auth/register.
type RegisterRequest struct {
	TenantSlug  string `json:"tenant_slug" validate:"required"`
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required,min=8"`
	DisplayName string `json:"display_name"`
}

// SessionResponse is the common session envelope returned by register,
// login, refresh, and the OAuth callback.
type SessionResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	ctx := r.Context()

	if !h.allowByAddress(w, r, h.registerLimit, "register") {
		return
	}

	tenant, err := h.store.FindTenantBySlug(ctx, req.TenantSlug)
	if err != nil {
		httpserver.RespondAppError(w, err)
		return
	}
	if tenant.State != identity.TenantActive {
		httpserver.RespondAppError(w, apperr.New(apperr.FailedPrecondition, "tenant is suspended"))
		return
	}
	if !h.validatePasswordPolicy(w, req.Password, tenant) {
		return
	}

	passwordHash, err := h.hasher.Hash(req.Password)
	if err != nil {
		httpserver.RespondAppError(w, apperr.Wrap(apperr.Internal, "hashing password", err))
		return
	}

	var displayName *string
	if req.DisplayName != "" {
		displayName = &req.DisplayName
	}
	user := &identity.User{
		TenantID:     tenant.ID,
		Email:        req.Email,
		EmailLower:   strings.ToLower(req.Email),
		PasswordHash: &passwordHash,
		DisplayName:  displayName,
		State:        identity.UserActive,
	}
	if err := h.store.InsertUser(ctx, user); err != nil {
		httpserver.RespondAppError(w, err)
		return
	}

	session, err := h.mintSession(ctx, tenant.ID, user)
	if err != nil {
		httpserver.RespondAppError(w, err)
		return
	}

	h.audit(r, "user.registered", &tenant.ID, &user.ID, nil, nil, nil)
	httpserver.Respond(w, http.StatusCreated, session)
}

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	TenantSlug string `json:"tenant_slug" validate:"required"`
	Email      string `json:"email" validate:"required,email"`
	Password   string `json:"password" validate:"required"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	ctx := r.Context()

	if !h.allowByAddress(w, r, h.loginLimit, "login") {
		return
	}

	tenant, err := h.store.FindTenantBySlug(ctx, req.TenantSlug)
	if err != nil {
		httpserver.RespondAppError(w, apperr.New(apperr.Unauthenticated, "invalid credentials"))
		return
	}

	emailLower := strings.ToLower(req.Email)
	pol := tenant.Policy.OrDefault()
	if h.isLockedOut(ctx, tenant.ID, emailLower, pol.MaxFailedAttempts) {
		h.securityEvent(r, "login_lockout", "account locked after repeated failures: "+emailLower, &tenant.ID, nil)
		httpserver.RespondAppError(w, apperr.New(apperr.PermissionDenied, "account temporarily locked"))
		return
	}

	user, err := h.store.FindUserByTenantAndEmail(ctx, tenant.ID, emailLower)
	if err != nil || user.PasswordHash == nil || !h.hasher.Verify(req.Password, *user.PasswordHash) {
		h.recordFailedLogin(ctx, tenant.ID, emailLower, pol.LockoutDurationMinutes)
		httpserver.RespondAppError(w, apperr.New(apperr.Unauthenticated, "invalid credentials"))
		return
	}
	if user.State != identity.UserActive {
		httpserver.RespondAppError(w, apperr.New(apperr.PermissionDenied, "account is not active"))
		return
	}

	session, err := h.mintSession(ctx, tenant.ID, user)
	if err != nil {
		httpserver.RespondAppError(w, err)
		return
	}

	h.clearFailedLogins(ctx, tenant.ID, emailLower)
	if h.loginLimit != nil {
		if addr := ratelimit.ClientAddr(r); addr != "" {
			_ = h.loginLimit.Reset(ctx, addr)
		}
	}

	h.audit(r, "user.login", &tenant.ID, &user.ID, nil, nil, nil)
	httpserver.Respond(w, http.StatusOK, session)
}

// allowByAddress applies an address-keyed limiter, passing through with a
// warning when the caller's address cannot be determined — never block
// anonymously.
func (h *Handler) allowByAddress(w http.ResponseWriter, r *http.Request, limiter *ratelimit.ByRemoteAddress, bucket string) bool {
	if limiter == nil {
		return true
	}
	addr := ratelimit.ClientAddr(r)
	if addr == "" {
		h.logger.Warn("rate limiter: indeterminate client address, passing through", "path", r.URL.Path)
		return true
	}
	res, err := limiter.Allow(r.Context(), addr)
	if err != nil {
		httpserver.RespondAppError(w, err)
		return false
	}
	if !res.Allowed {
		telemetry.RateLimitRejectionsTotal.WithLabelValues(bucket).Inc()
		httpserver.RespondAppError(w, apperr.RetryAfter("too many "+bucket+" attempts", int(res.RetryAfter.Seconds())))
		return false
	}
	return true
}

func lockoutKey(tenantID, emailLower string) string {
	return "lockout:" + tenantID + ":" + emailLower
}

// isLockedOut reports whether the account has hit its tenant's failed-login
// budget. This is a per-account lockout, distinct from the per-address
// endpoint throttle.
func (h *Handler) isLockedOut(ctx context.Context, tenantID, emailLower string, maxAttempts int) bool {
	if maxAttempts <= 0 {
		return false
	}
	val, ok, err := h.cacheKV.Get(ctx, lockoutKey(tenantID, emailLower))
	if err != nil || !ok {
		return false
	}
	n, err := strconv.Atoi(val)
	return err == nil && n >= maxAttempts
}

func (h *Handler) recordFailedLogin(ctx context.Context, tenantID, emailLower string, lockoutMinutes int) {
	if lockoutMinutes <= 0 {
		lockoutMinutes = 15
	}
	key := lockoutKey(tenantID, emailLower)
	n := 1
	if val, ok, err := h.cacheKV.Get(ctx, key); err == nil && ok {
		if cur, err := strconv.Atoi(val); err == nil {
			n = cur + 1
		}
	}
	_ = h.cacheKV.SetWithTTL(ctx, key, strconv.Itoa(n), lockoutMinutes*60)
}

func (h *Handler) clearFailedLogins(ctx context.Context, tenantID, emailLower string) {
	_ = h.cacheKV.Delete(ctx, lockoutKey(tenantID, emailLower))
}

// RefreshRequest is the body of POST /auth/refresh.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	ctx := r.Context()

	claims, err := h.tokens.ValidateRefresh(req.RefreshToken)
	if err != nil {
		httpserver.RespondAppError(w, err)
		return
	}

	stored, err := h.store.FindRefreshTokenByJTI(ctx, claims.JTI)
	if err != nil {
		httpserver.RespondAppError(w, apperr.New(apperr.Unauthenticated, "refresh token not recognized"))
		return
	}
	if stored.Revoked {
		httpserver.RespondAppError(w, apperr.New(apperr.Unauthenticated, "refresh token revoked"))
		return
	}
	if time.Now().After(stored.ExpiresAt) {
		httpserver.RespondAppError(w, apperr.New(apperr.Unauthenticated, "refresh token expired"))
		return
	}

	access, newRefresh, newJTI, err := h.tokens.GenerateTokenPair(claims.Subject, token.ClaimsContext{})
	if err != nil {
		httpserver.RespondAppError(w, err)
		return
	}

	successor := &identity.RefreshToken{
		ID:        newJTI,
		UserID:    claims.Subject,
		TokenHash: crypto.HashLookup(newRefresh),
		ExpiresAt: time.Now().Add(h.tokens.RefreshTTL()),
	}
	if err := h.store.RotateRefreshToken(ctx, claims.JTI, successor); err != nil {
		httpserver.RespondAppError(w, err)
		return
	}

	httpserver.Respond(w, http.StatusOK, SessionResponse{
		AccessToken:  access,
		RefreshToken: newRefresh,
		TokenType:    "Bearer",
	})
}

// LogoutRequest is the body of POST /auth/logout.
type LogoutRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
	AccessToken  string `json:"access_token"`
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req LogoutRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	ctx := r.Context()

	refreshClaims, err := h.tokens.ValidateRefresh(req.RefreshToken)
	if err == nil {
		_ = h.store.RevokeRefreshTokenByJTI(ctx, refreshClaims.JTI)
	}

	if req.AccessToken != "" {
		if accessClaims, err := h.tokens.ValidateAccess(req.AccessToken); err == nil {
			remaining := time.Until(time.Unix(accessClaims.EXP, 0))
			if remaining > 0 {
				if err := h.cacheKV.SetBlacklist(ctx, accessClaims.JTI, int(remaining.Seconds())+1); err == nil {
					telemetry.TokensBlacklistedTotal.Inc()
				}
			}
		}
	}

	httpserver.Respond(w, http.StatusNoContent, nil)
}

// IntrospectRequest is the body of POST /auth/introspect.
type IntrospectRequest struct {
	Token string `json:"token" validate:"required"`
}

// IntrospectResponse follows the RFC 7662 shape: active is false for
// blacklisted, expired, or malformed tokens, and malformed input is never
// an error.
type IntrospectResponse struct {
	Active bool   `json:"active"`
	Sub    string `json:"sub,omitempty"`
	Email  string `json:"email,omitempty"`
	AppID  string `json:"app_id,omitempty"`
}

func (h *Handler) handleIntrospect(w http.ResponseWriter, r *http.Request) {
	var req IntrospectRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	ctx := r.Context()

	claims, err := h.tokens.ValidateAccess(req.Token)
	if err != nil {
		httpserver.Respond(w, http.StatusOK, IntrospectResponse{Active: false})
		return
	}

	blacklisted, err := h.cacheKV.IsBlacklisted(ctx, claims.JTI)
	if err != nil || blacklisted {
		httpserver.Respond(w, http.StatusOK, IntrospectResponse{Active: false})
		return
	}

	httpserver.Respond(w, http.StatusOK, IntrospectResponse{
		Active: true,
		Sub:    claims.Subject,
		Email:  claims.Email,
		AppID:  claims.AppID,
	})
}

// mintSession generates and persists a fresh access/refresh token pair for
// a user within tenantID, the common tail of register/login/oauth_callback.
func (h *Handler) mintSession(ctx context.Context, tenantID string, user *identity.User) (SessionResponse, error) {
	access, refresh, refreshJTI, err := h.tokens.GenerateTokenPair(user.ID, token.ClaimsContext{
		AppID: tenantID,
		Email: user.Email,
	})
	if err != nil {
		return SessionResponse{}, err
	}

	if err := h.store.InsertRefreshToken(ctx, &identity.RefreshToken{
		ID:        refreshJTI,
		UserID:    user.ID,
		TokenHash: crypto.HashLookup(refresh),
		ExpiresAt: time.Now().Add(h.tokens.RefreshTTL()),
	}); err != nil {
		return SessionResponse{}, err
	}

	return SessionResponse{AccessToken: access, RefreshToken: refresh, TokenType: "Bearer"}, nil
}
