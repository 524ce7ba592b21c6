package handlers

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/aegiscore/identity/internal/authz"
	"github.com/aegiscore/identity/internal/httpserver"
	"github.com/aegiscore/identity/pkg/apperr"
)

type subjectKey struct{}

// RequireAuthenticated resolves the caller's identity: when the trust
// switch is enabled, it trusts x-user-id/x-tenant-id metadata from an
// upstream edge without touching a token; otherwise it
// validates the bearer access token (including the blacklist) and
// materializes the subject from its claims.
func (h *Handler) RequireAuthenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject, err := h.resolveSubject(r)
		if err != nil {
			httpserver.RespondAppError(w, err)
			return
		}
		ctx := context.WithValue(r.Context(), subjectKey{}, subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) resolveSubject(r *http.Request) (authz.Subject, error) {
	if h.authz.TrustInternalServices() {
		userID := r.Header.Get("x-user-id")
		tenantID := r.Header.Get("x-tenant-id")
		return authz.Subject{UserID: userID, TenantID: tenantID, Trusted: true}, nil
	}

	raw := bearerToken(r)
	if raw == "" {
		return authz.Subject{}, apperr.New(apperr.Unauthenticated, "missing bearer token")
	}
	claims, err := h.tokens.ValidateAccess(raw)
	if err != nil {
		return authz.Subject{}, err
	}
	blacklisted, err := h.cacheKV.IsBlacklisted(r.Context(), claims.JTI)
	if err != nil {
		return authz.Subject{}, apperr.Wrap(apperr.Unavailable, "blacklist check failed", err)
	}
	if blacklisted {
		return authz.Subject{}, apperr.New(apperr.Unauthenticated, "token has been revoked")
	}
	return authz.Subject{UserID: claims.Subject, TenantID: claims.AppID}, nil
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return ""
	}
	return strings.TrimPrefix(h, prefix)
}

// subjectFromContext returns the Subject materialized by RequireAuthenticated.
func subjectFromContext(ctx context.Context) (authz.Subject, bool) {
	s, ok := ctx.Value(subjectKey{}).(authz.Subject)
	return s, ok
}

// requireAdminAPIKey gates service-account administration by the static
// admin key header, not by a capability.
func (h *Handler) requireAdminAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("X-Admin-Api-Key")
		if h.adminAPIKey == "" || subtle.ConstantTimeCompare([]byte(key), []byte(h.adminAPIKey)) != 1 {
			h.securityEvent(r, "admin_key_rejected", "invalid admin api key", nil, nil)
			httpserver.RespondAppError(w, apperr.New(apperr.PermissionDenied, "invalid admin api key"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
