package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/aegiscore/identity/internal/crypto"
	"github.com/aegiscore/identity/internal/httpserver"
	"github.com/aegiscore/identity/internal/identity"
	"github.com/aegiscore/identity/pkg/apperr"
)

// serviceContextTTL is how long a verified service identity stays cached.
// Secret rotation and revocation take at most this long to propagate.
const serviceContextTTL = 300

// ServiceContext is the authenticated identity of a calling service,
// resolved from an API secret or an app token.
type ServiceContext struct {
	ServiceID   string   `json:"service_id"`
	TenantID    *string  `json:"tenant_id,omitempty"`
	Key         string   `json:"key"`
	Permissions []string `json:"permissions"`
}

type serviceCtxKey struct{}

// serviceFromContext returns the ServiceContext set by RequireServiceAccount.
func serviceFromContext(ctx context.Context) (ServiceContext, bool) {
	sc, ok := ctx.Value(serviceCtxKey{}).(ServiceContext)
	return sc, ok
}

// RequireServiceAccount authenticates a collaborator service, either by its
// X-Api-Key secret or by a bearer app token. Every failure branch is
// recorded as a security event so brute-force probing is visible.
func (h *Handler) RequireServiceAccount(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if raw := r.Header.Get("X-Api-Key"); raw != "" {
			sc, err := h.authenticateServiceSecret(r, raw)
			if err != nil {
				httpserver.RespondAppError(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), serviceCtxKey{}, sc)))
			return
		}

		if raw := bearerToken(r); raw != "" {
			claims, err := h.tokens.ValidateApp(raw)
			if err != nil {
				h.securityEvent(r, "service_auth_failed", "invalid app token", nil, nil)
				httpserver.RespondAppError(w, err)
				return
			}
			if h.clientLimit != nil {
				res, err := h.clientLimit.Allow(r.Context(), claims.ClientID, claims.RateLimitMin)
				if err != nil {
					httpserver.RespondAppError(w, err)
					return
				}
				if !res.Allowed {
					httpserver.RespondAppError(w, apperr.RetryAfter("client rate limit exceeded", int(res.RetryAfter.Seconds())))
					return
				}
			}
			sc := ServiceContext{ServiceID: claims.Subject, Key: claims.ClientID, Permissions: claims.Scopes}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), serviceCtxKey{}, sc)))
			return
		}

		h.securityEvent(r, "service_auth_failed", "missing service credential", nil, nil)
		httpserver.RespondAppError(w, apperr.New(apperr.Unauthenticated, "missing service credential"))
	})
}

// authenticateServiceSecret resolves an X-Api-Key value to a ServiceContext,
// consulting the short-TTL cache before the store.
func (h *Handler) authenticateServiceSecret(r *http.Request, raw string) (ServiceContext, error) {
	ctx := r.Context()

	if !hasServiceKeyPrefix(raw) {
		h.securityEvent(r, "service_auth_failed", "malformed service credential", nil, nil)
		return ServiceContext{}, apperr.New(apperr.Unauthenticated, "malformed service credential")
	}

	lookupHash := crypto.HashLookup(raw)
	cacheKey := "svcauth:" + lookupHash

	if cached, ok, err := h.cacheKV.Get(ctx, cacheKey); err == nil && ok {
		var sc ServiceContext
		if json.Unmarshal([]byte(cached), &sc) == nil {
			return sc, nil
		}
	}

	account, secret, err := h.store.FindServiceByLookupHash(ctx, lookupHash)
	if err != nil {
		h.securityEvent(r, "service_auth_failed", "unknown service credential", nil, nil)
		return ServiceContext{}, apperr.New(apperr.Unauthenticated, "invalid service credential")
	}
	if account.State != identity.ServiceAccountActive {
		h.securityEvent(r, "service_auth_failed", "disabled service account: "+account.Key, account.TenantID, nil)
		return ServiceContext{}, apperr.New(apperr.Unauthenticated, "service account is disabled")
	}

	if !h.verifyServiceSecret(raw, lookupHash, secret) {
		h.securityEvent(r, "service_auth_failed", "secret mismatch for service: "+account.Key, account.TenantID, nil)
		return ServiceContext{}, apperr.New(apperr.Unauthenticated, "invalid service credential")
	}

	perms, err := h.store.GetServicePermissions(ctx, account.ID)
	if err != nil {
		return ServiceContext{}, err
	}

	sc := ServiceContext{
		ServiceID:   account.ID,
		TenantID:    account.TenantID,
		Key:         account.Key,
		Permissions: perms,
	}
	if encoded, err := json.Marshal(sc); err == nil {
		_ = h.cacheKV.SetWithTTL(ctx, cacheKey, string(encoded), serviceContextTTL)
	}

	h.serviceAuthSucceeded(r, account)
	return sc, nil
}

// verifyServiceSecret checks raw against whichever slot matched the lookup
// hash: the current secret, or the previous one while its grace window is
// still open.
func (h *Handler) verifyServiceSecret(raw, lookupHash string, secret *identity.ServiceSecret) bool {
	if secret.LookupHash == lookupHash {
		return h.hasher.Verify(raw, secret.SecretHash)
	}
	if secret.PreviousLookupHash != nil && *secret.PreviousLookupHash == lookupHash {
		if secret.PreviousExpiry == nil || time.Now().After(*secret.PreviousExpiry) {
			return false
		}
		return secret.PreviousSecretHash != nil && h.hasher.Verify(raw, *secret.PreviousSecretHash)
	}
	return false
}

func (h *Handler) serviceAuthSucceeded(r *http.Request, account *identity.ServiceAccount) {
	err := h.store.InsertSecurityEvent(r.Context(), &identity.SecurityAuditEvent{
		EventType: "service_auth_succeeded",
		Severity:  identity.SeverityInfo,
		TenantID:  account.TenantID,
		IP:        r.RemoteAddr,
		Path:      r.URL.Path,
		Method:    r.Method,
		Details:   "service: " + account.Key,
	})
	if err != nil {
		h.logger.Error("recording security event", "error", err)
	}
}

// CheckCapabilityRequest is the body of POST /s2s/authz/check: a
// collaborator service asking whether a user may exercise a capability.
type CheckCapabilityRequest struct {
	TenantID   string `json:"tenant_id" validate:"omitempty,uuid"`
	UserID     string `json:"user_id" validate:"required,uuid"`
	OrgNodeID  string `json:"org_node_id" validate:"omitempty,uuid"`
	Capability string `json:"capability" validate:"required,max=128"`
}

// CheckCapabilityResponse is the decision plus the assignment that granted it.
type CheckCapabilityResponse struct {
	Allowed              bool    `json:"allowed"`
	MatchedAssignmentID  *string `json:"matched_assignment_id,omitempty"`
}

func (h *Handler) handleCheckCapability(w http.ResponseWriter, r *http.Request) {
	sc, ok := serviceFromContext(r.Context())
	if !ok {
		httpserver.RespondAppError(w, apperr.New(apperr.Unauthenticated, "missing service identity"))
		return
	}
	var req CheckCapabilityRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	// Tenant-scoped services may only ask about their own tenant; global
	// services must say which tenant they mean.
	tenantID := req.TenantID
	if sc.TenantID != nil {
		if tenantID != "" && tenantID != *sc.TenantID {
			h.securityEvent(r, "cross_tenant_attempt", "service asked about foreign tenant: "+sc.Key, sc.TenantID, nil)
			httpserver.RespondAppError(w, apperr.New(apperr.PermissionDenied, "service is not scoped to that tenant"))
			return
		}
		tenantID = *sc.TenantID
	}
	if tenantID == "" {
		httpserver.RespondAppError(w, apperr.New(apperr.InvalidArgument, "tenant_id is required for unscoped services"))
		return
	}

	allowed, matched, err := h.authz.CheckCapability(r.Context(), req.UserID, tenantID, req.OrgNodeID, req.Capability)
	if err != nil {
		httpserver.RespondAppError(w, err)
		return
	}

	resp := CheckCapabilityResponse{Allowed: allowed}
	if matched != nil {
		resp.MatchedAssignmentID = &matched.ID
	}
	httpserver.Respond(w, http.StatusOK, resp)
}

// handleGetAuthContext returns the full capability/assignment view of a
// user, for collaborator services that cache coarse-grained decisions.
func (h *Handler) handleGetAuthContext(w http.ResponseWriter, r *http.Request) {
	sc, ok := serviceFromContext(r.Context())
	if !ok {
		httpserver.RespondAppError(w, apperr.New(apperr.Unauthenticated, "missing service identity"))
		return
	}
	userID := r.URL.Query().Get("user_id")
	tenantID := r.URL.Query().Get("tenant_id")
	if sc.TenantID != nil {
		tenantID = *sc.TenantID
	}
	if userID == "" || tenantID == "" {
		httpserver.RespondAppError(w, apperr.New(apperr.InvalidArgument, "user_id and tenant_id are required"))
		return
	}

	ac, err := h.authz.GetAuthContext(r.Context(), userID, tenantID)
	if err != nil {
		httpserver.RespondAppError(w, err)
		return
	}

	caps := make([]string, 0, len(ac.Capabilities))
	for k := range ac.Capabilities {
		caps = append(caps, k)
	}
	assignments := make([]AssignmentResponse, 0, len(ac.Assignments))
	for _, a := range ac.Assignments {
		assignments = append(assignments, assignmentResponse(a))
	}
	httpserver.Respond(w, http.StatusOK, map[string]any{
		"user_id":      ac.UserID,
		"tenant_id":    ac.TenantID,
		"capabilities": caps,
		"assignments":  assignments,
		"scope_nodes":  ac.ScopeNodes,
	})
}
