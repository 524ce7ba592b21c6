// Package handlers implements the identity service's HTTP surface. Each
// handler is a straight pipeline: authenticate, validate input,
// capability-check, perform store operations, emit an audit event, respond.
package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/aegiscore/identity/internal/authz"
	"github.com/aegiscore/identity/internal/bootstrap"
	"github.com/aegiscore/identity/internal/cache"
	"github.com/aegiscore/identity/internal/crypto"
	"github.com/aegiscore/identity/internal/identity"
	"github.com/aegiscore/identity/internal/ratelimit"
	"github.com/aegiscore/identity/internal/token"
)

// Handler holds every dependency the identity-service HTTP surface needs.
type Handler struct {
	logger *slog.Logger

	store     identity.Store
	tokens    *token.Service
	authz     *authz.Engine
	cacheKV   cache.Store
	hasher    *crypto.PasswordHasher
	bootstrap *bootstrap.Service

	loginLimit    *ratelimit.ByRemoteAddress
	registerLimit *ratelimit.ByRemoteAddress
	resetLimit    *ratelimit.ByRemoteAddress
	clientLimit   *ratelimit.ByClientID

	adminAPIKey string

	oauth OAuthConfig
}

// Deps bundles the constructor parameters for New, kept as one struct so
// call sites in internal/app don't carry a dozen-argument call.
type Deps struct {
	Logger        *slog.Logger
	Store         identity.Store
	Tokens        *token.Service
	Authz         *authz.Engine
	Cache         cache.Store
	Hasher        *crypto.PasswordHasher
	Bootstrap     *bootstrap.Service
	LoginLimit    *ratelimit.ByRemoteAddress
	RegisterLimit *ratelimit.ByRemoteAddress
	ResetLimit    *ratelimit.ByRemoteAddress
	ClientLimit   *ratelimit.ByClientID
	AdminAPIKey   string
	OAuth         OAuthConfig
}

// New constructs a Handler.
func New(d Deps) *Handler {
	return &Handler{
		logger:        d.Logger,
		store:         d.Store,
		tokens:        d.Tokens,
		authz:         d.Authz,
		cacheKV:       d.Cache,
		hasher:        d.Hasher,
		bootstrap:     d.Bootstrap,
		loginLimit:    d.LoginLimit,
		registerLimit: d.RegisterLimit,
		resetLimit:    d.ResetLimit,
		clientLimit:   d.ClientLimit,
		adminAPIKey:   d.AdminAPIKey,
		oauth:         d.OAuth,
	}
}

// Routes mounts every identity-service endpoint under r.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/bootstrap", h.handleBootstrap)

	r.Route("/auth", func(ar chi.Router) {
		ar.Post("/register", h.handleRegister)
		ar.Post("/login", h.handleLogin)
		ar.Post("/refresh", h.handleRefresh)
		ar.Post("/logout", h.handleLogout)
		ar.Post("/introspect", h.handleIntrospect)
		ar.Post("/otp/send", h.handleSendOTP)
		ar.Post("/otp/verify", h.handleVerifyOTP)
		ar.Get("/oauth/{provider}/login", h.handleOAuthLogin)
		ar.Get("/oauth/{provider}/callback", h.handleOAuthCallback)
	})

	r.Route("/me", func(mr chi.Router) {
		mr.Use(h.RequireAuthenticated)
		mr.Get("/", h.handleGetMe)
		mr.Patch("/", h.handleUpdateMe)
		mr.Post("/password", h.handleChangePassword)
		mr.Get("/visibility-grants", h.handleListMyVisibility)
	})

	r.Route("/admin", func(admr chi.Router) {
		// Service-account administration is gated by the static admin key,
		// not by a capability.
		admr.Route("/services", func(sr chi.Router) {
			sr.Use(h.requireAdminAPIKey)
			sr.Post("/", h.handleCreateServiceAccount)
			sr.Post("/{id}/rotate", h.handleRotateServiceSecret)
			sr.Post("/{id}/revoke", h.handleRevokeServiceAccount)
			sr.Post("/{id}/permissions", h.handleGrantServicePermission)
			sr.Post("/{id}/token", h.handleIssueAppToken)
		})

		admr.Group(func(admr chi.Router) {
			admr.Use(h.RequireAuthenticated)

			admr.Post("/tenants", h.handleCreateTenant)
			admr.Get("/tenants/{id}", h.handleGetTenant)
			admr.Post("/tenants/{id}/state", h.handleSetTenantState)

			admr.Post("/orgs", h.handleCreateOrgNode)
			admr.Get("/orgs", h.handleListOrgNodes)
			admr.Get("/orgs/{id}/descendants", h.handleListOrgNodeDescendants)
			admr.Post("/orgs/{id}/deactivate", h.handleDeactivateOrgNode)

			admr.Post("/roles", h.handleCreateRole)
			admr.Get("/roles", h.handleListRoles)
			admr.Get("/capabilities", h.handleListCapabilities)
			admr.Get("/roles/{id}/capabilities", h.handleListRoleCapabilities)
			admr.Post("/roles/{id}/capabilities", h.handleAssignCapability)
			admr.Delete("/roles/{id}/capabilities/{key}", h.handleUnassignCapability)

			admr.Post("/assignments", h.handleCreateAssignment)
			admr.Post("/assignments/{id}/end", h.handleEndAssignment)
			admr.Get("/users/{id}/assignments", h.handleListAssignments)

			admr.Post("/visibility-grants", h.handleCreateVisibilityGrant)
			admr.Post("/visibility-grants/{id}/revoke", h.handleRevokeVisibilityGrant)
			admr.Get("/users/{id}/visibility-grants", h.handleListVisibilityGrants)

			admr.Get("/audit-events", h.handleListAuditEvents)
		})
	})

	r.Route("/s2s", func(s2s chi.Router) {
		s2s.Use(h.RequireServiceAccount)
		s2s.Post("/authz/check", h.handleCheckCapability)
		s2s.Get("/authz/context", h.handleGetAuthContext)
	})

	return r
}

func (h *Handler) audit(r *http.Request, eventType string, tenantID *string, actorUserID *string, targetType, targetID *string, data map[string]any) {
	ip := r.RemoteAddr
	ua := r.UserAgent()
	err := h.store.InsertAuditEvent(r.Context(), &identity.AuditEvent{
		TenantID:      tenantID,
		ActorUserID:   actorUserID,
		EventTypeCode: eventType,
		TargetType:    targetType,
		TargetID:      targetID,
		EventData:     data,
		IP:            &ip,
		UserAgent:     &ua,
	})
	if err != nil {
		h.logger.Error("recording audit event", "error", err, "event_type", eventType)
	}
}
