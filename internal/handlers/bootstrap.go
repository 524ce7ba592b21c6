package handlers

import (
	"crypto/subtle"
	"net/http"

	"github.com/aegiscore/identity/internal/bootstrap"
	"github.com/aegiscore/identity/internal/httpserver"
	"github.com/aegiscore/identity/pkg/apperr"
)

// BootstrapRequest is the body of POST /bootstrap: the one-shot creation of
// the first tenant, its root org node, a superadmin role, and the first
// admin user.
type BootstrapRequest struct {
	AdminAPIKey      string `json:"admin_api_key"`
	TenantSlug       string `json:"tenant_slug" validate:"required"`
	TenantLabel      string `json:"tenant_label" validate:"required"`
	AdminEmail       string `json:"admin_email" validate:"required,email"`
	AdminPassword    string `json:"admin_password" validate:"required"`
	AdminDisplayName string `json:"admin_display_name"`
}

// BootstrapResponse returns the created identifiers plus an admin session.
type BootstrapResponse struct {
	TenantID     string `json:"tenant_id"`
	RootNodeID   string `json:"root_node_id"`
	AdminUserID  string `json:"admin_user_id"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

func (h *Handler) handleBootstrap(w http.ResponseWriter, r *http.Request) {
	var req BootstrapRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	ctx := r.Context()

	key := req.AdminAPIKey
	if key == "" {
		key = r.Header.Get("X-Admin-Api-Key")
	}
	if h.adminAPIKey == "" || subtle.ConstantTimeCompare([]byte(key), []byte(h.adminAPIKey)) != 1 {
		h.securityEvent(r, "bootstrap_denied", "invalid admin api key", nil, nil)
		httpserver.RespondAppError(w, apperr.New(apperr.PermissionDenied, "invalid admin api key"))
		return
	}

	result, err := h.bootstrap.Run(ctx, bootstrap.Request{
		TenantSlug:       req.TenantSlug,
		TenantLabel:      req.TenantLabel,
		AdminEmail:       req.AdminEmail,
		AdminPassword:    req.AdminPassword,
		AdminDisplayName: req.AdminDisplayName,
	})
	if err != nil {
		httpserver.RespondAppError(w, err)
		return
	}

	h.audit(r, "deployment.bootstrapped", &result.Tenant.ID, &result.AdminUser.ID, nil, nil, map[string]any{
		"tenant_slug": result.Tenant.Slug,
	})
	httpserver.Respond(w, http.StatusCreated, BootstrapResponse{
		TenantID:     result.Tenant.ID,
		RootNodeID:   result.RootNode.ID,
		AdminUserID:  result.AdminUser.ID,
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
		TokenType:    "Bearer",
	})
}
