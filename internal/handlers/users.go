package handlers

import (
	"net/http"
	"time"

	"github.com/aegiscore/identity/internal/httpserver"
	"github.com/aegiscore/identity/internal/identity"
	"github.com/aegiscore/identity/pkg/apperr"
)

// UserResponse is the wire shape of the caller's own profile.
type UserResponse struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"tenant_id"`
	Email       string    `json:"email"`
	DisplayName *string   `json:"display_name,omitempty"`
	Verified    bool      `json:"verified"`
	State       string    `json:"state"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (h *Handler) handleGetMe(w http.ResponseWriter, r *http.Request) {
	subject, ok := subjectFromContext(r.Context())
	if !ok {
		httpserver.RespondAppError(w, apperr.New(apperr.Unauthenticated, "missing authenticated subject"))
		return
	}
	user, err := h.store.FindUserByID(r.Context(), subject.TenantID, subject.UserID)
	if err != nil {
		httpserver.RespondAppError(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, UserResponse{
		ID:          user.ID,
		TenantID:    user.TenantID,
		Email:       user.Email,
		DisplayName: user.DisplayName,
		Verified:    user.Verified,
		State:       string(user.State),
		CreatedAt:   user.CreatedAt,
		UpdatedAt:   user.UpdatedAt,
	})
}

// UpdateMeRequest is the body of PATCH /me.
type UpdateMeRequest struct {
	DisplayName *string `json:"display_name" validate:"omitempty,max=255"`
}

func (h *Handler) handleUpdateMe(w http.ResponseWriter, r *http.Request) {
	subject, ok := subjectFromContext(r.Context())
	if !ok {
		httpserver.RespondAppError(w, apperr.New(apperr.Unauthenticated, "missing authenticated subject"))
		return
	}
	var req UpdateMeRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	fields := map[string]any{}
	if req.DisplayName != nil {
		fields["display_name"] = *req.DisplayName
	}
	if len(fields) == 0 {
		httpserver.RespondAppError(w, apperr.New(apperr.InvalidArgument, "no fields to update"))
		return
	}
	if err := h.store.UpdateUserFields(r.Context(), subject.TenantID, subject.UserID, fields); err != nil {
		httpserver.RespondAppError(w, err)
		return
	}

	h.audit(r, "user.updated", &subject.TenantID, &subject.UserID, nil, nil, nil)
	httpserver.Respond(w, http.StatusNoContent, nil)
}

// ChangePasswordRequest is the body of POST /me/password. The new password
// must satisfy the tenant's auth policy; every live refresh token is
// revoked so stolen sessions die with the old password.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required"`
}

func (h *Handler) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	subject, ok := subjectFromContext(r.Context())
	if !ok {
		httpserver.RespondAppError(w, apperr.New(apperr.Unauthenticated, "missing authenticated subject"))
		return
	}
	var req ChangePasswordRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	ctx := r.Context()

	user, err := h.store.FindUserByID(ctx, subject.TenantID, subject.UserID)
	if err != nil {
		httpserver.RespondAppError(w, err)
		return
	}
	if user.PasswordHash == nil || !h.hasher.Verify(req.CurrentPassword, *user.PasswordHash) {
		h.securityEvent(r, "password_change_failed", "current password mismatch", &subject.TenantID, &subject.UserID)
		httpserver.RespondAppError(w, apperr.New(apperr.Unauthenticated, "current password is incorrect"))
		return
	}

	tenant, err := h.store.FindTenantByID(ctx, subject.TenantID)
	if err != nil {
		httpserver.RespondAppError(w, err)
		return
	}
	if !h.validatePasswordPolicy(w, req.NewPassword, tenant) {
		return
	}

	newHash, err := h.hasher.Hash(req.NewPassword)
	if err != nil {
		httpserver.RespondAppError(w, apperr.Wrap(apperr.Internal, "hashing password", err))
		return
	}
	if err := h.store.UpdateUserFields(ctx, subject.TenantID, subject.UserID, map[string]any{"password_hash": newHash}); err != nil {
		httpserver.RespondAppError(w, err)
		return
	}
	if err := h.store.RevokeAllRefreshTokensForUser(ctx, subject.UserID); err != nil {
		httpserver.RespondAppError(w, err)
		return
	}

	h.audit(r, "user.password_changed", &subject.TenantID, &subject.UserID, nil, nil, nil)
	httpserver.Respond(w, http.StatusNoContent, nil)
}

// handleListMyVisibility lets a user see their own active visibility grants.
func (h *Handler) handleListMyVisibility(w http.ResponseWriter, r *http.Request) {
	subject, ok := subjectFromContext(r.Context())
	if !ok {
		httpserver.RespondAppError(w, apperr.New(apperr.Unauthenticated, "missing authenticated subject"))
		return
	}
	grants, err := h.store.FindActiveVisibilityGrantsForUser(r.Context(), subject.TenantID, subject.UserID)
	if err != nil {
		httpserver.RespondAppError(w, err)
		return
	}
	out := make([]VisibilityGrantResponse, 0, len(grants))
	for _, g := range grants {
		out = append(out, visibilityGrantResponse(g))
	}
	httpserver.Respond(w, http.StatusOK, map[string]any{"visibility_grants": out})
}

// validatePasswordPolicy runs the tenant's password rules and responds with
// every violation at once when any fail.
func (h *Handler) validatePasswordPolicy(w http.ResponseWriter, password string, tenant *identity.Tenant) bool {
	violations := tenant.Policy.OrDefault().ValidatePassword(password)
	if len(violations) == 0 {
		return true
	}
	msgs := make([]string, 0, len(violations))
	for _, v := range violations {
		msgs = append(msgs, v.Error())
	}
	httpserver.Respond(w, http.StatusBadRequest, map[string]any{
		"error":   string(apperr.InvalidArgument),
		"message": "password does not meet tenant policy",
		"details": msgs,
	})
	return false
}
