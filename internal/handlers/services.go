package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/aegiscore/identity/internal/crypto"
	"github.com/aegiscore/identity/internal/httpserver"
	"github.com/aegiscore/identity/internal/identity"
	"github.com/aegiscore/identity/pkg/apperr"
)

// Service API-key wire format. The environment prefix makes a leaked test
// credential recognizable at a glance and ensures a key pasted into the
// wrong deployment fails closed.
const (
	serviceKeyPrefixLive = "svc_live_"
	serviceKeyPrefixTest = "svc_test_"

	// secretGracePeriod is how long a rotated-out secret keeps working.
	secretGracePeriod = 24 * time.Hour
)

// CreateServiceAccountRequest is the body of POST /admin/services.
type CreateServiceAccountRequest struct {
	TenantID    *string  `json:"tenant_id" validate:"omitempty,uuid"`
	Key         string   `json:"key" validate:"required,min=3,max=64"`
	Label       string   `json:"label" validate:"required,max=255"`
	Live        bool     `json:"live"`
	Permissions []string `json:"permissions"`
}

// ServiceAccountResponse is returned on creation and rotation. APISecret is
// present exactly once, in the response that generated it; only hashes are
// stored.
type ServiceAccountResponse struct {
	ID            string    `json:"id"`
	TenantID      *string   `json:"tenant_id,omitempty"`
	Key           string    `json:"key"`
	Label         string    `json:"label"`
	State         string    `json:"state"`
	APISecret     string    `json:"api_secret,omitempty"`
	SigningSecret string    `json:"signing_secret,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

func (h *Handler) handleCreateServiceAccount(w http.ResponseWriter, r *http.Request) {
	var req CreateServiceAccountRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	ctx := r.Context()

	signingSecret, err := crypto.RandomToken(32)
	if err != nil {
		httpserver.RespondAppError(w, apperr.Wrap(apperr.Internal, "generating signing secret", err))
		return
	}

	account := &identity.ServiceAccount{
		TenantID:      req.TenantID,
		Key:           req.Key,
		Label:         req.Label,
		State:         identity.ServiceAccountActive,
		SigningSecret: signingSecret,
	}
	if err := h.store.InsertServiceAccount(ctx, account); err != nil {
		httpserver.RespondAppError(w, err)
		return
	}

	rawSecret, secret, err := h.newServiceSecret(account.ID, req.Live)
	if err != nil {
		httpserver.RespondAppError(w, err)
		return
	}
	if err := h.store.RotateServiceSecret(ctx, account.ID, secret, time.Now()); err != nil {
		httpserver.RespondAppError(w, err)
		return
	}

	for _, perm := range req.Permissions {
		if err := h.store.GrantServicePermission(ctx, account.ID, perm); err != nil {
			httpserver.RespondAppError(w, err)
			return
		}
	}

	h.audit(r, "service.created", req.TenantID, nil, strPtr("service_account"), &account.ID, map[string]any{"key": account.Key})
	httpserver.Respond(w, http.StatusCreated, ServiceAccountResponse{
		ID:            account.ID,
		TenantID:      account.TenantID,
		Key:           account.Key,
		Label:         account.Label,
		State:         string(account.State),
		APISecret:     rawSecret,
		SigningSecret: signingSecret,
		CreatedAt:     account.CreatedAt,
	})
}

func (h *Handler) handleRotateServiceSecret(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	if _, err := h.store.FindServiceByID(ctx, id); err != nil {
		httpserver.RespondAppError(w, err)
		return
	}

	rawSecret, secret, err := h.newServiceSecret(id, true)
	if err != nil {
		httpserver.RespondAppError(w, err)
		return
	}
	if err := h.store.RotateServiceSecret(ctx, id, secret, time.Now().Add(secretGracePeriod)); err != nil {
		httpserver.RespondAppError(w, err)
		return
	}

	h.audit(r, "service.secret_rotated", nil, nil, strPtr("service_account"), &id, nil)
	httpserver.Respond(w, http.StatusOK, map[string]string{"id": id, "api_secret": rawSecret})
}

func (h *Handler) handleRevokeServiceAccount(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.store.SetServiceState(r.Context(), id, identity.ServiceAccountDisabled); err != nil {
		httpserver.RespondAppError(w, err)
		return
	}
	h.audit(r, "service.revoked", nil, nil, strPtr("service_account"), &id, nil)
	httpserver.Respond(w, http.StatusOK, map[string]string{"id": id, "state": string(identity.ServiceAccountDisabled)})
}

// GrantServicePermissionRequest is the body of POST /admin/services/{id}/permissions.
type GrantServicePermissionRequest struct {
	Key string `json:"key" validate:"required,max=128"`
}

func (h *Handler) handleGrantServicePermission(w http.ResponseWriter, r *http.Request) {
	var req GrantServicePermissionRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	id := chi.URLParam(r, "id")
	if err := h.store.GrantServicePermission(r.Context(), id, req.Key); err != nil {
		httpserver.RespondAppError(w, err)
		return
	}
	h.audit(r, "service.permission_granted", nil, nil, strPtr("service_account"), &id, map[string]any{"permission": req.Key})
	httpserver.Respond(w, http.StatusOK, map[string]string{"id": id, "permission": req.Key})
}

// IssueAppTokenRequest is the body of POST /admin/services/{id}/token.
type IssueAppTokenRequest struct {
	RateLimitPerMin int `json:"rate_limit_per_min" validate:"min=0"`
}

func (h *Handler) handleIssueAppToken(w http.ResponseWriter, r *http.Request) {
	var req IssueAppTokenRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	account, err := h.store.FindServiceByID(ctx, id)
	if err != nil {
		httpserver.RespondAppError(w, err)
		return
	}
	if account.State != identity.ServiceAccountActive {
		httpserver.RespondAppError(w, apperr.New(apperr.FailedPrecondition, "service account is disabled"))
		return
	}

	scopes, err := h.store.GetServicePermissions(ctx, account.ID)
	if err != nil {
		httpserver.RespondAppError(w, err)
		return
	}

	tok, err := h.tokens.GenerateApp(account.Key, account.Label, scopes, req.RateLimitPerMin)
	if err != nil {
		httpserver.RespondAppError(w, err)
		return
	}

	h.audit(r, "service.token_issued", account.TenantID, nil, strPtr("service_account"), &account.ID, nil)
	httpserver.Respond(w, http.StatusOK, map[string]any{"token": tok, "token_type": "Bearer", "scopes": scopes})
}

// newServiceSecret mints a fresh service API secret: the raw value is
// returned to the caller once, only its verification hash and deterministic
// lookup hash persist.
func (h *Handler) newServiceSecret(serviceID string, live bool) (string, *identity.ServiceSecret, error) {
	prefix := serviceKeyPrefixTest
	if live {
		prefix = serviceKeyPrefixLive
	}
	random, err := crypto.RandomToken(32)
	if err != nil {
		return "", nil, apperr.Wrap(apperr.Internal, "generating service secret", err)
	}
	raw := prefix + random

	secretHash, err := h.hasher.Hash(raw)
	if err != nil {
		return "", nil, apperr.Wrap(apperr.Internal, "hashing service secret", err)
	}
	return raw, &identity.ServiceSecret{
		ServiceID:  serviceID,
		SecretHash: secretHash,
		LookupHash: crypto.HashLookup(raw),
	}, nil
}

// hasServiceKeyPrefix reports whether raw looks like a service API secret.
func hasServiceKeyPrefix(raw string) bool {
	return strings.HasPrefix(raw, serviceKeyPrefixLive) || strings.HasPrefix(raw, serviceKeyPrefixTest)
}
