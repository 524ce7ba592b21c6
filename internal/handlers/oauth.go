package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/go-chi/chi/v5"
	"golang.org/x/oauth2"

	"github.com/aegiscore/identity/internal/crypto"
	"github.com/aegiscore/identity/internal/httpserver"
	"github.com/aegiscore/identity/internal/identity"
	"github.com/aegiscore/identity/pkg/apperr"
)

// OAuthProvider bundles one identity provider's OAuth2 endpoints with the
// OIDC verifier for its ID tokens.
type OAuthProvider struct {
	Config   *oauth2.Config
	Verifier *oidc.IDTokenVerifier
}

// OAuthConfig is the social-login wiring, keyed by provider name so a
// second provider can be added without touching the handler.
type OAuthConfig struct {
	TenantSlug string // tenant new social users are provisioned into
	Providers  map[string]*OAuthProvider
}

const oauthStateTTL = 10 * time.Minute

func (h *Handler) handleOAuthLogin(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	p, ok := h.oauth.Providers[provider]
	if !ok {
		httpserver.RespondAppError(w, apperr.New(apperr.InvalidArgument, "unknown oauth provider"))
		return
	}

	state, err := crypto.RandomToken(16)
	if err != nil {
		httpserver.RespondAppError(w, apperr.Wrap(apperr.Internal, "generating oauth state", err))
		return
	}
	if err := h.cacheKV.SetWithTTL(r.Context(), "oauth_state:"+state, provider, int(oauthStateTTL.Seconds())); err != nil {
		httpserver.RespondAppError(w, apperr.Wrap(apperr.Unavailable, "storing oauth state", err))
		return
	}

	http.Redirect(w, r, p.Config.AuthCodeURL(state), http.StatusFound)
}

func (h *Handler) handleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	p, ok := h.oauth.Providers[provider]
	if !ok {
		httpserver.RespondAppError(w, apperr.New(apperr.InvalidArgument, "unknown oauth provider"))
		return
	}
	ctx := r.Context()

	state := r.URL.Query().Get("state")
	if state == "" {
		httpserver.RespondAppError(w, apperr.New(apperr.InvalidArgument, "missing state parameter"))
		return
	}
	stored, found, err := h.cacheKV.Get(ctx, "oauth_state:"+state)
	if err != nil {
		httpserver.RespondAppError(w, apperr.Wrap(apperr.Unavailable, "checking oauth state", err))
		return
	}
	if !found || stored != provider {
		httpserver.RespondAppError(w, apperr.New(apperr.Unauthenticated, "invalid or expired oauth state"))
		return
	}

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		httpserver.RespondAppError(w, apperr.New(apperr.Unauthenticated, "identity provider returned an error: "+errParam))
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		httpserver.RespondAppError(w, apperr.New(apperr.InvalidArgument, "missing code parameter"))
		return
	}

	oauthToken, err := p.Config.Exchange(ctx, code)
	if err != nil {
		httpserver.RespondAppError(w, apperr.Wrap(apperr.Unauthenticated, "code exchange failed", err))
		return
	}

	userInfo, err := verifyOAuthIDToken(ctx, p.Verifier, oauthToken)
	if err != nil {
		httpserver.RespondAppError(w, err)
		return
	}

	tenant, err := h.store.FindTenantBySlug(ctx, h.oauth.TenantSlug)
	if err != nil {
		httpserver.RespondAppError(w, err)
		return
	}

	emailLower := strings.ToLower(userInfo.Email)
	user, err := h.store.FindUserByTenantAndEmail(ctx, tenant.ID, emailLower)
	if err != nil {
		socialID := fmt.Sprintf("%s:%s", provider, userInfo.Subject)
		user = &identity.User{
			TenantID:   tenant.ID,
			Email:      userInfo.Email,
			EmailLower: emailLower,
			Verified:   true,
			State:      identity.UserActive,
			SocialID:   &socialID,
		}
		if err := h.store.InsertUser(ctx, user); err != nil {
			httpserver.RespondAppError(w, err)
			return
		}
	}

	session, err := h.mintSession(ctx, tenant.ID, user)
	if err != nil {
		httpserver.RespondAppError(w, err)
		return
	}

	h.audit(r, "user.oauth_login", &tenant.ID, &user.ID, nil, nil, map[string]any{"provider": provider})
	httpserver.Respond(w, http.StatusOK, session)
}

type oauthUserInfo struct {
	Subject string
	Email   string
}

// verifyOAuthIDToken validates the id_token returned by the code exchange
// against the provider's published keys and extracts the subject and email.
func verifyOAuthIDToken(ctx context.Context, verifier *oidc.IDTokenVerifier, tok *oauth2.Token) (oauthUserInfo, error) {
	rawIDToken, ok := tok.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return oauthUserInfo{}, apperr.New(apperr.Unauthenticated, "identity provider returned no id_token")
	}
	idToken, err := verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return oauthUserInfo{}, apperr.Wrap(apperr.Unauthenticated, "verifying id_token", err)
	}

	var claims struct {
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return oauthUserInfo{}, apperr.Wrap(apperr.Internal, "decoding id_token claims", err)
	}
	if claims.Email == "" || !claims.EmailVerified {
		return oauthUserInfo{}, apperr.New(apperr.Unauthenticated, "identity provider did not attest a verified email")
	}
	return oauthUserInfo{Subject: idToken.Subject, Email: claims.Email}, nil
}
