package handlers

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aegiscore/identity/internal/authz"
	"github.com/aegiscore/identity/internal/bootstrap"
	"github.com/aegiscore/identity/internal/cache"
	"github.com/aegiscore/identity/internal/crypto"
	"github.com/aegiscore/identity/internal/identity/memory"
	"github.com/aegiscore/identity/internal/token"
)

const testAdminKey = "test-admin-key"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	handler *Handler
	server  *httptest.Server
	store   *memory.Store
	kv      *cache.MemoryStore
	tokens  *token.Service
}

func newFixture(t *testing.T, trustInternal bool) *fixture {
	t.Helper()

	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generating rsa key: %v", err)
	}
	tokens := token.NewService(priv, token.KeyID(&priv.PublicKey),
		"identity-test", "identity-test", 15*time.Minute, 30*24*time.Hour)

	store := memory.New()
	kv := cache.NewMemoryStore()
	hasher := crypto.DefaultPasswordHasher()

	h := New(Deps{
		Logger:      testLogger(),
		Store:       store,
		Tokens:      tokens,
		Authz:       authz.New(store, trustInternal),
		Cache:       kv,
		Hasher:      hasher,
		Bootstrap:   bootstrap.New(store, tokens, hasher),
		AdminAPIKey: testAdminKey,
	})

	srv := httptest.NewServer(h.Routes())
	t.Cleanup(srv.Close)

	return &fixture{handler: h, server: srv, store: store, kv: kv, tokens: tokens}
}

func (f *fixture) do(t *testing.T, method, path string, body any, headers map[string]string) (*http.Response, map[string]any) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encoding request body: %v", err)
		}
	}
	req, err := http.NewRequest(method, f.server.URL+path, &buf)
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var decoded map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

func (f *fixture) bootstrapTenant(t *testing.T) (tenantID, adminUserID, accessToken, refreshToken string) {
	t.Helper()
	resp, body := f.do(t, http.MethodPost, "/bootstrap", map[string]any{
		"admin_api_key":  testAdminKey,
		"tenant_slug":    "acme",
		"tenant_label":   "Acme Corp",
		"admin_email":    "admin@acme.com",
		"admin_password": "SecurePass123!",
	}, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("bootstrap: status = %d, body = %v", resp.StatusCode, body)
	}
	return body["tenant_id"].(string), body["admin_user_id"].(string),
		body["access_token"].(string), body["refresh_token"].(string)
}

func bearer(tok string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + tok}
}

func TestBootstrapThenLogin(t *testing.T) {
	f := newFixture(t, false)
	tenantID, adminID, access, _ := f.bootstrapTenant(t)

	claims, err := f.tokens.ValidateAccess(access)
	if err != nil {
		t.Fatalf("validating bootstrap access token: %v", err)
	}
	if claims.Subject != adminID {
		t.Errorf("sub = %q, want admin user id %q", claims.Subject, adminID)
	}
	if claims.AppID != tenantID {
		t.Errorf("app_id = %q, want tenant id %q", claims.AppID, tenantID)
	}

	resp, body := f.do(t, http.MethodPost, "/auth/login", map[string]any{
		"tenant_slug": "acme",
		"email":       "Admin@acme.com",
		"password":    "SecurePass123!",
	}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login: status = %d, body = %v", resp.StatusCode, body)
	}
	if body["access_token"] == "" {
		t.Error("login returned no access token")
	}

	// The superadmin wildcard admits the admin to every guarded endpoint.
	resp, body = f.do(t, http.MethodGet, "/admin/orgs", nil, bearer(access))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list orgs: status = %d, body = %v", resp.StatusCode, body)
	}
	if nodes, ok := body["items"].([]any); !ok || len(nodes) != 1 {
		t.Errorf("items = %v, want the single root node", body["items"])
	}
}

func TestBootstrapIsOneShot(t *testing.T) {
	f := newFixture(t, false)
	f.bootstrapTenant(t)

	resp, body := f.do(t, http.MethodPost, "/bootstrap", map[string]any{
		"admin_api_key":  testAdminKey,
		"tenant_slug":    "other",
		"tenant_label":   "Other",
		"admin_email":    "admin@other.com",
		"admin_password": "SecurePass123!",
	}, nil)
	if resp.StatusCode != http.StatusPreconditionFailed && resp.StatusCode != http.StatusConflict {
		t.Fatalf("second bootstrap: status = %d, body = %v", resp.StatusCode, body)
	}
	if body["error"] != "failed_precondition" {
		t.Errorf("error kind = %v, want failed_precondition", body["error"])
	}
}

func TestBootstrapRejectsWrongAdminKey(t *testing.T) {
	f := newFixture(t, false)
	resp, body := f.do(t, http.MethodPost, "/bootstrap", map[string]any{
		"admin_api_key":  "wrong",
		"tenant_slug":    "acme",
		"tenant_label":   "Acme",
		"admin_email":    "admin@acme.com",
		"admin_password": "SecurePass123!",
	}, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, body = %v", resp.StatusCode, body)
	}
}

func TestRegisterEnforcesTenantPasswordPolicy(t *testing.T) {
	f := newFixture(t, false)
	f.bootstrapTenant(t)

	resp, body := f.do(t, http.MethodPost, "/auth/register", map[string]any{
		"tenant_slug": "acme",
		"email":       "weak@acme.com",
		"password":    "alllowercase",
	}, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, body = %v", resp.StatusCode, body)
	}
}

func TestRegisterDuplicateEmailIsAlreadyExists(t *testing.T) {
	f := newFixture(t, false)
	f.bootstrapTenant(t)

	payload := map[string]any{
		"tenant_slug": "acme",
		"email":       "dup@acme.com",
		"password":    "SecurePass123!",
	}
	resp, body := f.do(t, http.MethodPost, "/auth/register", payload, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("first register: status = %d, body = %v", resp.StatusCode, body)
	}
	resp, body = f.do(t, http.MethodPost, "/auth/register", payload, nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("second register: status = %d, body = %v", resp.StatusCode, body)
	}
	if body["error"] != "already_exists" {
		t.Errorf("error kind = %v, want already_exists", body["error"])
	}
}

func TestRefreshRotationChain(t *testing.T) {
	f := newFixture(t, false)
	_, _, _, r0 := f.bootstrapTenant(t)

	resp, body := f.do(t, http.MethodPost, "/auth/refresh", map[string]any{"refresh_token": r0}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("refresh(r0): status = %d, body = %v", resp.StatusCode, body)
	}
	r1 := body["refresh_token"].(string)

	resp, body = f.do(t, http.MethodPost, "/auth/refresh", map[string]any{"refresh_token": r1}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("refresh(r1): status = %d, body = %v", resp.StatusCode, body)
	}
	a2 := body["access_token"].(string)
	r2 := body["refresh_token"].(string)

	// The rotated-out predecessor is dead.
	resp, body = f.do(t, http.MethodPost, "/auth/refresh", map[string]any{"refresh_token": r0}, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("refresh(r0) after rotation: status = %d, body = %v", resp.StatusCode, body)
	}

	// Logout kills both the refresh chain and the live access token.
	resp, _ = f.do(t, http.MethodPost, "/auth/logout", map[string]any{
		"refresh_token": r2,
		"access_token":  a2,
	}, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("logout: status = %d", resp.StatusCode)
	}

	resp, body = f.do(t, http.MethodPost, "/auth/refresh", map[string]any{"refresh_token": r2}, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("refresh(r2) after logout: status = %d, body = %v", resp.StatusCode, body)
	}

	resp, body = f.do(t, http.MethodPost, "/auth/introspect", map[string]any{"token": a2}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("introspect: status = %d", resp.StatusCode)
	}
	if body["active"] != false {
		t.Errorf("introspect after logout: active = %v, want false", body["active"])
	}
}

func TestIntrospectNeverErrorsOnGarbage(t *testing.T) {
	f := newFixture(t, false)

	resp, body := f.do(t, http.MethodPost, "/auth/introspect", map[string]any{"token": "not-a-jwt"}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body = %v", resp.StatusCode, body)
	}
	if body["active"] != false {
		t.Errorf("active = %v, want false", body["active"])
	}
}

func TestCapabilityGuardDeniesAndWildcardAdmits(t *testing.T) {
	f := newFixture(t, false)
	_, _, adminAccess, _ := f.bootstrapTenant(t)

	// A role with only org.node:read.
	resp, body := f.do(t, http.MethodPost, "/admin/roles", map[string]any{"label": "reader"}, bearer(adminAccess))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create role: status = %d, body = %v", resp.StatusCode, body)
	}
	roleID := body["id"].(string)

	resp, _ = f.do(t, http.MethodPost, "/admin/roles/"+roleID+"/capabilities",
		map[string]any{"key": "org.node:read"}, bearer(adminAccess))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("assign capability: status = %d", resp.StatusCode)
	}

	// A user wearing only that role.
	resp, body = f.do(t, http.MethodPost, "/auth/register", map[string]any{
		"tenant_slug": "acme",
		"email":       "reader@acme.com",
		"password":    "SecurePass123!",
	}, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register: status = %d, body = %v", resp.StatusCode, body)
	}
	readerAccess := body["access_token"].(string)

	resp, body = f.do(t, http.MethodGet, "/admin/orgs", nil, bearer(adminAccess))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list orgs: status = %d", resp.StatusCode)
	}
	rootID := body["items"].([]any)[0].(map[string]any)["id"].(string)

	readerClaims, err := f.tokens.ValidateAccess(readerAccess)
	if err != nil {
		t.Fatalf("validating reader token: %v", err)
	}
	resp, _ = f.do(t, http.MethodPost, "/admin/assignments", map[string]any{
		"user_id":     readerClaims.Subject,
		"org_node_id": rootID,
		"role_id":     roleID,
	}, bearer(adminAccess))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create assignment: status = %d", resp.StatusCode)
	}

	// org.node:read does not admit org.node:create.
	resp, body = f.do(t, http.MethodPost, "/admin/orgs", map[string]any{
		"type_code": "team",
		"label":     "Team A",
	}, bearer(readerAccess))
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("create org as reader: status = %d, body = %v", resp.StatusCode, body)
	}
	if body["error"] != "permission_denied" {
		t.Errorf("error kind = %v, want permission_denied", body["error"])
	}

	// Granting the wildcard to the same role flips the decision.
	resp, _ = f.do(t, http.MethodPost, "/admin/roles/"+roleID+"/capabilities",
		map[string]any{"key": "*"}, bearer(adminAccess))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("assign wildcard: status = %d", resp.StatusCode)
	}
	resp, body = f.do(t, http.MethodPost, "/admin/orgs", map[string]any{
		"type_code": "team",
		"label":     "Team A",
	}, bearer(readerAccess))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create org with wildcard: status = %d, body = %v", resp.StatusCode, body)
	}
}

func TestTrustModeAcceptsMetadataWithoutToken(t *testing.T) {
	trusted := newFixture(t, true)
	tenantID, adminID, _, _ := trusted.bootstrapTenant(t)

	resp, body := trusted.do(t, http.MethodGet, "/me", nil, map[string]string{
		"x-user-id":   adminID,
		"x-tenant-id": tenantID,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("trusted /me: status = %d, body = %v", resp.StatusCode, body)
	}
	if body["id"] != adminID {
		t.Errorf("id = %v, want %v", body["id"], adminID)
	}

	// The same request without trust mode is rejected outright.
	untrusted := newFixture(t, false)
	tenantID, adminID, _, _ = untrusted.bootstrapTenant(t)
	resp, body = untrusted.do(t, http.MethodGet, "/me", nil, map[string]string{
		"x-user-id":   adminID,
		"x-tenant-id": tenantID,
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("untrusted /me: status = %d, body = %v", resp.StatusCode, body)
	}
}

func TestOTPExhaustionLocksOutCorrectCode(t *testing.T) {
	f := newFixture(t, false)
	f.bootstrapTenant(t)

	resp, body := f.do(t, http.MethodPost, "/auth/otp/send", map[string]any{
		"tenant_slug": "acme",
		"destination": "admin@acme.com",
		"channel":     "email",
		"purpose":     "login",
	}, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("send otp: status = %d, body = %v", resp.StatusCode, body)
	}
	otpID := body["otp_id"].(string)

	for i := 0; i < otpMaxAttempts; i++ {
		resp, _ = f.do(t, http.MethodPost, "/auth/otp/verify", map[string]any{
			"tenant_slug": "acme",
			"otp_id":      otpID,
			"code":        fmt.Sprintf("%06d", i),
		}, nil)
		if resp.StatusCode == http.StatusOK {
			t.Fatalf("attempt %d with a guessed code unexpectedly succeeded", i)
		}
	}

	// Exhausted: even the right code is refused. The test cannot know
	// the right code here, but every code must now yield unauthenticated.
	resp, body = f.do(t, http.MethodPost, "/auth/otp/verify", map[string]any{
		"tenant_slug": "acme",
		"otp_id":      otpID,
		"code":        "000000",
	}, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("verify after exhaustion: status = %d, body = %v", resp.StatusCode, body)
	}
}

func TestChangePasswordRevokesSessions(t *testing.T) {
	f := newFixture(t, false)
	_, _, access, refresh := f.bootstrapTenant(t)

	resp, body := f.do(t, http.MethodPost, "/me/password", map[string]any{
		"current_password": "SecurePass123!",
		"new_password":     "EvenStronger456!",
	}, bearer(access))
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("change password: status = %d, body = %v", resp.StatusCode, body)
	}

	resp, body = f.do(t, http.MethodPost, "/auth/refresh", map[string]any{"refresh_token": refresh}, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("refresh after password change: status = %d, body = %v", resp.StatusCode, body)
	}

	resp, body = f.do(t, http.MethodPost, "/auth/login", map[string]any{
		"tenant_slug": "acme",
		"email":       "admin@acme.com",
		"password":    "EvenStronger456!",
	}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login with new password: status = %d, body = %v", resp.StatusCode, body)
	}
}

func TestAccountLockoutAfterRepeatedFailures(t *testing.T) {
	f := newFixture(t, false)
	f.bootstrapTenant(t)

	for i := 0; i < 5; i++ {
		resp, _ := f.do(t, http.MethodPost, "/auth/login", map[string]any{
			"tenant_slug": "acme",
			"email":       "admin@acme.com",
			"password":    "wrong-password",
		}, nil)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("failed login %d: status = %d", i, resp.StatusCode)
		}
	}

	// Locked: even the right password is refused until the lockout expires.
	resp, body := f.do(t, http.MethodPost, "/auth/login", map[string]any{
		"tenant_slug": "acme",
		"email":       "admin@acme.com",
		"password":    "SecurePass123!",
	}, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("login while locked: status = %d, body = %v", resp.StatusCode, body)
	}
}

func TestServiceAccountLifecycle(t *testing.T) {
	f := newFixture(t, false)
	tenantID, adminID, _, _ := f.bootstrapTenant(t)

	adminHdr := map[string]string{"X-Admin-Api-Key": testAdminKey}

	resp, body := f.do(t, http.MethodPost, "/admin/services/", map[string]any{
		"tenant_id":   tenantID,
		"key":         "billing",
		"label":       "Billing Service",
		"live":        true,
		"permissions": []string{"authz:check"},
	}, adminHdr)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create service: status = %d, body = %v", resp.StatusCode, body)
	}
	svcID := body["id"].(string)
	apiSecret := body["api_secret"].(string)
	if len(apiSecret) < len("svc_live_")+20 {
		t.Fatalf("api secret looks too short: %q", apiSecret)
	}

	// The secret authenticates an s2s capability check.
	resp, body = f.do(t, http.MethodPost, "/s2s/authz/check", map[string]any{
		"user_id":    adminID,
		"capability": "org.node:create",
	}, map[string]string{"X-Api-Key": apiSecret})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("s2s check: status = %d, body = %v", resp.StatusCode, body)
	}
	if body["allowed"] != true {
		t.Errorf("allowed = %v, want true (superadmin wildcard)", body["allowed"])
	}

	// Rotation keeps the old secret working through the grace window.
	resp, body = f.do(t, http.MethodPost, "/admin/services/"+svcID+"/rotate", map[string]any{}, adminHdr)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("rotate: status = %d, body = %v", resp.StatusCode, body)
	}
	newSecret := body["api_secret"].(string)

	for name, secret := range map[string]string{"new": newSecret, "grace": apiSecret} {
		resp, body = f.do(t, http.MethodPost, "/s2s/authz/check", map[string]any{
			"user_id":    adminID,
			"capability": "org.node:create",
		}, map[string]string{"X-Api-Key": secret})
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("s2s check with %s secret: status = %d, body = %v", name, resp.StatusCode, body)
		}
	}

	// Revocation disables the account; the identity cache must not outlive
	// it in tests, so clear it the way an expiring TTL would.
	resp, _ = f.do(t, http.MethodPost, "/admin/services/"+svcID+"/revoke", map[string]any{}, adminHdr)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("revoke: status = %d", resp.StatusCode)
	}
	_ = f.kv.Delete(context.Background(), "svcauth:"+crypto.HashLookup(newSecret))
	_ = f.kv.Delete(context.Background(), "svcauth:"+crypto.HashLookup(apiSecret))

	resp, body = f.do(t, http.MethodPost, "/s2s/authz/check", map[string]any{
		"user_id":    adminID,
		"capability": "org.node:create",
	}, map[string]string{"X-Api-Key": newSecret})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("s2s check after revoke: status = %d, body = %v", resp.StatusCode, body)
	}
}

func TestAdminEndpointsRejectAnonymous(t *testing.T) {
	f := newFixture(t, false)
	f.bootstrapTenant(t)

	resp, body := f.do(t, http.MethodGet, "/admin/orgs", nil, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, body = %v", resp.StatusCode, body)
	}
}
