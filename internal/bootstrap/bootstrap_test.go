package bootstrap

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/aegiscore/identity/internal/crypto"
	"github.com/aegiscore/identity/internal/identity"
	"github.com/aegiscore/identity/internal/identity/memory"
	"github.com/aegiscore/identity/internal/token"
	"github.com/aegiscore/identity/pkg/apperr"
)

func testService(t *testing.T) (*Service, identity.Store) {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}
	store := memory.New()
	tokens := token.NewService(priv, "test-key", "identity-service", "identity-service", 15*time.Minute, 30*24*time.Hour)
	return New(store, tokens, crypto.DefaultPasswordHasher()), store
}

func TestBootstrapCreatesTenantRootRoleAndAdmin(t *testing.T) {
	svc, store := testService(t)

	res, err := svc.Run(context.Background(), Request{
		TenantSlug:    "acme",
		TenantLabel:   "Acme Corp",
		AdminEmail:    "admin@acme.test",
		AdminPassword: "sup3rSecret!",
	})
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if res.Tenant.Slug != "acme" {
		t.Fatalf("expected tenant slug acme, got %q", res.Tenant.Slug)
	}
	if res.AccessToken == "" || res.RefreshToken == "" {
		t.Fatalf("expected a minted session")
	}

	done, err := store.IsBootstrapDone(context.Background())
	if err != nil || !done {
		t.Fatalf("expected bootstrap marked done, err=%v done=%v", err, done)
	}
}

func TestBootstrapSecondCallFailsPrecondition(t *testing.T) {
	svc, _ := testService(t)
	req := Request{
		TenantSlug:    "acme",
		TenantLabel:   "Acme Corp",
		AdminEmail:    "admin@acme.test",
		AdminPassword: "sup3rSecret!",
	}

	if _, err := svc.Run(context.Background(), req); err != nil {
		t.Fatalf("first bootstrap: %v", err)
	}

	_, err := svc.Run(context.Background(), req)
	if !apperr.Is(err, apperr.FailedPrecondition) {
		t.Fatalf("expected failed_precondition, got %v", err)
	}
}
