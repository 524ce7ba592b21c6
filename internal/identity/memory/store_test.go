package memory

import (
	"context"
	"testing"
	"time"

	"github.com/aegiscore/identity/internal/identity"
	"github.com/aegiscore/identity/pkg/apperr"
)

func mustTime(t *testing.T, rfc3339 string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, rfc3339)
	if err != nil {
		t.Fatalf("parsing time: %v", err)
	}
	return ts
}

func TestInsertUserRejectsDuplicateEmail(t *testing.T) {
	s := New()
	ctx := context.Background()
	tenant := &identity.Tenant{Slug: "acme", Label: "Acme", State: identity.TenantActive}
	if err := s.InsertTenant(ctx, tenant); err != nil {
		t.Fatalf("InsertTenant: %v", err)
	}

	u1 := &identity.User{TenantID: tenant.ID, Email: "a@b.com", EmailLower: "a@b.com", State: identity.UserActive}
	if err := s.InsertUser(ctx, u1); err != nil {
		t.Fatalf("InsertUser 1: %v", err)
	}
	u2 := &identity.User{TenantID: tenant.ID, Email: "A@B.com", EmailLower: "a@b.com", State: identity.UserActive}
	err := s.InsertUser(ctx, u2)
	if !apperr.Is(err, apperr.AlreadyExists) {
		t.Fatalf("expected already_exists, got %v", err)
	}
}

func TestBootstrapIdempotence(t *testing.T) {
	s := New()
	ctx := context.Background()

	done, err := s.IsBootstrapDone(ctx)
	if err != nil || done {
		t.Fatalf("expected fresh store to not be bootstrapped: %v %v", done, err)
	}
	if err := s.MarkBootstrapDone(ctx); err != nil {
		t.Fatalf("MarkBootstrapDone: %v", err)
	}
	done, err = s.IsBootstrapDone(ctx)
	if err != nil || !done {
		t.Fatalf("expected store to report bootstrapped: %v %v", done, err)
	}
}

func TestActiveAssignmentsForUser(t *testing.T) {
	s := New()
	ctx := context.Background()
	tenant := &identity.Tenant{Slug: "acme", Label: "Acme", State: identity.TenantActive}
	_ = s.InsertTenant(ctx, tenant)

	a := &identity.OrgAssignment{TenantID: tenant.ID, UserID: "u1", OrgNodeID: "n1", RoleID: "r1"}
	if err := s.InsertOrgAssignment(ctx, a); err != nil {
		t.Fatalf("InsertOrgAssignment: %v", err)
	}
	active, err := s.FindActiveAssignmentsForUser(ctx, tenant.ID, "u1")
	if err != nil || len(active) != 1 {
		t.Fatalf("expected 1 active assignment, got %d (%v)", len(active), err)
	}

	if err := s.EndAssignment(ctx, tenant.ID, a.ID); err != nil {
		t.Fatalf("EndAssignment: %v", err)
	}
	active, err = s.FindActiveAssignmentsForUser(ctx, tenant.ID, "u1")
	if err != nil || len(active) != 0 {
		t.Fatalf("expected 0 active assignments after end, got %d (%v)", len(active), err)
	}
}

func TestRefreshTokenRotation(t *testing.T) {
	s := New()
	ctx := context.Background()

	r0 := &identity.RefreshToken{ID: "jti-0", UserID: "u1"}
	if err := s.InsertRefreshToken(ctx, r0); err != nil {
		t.Fatalf("InsertRefreshToken: %v", err)
	}
	if err := s.RevokeRefreshTokenByJTI(ctx, "jti-0"); err != nil {
		t.Fatalf("RevokeRefreshTokenByJTI: %v", err)
	}
	got, err := s.FindRefreshTokenByJTI(ctx, "jti-0")
	if err != nil || !got.Revoked {
		t.Fatalf("expected revoked refresh token, got %+v (%v)", got, err)
	}
}

func TestServiceSecretRotationKeepsGraceCopy(t *testing.T) {
	s := New()
	ctx := context.Background()
	sa := &identity.ServiceAccount{Key: "svc_live_abc", Label: "svc", State: identity.ServiceAccountActive}
	if err := s.InsertServiceAccount(ctx, sa); err != nil {
		t.Fatalf("InsertServiceAccount: %v", err)
	}

	first := &identity.ServiceSecret{SecretHash: "h1", LookupHash: "l1"}
	if err := s.RotateServiceSecret(ctx, sa.ID, first, time.Time{}); err != nil {
		t.Fatalf("RotateServiceSecret 1: %v", err)
	}

	second := &identity.ServiceSecret{SecretHash: "h2", LookupHash: "l2"}
	grace := mustTime(t, "2030-01-01T00:00:00Z")
	if err := s.RotateServiceSecret(ctx, sa.ID, second, grace); err != nil {
		t.Fatalf("RotateServiceSecret 2: %v", err)
	}

	_, sec, err := s.FindServiceByLookupHash(ctx, "l1")
	if err != nil {
		t.Fatalf("expected previous lookup hash to still resolve during grace: %v", err)
	}
	if sec.PreviousLookupHash == nil || *sec.PreviousLookupHash != "l1" {
		t.Fatalf("expected previous lookup hash recorded, got %+v", sec)
	}
}
