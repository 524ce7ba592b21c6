package authz

import (
	"context"
	"testing"

	"github.com/aegiscore/identity/internal/identity"
	"github.com/aegiscore/identity/internal/identity/memory"
)

func seedTenantWithRole(t *testing.T, store *memory.Store, capKeys ...string) (tenantID, userID, roleID string) {
	t.Helper()
	ctx := context.Background()

	tenant := &identity.Tenant{Slug: "acme", Label: "Acme", State: identity.TenantActive}
	if err := store.InsertTenant(ctx, tenant); err != nil {
		t.Fatalf("insert tenant: %v", err)
	}

	node := &identity.OrgNode{TenantID: tenant.ID, TypeCode: "root", Label: "Root", Active: true}
	if err := store.InsertOrgNode(ctx, node); err != nil {
		t.Fatalf("insert org node: %v", err)
	}

	role := &identity.Role{TenantID: tenant.ID, Label: "tester"}
	if err := store.InsertRole(ctx, role); err != nil {
		t.Fatalf("insert role: %v", err)
	}
	for _, key := range capKeys {
		cap, err := store.InsertCapabilityIfMissing(ctx, key)
		if err != nil {
			t.Fatalf("insert capability: %v", err)
		}
		if err := store.AssignCapabilityToRole(ctx, role.ID, cap.ID); err != nil {
			t.Fatalf("assign capability: %v", err)
		}
	}

	user := &identity.User{TenantID: tenant.ID, Email: "u@acme.test", EmailLower: "u@acme.test", State: identity.UserActive}
	if err := store.InsertUser(ctx, user); err != nil {
		t.Fatalf("insert user: %v", err)
	}

	asn := &identity.OrgAssignment{TenantID: tenant.ID, UserID: user.ID, OrgNodeID: node.ID, RoleID: role.ID}
	if err := store.InsertOrgAssignment(ctx, asn); err != nil {
		t.Fatalf("insert assignment: %v", err)
	}

	return tenant.ID, user.ID, role.ID
}

func TestCheckCapabilityAllowsExactMatch(t *testing.T) {
	store := memory.New()
	tenantID, userID, _ := seedTenantWithRole(t, store, "org.read")

	e := New(store, false)
	allowed, asn, err := e.CheckCapability(context.Background(), userID, tenantID, "", "org.read")
	if err != nil {
		t.Fatalf("check capability: %v", err)
	}
	if !allowed || asn == nil {
		t.Fatalf("expected capability to be allowed")
	}
}

func TestCheckCapabilityDeniesMissingKey(t *testing.T) {
	store := memory.New()
	tenantID, userID, _ := seedTenantWithRole(t, store, "org.read")

	e := New(store, false)
	allowed, _, err := e.CheckCapability(context.Background(), userID, tenantID, "", "org.write")
	if err != nil {
		t.Fatalf("check capability: %v", err)
	}
	if allowed {
		t.Fatalf("expected capability to be denied")
	}
}

func TestCheckCapabilityWildcardAllowsAnything(t *testing.T) {
	store := memory.New()
	tenantID, userID, _ := seedTenantWithRole(t, store, identity.SuperadminCapabilityKey)

	e := New(store, false)
	allowed, _, err := e.CheckCapability(context.Background(), userID, tenantID, "", "anything.at.all")
	if err != nil {
		t.Fatalf("check capability: %v", err)
	}
	if !allowed {
		t.Fatalf("expected wildcard capability to allow any key")
	}
}

func TestRequireCapabilityTrustedSubjectSkipsCheck(t *testing.T) {
	store := memory.New()
	e := New(store, true)

	subject := Subject{UserID: "svc-caller", TenantID: "some-tenant", Trusted: true}
	ac, err := e.RequireCapability(context.Background(), subject, "anything")
	if err != nil {
		t.Fatalf("require capability: %v", err)
	}
	if !ac.Trusted {
		t.Fatalf("expected trusted auth context")
	}
}

func TestRequireCapabilityDeniesWithoutGrant(t *testing.T) {
	store := memory.New()
	tenantID, userID, _ := seedTenantWithRole(t, store, "org.read")

	e := New(store, false)
	_, err := e.RequireCapability(context.Background(), Subject{UserID: userID, TenantID: tenantID}, "org.write")
	if err == nil {
		t.Fatalf("expected permission_denied")
	}
}

func TestGetAuthContextAggregatesCapabilitiesAndScope(t *testing.T) {
	store := memory.New()
	tenantID, userID, _ := seedTenantWithRole(t, store, "org.read", "role.read")

	e := New(store, false)
	ac, err := e.GetAuthContext(context.Background(), userID, tenantID)
	if err != nil {
		t.Fatalf("get auth context: %v", err)
	}
	if !ac.HasCapability("org.read") || !ac.HasCapability("role.read") {
		t.Fatalf("expected both capabilities present, got %v", ac.Capabilities)
	}
	if len(ac.ScopeNodes) != 1 {
		t.Fatalf("expected exactly one scope node, got %d", len(ac.ScopeNodes))
	}
}
