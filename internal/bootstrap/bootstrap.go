// Package bootstrap implements the one-shot deployment bootstrap: create
// the first tenant, its root org node, a superadmin role carrying the "*"
// capability, an assignment, and an admin session, then mark the operation
// done so a second call fails closed.
package bootstrap

import (
	"context"
	"strings"
	"time"

	"github.com/aegiscore/identity/internal/crypto"
	"github.com/aegiscore/identity/internal/identity"
	"github.com/aegiscore/identity/internal/policy"
	"github.com/aegiscore/identity/internal/token"
	"github.com/aegiscore/identity/pkg/apperr"
)

// Request carries the operator-supplied bootstrap parameters.
type Request struct {
	TenantSlug       string
	TenantLabel      string
	AdminEmail       string
	AdminPassword    string
	AdminDisplayName string
}

// Result is returned on a successful bootstrap: the created tenant/root
// node/admin user plus a fresh session for the admin.
type Result struct {
	Tenant       *identity.Tenant
	RootNode     *identity.OrgNode
	AdminUser    *identity.User
	AccessToken  string
	RefreshToken string
}

// Service performs the bootstrap operation.
type Service struct {
	store  identity.Store
	tokens *token.Service
	hasher *crypto.PasswordHasher
}

// New constructs a bootstrap Service.
func New(store identity.Store, tokens *token.Service, hasher *crypto.PasswordHasher) *Service {
	return &Service{store: store, tokens: tokens, hasher: hasher}
}

// Run performs the bootstrap. It checks IsBootstrapDone first and fails
// with FailedPrecondition if the deployment has already been bootstrapped.
func (s *Service) Run(ctx context.Context, req Request) (*Result, error) {
	done, err := s.store.IsBootstrapDone(ctx)
	if err != nil {
		return nil, err
	}
	if done {
		return nil, apperr.New(apperr.FailedPrecondition, "bootstrap has already been run")
	}

	tenant := &identity.Tenant{
		Slug:   req.TenantSlug,
		Label:  req.TenantLabel,
		State:  identity.TenantActive,
		Policy: policy.Default(),
	}
	if err := s.store.InsertTenant(ctx, tenant); err != nil {
		return nil, err
	}

	rootNode := &identity.OrgNode{
		TenantID: tenant.ID,
		TypeCode: "root",
		Label:    "Root",
		Active:   true,
	}
	if err := s.store.InsertOrgNode(ctx, rootNode); err != nil {
		return nil, err
	}

	role := &identity.Role{TenantID: tenant.ID, Label: "superadmin"}
	if err := s.store.InsertRole(ctx, role); err != nil {
		return nil, err
	}

	cap, err := s.store.InsertCapabilityIfMissing(ctx, identity.SuperadminCapabilityKey)
	if err != nil {
		return nil, err
	}
	if err := s.store.AssignCapabilityToRole(ctx, role.ID, cap.ID); err != nil {
		return nil, err
	}

	passwordHash, err := s.hasher.Hash(req.AdminPassword)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "hashing admin password", err)
	}

	var displayName *string
	if req.AdminDisplayName != "" {
		displayName = &req.AdminDisplayName
	}
	admin := &identity.User{
		TenantID:     tenant.ID,
		Email:        req.AdminEmail,
		EmailLower:   strings.ToLower(req.AdminEmail),
		PasswordHash: &passwordHash,
		DisplayName:  displayName,
		Verified:     true,
		State:        identity.UserActive,
	}
	if err := s.store.InsertUser(ctx, admin); err != nil {
		return nil, err
	}

	assignment := &identity.OrgAssignment{
		TenantID:  tenant.ID,
		UserID:    admin.ID,
		OrgNodeID: rootNode.ID,
		RoleID:    role.ID,
	}
	if err := s.store.InsertOrgAssignment(ctx, assignment); err != nil {
		return nil, err
	}

	access, refresh, refreshJTI, err := s.tokens.GenerateTokenPair(admin.ID, token.ClaimsContext{
		AppID: tenant.ID,
		Email: admin.Email,
	})
	if err != nil {
		return nil, err
	}

	if err := s.store.InsertRefreshToken(ctx, &identity.RefreshToken{
		ID:        refreshJTI,
		UserID:    admin.ID,
		TokenHash: crypto.HashLookup(refresh),
		ExpiresAt: time.Now().Add(s.tokens.RefreshTTL()),
	}); err != nil {
		return nil, err
	}

	if err := s.store.MarkBootstrapDone(ctx); err != nil {
		return nil, err
	}

	return &Result{
		Tenant:       tenant,
		RootNode:     rootNode,
		AdminUser:    admin,
		AccessToken:  access,
		RefreshToken: refresh,
	}, nil
}
