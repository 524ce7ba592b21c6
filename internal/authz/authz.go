// Package authz implements the authorization engine: the capability check
// against a user's active org assignments, and the trust_internal_services
// switch that decides whether a hop validates a bearer token itself or
// trusts metadata planted by an upstream edge.
//
// The decision procedure loads the subject's granted capability keys, then
// tests for the requested key or the superadmin wildcard.
package authz

import (
	"context"

	"github.com/aegiscore/identity/internal/identity"
	"github.com/aegiscore/identity/pkg/apperr"
)

// AuthContext is the materialized result of get_auth_context: everything a
// handler needs to know about who is making the request and what they can
// do, within one tenant.
type AuthContext struct {
	UserID       string
	TenantID     string
	Capabilities map[string]struct{}
	Assignments  []*identity.OrgAssignment
	ScopeNodes   []string
	Trusted      bool // set when trust_internal_services resolved this context without a token
}

// HasCapability reports whether key (or the superadmin wildcard) is granted.
func (a *AuthContext) HasCapability(key string) bool {
	if _, ok := a.Capabilities[identity.SuperadminCapabilityKey]; ok {
		return true
	}
	_, ok := a.Capabilities[key]
	return ok
}

// Engine is the authorization engine.
type Engine struct {
	store                 identity.Store
	trustInternalServices bool
}

// New constructs an Engine. trustInternalServices mirrors the single most
// load-bearing flag in the system: when set, RequireCapability
// trusts x-user-id/x-tenant-id metadata instead of validating a token.
func New(store identity.Store, trustInternalServices bool) *Engine {
	return &Engine{store: store, trustInternalServices: trustInternalServices}
}

// TrustInternalServices reports the engine's configured trust-switch state.
func (e *Engine) TrustInternalServices() bool { return e.trustInternalServices }

// CheckCapability loads the user's active assignments and each role's
// capabilities, allowing on a wildcard or exact match.
//
// Any active assignment granting the key suffices; orgNodeID is accepted
// for callers that already have it on hand but is not yet used to restrict
// the assignment set to ancestors of the context node.
func (e *Engine) CheckCapability(ctx context.Context, userID, tenantID, orgNodeID, capabilityKey string) (bool, *identity.OrgAssignment, error) {
	assignments, err := e.store.FindActiveAssignmentsForUser(ctx, tenantID, userID)
	if err != nil {
		return false, nil, apperr.Wrap(apperr.Internal, "loading assignments", err)
	}
	for _, asn := range assignments {
		caps, err := e.store.GetRoleCapabilities(ctx, asn.RoleID)
		if err != nil {
			return false, nil, apperr.Wrap(apperr.Internal, "loading role capabilities", err)
		}
		for _, c := range caps {
			if c.Key == identity.SuperadminCapabilityKey || c.Key == capabilityKey {
				return true, asn, nil
			}
		}
	}
	return false, nil, nil
}

// GetAuthContext materializes the full set of capabilities, assignments,
// and scope nodes reachable by userID within tenantID.
func (e *Engine) GetAuthContext(ctx context.Context, userID, tenantID string) (*AuthContext, error) {
	assignments, err := e.store.FindActiveAssignmentsForUser(ctx, tenantID, userID)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "loading assignments", err)
	}

	caps := make(map[string]struct{})
	scopeNodes := make([]string, 0, len(assignments))
	for _, asn := range assignments {
		scopeNodes = append(scopeNodes, asn.OrgNodeID)
		roleCaps, err := e.store.GetRoleCapabilities(ctx, asn.RoleID)
		if err != nil {
			return nil, apperr.Wrap(apperr.Internal, "loading role capabilities", err)
		}
		for _, c := range roleCaps {
			caps[c.Key] = struct{}{}
		}
	}

	return &AuthContext{
		UserID:       userID,
		TenantID:     tenantID,
		Capabilities: caps,
		Assignments:  assignments,
		ScopeNodes:   scopeNodes,
	}, nil
}

// RequireCapability gates an operation on capabilityKey: given a subject
// already resolved by the authentication middleware, either the trust
// switch bypassed token validation (subject.Trusted is true and the check
// is skipped entirely), or the caller must hold capabilityKey.
func (e *Engine) RequireCapability(ctx context.Context, subject Subject, capabilityKey string) (*AuthContext, error) {
	if subject.Trusted {
		return &AuthContext{UserID: subject.UserID, TenantID: subject.TenantID, Trusted: true}, nil
	}
	ac, err := e.GetAuthContext(ctx, subject.UserID, subject.TenantID)
	if err != nil {
		return nil, err
	}
	if !ac.HasCapability(capabilityKey) {
		return nil, apperr.New(apperr.PermissionDenied, "missing capability: "+capabilityKey)
	}
	return ac, nil
}

// Subject is the already-authenticated caller a handler hands to
// RequireCapability: either a real token subject, or a trusted internal
// caller whose identity came from x-user-id/x-tenant-id metadata.
type Subject struct {
	UserID   string
	TenantID string
	Trusted  bool
}
