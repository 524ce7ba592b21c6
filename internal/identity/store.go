package identity

import (
	"context"
	"time"
)

// Store is the single persistence contract of the identity plane. Handlers borrow
// entities for the duration of a request and never cache them; caches live
// in internal/cache with explicit TTLs. Implementations choose their own
// backend (postgres here); the interface is normative, not the storage
// technology.
type Store interface {
	// Tenants
	FindTenantByID(ctx context.Context, id string) (*Tenant, error)
	FindTenantBySlug(ctx context.Context, slug string) (*Tenant, error)
	InsertTenant(ctx context.Context, t *Tenant) error
	SetTenantState(ctx context.Context, id string, state TenantState) error

	// OrgNodes
	InsertOrgNode(ctx context.Context, n *OrgNode) error
	FindOrgNodeByID(ctx context.Context, tenantID, id string) (*OrgNode, error)
	FindOrgNodesByTenant(ctx context.Context, tenantID string) ([]*OrgNode, error)
	FindOrgNodeDescendants(ctx context.Context, tenantID, id string) ([]*OrgNode, error)
	SetOrgNodeActive(ctx context.Context, tenantID, id string, active bool) error

	// Roles
	InsertRole(ctx context.Context, r *Role) error
	FindRoleByID(ctx context.Context, tenantID, id string) (*Role, error)
	FindRolesByTenant(ctx context.Context, tenantID string) ([]*Role, error)

	// Capabilities
	InsertCapabilityIfMissing(ctx context.Context, key string) (*Capability, error)
	FindCapabilityByKey(ctx context.Context, key string) (*Capability, error)
	GetAllCapabilities(ctx context.Context) ([]*Capability, error)
	GetRoleCapabilities(ctx context.Context, roleID string) ([]*Capability, error)
	AssignCapabilityToRole(ctx context.Context, roleID, capID string) error
	UnassignCapabilityFromRole(ctx context.Context, roleID, capID string) error

	// Users
	InsertUser(ctx context.Context, u *User) error
	FindUserByID(ctx context.Context, tenantID, id string) (*User, error)
	FindUserByTenantAndEmail(ctx context.Context, tenantID, emailLower string) (*User, error)
	UpdateUserFields(ctx context.Context, tenantID, id string, fields map[string]any) error

	// Assignments
	InsertOrgAssignment(ctx context.Context, a *OrgAssignment) error
	EndAssignment(ctx context.Context, tenantID, id string) error
	FindActiveAssignmentsForUser(ctx context.Context, tenantID, userID string) ([]*OrgAssignment, error)

	// Visibility
	InsertVisibilityGrant(ctx context.Context, g *VisibilityGrant) error
	RevokeVisibilityGrant(ctx context.Context, tenantID, id string) error
	FindVisibilityGrantsForUser(ctx context.Context, tenantID, userID string) ([]*VisibilityGrant, error)
	FindActiveVisibilityGrantsForUser(ctx context.Context, tenantID, userID string) ([]*VisibilityGrant, error)

	// Refresh tokens
	InsertRefreshToken(ctx context.Context, t *RefreshToken) error
	FindRefreshTokenByJTI(ctx context.Context, jti string) (*RefreshToken, error)
	RevokeRefreshTokenByJTI(ctx context.Context, jti string) error
	RevokeAllRefreshTokensForUser(ctx context.Context, userID string) error
	// RotateRefreshToken atomically revokes predecessorJTI and inserts
	// successor in one effect: if the predecessor is already
	// revoked or absent, neither takes hold.
	RotateRefreshToken(ctx context.Context, predecessorJTI string, successor *RefreshToken) error

	// OTPs
	InsertOTP(ctx context.Context, o *OtpRecord) error
	FindOTPByID(ctx context.Context, id string) (*OtpRecord, error)
	FindActiveOTP(ctx context.Context, tenantID, destination string, purpose OTPPurpose) (*OtpRecord, error)
	ConsumeOTP(ctx context.Context, id string) error
	IncrementOTPAttempts(ctx context.Context, id string) error

	// Service accounts
	InsertServiceAccount(ctx context.Context, s *ServiceAccount) error
	FindServiceByID(ctx context.Context, id string) (*ServiceAccount, error)
	FindServiceByKey(ctx context.Context, key string) (*ServiceAccount, error)
	FindServiceByLookupHash(ctx context.Context, lookupHash string) (*ServiceAccount, *ServiceSecret, error)
	SetServiceState(ctx context.Context, id string, state ServiceAccountState) error
	RotateServiceSecret(ctx context.Context, serviceID string, next *ServiceSecret, graceExpiry time.Time) error
	GetServicePermissions(ctx context.Context, serviceID string) ([]string, error)
	GrantServicePermission(ctx context.Context, serviceID, permKey string) error

	// Audit
	InsertAuditEvent(ctx context.Context, e *AuditEvent) error
	InsertSecurityEvent(ctx context.Context, e *SecurityAuditEvent) error
	// FindAuditEvents returns up to limit events for a tenant, newest
	// first. A non-zero (beforeTime, beforeID) keyset resumes after the
	// last event of the previous page.
	FindAuditEvents(ctx context.Context, tenantID string, beforeTime time.Time, beforeID string, limit int) ([]*AuditEvent, error)

	// Misc
	HealthCheck(ctx context.Context) error
	IsBootstrapDone(ctx context.Context) (bool, error)
	MarkBootstrapDone(ctx context.Context) error
}
