// Package identity holds the domain entities of the identity plane and
// the single Store contract that every backend (postgres, in-memory)
// implements. Domain types are plain structs; persistence lives in
// sibling implementation packages (internal/identity/postgres).
package identity

import (
	"time"

	"github.com/aegiscore/identity/internal/policy"
)

// TenantState is the lifecycle state of a Tenant.
type TenantState string

const (
	TenantActive    TenantState = "active"
	TenantSuspended TenantState = "suspended"
)

// Tenant is the top-level isolation unit.
type Tenant struct {
	ID        string
	Slug      string
	Label     string
	State     TenantState
	Policy    policy.AuthPolicy
	CreatedAt time.Time
}

// OrgNode is one node of a tenant's org forest.
type OrgNode struct {
	ID        string
	TenantID  string
	ParentID  *string
	TypeCode  string
	Label     string
	Active    bool
	CreatedAt time.Time
}

// Role is a tenant-scoped bundle of capabilities.
type Role struct {
	ID        string
	TenantID  string
	Label     string
	CreatedAt time.Time
}

// Capability is a global, opaque permission key. "*" is the superadmin
// wildcard.
type Capability struct {
	ID        string
	Key       string
	CreatedAt time.Time
}

// SuperadminCapabilityKey is the reserved wildcard capability.
const SuperadminCapabilityKey = "*"

// UserState is the lifecycle state of a User.
type UserState string

const (
	UserActive      UserState = "active"
	UserSuspended   UserState = "suspended"
	UserDeactivated UserState = "deactivated"
)

// User is a tenant-scoped account, password- or social-authenticated.
type User struct {
	ID           string
	TenantID     string
	Email        string
	EmailLower   string
	PasswordHash *string
	DisplayName  *string
	Verified     bool
	State        UserState
	SocialID     *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// OrgAssignment binds a user to a role at an org node for a time window.
// Active at t iff StartAt <= t and (EndAt is nil or t < EndAt).
type OrgAssignment struct {
	ID        string
	TenantID  string
	UserID    string
	OrgNodeID string
	RoleID    string
	StartAt   time.Time
	EndAt     *time.Time
}

// Active reports whether the assignment is in effect at t.
func (a OrgAssignment) Active(t time.Time) bool {
	if t.Before(a.StartAt) {
		return false
	}
	return a.EndAt == nil || t.Before(*a.EndAt)
}

// VisibilityScope is the access level of a VisibilityGrant.
type VisibilityScope string

const (
	VisibilityRead  VisibilityScope = "read"
	VisibilityWrite VisibilityScope = "write"
	VisibilityAdmin VisibilityScope = "admin"
)

// VisibilityGrant is a data-visibility gate, orthogonal to capabilities.
type VisibilityGrant struct {
	ID        string
	TenantID  string
	UserID    string
	OrgNodeID string
	Scope     VisibilityScope
	StartAt   time.Time
	EndAt     *time.Time
}

// Active reports whether the grant is in effect at t.
func (g VisibilityGrant) Active(t time.Time) bool {
	if t.Before(g.StartAt) {
		return false
	}
	return g.EndAt == nil || t.Before(*g.EndAt)
}

// RefreshToken tracks a refresh JTI; the raw token string is never stored,
// only its hash.
type RefreshToken struct {
	ID        string // == JTI
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	Revoked   bool
}

// OTPChannel is the delivery channel of an OtpRecord.
type OTPChannel string

const (
	OTPChannelEmail    OTPChannel = "email"
	OTPChannelSMS      OTPChannel = "sms"
	OTPChannelWhatsApp OTPChannel = "whatsapp"
)

// OTPPurpose is what an OtpRecord is being used to confirm.
type OTPPurpose string

const (
	OTPPurposeLogin          OTPPurpose = "login"
	OTPPurposeVerifyEmail    OTPPurpose = "verify_email"
	OTPPurposeVerifyPhone    OTPPurpose = "verify_phone"
	OTPPurposeResetPassword  OTPPurpose = "reset_password"
)

// OtpRecord is a one-time-password challenge.
type OtpRecord struct {
	ID          string
	TenantID    string
	Destination string
	Channel     OTPChannel
	Purpose     OTPPurpose
	CodeHash    string
	Attempts    int
	MaxAttempts int
	ExpiresAt   time.Time
	ConsumedAt  *time.Time
}

// Expired reports whether the OTP's window has closed at t.
func (o OtpRecord) Expired(t time.Time) bool { return t.After(o.ExpiresAt) }

// Exhausted reports whether the OTP has used up its attempt budget.
func (o OtpRecord) Exhausted() bool { return o.Attempts >= o.MaxAttempts }

// Consumed reports whether the OTP has already been used successfully.
func (o OtpRecord) Consumed() bool { return o.ConsumedAt != nil }

// ServiceAccountState is the lifecycle state of a ServiceAccount.
type ServiceAccountState string

const (
	ServiceAccountActive   ServiceAccountState = "active"
	ServiceAccountDisabled ServiceAccountState = "disabled"
)

// ServiceAccount is a non-human caller identity.
//
// SigningSecret is the symmetric HMAC key used by the signature
// middleware. Unlike the bearer-style ServiceSecret below (which is
// hashed at rest because it is presented and compared, never recomputed
// server-side), an HMAC key must be held in a form the server can use to
// recompute a MAC, so it is stored as-is.
type ServiceAccount struct {
	ID            string
	TenantID      *string
	Key           string
	Label         string
	State         ServiceAccountState
	SigningSecret string
	CreatedAt     time.Time
}

// ServiceSecret is a rotatable credential for a ServiceAccount, with a
// grace window for the previous secret.
type ServiceSecret struct {
	ID                  string
	ServiceID           string
	SecretHash          string
	LookupHash          string
	CreatedAt           time.Time
	RevokedAt           *time.Time
	PreviousSecretHash  *string
	PreviousLookupHash  *string
	PreviousExpiry      *time.Time
}

// ServicePermission grants a service account a permission key.
type ServicePermission struct {
	ServiceID string
	PermKey   string
}

// AuditEvent is an append-only record of a business-relevant action.
type AuditEvent struct {
	ID            string
	TenantID      *string
	ActorUserID   *string
	ActorSvcID    *string
	EventTypeCode string
	TargetType    *string
	TargetID      *string
	EventData     map[string]any
	IP            *string
	UserAgent     *string
	CreatedAt     time.Time
}

// SecurityEventSeverity classifies a SecurityAuditEvent.
type SecurityEventSeverity string

const (
	SeverityInfo     SecurityEventSeverity = "info"
	SeverityWarning  SecurityEventSeverity = "warning"
	SeverityCritical SecurityEventSeverity = "critical"
)

// SecurityAuditEvent is an append-only record of a security-relevant
// anomaly: cross-tenant attempts, disabled-org access, brute force, etc.
type SecurityAuditEvent struct {
	ID        string
	EventType string
	Severity  SecurityEventSeverity
	TenantID  *string
	UserID    *string
	IP        string
	Path      string
	Method    string
	Details   string
	CreatedAt time.Time
}
