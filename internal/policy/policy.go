// Package policy implements per-tenant authentication policy: password
// complexity rules, MFA flags, and lockout thresholds.
package policy

import (
	"fmt"
	"strings"
)

// AuthPolicy is a tenant's configurable authentication requirements. It is
// stored alongside the tenant row as a JSON document.
type AuthPolicy struct {
	PasswordMinLength        int      `json:"password_min_length"`
	PasswordRequireUppercase bool     `json:"password_require_uppercase"`
	PasswordRequireNumber    bool     `json:"password_require_number"`
	PasswordRequireSpecial   bool     `json:"password_require_special"`
	MFARequired              bool     `json:"mfa_required"`
	MFAAllowedMethods        []string `json:"mfa_allowed_methods,omitempty"`
	SessionTimeoutMinutes    int      `json:"session_timeout_minutes"`
	MaxFailedAttempts        int      `json:"max_failed_attempts"`
	LockoutDurationMinutes   int      `json:"lockout_duration_minutes"`
}

// OrDefault substitutes Default() for a zero-valued policy, so tenants
// created before policies existed (or rows stored as '{}') behave sanely.
func (p AuthPolicy) OrDefault() AuthPolicy {
	if p.PasswordMinLength == 0 {
		return Default()
	}
	return p
}

// ValidatePassword checks password against every rule of p.
func (p AuthPolicy) ValidatePassword(password string) []Violation {
	return ValidateAll(password, p)
}

// Default returns the policy applied to a tenant that has not customized
// one.
func Default() AuthPolicy {
	return AuthPolicy{
		PasswordMinLength:        8,
		PasswordRequireUppercase: true,
		PasswordRequireNumber:    true,
		PasswordRequireSpecial:   false,
		MFARequired:              false,
		SessionTimeoutMinutes:    60,
		MaxFailedAttempts:        5,
		LockoutDurationMinutes:   15,
	}
}

// ViolationKind identifies which password rule was broken.
type ViolationKind string

const (
	ViolationTooShort         ViolationKind = "password_too_short"
	ViolationMissingUppercase ViolationKind = "password_missing_uppercase"
	ViolationMissingNumber    ViolationKind = "password_missing_number"
	ViolationMissingSpecial   ViolationKind = "password_missing_special"
)

// Violation describes one broken password rule, with enough detail to
// render a precise client-facing message.
type Violation struct {
	Kind          ViolationKind
	MinLength     int
	ActualLength  int
}

func (v Violation) Error() string {
	switch v.Kind {
	case ViolationTooShort:
		return fmt.Sprintf("password must be at least %d characters (got %d)", v.MinLength, v.ActualLength)
	case ViolationMissingUppercase:
		return "password must contain at least one uppercase letter"
	case ViolationMissingNumber:
		return "password must contain at least one number"
	case ViolationMissingSpecial:
		return "password must contain at least one special character"
	default:
		return "password does not meet policy requirements"
	}
}

const specialChars = "!@#$%^&*()-_=+[]{}|\\;:'\",.<>/?`~"

func hasUpper(s string) bool {
	for _, c := range s {
		if c >= 'A' && c <= 'Z' {
			return true
		}
	}
	return false
}

func hasDigit(s string) bool {
	for _, c := range s {
		if c >= '0' && c <= '9' {
			return true
		}
	}
	return false
}

func hasSpecial(s string) bool {
	return strings.ContainsAny(s, specialChars)
}

// Validate checks password against policy and returns the first violation,
// or nil if the password satisfies every rule (original's validate_password).
func Validate(password string, p AuthPolicy) *Violation {
	if violations := ValidateAll(password, p); len(violations) > 0 {
		return &violations[0]
	}
	return nil
}

// ValidateAll checks password against every rule and returns every
// violation found, so a client can be told everything that's wrong in one
// round trip (original's validate_password_all).
func ValidateAll(password string, p AuthPolicy) []Violation {
	var violations []Violation

	if len(password) < p.PasswordMinLength {
		violations = append(violations, Violation{
			Kind:         ViolationTooShort,
			MinLength:    p.PasswordMinLength,
			ActualLength: len(password),
		})
	}
	if p.PasswordRequireUppercase && !hasUpper(password) {
		violations = append(violations, Violation{Kind: ViolationMissingUppercase})
	}
	if p.PasswordRequireNumber && !hasDigit(password) {
		violations = append(violations, Violation{Kind: ViolationMissingNumber})
	}
	if p.PasswordRequireSpecial && !hasSpecial(password) {
		violations = append(violations, Violation{Kind: ViolationMissingSpecial})
	}

	return violations
}

// IsMFARequired reports whether the tenant mandates MFA enrollment.
func IsMFARequired(p AuthPolicy) bool { return p.MFARequired }

// SessionTimeoutMinutes returns the tenant's idle-session timeout.
func SessionTimeoutMinutes(p AuthPolicy) int { return p.SessionTimeoutMinutes }

// MaxFailedAttempts returns the failed-login count that triggers a lockout.
func MaxFailedAttempts(p AuthPolicy) int { return p.MaxFailedAttempts }

// LockoutDurationMinutes returns how long a lockout lasts once triggered.
func LockoutDurationMinutes(p AuthPolicy) int { return p.LockoutDurationMinutes }
