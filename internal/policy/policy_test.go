package policy

import "testing"

func strictPolicy() AuthPolicy {
	return AuthPolicy{
		PasswordMinLength:        12,
		PasswordRequireUppercase: true,
		PasswordRequireNumber:    true,
		PasswordRequireSpecial:   true,
		MFARequired:              true,
		MFAAllowedMethods:        []string{"totp"},
		SessionTimeoutMinutes:    30,
		MaxFailedAttempts:        3,
		LockoutDurationMinutes:   30,
	}
}

func lenientPolicy() AuthPolicy {
	return AuthPolicy{
		PasswordMinLength:      1,
		SessionTimeoutMinutes:  60,
		MaxFailedAttempts:      10,
		LockoutDurationMinutes: 5,
	}
}

func TestValidatePasswordTooShort(t *testing.T) {
	v := Validate("Short1!", strictPolicy())
	if v == nil || v.Kind != ViolationTooShort {
		t.Fatalf("expected too-short violation, got %+v", v)
	}
}

func TestValidatePasswordMissingUppercase(t *testing.T) {
	v := Validate("longenoughpassword1!", strictPolicy())
	if v == nil || v.Kind != ViolationMissingUppercase {
		t.Fatalf("expected missing-uppercase violation, got %+v", v)
	}
}

func TestValidatePasswordMissingNumber(t *testing.T) {
	v := Validate("LongEnoughPassword!", strictPolicy())
	if v == nil || v.Kind != ViolationMissingNumber {
		t.Fatalf("expected missing-number violation, got %+v", v)
	}
}

func TestValidatePasswordMissingSpecial(t *testing.T) {
	v := Validate("LongEnoughPassword1", strictPolicy())
	if v == nil || v.Kind != ViolationMissingSpecial {
		t.Fatalf("expected missing-special violation, got %+v", v)
	}
}

func TestValidatePasswordValidStrict(t *testing.T) {
	if v := Validate("LongEnoughP@ss1", strictPolicy()); v != nil {
		t.Fatalf("expected no violation, got %+v", v)
	}
}

func TestValidatePasswordValidLenient(t *testing.T) {
	if v := Validate("simple", lenientPolicy()); v != nil {
		t.Fatalf("expected no violation, got %+v", v)
	}
}

func TestValidateAllReturnsEveryViolation(t *testing.T) {
	violations := ValidateAll("short", strictPolicy())
	if len(violations) != 4 {
		t.Fatalf("expected 4 violations, got %d: %+v", len(violations), violations)
	}
}

func TestAccessors(t *testing.T) {
	p := strictPolicy()
	if !IsMFARequired(p) {
		t.Fatal("expected MFA required")
	}
	if SessionTimeoutMinutes(p) != 30 {
		t.Fatalf("unexpected session timeout: %d", SessionTimeoutMinutes(p))
	}
	if MaxFailedAttempts(p) != 3 {
		t.Fatalf("unexpected max failed attempts: %d", MaxFailedAttempts(p))
	}
	if LockoutDurationMinutes(p) != 30 {
		t.Fatalf("unexpected lockout duration: %d", LockoutDurationMinutes(p))
	}
}
