package handlers

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
	"time"

	"github.com/aegiscore/identity/internal/crypto"
	"github.com/aegiscore/identity/internal/httpserver"
	"github.com/aegiscore/identity/internal/identity"
	"github.com/aegiscore/identity/pkg/apperr"
)

const (
	otpTTL         = 10 * time.Minute
	otpMaxAttempts = 5
	otpCodeDigits  = 6
)

// SendOTPRequest is the body of POST /auth/otp/send.
type SendOTPRequest struct {
	TenantSlug  string              `json:"tenant_slug" validate:"required"`
	Destination string              `json:"destination" validate:"required"`
	Channel     identity.OTPChannel `json:"channel" validate:"required,oneof=email sms whatsapp"`
	Purpose     identity.OTPPurpose `json:"purpose" validate:"required,oneof=login verify_email verify_phone reset_password"`
}

// SendOTPResponse echoes the created record's id and TTL — never the code.
type SendOTPResponse struct {
	OTPId     string `json:"otp_id"`
	ExpiresIn int    `json:"expires_in_seconds"`
}

func (h *Handler) handleSendOTP(w http.ResponseWriter, r *http.Request) {
	var req SendOTPRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	ctx := r.Context()

	if req.Purpose == identity.OTPPurposeResetPassword && !h.allowByAddress(w, r, h.resetLimit, "password_reset") {
		return
	}

	tenant, err := h.store.FindTenantBySlug(ctx, req.TenantSlug)
	if err != nil {
		httpserver.RespondAppError(w, err)
		return
	}

	destination := strings.ToLower(req.Destination)

	// At most one active OTP per (tenant, destination, purpose): a resend
	// supersedes the outstanding challenge rather than stacking next to it.
	if prev, err := h.store.FindActiveOTP(ctx, tenant.ID, destination, req.Purpose); err == nil {
		if err := h.store.ConsumeOTP(ctx, prev.ID); err != nil {
			httpserver.RespondAppError(w, err)
			return
		}
	}

	code, err := randomNumericCode(otpCodeDigits)
	if err != nil {
		httpserver.RespondAppError(w, apperr.Wrap(apperr.Internal, "generating otp code", err))
		return
	}

	record := &identity.OtpRecord{
		TenantID:    tenant.ID,
		Destination: destination,
		Channel:     req.Channel,
		Purpose:     req.Purpose,
		CodeHash:    hashOTPCode(code),
		MaxAttempts: otpMaxAttempts,
		ExpiresAt:   time.Now().Add(otpTTL),
	}
	if err := h.store.InsertOTP(ctx, record); err != nil {
		httpserver.RespondAppError(w, err)
		return
	}

	// Dispatching the code over req.Channel is out of scope here (no SMS/
	// email provider is wired); the code is only ever compared by hash.
	h.logger.Info("otp issued", "otp_id", record.ID, "channel", req.Channel, "purpose", req.Purpose)

	httpserver.Respond(w, http.StatusCreated, SendOTPResponse{
		OTPId:     record.ID,
		ExpiresIn: int(otpTTL.Seconds()),
	})
}

// VerifyOTPRequest is the body of POST /auth/otp/verify.
// TenantSlug is required only to mint a login-purpose session;
// confirmation purposes ignore it.
type VerifyOTPRequest struct {
	TenantSlug string `json:"tenant_slug"`
	OTPId      string `json:"otp_id" validate:"required"`
	Code       string `json:"code" validate:"required"`
}

// VerifyOTPResponse reports either a fresh session (login purpose) or a
// bare confirmation (every other purpose).
type VerifyOTPResponse struct {
	Confirmed bool             `json:"confirmed"`
	Session   *SessionResponse `json:"session,omitempty"`
}

func (h *Handler) handleVerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req VerifyOTPRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	ctx := r.Context()

	record, err := h.store.FindOTPByID(ctx, req.OTPId)
	if err != nil {
		httpserver.RespondAppError(w, err)
		return
	}
	if record.Consumed() {
		httpserver.RespondAppError(w, apperr.New(apperr.FailedPrecondition, "otp already consumed"))
		return
	}
	if record.Expired(time.Now()) {
		httpserver.RespondAppError(w, apperr.New(apperr.FailedPrecondition, "otp expired"))
		return
	}
	if record.Exhausted() {
		h.securityEvent(r, "otp_exhausted", "verification attempted after attempt budget spent", &record.TenantID, nil)
		httpserver.RespondAppError(w, apperr.New(apperr.Unauthenticated, "otp attempts exhausted"))
		return
	}

	if hashOTPCode(req.Code) != record.CodeHash {
		if err := h.store.IncrementOTPAttempts(ctx, record.ID); err != nil {
			httpserver.RespondAppError(w, err)
			return
		}
		httpserver.RespondAppError(w, apperr.New(apperr.InvalidArgument, "incorrect code"))
		return
	}

	if err := h.store.ConsumeOTP(ctx, record.ID); err != nil {
		httpserver.RespondAppError(w, err)
		return
	}

	resp := VerifyOTPResponse{Confirmed: true}
	if record.Purpose == identity.OTPPurposeLogin {
		if req.TenantSlug == "" {
			httpserver.RespondAppError(w, apperr.New(apperr.InvalidArgument, "tenant_slug is required for login otp"))
			return
		}
		tenant, err := h.store.FindTenantBySlug(ctx, req.TenantSlug)
		if err != nil {
			httpserver.RespondAppError(w, err)
			return
		}
		user, err := h.store.FindUserByTenantAndEmail(ctx, tenant.ID, record.Destination)
		if err != nil {
			httpserver.RespondAppError(w, err)
			return
		}
		session, err := h.mintSession(ctx, tenant.ID, user)
		if err != nil {
			httpserver.RespondAppError(w, err)
			return
		}
		resp.Session = &session
	}

	httpserver.Respond(w, http.StatusOK, resp)
}

func randomNumericCode(digits int) (string, error) {
	raw, err := crypto.RandomToken(8)
	if err != nil {
		return "", err
	}
	sum := 0
	for _, c := range raw {
		sum = sum*31 + int(c)
	}
	if sum < 0 {
		sum = -sum
	}
	mod := 1
	for i := 0; i < digits; i++ {
		mod *= 10
	}
	return padLeft(sum%mod, digits), nil
}

func padLeft(n, width int) string {
	s := itoa(n)
	for len(s) < width {
		s = "0" + s
	}
	return s
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var b []byte
	for n > 0 {
		b = append([]byte{byte('0' + n%10)}, b...)
		n /= 10
	}
	return string(b)
}

func hashOTPCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}
