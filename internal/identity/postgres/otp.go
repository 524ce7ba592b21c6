package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/aegiscore/identity/internal/identity"
	"github.com/aegiscore/identity/pkg/apperr"
)

func (s *Store) InsertOTP(ctx context.Context, o *identity.OtpRecord) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO otp_records (
			id, tenant_id, destination, channel, purpose, code_hash,
			attempts, max_attempts, expires_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, o.ID, o.TenantID, o.Destination, o.Channel, o.Purpose, o.CodeHash, o.Attempts, o.MaxAttempts, o.ExpiresAt)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "inserting otp", err)
	}
	return nil
}

func (s *Store) FindOTPByID(ctx context.Context, id string) (*identity.OtpRecord, error) {
	var o identity.OtpRecord
	err := s.pool.QueryRow(ctx, `
		SELECT id, tenant_id, destination, channel, purpose, code_hash,
		       attempts, max_attempts, expires_at, consumed_at
		FROM otp_records WHERE id = $1
	`, id).Scan(
		&o.ID, &o.TenantID, &o.Destination, &o.Channel, &o.Purpose, &o.CodeHash,
		&o.Attempts, &o.MaxAttempts, &o.ExpiresAt, &o.ConsumedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.New(apperr.NotFound, "otp not found")
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "finding otp", err)
	}
	return &o, nil
}

// FindActiveOTP enforces the "at most one active OTP per (tenant,
// destination, purpose)" invariant at read time by selecting the
// most recent unconsumed, unexpired, non-exhausted record.
func (s *Store) FindActiveOTP(ctx context.Context, tenantID, destination string, purpose identity.OTPPurpose) (*identity.OtpRecord, error) {
	var o identity.OtpRecord
	err := s.pool.QueryRow(ctx, `
		SELECT id, tenant_id, destination, channel, purpose, code_hash,
		       attempts, max_attempts, expires_at, consumed_at
		FROM otp_records
		WHERE tenant_id = $1 AND destination = $2 AND purpose = $3
		  AND consumed_at IS NULL AND expires_at > NOW() AND attempts < max_attempts
		ORDER BY expires_at DESC LIMIT 1
	`, tenantID, destination, purpose).Scan(
		&o.ID, &o.TenantID, &o.Destination, &o.Channel, &o.Purpose, &o.CodeHash,
		&o.Attempts, &o.MaxAttempts, &o.ExpiresAt, &o.ConsumedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.New(apperr.NotFound, "no active otp")
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "finding active otp", err)
	}
	return &o, nil
}

func (s *Store) ConsumeOTP(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE otp_records SET consumed_at = NOW() WHERE id = $1 AND consumed_at IS NULL
	`, id)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "consuming otp", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.New(apperr.FailedPrecondition, "otp already consumed")
	}
	return nil
}

func (s *Store) IncrementOTPAttempts(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE otp_records SET attempts = attempts + 1 WHERE id = $1
	`, id)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "incrementing otp attempts", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.New(apperr.NotFound, "otp not found")
	}
	return nil
}
