package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/aegiscore/identity/internal/identity"
	"github.com/aegiscore/identity/pkg/apperr"
)

func (s *Store) InsertRefreshToken(ctx context.Context, t *identity.RefreshToken) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, revoked)
		VALUES ($1, $2, $3, $4, $5)
	`, t.ID, t.UserID, t.TokenHash, t.ExpiresAt, t.Revoked)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "inserting refresh token", err)
	}
	return nil
}

func (s *Store) FindRefreshTokenByJTI(ctx context.Context, jti string) (*identity.RefreshToken, error) {
	var t identity.RefreshToken
	err := s.pool.QueryRow(ctx, `
		SELECT id, user_id, token_hash, expires_at, revoked FROM refresh_tokens WHERE id = $1
	`, jti).Scan(&t.ID, &t.UserID, &t.TokenHash, &t.ExpiresAt, &t.Revoked)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.New(apperr.NotFound, "refresh token not found")
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "finding refresh token", err)
	}
	return &t, nil
}

// RevokeRefreshTokenByJTI marks a single refresh token revoked. Rotation
// does not use it: RotateRefreshToken revokes the predecessor and inserts
// the successor in its own transaction.
func (s *Store) RevokeRefreshTokenByJTI(ctx context.Context, jti string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE refresh_tokens SET revoked = true WHERE id = $1`, jti)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "revoking refresh token", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.New(apperr.NotFound, "refresh token not found")
	}
	return nil
}

func (s *Store) RevokeAllRefreshTokensForUser(ctx context.Context, userID string) error {
	_, err := s.pool.Exec(ctx, `UPDATE refresh_tokens SET revoked = true WHERE user_id = $1`, userID)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "revoking user refresh tokens", err)
	}
	return nil
}

// RotateRefreshToken atomically revokes predecessor and inserts successor
// in one transaction; if the commit fails, neither takes hold.
func (s *Store) RotateRefreshToken(ctx context.Context, predecessorJTI string, successor *identity.RefreshToken) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "beginning rotation transaction", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE refresh_tokens SET revoked = true WHERE id = $1 AND revoked = false
	`, predecessorJTI)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "revoking predecessor", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.New(apperr.Unauthenticated, "refresh token already revoked or expired")
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, revoked)
		VALUES ($1, $2, $3, $4, false)
	`, successor.ID, successor.UserID, successor.TokenHash, successor.ExpiresAt)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "inserting successor", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return apperr.Wrap(apperr.Internal, "committing rotation", err)
	}
	return nil
}
