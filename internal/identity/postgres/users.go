package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/aegiscore/identity/internal/identity"
	"github.com/aegiscore/identity/pkg/apperr"
)

func (s *Store) InsertUser(ctx context.Context, u *identity.User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (
			id, tenant_id, email, email_lower, password_hash, display_name,
			verified, state, social_id, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
	`, u.ID, u.TenantID, u.Email, u.EmailLower, u.PasswordHash, u.DisplayName,
		u.Verified, u.State, u.SocialID)
	if isUniqueViolation(err) {
		return apperr.New(apperr.AlreadyExists, "email already registered for tenant")
	}
	if err != nil {
		return apperr.Wrap(apperr.Internal, "inserting user", err)
	}
	return nil
}

func scanUser(row interface{ Scan(...any) error }) (*identity.User, error) {
	var u identity.User
	err := row.Scan(&u.ID, &u.TenantID, &u.Email, &u.EmailLower, &u.PasswordHash,
		&u.DisplayName, &u.Verified, &u.State, &u.SocialID, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.New(apperr.NotFound, "user not found")
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "scanning user", err)
	}
	return &u, nil
}

const userColumns = `id, tenant_id, email, email_lower, password_hash, display_name,
		verified, state, social_id, created_at, updated_at`

func (s *Store) FindUserByID(ctx context.Context, tenantID, id string) (*identity.User, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	return scanUser(row)
}

func (s *Store) FindUserByTenantAndEmail(ctx context.Context, tenantID, emailLower string) (*identity.User, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE tenant_id = $1 AND email_lower = $2`, tenantID, emailLower)
	return scanUser(row)
}

// UpdateUserFields applies a sparse field update, building a SET clause
// from the map of changed fields rather than requiring callers to pass a
// full row.
func (s *Store) UpdateUserFields(ctx context.Context, tenantID, id string, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	allowed := map[string]string{
		"display_name":  "display_name",
		"verified":      "verified",
		"state":         "state",
		"password_hash": "password_hash",
		"social_id":     "social_id",
	}

	setClauses := make([]string, 0, len(fields)+1)
	args := make([]any, 0, len(fields)+2)
	args = append(args, tenantID, id)
	i := 3
	for key, val := range fields {
		col, ok := allowed[key]
		if !ok {
			continue
		}
		setClauses = append(setClauses, fmt.Sprintf("%s = $%d", col, i))
		args = append(args, val)
		i++
	}
	if len(setClauses) == 0 {
		return nil
	}
	query := fmt.Sprintf(
		"UPDATE users SET %s, updated_at = NOW() WHERE tenant_id = $1 AND id = $2",
		strings.Join(setClauses, ", "),
	)

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "updating user", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.New(apperr.NotFound, "user not found")
	}
	return nil
}
