package postgres

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/aegiscore/identity/internal/identity"
	"github.com/aegiscore/identity/pkg/apperr"
)

func scanTenant(row pgx.Row) (*identity.Tenant, error) {
	var t identity.Tenant
	var policyJSON []byte
	err := row.Scan(&t.ID, &t.Slug, &t.Label, &t.State, &policyJSON, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.New(apperr.NotFound, "tenant not found")
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "finding tenant", err)
	}
	if len(policyJSON) > 0 {
		if err := json.Unmarshal(policyJSON, &t.Policy); err != nil {
			return nil, apperr.Wrap(apperr.Internal, "decoding tenant auth policy", err)
		}
	}
	return &t, nil
}

func (s *Store) FindTenantByID(ctx context.Context, id string) (*identity.Tenant, error) {
	return scanTenant(s.pool.QueryRow(ctx, `
		SELECT id, slug, label, state, auth_policy, created_at FROM tenants WHERE id = $1
	`, id))
}

func (s *Store) FindTenantBySlug(ctx context.Context, slug string) (*identity.Tenant, error) {
	return scanTenant(s.pool.QueryRow(ctx, `
		SELECT id, slug, label, state, auth_policy, created_at FROM tenants WHERE slug = $1
	`, slug))
}

func (s *Store) InsertTenant(ctx context.Context, t *identity.Tenant) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	policyJSON, err := json.Marshal(t.Policy)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "encoding tenant auth policy", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO tenants (id, slug, label, state, auth_policy, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
	`, t.ID, t.Slug, t.Label, t.State, policyJSON)
	if isUniqueViolation(err) {
		return apperr.New(apperr.AlreadyExists, "tenant slug already taken")
	}
	if err != nil {
		return apperr.Wrap(apperr.Internal, "inserting tenant", err)
	}
	return nil
}

func (s *Store) SetTenantState(ctx context.Context, id string, state identity.TenantState) error {
	tag, err := s.pool.Exec(ctx, `UPDATE tenants SET state = $2 WHERE id = $1`, id, state)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "updating tenant state", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.New(apperr.NotFound, "tenant not found")
	}
	return nil
}

// isUniqueViolation reports whether err is a Postgres unique_violation
// (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
