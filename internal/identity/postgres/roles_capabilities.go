package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/aegiscore/identity/internal/identity"
	"github.com/aegiscore/identity/pkg/apperr"
)

func (s *Store) InsertRole(ctx context.Context, r *identity.Role) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO roles (id, tenant_id, label, created_at) VALUES ($1, $2, $3, NOW())
	`, r.ID, r.TenantID, r.Label)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "inserting role", err)
	}
	return nil
}

func (s *Store) FindRoleByID(ctx context.Context, tenantID, id string) (*identity.Role, error) {
	var r identity.Role
	err := s.pool.QueryRow(ctx, `
		SELECT id, tenant_id, label, created_at FROM roles WHERE tenant_id = $1 AND id = $2
	`, tenantID, id).Scan(&r.ID, &r.TenantID, &r.Label, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.New(apperr.NotFound, "role not found")
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "finding role", err)
	}
	return &r, nil
}

func (s *Store) FindRolesByTenant(ctx context.Context, tenantID string) ([]*identity.Role, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, tenant_id, label, created_at FROM roles WHERE tenant_id = $1 ORDER BY created_at
	`, tenantID)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "listing roles", err)
	}
	defer rows.Close()

	var out []*identity.Role
	for rows.Next() {
		var r identity.Role
		if err := rows.Scan(&r.ID, &r.TenantID, &r.Label, &r.CreatedAt); err != nil {
			return nil, apperr.Wrap(apperr.Internal, "scanning role", err)
		}
		out = append(out, &r)
	}
	return out, nil
}

func (s *Store) InsertCapabilityIfMissing(ctx context.Context, key string) (*identity.Capability, error) {
	var c identity.Capability
	err := s.pool.QueryRow(ctx, `
		INSERT INTO capabilities (id, key, created_at) VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET key = EXCLUDED.key
		RETURNING id, key, created_at
	`, uuid.NewString(), key).Scan(&c.ID, &c.Key, &c.CreatedAt)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "upserting capability", err)
	}
	return &c, nil
}

func (s *Store) FindCapabilityByKey(ctx context.Context, key string) (*identity.Capability, error) {
	var c identity.Capability
	err := s.pool.QueryRow(ctx, `
		SELECT id, key, created_at FROM capabilities WHERE key = $1
	`, key).Scan(&c.ID, &c.Key, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.New(apperr.NotFound, "capability not found")
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "finding capability", err)
	}
	return &c, nil
}

func (s *Store) GetAllCapabilities(ctx context.Context) ([]*identity.Capability, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, key, created_at FROM capabilities ORDER BY key`)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "listing capabilities", err)
	}
	defer rows.Close()

	var out []*identity.Capability
	for rows.Next() {
		var c identity.Capability
		if err := rows.Scan(&c.ID, &c.Key, &c.CreatedAt); err != nil {
			return nil, apperr.Wrap(apperr.Internal, "scanning capability", err)
		}
		out = append(out, &c)
	}
	return out, nil
}

func (s *Store) GetRoleCapabilities(ctx context.Context, roleID string) ([]*identity.Capability, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT c.id, c.key, c.created_at
		FROM capabilities c
		JOIN role_capabilities rc ON rc.cap_id = c.id
		WHERE rc.role_id = $1
	`, roleID)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "listing role capabilities", err)
	}
	defer rows.Close()

	var out []*identity.Capability
	for rows.Next() {
		var c identity.Capability
		if err := rows.Scan(&c.ID, &c.Key, &c.CreatedAt); err != nil {
			return nil, apperr.Wrap(apperr.Internal, "scanning capability", err)
		}
		out = append(out, &c)
	}
	return out, nil
}

func (s *Store) AssignCapabilityToRole(ctx context.Context, roleID, capID string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO role_capabilities (role_id, cap_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, roleID, capID)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "assigning capability", err)
	}
	return nil
}

func (s *Store) UnassignCapabilityFromRole(ctx context.Context, roleID, capID string) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM role_capabilities WHERE role_id = $1 AND cap_id = $2
	`, roleID, capID)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "unassigning capability", err)
	}
	return nil
}
