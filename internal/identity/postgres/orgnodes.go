package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/aegiscore/identity/internal/identity"
	"github.com/aegiscore/identity/pkg/apperr"
)

func (s *Store) InsertOrgNode(ctx context.Context, n *identity.OrgNode) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO org_nodes (id, tenant_id, parent_id, type_code, label, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
	`, n.ID, n.TenantID, n.ParentID, n.TypeCode, n.Label, n.Active)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "inserting org node", err)
	}
	return nil
}

func (s *Store) FindOrgNodeByID(ctx context.Context, tenantID, id string) (*identity.OrgNode, error) {
	var n identity.OrgNode
	err := s.pool.QueryRow(ctx, `
		SELECT id, tenant_id, parent_id, type_code, label, active, created_at
		FROM org_nodes WHERE tenant_id = $1 AND id = $2
	`, tenantID, id).Scan(&n.ID, &n.TenantID, &n.ParentID, &n.TypeCode, &n.Label, &n.Active, &n.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.New(apperr.NotFound, "org node not found")
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "finding org node", err)
	}
	return &n, nil
}

func (s *Store) FindOrgNodesByTenant(ctx context.Context, tenantID string) ([]*identity.OrgNode, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, tenant_id, parent_id, type_code, label, active, created_at
		FROM org_nodes WHERE tenant_id = $1 ORDER BY created_at
	`, tenantID)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "listing org nodes", err)
	}
	defer rows.Close()

	var out []*identity.OrgNode
	for rows.Next() {
		var n identity.OrgNode
		if err := rows.Scan(&n.ID, &n.TenantID, &n.ParentID, &n.TypeCode, &n.Label, &n.Active, &n.CreatedAt); err != nil {
			return nil, apperr.Wrap(apperr.Internal, "scanning org node", err)
		}
		out = append(out, &n)
	}
	return out, nil
}

// FindOrgNodeDescendants walks the org forest downward via a recursive CTE.
func (s *Store) FindOrgNodeDescendants(ctx context.Context, tenantID, id string) ([]*identity.OrgNode, error) {
	rows, err := s.pool.Query(ctx, `
		WITH RECURSIVE descendants AS (
			SELECT id, tenant_id, parent_id, type_code, label, active, created_at
			FROM org_nodes WHERE tenant_id = $1 AND parent_id = $2
			UNION ALL
			SELECT o.id, o.tenant_id, o.parent_id, o.type_code, o.label, o.active, o.created_at
			FROM org_nodes o
			JOIN descendants d ON o.parent_id = d.id
			WHERE o.tenant_id = $1
		)
		SELECT id, tenant_id, parent_id, type_code, label, active, created_at FROM descendants
	`, tenantID, id)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "finding org node descendants", err)
	}
	defer rows.Close()

	var out []*identity.OrgNode
	for rows.Next() {
		var n identity.OrgNode
		if err := rows.Scan(&n.ID, &n.TenantID, &n.ParentID, &n.TypeCode, &n.Label, &n.Active, &n.CreatedAt); err != nil {
			return nil, apperr.Wrap(apperr.Internal, "scanning org node", err)
		}
		out = append(out, &n)
	}
	return out, nil
}

func (s *Store) SetOrgNodeActive(ctx context.Context, tenantID, id string, active bool) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE org_nodes SET active = $3 WHERE tenant_id = $1 AND id = $2
	`, tenantID, id, active)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "updating org node", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.New(apperr.NotFound, "org node not found")
	}
	return nil
}
