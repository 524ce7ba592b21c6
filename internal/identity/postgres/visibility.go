package postgres

import (
	"context"

	"github.com/google/uuid"

	"github.com/aegiscore/identity/internal/identity"
	"github.com/aegiscore/identity/pkg/apperr"
)

func (s *Store) InsertVisibilityGrant(ctx context.Context, g *identity.VisibilityGrant) error {
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO visibility_grants (id, tenant_id, user_id, org_node_id, access_scope, start_at, end_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, g.ID, g.TenantID, g.UserID, g.OrgNodeID, g.Scope, g.StartAt, g.EndAt)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "inserting visibility grant", err)
	}
	return nil
}

func (s *Store) RevokeVisibilityGrant(ctx context.Context, tenantID, id string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE visibility_grants SET end_at = NOW()
		WHERE tenant_id = $1 AND id = $2 AND end_at IS NULL
	`, tenantID, id)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "revoking visibility grant", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.New(apperr.NotFound, "active visibility grant not found")
	}
	return nil
}

func (s *Store) FindVisibilityGrantsForUser(ctx context.Context, tenantID, userID string) ([]*identity.VisibilityGrant, error) {
	return s.queryVisibility(ctx, `
		SELECT id, tenant_id, user_id, org_node_id, access_scope, start_at, end_at
		FROM visibility_grants WHERE tenant_id = $1 AND user_id = $2
	`, tenantID, userID)
}

func (s *Store) FindActiveVisibilityGrantsForUser(ctx context.Context, tenantID, userID string) ([]*identity.VisibilityGrant, error) {
	return s.queryVisibility(ctx, `
		SELECT id, tenant_id, user_id, org_node_id, access_scope, start_at, end_at
		FROM visibility_grants
		WHERE tenant_id = $1 AND user_id = $2
		  AND start_at <= NOW() AND (end_at IS NULL OR end_at > NOW())
	`, tenantID, userID)
}

func (s *Store) queryVisibility(ctx context.Context, query string, args ...any) ([]*identity.VisibilityGrant, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "querying visibility grants", err)
	}
	defer rows.Close()

	var out []*identity.VisibilityGrant
	for rows.Next() {
		var g identity.VisibilityGrant
		if err := rows.Scan(&g.ID, &g.TenantID, &g.UserID, &g.OrgNodeID, &g.Scope, &g.StartAt, &g.EndAt); err != nil {
			return nil, apperr.Wrap(apperr.Internal, "scanning visibility grant", err)
		}
		out = append(out, &g)
	}
	return out, nil
}
