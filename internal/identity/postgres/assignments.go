package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/aegiscore/identity/internal/identity"
	"github.com/aegiscore/identity/pkg/apperr"
)

func (s *Store) InsertOrgAssignment(ctx context.Context, a *identity.OrgAssignment) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.StartAt.IsZero() {
		a.StartAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO org_assignments (id, tenant_id, user_id, org_node_id, role_id, start_at, end_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, a.ID, a.TenantID, a.UserID, a.OrgNodeID, a.RoleID, a.StartAt, a.EndAt)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "inserting org assignment", err)
	}
	return nil
}

func (s *Store) EndAssignment(ctx context.Context, tenantID, id string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE org_assignments SET end_at = NOW()
		WHERE tenant_id = $1 AND id = $2 AND end_at IS NULL
	`, tenantID, id)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "ending assignment", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.New(apperr.NotFound, "active assignment not found")
	}
	return nil
}

func (s *Store) FindActiveAssignmentsForUser(ctx context.Context, tenantID, userID string) ([]*identity.OrgAssignment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, tenant_id, user_id, org_node_id, role_id, start_at, end_at
		FROM org_assignments
		WHERE tenant_id = $1 AND user_id = $2
		  AND start_at <= NOW() AND (end_at IS NULL OR end_at > NOW())
	`, tenantID, userID)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "finding active assignments", err)
	}
	defer rows.Close()

	var out []*identity.OrgAssignment
	for rows.Next() {
		var a identity.OrgAssignment
		if err := rows.Scan(&a.ID, &a.TenantID, &a.UserID, &a.OrgNodeID, &a.RoleID, &a.StartAt, &a.EndAt); err != nil {
			return nil, apperr.Wrap(apperr.Internal, "scanning assignment", err)
		}
		out = append(out, &a)
	}
	return out, nil
}
