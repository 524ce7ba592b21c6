package postgres

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/aegiscore/identity/internal/identity"
	"github.com/aegiscore/identity/pkg/apperr"
)

func (s *Store) InsertAuditEvent(ctx context.Context, e *identity.AuditEvent) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	data, err := json.Marshal(e.EventData)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "marshaling audit event data", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO audit_events (
			id, tenant_id, actor_user_id, actor_svc_id, event_type_code,
			target_type, target_id, event_data, ip, user_agent, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
	`, e.ID, e.TenantID, e.ActorUserID, e.ActorSvcID, e.EventTypeCode,
		e.TargetType, e.TargetID, data, e.IP, e.UserAgent)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "inserting audit event", err)
	}
	return nil
}

func (s *Store) FindAuditEvents(ctx context.Context, tenantID string, beforeTime time.Time, beforeID string, limit int) ([]*identity.AuditEvent, error) {
	query := `
		SELECT id, tenant_id, actor_user_id, actor_svc_id, event_type_code,
		       target_type, target_id, event_data, ip, user_agent, created_at
		FROM audit_events
		WHERE tenant_id = $1`
	args := []any{tenantID}
	if !beforeTime.IsZero() {
		query += ` AND (created_at, id) < ($2, $3::uuid)`
		args = append(args, beforeTime, beforeID)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ` + "$" + strconv.Itoa(len(args)+1)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "listing audit events", err)
	}
	defer rows.Close()

	var out []*identity.AuditEvent
	for rows.Next() {
		var e identity.AuditEvent
		var data []byte
		if err := rows.Scan(&e.ID, &e.TenantID, &e.ActorUserID, &e.ActorSvcID, &e.EventTypeCode,
			&e.TargetType, &e.TargetID, &data, &e.IP, &e.UserAgent, &e.CreatedAt); err != nil {
			return nil, apperr.Wrap(apperr.Internal, "scanning audit event", err)
		}
		if len(data) > 0 {
			if err := json.Unmarshal(data, &e.EventData); err != nil {
				return nil, apperr.Wrap(apperr.Internal, "decoding audit event data", err)
			}
		}
		out = append(out, &e)
	}
	return out, nil
}

func (s *Store) InsertSecurityEvent(ctx context.Context, e *identity.SecurityAuditEvent) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO security_audit_events (
			id, event_type, severity, tenant_id, user_id, ip, path, method, details, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
	`, e.ID, e.EventType, e.Severity, e.TenantID, e.UserID, e.IP, e.Path, e.Method, e.Details)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "inserting security event", err)
	}
	return nil
}
