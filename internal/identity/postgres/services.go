package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/aegiscore/identity/internal/identity"
	"github.com/aegiscore/identity/pkg/apperr"
)

func (s *Store) InsertServiceAccount(ctx context.Context, sa *identity.ServiceAccount) error {
	if sa.ID == "" {
		sa.ID = uuid.NewString()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO service_accounts (id, tenant_id, key, label, state, signing_secret, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
	`, sa.ID, sa.TenantID, sa.Key, sa.Label, sa.State, sa.SigningSecret)
	if isUniqueViolation(err) {
		return apperr.New(apperr.AlreadyExists, "service key already taken")
	}
	if err != nil {
		return apperr.Wrap(apperr.Internal, "inserting service account", err)
	}
	return nil
}

func (s *Store) FindServiceByID(ctx context.Context, id string) (*identity.ServiceAccount, error) {
	var sa identity.ServiceAccount
	err := s.pool.QueryRow(ctx, `
		SELECT id, tenant_id, key, label, state, signing_secret, created_at
		FROM service_accounts WHERE id = $1
	`, id).Scan(&sa.ID, &sa.TenantID, &sa.Key, &sa.Label, &sa.State, &sa.SigningSecret, &sa.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.New(apperr.NotFound, "service account not found")
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "finding service account", err)
	}
	return &sa, nil
}

func (s *Store) FindServiceByKey(ctx context.Context, key string) (*identity.ServiceAccount, error) {
	var sa identity.ServiceAccount
	err := s.pool.QueryRow(ctx, `
		SELECT id, tenant_id, key, label, state, signing_secret, created_at
		FROM service_accounts WHERE key = $1
	`, key).Scan(&sa.ID, &sa.TenantID, &sa.Key, &sa.Label, &sa.State, &sa.SigningSecret, &sa.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.New(apperr.NotFound, "service account not found")
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "finding service account", err)
	}
	return &sa, nil
}

// FindServiceByLookupHash resolves a presented service-account secret via
// its deterministic lookup hash, trying the current secret first and the
// previous secret second while its grace window is open.
func (s *Store) FindServiceByLookupHash(ctx context.Context, lookupHash string) (*identity.ServiceAccount, *identity.ServiceSecret, error) {
	var sa identity.ServiceAccount
	var sec identity.ServiceSecret
	err := s.pool.QueryRow(ctx, `
		SELECT sa.id, sa.tenant_id, sa.key, sa.label, sa.state, sa.signing_secret, sa.created_at,
		       ss.id, ss.service_id, ss.secret_hash, ss.lookup_hash, ss.created_at,
		       ss.revoked_at, ss.previous_secret_hash, ss.previous_lookup_hash, ss.previous_expiry
		FROM service_secrets ss
		JOIN service_accounts sa ON sa.id = ss.service_id
		WHERE ss.lookup_hash = $1
		   OR (ss.previous_lookup_hash = $1 AND ss.previous_expiry > NOW())
	`, lookupHash).Scan(
		&sa.ID, &sa.TenantID, &sa.Key, &sa.Label, &sa.State, &sa.SigningSecret, &sa.CreatedAt,
		&sec.ID, &sec.ServiceID, &sec.SecretHash, &sec.LookupHash, &sec.CreatedAt,
		&sec.RevokedAt, &sec.PreviousSecretHash, &sec.PreviousLookupHash, &sec.PreviousExpiry,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, apperr.New(apperr.NotFound, "service secret not found")
	}
	if err != nil {
		return nil, nil, apperr.Wrap(apperr.Internal, "finding service secret", err)
	}
	return &sa, &sec, nil
}

func (s *Store) SetServiceState(ctx context.Context, id string, state identity.ServiceAccountState) error {
	tag, err := s.pool.Exec(ctx, `UPDATE service_accounts SET state = $2 WHERE id = $1`, id, state)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "updating service account state", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.New(apperr.NotFound, "service account not found")
	}
	return nil
}

// RotateServiceSecret moves the current secret into the previous_* grace
// slot and inserts next as the current one, in a single transaction.
func (s *Store) RotateServiceSecret(ctx context.Context, serviceID string, next *identity.ServiceSecret, graceExpiry time.Time) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "beginning rotation transaction", err)
	}
	defer tx.Rollback(ctx)

	var prevSecretHash, prevLookupHash *string
	err = tx.QueryRow(ctx, `
		SELECT secret_hash, lookup_hash FROM service_secrets WHERE service_id = $1
	`, serviceID).Scan(&prevSecretHash, &prevLookupHash)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return apperr.Wrap(apperr.Internal, "reading current service secret", err)
	}

	if next.ID == "" {
		next.ID = uuid.NewString()
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO service_secrets (
			id, service_id, secret_hash, lookup_hash, created_at,
			previous_secret_hash, previous_lookup_hash, previous_expiry
		) VALUES ($1, $2, $3, $4, NOW(), $5, $6, $7)
		ON CONFLICT (service_id) DO UPDATE SET
			secret_hash = EXCLUDED.secret_hash,
			lookup_hash = EXCLUDED.lookup_hash,
			previous_secret_hash = EXCLUDED.previous_secret_hash,
			previous_lookup_hash = EXCLUDED.previous_lookup_hash,
			previous_expiry = EXCLUDED.previous_expiry
	`, next.ID, serviceID, next.SecretHash, next.LookupHash, prevSecretHash, prevLookupHash, graceExpiry)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "rotating service secret", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return apperr.Wrap(apperr.Internal, "committing rotation", err)
	}
	return nil
}

func (s *Store) GetServicePermissions(ctx context.Context, serviceID string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT perm_key FROM service_permissions WHERE service_id = $1
	`, serviceID)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "listing service permissions", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, apperr.Wrap(apperr.Internal, "scanning service permission", err)
		}
		out = append(out, k)
	}
	return out, nil
}

func (s *Store) GrantServicePermission(ctx context.Context, serviceID, permKey string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO service_permissions (service_id, perm_key) VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, serviceID, permKey)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "granting service permission", err)
	}
	return nil
}
