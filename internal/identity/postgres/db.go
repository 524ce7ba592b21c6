// Package postgres implements identity.Store against a tenant_id-column
// relational schema: transactional writes, pgx.ErrNoRows translated to
// apperr.NotFound, one pgxpool shared by every repository method.
package postgres

import (
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store implements identity.Store over a pgxpool connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// New wraps an already-opened pool (see internal/platform.NewPostgresPool).
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}
