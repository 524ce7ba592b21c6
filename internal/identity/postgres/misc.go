package postgres

import (
	"context"

	"github.com/aegiscore/identity/pkg/apperr"
)

func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return apperr.Wrap(apperr.Unavailable, "identity store unreachable", err)
	}
	return nil
}

// IsBootstrapDone reports whether the one-shot bootstrap has already run.
func (s *Store) IsBootstrapDone(ctx context.Context) (bool, error) {
	var done bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM bootstrap_marker)`).Scan(&done)
	if err != nil {
		return false, apperr.Wrap(apperr.Internal, "checking bootstrap state", err)
	}
	return done, nil
}

func (s *Store) MarkBootstrapDone(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO bootstrap_marker (id) VALUES (true) ON CONFLICT DO NOTHING`)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "marking bootstrap done", err)
	}
	return nil
}
