package store

import (
	"context"
	"errors"
	"time"

	"github.com/Harshitk-cp/switchboard/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SessionStore reads sessions issued by the auth subsystem.
type SessionStore struct {
	db  *pgxpool.Pool
	now func() time.Time
}

func NewSessionStore(db *pgxpool.Pool) *SessionStore {
	return &SessionStore{db: db, now: time.Now}
}

func (s *SessionStore) GetByTokenHash(ctx context.Context, tokenHash string) (*domain.Session, error) {
	sess := &domain.Session{}
	var expiresAt *time.Time
	err := s.db.QueryRow(ctx,
		`SELECT id, user_id, role, tenant_id, token_hash, expires_at, created_at
		 FROM dashboard_sessions WHERE token_hash = $1`,
		tokenHash,
	).Scan(&sess.ID, &sess.UserID, &sess.Role, &sess.TenantID, &sess.TokenHash, &expiresAt, &sess.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if expiresAt != nil {
		sess.ExpiresAt = *expiresAt
	}
	if sess.Expired(s.now()) {
		return nil, ErrExpired
	}
	return sess, nil
}
