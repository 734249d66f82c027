package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/openclave/walletauth/core"
	"github.com/openclave/walletauth/ports"
)

// SessionRepo is a pgx-backed implementation of ports.SessionRepo.
type SessionRepo struct {
	pool *pgxpool.Pool
}

func NewSessionRepo(pool *pgxpool.Pool) ports.SessionRepo {
	return &SessionRepo{pool: pool}
}

func (r *SessionRepo) Create(ctx context.Context, s *core.Session) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO sessions (id, user_id, device_id, ip_address, user_agent,
		                      issued_at, last_active_at, expires_at, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, true)
	`, s.ID, s.UserID, s.DeviceID, s.IPAddress, s.UserAgent,
		s.IssuedAt, s.LastActiveAt, s.ExpiresAt)
	return err
}

func (r *SessionRepo) GetByID(ctx context.Context, id uuid.UUID) (*core.Session, error) {
	var s core.Session
	err := r.pool.QueryRow(ctx, `
		SELECT id, user_id, device_id, ip_address, user_agent,
		       issued_at, last_active_at, expires_at, ended_at, is_active
		FROM sessions WHERE id = $1
	`, id).Scan(&s.ID, &s.UserID, &s.DeviceID, &s.IPAddress, &s.UserAgent,
		&s.IssuedAt, &s.LastActiveAt, &s.ExpiresAt, &s.EndedAt, &s.IsActive)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// End deactivates one session. Idempotent: ending an already-ended session
// is a no-op.
func (r *SessionRepo) End(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE sessions SET is_active = false, ended_at = $2
		WHERE id = $1 AND is_active = true
	`, id, at)
	return err
}

func (r *SessionRepo) EndAllForUser(ctx context.Context, userID uuid.UUID, at time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE sessions SET is_active = false, ended_at = $2
		WHERE user_id = $1 AND is_active = true
	`, userID, at)
	return err
}

func (r *SessionRepo) ExtendExpiry(ctx context.Context, id uuid.UUID, expiresAt time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE sessions SET expires_at = $2, last_active_at = now()
		WHERE id = $1 AND is_active = true
	`, id, expiresAt)
	return err
}

func (r *SessionRepo) DeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE sessions SET is_active = false, ended_at = $1
		WHERE expires_at <= $1 AND is_active = true
	`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *SessionRepo) CountActiveForUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	var n int64
	err := r.pool.QueryRow(ctx, `
		SELECT count(*) FROM sessions WHERE user_id = $1 AND is_active = true
	`, userID).Scan(&n)
	return n, err
}
