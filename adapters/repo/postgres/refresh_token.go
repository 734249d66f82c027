package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/openclave/walletauth/core"
	"github.com/openclave/walletauth/ports"
)

// RefreshTokenRepo is a pgx-backed implementation of ports.RefreshTokenRepo.
type RefreshTokenRepo struct {
	pool *pgxpool.Pool
}

func NewRefreshTokenRepo(pool *pgxpool.Pool) ports.RefreshTokenRepo {
	return &RefreshTokenRepo{pool: pool}
}

func (r *RefreshTokenRepo) Create(ctx context.Context, t *core.RefreshToken) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO refresh_tokens (id, user_id, session_id, issued_at, expires_at, used)
		VALUES ($1, $2, $3, $4, $5, false)
	`, t.ID, t.UserID, t.SessionID, t.IssuedAt, t.ExpiresAt)
	return err
}

func (r *RefreshTokenRepo) GetByID(ctx context.Context, id uuid.UUID) (*core.RefreshToken, error) {
	var t core.RefreshToken
	err := r.pool.QueryRow(ctx, `
		SELECT id, user_id, session_id, issued_at, expires_at, used
		FROM refresh_tokens WHERE id = $1
	`, id).Scan(&t.ID, &t.UserID, &t.SessionID, &t.IssuedAt, &t.ExpiresAt, &t.Used)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ConsumeUnused is the atomic verify-then-mark-used step of rotation. The
// conditional UPDATE guarantees two concurrent refresh calls race to exactly
// one winner.
func (r *RefreshTokenRepo) ConsumeUnused(ctx context.Context, id uuid.UUID, now time.Time) (*core.RefreshToken, error) {
	var t core.RefreshToken
	err := r.pool.QueryRow(ctx, `
		UPDATE refresh_tokens SET used = true
		WHERE id = $1 AND used = false AND expires_at > $2
		RETURNING id, user_id, session_id, issued_at, expires_at, used
	`, id, now).Scan(&t.ID, &t.UserID, &t.SessionID, &t.IssuedAt, &t.ExpiresAt, &t.Used)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *RefreshTokenRepo) RevokeAllForSession(ctx context.Context, sessionID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE refresh_tokens SET used = true
		WHERE session_id = $1 AND used = false
	`, sessionID)
	return err
}
