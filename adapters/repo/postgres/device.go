package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/openclave/walletauth/core"
	"github.com/openclave/walletauth/ports"
)

// DeviceRepo is a pgx-backed implementation of ports.DeviceRepo.
type DeviceRepo struct {
	pool *pgxpool.Pool
}

func NewDeviceRepo(pool *pgxpool.Pool) ports.DeviceRepo {
	return &DeviceRepo{pool: pool}
}

func (r *DeviceRepo) Upsert(ctx context.Context, fingerprint, ip, userAgent string) (*core.Device, error) {
	var d core.Device
	err := r.pool.QueryRow(ctx, `
		INSERT INTO devices (fingerprint, last_ip, user_agent)
		VALUES ($1, $2, $3)
		ON CONFLICT (fingerprint) DO UPDATE SET
			last_ip = EXCLUDED.last_ip,
			user_agent = EXCLUDED.user_agent,
			visit_count = devices.visit_count + 1,
			last_seen_at = now()
		RETURNING fingerprint, user_id, COALESCE(wallet_address, ''), last_ip,
		          user_agent, visit_count, last_seen_at, created_at
	`, fingerprint, ip, userAgent).Scan(
		&d.Fingerprint, &d.UserID, &d.WalletAddress, &d.LastIP,
		&d.UserAgent, &d.VisitCount, &d.LastSeenAt, &d.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// BindWallet is the single serializable check-then-set of the binding
// policy: the conditional UPDATE succeeds only when the device has no bound
// wallet or already holds the same address, so two concurrent binds can
// never leave a device with two wallets.
func (r *DeviceRepo) BindWallet(ctx context.Context, fingerprint, address string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE devices SET wallet_address = $2
		WHERE fingerprint = $1
		  AND (wallet_address IS NULL OR wallet_address = $2)
	`, fingerprint, address)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		// Either the device is unknown or it holds a different wallet;
		// an unknown device is a programming error upstream, so report
		// the policy conflict.
		var exists bool
		if err := r.pool.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM devices WHERE fingerprint = $1)`,
			fingerprint).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return pgx.ErrNoRows
		}
		return core.ErrDeviceWalletConflict
	}
	return nil
}

func (r *DeviceRepo) SetUser(ctx context.Context, fingerprint string, userID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE devices SET user_id = $2 WHERE fingerprint = $1
	`, fingerprint, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
