package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/openclave/walletauth/core"
	"github.com/openclave/walletauth/ports"
)

// WalletRepo is a pgx-backed implementation of ports.WalletRepo.
type WalletRepo struct {
	pool *pgxpool.Pool
}

func NewWalletRepo(pool *pgxpool.Pool) ports.WalletRepo {
	return &WalletRepo{pool: pool}
}

func (r *WalletRepo) Create(ctx context.Context, w *core.Wallet) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO wallets (address, chain_id, user_id, is_primary)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`, w.Address, w.ChainID, w.UserID, w.IsPrimary).Scan(&w.CreatedAt)
}

func (r *WalletRepo) GetByAddress(ctx context.Context, address string, chainID uint64) (*core.Wallet, error) {
	var w core.Wallet
	err := r.pool.QueryRow(ctx, `
		SELECT address, chain_id, user_id, is_primary, created_at
		FROM wallets WHERE address = $1 AND chain_id = $2
	`, address, chainID).Scan(&w.Address, &w.ChainID, &w.UserID, &w.IsPrimary, &w.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (r *WalletRepo) ExistsForAddress(ctx context.Context, address string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM wallets WHERE address = $1)
	`, address).Scan(&exists)
	return exists, err
}
