package ports

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/openclave/walletauth/core"
)

// UserRepo persists users.
type UserRepo interface {
	Create(ctx context.Context, user *core.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*core.User, error)
}

// WalletRepo persists wallet-to-user links.
type WalletRepo interface {
	Create(ctx context.Context, wallet *core.Wallet) error
	// GetByAddress looks up a wallet by lower-cased address and canonical
	// chain ID. Returns nil, nil when no wallet exists.
	GetByAddress(ctx context.Context, address string, chainID uint64) (*core.Wallet, error)
	// ExistsForAddress reports whether the address is linked to any user on
	// any chain. Used to flag returning users at challenge time.
	ExistsForAddress(ctx context.Context, address string) (bool, error)
}

// DeviceRepo persists devices and enforces the wallet-binding policy.
type DeviceRepo interface {
	// Upsert creates the device or refreshes last-seen state and bumps the
	// visit counter, returning the stored record.
	Upsert(ctx context.Context, fingerprint, ip, userAgent string) (*core.Device, error)

	// BindWallet sets the device's bound wallet address as one atomic
	// check-then-set. Rebinding the same address is idempotent; a different
	// address yields core.ErrDeviceWalletConflict.
	BindWallet(ctx context.Context, fingerprint, address string) error

	// SetUser attaches the owning user once known.
	SetUser(ctx context.Context, fingerprint string, userID uuid.UUID) error
}

// SessionRepo persists sessions.
type SessionRepo interface {
	Create(ctx context.Context, session *core.Session) error
	GetByID(ctx context.Context, id uuid.UUID) (*core.Session, error)
	End(ctx context.Context, id uuid.UUID, at time.Time) error
	EndAllForUser(ctx context.Context, userID uuid.UUID, at time.Time) error
	// ExtendExpiry moves the session deadline forward; called only from
	// explicit refresh operations.
	ExtendExpiry(ctx context.Context, id uuid.UUID, expiresAt time.Time) error
	// DeactivateExpired flips is_active off for every session whose
	// deadline has passed and returns how many were swept.
	DeactivateExpired(ctx context.Context, now time.Time) (int64, error)
	CountActiveForUser(ctx context.Context, userID uuid.UUID) (int64, error)
}

// RefreshTokenRepo persists single-use refresh tokens.
type RefreshTokenRepo interface {
	Create(ctx context.Context, token *core.RefreshToken) error
	GetByID(ctx context.Context, id uuid.UUID) (*core.RefreshToken, error)
	// ConsumeUnused atomically marks the token used, succeeding only if it
	// is currently unused and unexpired. Two concurrent calls race to
	// exactly one success.
	ConsumeUnused(ctx context.Context, id uuid.UUID, now time.Time) (*core.RefreshToken, error)
	// RevokeAllForSession marks every outstanding token of a session used.
	RevokeAllForSession(ctx context.Context, sessionID uuid.UUID) error
}
