// Package memory provides in-memory repository implementations mirroring
// the Postgres adapters. They back tests and single-process deployments.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/openclave/walletauth/core"
	"github.com/openclave/walletauth/ports"
)

// Repos bundles all in-memory repositories over one shared lock, giving the
// same read-your-writes behavior a single database would.
type Repos struct {
	mu       sync.Mutex
	users    map[uuid.UUID]*core.User
	wallets  map[string]*core.Wallet // key: address|chainID
	devices  map[string]*core.Device
	sessions map[uuid.UUID]*core.Session
	tokens   map[uuid.UUID]*core.RefreshToken
}

func NewRepos() *Repos {
	return &Repos{
		users:    make(map[uuid.UUID]*core.User),
		wallets:  make(map[string]*core.Wallet),
		devices:  make(map[string]*core.Device),
		sessions: make(map[uuid.UUID]*core.Session),
		tokens:   make(map[uuid.UUID]*core.RefreshToken),
	}
}

func (r *Repos) Users() ports.UserRepo                 { return (*userRepo)(r) }
func (r *Repos) Wallets() ports.WalletRepo             { return (*walletRepo)(r) }
func (r *Repos) Devices() ports.DeviceRepo             { return (*deviceRepo)(r) }
func (r *Repos) Sessions() ports.SessionRepo           { return (*sessionRepo)(r) }
func (r *Repos) RefreshTokens() ports.RefreshTokenRepo { return (*tokenRepo)(r) }

func walletKey(address string, chainID uint64) string {
	return fmt.Sprintf("%s|%d", address, chainID)
}

type userRepo Repos

func (r *userRepo) Create(ctx context.Context, u *core.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	cp := *u
	r.users[u.ID] = &cp
	return nil
}

func (r *userRepo) GetByID(ctx context.Context, id uuid.UUID) (*core.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: not found", id)
	}
	cp := *u
	return &cp, nil
}

type walletRepo Repos

func (r *walletRepo) Create(ctx context.Context, w *core.Wallet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := walletKey(w.Address, w.ChainID)
	if _, exists := r.wallets[key]; exists {
		return fmt.Errorf("wallet %s: already exists", key)
	}
	if w.CreatedAt.IsZero() {
		w.CreatedAt = time.Now()
	}
	cp := *w
	r.wallets[key] = &cp
	return nil
}

func (r *walletRepo) GetByAddress(ctx context.Context, address string, chainID uint64) (*core.Wallet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.wallets[walletKey(address, chainID)]
	if !ok {
		return nil, nil
	}
	cp := *w
	return &cp, nil
}

func (r *walletRepo) ExistsForAddress(ctx context.Context, address string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, w := range r.wallets {
		if w.Address == address {
			return true, nil
		}
	}
	return false, nil
}

type deviceRepo Repos

func (r *deviceRepo) Upsert(ctx context.Context, fingerprint, ip, userAgent string) (*core.Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	d, ok := r.devices[fingerprint]
	if !ok {
		d = &core.Device{
			Fingerprint: fingerprint,
			CreatedAt:   now,
		}
		r.devices[fingerprint] = d
	}
	d.LastIP = ip
	d.UserAgent = userAgent
	d.VisitCount++
	d.LastSeenAt = now
	cp := *d
	return &cp, nil
}

func (r *deviceRepo) BindWallet(ctx context.Context, fingerprint, address string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.devices[fingerprint]
	if !ok {
		return fmt.Errorf("device %s: not found", fingerprint)
	}
	if d.WalletAddress != "" && d.WalletAddress != address {
		return core.ErrDeviceWalletConflict
	}
	d.WalletAddress = address
	return nil
}

func (r *deviceRepo) SetUser(ctx context.Context, fingerprint string, userID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.devices[fingerprint]
	if !ok {
		return fmt.Errorf("device %s: not found", fingerprint)
	}
	d.UserID = &userID
	return nil
}

type sessionRepo Repos

func (r *sessionRepo) Create(ctx context.Context, s *core.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	cp.IsActive = true
	r.sessions[s.ID] = &cp
	s.IsActive = true
	return nil
}

func (r *sessionRepo) GetByID(ctx context.Context, id uuid.UUID) (*core.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s: not found", id)
	}
	cp := *s
	return &cp, nil
}

func (r *sessionRepo) End(ctx context.Context, id uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok && s.IsActive {
		s.IsActive = false
		s.EndedAt = &at
	}
	return nil
}

func (r *sessionRepo) EndAllForUser(ctx context.Context, userID uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sessions {
		if s.UserID == userID && s.IsActive {
			s.IsActive = false
			s.EndedAt = &at
		}
	}
	return nil
}

func (r *sessionRepo) ExtendExpiry(ctx context.Context, id uuid.UUID, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok && s.IsActive {
		s.ExpiresAt = expiresAt
		s.LastActiveAt = time.Now()
	}
	return nil
}

func (r *sessionRepo) DeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, s := range r.sessions {
		if s.IsActive && !s.ExpiresAt.After(now) {
			at := now
			s.IsActive = false
			s.EndedAt = &at
			n++
		}
	}
	return n, nil
}

func (r *sessionRepo) CountActiveForUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, s := range r.sessions {
		if s.UserID == userID && s.IsActive {
			n++
		}
	}
	return n, nil
}

type tokenRepo Repos

func (r *tokenRepo) Create(ctx context.Context, t *core.RefreshToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *t
	r.tokens[t.ID] = &cp
	return nil
}

func (r *tokenRepo) GetByID(ctx context.Context, id uuid.UUID) (*core.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tokens[id]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (r *tokenRepo) ConsumeUnused(ctx context.Context, id uuid.UUID, now time.Time) (*core.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tokens[id]
	if !ok || t.Used || !t.ExpiresAt.After(now) {
		return nil, nil
	}
	t.Used = true
	cp := *t
	return &cp, nil
}

func (r *tokenRepo) RevokeAllForSession(ctx context.Context, sessionID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tokens {
		if t.SessionID == sessionID {
			t.Used = true
		}
	}
	return nil
}
