package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/openclave/walletauth/core"
	"github.com/openclave/walletauth/ports"
	"go.uber.org/zap"
)

// DefaultSessionTTL is how long a session stays valid without an explicit
// refresh.
const DefaultSessionTTL = 7 * 24 * time.Hour

// SessionService enforces binding policy between devices, wallets and
// active sessions, and sweeps expired sessions.
type SessionService struct {
	devices    ports.DeviceRepo
	sessions   ports.SessionRepo
	sessionTTL time.Duration
	log        *zap.Logger
}

// NewSessionService creates a new session/device manager.
func NewSessionService(devices ports.DeviceRepo, sessions ports.SessionRepo, log *zap.Logger) *SessionService {
	return &SessionService{
		devices:    devices,
		sessions:   sessions,
		sessionTTL: DefaultSessionTTL,
		log:        log,
	}
}

// SetSessionTTL overrides the default session lifetime.
func (s *SessionService) SetSessionTTL(d time.Duration) { s.sessionTTL = d }

// Fingerprint derives a stable device identifier. A client-reported
// fingerprint header wins; without one the IP and user agent are hashed so
// repeat visitors still map to the same device record.
func Fingerprint(reported, ip, userAgent string) string {
	if reported != "" {
		return reported
	}
	sum := sha256.Sum256([]byte(ip + "|" + userAgent))
	return hex.EncodeToString(sum[:16])
}

// ResolveDevice creates-or-updates the device record, tracking last-seen IP
// and bumping the visit counter.
func (s *SessionService) ResolveDevice(ctx context.Context, fingerprint, ip, userAgent string) (*core.Device, error) {
	device, err := s.devices.Upsert(ctx, fingerprint, ip, userAgent)
	if err != nil {
		return nil, fmt.Errorf("resolve device: %w", err)
	}
	return device, nil
}

// BindWallet enforces the one-wallet-per-device policy. Rebinding the same
// address is idempotent; a different address yields
// core.ErrDeviceWalletConflict. Conflicts are reported, never retried.
func (s *SessionService) BindWallet(ctx context.Context, fingerprint, address string) error {
	return s.devices.BindWallet(ctx, fingerprint, address)
}

// AttachUser records the owning user on a device after authentication.
func (s *SessionService) AttachUser(ctx context.Context, fingerprint string, userID uuid.UUID) error {
	return s.devices.SetUser(ctx, fingerprint, userID)
}

// CreateSession opens a session for a user on a device. Always permitted:
// each session row is independent, so concurrent sessions on other devices
// are unaffected.
func (s *SessionService) CreateSession(ctx context.Context, userID uuid.UUID, deviceID, ip, userAgent string) (*core.Session, error) {
	now := time.Now()
	session := &core.Session{
		ID:           uuid.New(),
		UserID:       userID,
		DeviceID:     deviceID,
		IPAddress:    ip,
		UserAgent:    userAgent,
		IssuedAt:     now,
		LastActiveAt: now,
		ExpiresAt:    now.Add(s.sessionTTL),
		IsActive:     true,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return session, nil
}

// GetSession returns a session by ID.
func (s *SessionService) GetSession(ctx context.Context, id uuid.UUID) (*core.Session, error) {
	return s.sessions.GetByID(ctx, id)
}

// EndSession deactivates one session. Idempotent.
func (s *SessionService) EndSession(ctx context.Context, id uuid.UUID) error {
	return s.sessions.End(ctx, id, time.Now())
}

// EndAllSessions deactivates every active session of a user. Idempotent.
func (s *SessionService) EndAllSessions(ctx context.Context, userID uuid.UUID) error {
	return s.sessions.EndAllForUser(ctx, userID, time.Now())
}

// ExtendSession moves a session deadline forward. Only explicit refresh
// operations call this; ordinary API traffic never extends a session.
func (s *SessionService) ExtendSession(ctx context.Context, id uuid.UUID) error {
	return s.sessions.ExtendExpiry(ctx, id, time.Now().Add(s.sessionTTL))
}

// CountActiveSessions sweeps opportunistically, then counts the user's
// active sessions.
func (s *SessionService) CountActiveSessions(ctx context.Context, userID uuid.UUID) (int64, error) {
	if _, err := s.CleanupExpired(ctx); err != nil {
		s.log.Warn("opportunistic session sweep failed", zap.Error(err))
	}
	return s.sessions.CountActiveForUser(ctx, userID)
}

// CleanupExpired deactivates sessions whose deadline has passed and returns
// how many were swept.
func (s *SessionService) CleanupExpired(ctx context.Context) (int64, error) {
	return s.sessions.DeactivateExpired(ctx, time.Now())
}

// RunSweeper runs CleanupExpired on a fixed interval until the context is
// canceled. Sweep failures are logged and retried on the next tick, never
// escalated to request handling.
func (s *SessionService) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.CleanupExpired(ctx)
			if err != nil {
				s.log.Warn("session sweep failed", zap.Error(err))
				continue
			}
			if n > 0 {
				s.log.Info("expired sessions deactivated", zap.Int64("count", n))
			}
		}
	}
}
