package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/openclave/walletauth/core"
	"github.com/openclave/walletauth/ports"
	"go.uber.org/zap"
)

const (
	// DefaultAccessTTL is the lifetime of an access token.
	DefaultAccessTTL = 15 * time.Minute

	// DefaultRefreshTTL is the lifetime of a refresh token.
	DefaultRefreshTTL = 30 * 24 * time.Hour
)

// TokenService issues, refreshes and revokes bearer credential pairs.
// Refresh tokens are single-use: rotation marks the presented token used and
// mints a successor bound to the same session.
type TokenService struct {
	tokenizer ports.Tokenizer
	tokens    ports.RefreshTokenRepo
	sessions  ports.SessionRepo
	events    ports.EventPublisher
	log       *zap.Logger

	accessTTL  time.Duration
	refreshTTL time.Duration
	sessionTTL time.Duration
}

// NewTokenService creates a new token service.
func NewTokenService(
	tokenizer ports.Tokenizer,
	tokens ports.RefreshTokenRepo,
	sessions ports.SessionRepo,
	events ports.EventPublisher,
	log *zap.Logger,
) *TokenService {
	return &TokenService{
		tokenizer:  tokenizer,
		tokens:     tokens,
		sessions:   sessions,
		events:     events,
		log:        log,
		accessTTL:  DefaultAccessTTL,
		refreshTTL: DefaultRefreshTTL,
		sessionTTL: DefaultSessionTTL,
	}
}

// SetTTLs overrides the default token and session lifetimes.
func (s *TokenService) SetTTLs(access, refresh, session time.Duration) {
	s.accessTTL = access
	s.refreshTTL = refresh
	s.sessionTTL = session
}

// Issue mints a credential pair for a session. The access token carries the
// session and device so downstream authorization can cross-check session
// validity, not just signature validity.
func (s *TokenService) Issue(ctx context.Context, userID, sessionID uuid.UUID, deviceID string) (core.TokenPair, error) {
	now := time.Now()

	row := &core.RefreshToken{
		ID:        uuid.New(),
		UserID:    userID,
		SessionID: sessionID,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.refreshTTL),
	}
	if err := s.tokens.Create(ctx, row); err != nil {
		return core.TokenPair{}, fmt.Errorf("persist refresh token: %w", err)
	}

	refresh, err := s.tokenizer.SignRefresh(ports.RefreshClaims{
		TokenID:   row.ID,
		UserID:    userID,
		SessionID: sessionID,
		ExpiresAt: row.ExpiresAt,
	})
	if err != nil {
		return core.TokenPair{}, fmt.Errorf("sign refresh token: %w", err)
	}

	access, err := s.tokenizer.SignAccess(ports.AccessClaims{
		UserID:    userID,
		SessionID: sessionID,
		DeviceID:  deviceID,
		ExpiresAt: now.Add(s.accessTTL),
	})
	if err != nil {
		return core.TokenPair{}, fmt.Errorf("sign access token: %w", err)
	}

	return core.TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// Refresh rotates a refresh token: the presented token must exist, be
// unused and unexpired; on success it is consumed and a new pair is minted
// bound to the same session. Presenting an already-used token is treated as
// replay and ends the session for defense in depth.
func (s *TokenService) Refresh(ctx context.Context, refreshToken string) (core.TokenPair, error) {
	claims, err := s.tokenizer.ParseRefresh(refreshToken)
	if err != nil {
		return core.TokenPair{}, err
	}

	now := time.Now()
	row, err := s.tokens.ConsumeUnused(ctx, claims.TokenID, now)
	if err != nil {
		return core.TokenPair{}, fmt.Errorf("consume refresh token: %w", err)
	}
	if row == nil {
		return core.TokenPair{}, s.rejectRefresh(ctx, claims, now)
	}

	session, err := s.sessions.GetByID(ctx, row.SessionID)
	if err != nil || !session.IsActive {
		return core.TokenPair{}, core.ErrSessionInvalid
	}

	// Explicit refresh is the only operation that extends the session.
	if err := s.sessions.ExtendExpiry(ctx, session.ID, now.Add(s.sessionTTL)); err != nil {
		return core.TokenPair{}, fmt.Errorf("extend session: %w", err)
	}

	return s.Issue(ctx, row.UserID, row.SessionID, session.DeviceID)
}

// rejectRefresh classifies a failed consume. A used row means the token was
// already rotated once: suspected theft, so the session is revoked and the
// event broadcast.
func (s *TokenService) rejectRefresh(ctx context.Context, claims *ports.RefreshClaims, now time.Time) error {
	row, err := s.tokens.GetByID(ctx, claims.TokenID)
	if err != nil {
		return fmt.Errorf("look up refresh token: %w", err)
	}
	if row == nil {
		return core.ErrInvalidToken
	}
	if row.Used {
		s.log.Warn("refresh token replay suspected, ending session",
			zap.String("session_id", row.SessionID.String()),
			zap.String("user_id", row.UserID.String()))

		if err := s.sessions.End(ctx, row.SessionID, now); err != nil {
			s.log.Error("failed to end session after replay", zap.Error(err))
		}
		if err := s.tokens.RevokeAllForSession(ctx, row.SessionID); err != nil {
			s.log.Error("failed to revoke session tokens after replay", zap.Error(err))
		}
		if err := s.events.PublishReplaySuspected(ctx, row.UserID.String(), row.SessionID.String()); err != nil {
			s.log.Warn("failed to publish replay event", zap.Error(err))
		}
		return core.ErrReplaySuspected
	}
	return core.ErrTokenExpired
}

// Revoke invalidates all outstanding refresh tokens for a session.
func (s *TokenService) Revoke(ctx context.Context, sessionID uuid.UUID) error {
	return s.tokens.RevokeAllForSession(ctx, sessionID)
}

// Validate parses an access token and cross-checks that its session is
// still active and unexpired.
func (s *TokenService) Validate(ctx context.Context, accessToken string) (*ports.AccessClaims, error) {
	claims, err := s.tokenizer.ParseAccess(accessToken)
	if err != nil {
		return nil, err
	}

	session, err := s.sessions.GetByID(ctx, claims.SessionID)
	if err != nil {
		return nil, core.ErrSessionInvalid
	}
	if !session.IsActive || !session.ExpiresAt.After(time.Now()) {
		return nil, core.ErrSessionInvalid
	}
	return claims, nil
}

// Logout consumes the presented refresh token and ends its session,
// publishing the logout so other instances drop cached state. Idempotent
// from the caller's perspective: an already-rotated or expired token still
// results in an ended session when the row can be resolved.
func (s *TokenService) Logout(ctx context.Context, refreshToken string) error {
	claims, err := s.tokenizer.ParseRefresh(refreshToken)
	if err != nil {
		return err
	}

	if err := s.tokens.RevokeAllForSession(ctx, claims.SessionID); err != nil {
		return fmt.Errorf("revoke session tokens: %w", err)
	}
	if err := s.sessions.End(ctx, claims.SessionID, time.Now()); err != nil {
		return fmt.Errorf("end session: %w", err)
	}

	if err := s.events.PublishLogout(ctx, claims.UserID.String(), claims.SessionID.String()); err != nil {
		// The session is already ended locally, which is the critical part.
		s.log.Warn("failed to publish logout event", zap.Error(err))
	}
	return nil
}
