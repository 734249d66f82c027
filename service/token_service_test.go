package service

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/openclave/walletauth/adapters/events"
	"github.com/openclave/walletauth/adapters/repo/memory"
	"github.com/openclave/walletauth/adapters/tokenizer"
	"github.com/openclave/walletauth/core"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTokenService(t *testing.T) (*TokenService, *SessionService, *memory.Repos) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	repos := memory.NewRepos()
	log := zap.NewNop()
	sessions := NewSessionService(repos.Devices(), repos.Sessions(), log)
	tokens := NewTokenService(tokenizer.NewJWTTokenizer(key), repos.RefreshTokens(), repos.Sessions(), events.NopPublisher{}, log)
	return tokens, sessions, repos
}

func issueSession(t *testing.T, tokens *TokenService, sessions *SessionService) (uuid.UUID, *core.Session, core.TokenPair) {
	t.Helper()
	ctx := context.Background()
	userID := uuid.New()

	session, err := sessions.CreateSession(ctx, userID, "fp-1", "1.1.1.1", "ua")
	require.NoError(t, err)

	pair, err := tokens.Issue(ctx, userID, session.ID, "fp-1")
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)
	return userID, session, pair
}

func TestRefreshRotatesExactlyOnce(t *testing.T) {
	ctx := context.Background()
	tokens, sessions, _ := newTokenService(t)
	_, _, pair := issueSession(t, tokens, sessions)

	next, err := tokens.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	require.NotEqual(t, pair.RefreshToken, next.RefreshToken)

	// The consumed token can never again produce a pair.
	_, err = tokens.Refresh(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, core.ErrReplaySuspected)
}

func TestReplayEndsSession(t *testing.T) {
	ctx := context.Background()
	tokens, sessions, _ := newTokenService(t)
	_, session, pair := issueSession(t, tokens, sessions)

	next, err := tokens.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)

	_, err = tokens.Refresh(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, core.ErrReplaySuspected)

	got, err := sessions.GetSession(ctx, session.ID)
	require.NoError(t, err)
	require.False(t, got.IsActive)

	// The successor minted by the rotation is dead too.
	_, err = tokens.Refresh(ctx, next.RefreshToken)
	require.Error(t, err)
}

func TestConcurrentRefreshSingleWinner(t *testing.T) {
	ctx := context.Background()
	tokens, sessions, _ := newTokenService(t)
	_, _, pair := issueSession(t, tokens, sessions)

	const attempts = 8
	var wg sync.WaitGroup
	errs := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := tokens.Refresh(ctx, pair.RefreshToken)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var successes int
	for err := range errs {
		if err == nil {
			successes++
		}
	}
	require.Equal(t, 1, successes)
}

func TestExpiredRefreshRejected(t *testing.T) {
	ctx := context.Background()
	tokens, sessions, _ := newTokenService(t)
	tokens.refreshTTL = -time.Minute

	_, _, pair := issueSession(t, tokens, sessions)

	_, err := tokens.Refresh(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, core.ErrTokenExpired)
}

func TestValidateCrossChecksSession(t *testing.T) {
	ctx := context.Background()
	tokens, sessions, _ := newTokenService(t)
	userID, session, pair := issueSession(t, tokens, sessions)

	claims, err := tokens.Validate(ctx, pair.AccessToken)
	require.NoError(t, err)
	require.Equal(t, userID, claims.UserID)
	require.Equal(t, session.ID, claims.SessionID)

	// Ending the session kills otherwise-valid access tokens.
	require.NoError(t, sessions.EndSession(ctx, session.ID))
	_, err = tokens.Validate(ctx, pair.AccessToken)
	require.ErrorIs(t, err, core.ErrSessionInvalid)
}

func TestLogoutEndsSessionAndRevokesTokens(t *testing.T) {
	ctx := context.Background()
	tokens, sessions, _ := newTokenService(t)
	_, session, pair := issueSession(t, tokens, sessions)

	require.NoError(t, tokens.Logout(ctx, pair.RefreshToken))

	got, err := sessions.GetSession(ctx, session.ID)
	require.NoError(t, err)
	require.False(t, got.IsActive)

	_, err = tokens.Refresh(ctx, pair.RefreshToken)
	require.Error(t, err)
}

func TestRevokeInvalidatesOutstandingTokens(t *testing.T) {
	ctx := context.Background()
	tokens, sessions, _ := newTokenService(t)
	_, session, pair := issueSession(t, tokens, sessions)

	require.NoError(t, tokens.Revoke(ctx, session.ID))

	_, err := tokens.Refresh(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, core.ErrReplaySuspected)
}
