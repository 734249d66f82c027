package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/openclave/walletauth/adapters/repo/memory"
	"github.com/openclave/walletauth/core"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newSessionService() (*SessionService, *memory.Repos) {
	repos := memory.NewRepos()
	return NewSessionService(repos.Devices(), repos.Sessions(), zap.NewNop()), repos
}

func TestFingerprintDerivation(t *testing.T) {
	// A reported fingerprint wins.
	require.Equal(t, "fp-1", Fingerprint("fp-1", "1.2.3.4", "ua"))

	// Without one, the same client derives the same fingerprint.
	a := Fingerprint("", "1.2.3.4", "ua")
	b := Fingerprint("", "1.2.3.4", "ua")
	c := Fingerprint("", "5.6.7.8", "ua")
	require.Equal(t, a, b)
	require.NotEqual(t, a, c)
}

func TestResolveDeviceBumpsVisitCount(t *testing.T) {
	ctx := context.Background()
	svc, _ := newSessionService()

	d1, err := svc.ResolveDevice(ctx, "fp-1", "1.2.3.4", "ua")
	require.NoError(t, err)
	require.EqualValues(t, 1, d1.VisitCount)

	d2, err := svc.ResolveDevice(ctx, "fp-1", "9.9.9.9", "ua")
	require.NoError(t, err)
	require.EqualValues(t, 2, d2.VisitCount)
	require.Equal(t, "9.9.9.9", d2.LastIP)
}

func TestBindWalletPolicy(t *testing.T) {
	ctx := context.Background()
	svc, _ := newSessionService()

	_, err := svc.ResolveDevice(ctx, "fp-1", "1.2.3.4", "ua")
	require.NoError(t, err)

	// First bind succeeds, rebinding the same address is idempotent.
	require.NoError(t, svc.BindWallet(ctx, "fp-1", "0xaaa"))
	require.NoError(t, svc.BindWallet(ctx, "fp-1", "0xaaa"))

	// A different address on the same device is a policy conflict.
	err = svc.BindWallet(ctx, "fp-1", "0xbbb")
	require.ErrorIs(t, err, core.ErrDeviceWalletConflict)
}

func TestConcurrentSessionsPerUser(t *testing.T) {
	ctx := context.Background()
	svc, _ := newSessionService()
	userID := uuid.New()

	_, err := svc.CreateSession(ctx, userID, "fp-1", "1.1.1.1", "ua")
	require.NoError(t, err)
	_, err = svc.CreateSession(ctx, userID, "fp-2", "2.2.2.2", "ua")
	require.NoError(t, err)

	n, err := svc.CountActiveSessions(ctx, userID)
	require.NoError(t, err)
	require.EqualValues(t, 2, n)

	require.NoError(t, svc.EndAllSessions(ctx, userID))
	n, err = svc.CountActiveSessions(ctx, userID)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestEndSessionIdempotent(t *testing.T) {
	ctx := context.Background()
	svc, _ := newSessionService()

	session, err := svc.CreateSession(ctx, uuid.New(), "fp-1", "1.1.1.1", "ua")
	require.NoError(t, err)

	require.NoError(t, svc.EndSession(ctx, session.ID))
	require.NoError(t, svc.EndSession(ctx, session.ID))

	got, err := svc.GetSession(ctx, session.ID)
	require.NoError(t, err)
	require.False(t, got.IsActive)
	require.NotNil(t, got.EndedAt)
}

func TestCleanupExpiredSweepsOnlyPastDeadlines(t *testing.T) {
	ctx := context.Background()
	svc, repos := newSessionService()
	userID := uuid.New()

	expired, err := svc.CreateSession(ctx, userID, "fp-1", "1.1.1.1", "ua")
	require.NoError(t, err)
	live, err := svc.CreateSession(ctx, userID, "fp-2", "2.2.2.2", "ua")
	require.NoError(t, err)

	// Push one session's deadline into the past.
	require.NoError(t, repos.Sessions().ExtendExpiry(ctx, expired.ID, time.Now().Add(-time.Minute)))

	n, err := svc.CleanupExpired(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	gotExpired, err := svc.GetSession(ctx, expired.ID)
	require.NoError(t, err)
	require.False(t, gotExpired.IsActive)

	gotLive, err := svc.GetSession(ctx, live.ID)
	require.NoError(t, err)
	require.True(t, gotLive.IsActive)
}
