package service

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/openclave/walletauth/adapters/challenge"
	"github.com/openclave/walletauth/adapters/events"
	"github.com/openclave/walletauth/adapters/repo/memory"
	"github.com/openclave/walletauth/adapters/tokenizer"
	"github.com/openclave/walletauth/core"
	"github.com/openclave/walletauth/internal/eth"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type authFixture struct {
	svc      *AuthService
	sessions *SessionService
	tokens   *TokenService
	repos    *memory.Repos
	key      *ecdsa.PrivateKey
	address  string
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()

	walletKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	signKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	repos := memory.NewRepos()
	log := zap.NewNop()
	sessions := NewSessionService(repos.Devices(), repos.Sessions(), log)
	tokens := NewTokenService(tokenizer.NewJWTTokenizer(signKey), repos.RefreshTokens(), repos.Sessions(), events.NopPublisher{}, log)
	svc := NewAuthService(challenge.NewMemoryStore(), repos.Users(), repos.Wallets(), sessions, tokens, log)

	return &authFixture{
		svc:      svc,
		sessions: sessions,
		tokens:   tokens,
		repos:    repos,
		key:      walletKey,
		address:  crypto.PubkeyToAddress(walletKey.PublicKey).Hex(),
	}
}

func (f *authFixture) personalSign(t *testing.T, message string) string {
	t.Helper()
	sig, err := crypto.Sign(accounts.TextHash([]byte(message)), f.key)
	require.NoError(t, err)
	sig[64] += 27
	return hexutil.Encode(sig)
}

func (f *authFixture) input(message, signature, fingerprint string) AuthInput {
	return AuthInput{
		Address:     f.address,
		Message:     message,
		Signature:   signature,
		Fingerprint: fingerprint,
		IP:          "1.2.3.4",
		UserAgent:   "test-agent",
		ChainID:     1,
	}
}

func TestFirstAuthenticationCreatesUserAndSession(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)

	ch, err := f.svc.Challenge(ctx, f.address)
	require.NoError(t, err)
	require.False(t, ch.IsExistingUser)
	require.Contains(t, ch.Challenge.Message, ch.Challenge.Nonce)

	result, offer, err := f.svc.Authenticate(ctx, f.input(ch.Challenge.Message, f.personalSign(t, ch.Challenge.Message), "fp-1"))
	require.NoError(t, err)
	require.Nil(t, offer)
	require.True(t, result.IsNewUser)
	require.NotEmpty(t, result.Tokens.AccessToken)

	n, err := f.sessions.CountActiveSessions(ctx, result.User.ID)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	// The wallet now exists, so the next challenge flags a returning user.
	ch2, err := f.svc.Challenge(ctx, f.address)
	require.NoError(t, err)
	require.True(t, ch2.IsExistingUser)
}

func TestSecondDeviceKeepsBothSessionsActive(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)

	ch, err := f.svc.Challenge(ctx, f.address)
	require.NoError(t, err)
	first, _, err := f.svc.Authenticate(ctx, f.input(ch.Challenge.Message, f.personalSign(t, ch.Challenge.Message), "fp-1"))
	require.NoError(t, err)

	ch, err = f.svc.Challenge(ctx, f.address)
	require.NoError(t, err)
	second, _, err := f.svc.Authenticate(ctx, f.input(ch.Challenge.Message, f.personalSign(t, ch.Challenge.Message), "fp-2"))
	require.NoError(t, err)

	require.Equal(t, first.User.ID, second.User.ID)
	require.False(t, second.IsNewUser)

	n, err := f.sessions.CountActiveSessions(ctx, first.User.ID)
	require.NoError(t, err)
	require.EqualValues(t, 2, n)
}

func TestChallengeIsSingleUse(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)

	ch, err := f.svc.Challenge(ctx, f.address)
	require.NoError(t, err)
	sig := f.personalSign(t, ch.Challenge.Message)

	_, _, err = f.svc.Authenticate(ctx, f.input(ch.Challenge.Message, sig, "fp-1"))
	require.NoError(t, err)

	// The challenge was consumed by the first attempt.
	_, _, err = f.svc.Authenticate(ctx, f.input(ch.Challenge.Message, sig, "fp-1"))
	require.ErrorIs(t, err, core.ErrChallengeNotFound)
}

func TestAlteredMessageIsMismatchAndConsumesChallenge(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)

	ch, err := f.svc.Challenge(ctx, f.address)
	require.NoError(t, err)
	altered := ch.Challenge.Message + " "

	_, _, err = f.svc.Authenticate(ctx, f.input(altered, f.personalSign(t, altered), "fp-1"))
	require.ErrorIs(t, err, core.ErrChallengeMismatch)

	// Consumed on the failed attempt: retrying with the exact message
	// observes not-found.
	_, _, err = f.svc.Authenticate(ctx, f.input(ch.Challenge.Message, f.personalSign(t, ch.Challenge.Message), "fp-1"))
	require.ErrorIs(t, err, core.ErrChallengeNotFound)
}

func TestTypedDataFallbackBindsCorrectAddress(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)

	ch, err := f.svc.Challenge(ctx, f.address)
	require.NoError(t, err)

	// Wallet signs the EIP-712 wrapping instead of personal_sign.
	digest, err := eth.TypedDataHash(ch.Challenge.Message)
	require.NoError(t, err)
	sig, err := crypto.Sign(digest, f.key)
	require.NoError(t, err)
	sig[64] += 27

	result, _, err := f.svc.Authenticate(ctx, f.input(ch.Challenge.Message, hexutil.Encode(sig), "fp-1"))
	require.NoError(t, err)
	require.True(t, result.IsNewUser)

	wallet, err := f.repos.Wallets().GetByAddress(ctx, strings.ToLower(f.address), 1)
	require.NoError(t, err)
	require.NotNil(t, wallet)
	require.Equal(t, result.User.ID, wallet.UserID)
}

func TestDeviceWalletConflictSurfaced(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)
	other := newAuthFixture(t)

	ch, err := f.svc.Challenge(ctx, f.address)
	require.NoError(t, err)
	_, _, err = f.svc.Authenticate(ctx, f.input(ch.Challenge.Message, f.personalSign(t, ch.Challenge.Message), "fp-1"))
	require.NoError(t, err)

	// A different wallet on the same device violates the binding policy.
	ch2, err := f.svc.Challenge(ctx, other.address)
	require.NoError(t, err)
	in := f.input(ch2.Challenge.Message, other.personalSign(t, ch2.Challenge.Message), "fp-1")
	in.Address = other.address

	_, _, err = f.svc.Authenticate(ctx, in)
	require.ErrorIs(t, err, core.ErrDeviceWalletConflict)
}

func TestRecoveryPathStillRequiresValidSignature(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)
	f.svc.EnableRecovery()

	ch, err := f.svc.Challenge(ctx, f.address)
	require.NoError(t, err)

	// A garbage signature over the right message exhausts every method and
	// produces a recovery offer.
	bad := "0x" + strings.Repeat("11", 65)
	_, offer, err := f.svc.Authenticate(ctx, f.input(ch.Challenge.Message, bad, "fp-1"))
	require.ErrorIs(t, err, core.ErrSignatureVerificationFailed)
	require.NotNil(t, offer)

	// Redeeming with another garbage signature fails: recovery widens the
	// accepted payload, never bypasses verification.
	_, err = f.svc.RedeemRecovery(ctx, f.input(offer.Message, bad, "fp-1"))
	require.ErrorIs(t, err, core.ErrSignatureVerificationFailed)
}

func TestRecoveryAcceptsAlternateFraming(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)
	f.svc.EnableRecovery()

	ch, err := f.svc.Challenge(ctx, f.address)
	require.NoError(t, err)

	bad := "0x" + strings.Repeat("11", 65)
	_, offer, err := f.svc.Authenticate(ctx, f.input(ch.Challenge.Message, bad, "fp-1"))
	require.ErrorIs(t, err, core.ErrSignatureVerificationFailed)
	require.NotNil(t, offer)

	// The wallet signs the original failed framing this time; recovery
	// tolerates it.
	result, err := f.svc.RedeemRecovery(ctx, f.input(ch.Challenge.Message, f.personalSign(t, ch.Challenge.Message), "fp-1"))
	require.NoError(t, err)
	require.True(t, result.IsNewUser)
}

func TestRecoveryDisabledByDefault(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)

	ch, err := f.svc.Challenge(ctx, f.address)
	require.NoError(t, err)

	bad := "0x" + strings.Repeat("11", 65)
	_, offer, err := f.svc.Authenticate(ctx, f.input(ch.Challenge.Message, bad, "fp-1"))
	require.ErrorIs(t, err, core.ErrSignatureVerificationFailed)
	require.Nil(t, offer)

	_, err = f.svc.RedeemRecovery(ctx, f.input("anything", bad, "fp-1"))
	require.ErrorIs(t, err, core.ErrRecoveryUnavailable)
}
