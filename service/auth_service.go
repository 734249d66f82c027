package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/openclave/walletauth/core"
	"github.com/openclave/walletauth/internal/eth"
	"github.com/openclave/walletauth/ports"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultChallengeTTL is the lifetime of an ordinary challenge.
	DefaultChallengeTTL = 5 * time.Minute

	// DefaultRecoveryTTL is the short redemption window of a recovery
	// challenge.
	DefaultRecoveryTTL = 2 * time.Minute

	serviceName = "walletauth"
)

// AuthService drives the end-to-end authentication state machine: challenge
// issuance, signature verification, device and wallet binding, user
// creation and credential issuance.
type AuthService struct {
	store    ports.ChallengeStore
	users    ports.UserRepo
	wallets  ports.WalletRepo
	sessions *SessionService
	tokens   *TokenService
	log      *zap.Logger

	// Concurrent challenge requests for one address collapse into a single
	// issuance; both callers receive the same challenge.
	group singleflight.Group

	challengeTTL time.Duration
	recoveryTTL  time.Duration

	// allowRecovery enables the fallback path of §recovery; never set in
	// production together with bypassSignature.
	allowRecovery bool

	// bypassSignature skips signature verification entirely. Test-only
	// escape hatch, refused by config validation outside development.
	bypassSignature bool
}

// NewAuthService creates a new authentication orchestrator.
func NewAuthService(
	store ports.ChallengeStore,
	users ports.UserRepo,
	wallets ports.WalletRepo,
	sessions *SessionService,
	tokens *TokenService,
	log *zap.Logger,
) *AuthService {
	return &AuthService{
		store:        store,
		users:        users,
		wallets:      wallets,
		sessions:     sessions,
		tokens:       tokens,
		log:          log,
		challengeTTL: DefaultChallengeTTL,
		recoveryTTL:  DefaultRecoveryTTL,
	}
}

// SetChallengeTTL overrides the default challenge lifetime.
func (s *AuthService) SetChallengeTTL(d time.Duration) { s.challengeTTL = d }

// EnableRecovery turns on the recovery path.
func (s *AuthService) EnableRecovery() { s.allowRecovery = true }

// EnableSignatureBypass disables signature verification. Development only.
func (s *AuthService) EnableSignatureBypass() { s.bypassSignature = true }

// AuthInput carries one authentication attempt.
type AuthInput struct {
	Address   string
	Message   string
	Signature string
	Email     *string

	Fingerprint string
	IP          string
	UserAgent   string

	ChainID         uint64
	ReportedNetwork string
}

// ChallengeResult is the outcome of challenge issuance.
type ChallengeResult struct {
	Challenge      *core.Challenge
	IsExistingUser bool
}

// flow tracks the state machine of a single authentication attempt and
// logs every transition.
type flow struct {
	state   core.AuthState
	address string
	log     *zap.Logger
}

func newFlow(address string, log *zap.Logger) *flow {
	return &flow{state: core.StateIdle, address: address, log: log}
}

func (f *flow) to(next core.AuthState) {
	f.log.Debug("auth state transition",
		zap.String("address", f.address),
		zap.String("from", string(f.state)),
		zap.String("to", string(next)))
	f.state = next
}

// Challenge issues a single-use challenge for an address, overwriting any
// prior unconsumed one. Concurrent requests for the same address are
// collapsed into one issuance.
func (s *AuthService) Challenge(ctx context.Context, address string) (*ChallengeResult, error) {
	addr, err := eth.NormalizeAddress(address)
	if err != nil {
		return nil, err
	}

	v, err, _ := s.group.Do(addr, func() (interface{}, error) {
		return s.issueChallenge(ctx, addr)
	})
	if err != nil {
		return nil, err
	}
	return v.(*ChallengeResult), nil
}

func (s *AuthService) issueChallenge(ctx context.Context, addr string) (*ChallengeResult, error) {
	f := newFlow(addr, s.log)

	nonce, err := generateNonce(32)
	if err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	now := time.Now()
	challenge := &core.Challenge{
		Address:   addr,
		Nonce:     nonce,
		Message:   challengeMessage(addr, nonce, now),
		IssuedAt:  now,
		ExpiresAt: now.Add(s.challengeTTL),
	}
	if err := s.store.Put(ctx, challenge); err != nil {
		return nil, fmt.Errorf("store challenge: %w", err)
	}
	f.to(core.StateChallengeIssued)

	// A known wallet lets the client skip optional-profile prompts. Never
	// exposed through error responses, only on successful issuance.
	existing, err := s.wallets.ExistsForAddress(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("look up wallet: %w", err)
	}

	return &ChallengeResult{Challenge: challenge, IsExistingUser: existing}, nil
}

// Authenticate consumes the live challenge for the address and verifies the
// signature. The challenge is consumed before verification, so a concurrent
// second submission always observes not-found. On verification failure a
// recovery offer is returned when the path is enabled.
func (s *AuthService) Authenticate(ctx context.Context, in AuthInput) (*core.AuthResult, *core.RecoveryOffer, error) {
	addr, err := eth.NormalizeAddress(in.Address)
	if err != nil {
		return nil, nil, err
	}
	f := newFlow(addr, s.log)
	f.to(core.StateSigned)

	challenge, err := s.store.Consume(ctx, addr)
	if err != nil {
		f.to(core.StateRejected)
		return nil, nil, err
	}

	// The signed payload must be byte-identical to the issued message; any
	// reformatting is rejected, never corrected.
	if in.Message != challenge.Message {
		f.to(core.StateRejected)
		return nil, nil, core.ErrChallengeMismatch
	}

	f.to(core.StateVerifying)
	if err := s.verify(addr, in.Message, in.Signature); err != nil {
		f.to(core.StateFailed)
		offer, offerErr := s.offerRecovery(ctx, f, addr, challenge.Message)
		if offerErr != nil {
			s.log.Warn("failed to issue recovery challenge", zap.Error(offerErr))
		}
		if offer == nil {
			f.to(core.StateRejected)
		}
		return nil, offer, err
	}

	result, err := s.finalize(ctx, f, addr, in)
	if err != nil {
		return nil, nil, err
	}
	return result, nil, nil
}

// RedeemRecovery authenticates through the recovery path: a valid signature
// is still required, but the alternate framing of the failed attempt is
// accepted as the signed payload.
func (s *AuthService) RedeemRecovery(ctx context.Context, in AuthInput) (*core.AuthResult, error) {
	if !s.allowRecovery {
		return nil, core.ErrRecoveryUnavailable
	}

	addr, err := eth.NormalizeAddress(in.Address)
	if err != nil {
		return nil, err
	}
	f := newFlow(addr, s.log)
	f.to(core.StateRecovered)

	challenge, err := s.store.ConsumeRecovery(ctx, addr)
	if err != nil {
		f.to(core.StateRejected)
		return nil, err
	}

	if in.Message != challenge.Message && in.Message != challenge.AltMessage {
		f.to(core.StateRejected)
		return nil, core.ErrChallengeMismatch
	}

	// Recovery re-enters verification; it never bypasses it.
	f.to(core.StateVerifying)
	if err := s.verify(addr, in.Message, in.Signature); err != nil {
		f.to(core.StateRejected)
		return nil, err
	}

	return s.finalize(ctx, f, addr, in)
}

func (s *AuthService) verify(addr, message, signature string) error {
	if s.bypassSignature {
		s.log.Warn("signature verification bypassed", zap.String("address", addr))
		return nil
	}

	_, method, err := eth.Verify(addr, message, signature)
	if err != nil {
		return err
	}
	if method == eth.MethodEthSign {
		// Legacy raw-hash signing is more phishable than personal_sign.
		s.log.Warn("signature accepted via legacy eth_sign",
			zap.String("address", addr))
	}
	return nil
}

func (s *AuthService) offerRecovery(ctx context.Context, f *flow, addr, failedMessage string) (*core.RecoveryOffer, error) {
	if !s.allowRecovery {
		return nil, nil
	}

	nonce, err := generateNonce(32)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	recovery := &core.Challenge{
		Address:    addr,
		Nonce:      nonce,
		Message:    recoveryMessage(addr, nonce, now),
		AltMessage: failedMessage,
		IssuedAt:   now,
		ExpiresAt:  now.Add(s.recoveryTTL),
	}
	if err := s.store.PutRecovery(ctx, recovery); err != nil {
		return nil, err
	}
	f.to(core.StateRecoveryOffered)

	return &core.RecoveryOffer{
		Address:   addr,
		Message:   recovery.Message,
		ExpiresAt: recovery.ExpiresAt,
	}, nil
}

// finalize runs the post-verification half of the flow: device resolution,
// wallet binding, user find-or-create, session creation, token issuance.
func (s *AuthService) finalize(ctx context.Context, f *flow, addr string, in AuthInput) (*core.AuthResult, error) {
	chain := eth.NormalizeChain(in.ChainID, in.ReportedNetwork)

	fingerprint := Fingerprint(in.Fingerprint, in.IP, in.UserAgent)
	device, err := s.sessions.ResolveDevice(ctx, fingerprint, in.IP, in.UserAgent)
	if err != nil {
		return nil, err
	}

	if err := s.sessions.BindWallet(ctx, device.Fingerprint, addr); err != nil {
		f.to(core.StateRejected)
		return nil, err
	}

	user, isNew, err := s.findOrCreateUser(ctx, addr, chain.ID, in.Email)
	if err != nil {
		return nil, err
	}

	if err := s.sessions.AttachUser(ctx, device.Fingerprint, user.ID); err != nil {
		return nil, err
	}

	session, err := s.sessions.CreateSession(ctx, user.ID, device.Fingerprint, in.IP, in.UserAgent)
	if err != nil {
		return nil, err
	}

	pair, err := s.tokens.Issue(ctx, user.ID, session.ID, device.Fingerprint)
	if err != nil {
		return nil, err
	}

	f.to(core.StateAuthenticated)
	s.log.Info("authentication succeeded",
		zap.String("address", addr),
		zap.String("chain", chain.Name),
		zap.String("user_id", user.ID.String()),
		zap.Bool("new_user", isNew))

	return &core.AuthResult{
		User:      user,
		Session:   session,
		Tokens:    pair,
		IsNewUser: isNew,
	}, nil
}

func (s *AuthService) findOrCreateUser(ctx context.Context, addr string, chainID uint64, email *string) (*core.User, bool, error) {
	wallet, err := s.wallets.GetByAddress(ctx, addr, chainID)
	if err != nil {
		return nil, false, fmt.Errorf("look up wallet: %w", err)
	}
	if wallet != nil {
		user, err := s.users.GetByID(ctx, wallet.UserID)
		if err != nil {
			return nil, false, fmt.Errorf("look up user: %w", err)
		}
		return user, false, nil
	}

	user := &core.User{ID: uuid.New(), Email: email}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, false, fmt.Errorf("create user: %w", err)
	}

	w := &core.Wallet{
		Address:   addr,
		ChainID:   chainID,
		UserID:    user.ID,
		IsPrimary: true,
	}
	if err := s.wallets.Create(ctx, w); err != nil {
		return nil, false, fmt.Errorf("create wallet: %w", err)
	}
	return user, true, nil
}

func challengeMessage(addr, nonce string, issuedAt time.Time) string {
	return fmt.Sprintf(
		"%s wants you to sign in with your Ethereum account:\n%s\n\nNonce: %s\nIssued At: %s",
		serviceName, addr, nonce, issuedAt.UTC().Format(time.RFC3339),
	)
}

func recoveryMessage(addr, nonce string, issuedAt time.Time) string {
	return fmt.Sprintf(
		"%s sign-in recovery for account:\n%s\n\nNonce: %s\nIssued At: %s",
		serviceName, addr, nonce, issuedAt.UTC().Format(time.RFC3339),
	)
}

func generateNonce(bytes int) (string, error) {
	b := make([]byte, bytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
