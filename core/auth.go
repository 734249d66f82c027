package core

import (
	"time"

	"github.com/google/uuid"
)

// Challenge represents a single-use authentication challenge. Exactly one
// live challenge exists per normalized address; it is consumed on the first
// verification attempt regardless of outcome.
type Challenge struct {
	Address   string    // Lower-cased Ethereum address the challenge was issued for
	Nonce     string    // Random nonce embedded in the message
	Message   string    // Human-readable message the wallet must sign, byte-exact
	IssuedAt  time.Time // When the challenge was created
	ExpiresAt time.Time // When the challenge expires

	// AltMessage is set only on recovery challenges: the framing of the
	// originally failed attempt, accepted as an alternate signing payload.
	AltMessage string `json:",omitempty"`
}

// Expired reports whether the challenge TTL has elapsed.
func (c *Challenge) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// User is the stable identity behind one or more wallets. Created on the
// first successful authentication of a previously-unseen address.
type User struct {
	ID        uuid.UUID
	Email     *string
	CreatedAt time.Time
}

// Wallet links an on-chain address to its owning user.
// Unique on (address, chain); one wallet belongs to exactly one user.
type Wallet struct {
	Address   string // Lower-cased address
	ChainID   uint64 // Canonical chain ID, never the wallet-reported network name
	UserID    uuid.UUID
	IsPrimary bool
	CreatedAt time.Time
}

// Device is a client identified by its fingerprint. A device may hold at
// most one bound wallet address under the binding policy.
type Device struct {
	Fingerprint   string // Derived device fingerprint, primary key
	UserID        *uuid.UUID
	WalletAddress string // Bound wallet address, empty until first bind
	LastIP        string
	UserAgent     string
	VisitCount    int64
	LastSeenAt    time.Time
	CreatedAt     time.Time
}

// Session is an authenticated presence of a user on one device. Multiple
// sessions per user may be active concurrently, one per device. ExpiresAt
// moves forward only through explicit refresh, never through API traffic.
type Session struct {
	ID           uuid.UUID
	UserID       uuid.UUID
	DeviceID     string
	IPAddress    string
	UserAgent    string
	IssuedAt     time.Time
	LastActiveAt time.Time
	ExpiresAt    time.Time
	EndedAt      *time.Time
	IsActive     bool
}

// RefreshToken is a single-use rotation credential. Once marked used it can
// never again produce a token pair.
type RefreshToken struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	SessionID uuid.UUID
	IssuedAt  time.Time
	ExpiresAt time.Time
	Used      bool
}

// TokenPair is the credential pair handed to an authenticated client.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// AuthState is a step of the authentication flow.
type AuthState string

const (
	StateIdle            AuthState = "IDLE"
	StateChallengeIssued AuthState = "CHALLENGE_ISSUED"
	StateSigned          AuthState = "SIGNED"
	StateVerifying       AuthState = "VERIFYING"
	StateAuthenticated   AuthState = "AUTHENTICATED"
	StateFailed          AuthState = "FAILED"
	StateRecoveryOffered AuthState = "RECOVERY_OFFERED"
	StateRecovered       AuthState = "RECOVERED"
	StateRejected        AuthState = "REJECTED"
)

// AuthResult is the outcome of a successful authentication.
type AuthResult struct {
	User      *User
	Session   *Session
	Tokens    TokenPair
	IsNewUser bool
}

// RecoveryOffer invites a client whose signature failed every convention to
// retry once through the recovery path.
type RecoveryOffer struct {
	Address   string
	Message   string
	ExpiresAt time.Time
}
