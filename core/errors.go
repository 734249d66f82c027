package core

import "errors"

var (
	// ErrChallengeNotFound is returned when no live challenge exists for an
	// address. Expired, consumed and never-issued are deliberately not
	// distinguished to callers.
	ErrChallengeNotFound = errors.New("challenge not found")

	// ErrChallengeMismatch is returned when the signed payload differs from
	// the issued challenge message.
	ErrChallengeMismatch = errors.New("signed message does not match issued challenge")

	// ErrSignatureVerificationFailed is returned when every signing
	// convention has been exhausted without recovering the claimed address.
	ErrSignatureVerificationFailed = errors.New("signature verification failed")

	// ErrDeviceWalletConflict is returned when a device attempts to bind a
	// second, different wallet address.
	ErrDeviceWalletConflict = errors.New("wallet is already associated with a different device")

	// ErrReplaySuspected is returned when an already-used refresh token is
	// presented again.
	ErrReplaySuspected = errors.New("refresh token reuse detected")

	// ErrTokenExpired is returned when a token has expired.
	ErrTokenExpired = errors.New("token has expired")

	// ErrInvalidToken is returned when a token cannot be parsed or fails
	// claim validation.
	ErrInvalidToken = errors.New("invalid token")

	// ErrInvalidAddress is returned when the address is not a valid
	// Ethereum address.
	ErrInvalidAddress = errors.New("invalid ethereum address")

	// ErrSessionInvalid is returned when a session is missing or inactive.
	ErrSessionInvalid = errors.New("session is invalid")

	// ErrRecoveryUnavailable is returned when the recovery path is disabled
	// or no recovery challenge exists.
	ErrRecoveryUnavailable = errors.New("recovery is not available")
)
