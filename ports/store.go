package ports

import (
	"context"

	"github.com/openclave/walletauth/core"
)

// ChallengeStore keeps single-use challenges keyed by normalized address.
type ChallengeStore interface {
	// Put stores a challenge under its address, overwriting any prior
	// unconsumed challenge. Only the most recent challenge is ever valid.
	Put(ctx context.Context, challenge *core.Challenge) error

	// Consume atomically retrieves and deletes the challenge for an
	// address. Absent or expired entries yield core.ErrChallengeNotFound.
	Consume(ctx context.Context, address string) (*core.Challenge, error)

	// PutRecovery stores a recovery challenge under its own key space with
	// a shorter TTL.
	PutRecovery(ctx context.Context, challenge *core.Challenge) error

	// ConsumeRecovery atomically retrieves and deletes the recovery
	// challenge for an address.
	ConsumeRecovery(ctx context.Context, address string) (*core.Challenge, error)
}
