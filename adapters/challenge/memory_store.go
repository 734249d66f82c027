package challenge

import (
	"context"
	"sync"
	"time"

	"github.com/openclave/walletauth/core"
	"github.com/openclave/walletauth/ports"
)

// MemoryStore is an in-memory implementation of the ChallengeStore
// interface. Used in tests and single-instance deployments.
type MemoryStore struct {
	mu         sync.Mutex
	challenges map[string]*core.Challenge
	recovery   map[string]*core.Challenge
}

// NewMemoryStore creates a new in-memory challenge store.
func NewMemoryStore() ports.ChallengeStore {
	return &MemoryStore{
		challenges: make(map[string]*core.Challenge),
		recovery:   make(map[string]*core.Challenge),
	}
}

// Put stores a challenge, overwriting any prior entry for the address.
func (s *MemoryStore) Put(ctx context.Context, c *core.Challenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.challenges[c.Address] = c
	return nil
}

// Consume atomically retrieves and deletes the challenge for an address.
// Expired-but-present entries are treated as not found.
func (s *MemoryStore) Consume(ctx context.Context, address string) (*core.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return consume(s.challenges, address)
}

// PutRecovery stores a recovery challenge.
func (s *MemoryStore) PutRecovery(ctx context.Context, c *core.Challenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recovery[c.Address] = c
	return nil
}

// ConsumeRecovery atomically retrieves and deletes the recovery challenge
// for an address.
func (s *MemoryStore) ConsumeRecovery(ctx context.Context, address string) (*core.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return consume(s.recovery, address)
}

func consume(m map[string]*core.Challenge, address string) (*core.Challenge, error) {
	c, ok := m[address]
	if !ok {
		return nil, core.ErrChallengeNotFound
	}
	delete(m, address)
	if c.Expired(time.Now()) {
		return nil, core.ErrChallengeNotFound
	}
	return c, nil
}
