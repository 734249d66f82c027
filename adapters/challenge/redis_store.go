package challenge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/openclave/walletauth/core"
	"github.com/openclave/walletauth/ports"
	"github.com/redis/go-redis/v9"
)

// RedisStore is a Redis implementation of the ChallengeStore interface.
// Entries carry a TTL so abandoned challenges expire on their own; GETDEL
// makes consumption atomic so two concurrent verification attempts can
// never both succeed off one nonce.
type RedisStore struct {
	client         *redis.Client
	prefix         string
	recoveryPrefix string
}

// NewRedisStore creates a new Redis challenge store.
func NewRedisStore(client *redis.Client) ports.ChallengeStore {
	return &RedisStore{
		client:         client,
		prefix:         "walletauth:challenge:",
		recoveryPrefix: "walletauth:recovery:",
	}
}

// Put stores a challenge with its TTL, overwriting any prior entry.
func (s *RedisStore) Put(ctx context.Context, c *core.Challenge) error {
	return s.put(ctx, s.prefix, c)
}

// Consume atomically retrieves and deletes the challenge for an address.
func (s *RedisStore) Consume(ctx context.Context, address string) (*core.Challenge, error) {
	return s.consume(ctx, s.prefix, address)
}

// PutRecovery stores a recovery challenge under its own key space.
func (s *RedisStore) PutRecovery(ctx context.Context, c *core.Challenge) error {
	return s.put(ctx, s.recoveryPrefix, c)
}

// ConsumeRecovery atomically retrieves and deletes a recovery challenge.
func (s *RedisStore) ConsumeRecovery(ctx context.Context, address string) (*core.Challenge, error) {
	return s.consume(ctx, s.recoveryPrefix, address)
}

func (s *RedisStore) put(ctx context.Context, prefix string, c *core.Challenge) error {
	ttl := time.Until(c.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("challenge already expired: %w", core.ErrChallengeNotFound)
	}

	payload, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal challenge: %w", err)
	}

	if err := s.client.Set(ctx, prefix+c.Address, payload, ttl).Err(); err != nil {
		return fmt.Errorf("store challenge: %w", err)
	}
	return nil
}

func (s *RedisStore) consume(ctx context.Context, prefix, address string) (*core.Challenge, error) {
	payload, err := s.client.GetDel(ctx, prefix+address).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, core.ErrChallengeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("consume challenge: %w", err)
	}

	var c core.Challenge
	if err := json.Unmarshal(payload, &c); err != nil {
		return nil, fmt.Errorf("unmarshal challenge: %w", err)
	}

	// Redis TTL usually handles expiry; this guards the window between
	// logical expiry and key eviction.
	if c.Expired(time.Now()) {
		return nil, core.ErrChallengeNotFound
	}
	return &c, nil
}
