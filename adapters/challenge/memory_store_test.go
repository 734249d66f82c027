package challenge

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/openclave/walletauth/core"
	"github.com/stretchr/testify/require"
)

func newChallenge(address string, ttl time.Duration) *core.Challenge {
	now := time.Now()
	return &core.Challenge{
		Address:   address,
		Nonce:     "nonce",
		Message:   "sign me",
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
	}
}

func TestConsumeDeletesEntry(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.Put(ctx, newChallenge("0xabc", time.Minute)))

	got, err := store.Consume(ctx, "0xabc")
	require.NoError(t, err)
	require.Equal(t, "sign me", got.Message)

	_, err = store.Consume(ctx, "0xabc")
	require.ErrorIs(t, err, core.ErrChallengeNotFound)
}

func TestConsumeRace(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Put(ctx, newChallenge("0xabc", time.Minute)))

	const attempts = 16
	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Consume(ctx, "0xabc")
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var successes int
	for err := range results {
		if err == nil {
			successes++
		} else {
			require.ErrorIs(t, err, core.ErrChallengeNotFound)
		}
	}
	require.Equal(t, 1, successes)
}

func TestExpiredTreatedAsNotFound(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Put(ctx, newChallenge("0xabc", -time.Second)))

	_, err := store.Consume(ctx, "0xabc")
	require.ErrorIs(t, err, core.ErrChallengeNotFound)
}

func TestPutOverwritesPriorChallenge(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	first := newChallenge("0xabc", time.Minute)
	first.Message = "first"
	require.NoError(t, store.Put(ctx, first))

	second := newChallenge("0xabc", time.Minute)
	second.Message = "second"
	require.NoError(t, store.Put(ctx, second))

	got, err := store.Consume(ctx, "0xabc")
	require.NoError(t, err)
	require.Equal(t, "second", got.Message)
}

func TestRecoveryKeySpaceIsSeparate(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.Put(ctx, newChallenge("0xabc", time.Minute)))
	require.NoError(t, store.PutRecovery(ctx, newChallenge("0xabc", time.Minute)))

	_, err := store.ConsumeRecovery(ctx, "0xabc")
	require.NoError(t, err)

	// The ordinary challenge is untouched.
	_, err = store.Consume(ctx, "0xabc")
	require.NoError(t, err)
}
