package ratelimiter_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/bombardier/internal/ratelimiter"
)

func TestNew_NoSlowStart_StartsAtTargetRate(t *testing.T) {
	rl := ratelimiter.New(50, false)
	defer rl.Close()

	require.Equal(t, float64(50), rl.CurrentRate())
}

func TestNew_SlowStart_StartsAtTenthOfTarget(t *testing.T) {
	rl := ratelimiter.New(100, true)
	defer rl.Close()

	require.Equal(t, float64(10), rl.CurrentRate())
}

func TestNew_SlowStart_FloorsAtOne(t *testing.T) {
	rl := ratelimiter.New(5, true)
	defer rl.Close()

	require.Equal(t, float64(1), rl.CurrentRate())
}

func TestRampsTowardTargetAndHalts(t *testing.T) {
	rl := ratelimiter.New(100, true, ratelimiter.WithRampInterval(20*time.Millisecond))
	defer rl.Close()

	require.Eventually(t, func() bool {
		return rl.CurrentRate() == 100
	}, time.Second, 5*time.Millisecond)

	rate := rl.CurrentRate()
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, rate, rl.CurrentRate())
}

func TestTickBlocking_ServesImmediatelyWhileTokensAvailable(t *testing.T) {
	rl := ratelimiter.New(1000, false)
	defer rl.Close()

	ctx := context.Background()
	start := time.Now()
	for i := 0; i < 10; i++ {
		require.NoError(t, rl.TickBlocking(ctx))
	}
	require.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestTickBlocking_BlocksUntilRefill(t *testing.T) {
	rl := ratelimiter.New(5, false)
	defer rl.Close()

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, rl.TickBlocking(ctx))
	}

	start := time.Now()
	require.NoError(t, rl.TickBlocking(ctx))
	require.Greater(t, time.Since(start), 50*time.Millisecond)
}

func TestTickBlocking_CancellationReturnsPromptly(t *testing.T) {
	rl := ratelimiter.New(1, false)
	defer rl.Close()

	for i := 0; i < 1; i++ {
		require.NoError(t, rl.TickBlocking(context.Background()))
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- rl.TickBlocking(ctx)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(500 * time.Millisecond):
		t.Fatal("TickBlocking did not return promptly after cancellation")
	}
}

func TestTickBlocking_ConcurrentCallersAllEventuallyServed(t *testing.T) {
	rl := ratelimiter.New(200, false)
	defer rl.Close()

	const n = 50
	var wg sync.WaitGroup
	wg.Add(n)
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			errs <- rl.TickBlocking(context.Background())
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
}
