package lease_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"partsmarket/internal/lease"
)

func TestMemoryAcquireRelease(t *testing.T) {
	l := lease.NewMemory()
	ctx := context.Background()

	release, err := l.Acquire(ctx, "order:1", time.Minute)
	require.NoError(t, err)

	_, err = l.Acquire(ctx, "order:1", time.Minute)
	require.ErrorIs(t, err, lease.ErrHeld)

	// другие сущности не блокируются
	other, err := l.Acquire(ctx, "order:2", time.Minute)
	require.NoError(t, err)
	other()

	release()
	release()

	again, err := l.Acquire(ctx, "order:1", time.Minute)
	require.NoError(t, err)
	again()
}

func TestMemoryExpiry(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l := lease.NewMemory().WithClock(func() time.Time { return now })
	ctx := context.Background()

	stale, err := l.Acquire(ctx, "order:1", 5*time.Second)
	require.NoError(t, err)

	now = now.Add(6 * time.Second)
	fresh, err := l.Acquire(ctx, "order:1", 5*time.Second)
	require.NoError(t, err)

	// просроченный владелец не снимает новую аренду
	stale()
	_, err = l.Acquire(ctx, "order:1", 5*time.Second)
	require.ErrorIs(t, err, lease.ErrHeld)

	fresh()
	_, err = l.Acquire(ctx, "order:1", 5*time.Second)
	require.NoError(t, err)
}

func TestMemoryConcurrent(t *testing.T) {
	l := lease.NewMemory()
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		granted int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.Acquire(context.Background(), "order:7", time.Minute); err == nil {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 1, granted)
}

func TestNewFallsBackToMemory(t *testing.T) {
	_, ok := lease.New(nil).(*lease.Memory)
	require.True(t, ok)
}
