package resilience

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGate_BoundsConcurrency(t *testing.T) {
	g := NewGate(GateConfig{Concurrency: 2})

	var current, peak atomic.Int64
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := g.Do(context.Background(), func(context.Context) error {
				n := current.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(10 * time.Millisecond)
				current.Add(-1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, peak.Load(), int64(2))
	assert.Equal(t, 8, g.Admitted())
	assert.Equal(t, 0, g.InFlight())
}

func TestGate_DelaysEachOperation(t *testing.T) {
	g := NewGate(GateConfig{Concurrency: 1, Delay: 20 * time.Millisecond})

	start := time.Now()
	for range 3 {
		require.NoError(t, g.Do(context.Background(), func(context.Context) error { return nil }))
	}
	assert.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)
}

func TestGate_RateLimitTriggersCooldown(t *testing.T) {
	g := NewGate(GateConfig{Concurrency: 1, Cooldown: 80 * time.Millisecond})

	err := g.Do(context.Background(), func(context.Context) error {
		return &RateLimitError{Service: "search"}
	})
	require.Error(t, err)
	assert.True(t, IsRateLimited(err))
	assert.Equal(t, 1, g.Cooldowns())
	assert.False(t, g.PausedUntil().IsZero())

	start := time.Now()
	require.NoError(t, g.Do(context.Background(), func(context.Context) error { return nil }))
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestGate_CooldownOpenedDuringDelayHoldsOperation(t *testing.T) {
	g := NewGate(GateConfig{Concurrency: 2, Delay: 50 * time.Millisecond})

	start := time.Now()
	ran := make(chan time.Duration, 1)
	go func() {
		_ = g.Do(context.Background(), func(context.Context) error {
			ran <- time.Since(start)
			return nil
		})
	}()

	time.Sleep(10 * time.Millisecond)
	g.Cooldown(150 * time.Millisecond)

	select {
	case elapsed := <-ran:
		assert.GreaterOrEqual(t, elapsed, 150*time.Millisecond)
	case <-time.After(2 * time.Second):
		t.Fatal("operation never ran")
	}
}

func TestGate_RetryAfterOverridesDefault(t *testing.T) {
	g := NewGate(GateConfig{Cooldown: time.Hour})

	_ = g.Do(context.Background(), func(context.Context) error {
		return &RateLimitError{Service: "search", RetryAfter: 30 * time.Millisecond}
	})
	assert.WithinDuration(t, time.Now().Add(30*time.Millisecond), g.PausedUntil(), 25*time.Millisecond)
}

func TestGate_CooldownNeverShortens(t *testing.T) {
	g := NewGate(GateConfig{})

	g.Cooldown(time.Hour)
	long := g.PausedUntil()
	g.Cooldown(time.Millisecond)

	assert.Equal(t, long, g.PausedUntil())
	assert.Equal(t, 1, g.Cooldowns())
}

func TestGate_CooldownWithoutDurationIsNoop(t *testing.T) {
	g := NewGate(GateConfig{})
	g.Cooldown(0)
	assert.True(t, g.PausedUntil().IsZero())
	assert.Equal(t, 0, g.Cooldowns())
}

func TestGate_ContextCancelledDuringCooldown(t *testing.T) {
	g := NewGate(GateConfig{})
	g.Cooldown(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	called := false
	err := g.Do(ctx, func(context.Context) error {
		called = true
		return nil
	})
	require.Error(t, err)
	assert.False(t, called)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestRun_ReturnsValue(t *testing.T) {
	g := NewGate(GateConfig{Concurrency: 3})

	got, err := Run(context.Background(), g, func(context.Context) (int, error) { return 42, nil })
	require.NoError(t, err)
	assert.Equal(t, 42, got)

	_, err = Run(context.Background(), g, func(context.Context) (int, error) { return 0, errors.New("boom") })
	assert.EqualError(t, err, "boom")
}
