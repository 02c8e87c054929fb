package resilience

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// GateConfig sizes an admission gate.
type GateConfig struct {
	// Name labels log lines.
	Name string
	// Concurrency is the number of operations admitted at once. Default 1.
	Concurrency int
	// Delay is slept by every admitted operation before it runs.
	Delay time.Duration
	// Cooldown is the pause applied after a rate-limit signal without a
	// RetryAfter hint.
	Cooldown time.Duration
}

// Gate admits at most Concurrency operations at a time, in FIFO order, and
// paces each one by Delay. After a rate-limit signal every later admission
// waits until the cooldown window has passed. A Gate is shared by all call
// sites that talk to the same service.
type Gate struct {
	cfg GateConfig
	sem *semaphore.Weighted

	mu          sync.Mutex
	pausedUntil time.Time

	inFlight  atomic.Int64
	admitted  atomic.Int64
	cooldowns atomic.Int64
}

// NewGate builds a Gate.
func NewGate(cfg GateConfig) *Gate {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.Name == "" {
		cfg.Name = "gate"
	}
	return &Gate{
		cfg: cfg,
		sem: semaphore.NewWeighted(int64(cfg.Concurrency)),
	}
}

// Do waits for admission, then runs fn. When fn returns a RateLimitError the
// gate enters cooldown before the error is handed back.
func (g *Gate) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return eris.Wrapf(err, "%s: acquire slot", g.cfg.Name)
	}
	defer g.sem.Release(1)

	if err := g.waitCooldown(ctx); err != nil {
		return err
	}
	if !sleep(ctx, g.cfg.Delay) {
		return eris.Wrapf(ctx.Err(), "%s: delay", g.cfg.Name)
	}
	// A cooldown may have opened while this operation slept.
	if err := g.waitCooldown(ctx); err != nil {
		return err
	}

	g.inFlight.Add(1)
	g.admitted.Add(1)
	defer g.inFlight.Add(-1)

	err := fn(ctx)
	var rl *RateLimitError
	if errors.As(err, &rl) {
		g.Cooldown(rl.RetryAfter)
	}
	return err
}

// Run is Do for operations that produce a value.
func Run[T any](ctx context.Context, g *Gate, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := g.Do(ctx, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

// Cooldown pauses future admissions for d, or for the configured cooldown when
// d is not positive. An active pause is extended, never shortened.
func (g *Gate) Cooldown(d time.Duration) {
	if d <= 0 {
		d = g.cfg.Cooldown
	}
	if d <= 0 {
		return
	}
	until := time.Now().Add(d)

	g.mu.Lock()
	extended := until.After(g.pausedUntil)
	if extended {
		g.pausedUntil = until
	}
	g.mu.Unlock()

	if extended {
		g.cooldowns.Add(1)
		zap.L().Warn("rate limited, pausing admissions",
			zap.String("gate", g.cfg.Name),
			zap.Duration("cooldown", d),
		)
	}
}

// PausedUntil returns the end of the current cooldown window, or the zero time.
func (g *Gate) PausedUntil() time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()
	if time.Now().After(g.pausedUntil) {
		return time.Time{}
	}
	return g.pausedUntil
}

// InFlight is the number of operations currently running.
func (g *Gate) InFlight() int { return int(g.inFlight.Load()) }

// Admitted is the number of operations admitted so far.
func (g *Gate) Admitted() int { return int(g.admitted.Load()) }

// Cooldowns is the number of times a cooldown window was opened or extended.
func (g *Gate) Cooldowns() int { return int(g.cooldowns.Load()) }

// waitCooldown blocks until no cooldown is active. The window can grow while
// waiting, so it is re-read after every sleep.
func (g *Gate) waitCooldown(ctx context.Context) error {
	for {
		until := g.PausedUntil()
		if until.IsZero() {
			return nil
		}
		if !sleep(ctx, time.Until(until)) {
			return eris.Wrapf(ctx.Err(), "%s: cooldown", g.cfg.Name)
		}
	}
}
