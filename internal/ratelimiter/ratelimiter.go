// Package ratelimiter implements the per-flow slow-start rate limiter named
// in spec.md §4.3: a token bucket that paces TickBlocking callers at a
// target rate, ramping up from a fraction of that rate over time. Its
// background loop is grounded on
// internal/service/saga/batch_processor.go's ticker+mutex shape (a
// goroutine woken by a time.Ticker mutating state under a single mutex),
// generalized here to also serve a FIFO queue of blocked callers instead of
// batching outbound calls.
package ratelimiter

import (
	"container/list"
	"context"
	"math"
	"sync"
	"time"
)

// DefaultRampInterval is how often the ramp bumps currentRate while
// slow-start is engaged (spec.md §4.3).
const DefaultRampInterval = time.Second

// defaultRefillResolution bounds how often the background loop wakes to
// refill tokens and ramp the rate; it does not itself gate token accrual,
// which is computed from the monotonic elapsed time since the last refill
// (spec.md §9: "prefer a monotonic-clock-driven refill over wall-clock
// sleeps").
const defaultRefillResolution = 10 * time.Millisecond

// RateLimiter paces TickBlocking callers at currentRate permits/second,
// optionally ramping currentRate up to targetRate under slow start.
type RateLimiter struct {
	mu sync.Mutex

	targetRate  float64
	currentRate float64
	slowStartOn bool

	rampInterval     time.Duration
	lastRamp         time.Time
	refillResolution time.Duration

	tokens     float64
	lastRefill time.Time

	waiters *list.List // of chan struct{}, FIFO

	closeOnce sync.Once
	done      chan struct{}
}

// Option configures a RateLimiter at construction time.
type Option func(*RateLimiter)

// WithRampInterval overrides DefaultRampInterval.
func WithRampInterval(d time.Duration) Option {
	return func(rl *RateLimiter) {
		if d > 0 {
			rl.rampInterval = d
		}
	}
}

// New builds a RateLimiter targeting targetRate permits/sec. When
// slowStartOn, currentRate begins at max(1, targetRate/10) and ramps toward
// targetRate every rampInterval (spec.md §4.3); otherwise currentRate is
// targetRate from the start.
func New(targetRate float64, slowStartOn bool, opts ...Option) *RateLimiter {
	now := time.Now()
	rl := &RateLimiter{
		targetRate:       targetRate,
		slowStartOn:      slowStartOn,
		rampInterval:     DefaultRampInterval,
		refillResolution: defaultRefillResolution,
		lastRefill:       now,
		lastRamp:         now,
		waiters:          list.New(),
		done:             make(chan struct{}),
	}
	for _, opt := range opts {
		opt(rl)
	}

	if slowStartOn {
		rl.currentRate = math.Max(1, targetRate/10)
	} else {
		rl.currentRate = targetRate
	}
	rl.tokens = rl.currentRate

	go rl.loop()
	return rl
}

// CurrentRate returns the rate limiter's current permits/sec, which equals
// targetRate once slow start (if any) has completed ramping.
func (rl *RateLimiter) CurrentRate() float64 {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.currentRate
}

// Close stops the background refill/ramp goroutine so it does not leak. It
// does not release blocked waiters: a TickBlocking caller still queued
// returns only when its own ctx is done.
func (rl *RateLimiter) Close() {
	rl.closeOnce.Do(func() {
		close(rl.done)
	})
}

// TickBlocking suspends the caller until one permit is available or ctx is
// done. Concurrent callers are served FIFO via an explicit waiter queue.
func (rl *RateLimiter) TickBlocking(ctx context.Context) error {
	rl.mu.Lock()
	rl.refillLocked(time.Now())
	if rl.tokens >= 1 && rl.waiters.Len() == 0 {
		rl.tokens--
		rl.mu.Unlock()
		return nil
	}

	ch := make(chan struct{}, 1)
	elem := rl.waiters.PushBack(ch)
	rl.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		rl.mu.Lock()
		rl.waiters.Remove(elem)
		rl.mu.Unlock()
		return ctx.Err()
	}
}

func (rl *RateLimiter) loop() {
	ticker := time.NewTicker(rl.refillResolution)
	defer ticker.Stop()

	for {
		select {
		case <-rl.done:
			return
		case now := <-ticker.C:
			rl.mu.Lock()
			rl.refillLocked(now)
			rl.rampLocked(now)
			rl.dispatchLocked()
			rl.mu.Unlock()
		}
	}
}

// refillLocked adds tokens for the time elapsed since the last refill,
// capped at currentRate (the bucket's capacity equals its current rate, per
// spec.md §4.3). Must be called with rl.mu held.
func (rl *RateLimiter) refillLocked(now time.Time) {
	elapsed := now.Sub(rl.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	rl.tokens = math.Min(rl.currentRate, rl.tokens+elapsed*rl.currentRate)
	rl.lastRefill = now
}

// rampLocked advances currentRate toward targetRate once per rampInterval
// while slow start is engaged. Must be called with rl.mu held.
func (rl *RateLimiter) rampLocked(now time.Time) {
	if !rl.slowStartOn || rl.currentRate >= rl.targetRate {
		return
	}
	if now.Sub(rl.lastRamp) < rl.rampInterval {
		return
	}
	step := math.Ceil(rl.targetRate / 10)
	rl.currentRate = math.Min(rl.targetRate, rl.currentRate+step)
	rl.lastRamp = now
}

// dispatchLocked hands available tokens to queued waiters in FIFO order.
// Must be called with rl.mu held.
func (rl *RateLimiter) dispatchLocked() {
	for rl.tokens >= 1 {
		front := rl.waiters.Front()
		if front == nil {
			return
		}
		rl.waiters.Remove(front)
		rl.tokens--
		ch := front.Value.(chan struct{})
		ch <- struct{}{}
	}
}
