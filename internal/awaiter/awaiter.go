// Package awaiter implements the condition-awaiting primitive that
// synchronizes the harness with the external service under test (spec.md
// §4.2): poll a predicate on a fixed interval until it is true or a
// deadline expires, invoking an on-failure handler exactly once on
// expiry. Its poll loop is grounded on
// internal/service/idempotency/cleanup_worker.go's
// `select { <-ctx.Done(); <-ticker.C }` shape and functional-options
// constructor.
package awaiter

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
)

// DefaultPollInterval is the default polling cadence (spec.md §4.2).
const DefaultPollInterval = 100 * time.Millisecond

// Predicate is re-evaluated on every poll tick. It must be safe to
// re-evaluate (it may suspend — it typically calls into the external
// service API) and must not mutate shared state in a way that would make a
// second call observe something different than a first, identical, call.
type Predicate func(ctx context.Context) (bool, error)

// OnFailure is invoked exactly once, synchronously, when the deadline
// expires before Predicate ever returns true. It is never invoked on
// cancellation.
type OnFailure func()

// Awaiter polls Predicate until it returns true, the deadline elapses, or
// ctx is cancelled.
type Awaiter struct {
	deadline     time.Duration
	pollInterval time.Duration
	predicate    Predicate
	onFailure    OnFailure
	logger       *log.Entry
}

// Option configures an Awaiter, matching the cleanup worker's
// WithLogger/WithInterval functional-option idiom.
type Option func(*Awaiter)

// WithPollInterval overrides DefaultPollInterval.
func WithPollInterval(d time.Duration) Option {
	return func(a *Awaiter) {
		if d > 0 {
			a.pollInterval = d
		}
	}
}

// WithLogger overrides the awaiter's logger.
func WithLogger(logger *log.Entry) Option {
	return func(a *Awaiter) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// AwaitAtMost builds an Awaiter bounded by deadline. Chain .Condition and
// .OnFailure before calling StartWaiting, mirroring
// the fluent contract named in spec.md §4.2
// (`awaitAtMost(duration).condition(pred).onFailure(handler).startWaiting()`).
func AwaitAtMost(deadline time.Duration, opts ...Option) *Awaiter {
	a := &Awaiter{
		deadline:     deadline,
		pollInterval: DefaultPollInterval,
		logger:       log.WithField("component", "awaiter"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Condition sets the predicate to poll and returns the Awaiter for chaining.
func (a *Awaiter) Condition(pred Predicate) *Awaiter {
	a.predicate = pred
	return a
}

// OnFailure sets the deadline-expiry handler and returns the Awaiter for
// chaining.
func (a *Awaiter) OnFailure(handler OnFailure) *Awaiter {
	a.onFailure = handler
	return a
}

// ErrTimeout is returned by StartWaiting when the deadline elapses before
// the predicate ever returns true.
type ErrTimeout struct {
	Deadline time.Duration
}

func (e *ErrTimeout) Error() string {
	return "awaiter: condition not met within " + e.Deadline.String()
}

// StartWaiting polls Condition on PollInterval until it returns true, the
// deadline elapses, or ctx is cancelled.
//
//   - Predicate true  → returns nil immediately.
//   - Deadline elapses → invokes OnFailure exactly once, then returns
//     *ErrTimeout.
//   - ctx cancelled → returns ctx.Err() immediately, without ever invoking
//     OnFailure (spec.md §4.2/§5: cancellation must not run the failure
//     handler).
//   - Predicate itself errors → returned immediately, OnFailure is not
//     invoked (a transport error is not a timeout).
func (a *Awaiter) StartWaiting(ctx context.Context) error {
	deadlineCtx, cancel := context.WithTimeout(ctx, a.deadline)
	defer cancel()

	ticker := time.NewTicker(a.pollInterval)
	defer ticker.Stop()

	ok, err := a.predicate(ctx)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadlineCtx.Done():
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if a.onFailure != nil {
				a.onFailure()
			}
			return &ErrTimeout{Deadline: a.deadline}
		case <-ticker.C:
			ok, err := a.predicate(ctx)
			if err != nil {
				return err
			}
			if ok {
				return nil
			}
		}
	}
}
