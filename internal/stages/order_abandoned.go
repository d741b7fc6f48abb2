package stages

import (
	"context"
	"math/rand"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/bombardier/internal/awaiter"
	"github.com/vladislavdragonenkov/bombardier/internal/domain"
	"github.com/vladislavdragonenkov/bombardier/internal/stage"
)

const (
	abandonedProbability   = 0.5
	defaultAbandonedSleep  = 120 * time.Second
	abandonedNewRecordWait = 30 * time.Second
	abandonedDiscardWait   = 15 * time.Second
)

// OrderAbandoned probabilistically exercises the abandoned-cart path
// (spec.md §4.8 step 4): it records the newest bucket-log entry, waits long
// enough for the target's own abandoned-cart nudge to fire, then checks
// that the order either stayed Collecting (the customer "interacted") or
// transitioned to Discarded.
type OrderAbandoned struct {
	logger        *log.Entry
	sleepDuration time.Duration
}

// NewOrderAbandoned builds the stage with the spec's default 120s wait.
func NewOrderAbandoned() *OrderAbandoned {
	return &OrderAbandoned{
		logger:        log.WithField("stage", "OrderAbandoned"),
		sleepDuration: defaultAbandonedSleep,
	}
}

// WithSleepDuration overrides the wait before checking for a newer
// bucket-log record — exposed for tests, which cannot afford the spec's
// real 120s wait.
func (s *OrderAbandoned) WithSleepDuration(d time.Duration) *OrderAbandoned {
	s.sleepDuration = d
	return s
}

func (s *OrderAbandoned) Name() string { return "OrderAbandoned" }

func (s *OrderAbandoned) Run(ctx context.Context, tc *domain.TestContext, deps stage.Deps) stage.Continuation {
	if rand.Float64() >= abandonedProbability {
		return stage.CONTINUE
	}

	before, err := deps.API.AbandonedCardHistory(ctx, tc.OrderID)
	if err != nil {
		s.logger.WithError(err).Error("abandoned card history failed")
		return stage.ERROR
	}
	lastSeen, hadAny := domain.NewestBucketRecord(before)

	select {
	case <-time.After(s.sleepDuration):
	case <-ctx.Done():
		return stage.STOP
	}

	var newest domain.BucketLogRecord
	waitErr := awaiter.AwaitAtMost(abandonedNewRecordWait).
		Condition(func(ctx context.Context) (bool, error) {
			records, err := deps.API.AbandonedCardHistory(ctx, tc.OrderID)
			if err != nil {
				return false, err
			}
			candidate, ok := domain.NewestBucketRecord(records)
			if !ok {
				return false, nil
			}
			if hadAny && !candidate.Timestamp.After(lastSeen.Timestamp) {
				return false, nil
			}
			newest = candidate
			return true, nil
		}).
		StartWaiting(ctx)
	if waitErr != nil {
		s.logger.WithError(waitErr).Warn("no new bucket-log record observed")
		return stage.FAIL
	}

	if newest.UserInteracted {
		order, err := deps.API.GetOrder(ctx, tc.UserID, tc.OrderID)
		if err != nil {
			s.logger.WithError(err).Error("get order failed")
			return stage.ERROR
		}
		deps.Cache.Put(order)
		if order.Status.Kind() != domain.KindCollecting {
			s.logger.WithField("status", order.Status).Warn("order left Collecting despite user interaction")
			return stage.FAIL
		}
		return stage.CONTINUE
	}

	discardErr := awaiter.AwaitAtMost(abandonedDiscardWait).
		Condition(func(ctx context.Context) (bool, error) {
			order, err := deps.API.GetOrder(ctx, tc.UserID, tc.OrderID)
			if err != nil {
				return false, err
			}
			deps.Cache.Put(order)
			return order.Status.Kind() == domain.KindDiscarded, nil
		}).
		StartWaiting(ctx)
	if discardErr != nil {
		s.logger.WithError(discardErr).Warn("order was not discarded after abandonment")
		return stage.FAIL
	}

	return stage.CONTINUE
}
