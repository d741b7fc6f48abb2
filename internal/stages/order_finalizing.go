package stages

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/bombardier/internal/awaiter"
	"github.com/vladislavdragonenkov/bombardier/internal/domain"
	"github.com/vladislavdragonenkov/bombardier/internal/stage"
)

const finalizeAwaitDeadline = 5 * time.Second

// OrderFinalizing calls finalizeOrder synchronously and awaits the order
// reaching Booked — unless the returned BookingDto reports failed items, in
// which case it awaits the order staying Collecting instead (spec.md §4.8
// step 5).
type OrderFinalizing struct {
	logger *log.Entry
}

// NewOrderFinalizing builds the stage.
func NewOrderFinalizing() *OrderFinalizing {
	return &OrderFinalizing{logger: log.WithField("stage", "OrderFinalizing")}
}

func (s *OrderFinalizing) Name() string { return "OrderFinalizing" }

func (s *OrderFinalizing) Run(ctx context.Context, tc *domain.TestContext, deps stage.Deps) stage.Continuation {
	booking, err := deps.API.FinalizeOrder(ctx, tc.OrderID)
	if err != nil {
		s.logger.WithError(err).Error("finalize order failed")
		return stage.ERROR
	}

	wantKind := domain.KindBooked
	if booking.HasFailures() {
		wantKind = domain.KindCollecting
	}

	waitErr := awaiter.AwaitAtMost(finalizeAwaitDeadline).
		Condition(func(ctx context.Context) (bool, error) {
			order, err := deps.API.GetOrder(ctx, tc.UserID, tc.OrderID)
			if err != nil {
				return false, err
			}
			deps.Cache.Put(order)
			return order.Status.Kind() == wantKind, nil
		}).
		StartWaiting(ctx)
	if waitErr != nil {
		if _, ok := waitErr.(*awaiter.ErrTimeout); ok {
			s.logger.WithError(waitErr).WithField("booking_id", booking.BookingID).Warn("order did not reach expected post-finalize status")
			if deps.Metrics != nil {
				deps.Metrics.RecordAwaiterTimeout(s.Name())
			}
			return stage.FAIL
		}
		s.logger.WithError(waitErr).WithField("booking_id", booking.BookingID).Error("get order failed while awaiting post-finalize status")
		return stage.ERROR
	}

	tc.MarkStageComplete(s.Name())
	return stage.CONTINUE
}
