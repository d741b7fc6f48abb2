package stages

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/bombardier/internal/awaiter"
	"github.com/vladislavdragonenkov/bombardier/internal/domain"
	"github.com/vladislavdragonenkov/bombardier/internal/externalapi"
	"github.com/vladislavdragonenkov/bombardier/internal/stage"
	"github.com/vladislavdragonenkov/bombardier/internal/statemachine"
)

const deliveryAwaitSlack = 5 * time.Second

// OrderDelivery asserts the order is Payed with a committed delivery
// duration, triggers simulateDelivery, and awaits the terminal Delivered or
// Refund status — checking invariant I3 (delivery finishes on time) on the
// former and invariant I2 (withdraw == refund) on the latter. Any other
// terminal status is an illegal transition (spec.md §4.8 step 9).
type OrderDelivery struct {
	logger  *log.Entry
	machine *statemachine.StateMachine
}

// NewOrderDelivery builds the stage.
func NewOrderDelivery() *OrderDelivery {
	return &OrderDelivery{
		logger:  log.WithField("stage", "OrderDelivery"),
		machine: statemachine.New(),
	}
}

func (s *OrderDelivery) Name() string { return "OrderDelivery" }

func (s *OrderDelivery) Run(ctx context.Context, tc *domain.TestContext, deps stage.Deps) stage.Continuation {
	pre, err := deps.API.GetOrder(ctx, tc.UserID, tc.OrderID)
	if err != nil {
		s.logger.WithError(err).Error("get order failed")
		return stage.ERROR
	}
	if pre.Status.Kind() != domain.KindPayed || pre.DeliveryDurationSeconds == nil {
		s.logger.WithField("status", pre.Status).Warn("order not ready for delivery")
		return stage.FAIL
	}

	if err := deps.API.SimulateDelivery(ctx, tc.OrderID); err != nil {
		s.logger.WithError(err).Error("simulate delivery failed")
		return stage.ERROR
	}

	deadline := time.Duration(*pre.DeliveryDurationSeconds)*time.Second + deliveryAwaitSlack
	var final domain.Order
	waitErr := awaiter.AwaitAtMost(deadline).
		Condition(func(ctx context.Context) (bool, error) {
			order, err := deps.API.GetOrder(ctx, tc.UserID, tc.OrderID)
			if err != nil {
				return false, err
			}
			final = order
			deps.Cache.Put(order)
			kind := order.Status.Kind()
			return kind == domain.KindDelivered || kind == domain.KindRefund, nil
		}).
		StartWaiting(ctx)
	if waitErr != nil {
		if _, ok := waitErr.(*awaiter.ErrTimeout); ok {
			s.logger.WithError(waitErr).Warn("delivery did not reach a terminal status in time")
			if deps.Metrics != nil {
				deps.Metrics.RecordAwaiterTimeout(s.Name())
			}
			return stage.FAIL
		}
		s.logger.WithError(waitErr).Error("get order failed while awaiting delivery terminal status")
		return stage.ERROR
	}

	switch delivered := final.Status.(type) {
	case domain.Delivered:
		return s.checkDelivered(ctx, tc, deps, final, delivered)
	case domain.Refund:
		return s.checkRefund(ctx, tc, deps)
	default:
		if err := s.machine.CheckTransition(pre.Status, final.Status); err != nil {
			s.logger.WithError(err).Error("order reached an unexpected terminal status")
		}
		return stage.FAIL
	}
}

func (s *OrderDelivery) checkDelivered(ctx context.Context, tc *domain.TestContext, deps stage.Deps, order domain.Order, status domain.Delivered) stage.Continuation {
	logEntry, err := deps.API.DeliveryLog(ctx, tc.OrderID)
	if err != nil {
		s.logger.WithError(err).Error("delivery log lookup failed")
		return stage.ERROR
	}
	if logEntry.Outcome != externalapi.DeliverySuccess {
		s.logger.WithField("outcome", logEntry.Outcome).Warn("delivery log reports failure for a Delivered order")
		return stage.FAIL
	}

	lastPayment, ok := domain.LastPayment(order.PaymentHistory)
	if !ok {
		s.logger.Warn("delivered order has no payment history")
		return stage.FAIL
	}
	deadline := lastPayment.Timestamp.Add(time.Duration(*order.DeliveryDurationSeconds) * time.Second)
	if status.DeliveryFinishTime.After(deadline) {
		s.logger.WithFields(log.Fields{
			"finish_time": status.DeliveryFinishTime,
			"deadline":    deadline,
		}).Warn("delivery finished after its committed deadline (I3 violated)")
		return stage.FAIL
	}

	return stage.CONTINUE
}

func (s *OrderDelivery) checkRefund(ctx context.Context, tc *domain.TestContext, deps stage.Deps) stage.Continuation {
	history, err := deps.API.GetFinancialHistory(ctx, tc.UserID, tc.OrderID)
	if err != nil {
		s.logger.WithError(err).Error("get financial history failed")
		return stage.ERROR
	}

	withdrawn := domain.SumFinancial(history, domain.FinancialWithdraw)
	refunded := domain.SumFinancial(history, domain.FinancialRefund)
	if withdrawn != refunded {
		s.logger.WithFields(log.Fields{
			"withdrawn": withdrawn,
			"refunded":  refunded,
		}).Warn("withdraw/refund mismatch on a refunded order (I2 violated)")
		return stage.FAIL
	}

	return stage.CONTINUE
}
