package stages

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/bombardier/internal/domain"
	"github.com/vladislavdragonenkov/bombardier/internal/stage"
)

// OrderPayment calls payOrder(userId, orderId): SUCCESS continues,
// FAILED_NOT_ENOUGH_MONEY is a business failure, and a generic FAILED
// requests a retry (spec.md §4.8 step 8). On success, a payment larger than
// the user's local balance is a business failure (over-withdrawal);
// otherwise the spend is mirrored into the local user-pool ledger.
type OrderPayment struct {
	logger *log.Entry
}

// NewOrderPayment builds the stage.
func NewOrderPayment() *OrderPayment {
	return &OrderPayment{logger: log.WithField("stage", "OrderPayment")}
}

func (s *OrderPayment) Name() string { return "OrderPayment" }

func (s *OrderPayment) Run(ctx context.Context, tc *domain.TestContext, deps stage.Deps) stage.Continuation {
	order, err := deps.API.PayOrder(ctx, tc.UserID, tc.OrderID)
	if err != nil {
		s.logger.WithError(err).Error("pay order failed")
		return stage.ERROR
	}

	last, ok := domain.LastPayment(order.PaymentHistory)
	if !ok {
		s.logger.Warn("pay order returned no payment history")
		return stage.ERROR
	}

	switch last.Status {
	case domain.PaymentSuccess:
		amount := order.TotalMinor()
		if amount < 0 {
			s.logger.WithField("amount_minor", amount).Error(domain.ErrAmountNegative.Error())
			return stage.ERROR
		}
		deps.Cache.Put(order)
		if balance, err := deps.Pool.Balance(tc.UserID); err == nil && amount > balance {
			s.logger.WithFields(log.Fields{
				"amount_minor": amount,
				"balance":      balance,
			}).Warn("target accepted a payment exceeding the local balance")
			return stage.FAIL
		}
		if err := deps.Pool.Spend(tc.UserID, amount); err != nil {
			s.logger.WithError(err).Warn("failed to mirror spend into local ledger")
		}
		return stage.CONTINUE
	case domain.PaymentFailedNotEnoughMoney:
		s.logger.WithField("user_id", tc.UserID).Warn("payment failed: not enough money")
		return stage.FAIL
	default:
		s.logger.WithField("status", last.Status).Warn("payment failed, requesting retry")
		return stage.RETRY
	}
}
