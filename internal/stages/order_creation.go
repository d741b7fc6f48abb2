package stages

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/bombardier/internal/domain"
	"github.com/vladislavdragonenkov/bombardier/internal/stage"
)

// OrderCreation calls createOrder(userId) and asserts the returned order
// starts life as Collecting (spec.md §4.8 step 2).
type OrderCreation struct {
	logger *log.Entry
}

// NewOrderCreation builds the stage.
func NewOrderCreation() *OrderCreation {
	return &OrderCreation{logger: log.WithField("stage", "OrderCreation")}
}

func (s *OrderCreation) Name() string { return "OrderCreation" }

func (s *OrderCreation) Run(ctx context.Context, tc *domain.TestContext, deps stage.Deps) stage.Continuation {
	order, err := deps.API.CreateOrder(ctx, tc.UserID)
	if err != nil {
		s.logger.WithError(err).WithField("user_id", tc.UserID).Error("create order failed")
		return stage.ERROR
	}

	if order.Status.Kind() != domain.KindCollecting {
		s.logger.WithFields(log.Fields{
			"user_id": tc.UserID,
			"status":  order.Status,
		}).Warn("new order did not start in Collecting")
		return stage.FAIL
	}

	if err := tc.SetOrder(order.ID); err != nil {
		s.logger.WithError(err).WithField("user_id", tc.UserID).Warn("target returned an unusable order id")
		return stage.FAIL
	}
	deps.Cache.Put(order)
	return stage.CONTINUE
}
