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
	changeItemsProbability   = 0.3
	changeItemsAwaitDeadline = 3 * time.Second
)

// OrderChangeItemsAfterFinalization probabilistically reopens a just-booked
// order by adding one more item, reverting it to Collecting. When it does,
// it marks the context so the pipeline re-runs OrderFinalizing and
// OrderSettingDeliverySlots (spec.md §4.8 step 7, §9 design note).
type OrderChangeItemsAfterFinalization struct {
	logger *log.Entry
}

// NewOrderChangeItemsAfterFinalization builds the stage.
func NewOrderChangeItemsAfterFinalization() *OrderChangeItemsAfterFinalization {
	return &OrderChangeItemsAfterFinalization{logger: log.WithField("stage", "OrderChangeItemsAfterFinalization")}
}

func (s *OrderChangeItemsAfterFinalization) Name() string {
	return "OrderChangeItemsAfterFinalization"
}

func (s *OrderChangeItemsAfterFinalization) Run(ctx context.Context, tc *domain.TestContext, deps stage.Deps) stage.Continuation {
	if rand.Float64() >= changeItemsProbability {
		return stage.CONTINUE
	}

	items, err := deps.API.GetAvailableItems(ctx, tc.UserID)
	if err != nil {
		s.logger.WithError(err).Error("get available items failed")
		return stage.ERROR
	}
	if len(items) == 0 {
		return stage.CONTINUE
	}
	item := items[rand.Intn(len(items))]
	qty := int32(1 + rand.Intn(maxQtyPerItem))

	accepted, err := deps.API.PutItemToOrder(ctx, tc.UserID, tc.OrderID, item.ID, qty)
	if err != nil {
		s.logger.WithError(err).Error("put item after finalization failed")
		return stage.ERROR
	}
	if !accepted {
		s.logger.Warn("target rejected item change after finalization")
		return stage.FAIL
	}

	waitErr := awaiter.AwaitAtMost(changeItemsAwaitDeadline).
		Condition(func(ctx context.Context) (bool, error) {
			order, err := deps.API.GetOrder(ctx, tc.UserID, tc.OrderID)
			if err != nil {
				return false, err
			}
			deps.Cache.Put(order)
			return order.Status.Kind() == domain.KindCollecting && order.HasItem(item.ID, qty), nil
		}).
		StartWaiting(ctx)
	if waitErr != nil {
		s.logger.WithError(waitErr).Warn("order did not reopen for collecting after item change")
		return stage.FAIL
	}

	tc.RequestRefinalization()
	return stage.CONTINUE
}
