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

const deliverySlotAwaitDeadline = 3 * time.Second

// OrderSettingDeliverySlots reads the available delivery slots and commits
// a random one, then asserts it is observable on re-read (spec.md §4.8
// step 6).
type OrderSettingDeliverySlots struct {
	logger *log.Entry
}

// NewOrderSettingDeliverySlots builds the stage.
func NewOrderSettingDeliverySlots() *OrderSettingDeliverySlots {
	return &OrderSettingDeliverySlots{logger: log.WithField("stage", "OrderSettingDeliverySlots")}
}

func (s *OrderSettingDeliverySlots) Name() string { return "OrderSettingDeliverySlots" }

func (s *OrderSettingDeliverySlots) Run(ctx context.Context, tc *domain.TestContext, deps stage.Deps) stage.Continuation {
	slots, err := deps.API.GetDeliverySlots(ctx, tc.OrderID)
	if err != nil {
		s.logger.WithError(err).Error("get delivery slots failed")
		return stage.ERROR
	}
	if len(slots) == 0 {
		s.logger.Warn("target offered no delivery slots")
		return stage.FAIL
	}

	chosen := int64(slots[rand.Intn(len(slots))])
	if err := deps.API.SetDeliveryTime(ctx, tc.OrderID, chosen); err != nil {
		s.logger.WithError(err).Error("set delivery time failed")
		return stage.ERROR
	}

	waitErr := awaiter.AwaitAtMost(deliverySlotAwaitDeadline).
		Condition(func(ctx context.Context) (bool, error) {
			order, err := deps.API.GetOrder(ctx, tc.UserID, tc.OrderID)
			if err != nil {
				return false, err
			}
			deps.Cache.Put(order)
			return order.DeliveryDurationSeconds != nil && *order.DeliveryDurationSeconds == chosen, nil
		}).
		StartWaiting(ctx)
	if waitErr != nil {
		s.logger.WithError(waitErr).Warn("chosen delivery slot not observable in time")
		return stage.FAIL
	}

	return stage.CONTINUE
}
