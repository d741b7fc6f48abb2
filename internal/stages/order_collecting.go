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

// itemAwaitDeadline bounds how long OrderCollecting waits for each put to
// be reflected in a re-read of the order (spec.md §4.8 step 3).
const itemAwaitDeadline = 3 * time.Second

// maxItemsPerOrder bounds the random 1..N items OrderCollecting adds.
const maxItemsPerOrder = 5

// maxQtyPerItem bounds the random amount requested per item.
const maxQtyPerItem = 4

// OrderCollecting adds a random number of random items in random amounts,
// awaiting after each put that the order snapshot reflects it while the
// order is still Collecting.
type OrderCollecting struct {
	logger *log.Entry
}

// NewOrderCollecting builds the stage.
func NewOrderCollecting() *OrderCollecting {
	return &OrderCollecting{logger: log.WithField("stage", "OrderCollecting")}
}

func (s *OrderCollecting) Name() string { return "OrderCollecting" }

func (s *OrderCollecting) Run(ctx context.Context, tc *domain.TestContext, deps stage.Deps) stage.Continuation {
	items, err := deps.API.GetAvailableItems(ctx, tc.UserID)
	if err != nil {
		s.logger.WithError(err).Error("get available items failed")
		return stage.ERROR
	}

	valid := items[:0]
	for _, item := range items {
		if errs := item.Validate(); len(errs) > 0 {
			s.logger.WithError(errs[0]).WithField("item_id", item.ID).Warn("target offered an invalid catalog item, skipping")
			continue
		}
		valid = append(valid, item)
	}
	items = valid
	if len(items) == 0 {
		s.logger.Warn("target offered no valid items")
		return stage.FAIL
	}

	n := 1 + rand.Intn(maxItemsPerOrder)
	for i := 0; i < n; i++ {
		item := items[rand.Intn(len(items))]
		qty := int32(1 + rand.Intn(maxQtyPerItem))

		accepted, err := deps.API.PutItemToOrder(ctx, tc.UserID, tc.OrderID, item.ID, qty)
		if err != nil {
			s.logger.WithError(err).WithField("item_id", item.ID).Error("put item failed")
			return stage.ERROR
		}
		if !accepted {
			s.logger.WithField("item_id", item.ID).Warn("put item rejected")
			return stage.FAIL
		}

		waitErr := awaiter.AwaitAtMost(itemAwaitDeadline).
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
			if _, ok := waitErr.(*awaiter.ErrTimeout); ok {
				s.logger.WithError(waitErr).WithField("item_id", item.ID).Warn("item not reflected in time")
				if deps.Metrics != nil {
					deps.Metrics.RecordAwaiterTimeout(s.Name())
				}
				return stage.FAIL
			}
			s.logger.WithError(waitErr).WithField("item_id", item.ID).Error("get order failed while awaiting item")
			return stage.ERROR
		}
	}

	return stage.CONTINUE
}
