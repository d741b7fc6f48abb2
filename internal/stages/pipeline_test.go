package stages_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/bombardier/internal/domain"
	"github.com/vladislavdragonenkov/bombardier/internal/externalapi/fake"
	"github.com/vladislavdragonenkov/bombardier/internal/ordercache"
	"github.com/vladislavdragonenkov/bombardier/internal/stage"
	"github.com/vladislavdragonenkov/bombardier/internal/stages"
	"github.com/vladislavdragonenkov/bombardier/internal/userpool"
)

func newDeps(api *fake.Service, pool *userpool.Pool) stage.Deps {
	return stage.Deps{API: api, Pool: pool, Cache: ordercache.New()}
}

func runUntilTerminalOrDone(t *testing.T, pipeline []stage.Stage, tc *domain.TestContext, deps stage.Deps) stage.Continuation {
	t.Helper()
	ctx := context.Background()

	for _, s := range pipeline {
		if s.Name() == "OrderAbandoned" {
			abandoned := s.(*stages.OrderAbandoned).WithSleepDuration(0)
			if outcome := abandoned.Run(ctx, tc, deps); outcome != stage.CONTINUE {
				return outcome
			}
			continue
		}

		outcome := s.Run(ctx, tc, deps)
		if outcome != stage.CONTINUE {
			return outcome
		}

		if s.Name() == "OrderChangeItemsAfterFinalization" && tc.FinalizationNeeded() {
			if out := stages.RunFinalizationRound(ctx, tc, deps, stages.NewOrderFinalizing(), stages.NewOrderSettingDeliverySlots()); out != stage.CONTINUE {
				return out
			}
		}
	}
	return stage.CONTINUE
}

func TestHappyPath_PipelineCompletesWithContinue(t *testing.T) {
	api := fake.New(fake.WithDeliverySlots([]int{1}))
	pool := userpool.New("svc")
	pool.CreateUsers(context.Background(), api, 10, 1_000_000)
	deps := newDeps(api, pool)

	tc := domain.NewTestContext("t1", "svc", domain.RunParams{})
	outcome := runUntilTerminalOrDone(t, stages.DefaultPipeline(), tc, deps)

	require.Equal(t, stage.CONTINUE, outcome)
	require.NotEmpty(t, tc.UserID)
	require.NotEmpty(t, tc.OrderID)
}

func TestInsufficientFunds_PaymentStageFails(t *testing.T) {
	api := fake.New(fake.WithPayDecision(func(domain.Order) domain.PaymentLogStatus {
		return domain.PaymentFailedNotEnoughMoney
	}))
	pool := userpool.New("svc")
	pool.CreateUsers(context.Background(), api, 10, 0)
	deps := newDeps(api, pool)

	tc := domain.NewTestContext("t2", "svc", domain.RunParams{})
	outcome := runUntilTerminalOrDone(t, stages.DefaultPipeline(), tc, deps)

	require.Equal(t, stage.FAIL, outcome)
}

func TestRetryExhaustion_PaymentStageReturnsRetryAfterFiveAttempts(t *testing.T) {
	api := fake.New(fake.WithPayDecision(func(domain.Order) domain.PaymentLogStatus {
		return domain.PaymentFailed
	}))
	pool := userpool.New("svc")
	pool.CreateUsers(context.Background(), api, 10, 1_000_000)
	deps := newDeps(api, pool)

	tc := domain.NewTestContext("t3", "svc", domain.RunParams{})
	ctx := context.Background()

	require.Equal(t, stage.CONTINUE, stages.NewChooseUserAccount().Run(ctx, tc, deps))
	require.Equal(t, stage.CONTINUE, stages.NewOrderCreation().Run(ctx, tc, deps))
	require.Equal(t, stage.CONTINUE, stages.NewOrderCollecting().Run(ctx, tc, deps))
	require.Equal(t, stage.CONTINUE, stages.NewOrderAbandoned().WithSleepDuration(0).Run(ctx, tc, deps))
	require.Equal(t, stage.CONTINUE, stages.NewOrderFinalizing().Run(ctx, tc, deps))
	require.Equal(t, stage.CONTINUE, stages.NewOrderSettingDeliverySlots().Run(ctx, tc, deps))

	retryable := stage.NewRetryableStage(stages.NewOrderPayment())
	outcome := retryable.Run(ctx, tc, deps)
	require.Equal(t, stage.RETRY, outcome)
}

func TestDelivery_SuccessSatisfiesInvariantI3(t *testing.T) {
	api := fake.New(fake.WithDeliverySlots([]int{1}))
	pool := userpool.New("svc")
	pool.CreateUsers(context.Background(), api, 10, 1_000_000)
	deps := newDeps(api, pool)
	ctx := context.Background()

	tc := domain.NewTestContext("t4", "svc", domain.RunParams{})
	require.Equal(t, stage.CONTINUE, stages.NewChooseUserAccount().Run(ctx, tc, deps))
	require.Equal(t, stage.CONTINUE, stages.NewOrderCreation().Run(ctx, tc, deps))
	require.Equal(t, stage.CONTINUE, stages.NewOrderCollecting().Run(ctx, tc, deps))
	require.Equal(t, stage.CONTINUE, stages.NewOrderAbandoned().WithSleepDuration(0).Run(ctx, tc, deps))
	require.Equal(t, stage.CONTINUE, stages.NewOrderFinalizing().Run(ctx, tc, deps))

	slotsStage := stages.NewOrderSettingDeliverySlots()
	require.Equal(t, stage.CONTINUE, slotsStage.Run(ctx, tc, deps))
	require.Equal(t, stage.CONTINUE, stages.NewOrderPayment().Run(ctx, tc, deps))

	start := time.Now()
	outcome := stages.NewOrderDelivery().Run(ctx, tc, deps)
	require.Equal(t, stage.CONTINUE, outcome)
	require.Less(t, time.Since(start), 10*time.Second)

	order, ok := deps.Cache.Get(tc.OrderID)
	require.True(t, ok)
	require.Equal(t, domain.KindDelivered, order.Status.Kind())
}

func TestDelivery_FailureSatisfiesInvariantI2(t *testing.T) {
	api := fake.New(
		fake.WithDeliveryDecision(func(domain.Order) bool { return false }),
		fake.WithDeliverySlots([]int{1}),
	)
	pool := userpool.New("svc")
	pool.CreateUsers(context.Background(), api, 10, 1_000_000)
	deps := newDeps(api, pool)
	ctx := context.Background()

	tc := domain.NewTestContext("t5", "svc", domain.RunParams{})
	require.Equal(t, stage.CONTINUE, stages.NewChooseUserAccount().Run(ctx, tc, deps))
	require.Equal(t, stage.CONTINUE, stages.NewOrderCreation().Run(ctx, tc, deps))
	require.Equal(t, stage.CONTINUE, stages.NewOrderCollecting().Run(ctx, tc, deps))
	require.Equal(t, stage.CONTINUE, stages.NewOrderAbandoned().WithSleepDuration(0).Run(ctx, tc, deps))
	require.Equal(t, stage.CONTINUE, stages.NewOrderFinalizing().Run(ctx, tc, deps))
	require.Equal(t, stage.CONTINUE, stages.NewOrderSettingDeliverySlots().Run(ctx, tc, deps))
	require.Equal(t, stage.CONTINUE, stages.NewOrderPayment().Run(ctx, tc, deps))

	outcome := stages.NewOrderDelivery().Run(ctx, tc, deps)
	require.Equal(t, stage.CONTINUE, outcome)

	order, ok := deps.Cache.Get(tc.OrderID)
	require.True(t, ok)
	require.Equal(t, domain.KindRefund, order.Status.Kind())
}
