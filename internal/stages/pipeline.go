package stages

import (
	"context"

	"github.com/vladislavdragonenkov/bombardier/internal/domain"
	"github.com/vladislavdragonenkov/bombardier/internal/stage"
)

// DefaultPipeline returns the nine stages of spec.md §4.8, undecorated, in
// pipeline order. The caller (internal/controller) wraps each with
// stage.Decorate and runs them in sequence, re-entering the finalize/slot
// pair whenever TestContext.FinalizationNeeded reports true.
func DefaultPipeline() []stage.Stage {
	return []stage.Stage{
		NewChooseUserAccount(),
		NewOrderCreation(),
		NewOrderCollecting(),
		NewOrderAbandoned(),
		NewOrderFinalizing(),
		NewOrderSettingDeliverySlots(),
		NewOrderChangeItemsAfterFinalization(),
		NewOrderPayment(),
		NewOrderDelivery(),
	}
}

// RunFinalizationRound re-runs OrderFinalizing then OrderSettingDeliverySlots
// — the pair OrderChangeItemsAfterFinalization invalidates when it changes
// items post-booking (spec.md §9) — consuming the refinalization request on
// success.
func RunFinalizationRound(ctx context.Context, tc *domain.TestContext, deps stage.Deps, finalize, slots stage.Stage) stage.Continuation {
	if outcome := finalize.Run(ctx, tc, deps); outcome != stage.CONTINUE {
		return outcome
	}
	if outcome := slots.Run(ctx, tc, deps); outcome != stage.CONTINUE {
		return outcome
	}
	tc.ConsumeRefinalization()
	return stage.CONTINUE
}
