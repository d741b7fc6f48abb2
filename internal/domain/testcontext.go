package domain

import "time"

// PaymentDetails carries whatever the payment stage needs to hand the
// target on payOrder; kept deliberately thin since the payment provider
// adapter itself is out of scope (spec.md §1).
type PaymentDetails struct {
	ProviderRef string
}

// RunParams is the admin control-surface request body for starting a flow
// (spec.md §6).
type RunParams struct {
	ServiceName                 string
	NumberOfUsers                int
	NumberOfTests                int
	RatePerSecond                float64
	SlowStartOn                  bool
	Workers                      int
	TestSuccessByThePaymentFact  bool
	StopAfterOrderCreation       bool
}

// TestContext is the per-test, per-flow mutable state a single worker
// thread owns exclusively for the duration of one test (spec.md §3). It is
// never shared across goroutines; every stage receives the same *TestContext
// value sequentially.
type TestContext struct {
	TestID      string
	ServiceName string

	UserID  string
	OrderID string

	PaymentDetails PaymentDetails

	StagesComplete []string

	WasChangedAfterFinalization bool

	// needsRefinalization is set by OrderChangeItemsAfterFinalization and
	// cleared once the pipeline has re-run OrderFinalizing/
	// OrderSettingDeliverySlots in response to it.
	needsRefinalization bool

	TestStartTime time.Time

	// Flow-level knobs copied in from RunParams at construction time so
	// stages can consult them without reaching back into the flow.
	TestSuccessByThePaymentFact bool
	StopAfterOrderCreation      bool
}

// NewTestContext builds a fresh context for one worker iteration.
func NewTestContext(testID, serviceName string, params RunParams) *TestContext {
	return &TestContext{
		TestID:                      testID,
		ServiceName:                 serviceName,
		TestStartTime:               time.Now(),
		TestSuccessByThePaymentFact: params.TestSuccessByThePaymentFact,
		StopAfterOrderCreation:      params.StopAfterOrderCreation,
	}
}

// SetUser assigns the test's user id exactly once (invariant I5); a second
// assignment is a programming error and panics rather than silently
// clobbering the first value, since a rewrite here would break invariant
// I5 (userId/orderId assigned exactly once). An empty userID is a business
// failure (the pool/target gave back nothing usable), reported as
// ErrUserRequired rather than silently installed.
func (c *TestContext) SetUser(userID string) error {
	if userID == "" {
		return ErrUserRequired
	}
	if c.UserID != "" {
		panic("domain: TestContext.UserID already assigned")
	}
	c.UserID = userID
	return nil
}

// SetOrder assigns the test's order id exactly once (invariant I5). An
// empty orderID is reported as ErrOrderRequired rather than silently
// installed.
func (c *TestContext) SetOrder(orderID string) error {
	if orderID == "" {
		return ErrOrderRequired
	}
	if c.OrderID != "" {
		panic("domain: TestContext.OrderID already assigned")
	}
	c.OrderID = orderID
	return nil
}

// MarkStageComplete records that a stage finished CONTINUE-ing, in pipeline
// order, for post-hoc logging/metrics.
func (c *TestContext) MarkStageComplete(name string) {
	c.StagesComplete = append(c.StagesComplete, name)
}

// StageCompleted reports whether a named stage already ran to completion in
// this test.
func (c *TestContext) StageCompleted(name string) bool {
	for _, s := range c.StagesComplete {
		if s == name {
			return true
		}
	}
	return false
}

// FinalizationNeeded reports whether a finalize+slot-selection round must
// run again. It is true the first time through the pipeline (finalization
// has not completed yet) and true again after
// OrderChangeItemsAfterFinalization ran, since changing items after a
// booking invalidates it (spec.md §4.8 step 7 / §9 design note).
func (c *TestContext) FinalizationNeeded() bool {
	if !c.StageCompleted("OrderFinalizing") {
		return true
	}
	return c.needsRefinalization
}

// RequestRefinalization is called by OrderChangeItemsAfterFinalization when
// it changes items post-booking; it also records that a change happened at
// all (WasChangedAfterFinalization), which outlives the refinalization
// round and is consulted by later invariant checks.
func (c *TestContext) RequestRefinalization() {
	c.WasChangedAfterFinalization = true
	c.needsRefinalization = true
}

// ConsumeRefinalization clears the refinalization request once the pipeline
// has re-run OrderFinalizing/OrderSettingDeliverySlots in response to it.
func (c *TestContext) ConsumeRefinalization() {
	c.needsRefinalization = false
}
