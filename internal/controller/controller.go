// Package controller implements the Test Controller named in spec.md §4.9
// (component I): an admin surface over named, cancellable TestingFlows.
// Grounded directly on cmd/loadtest/main.go's worker-pool shape — a fixed
// set of goroutines, a sync.WaitGroup for join, and sync/atomic counters
// for cross-goroutine bookkeeping — generalized from a one-shot load
// generator into a registry of flows keyed by service name, guarded the
// way internal/service/saga/batch_processor.go guards its batches: one
// sync.Mutex around the map, not per-entry locking.
package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/bombardier/internal/domain"
	"github.com/vladislavdragonenkov/bombardier/internal/externalapi"
	"github.com/vladislavdragonenkov/bombardier/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/bombardier/internal/ordercache"
	"github.com/vladislavdragonenkov/bombardier/internal/ratelimiter"
	"github.com/vladislavdragonenkov/bombardier/internal/stage"
	"github.com/vladislavdragonenkov/bombardier/internal/stages"
	"github.com/vladislavdragonenkov/bombardier/internal/userpool"
)

// DefaultWorkers is W from spec.md §4.9/§5: the number of concurrent
// worker tasks fanned out per service flow when RunParams.Workers is unset.
const DefaultWorkers = 100

// DefaultInitialBalance seeds every pool user's starting credit.
const DefaultInitialBalance = 1_000_000

var (
	// ErrAlreadyRunning is returned by StartTestingForService when the
	// named service already has a flow registered (invariant I4).
	ErrAlreadyRunning = errors.New("controller: service already has a running test flow")
	// ErrNotFound is returned by GetTestingFlowForService/
	// StopTestByServiceName when no flow is registered for the name.
	ErrNotFound = errors.New("controller: no running test flow for service")
	// ErrBadRequest is returned for structurally invalid RunParams.
	ErrBadRequest = errors.New("controller: invalid run params")
)

// Outcome labels used both as Prometheus metric labels and in FlowSnapshot
// reporting (spec.md §4.9's "outcome ∈ {SUCCESS, FAIL, ERROR, RETRY, STOP}").
const (
	OutcomeSuccess = "SUCCESS"
	OutcomeFail    = "FAIL"
	OutcomeError   = "ERROR"
	OutcomeRetry   = "RETRY"
	OutcomeStop    = "STOP"
)

// MetricsRecorder is the narrow surface the Controller needs from the
// metrics package — satisfied by *metrics.Metrics — kept as an interface so
// this package never imports internal/metrics directly.
type MetricsRecorder interface {
	stage.MetricsRecorder
	RecordTestCompleted(service, outcome string, duration time.Duration)
	RecordRateLimiterRate(service string, rate float64)
	FlowStarted()
	FlowFinished()
	SetWorkerPoolActive(service string, active int)
}

// noopRecorder satisfies MetricsRecorder when the Controller is built
// without a metrics sink (e.g. in unit tests that don't care about
// Prometheus output).
type noopRecorder struct{}

func (noopRecorder) RecordStageDuration(string, string, string, time.Duration) {}
func (noopRecorder) RecordAwaiterTimeout(string)                              {}
func (noopRecorder) RecordTestCompleted(string, string, time.Duration)         {}
func (noopRecorder) RecordRateLimiterRate(string, float64)                     {}
func (noopRecorder) FlowStarted()                                             {}
func (noopRecorder) FlowFinished()                                            {}
func (noopRecorder) SetWorkerPoolActive(string, int)                          {}

// TestingFlow is the per-service record named in spec.md §3: shared across
// every worker of one service, its counters are atomic so
// GetTestingFlowForService can snapshot them without locking.
type TestingFlow struct {
	params domain.RunParams
	cancel context.CancelFunc

	testsStarted  int64
	testsFinished int64

	pool  *userpool.Pool
	cache *ordercache.Cache
	rl    *ratelimiter.RateLimiter

	activeWorkers int64

	wg sync.WaitGroup
}

// FlowSnapshot is the read-only view GetTestingFlowForService returns.
type FlowSnapshot struct {
	ServiceName   string
	NumberOfUsers int
	NumberOfTests int
	TestsStarted  int64
	TestsFinished int64
	Running       bool
}

// Controller fans out and supervises TestingFlows, one per service name.
type Controller struct {
	mu    sync.Mutex
	flows map[string]*TestingFlow

	api      externalapi.ExternalAPI
	metrics  MetricsRecorder
	producer *kafka.Producer // optional; nil producer is a no-op (spec.md §4.11)

	logger *log.Entry
}

// Option configures a Controller at construction time.
type Option func(*Controller)

// WithMetrics attaches a metrics sink; without it, recordings are no-ops.
func WithMetrics(m MetricsRecorder) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithKafkaProducer attaches an optional per-test event sink.
func WithKafkaProducer(p *kafka.Producer) Option {
	return func(c *Controller) { c.producer = p }
}

// New builds a Controller against the given target API.
func New(api externalapi.ExternalAPI, opts ...Option) *Controller {
	c := &Controller{
		flows:   make(map[string]*TestingFlow),
		api:     api,
		metrics: noopRecorder{},
		logger:  log.WithField("component", "controller"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func validate(params domain.RunParams) error {
	if params.ServiceName == "" {
		return fmt.Errorf("%w: serviceName is required", ErrBadRequest)
	}
	if params.NumberOfUsers <= 0 {
		return fmt.Errorf("%w: numberOfUsers must be > 0", ErrBadRequest)
	}
	if params.NumberOfTests <= 0 {
		return fmt.Errorf("%w: numberOfTests must be > 0", ErrBadRequest)
	}
	if params.RatePerSecond <= 0 {
		return fmt.Errorf("%w: ratePerSecond must be > 0", ErrBadRequest)
	}
	return nil
}

// StartTestingForService claims the service name, builds its user pool
// synchronously, then launches W worker tasks (spec.md §4.9).
func (c *Controller) StartTestingForService(ctx context.Context, params domain.RunParams) error {
	if err := validate(params); err != nil {
		return err
	}

	workers := params.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}

	flowCtx, cancel := context.WithCancel(context.Background())
	flow := &TestingFlow{
		params: params,
		cancel: cancel,
		pool:   userpool.New(params.ServiceName),
		cache:  ordercache.New(),
		rl:     ratelimiter.New(params.RatePerSecond, params.SlowStartOn),
	}

	c.mu.Lock()
	if _, exists := c.flows[params.ServiceName]; exists {
		c.mu.Unlock()
		cancel()
		flow.rl.Close()
		return ErrAlreadyRunning
	}
	c.flows[params.ServiceName] = flow
	c.mu.Unlock()

	flow.pool.CreateUsers(ctx, c.api, params.NumberOfUsers, DefaultInitialBalance)
	c.metrics.FlowStarted()

	deps := stage.Deps{API: c.api, Pool: flow.pool, Cache: flow.cache, Metrics: c.metrics}
	flow.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go c.runWorker(flowCtx, flow, deps)
	}

	go c.superviseQuiescence(params.ServiceName, flow)

	c.logger.WithFields(log.Fields{
		"service": params.ServiceName,
		"workers": workers,
		"tests":   params.NumberOfTests,
	}).Info("started testing flow")
	return nil
}

// superviseQuiescence removes a flow from the registry once every worker
// has exited, whether by reaching numberOfTests or by cancellation.
func (c *Controller) superviseQuiescence(name string, flow *TestingFlow) {
	flow.wg.Wait()
	flow.rl.Close()
	c.metrics.FlowFinished()
	c.metrics.SetWorkerPoolActive(name, 0)

	c.mu.Lock()
	if c.flows[name] == flow {
		delete(c.flows, name)
	}
	c.mu.Unlock()
}

// runWorker loops acquiring a rate-limiter permit, running one test to
// completion, until the flow's testsStarted counter would exceed
// numberOfTests or the flow is cancelled (spec.md §2/§4.9/§5).
func (c *Controller) runWorker(ctx context.Context, flow *TestingFlow, deps stage.Deps) {
	defer flow.wg.Done()

	for {
		if ctx.Err() != nil {
			return
		}
		if !claimSlot(&flow.testsStarted, int64(flow.params.NumberOfTests)) {
			return
		}

		if err := flow.rl.TickBlocking(ctx); err != nil {
			return
		}
		c.metrics.RecordRateLimiterRate(flow.params.ServiceName, flow.rl.CurrentRate())

		active := atomic.AddInt64(&flow.activeWorkers, 1)
		c.metrics.SetWorkerPoolActive(flow.params.ServiceName, int(active))

		c.runOneTest(ctx, flow, deps)
		atomic.AddInt64(&flow.testsFinished, 1)

		active = atomic.AddInt64(&flow.activeWorkers, -1)
		c.metrics.SetWorkerPoolActive(flow.params.ServiceName, int(active))
	}
}

// claimSlot atomically increments counter by one unless it is already at or
// past limit, guaranteeing counter never exceeds limit and never decreases
// (spec.md §8's testsStarted monotonicity property).
func claimSlot(counter *int64, limit int64) bool {
	for {
		current := atomic.LoadInt64(counter)
		if current >= limit {
			return false
		}
		if atomic.CompareAndSwapInt64(counter, current, current+1) {
			return true
		}
	}
}

// runOneTest assembles a fresh pipeline and TestContext, runs it to a
// terminal Continuation (honoring the StopAfterOrderCreation and
// TestSuccessByThePaymentFact early-exit knobs), and records exactly one
// duration sample (spec.md §4.9 "failure reporting per test").
func (c *Controller) runOneTest(ctx context.Context, flow *TestingFlow, deps stage.Deps) {
	start := time.Now()
	tc := domain.NewTestContext(uuid.NewString(), flow.params.ServiceName, flow.params)
	c.publishTestStarted(flow.params.ServiceName, tc.TestID)

	pipeline := stages.DefaultPipeline()
	decorated := make([]stage.Stage, len(pipeline))
	for i, s := range pipeline {
		decorated[i] = stage.Decorate(s, c.metrics)
	}

	outcome := OutcomeSuccess
runStages:
	for i, s := range decorated {
		result := s.Run(ctx, tc, deps)
		if result != stage.CONTINUE {
			outcome = classify(result)
			break runStages
		}

		switch i {
		case orderCreationIndex:
			if tc.StopAfterOrderCreation {
				break runStages
			}
		case orderChangeItemsIndex:
			if tc.FinalizationNeeded() {
				result := stages.RunFinalizationRound(ctx, tc, deps, decorated[orderFinalizingIndex], decorated[orderSlotsIndex])
				if result != stage.CONTINUE {
					outcome = classify(result)
					break runStages
				}
			}
		case orderPaymentIndex:
			if tc.TestSuccessByThePaymentFact {
				break runStages
			}
		}
	}

	duration := time.Since(start)
	c.metrics.RecordTestCompleted(flow.params.ServiceName, outcome, duration)
	c.publishTestEvent(flow.params.ServiceName, tc.TestID, outcome)
}

// Pipeline stage indices mirror stages.DefaultPipeline's fixed order.
const (
	orderCreationIndex    = 1
	orderFinalizingIndex  = 4
	orderSlotsIndex       = 5
	orderChangeItemsIndex = 6
	orderPaymentIndex     = 7
)

func classify(c stage.Continuation) string {
	switch c {
	case stage.FAIL:
		return OutcomeFail
	case stage.ERROR:
		return OutcomeError
	case stage.RETRY:
		return OutcomeRetry
	case stage.STOP:
		return OutcomeStop
	default:
		return OutcomeSuccess
	}
}

// publishTestStarted emits EventTypeTestStarted at the beginning of
// runOneTest, symmetric with publishTestEvent's terminal-outcome events.
func (c *Controller) publishTestStarted(service, testID string) {
	if c.producer == nil {
		return
	}

	event := kafka.NewTestEvent(kafka.EventTypeTestStarted, service, testID, nil)
	if err := c.producer.PublishEvent(kafka.TopicTestEvents, testID, event); err != nil {
		c.logger.WithError(err).WithField("service", service).Warn("failed to publish test started event")
	}
}

// publishTestEvent mirrors saga/orchestrator.go's publishSagaEvent: a nil
// producer is a no-op, and a publish error is logged and swallowed, since
// Kafka is optional instrumentation never load-bearing for correctness.
func (c *Controller) publishTestEvent(service, testID, outcome string) {
	if c.producer == nil {
		return
	}

	eventType := kafka.EventTypeTestCompleted
	switch outcome {
	case OutcomeFail:
		eventType = kafka.EventTypeTestFailed
	case OutcomeError:
		eventType = kafka.EventTypeTestErrored
	case OutcomeStop:
		eventType = kafka.EventTypeTestStopped
	}

	event := kafka.NewTestEvent(eventType, service, testID, map[string]interface{}{"outcome": outcome})
	if err := c.producer.PublishEvent(kafka.TopicTestEvents, testID, event); err != nil {
		c.logger.WithError(err).WithField("service", service).Warn("failed to publish test event")
	}
}

// GetTestingFlowForService returns a point-in-time snapshot of the named
// flow's counters.
func (c *Controller) GetTestingFlowForService(name string) (FlowSnapshot, error) {
	c.mu.Lock()
	flow, ok := c.flows[name]
	c.mu.Unlock()
	if !ok {
		return FlowSnapshot{}, ErrNotFound
	}

	return FlowSnapshot{
		ServiceName:   name,
		NumberOfUsers: flow.params.NumberOfUsers,
		NumberOfTests: flow.params.NumberOfTests,
		TestsStarted:  atomic.LoadInt64(&flow.testsStarted),
		TestsFinished: atomic.LoadInt64(&flow.testsFinished),
		Running:       true,
	}, nil
}

// StopTestByServiceName cancels the named flow and blocks until every
// in-flight worker has unwound cooperatively (spec.md §4.9/§5).
func (c *Controller) StopTestByServiceName(ctx context.Context, name string) error {
	c.mu.Lock()
	flow, ok := c.flows[name]
	c.mu.Unlock()
	if !ok {
		return ErrNotFound
	}

	flow.cancel()
	flow.wg.Wait()

	c.mu.Lock()
	if c.flows[name] == flow {
		delete(c.flows, name)
	}
	c.mu.Unlock()
	return nil
}

// StopAllTests cancels and waits out every registered flow.
func (c *Controller) StopAllTests(ctx context.Context) error {
	c.mu.Lock()
	names := make([]string, 0, len(c.flows))
	for name := range c.flows {
		names = append(names, name)
	}
	c.mu.Unlock()

	for _, name := range names {
		if err := c.StopTestByServiceName(ctx, name); err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
	}
	return nil
}
