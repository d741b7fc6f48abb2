// Package stage declares the test-stage contract and its decorators
// (spec.md §4.7, component G): a stage runs within a single TestContext,
// reads/writes the target through the external service API, and reports a
// Continuation the worker loop uses to decide what happens next. Grounded
// on internal/service/saga/orchestrator.go's Start/handleReserve/
// handlePayment/handleConfirm pipeline shape, and its retry/circuit-breaker
// wrapper-over-interface idiom in internal/service/saga/retry.go.
package stage

import (
	"context"
	"time"

	"github.com/vladislavdragonenkov/bombardier/internal/domain"
	"github.com/vladislavdragonenkov/bombardier/internal/externalapi"
	"github.com/vladislavdragonenkov/bombardier/internal/ordercache"
	"github.com/vladislavdragonenkov/bombardier/internal/userpool"
)

// Continuation is the outcome a stage hands back to the pipeline runner
// (spec.md §4.7).
type Continuation int

const (
	// CONTINUE advances the pipeline to the next stage.
	CONTINUE Continuation = iota
	// FAIL ends the test as a business failure: the target violated an
	// expected contract.
	FAIL
	// ERROR ends the test as an unexpected failure: an uncaught panic or
	// transport error surfaced through the stage.
	ERROR
	// RETRY requests re-execution of the same stage (only RetryableStage
	// acts on this; unhandled it is treated like a non-CONTINUE terminal
	// outcome by the pipeline runner).
	RETRY
	// STOP ends the test as a neutral stop, not counted as a failure.
	STOP
)

func (c Continuation) String() string {
	switch c {
	case CONTINUE:
		return "CONTINUE"
	case FAIL:
		return "FAIL"
	case ERROR:
		return "ERROR"
	case RETRY:
		return "RETRY"
	case STOP:
		return "STOP"
	default:
		return "UNKNOWN"
	}
}

// IsTerminal reports whether c ends the test (everything except CONTINUE).
func (c Continuation) IsTerminal() bool {
	return c != CONTINUE
}

// Deps bundles the dependencies a stage needs to talk to the target and to
// the harness's own local mirrors, so the Stage interface doesn't grow a
// parameter per dependency.
type Deps struct {
	API     externalapi.ExternalAPI
	Pool    *userpool.Pool
	Cache   *ordercache.Cache
	Metrics MetricsRecorder
}

// Stage is one step of the pipeline. Name is used for metric labels and
// logging, and by decorators to find the innermost concrete stage name.
type Stage interface {
	Name() string
	Run(ctx context.Context, tc *domain.TestContext, deps Deps) Continuation
}

// unwrapper is implemented by decorators so InnermostName can walk the
// wrapper chain down to the concrete stage (spec.md §9: "the innermost
// stage name lookup is a chain traversal over a wrapped accessor").
type unwrapper interface {
	Unwrap() Stage
}

// InnermostName walks s's decorator chain (if any) and returns the name of
// the concrete stage at its core.
func InnermostName(s Stage) string {
	for {
		u, ok := s.(unwrapper)
		if !ok {
			return s.Name()
		}
		s = u.Unwrap()
	}
}

// StageFailedError is the declared business-failure signal a stage may
// panic with from deep within a helper call, to be recovered by
// ExceptionFreeStage and mapped to FAIL rather than ERROR. Most stages can
// just return FAIL directly; this exists for the cases spec.md §9 calls out
// where business failure is detected several calls deep (e.g. an awaiter's
// predicate building on a helper shared by many stages).
type StageFailedError struct {
	Reason string
}

func (e *StageFailedError) Error() string {
	return e.Reason
}

// Fail panics with a *StageFailedError, to be recovered by
// ExceptionFreeStage and reported as FAIL.
func Fail(reason string) {
	panic(&StageFailedError{Reason: reason})
}

// MetricsRecorder is the narrow surface MetricRecordableStage needs from
// the metrics package, kept here as an interface (rather than importing
// internal/metrics) so the dependency points the natural direction: stage
// depends on an abstraction, metrics implements it.
type MetricsRecorder interface {
	RecordStageDuration(service, stage, outcome string, duration time.Duration)
	RecordAwaiterTimeout(stage string)
}
