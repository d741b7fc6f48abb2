package stage

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/bombardier/internal/domain"
)

// MaxRetries is how many times RetryableStage will re-run a stage that
// keeps returning RETRY before giving up (spec.md §4.7).
const MaxRetries = 5

// RetryableStage re-runs wrapped up to MaxRetries times while it returns
// RETRY, passing any other outcome through unchanged. If the final attempt
// also returns RETRY, RetryableStage itself returns RETRY — the pipeline
// runner treats that as a non-CONTINUE terminal outcome.
type RetryableStage struct {
	wrapped Stage
	logger  *log.Entry
}

// NewRetryableStage wraps s with the retry policy.
func NewRetryableStage(s Stage) *RetryableStage {
	return &RetryableStage{
		wrapped: s,
		logger:  log.WithField("component", "retryable-stage"),
	}
}

func (r *RetryableStage) Name() string  { return r.wrapped.Name() }
func (r *RetryableStage) Unwrap() Stage { return r.wrapped }

func (r *RetryableStage) Run(ctx context.Context, tc *domain.TestContext, deps Deps) Continuation {
	var outcome Continuation
	for attempt := 1; attempt <= MaxRetries; attempt++ {
		outcome = r.wrapped.Run(ctx, tc, deps)
		if outcome != RETRY {
			return outcome
		}
		r.logger.WithFields(log.Fields{
			"stage":   InnermostName(r),
			"attempt": attempt,
			"test_id": tc.TestID,
		}).Warn("stage requested retry")
	}
	return RETRY
}

// ExceptionFreeStage recovers any panic from wrapped.Run. A
// *StageFailedError maps to FAIL; any other recovered value maps to ERROR,
// logged with the innermost stage's name (spec.md §4.7).
type ExceptionFreeStage struct {
	wrapped Stage
	logger  *log.Entry
}

// NewExceptionFreeStage wraps s so no panic escapes the pipeline runner.
func NewExceptionFreeStage(s Stage) *ExceptionFreeStage {
	return &ExceptionFreeStage{
		wrapped: s,
		logger:  log.WithField("component", "exception-free-stage"),
	}
}

func (e *ExceptionFreeStage) Name() string  { return e.wrapped.Name() }
func (e *ExceptionFreeStage) Unwrap() Stage { return e.wrapped }

func (e *ExceptionFreeStage) Run(ctx context.Context, tc *domain.TestContext, deps Deps) (outcome Continuation) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}

		name := InnermostName(e)
		if failure, ok := r.(*StageFailedError); ok {
			e.logger.WithFields(log.Fields{
				"stage":   name,
				"test_id": tc.TestID,
				"reason":  failure.Reason,
			}).Warn("stage failed")
			outcome = FAIL
			return
		}

		e.logger.WithFields(log.Fields{
			"stage":   name,
			"test_id": tc.TestID,
			"panic":   r,
		}).Error("stage raised an unexpected error")
		outcome = ERROR
	}()

	return e.wrapped.Run(ctx, tc, deps)
}

// MetricRecordableStage times wrapped.Run and records the duration under
// labels {service, stage, outcome} via the supplied recorder (spec.md
// §4.7).
type MetricRecordableStage struct {
	wrapped  Stage
	recorder MetricsRecorder
}

// NewMetricRecordableStage wraps s so every run is timed and recorded.
func NewMetricRecordableStage(s Stage, recorder MetricsRecorder) *MetricRecordableStage {
	return &MetricRecordableStage{wrapped: s, recorder: recorder}
}

func (m *MetricRecordableStage) Name() string  { return m.wrapped.Name() }
func (m *MetricRecordableStage) Unwrap() Stage { return m.wrapped }

func (m *MetricRecordableStage) Run(ctx context.Context, tc *domain.TestContext, deps Deps) Continuation {
	start := time.Now()
	outcome := m.wrapped.Run(ctx, tc, deps)
	if m.recorder != nil {
		m.recorder.RecordStageDuration(tc.ServiceName, InnermostName(m), outcome.String(), time.Since(start))
	}
	return outcome
}

// Decorate wraps a concrete stage with the full standard chain —
// metrics(exception-free(retryable(s))) — matching the nesting order named
// in spec.md §4.7: retries happen innermost, so a panic on any attempt ends
// the whole retry loop and is classified once by ExceptionFreeStage; metrics
// wrap everything so a single duration sample covers every retry.
func Decorate(s Stage, recorder MetricsRecorder) Stage {
	return NewMetricRecordableStage(NewExceptionFreeStage(NewRetryableStage(s)), recorder)
}
