package stage_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/bombardier/internal/domain"
	"github.com/vladislavdragonenkov/bombardier/internal/stage"
)

type scriptedStage struct {
	name      string
	outcomes  []stage.Continuation
	panics    []interface{}
	callCount int
}

func (s *scriptedStage) Name() string { return s.name }

func (s *scriptedStage) Run(ctx context.Context, tc *domain.TestContext, deps stage.Deps) stage.Continuation {
	idx := s.callCount
	s.callCount++
	if idx < len(s.panics) && s.panics[idx] != nil {
		panic(s.panics[idx])
	}
	if idx < len(s.outcomes) {
		return s.outcomes[idx]
	}
	return s.outcomes[len(s.outcomes)-1]
}

func newTestContext() *domain.TestContext {
	return domain.NewTestContext("test-1", "svc", domain.RunParams{})
}

func TestRetryableStage_PassesNonRetryOutcomeThrough(t *testing.T) {
	s := &scriptedStage{name: "probe", outcomes: []stage.Continuation{stage.CONTINUE}}
	r := stage.NewRetryableStage(s)

	outcome := r.Run(context.Background(), newTestContext(), stage.Deps{})
	require.Equal(t, stage.CONTINUE, outcome)
	require.Equal(t, 1, s.callCount)
}

func TestRetryableStage_RetriesUpToMaxThenGivesUp(t *testing.T) {
	s := &scriptedStage{name: "flaky", outcomes: []stage.Continuation{stage.RETRY}}
	r := stage.NewRetryableStage(s)

	outcome := r.Run(context.Background(), newTestContext(), stage.Deps{})
	require.Equal(t, stage.RETRY, outcome)
	require.Equal(t, stage.MaxRetries, s.callCount)
}

func TestRetryableStage_SucceedsOnAnAttemptBeforeExhaustion(t *testing.T) {
	s := &scriptedStage{name: "eventually-ok", outcomes: []stage.Continuation{
		stage.RETRY, stage.RETRY, stage.CONTINUE,
	}}
	r := stage.NewRetryableStage(s)

	outcome := r.Run(context.Background(), newTestContext(), stage.Deps{})
	require.Equal(t, stage.CONTINUE, outcome)
	require.Equal(t, 3, s.callCount)
}

func TestExceptionFreeStage_StageFailedErrorMapsToFail(t *testing.T) {
	s := &scriptedStage{name: "boom", panics: []interface{}{&stage.StageFailedError{Reason: "bad state"}}}
	e := stage.NewExceptionFreeStage(s)

	outcome := e.Run(context.Background(), newTestContext(), stage.Deps{})
	require.Equal(t, stage.FAIL, outcome)
}

func TestExceptionFreeStage_OtherPanicMapsToError(t *testing.T) {
	s := &scriptedStage{name: "crash", panics: []interface{}{"nil pointer dereference"}}
	e := stage.NewExceptionFreeStage(s)

	outcome := e.Run(context.Background(), newTestContext(), stage.Deps{})
	require.Equal(t, stage.ERROR, outcome)
}

func TestExceptionFreeStage_NoPanicPassesThrough(t *testing.T) {
	s := &scriptedStage{name: "clean", outcomes: []stage.Continuation{stage.CONTINUE}}
	e := stage.NewExceptionFreeStage(s)

	outcome := e.Run(context.Background(), newTestContext(), stage.Deps{})
	require.Equal(t, stage.CONTINUE, outcome)
}

type recordedCall struct {
	service, stageName, outcome string
	duration                    time.Duration
}

type fakeRecorder struct {
	calls []recordedCall
}

func (f *fakeRecorder) RecordStageDuration(service, stageName, outcome string, duration time.Duration) {
	f.calls = append(f.calls, recordedCall{service, stageName, outcome, duration})
}

func TestMetricRecordableStage_RecordsOneSampleWithInnermostName(t *testing.T) {
	s := &scriptedStage{name: "inner", outcomes: []stage.Continuation{stage.CONTINUE}}
	recorder := &fakeRecorder{}
	m := stage.NewMetricRecordableStage(s, recorder)

	outcome := m.Run(context.Background(), newTestContext(), stage.Deps{})
	require.Equal(t, stage.CONTINUE, outcome)
	require.Len(t, recorder.calls, 1)
	require.Equal(t, "inner", recorder.calls[0].stageName)
	require.Equal(t, "CONTINUE", recorder.calls[0].outcome)
}

func TestDecorate_ChainReportsInnermostNameThroughAllWrappers(t *testing.T) {
	s := &scriptedStage{name: "checkout", outcomes: []stage.Continuation{stage.RETRY, stage.CONTINUE}}
	recorder := &fakeRecorder{}
	decorated := stage.Decorate(s, recorder)

	outcome := decorated.Run(context.Background(), newTestContext(), stage.Deps{})
	require.Equal(t, stage.CONTINUE, outcome)
	require.Equal(t, "checkout", decorated.Name())
	require.Len(t, recorder.calls, 1)
	require.Equal(t, "checkout", recorder.calls[0].stageName)
}

func TestDecorate_PanicDeepInAScriptedStageBecomesFailMetric(t *testing.T) {
	s := &scriptedStage{name: "payment", panics: []interface{}{&stage.StageFailedError{Reason: "insufficient funds"}}}
	recorder := &fakeRecorder{}
	decorated := stage.Decorate(s, recorder)

	outcome := decorated.Run(context.Background(), newTestContext(), stage.Deps{})
	require.Equal(t, stage.FAIL, outcome)
	require.Equal(t, "FAIL", recorder.calls[0].outcome)
}
