package kafka

import "time"

// EventType identifies the kind of event carried on TopicTestEvents.
type EventType string

const (
	EventTypeTestStarted   EventType = "test.started"
	EventTypeTestCompleted EventType = "test.completed"
	EventTypeTestFailed    EventType = "test.failed"
	EventTypeTestErrored   EventType = "test.errored"
	EventTypeTestStopped   EventType = "test.stopped"

	EventTypeStageRetried EventType = "stage.retried"
)

// Topics this package publishes to.
const (
	TopicTestEvents      = "bombardier.test.events"
	TopicDeadLetterQueue = "bombardier.dlq"
)

// Headers attached to dead-lettered messages.
const (
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
)

// TestEvent reports the outcome of one scenario run.
type TestEvent struct {
	EventType EventType              `json:"event_type"`
	Service   string                 `json:"service"`
	TestID    string                 `json:"test_id"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// StageEvent reports a retry of an individual pipeline stage.
type StageEvent struct {
	EventType EventType              `json:"event_type"`
	Service   string                 `json:"service"`
	TestID    string                 `json:"test_id"`
	Stage     string                 `json:"stage"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// NewTestEvent builds a TestEvent stamped with the current time.
func NewTestEvent(eventType EventType, service, testID string, metadata map[string]interface{}) *TestEvent {
	return &TestEvent{
		EventType: eventType,
		Service:   service,
		TestID:    testID,
		Timestamp: time.Now(),
		Metadata:  metadata,
	}
}

// NewStageEvent builds a StageEvent stamped with the current time.
func NewStageEvent(eventType EventType, service, testID, stage string, metadata map[string]interface{}) *StageEvent {
	return &StageEvent{
		EventType: eventType,
		Service:   service,
		TestID:    testID,
		Stage:     stage,
		Timestamp: time.Now(),
		Metadata:  metadata,
	}
}
