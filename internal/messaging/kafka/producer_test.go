package kafka

import (
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	log "github.com/sirupsen/logrus"
)

func TestProducer_PublishEvent(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)

	producer := &Producer{
		producer: mockProducer,
		logger:   log.WithField("component", "kafka-producer-test"),
	}

	mockProducer.ExpectSendMessageAndSucceed()

	event := NewTestEvent(
		EventTypeTestCompleted,
		"checkout",
		"test-123",
		map[string]interface{}{
			"user_id": "user-1",
		},
	)

	err := producer.PublishEvent(TopicTestEvents, "test-123", event)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestProducer_PublishEvent_Error(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)

	producer := &Producer{
		producer: mockProducer,
		logger:   log.WithField("component", "kafka-producer-test"),
	}

	mockProducer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	event := NewTestEvent(
		EventTypeTestFailed,
		"checkout",
		"test-123",
		nil,
	)

	err := producer.PublishEvent(TopicTestEvents, "test-123", event)
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestNewTestEvent(t *testing.T) {
	testID := "test-123"
	metadata := map[string]interface{}{
		"user_id": "user-1",
		"amount":  1000,
	}

	event := NewTestEvent(EventTypeTestCompleted, "checkout", testID, metadata)

	if event.EventType != EventTypeTestCompleted {
		t.Errorf("expected event type %s, got %s", EventTypeTestCompleted, event.EventType)
	}

	if event.TestID != testID {
		t.Errorf("expected test id %s, got %s", testID, event.TestID)
	}

	if event.Service != "checkout" {
		t.Errorf("expected service checkout, got %s", event.Service)
	}

	if event.Metadata["user_id"] != "user-1" {
		t.Error("metadata not set correctly")
	}

	if event.Timestamp.IsZero() {
		t.Error("timestamp should not be zero")
	}

	if time.Since(event.Timestamp) > time.Second {
		t.Error("timestamp should be close to current time")
	}
}

func TestNewStageEvent(t *testing.T) {
	event := NewStageEvent(EventTypeStageRetried, "checkout", "test-123", "OrderPayment", nil)

	if event.EventType != EventTypeStageRetried {
		t.Errorf("expected event type %s, got %s", EventTypeStageRetried, event.EventType)
	}

	if event.Stage != "OrderPayment" {
		t.Errorf("expected stage OrderPayment, got %s", event.Stage)
	}

	if event.TestID != "test-123" {
		t.Errorf("expected test id test-123, got %s", event.TestID)
	}

	if event.Timestamp.IsZero() {
		t.Error("timestamp should not be zero")
	}
}
