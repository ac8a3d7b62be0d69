package app

import (
	"testing"

	"github.com/IBM/sarama/mocks"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/marketplace/internal/service/outbox"
)

func TestInitKafkaProducer_EmptyBrokers(t *testing.T) {
	logger := log.WithField("test", "kafka")

	for _, brokers := range [][]string{nil, {}, {" ", ""}} {
		producer, err := initKafkaProducer(brokers, logger)
		if err != nil {
			t.Errorf("expected no error for empty brokers %q, got %v", brokers, err)
		}
		if producer != nil {
			t.Errorf("expected nil producer for empty brokers %q", brokers)
		}
	}
}

func TestInitKafkaProducer_InvalidBrokers(t *testing.T) {
	logger := log.WithField("test", "kafka")

	producer, err := initKafkaProducer([]string{"invalid-broker:9999"}, logger)
	if err == nil {
		t.Error("expected error for invalid brokers")
	}
	if producer != nil {
		t.Error("expected nil producer on error")
	}
}

func TestOutboxPublishers(t *testing.T) {
	logger := log.WithField("test", "kafka")

	events, dlq := outboxPublishers(nil, logger)
	if events != nil || dlq != nil {
		t.Fatal("expected no publishers without producer")
	}

	producer := kafka.NewProducerFromSync(mocks.NewSyncProducer(t, nil), logger)
	events, dlq = outboxPublishers(producer, logger)
	if _, ok := events.(*outbox.BreakingPublisher); !ok {
		t.Fatalf("event publisher must be guarded by circuit breaker, got %T", events)
	}
	if _, ok := dlq.(*kafka.OutboxTopicPublisher); !ok {
		t.Fatalf("unexpected dlq publisher %T", dlq)
	}
}

func TestInitCommandConsumer_WithoutBrokers(t *testing.T) {
	consumer, err := initCommandConsumer(DefaultConfig(), nil, nil, log.WithField("test", "kafka"))
	if err != nil || consumer != nil {
		t.Fatalf("expected no consumer without brokers, got %v %v", consumer, err)
	}
}

func TestCloseKafka_NilProducer(_ *testing.T) {
	closeKafka(nil, log.WithField("test", "kafka"))
}

func TestCloseKafka_WithProducer(t *testing.T) {
	mock := mocks.NewSyncProducer(t, nil)
	closeKafka(kafka.NewProducerFromSync(mock, log.WithField("test", "kafka")), log.WithField("test", "kafka"))
}
