package app

import (
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/marketplace/internal/service/outbox"
)

// initKafkaProducer создаёт producer, если brokers не пустой.
// Возвращает nil, nil если brokers пустой.
func initKafkaProducer(brokers []string, logger *log.Entry) (*kafka.Producer, error) {
	brokers = normalizeBrokers(brokers)
	if len(brokers) == 0 {
		return nil, nil
	}

	producer, err := kafka.NewProducer(brokers, logger.WithField("component", "kafka-producer"))
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka producer, continuing without kafka")
		return nil, err
	}

	logger.WithField("brokers", brokers).Info("kafka producer initialized")
	return producer, nil
}

// outboxPublishers возвращает publisher событий (через circuit breaker) и publisher DLQ.
func outboxPublishers(producer *kafka.Producer, logger *log.Entry) (domain.OutboxPublisher, domain.OutboxPublisher) {
	if producer == nil {
		return nil, nil
	}
	events := outbox.NewBreakingPublisher(
		kafka.NewOutboxPublisher(producer, ""),
		outbox.DefaultBreakerConfig("kafka-outbox"),
		logger.WithField("component", "outbox-breaker"),
	)
	return events, kafka.NewOutboxPublisher(producer, kafka.TopicDeadLetterQueue)
}

// initCommandConsumer подписывается на внешние команды заказов; сбойные сообщения уходят в DLQ.
func initCommandConsumer(cfg Config, orders kafka.OrderCommands, producer *kafka.Producer, logger *log.Entry) (*kafka.Consumer, error) {
	brokers := normalizeBrokers(cfg.KafkaBrokers)
	if len(brokers) == 0 {
		return nil, nil
	}

	var dlq kafka.DeadLetterPublisher
	if producer != nil {
		dlq = producer
	}

	consumer, err := kafka.NewConsumer(kafka.ConsumerConfig{
		Brokers: brokers,
		GroupID: cfg.KafkaGroupID,
		Topics:  []string{kafka.TopicOrderCommands},
	}, kafka.NewCommandHandler(orders, logger.WithField("component", "order-commands")), dlq, logger.WithField("component", "kafka-consumer"))
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka consumer, continuing without order commands")
		return nil, err
	}
	return consumer, nil
}

// closeKafka закрывает producer если он не nil.
func closeKafka(producer *kafka.Producer, logger *log.Entry) {
	if producer == nil {
		return
	}

	if err := producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
	} else {
		logger.Info("kafka producer closed")
	}
}
