package kafka

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/IBM/sarama"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
)

const producerClientID = "marketplace-core"

var producedMessages = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "marketplace_kafka_produced_messages_total",
	Help: "Сообщения, отправленные в Kafka, по топику и результату.",
}, []string{"topic", "result"})

// Producer синхронно пишет события маркетплейса в Kafka.
type Producer struct {
	sync   sarama.SyncProducer
	logger *log.Entry
	now    func() time.Time
}

// newProducerConfig: идемпотентная запись с подтверждением всех in-sync реплик.
func newProducerConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.ClientID = producerClientID
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5
	cfg.Producer.Retry.Backoff = 200 * time.Millisecond
	cfg.Producer.Return.Successes = true
	cfg.Producer.Compression = sarama.CompressionSnappy
	cfg.Producer.Idempotent = true
	cfg.Net.MaxOpenRequests = 1
	return cfg
}

// NewProducer подключается к брокерам.
func NewProducer(brokers []string, logger *log.Entry) (*Producer, error) {
	sp, err := sarama.NewSyncProducer(brokers, newProducerConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}
	return NewProducerFromSync(sp, logger), nil
}

// NewProducerFromSync оборачивает готовый sarama.SyncProducer (в тестах это mocks.SyncProducer).
func NewProducerFromSync(sp sarama.SyncProducer, logger *log.Entry) *Producer {
	if logger == nil {
		logger = log.New().WithField("component", "kafka-producer")
	}
	return &Producer{sync: sp, logger: logger, now: time.Now}
}

// PublishEvent кодирует event в JSON и отправляет без заголовков.
func (p *Producer) PublishEvent(topic string, key string, event any) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event for %s: %w", topic, err)
	}
	return p.Publish(topic, key, value, nil)
}

// Publish отправляет value с ключом партиционирования key. Заголовки пишутся в порядке ключей.
func (p *Producer) Publish(topic, key string, value []byte, headers map[string]string) error {
	msg := &sarama.ProducerMessage{
		Topic:     topic,
		Key:       sarama.StringEncoder(key),
		Value:     sarama.ByteEncoder(value),
		Headers:   recordHeaders(headers),
		Timestamp: p.now(),
	}

	fields := log.Fields{"topic": topic, "key": key}
	partition, offset, err := p.sync.SendMessage(msg)
	if err != nil {
		producedMessages.WithLabelValues(topic, "error").Inc()
		p.logger.WithError(err).WithFields(fields).Error("failed to send message to kafka")
		return fmt.Errorf("failed to send message to %s: %w", topic, err)
	}

	producedMessages.WithLabelValues(topic, "ok").Inc()
	fields["partition"] = partition
	fields["offset"] = offset
	p.logger.WithFields(fields).Debug("message sent to kafka")
	return nil
}

func recordHeaders(headers map[string]string) []sarama.RecordHeader {
	if len(headers) == 0 {
		return nil
	}
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	out := make([]sarama.RecordHeader, 0, len(keys))
	for _, k := range keys {
		out = append(out, sarama.RecordHeader{Key: []byte(k), Value: []byte(headers[k])})
	}
	return out
}

// Close закрывает соединения с брокерами.
func (p *Producer) Close() error {
	if err := p.sync.Close(); err != nil {
		return fmt.Errorf("failed to close kafka producer: %w", err)
	}
	return nil
}
