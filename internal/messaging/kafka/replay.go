package kafka

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/IBM/sarama"
)

// HeaderReplayedFrom помечает сообщения, повторно отправленные из DLQ.
const HeaderReplayedFrom = "x-replayed-from"

// ErrSkipReplay: запись DLQ сознательно не переотправляется.
var ErrSkipReplay = errors.New("dlq record is not replayable")

// Replay: сообщение, восстановленное из записи DLQ.
type Replay struct {
	Topic string
	Key   string
	Value []byte
	// Source: "consumer" для команд, "outbox" для событий outbox.
	Source string
}

// outboxDeadLetter: полезная нагрузка, которую outbox worker кладёт в DLQ.
type outboxDeadLetter struct {
	OutboxID      string          `json:"outbox_id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishError  string          `json:"publish_error"`
}

// DecodeDeadLetter восстанавливает исходное сообщение из записи DLQ.
// Перманентно отклонённые команды пропускаются, пока includePermanent=false.
func DecodeDeadLetter(msg *sarama.ConsumerMessage, includePermanent bool, now time.Time) (Replay, error) {
	var letter DeadLetter
	if err := json.Unmarshal(msg.Value, &letter); err == nil && letter.OriginalTopic != "" {
		if letter.Permanent && !includePermanent {
			return Replay{}, fmt.Errorf("%w: permanent failure: %s", ErrSkipReplay, letter.ErrorMessage)
		}
		return Replay{
			Topic:  letter.OriginalTopic,
			Key:    letter.OriginalKey,
			Value:  []byte(letter.OriginalValue),
			Source: "consumer",
		}, nil
	}

	var envelope outboxEnvelope
	if err := json.Unmarshal(msg.Value, &envelope); err != nil || len(envelope.Payload) == 0 || string(envelope.Payload) == "null" {
		return Replay{}, fmt.Errorf("%w: unknown record format", ErrSkipReplay)
	}

	var letterPayload outboxDeadLetter
	if err := json.Unmarshal(envelope.Payload, &letterPayload); err != nil {
		return Replay{}, fmt.Errorf("decode outbox dlq payload: %w", err)
	}
	if len(letterPayload.Payload) == 0 {
		return Replay{}, fmt.Errorf("%w: outbox record has no original payload", ErrSkipReplay)
	}

	restored := outboxEnvelope{
		ID:            firstNonEmpty(letterPayload.OutboxID, envelope.ID),
		AggregateType: firstNonEmpty(letterPayload.AggregateType, envelope.AggregateType),
		AggregateID:   firstNonEmpty(letterPayload.AggregateID, envelope.AggregateID),
		EventType:     firstNonEmpty(letterPayload.EventType, envelope.EventType),
		Payload:       letterPayload.Payload,
		PublishedAt:   now.UTC(),
	}
	value, err := json.Marshal(restored)
	if err != nil {
		return Replay{}, fmt.Errorf("encode replay envelope: %w", err)
	}

	return Replay{
		Topic:  TopicForAggregate(restored.AggregateType),
		Key:    firstNonEmpty(restored.AggregateID, restored.ID),
		Value:  value,
		Source: "outbox",
	}, nil
}

// PublishReplay отправляет восстановленное сообщение с пометкой об источнике.
func (p *Producer) PublishReplay(replay Replay, fromTopic string) error {
	headers := map[string]string{HeaderReplayedFrom: fromTopic}
	return p.Publish(replay.Topic, replay.Key, replay.Value, headers)
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
