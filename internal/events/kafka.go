package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaPublisher streams events to a Kafka topic, keyed by correlation ID so
// every event for one order lands on the same partition.
//
// Publish only enqueues; Run owns the writer and must be running for messages
// to leave the process.
type KafkaPublisher struct {
	w      *kafka.Writer
	inbox  chan kafka.Message
	logger *slog.Logger
}

// NewKafkaPublisher creates a publisher with an inbox of buf messages.
func NewKafkaPublisher(brokers []string, topic string, buf int, logger *slog.Logger) *KafkaPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &KafkaPublisher{
		w: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
			BatchTimeout:           50 * time.Millisecond,
		},
		inbox:  make(chan kafka.Message, buf),
		logger: logger,
	}
}

// Publish enqueues an event. When the inbox is full the event is dropped and logged.
func (p *KafkaPublisher) Publish(ctx context.Context, e Envelope) {
	value, err := json.Marshal(e)
	if err != nil {
		p.logger.ErrorContext(ctx, "encoding event", "type", e.EventType, "error", err)
		return
	}

	msg := kafka.Message{
		Key:   []byte(e.CorrelationID),
		Value: value,
		Time:  e.OccurredAt,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte(e.EventType)},
		},
	}

	select {
	case p.inbox <- msg:
	default:
		p.logger.WarnContext(ctx, "event inbox full, dropping event", "type", e.EventType, "id", e.EventID)
	}
}

// Run writes queued messages until ctx is cancelled, then flushes what is
// left and closes the writer.
func (p *KafkaPublisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			p.drain()
			return p.w.Close()
		case m := <-p.inbox:
			p.write(ctx, m)
		}
	}
}

func (p *KafkaPublisher) drain() {
	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		select {
		case m := <-p.inbox:
			p.write(flushCtx, m)
		default:
			return
		}
	}
}

func (p *KafkaPublisher) write(ctx context.Context, m kafka.Message) {
	if err := p.w.WriteMessages(ctx, m); err != nil {
		p.logger.Error("writing event to kafka", "key", string(m.Key), "error", err)
	}
}
