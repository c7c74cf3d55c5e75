package tickfeed

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/hamed0406/uptimedispatch/internal/domain"
)

// KafkaPublisher writes ticks as JSON, keyed by target id so a target's ticks
// stay on one partition.
type KafkaPublisher struct {
	writer *kafka.Writer
}

// New returns a Kafka publisher, or Noop when brokers or topic are empty.
func New(brokers []string, topic string) Publisher {
	if len(brokers) == 0 || topic == "" {
		return Noop{}
	}
	return &KafkaPublisher{writer: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}}
}

// Publish uses a short timeout so a slow cluster never stalls a batch ack.
func (p *KafkaPublisher) Publish(ctx context.Context, t domain.Tick) error {
	if p == nil || p.writer == nil {
		return nil
	}
	payload, err := json.Marshal(t)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return p.writer.WriteMessages(writeCtx, kafka.Message{
		Key:   []byte(t.TargetID),
		Value: payload,
	})
}

func (p *KafkaPublisher) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
