package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"
)

// KafkaDispatcher publishes events to a Kafka topic, keyed by visit ID so
// all events for one visit land in the same partition in order.
type KafkaDispatcher struct {
	client *kgo.Client
	logger *slog.Logger
}

// NewKafkaDispatcher connects to the given brokers and produces to topic.
func NewKafkaDispatcher(brokers []string, topic string, logger *slog.Logger) (*KafkaDispatcher, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return &KafkaDispatcher{client: client, logger: logger}, nil
}

// Dispatch implements Dispatcher. Production is asynchronous; delivery
// failures are logged in the produce callback rather than returned, since
// the transition has already committed by the time the broker answers.
func (d *KafkaDispatcher) Dispatch(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal notification event: %w", err)
	}

	record := &kgo.Record{
		Key:   []byte(event.VisitID.String()),
		Value: payload,
	}
	d.client.Produce(ctx, record, func(r *kgo.Record, err error) {
		if err != nil {
			d.logger.ErrorContext(ctx, "kafka produce failed",
				"kind", event.Kind,
				"visit_id", event.VisitID,
				"error", err,
			)
		}
	})
	return nil
}

// Close flushes buffered records and releases the client.
func (d *KafkaDispatcher) Close() {
	d.client.Close()
}
