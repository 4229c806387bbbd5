package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	id "habita/pkg/domain"
	"habita/pkg/requestcontext"
)

// KafkaSink publishes lifecycle events to a topic the notification workers
// consume. Keyed by application ID so per-application ordering is preserved
// within a partition.
type KafkaSink struct {
	client *kgo.Client
	topic  string
}

// kafkaPayload is the JSON structure the notification consumer deserializes.
type kafkaPayload struct {
	ApplicationID string `json:"applicationId"`
	Event         string `json:"event"`
	Timestamp     string `json:"timestamp"`
	RequestID     string `json:"requestId,omitempty"`
}

// NewKafkaSink builds a producer for the given brokers and topic.
func NewKafkaSink(brokers []string, topic string) (*KafkaSink, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return &KafkaSink{client: client, topic: topic}, nil
}

func (s *KafkaSink) Notify(ctx context.Context, appID id.ApplicationID, event Event) error {
	payload := kafkaPayload{
		ApplicationID: appID.String(),
		Event:         string(event),
		Timestamp:     requestcontext.Now(ctx).Format(time.RFC3339Nano),
		RequestID:     requestcontext.RequestID(ctx),
	}
	value, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	record := &kgo.Record{
		Topic: s.topic,
		Key:   []byte(appID.String()),
		Value: value,
	}
	if err := s.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce notification: %w", err)
	}
	return nil
}

// Close flushes pending records and releases the client.
func (s *KafkaSink) Close() {
	s.client.Close()
}
