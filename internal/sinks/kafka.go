package sinks

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"

	"github.com/fleetwave/dc600core/pkg/dc600/record"
)

// KafkaAlarmForwarder publishes every Position that carries at least one
// alarm tag to a Kafka topic as JSON, keyed by device id so a consumer
// partitioned on key sees one device's alarms in order. Built on the same
// kgo client options the teacher stack's consumers use
// (internal/kafka/history_consumer.go), configured for producing instead.
type KafkaAlarmForwarder struct {
	client *kgo.Client
	topic  string
	logger *zap.Logger
}

// NewKafkaAlarmForwarder dials brokers and returns a forwarder publishing
// to topic.
func NewKafkaAlarmForwarder(brokers []string, topic, clientID string, logger *zap.Logger) (*KafkaAlarmForwarder, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ClientID(clientID),
		kgo.DefaultProduceTopic(topic),
	)
	if err != nil {
		return nil, fmt.Errorf("sinks: creating kafka client: %w", err)
	}
	return &KafkaAlarmForwarder{client: client, topic: topic, logger: logger}, nil
}

type alarmEvent struct {
	DeviceID   string         `json:"deviceId"`
	Time       string         `json:"time"`
	Latitude   float64        `json:"latitude"`
	Longitude  float64        `json:"longitude"`
	AlarmTags  []string       `json:"alarmTags"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// Forward publishes pos as an alarm event if it carries any alarm tags; a
// Position with no alarms is silently skipped, since the topic exists for
// alarm fan-out, not bulk telemetry.
func (f *KafkaAlarmForwarder) Forward(ctx context.Context, pos *record.Position) error {
	if pos.Alarms == nil || pos.Alarms.Len() == 0 {
		return nil
	}

	payload, err := json.Marshal(alarmEvent{
		DeviceID:   pos.DeviceID,
		Time:       pos.Time.Format("2006-01-02T15:04:05Z07:00"),
		Latitude:   pos.Latitude,
		Longitude:  pos.Longitude,
		AlarmTags:  pos.Alarms.Tags(),
		Attributes: pos.Attributes,
	})
	if err != nil {
		return fmt.Errorf("sinks: marshaling alarm event for %s: %w", pos.DeviceID, err)
	}

	rec := &kgo.Record{Topic: f.topic, Key: []byte(pos.DeviceID), Value: payload}

	resultCh := make(chan error, 1)
	f.client.Produce(ctx, rec, func(_ *kgo.Record, err error) {
		resultCh <- err
	})

	select {
	case err := <-resultCh:
		if err != nil {
			return fmt.Errorf("sinks: producing alarm event for %s: %w", pos.DeviceID, err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close flushes and closes the underlying client.
func (f *KafkaAlarmForwarder) Close() {
	f.client.Close()
}
