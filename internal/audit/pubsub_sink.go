package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"time"

	"cloud.google.com/go/pubsub"
)

// PubSubSink publishes audit events to a Google Cloud Pub/Sub topic for
// durable, at-least-once delivery to downstream consumers (SIEM, warehouse).
// Per-agent ordering is preserved via the ordering key.
type PubSubSink struct {
	client *pubsub.Client
	topic  *pubsub.Topic
	logger *log.Logger
}

// NewPubSubSink connects to Pub/Sub and ensures the topic exists.
func NewPubSubSink(projectID, topicID string) (*PubSubSink, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub.NewClient: %w", err)
	}

	topic := client.Topic(topicID)
	exists, err := topic.Exists(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("topic.Exists: %w", err)
	}
	if !exists {
		topic, err = client.CreateTopic(ctx, topicID)
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("CreateTopic: %w", err)
		}
		slog.Info("Created Pub/Sub audit topic", "topic_id", topicID)
	}

	// Per-agent ordering so the audit stream replays transitions in order.
	topic.EnableMessageOrdering = true

	sink := &PubSubSink{
		client: client,
		topic:  topic,
		logger: log.New(log.Writer(), "[Audit:PubSub] ", log.LstdFlags),
	}
	sink.logger.Printf("Connected to Pub/Sub topic: projects/%s/topics/%s", projectID, topicID)
	return sink, nil
}

func (s *PubSubSink) Append(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event %s: %w", event.EventID, err)
	}

	msg := &pubsub.Message{
		Data: payload,
		Attributes: map[string]string{
			"event_id":  event.EventID,
			"agent_id":  event.AgentID.String(),
			"action":    event.Action,
			"timestamp": event.Timestamp.Format(time.RFC3339Nano),
		},
		OrderingKey: event.AgentID.String(),
	}

	result := s.topic.Publish(ctx, msg)

	// Non-blocking: audit delivery is best-effort and must never hold up the
	// state transition it records. Failures are logged, not returned late.
	go func() {
		if _, err := result.Get(context.Background()); err != nil {
			s.logger.Printf("Publish failed for audit event %s: %v", event.EventID, err)
		}
	}()
	return nil
}

// Close flushes pending publishes and shuts down the client.
func (s *PubSubSink) Close() error {
	s.topic.Stop()
	return s.client.Close()
}
