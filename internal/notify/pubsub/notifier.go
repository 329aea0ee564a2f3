// Package pubsub implements a Google Cloud Pub/Sub archive event notifier.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"cloud.google.com/go/pubsub"

	"github.com/JakeFAU/linkvault/internal/archive"
)

// Notifier publishes archive events to a Pub/Sub topic.
type Notifier struct {
	topic  *pubsub.Topic
	client *pubsub.Client
}

// New creates a Notifier for the provided topic.
func New(topic *pubsub.Topic) *Notifier {
	return &Notifier{topic: topic}
}

// Connect dials Pub/Sub and returns a Notifier for projectID/topicID. The
// Notifier owns the client; Close releases it.
func Connect(ctx context.Context, projectID, topicID string) (*Notifier, error) {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	return &Notifier{topic: client.Topic(topicID), client: client}, nil
}

// Publish marshals the event to JSON and publishes it to the topic.
func (n *Notifier) Publish(ctx context.Context, event archive.Event) (string, error) {
	if n.topic == nil {
		return "", fmt.Errorf("pubsub topic is not configured")
	}
	data, err := json.Marshal(event)
	if err != nil {
		return "", fmt.Errorf("marshal event: %w", err)
	}

	result := n.topic.Publish(ctx, &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"article_id": string(event.ArticleID),
			"run_id":     event.RunID,
			"refresh":    strconv.FormatBool(event.Refresh),
		},
	})
	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish event: %w", err)
	}
	return id, nil
}

// Close flushes pending messages and releases the client when the Notifier
// owns one.
func (n *Notifier) Close() error {
	if n.topic != nil {
		n.topic.Stop()
	}
	if n.client != nil {
		if err := n.client.Close(); err != nil {
			return fmt.Errorf("close pubsub client: %w", err)
		}
	}
	return nil
}
