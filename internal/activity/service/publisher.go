package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"learnhub/internal/activity/model"
	"learnhub/internal/common/mq"
)

// ActivityPublisher publishes logged activities to the activity topic.
type ActivityPublisher struct {
	queue mq.Producer
	topic string
}

// NewActivityPublisher creates a publisher for topic.
func NewActivityPublisher(queue mq.Producer, topic string) *ActivityPublisher {
	return &ActivityPublisher{queue: queue, topic: topic}
}

// Publish sends a to the queue keyed by its id.
func (p *ActivityPublisher) Publish(ctx context.Context, a *model.Activity) error {
	if p == nil || p.queue == nil {
		return errors.New("activity publisher is nil")
	}
	if p.topic == "" {
		return errors.New("activity topic is empty")
	}
	payload, err := json.Marshal(model.ActivityEvent{EventType: model.ActivityEventLogged, Activity: *a})
	if err != nil {
		return fmt.Errorf("marshal activity event failed: %w", err)
	}
	message := mq.NewMessage(payload)
	message.ID = a.ID
	message.SetHeader("username", a.Username)
	message.SetHeader("action", a.Action)
	if err := p.queue.Publish(ctx, p.topic, message); err != nil {
		return fmt.Errorf("publish activity event failed: %w", err)
	}
	return nil
}
