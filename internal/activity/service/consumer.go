package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"learnhub/internal/activity/model"
	"learnhub/internal/activity/repository"
	"learnhub/internal/common/mq"
	"learnhub/pkg/utils/logger"

	"go.uber.org/zap"
)

// ActivityConsumer persists activity events into the repository.
type ActivityConsumer struct {
	mqClient mq.Consumer
	repo     repository.Repository
}

// NewActivityConsumer creates a consumer writing to repo.
func NewActivityConsumer(mqClient mq.Consumer, repo repository.Repository) *ActivityConsumer {
	return &ActivityConsumer{mqClient: mqClient, repo: repo}
}

// Subscribe registers the handler and starts consuming.
func (c *ActivityConsumer) Subscribe(ctx context.Context, topic, consumerGroup string, opts *mq.SubscribeOptions) error {
	if c == nil || c.mqClient == nil {
		return errors.New("message queue is nil")
	}
	if topic == "" {
		return errors.New("activity topic is required")
	}
	options := opts
	if options == nil {
		options = &mq.SubscribeOptions{}
	}
	if options.ConsumerGroup == "" {
		options.ConsumerGroup = consumerGroup
	}
	if err := c.mqClient.Subscribe(ctx, topic, c.HandleMessage, options); err != nil {
		return err
	}
	return c.mqClient.Start()
}

// HandleMessage stores one activity event. Redelivered events are ignored.
func (c *ActivityConsumer) HandleMessage(ctx context.Context, message *mq.Message) error {
	var event model.ActivityEvent
	if err := json.Unmarshal(message.Body, &event); err != nil {
		logger.Warn(ctx, "parse activity event failed", zap.Error(err))
		return nil
	}
	if event.EventType != model.ActivityEventLogged {
		return nil
	}
	if event.Activity.ID == "" || event.Activity.Username == "" {
		logger.Warn(ctx, "activity event missing id or username")
		return nil
	}
	err := c.repo.Save(ctx, &event.Activity)
	if errors.Is(err, repository.ErrDuplicate) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("persist activity failed: %w", err)
	}
	return nil
}
