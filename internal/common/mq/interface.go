package mq

import (
	"context"
	"time"
)

// MessageQueue is a broker connection that both publishes and consumes.
type MessageQueue interface {
	Producer
	Consumer
	Close() error
}

// Producer publishes messages to a topic.
type Producer interface {
	Publish(ctx context.Context, topic string, message *Message) error
}

// Consumer delivers topic messages to registered handlers once started.
type Consumer interface {
	// Subscribe registers handler for topic. A handler error triggers a redelivery
	// after opts.RetryDelay until opts.MaxRetries is used up.
	Subscribe(ctx context.Context, topic string, handler HandlerFunc, opts *SubscribeOptions) error
	Start() error
	Stop() error
}

// Message is one queued event.
type Message struct {
	ID        string            `json:"id"`
	Body      []byte            `json:"body"`
	Headers   map[string]string `json:"headers"`
	Timestamp time.Time         `json:"timestamp"`
	// Attempts counts failed deliveries so far.
	Attempts int `json:"attempts"`
}

// HandlerFunc processes one message.
type HandlerFunc func(ctx context.Context, message *Message) error

// SubscribeOptions tunes one subscription.
type SubscribeOptions struct {
	ConsumerGroup string
	// Concurrency is the number of handler goroutines. Default 1.
	Concurrency int
	// PrefetchCount is how many fetched messages wait per handler goroutine. Default 1.
	PrefetchCount int
	// MaxRetries bounds redeliveries of a failing message. Default 3.
	MaxRetries int
	// RetryDelay is the pause before a redelivery. Default 1s.
	RetryDelay time.Duration
	// DeadLetterTopic receives messages that ran out of retries. Empty drops them.
	DeadLetterTopic string
}

// SetDefaults fills unset options.
func (o *SubscribeOptions) SetDefaults() {
	if o.Concurrency <= 0 {
		o.Concurrency = 1
	}
	if o.PrefetchCount <= 0 {
		o.PrefetchCount = 1
	}
	if o.MaxRetries == 0 {
		o.MaxRetries = 3
	}
	if o.RetryDelay == 0 {
		o.RetryDelay = time.Second
	}
}

func NewMessage(body []byte) *Message {
	return &Message{
		Body:      body,
		Headers:   make(map[string]string),
		Timestamp: time.Now(),
	}
}

func (m *Message) SetHeader(key, value string) {
	if m.Headers == nil {
		m.Headers = make(map[string]string)
	}
	m.Headers[key] = value
}
