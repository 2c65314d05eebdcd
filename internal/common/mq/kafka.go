package mq

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

const (
	headerID       = "x-learnhub-id"
	headerSentAt   = "x-learnhub-sent-at"
	headerAttempts = "x-learnhub-attempts"
)

var errClosed = errors.New("message queue is closed")

// KafkaConfig configures KafkaQueue. Zero values take the defaults applied by NewKafkaQueue.
type KafkaConfig struct {
	Brokers     []string
	ClientID    string
	GroupPrefix string

	RequiredAcks kafka.RequiredAcks
	BatchSize    int
	BatchTimeout time.Duration
	Compression  kafka.Compression

	MinBytes int
	MaxBytes int
	MaxWait  time.Duration

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

func (c *KafkaConfig) setDefaults() {
	setInt := func(v *int, d int) {
		if *v == 0 {
			*v = d
		}
	}
	setDur := func(v *time.Duration, d time.Duration) {
		if *v == 0 {
			*v = d
		}
	}
	setInt(&c.BatchSize, 100)
	setInt(&c.MinBytes, 1<<10)
	setInt(&c.MaxBytes, 10<<20)
	setDur(&c.BatchTimeout, 50*time.Millisecond)
	setDur(&c.MaxWait, time.Second)
	setDur(&c.DialTimeout, 10*time.Second)
	setDur(&c.ReadTimeout, 10*time.Second)
	setDur(&c.WriteTimeout, 10*time.Second)
	if c.RequiredAcks == 0 {
		c.RequiredAcks = kafka.RequireOne
	}
	if c.GroupPrefix == "" {
		c.GroupPrefix = "learnhub"
	}
}

// KafkaQueue carries activity events over Kafka.
type KafkaQueue struct {
	config KafkaConfig
	writer *kafka.Writer

	mu      sync.Mutex
	subs    []*subscription
	running bool
	closed  bool
}

type subscription struct {
	topic   string
	handler HandlerFunc
	opts    SubscribeOptions
	parent  context.Context

	reader *kafka.Reader
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewKafkaQueue(cfg KafkaConfig) (*KafkaQueue, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("brokers are required")
	}
	cfg.setDefaults()
	dialer := &kafka.Dialer{ClientID: cfg.ClientID, Timeout: cfg.DialTimeout, DualStack: true}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: cfg.RequiredAcks,
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.BatchTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		Compression:  cfg.Compression,
		Transport: &kafka.Transport{
			ClientID: cfg.ClientID,
			Dial: func(ctx context.Context, network, address string) (net.Conn, error) {
				return dialer.DialContext(ctx, network, address)
			},
		},
	}
	return &KafkaQueue{config: cfg, writer: writer}, nil
}

// Publish writes message keyed by its ID, so events of one id stay on one partition.
func (k *KafkaQueue) Publish(ctx context.Context, topic string, message *Message) error {
	if message == nil {
		return errors.New("message is nil")
	}
	if topic == "" {
		return errors.New("topic is required")
	}
	return k.writer.WriteMessages(ctx, encode(topic, message))
}

func (k *KafkaQueue) Subscribe(ctx context.Context, topic string, handler HandlerFunc, opts *SubscribeOptions) error {
	if topic == "" {
		return errors.New("topic is required")
	}
	if handler == nil {
		return errors.New("handler is required")
	}
	sub := &subscription{topic: topic, handler: handler, parent: ctx}
	if opts != nil {
		sub.opts = *opts
	}
	sub.opts.SetDefaults()
	if sub.opts.ConsumerGroup == "" {
		sub.opts.ConsumerGroup = fmt.Sprintf("%s-%s", k.config.GroupPrefix, topic)
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return errClosed
	}
	k.subs = append(k.subs, sub)
	if k.running {
		k.run(sub)
	}
	return nil
}

// Start begins consuming every registered subscription. Calling it twice is a no-op.
func (k *KafkaQueue) Start() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return errClosed
	}
	if k.running {
		return nil
	}
	for _, sub := range k.subs {
		k.run(sub)
	}
	k.running = true
	return nil
}

// Stop cancels the consumers and waits for in-flight handlers.
func (k *KafkaQueue) Stop() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	for _, sub := range k.subs {
		if sub.cancel != nil {
			sub.cancel()
		}
	}
	for _, sub := range k.subs {
		sub.wg.Wait()
		if sub.reader != nil {
			_ = sub.reader.Close()
			sub.reader = nil
		}
	}
	k.running = false
	return nil
}

func (k *KafkaQueue) Close() error {
	k.mu.Lock()
	if k.closed {
		k.mu.Unlock()
		return nil
	}
	k.closed = true
	k.mu.Unlock()

	_ = k.Stop()
	return k.writer.Close()
}

func (k *KafkaQueue) run(sub *subscription) {
	sub.reader = kafka.NewReader(kafka.ReaderConfig{
		Brokers:     k.config.Brokers,
		Topic:       sub.topic,
		GroupID:     sub.opts.ConsumerGroup,
		MinBytes:    k.config.MinBytes,
		MaxBytes:    k.config.MaxBytes,
		MaxWait:     k.config.MaxWait,
		StartOffset: kafka.FirstOffset,
	})
	parent := sub.parent
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	sub.cancel = cancel

	fetched := make(chan kafka.Message, sub.opts.Concurrency*sub.opts.PrefetchCount)
	sub.wg.Add(1)
	go func(reader *kafka.Reader) {
		defer sub.wg.Done()
		defer close(fetched)
		for ctx.Err() == nil {
			msg, err := reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				time.Sleep(100 * time.Millisecond)
				continue
			}
			select {
			case fetched <- msg:
			case <-ctx.Done():
				return
			}
		}
	}(sub.reader)

	for i := 0; i < sub.opts.Concurrency; i++ {
		sub.wg.Add(1)
		go func(reader *kafka.Reader) {
			defer sub.wg.Done()
			for msg := range fetched {
				k.deliver(ctx, sub, reader, msg)
			}
		}(sub.reader)
	}
}

// deliver retries the handler, dead-letters the message when retries run out,
// and commits the offset unless the consumer is stopping.
func (k *KafkaQueue) deliver(ctx context.Context, sub *subscription, reader *kafka.Reader, raw kafka.Message) {
	m := decode(raw)
	for sub.handler(ctx, m) != nil {
		m.Attempts++
		if m.Attempts > sub.opts.MaxRetries {
			if sub.opts.DeadLetterTopic != "" {
				_ = k.Publish(ctx, sub.opts.DeadLetterTopic, m)
			}
			break
		}
		select {
		case <-time.After(sub.opts.RetryDelay):
		case <-ctx.Done():
			return
		}
	}
	_ = reader.CommitMessages(ctx, raw)
}

func encode(topic string, m *Message) kafka.Message {
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now()
	}
	headers := make([]kafka.Header, 0, len(m.Headers)+3)
	for key, value := range m.Headers {
		headers = append(headers, kafka.Header{Key: key, Value: []byte(value)})
	}
	headers = append(headers,
		kafka.Header{Key: headerID, Value: []byte(m.ID)},
		kafka.Header{Key: headerSentAt, Value: []byte(m.Timestamp.Format(time.RFC3339Nano))},
	)
	if m.Attempts > 0 {
		headers = append(headers, kafka.Header{Key: headerAttempts, Value: []byte(strconv.Itoa(m.Attempts))})
	}
	return kafka.Message{Topic: topic, Key: []byte(m.ID), Value: m.Body, Headers: headers, Time: m.Timestamp}
}

func decode(raw kafka.Message) *Message {
	m := &Message{ID: string(raw.Key), Body: raw.Value, Headers: make(map[string]string), Timestamp: raw.Time}
	for _, h := range raw.Headers {
		value := string(h.Value)
		switch h.Key {
		case headerID:
			if value != "" {
				m.ID = value
			}
		case headerSentAt:
			if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
				m.Timestamp = ts
			}
		case headerAttempts:
			if n, err := strconv.Atoi(value); err == nil && n > 0 {
				m.Attempts = n
			}
		default:
			m.Headers[h.Key] = value
		}
	}
	return m
}

var _ MessageQueue = (*KafkaQueue)(nil)
