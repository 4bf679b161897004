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
	headerID         = "x-message-id"
	headerTimestamp  = "x-message-ts"
	headerRetryCount = "x-message-retry"
	headerMaxRetries = "x-message-max-retries"
)

// KafkaConfig defines configuration for Kafka implementation.
type KafkaConfig struct {
	Brokers  []string `yaml:"brokers"`
	ClientID string   `yaml:"clientID"`

	BatchSize    int           `yaml:"batchSize"`
	BatchTimeout time.Duration `yaml:"batchTimeout"`

	MinBytes int           `yaml:"minBytes"`
	MaxBytes int           `yaml:"maxBytes"`
	MaxWait  time.Duration `yaml:"maxWait"`

	DialTimeout time.Duration `yaml:"dialTimeout"`
}

// ApplyDefaults fills zero-valued producer and consumer settings.
func (c *KafkaConfig) ApplyDefaults() {
	if c.ClientID == "" {
		c.ClientID = "codejudge"
	}
	if c.BatchSize == 0 {
		c.BatchSize = 100
	}
	if c.BatchTimeout == 0 {
		c.BatchTimeout = 50 * time.Millisecond
	}
	if c.MinBytes == 0 {
		c.MinBytes = 1 << 10
	}
	if c.MaxBytes == 0 {
		c.MaxBytes = 10 << 20
	}
	if c.MaxWait == 0 {
		c.MaxWait = time.Second
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = 10 * time.Second
	}
}

// KafkaQueue implements MessageQueue using Kafka.
type KafkaQueue struct {
	config KafkaConfig
	writer *kafka.Writer
	dialer *kafka.Dialer

	mu            sync.Mutex
	subscriptions []*kafkaSubscription
	started       bool
	closed        bool
}

type kafkaSubscription struct {
	topic   string
	handler HandlerFunc
	opts    SubscribeOptions
	baseCtx context.Context

	reader *kafka.Reader
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewKafkaQueue creates a Kafka-backed message queue.
func NewKafkaQueue(cfg KafkaConfig) (*KafkaQueue, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("brokers are required")
	}
	cfg.ApplyDefaults()

	dialer := &kafka.Dialer{
		ClientID:  cfg.ClientID,
		Timeout:   cfg.DialTimeout,
		DualStack: true,
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.BatchTimeout,
		Transport: &kafka.Transport{
			Dial: func(ctx context.Context, network, address string) (net.Conn, error) {
				return dialer.DialContext(ctx, network, address)
			},
			ClientID: cfg.ClientID,
		},
	}

	return &KafkaQueue{
		config: cfg,
		writer: writer,
		dialer: dialer,
	}, nil
}

// Publish publishes a message to a topic. The message ID is the partition key.
func (k *KafkaQueue) Publish(ctx context.Context, topic string, message *Message) error {
	if message == nil {
		return errors.New("message is nil")
	}
	if topic == "" {
		return errors.New("topic is required")
	}
	return k.writer.WriteMessages(ctx, toKafkaMessage(topic, message))
}

// SubscribeWithOptions subscribes to a topic with custom options.
func (k *KafkaQueue) SubscribeWithOptions(ctx context.Context, topic string, handler HandlerFunc, opts *SubscribeOptions) error {
	if topic == "" {
		return errors.New("topic is required")
	}
	if handler == nil {
		return errors.New("handler is required")
	}
	var options SubscribeOptions
	if opts != nil {
		options = *opts
	}
	options.SetDefaults()
	if options.ConsumerGroup == "" {
		options.ConsumerGroup = fmt.Sprintf("codejudge-%s", topic)
	}

	sub := &kafkaSubscription{
		topic:   topic,
		handler: handler,
		opts:    options,
		baseCtx: ctx,
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return errors.New("message queue is closed")
	}
	k.subscriptions = append(k.subscriptions, sub)
	if k.started {
		k.startSubscription(sub)
	}
	return nil
}

// Start starts consuming messages for all subscriptions.
func (k *KafkaQueue) Start() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return errors.New("message queue is closed")
	}
	if k.started {
		return nil
	}
	for _, sub := range k.subscriptions {
		k.startSubscription(sub)
	}
	k.started = true
	return nil
}

// Stop stops all consumers gracefully.
func (k *KafkaQueue) Stop() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	for _, sub := range k.subscriptions {
		if sub.cancel != nil {
			sub.cancel()
		}
	}
	for _, sub := range k.subscriptions {
		sub.wg.Wait()
		if sub.reader != nil {
			_ = sub.reader.Close()
		}
	}
	k.started = false
	return nil
}

// Ping verifies the Kafka connection.
func (k *KafkaQueue) Ping(ctx context.Context) error {
	conn, err := k.dialer.DialContext(ctx, "tcp", k.config.Brokers[0])
	if err != nil {
		return err
	}
	return conn.Close()
}

// Close closes the producer and stops consumers.
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

func (k *KafkaQueue) startSubscription(sub *kafkaSubscription) {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     k.config.Brokers,
		Topic:       sub.topic,
		GroupID:     sub.opts.ConsumerGroup,
		MinBytes:    k.config.MinBytes,
		MaxBytes:    k.config.MaxBytes,
		MaxWait:     k.config.MaxWait,
		StartOffset: kafka.LastOffset,
		Dialer:      k.dialer,
	})
	sub.reader = reader
	if sub.baseCtx == nil {
		sub.baseCtx = context.Background()
	}
	sub.ctx, sub.cancel = context.WithCancel(sub.baseCtx)

	msgCh := make(chan kafka.Message, sub.opts.Concurrency)
	sub.wg.Add(1)
	go func() {
		defer sub.wg.Done()
		defer close(msgCh)
		for {
			msg, err := reader.FetchMessage(sub.ctx)
			if err != nil {
				if sub.ctx.Err() != nil {
					return
				}
				time.Sleep(100 * time.Millisecond)
				continue
			}
			select {
			case msgCh <- msg:
			case <-sub.ctx.Done():
				return
			}
		}
	}()

	for i := 0; i < sub.opts.Concurrency; i++ {
		sub.wg.Add(1)
		go func() {
			defer sub.wg.Done()
			for msg := range msgCh {
				k.handleMessage(sub, msg)
			}
		}()
	}
}

func (k *KafkaQueue) handleMessage(sub *kafkaSubscription, msg kafka.Message) {
	m := fromKafkaMessage(msg)
	if deliver(sub.ctx, m, sub.handler, sub.opts) && sub.opts.DeadLetterTopic != "" {
		_ = k.Publish(sub.ctx, sub.opts.DeadLetterTopic, m)
	}
	_ = sub.reader.CommitMessages(sub.ctx, msg)
}

// deliver runs handler with retries and reports whether the message exhausted them.
func deliver(ctx context.Context, m *Message, handler HandlerFunc, opts SubscribeOptions) bool {
	if m.MaxRetries == 0 {
		m.MaxRetries = opts.MaxRetries
	}
	for {
		if err := handler(ctx, m); err == nil {
			return false
		}
		m.RetryCount++
		if m.RetryCount > m.MaxRetries {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(opts.RetryDelay):
		}
	}
}

func toKafkaMessage(topic string, message *Message) kafka.Message {
	if message.Timestamp.IsZero() {
		message.Timestamp = time.Now()
	}
	headers := make([]kafka.Header, 0, len(message.Headers)+4)
	for k, v := range message.Headers {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	if message.ID != "" {
		headers = append(headers, kafka.Header{Key: headerID, Value: []byte(message.ID)})
	}
	headers = append(headers, kafka.Header{Key: headerTimestamp, Value: []byte(message.Timestamp.Format(time.RFC3339Nano))})
	if message.RetryCount != 0 {
		headers = append(headers, kafka.Header{Key: headerRetryCount, Value: []byte(strconv.Itoa(message.RetryCount))})
	}
	if message.MaxRetries != 0 {
		headers = append(headers, kafka.Header{Key: headerMaxRetries, Value: []byte(strconv.Itoa(message.MaxRetries))})
	}

	return kafka.Message{
		Topic:   topic,
		Key:     []byte(message.ID),
		Value:   message.Body,
		Headers: headers,
		Time:    message.Timestamp,
	}
}

func fromKafkaMessage(msg kafka.Message) *Message {
	m := &Message{
		Body:      msg.Value,
		Headers:   make(map[string]string),
		Timestamp: msg.Time,
	}
	for _, h := range msg.Headers {
		switch h.Key {
		case headerID:
			m.ID = string(h.Value)
		case headerTimestamp:
			if ts, err := time.Parse(time.RFC3339Nano, string(h.Value)); err == nil {
				m.Timestamp = ts
			}
		case headerRetryCount:
			if v, err := strconv.Atoi(string(h.Value)); err == nil && v >= 0 {
				m.RetryCount = v
			}
		case headerMaxRetries:
			if v, err := strconv.Atoi(string(h.Value)); err == nil && v >= 0 {
				m.MaxRetries = v
			}
		default:
			m.Headers[h.Key] = string(h.Value)
		}
	}
	if m.ID == "" {
		m.ID = string(msg.Key)
	}
	return m
}
