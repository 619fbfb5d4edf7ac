package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	kafka "github.com/segmentio/kafka-go"
)

// RetryConfig bounds publish retries.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      bool
}

// KafkaPublisher keeps one writer per topic.
type KafkaPublisher struct {
	brokers []string
	retry   RetryConfig

	mu      sync.Mutex
	writers map[string]*kafka.Writer
}

func NewKafkaPublisher(brokers []string, retry RetryConfig) *KafkaPublisher {
	if retry.MaxAttempts == 0 {
		retry.MaxAttempts = 5
	}
	if retry.BaseDelay == 0 {
		retry.BaseDelay = 100 * time.Millisecond
	}
	if retry.MaxDelay == 0 {
		retry.MaxDelay = 5 * time.Second
	}
	return &KafkaPublisher{brokers: brokers, retry: retry, writers: make(map[string]*kafka.Writer)}
}

func (p *KafkaPublisher) writer(topic string) *kafka.Writer {
	p.mu.Lock()
	defer p.mu.Unlock()

	w, ok := p.writers[topic]
	if !ok {
		w = &kafka.Writer{
			Addr:                   kafka.TCP(p.brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
		}
		p.writers[topic] = w
	}
	return w
}

// Publish writes one message keyed by key so that a user's events stay ordered.
func (p *KafkaPublisher) Publish(ctx context.Context, topic, key string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	msg := kafka.Message{Key: []byte(key), Value: data, Time: time.Now()}
	return p.publishWithRetry(ctx, p.writer(topic), msg, topic)
}

func (p *KafkaPublisher) publishWithRetry(ctx context.Context, w *kafka.Writer, msg kafka.Message, topic string) error {
	var lastErr error
	for attempt := 0; attempt < p.retry.MaxAttempts; attempt++ {
		err := w.WriteMessages(ctx, msg)
		if err == nil {
			if attempt > 0 {
				log.Info().Str("topic", topic).Int("attempts", attempt+1).Msg("event published after retry")
			}
			return nil
		}
		lastErr = err

		if attempt == p.retry.MaxAttempts-1 {
			break
		}

		delay := p.backoff(attempt)
		log.Warn().Err(err).Str("topic", topic).Int("attempt", attempt+1).Dur("delay", delay).Msg("retrying event publish")

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return fmt.Errorf("publish to %s cancelled: %w", topic, ctx.Err())
		}
	}
	return fmt.Errorf("publish to %s failed after %d attempts: %w", topic, p.retry.MaxAttempts, lastErr)
}

func (p *KafkaPublisher) backoff(attempt int) time.Duration {
	delay := time.Duration(math.Pow(2, float64(attempt))) * p.retry.BaseDelay
	if delay > p.retry.MaxDelay {
		delay = p.retry.MaxDelay
	}
	if p.retry.Jitter {
		jitter := time.Duration(rand.Float64() * float64(delay) * 0.3)
		delay = delay + jitter - time.Duration(float64(delay)*0.15)
	}
	return delay
}

// Close flushes and closes every writer.
func (p *KafkaPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	for topic, w := range p.writers {
		if err := w.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close writer %s: %w", topic, err))
		}
	}
	return errors.Join(errs...)
}
