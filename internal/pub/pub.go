// internal/pub/pub.go
package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Elmahrosa/Teos-Bankchain/internal/domain"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	BankchainEventsChannel = "bankchain_events"
)

// EventPublisher emits state changes. Publishing is best-effort: callers log
// the error and carry on, the state change is already committed.
type EventPublisher interface {
	Publish(ctx context.Context, event *domain.Event) error
}

func marshalEvent(event *domain.Event) ([]byte, error) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}
	return payload, nil
}

// RedisPublisher fans events out on a pub/sub channel.
type RedisPublisher struct {
	rdb     redis.UniversalClient
	channel string
	logger  *zap.Logger
}

func NewRedisPublisher(rdb redis.UniversalClient, channel string, logger *zap.Logger) *RedisPublisher {
	if channel == "" {
		channel = BankchainEventsChannel
	}
	return &RedisPublisher{rdb: rdb, channel: channel, logger: logger}
}

func (p *RedisPublisher) Publish(ctx context.Context, event *domain.Event) error {
	payload, err := marshalEvent(event)
	if err != nil {
		return err
	}

	if err := p.rdb.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.logger.Debug("event published",
		zap.String("channel", p.channel),
		zap.String("event_type", string(event.EventType)),
		zap.String("transaction_id", event.TransactionID))
	return nil
}

// KafkaPublisher writes events keyed by transaction id, so every event of
// one transaction lands on the same partition in order.
type KafkaPublisher struct {
	writer *kafka.Writer
	logger *zap.Logger
}

func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
	}
}

func NewKafkaPublisher(writer *kafka.Writer, logger *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{writer: writer, logger: logger}
}

func (p *KafkaPublisher) Publish(ctx context.Context, event *domain.Event) error {
	payload, err := marshalEvent(event)
	if err != nil {
		return err
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.Key()),
		Value: payload,
		Time:  event.Timestamp,
	})
	if err != nil {
		return fmt.Errorf("failed to write event to kafka: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// MultiPublisher delivers to every publisher and joins their errors.
type MultiPublisher []EventPublisher

func (m MultiPublisher) Publish(ctx context.Context, event *domain.Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, *domain.Event) error { return nil }

// RecordingPublisher keeps events in memory, used by tests and local runs.
type RecordingPublisher struct {
	events chan *domain.Event
}

func NewRecordingPublisher(size int) *RecordingPublisher {
	return &RecordingPublisher{events: make(chan *domain.Event, size)}
}

func (p *RecordingPublisher) Publish(_ context.Context, event *domain.Event) error {
	c := *event
	select {
	case p.events <- &c:
		return nil
	default:
		return errors.New("recording publisher full")
	}
}

// Drain returns every event recorded so far.
func (p *RecordingPublisher) Drain() []*domain.Event {
	var out []*domain.Event
	for {
		select {
		case e := <-p.events:
			out = append(out, e)
		default:
			return out
		}
	}
}
