// Package kafkahook publishes Tally operation events to Kafka.
//
// Each event is written as a JSON envelope keyed by app ID, so all events of
// one ledger land on the same partition in sequence order. Publishing goes
// through a circuit breaker: once the broker keeps failing, hooks fail fast
// with gobreaker.ErrOpenState instead of stalling every operation until the
// plugin timeout.
package kafkahook

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sony/gobreaker"

	"github.com/xraph/tally/event"
	"github.com/xraph/tally/plugin"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin            = (*Extension)(nil)
	_ plugin.OnShutdown        = (*Extension)(nil)
	_ plugin.OnBalanceToppedUp = (*Extension)(nil)
	_ plugin.OnUsageRecorded   = (*Extension)(nil)
	_ plugin.OnPriceUpdated    = (*Extension)(nil)
	_ plugin.OnFundsWithdrawn  = (*Extension)(nil)
)

// DefaultTopic is used when no topic is configured.
const DefaultTopic = "tally.events"

// HeaderEventType carries the event name on every message.
const HeaderEventType = "event-type"

// MessageWriter is the subset of *kafka.Writer used by the extension.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Envelope is the JSON value of every published message.
type Envelope struct {
	Type      string          `json:"type"`
	ID        string          `json:"id"`
	AppID     string          `json:"app_id"`
	Sequence  uint64          `json:"sequence"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// Extension publishes ledger events through a MessageWriter.
type Extension struct {
	writer  MessageWriter
	breaker *gobreaker.CircuitBreaker
	logger  *slog.Logger

	breakerName      string
	failureThreshold uint32
	openTimeout      time.Duration
}

// NewWriter returns a kafka-go writer for the given brokers and topic.
// Messages are hashed by key so one app's events stay ordered.
func NewWriter(brokers []string, topic string) *kafka.Writer {
	if topic == "" {
		topic = DefaultTopic
	}
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 10 * time.Millisecond,
	}
}

// New creates an Extension writing to w.
func New(w MessageWriter, opts ...Option) *Extension {
	e := &Extension{
		writer:           w,
		logger:           slog.Default(),
		breakerName:      "tally-kafka",
		failureThreshold: 5,
		openTimeout:      30 * time.Second,
	}
	for _, opt := range opts {
		opt(e)
	}

	e.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        e.breakerName,
		MaxRequests: 1,
		Timeout:     e.openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= e.failureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			e.logger.Warn("kafka_hook: circuit breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "kafka-hook" }

// BreakerState reports the circuit breaker state.
func (e *Extension) BreakerState() gobreaker.State { return e.breaker.State() }

// OnShutdown implements plugin.OnShutdown. It flushes and closes the writer.
func (e *Extension) OnShutdown(_ context.Context) error {
	return e.writer.Close()
}

// OnBalanceToppedUp implements plugin.OnBalanceToppedUp.
func (e *Extension) OnBalanceToppedUp(ctx context.Context, evt event.BalanceToppedUp) error {
	return e.publish(ctx, evt)
}

// OnUsageRecorded implements plugin.OnUsageRecorded.
func (e *Extension) OnUsageRecorded(ctx context.Context, evt event.UsageRecorded) error {
	return e.publish(ctx, evt)
}

// OnPriceUpdated implements plugin.OnPriceUpdated.
func (e *Extension) OnPriceUpdated(ctx context.Context, evt event.PriceUpdated) error {
	return e.publish(ctx, evt)
}

// OnFundsWithdrawn implements plugin.OnFundsWithdrawn.
func (e *Extension) OnFundsWithdrawn(ctx context.Context, evt event.FundsWithdrawn) error {
	return e.publish(ctx, evt)
}

func (e *Extension) publish(ctx context.Context, evt event.Event) error {
	msg, err := Encode(evt)
	if err != nil {
		return err
	}

	_, err = e.breaker.Execute(func() (interface{}, error) {
		return nil, e.writer.WriteMessages(ctx, msg)
	})
	if err != nil {
		return fmt.Errorf("kafka_hook: publish %s: %w", evt.Name(), err)
	}
	return nil
}

// Encode builds the Kafka message for evt.
func Encode(evt event.Event) (kafka.Message, error) {
	data, err := json.Marshal(evt)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("kafka_hook: encode %s: %w", evt.Name(), err)
	}

	meta := evt.Metadata()
	value, err := json.Marshal(Envelope{
		Type:      evt.Name(),
		ID:        meta.ID.String(),
		AppID:     meta.AppID,
		Sequence:  meta.Sequence,
		Timestamp: meta.Timestamp,
		Data:      data,
	})
	if err != nil {
		return kafka.Message{}, fmt.Errorf("kafka_hook: encode envelope: %w", err)
	}

	return kafka.Message{
		Key:   []byte(meta.AppID),
		Value: value,
		Time:  meta.Timestamp,
		Headers: []kafka.Header{
			{Key: HeaderEventType, Value: []byte(evt.Name())},
		},
	}, nil
}
