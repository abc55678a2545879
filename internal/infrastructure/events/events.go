// Package events hands order lifecycle events to the broker that drives push
// notifications. Delivery is best effort: callers log failures and move on.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"reserva-backend/internal/domain"

	"github.com/segmentio/kafka-go"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

var ErrDisabled = errors.New("events disabled")

type Publisher interface {
	Publish(ctx context.Context, ev domain.OrderEvent) error
	Close() error
}

type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, domain.OrderEvent) error { return nil }
func (NopPublisher) Close() error                                     { return nil }

// ParseBrokers splits a comma separated broker list, dropping blanks.
func ParseBrokers(csv string) []string {
	brokers := []string{}
	for _, b := range strings.Split(csv, ",") {
		b = strings.TrimSpace(b)
		if b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes one JSON message per event keyed by order id, so all
// events of an order land on the same partition in order. A circuit breaker
// stops hammering a broker that keeps failing.
type KafkaPublisher struct {
	writer  messageWriter
	breaker *gobreaker.CircuitBreaker
	timeout time.Duration
	log     *zap.Logger
}

func NewWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
	}
}

func NewKafkaPublisher(brokers []string, topic string, log *zap.Logger) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, ErrDisabled
	}
	return newKafkaPublisher(NewWriter(brokers, topic), log), nil
}

func newKafkaPublisher(w messageWriter, log *zap.Logger) *KafkaPublisher {
	if log == nil {
		log = zap.NewNop()
	}
	st := gobreaker.Settings{
		Name:        "order-events",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}
	return &KafkaPublisher{
		writer:  w,
		breaker: gobreaker.NewCircuitBreaker(st),
		timeout: 5 * time.Second,
		log:     log,
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, ev domain.OrderEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = p.breaker.Execute(func() (interface{}, error) {
		wctx, cancel := context.WithTimeout(ctx, p.timeout)
		defer cancel()
		return nil, p.writer.WriteMessages(wctx, kafka.Message{
			Key:   []byte(ev.OrderID),
			Value: data,
			Time:  ev.At,
		})
	})
	return err
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
