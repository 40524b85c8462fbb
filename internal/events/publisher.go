package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel"

	"parking-system/internal/logging"
	"parking-system/internal/parking"
)

// Channel is the subset of *amqp.Channel the publisher needs.
type Channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type Publisher struct {
	mu   sync.Mutex
	conn *amqp.Connection
	ch   Channel
	now  func() time.Time
}

// Dial connects to the broker, retrying a few times while it starts, and
// declares the durable ticket queues.
func Dial(ctx context.Context, url string) (*Publisher, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.MaxInterval = 10 * time.Second

	conn, err := backoff.Retry(ctx, func() (*amqp.Connection, error) {
		conn, err := amqp.Dial(url)
		if err != nil {
			logging.Warn(ctx).Err(err).Msg("rabbitmq dial failed")
			return nil, err
		}
		return conn, nil
	},
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(5),
	)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq channel: %w", err)
	}

	p, err := NewPublisher(ch)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	p.conn = conn
	return p, nil
}

func NewPublisher(ch Channel) (*Publisher, error) {
	for _, queue := range []string{QueueCheckedIn, QueueCheckedOut} {
		if _, err := ch.QueueDeclare(
			queue,
			true,  // durable
			false, // autoDelete
			false, // exclusive
			false, // noWait
			nil,
		); err != nil {
			return nil, fmt.Errorf("rabbitmq declare %s: %w", queue, err)
		}
	}
	return &Publisher{ch: ch, now: time.Now}, nil
}

func (p *Publisher) PublishCheckedIn(ctx context.Context, ticket *parking.Ticket) error {
	return p.publish(ctx, QueueCheckedIn, NewTicketEvent("checked_in", ticket, p.now()))
}

func (p *Publisher) PublishCheckedOut(ctx context.Context, ticket *parking.Ticket) error {
	return p.publish(ctx, QueueCheckedOut, NewTicketEvent("checked_out", ticket, p.now()))
}

func (p *Publisher) publish(ctx context.Context, queue string, event TicketEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal ticket event: %w", err)
	}

	headers := amqp.Table{}
	otel.GetTextMapPropagator().Inject(ctx, headerCarrier(headers))

	msg := amqp.Publishing{
		Headers:      headers,
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    event.EventID,
		Timestamp:    event.OccurredAt,
		Type:         event.Type,
		Body:         body,
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// Default exchange, routing key is the queue name.
	if err := p.ch.PublishWithContext(ctx, "", queue, false, false, msg); err != nil {
		return fmt.Errorf("rabbitmq publish %s: %w", queue, err)
	}

	logging.Debug(ctx).
		Str("queue", queue).
		Str("event_id", event.EventID).
		Str("vehicle_reg_number", event.VehicleRegNumber).
		Msg("ticket event published")
	return nil
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	err := p.ch.Close()
	if p.conn != nil {
		if cerr := p.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// headerCarrier lets the OpenTelemetry propagator write into AMQP headers.
type headerCarrier amqp.Table

func (c headerCarrier) Get(key string) string {
	if v, ok := c[key].(string); ok {
		return v
	}
	return ""
}

func (c headerCarrier) Set(key, value string) {
	c[key] = value
}

func (c headerCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}
