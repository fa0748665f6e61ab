package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/cinema-seat-inventory/internal/logger"
)

// Publisher sends a JSON encoded message to a named queue.
type Publisher interface {
	Publish(ctx context.Context, queueName string, msg any) error
}

// HandlerFunc processes one message body.  A returned error schedules the
// message for another delivery.
type HandlerFunc func(ctx context.Context, body []byte) error

// Subscriber registers handlers per queue.
type Subscriber interface {
	Handle(queueName string, fn HandlerFunc)
}

// AMQPPublisher publishes persistent messages to RabbitMQ.  The connection
// is opened on first use and reopened after a failure.
type AMQPPublisher struct {
	url string
	log *logger.Logger

	mu       sync.Mutex
	conn     *amqp.Connection
	ch       *amqp.Channel
	declared map[string]bool
}

func NewAMQPPublisher(url string, log *logger.Logger) *AMQPPublisher {
	return &AMQPPublisher{url: url, log: log, declared: make(map[string]bool)}
}

func (p *AMQPPublisher) Publish(ctx context.Context, queueName string, msg any) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal %s message: %w", queueName, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.ensureChannel(); err != nil {
		p.log.Error("rabbitmq: connect failed", "queue", queueName, "error", err)
		return err
	}
	if !p.declared[queueName] {
		// Durable so messages survive broker restarts.
		if _, err := p.ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
			p.reset()
			p.log.Error("rabbitmq: queue declare failed", "queue", queueName, "error", err)
			return fmt.Errorf("declare %s: %w", queueName, err)
		}
		p.declared[queueName] = true
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := p.ch.PublishWithContext(ctx, "", queueName, false, false, pub); err != nil {
		p.reset()
		p.log.Error("rabbitmq: publish failed", "queue", queueName, "error", err)
		return fmt.Errorf("publish %s: %w", queueName, err)
	}
	return nil
}

// Close shuts the underlying connection down.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil {
		return nil
	}
	err := p.conn.Close()
	p.conn, p.ch = nil, nil
	return err
}

func (p *AMQPPublisher) ensureChannel() error {
	if p.ch != nil && !p.ch.IsClosed() {
		return nil
	}
	p.reset()
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("channel open: %w", err)
	}
	p.conn, p.ch = conn, ch
	return nil
}

func (p *AMQPPublisher) reset() {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
	p.conn, p.ch = nil, nil
	p.declared = make(map[string]bool)
}
