package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/cinema-seat-inventory/internal/logger"
)

// DefaultRetryDelay is how long a failed message waits in its retry queue
// before RabbitMQ dead-letters it back to the work queue.
const DefaultRetryDelay = 30 * time.Second

const attemptsHeader = "x-attempts"

// Consumer dispatches deliveries from RabbitMQ queues to registered
// handlers.  Run keeps a reconnect loop alive until its context ends.
//
// A message whose handler fails is republished to "<queue>.retry", a
// queue with a message TTL that dead-letters back to "<queue>".  After
// MaxDeliveries attempts it goes to "<queue>.parked" instead.
type Consumer struct {
	url        string
	log        *logger.Logger
	retryDelay time.Duration

	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

func NewConsumer(url string, log *logger.Logger) *Consumer {
	return &Consumer{url: url, log: log, retryDelay: DefaultRetryDelay, handlers: make(map[string]HandlerFunc)}
}

func retryQueue(name string) string  { return name + ".retry" }
func parkedQueue(name string) string { return name + ".parked" }

// retryArgs declares a retry queue whose messages return to name after
// delay.
func retryArgs(name string, delay time.Duration) amqp.Table {
	return amqp.Table{
		"x-message-ttl":             delay.Milliseconds(),
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": name,
	}
}

// attempts reads the delivery count stamped by redeliver.  Header integers
// come back from the broker as int32 or int64.
func attempts(h amqp.Table) int {
	switch v := h[attemptsHeader].(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	}
	return 0
}

// Handle registers fn for queueName.  Handlers must be registered before
// Run is called.
func (c *Consumer) Handle(queueName string, fn HandlerFunc) {
	c.mu.Lock()
	c.handlers[queueName] = fn
	c.mu.Unlock()
}

// Run connects to the broker and consumes every registered queue.  It only
// returns once ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(c.url)
		if err != nil {
			c.log.Warn("consumer: failed to dial broker", "error", err, "retry_in", backoff.String())
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.consumeLoop(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.log.Warn("consumer: consume loop ended, reconnecting", "error", err)
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func (c *Consumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		c.log.Warn("consumer: set QoS failed", "error", err)
	}

	c.mu.RLock()
	handlers := make(map[string]HandlerFunc, len(c.handlers))
	for name, fn := range c.handlers {
		handlers[name] = fn
	}
	c.mu.RUnlock()

	type delivery struct {
		queue string
		d     amqp.Delivery
	}
	merged := make(chan delivery)
	done := make(chan struct{})
	defer close(done)
	var wg sync.WaitGroup
	for name := range handlers {
		if _, err := ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
			return fmt.Errorf("queue declare %s: %w", name, err)
		}
		if _, err := ch.QueueDeclare(retryQueue(name), true, false, false, false, retryArgs(name, c.retryDelay)); err != nil {
			return fmt.Errorf("queue declare %s: %w", retryQueue(name), err)
		}
		if _, err := ch.QueueDeclare(parkedQueue(name), true, false, false, false, nil); err != nil {
			return fmt.Errorf("queue declare %s: %w", parkedQueue(name), err)
		}
		msgs, err := ch.Consume(name, "", false, false, false, false, nil)
		if err != nil {
			return fmt.Errorf("queue consume %s: %w", name, err)
		}
		wg.Add(1)
		go func(name string, msgs <-chan amqp.Delivery) {
			defer wg.Done()
			for d := range msgs {
				select {
				case merged <- delivery{queue: name, d: d}:
				case <-done:
					return
				}
			}
		}(name, msgs)
	}
	go func() {
		wg.Wait()
		close(merged)
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-merged:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := handlers[m.queue](ctx, m.d.Body); err != nil {
				c.log.Warn("consumer: handle message failed", "queue", m.queue, "attempts", attempts(m.d.Headers)+1, "error", err)
				if rerr := c.redeliver(ctx, ch, m.queue, m.d); rerr != nil {
					// Back onto the work queue; the broker keeps it.
					c.log.Error("consumer: schedule retry failed", "queue", m.queue, "error", rerr)
					_ = m.d.Nack(false, true)
					return rerr
				}
			}
			_ = m.d.Ack(false)
		}
	}
}

// redeliver republishes d to the retry queue of name, or parks it once it
// has used up MaxDeliveries.
func (c *Consumer) redeliver(ctx context.Context, ch *amqp.Channel, name string, d amqp.Delivery) error {
	n := attempts(d.Headers) + 1
	target := retryQueue(name)
	if n >= MaxDeliveries {
		target = parkedQueue(name)
		c.log.Error("consumer: message parked", "queue", name, "attempts", n)
	}
	headers := amqp.Table{}
	for k, v := range d.Headers {
		headers[k] = v
	}
	headers[attemptsHeader] = int64(n)
	return ch.PublishWithContext(ctx, "", target, false, false, amqp.Publishing{
		ContentType:  d.ContentType,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Headers:      headers,
		Body:         d.Body,
	})
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
