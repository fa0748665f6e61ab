package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/iliyamo/cinema-seat-inventory/internal/logger"
)

// MaxDeliveries is how often a message is handed to its handler before it
// is parked.
const MaxDeliveries = 10

type pending struct {
	queue    string
	body     []byte
	attempts int
}

// Memory is an in-process broker.  Publish delivers synchronously to the
// handler registered for the queue and keeps a copy of every message.
// Messages whose handler fails stay pending until Redeliver succeeds or
// MaxDeliveries is reached.  It backs broker-less runs and tests.
type Memory struct {
	log *logger.Logger

	mu       sync.Mutex
	handlers map[string]HandlerFunc
	messages map[string][][]byte
	pending  []pending
	parked   map[string][][]byte
}

func NewMemory(log *logger.Logger) *Memory {
	return &Memory{
		log:      log,
		handlers: make(map[string]HandlerFunc),
		messages: make(map[string][][]byte),
		parked:   make(map[string][][]byte),
	}
}

func (m *Memory) Handle(queueName string, fn HandlerFunc) {
	m.mu.Lock()
	m.handlers[queueName] = fn
	m.mu.Unlock()
}

func (m *Memory) Publish(ctx context.Context, queueName string, msg any) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal %s message: %w", queueName, err)
	}
	m.mu.Lock()
	m.messages[queueName] = append(m.messages[queueName], body)
	m.mu.Unlock()

	m.deliver(ctx, pending{queue: queueName, body: body})
	return nil
}

// Redeliver retries every pending message once and returns how many were
// handled successfully.
func (m *Memory) Redeliver(ctx context.Context) int {
	m.mu.Lock()
	batch := m.pending
	m.pending = nil
	m.mu.Unlock()

	ok := 0
	for _, p := range batch {
		if m.deliver(ctx, p) {
			ok++
		}
	}
	return ok
}

// Run calls Redeliver every interval until ctx is cancelled.
func (m *Memory) Run(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := m.Redeliver(ctx); n > 0 {
				m.log.Info("memory queue: redelivered messages", "count", n)
			}
		}
	}
}

func (m *Memory) deliver(ctx context.Context, p pending) bool {
	m.mu.Lock()
	fn := m.handlers[p.queue]
	m.mu.Unlock()
	if fn == nil {
		return true
	}

	err := fn(ctx, p.body)
	if err == nil {
		return true
	}
	p.attempts++
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.attempts >= MaxDeliveries {
		m.parked[p.queue] = append(m.parked[p.queue], p.body)
		m.log.Error("memory queue: message parked", "queue", p.queue, "attempts", p.attempts, "error", err)
		return false
	}
	m.pending = append(m.pending, p)
	m.log.Warn("memory queue: handle message failed, will retry", "queue", p.queue, "attempts", p.attempts, "error", err)
	return false
}

// Messages returns the raw bodies published to queueName so far.
func (m *Memory) Messages(queueName string) [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]byte(nil), m.messages[queueName]...)
}

// Pending is the number of messages waiting for redelivery.
func (m *Memory) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// Parked returns the bodies of queueName that exhausted MaxDeliveries.
func (m *Memory) Parked(queueName string) [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]byte(nil), m.parked[queueName]...)
}
