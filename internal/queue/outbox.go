package queue

import (
	"context"
	"sync"
	"time"

	"github.com/iliyamo/cinema-seat-inventory/internal/logger"
)

type outgoing struct {
	queue string
	msg   any
}

// Outbox wraps a Publisher and keeps every message the broker refused, in
// order, until Flush manages to publish it.
type Outbox struct {
	next Publisher
	log  *logger.Logger

	mu      sync.Mutex
	backlog []outgoing
}

func NewOutbox(next Publisher, log *logger.Logger) *Outbox {
	return &Outbox{next: next, log: log}
}

// Publish never loses msg: a failed publish is queued for Flush and
// reported as success.  While older messages are waiting, new ones queue
// behind them.
func (o *Outbox) Publish(ctx context.Context, queueName string, msg any) error {
	o.mu.Lock()
	waiting := len(o.backlog) > 0
	if waiting {
		o.backlog = append(o.backlog, outgoing{queue: queueName, msg: msg})
	}
	o.mu.Unlock()
	if waiting {
		o.Flush(ctx)
		return nil
	}

	if err := o.next.Publish(ctx, queueName, msg); err != nil {
		o.mu.Lock()
		o.backlog = append(o.backlog, outgoing{queue: queueName, msg: msg})
		o.mu.Unlock()
		o.log.Warn("outbox: publish failed, kept for retry", "queue", queueName, "error", err)
	}
	return nil
}

// Flush publishes the backlog in order and stops at the first failure.
// It returns how many messages went out.
func (o *Outbox) Flush(ctx context.Context) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	sent := 0
	for len(o.backlog) > 0 {
		m := o.backlog[0]
		if err := o.next.Publish(ctx, m.queue, m.msg); err != nil {
			break
		}
		o.backlog = o.backlog[1:]
		sent++
	}
	return sent
}

// Backlog is the number of messages waiting to be published.
func (o *Outbox) Backlog() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.backlog)
}

// Run flushes every interval until ctx is cancelled.
func (o *Outbox) Run(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := o.Flush(ctx); n > 0 {
				o.log.Info("outbox: flushed messages", "count", n)
			}
		}
	}
}
