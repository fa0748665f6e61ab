// Package jobs schedules inventory maintenance through asynq so the sweep
// cadence can be driven from Redis instead of an in-process ticker.
package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/iliyamo/cinema-seat-inventory/internal/logger"
)

const (
	TypeInventorySweep = "inventory:sweep"

	sweepQueuePrefix = "inventory-sweep"
)

// SweepQueue names the queue one process sweeps through.  Each process
// sweeps only its own ledger, so every process needs its own queue: a
// shared queue would let one worker take another's task, and Unique would
// drop the duplicates the other schedulers enqueue.
func SweepQueue(instance string) string {
	if instance == "" {
		return sweepQueuePrefix
	}
	return sweepQueuePrefix + ":" + instance
}

type SweepPayload struct {
	Trigger string `json:"trigger"`
}

// NewSweepTask builds the periodic sweep task for queue.  Unique keeps a
// slow sweep from piling duplicates up in the queue.
func NewSweepTask(trigger, queue string, every time.Duration) (*asynq.Task, error) {
	b, err := json.Marshal(SweepPayload{Trigger: trigger})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeInventorySweep, b,
		asynq.Queue(queue),
		asynq.MaxRetry(0),
		asynq.Timeout(every),
		asynq.Unique(every),
	), nil
}

// Sweeper is the part of service.Sweeper the task handler needs.
type Sweeper interface {
	SweepOnce(ctx context.Context) (int, error)
}

type Handlers struct {
	sweeper Sweeper
	log     *logger.Logger
}

func NewHandlers(s Sweeper, log *logger.Logger) *Handlers {
	return &Handlers{sweeper: s, log: log}
}

func (h *Handlers) HandleInventorySweep(ctx context.Context, t *asynq.Task) error {
	var p SweepPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("unmarshal %s payload: %v: %w", TypeInventorySweep, err, asynq.SkipRetry)
	}
	n, err := h.sweeper.SweepOnce(ctx)
	if err != nil {
		return fmt.Errorf("sweep: %w", err)
	}
	h.log.Debug("sweep task done", "trigger", p.Trigger, "released", n)
	return nil
}

func NewServeMux(h *Handlers) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeInventorySweep, h.HandleInventorySweep)
	return mux
}
