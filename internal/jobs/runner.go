package jobs

import (
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/iliyamo/cinema-seat-inventory/internal/logger"
)

// Runner owns the asynq worker server and the scheduler that enqueues the
// periodic sweep.  Ledger state lives in this process, so the worker must
// run next to the ledger it sweeps: each Runner schedules into and serves
// only SweepQueue(instance), and instance must differ between processes
// sharing one Redis.
type Runner struct {
	srv   *asynq.Server
	sched *asynq.Scheduler
	mux   *asynq.ServeMux
	log   *logger.Logger
}

func NewRunner(redisOpt asynq.RedisClientOpt, instance string, every time.Duration, h *Handlers, log *logger.Logger) (*Runner, error) {
	queue := SweepQueue(instance)
	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: 1,
		Queues:      map[string]int{queue: 1},
		Logger:      asynqLogger{log},
	})
	sched := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{Logger: asynqLogger{log}})

	task, err := NewSweepTask("scheduler", queue, every)
	if err != nil {
		return nil, err
	}
	if _, err := sched.Register(CronSpec(every), task); err != nil {
		return nil, fmt.Errorf("register sweep schedule: %w", err)
	}
	log.Info("sweep queue configured", "queue", queue)
	return &Runner{srv: srv, sched: sched, mux: NewServeMux(h), log: log}, nil
}

// CronSpec turns an interval into a scheduler spec.
func CronSpec(every time.Duration) string {
	if every < time.Second {
		every = time.Second
	}
	return "@every " + every.Truncate(time.Second).String()
}

func (r *Runner) Start() error {
	if err := r.srv.Start(r.mux); err != nil {
		return fmt.Errorf("start asynq server: %w", err)
	}
	if err := r.sched.Start(); err != nil {
		r.srv.Shutdown()
		return fmt.Errorf("start asynq scheduler: %w", err)
	}
	r.log.Info("asynq sweep scheduler started")
	return nil
}

func (r *Runner) Shutdown() {
	r.sched.Shutdown()
	r.srv.Shutdown()
}

// asynqLogger adapts the service logger to asynq.Logger.
type asynqLogger struct{ l *logger.Logger }

func (a asynqLogger) Debug(args ...interface{}) { a.l.Debug(fmt.Sprint(args...), "component", "asynq") }
func (a asynqLogger) Info(args ...interface{})  { a.l.Info(fmt.Sprint(args...), "component", "asynq") }
func (a asynqLogger) Warn(args ...interface{})  { a.l.Warn(fmt.Sprint(args...), "component", "asynq") }
func (a asynqLogger) Error(args ...interface{}) { a.l.Error(fmt.Sprint(args...), "component", "asynq") }
func (a asynqLogger) Fatal(args ...interface{}) { a.l.Fatal(fmt.Sprint(args...), "component", "asynq") }
