package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/cinema-seat-inventory/internal/config"
	"github.com/iliyamo/cinema-seat-inventory/internal/database"
	"github.com/iliyamo/cinema-seat-inventory/internal/handler"
	"github.com/iliyamo/cinema-seat-inventory/internal/jobs"
	"github.com/iliyamo/cinema-seat-inventory/internal/ledger"
	"github.com/iliyamo/cinema-seat-inventory/internal/logger"
	"github.com/iliyamo/cinema-seat-inventory/internal/payment"
	"github.com/iliyamo/cinema-seat-inventory/internal/queue"
	"github.com/iliyamo/cinema-seat-inventory/internal/repository"
	"github.com/iliyamo/cinema-seat-inventory/internal/router"
	"github.com/iliyamo/cinema-seat-inventory/internal/service"
)

// redeliverEvery is how often unpublished or unhandled events are retried.
const redeliverEvery = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New(logger.Config{}).Fatal("load config", "error", err)
	}
	log := logger.New(logger.Config{
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
		Service: "seat-inventory",
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- Persistence ----
	var (
		db       *sql.DB
		bookings service.BookingStore
		opts     []ledger.Option
	)
	if cfg.DB.Enabled() {
		db, err = database.Open(ctx, cfg.DB)
		if err != nil {
			log.Fatal("open database", "error", err)
		}
		defer db.Close()
		if err := repository.Migrate(ctx, db); err != nil {
			log.Fatal("migrate database", "error", err)
		}
		bookings = repository.NewBookingRepo(db)
		opts = append(opts, ledger.WithStore(repository.NewInventoryRepo(db)))
	} else {
		log.Warn("DB_HOST not set, inventories and bookings are kept in memory only")
		bookings = repository.NewMemoryBookingRepo()
	}

	inv := ledger.New(opts...)
	n, err := inv.Load(ctx)
	if err != nil {
		log.Fatal("load inventories", "error", err)
	}
	log.Info("inventories loaded", "shows", n)

	// ---- Messaging ----
	gateway := payment.NewSimulated()
	refunds := service.NewRefundWorker(gateway, bookings, log)
	bookingLog := queue.NewBookingLog(cfg.BookingLogDir)

	var (
		events queue.Publisher
		wg     sync.WaitGroup
	)
	if cfg.RabbitMQURL != "" {
		pub := queue.NewAMQPPublisher(cfg.RabbitMQURL, log)
		defer pub.Close()
		outbox := queue.NewOutbox(pub, log)
		events = outbox
		wg.Add(1)
		go func() {
			defer wg.Done()
			outbox.Run(ctx, redeliverEvery)
		}()

		consumer := queue.NewConsumer(cfg.RabbitMQURL, log)
		refunds.Register(consumer)
		bookingLog.Register(consumer)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("consumer stopped", "error", err)
			}
		}()
	} else {
		log.Warn("RABBITMQ_URL not set, booking events are delivered in process")
		broker := queue.NewMemory(log)
		refunds.Register(broker)
		bookingLog.Register(broker)
		events = broker
		wg.Add(1)
		go func() {
			defer wg.Done()
			broker.Run(ctx, redeliverEvery)
		}()
	}

	// ---- Services ----
	holds := service.NewHoldManager(inv, cfg.HoldTTL, log)
	finalizer := service.NewFinalizer(inv, bookings, gateway, events, service.RoleAdminPolicy{}, log)
	sweeper := service.NewSweeper(inv, cfg.SweepInterval, log)

	switch cfg.SweeperMode {
	case config.SweeperAsynq:
		runner, err := jobs.NewRunner(asynq.RedisClientOpt{
			Addr:      cfg.Redis.Address(),
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			TLSConfig: cfg.Redis.TLSConfig(),
		}, instanceName(), cfg.SweepInterval, jobs.NewHandlers(sweeper, log), log)
		if err != nil {
			log.Fatal("configure sweep scheduler", "error", err)
		}
		if err := runner.Start(); err != nil {
			log.Fatal("start sweep scheduler", "error", err)
		}
		defer runner.Shutdown()
	default:
		wg.Add(1)
		go func() {
			defer wg.Done()
			sweeper.Run(ctx)
		}()
	}

	// ---- HTTP ----
	var rdb *redis.Client
	if cfg.RateLimit.Enabled {
		if rdb = config.NewRedisClient(cfg.Redis); rdb == nil {
			log.Warn("redis unreachable, rate limiting disabled", "addr", cfg.Redis.Address())
		} else {
			defer rdb.Close()
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.Validator = handler.NewRequestValidator()
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	router.RegisterRoutes(e, router.Handlers{
		Inventory: handler.NewInventoryHandler(inv, log),
		Holds:     handler.NewHoldHandler(holds, log),
		Bookings:  handler.NewBookingHandler(finalizer, log),
	}, router.Options{
		JWTSecret: cfg.JWTSecret,
		RateLimit: cfg.RateLimit,
		Redis:     rdb,
	})

	go func() {
		addr := ":" + cfg.Port
		log.Info("listening", "addr", addr, "env", cfg.Env, "hold_ttl", cfg.HoldTTL.String(), "sweeper", cfg.SweeperMode)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("http server", "error", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown", "error", err)
	}
	wg.Wait()
}

// instanceName identifies this process among those sharing Redis.
func instanceName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "localhost"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}
