// Package main is the entry point of the live-room engagement server.
// It wires the socket gateway to the interaction service, the batching
// dispatcher, the Redis relay and the background sweeps, and shuts them down
// in order on SIGINT or SIGTERM.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/nmxmxh/ovasabi-live/database/connect"
	"github.com/nmxmxh/ovasabi-live/internal/config"
	"github.com/nmxmxh/ovasabi-live/internal/repository/engagement"
	"github.com/nmxmxh/ovasabi-live/internal/server"
	"github.com/nmxmxh/ovasabi-live/internal/service/broadcast"
	"github.com/nmxmxh/ovasabi-live/internal/service/dispatch"
	"github.com/nmxmxh/ovasabi-live/internal/service/expiry"
	"github.com/nmxmxh/ovasabi-live/internal/service/interaction"
	"github.com/nmxmxh/ovasabi-live/internal/service/ratelimit"
	"github.com/nmxmxh/ovasabi-live/internal/service/scheduler"
	"github.com/nmxmxh/ovasabi-live/internal/service/settlement"
	"github.com/nmxmxh/ovasabi-live/pkg/health"
	"github.com/nmxmxh/ovasabi-live/pkg/logger"
	"github.com/nmxmxh/ovasabi-live/pkg/redis"
	"github.com/nmxmxh/ovasabi-live/pkg/tracing"
	"github.com/nmxmxh/ovasabi-live/pkg/ws"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	shutdownTimeout     = 15 * time.Second
	healthCheckTimeout  = 2 * time.Second
	healthCheckInterval = 10 * time.Second
	jobTimeout          = 30 * time.Second
	// time for the final batch flush to come back through Pub/Sub
	relayDrain          = 500 * time.Millisecond
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	// container health check: exits 0 when the running server reports SERVING
	if len(os.Args) > 1 && os.Args[1] == "healthcheck" {
		os.Exit(checkHealth(cfg.GRPCHealthAddr))
	}

	log := logger.New(logger.Config{
		Environment: cfg.AppEnv,
		LogLevel:    cfg.LogLevel,
		ServiceName: cfg.AppName,
	})
	defer func() {
		_ = log.Sync()
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	server.WaitForShutdown(cancel, log)

	if err := run(ctx, cfg, log); err != nil {
		log.Error("Server exited with error", zap.Error(err))
		_ = log.Sync()
		os.Exit(1)
	}
	log.Info("Server stopped")
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	tracingCfg := tracing.DefaultConfig()
	tracingCfg.Enabled = cfg.TracingEnabled
	tracingCfg.ServiceName = cfg.AppName
	tracingCfg.ServiceVersion = cfg.AppVersion
	tracingCfg.Environment = cfg.AppEnv
	tracingCfg.Endpoint = cfg.OTLPEndpoint
	tp, _, err := tracing.Init(ctx, tracingCfg)
	if err != nil {
		log.Warn("Failed to initialize tracing, continuing without it", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracing.Shutdown(shutdownCtx, tp); err != nil {
			log.Warn("Failed to flush traces", zap.Error(err))
		}
	}()

	redisClient, err := redis.NewClient(ctx, redis.Config{
		Host:           cfg.RedisHost,
		Port:           cfg.RedisPort,
		Password:       cfg.RedisPassword,
		DB:             cfg.RedisDB,
		PoolSize:       cfg.RedisPoolSize,
		MinIdleConns:   cfg.RedisMinIdleConns,
		MaxRetries:     cfg.RedisMaxRetries,
		ConnectTimeout: cfg.RedisConnectWait,
	}, log)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	checker := health.NewHealthChecker(healthCheckTimeout)
	checker.Register(health.NewPingCheck("redis", health.PingFunc(redisClient.IsAvailable)))

	repo, closeRepo, err := openRepository(ctx, cfg, log, checker)
	if err != nil {
		return err
	}
	defer closeRepo()

	level, err := dispatch.ParseLevel(cfg.DefaultActivityLevel)
	if err != nil {
		return err
	}

	rooms := ws.NewManager(log)
	var (
		relay     *broadcast.Relay
		publisher broadcast.Publisher
	)
	if cfg.BroadcastRelay {
		relay = broadcast.NewRelay(redisClient, rooms, log)
		publisher = relay
	} else {
		publisher = broadcast.NewLocal(rooms, log)
	}
	delivery := dispatch.NewDelivery(publisher, redisClient, log)
	dispatcher := dispatch.New(delivery.Deliver, log,
		dispatch.WithDefaultLevel(level),
		dispatch.WithMaxAge(cfg.DispatchMaxAge),
	)

	results := interaction.NewResultsCache(redisClient, repo, log)
	finalizer := expiry.New(repo, publisher, redis.NewPriorityQueue(redisClient), log,
		expiry.WithHook(results.OnFinalized),
		expiry.WithSweepLimit(cfg.ExpirySweepLimit),
	)

	var gifts settlement.Publisher = settlement.Nop{}
	var consumer *settlement.Consumer
	if cfg.KafkaEnabled() {
		kafkaPub := settlement.NewKafka(cfg.KafkaBrokers, cfg.KafkaGiftTopic, log)
		defer kafkaPub.Close()
		gifts = kafkaPub
		consumer = settlement.NewConsumer(cfg.KafkaBrokers, cfg.KafkaSettledTopic, cfg.KafkaGroupID, repo, log)
		defer consumer.Close()
	}

	svc := interaction.NewService(interaction.Deps{
		Repo:       repo,
		Limiter:    ratelimit.NewRedis(redisClient, log),
		Dispatcher: dispatcher,
		Publisher:  publisher,
		Finalizer:  finalizer,
		Results:    results,
		Settlement: gifts,
	}, log)

	jobs := scheduler.New(log, jobTimeout)
	locker := redis.NewLocker(redisClient)
	if err := jobs.Every("poll-expiry-sweep", cfg.ExpirySweepInterval,
		scheduler.Locked(locker, expiry.LockName, redis.TTLLock, finalizer.Sweep)); err != nil {
		return err
	}
	if err := jobs.Every("dispatcher-sweep", cfg.DispatchSweepInterval, sweepDispatcher(dispatcher, log)); err != nil {
		return err
	}
	jobs.Start()

	gw := server.NewGateway(rooms, svc, cfg.WSAllowedOrigins, cfg.WSSendBuffer, log)
	reporter := health.NewReporter(cfg.AppName, checker, log)

	g, gctx := errgroup.WithContext(ctx)
	// the relay outlives gctx so that batches flushed on shutdown still reach local sockets
	relayCtx, stopRelay := context.WithCancel(context.WithoutCancel(ctx))
	defer stopRelay()
	if relay != nil {
		g.Go(func() error { return relay.Run(relayCtx) })
	}
	g.Go(func() error {
		return server.ServeHTTP(gctx, cfg.HTTPAddr, server.NewMux(gw, cfg.AppName, checker, log), log)
	})
	g.Go(func() error { return server.ServeHealthGRPC(gctx, cfg.GRPCHealthAddr, reporter, log) })
	g.Go(func() error {
		reporter.Run(gctx, healthCheckInterval)
		return nil
	})
	if consumer != nil {
		g.Go(func() error { return consumer.Run(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		return shutdown(jobs, dispatcher, stopRelay, rooms, log)
	})

	log.Info("Engagement server started",
		zap.String("http_addr", cfg.HTTPAddr),
		zap.String("grpc_health_addr", cfg.GRPCHealthAddr),
		zap.String("default_activity_level", string(level)),
		zap.Bool("kafka", cfg.KafkaEnabled()),
		zap.Bool("broadcast_relay", relay != nil),
	)
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// sweepDispatcher reports how many stale buffered events each sweep dropped.
func sweepDispatcher(d *dispatch.Dispatcher, log *zap.Logger) scheduler.Job {
	return func(context.Context) error {
		if n := d.Sweep(time.Now()); n > 0 {
			log.Info("Discarded stale batched events", zap.Int("events", n))
		}
		return nil
	}
}

// shutdown stops the sweeps, flushes pending batches to the still-open sockets
// and then closes them.
func shutdown(jobs *scheduler.Scheduler, dispatcher *dispatch.Dispatcher, stopRelay context.CancelFunc, rooms *ws.Manager, log *zap.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	if err := jobs.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop scheduler: %w", err))
	}
	if err := dispatcher.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("flush batches: %w", err))
	}
	time.Sleep(relayDrain)
	stopRelay()
	rooms.CloseAll()
	log.Info("Shutdown complete")
	return errors.Join(errs...)
}

func openRepository(ctx context.Context, cfg *config.Config, log *zap.Logger, checker *health.HealthChecker) (engagement.Repository, func(), error) {
	if cfg.DatabaseURL == "" {
		log.Warn("DATABASE_URL not set, using the in-memory engagement store")
		return engagement.NewMemoryStore(), func() {}, nil
	}
	db, err := connect.Postgres(ctx, log, cfg.DatabaseURL, connect.Options{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
		ConnectTimeout:  cfg.DBConnectTimeout,
	})
	if err != nil {
		return nil, nil, err
	}
	store := engagement.NewPostgresStore(db, log)
	if err := store.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	checker.Register(health.NewPingCheck("postgres", store))
	return store, func() { _ = db.Close() }, nil
}

func checkHealth(addr string) int {
	if strings.HasPrefix(addr, ":") {
		addr = "127.0.0.1" + addr
	}
	client, err := health.NewHealthCheckClient(addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "healthcheck: %v\n", err)
		return 1
	}
	defer client.Close()
	if err := client.WaitForReady(context.Background(), 3*time.Second); err != nil {
		fmt.Fprintf(os.Stderr, "healthcheck: %v\n", err)
		return 1
	}
	return 0
}
