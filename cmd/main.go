package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/lanes/internal/adapters/catalog"
	"github.com/okian/lanes/internal/adapters/http/api"
	"github.com/okian/lanes/internal/adapters/http/swagger"
	"github.com/okian/lanes/internal/adapters/mq/worker"
	"github.com/okian/lanes/internal/adapters/notify"
	"github.com/okian/lanes/internal/adapters/repository"
	app "github.com/okian/lanes/internal/app"
	"github.com/okian/lanes/internal/config"
	"github.com/okian/lanes/internal/domain/lane"
	"github.com/okian/lanes/internal/scheduler"
	"github.com/okian/lanes/pkg/logger"
	"github.com/okian/lanes/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
)

// HTTP server timeout constants.
const (
	readTimeout               = 10 * time.Second
	writeTimeout              = 10 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	shutdownTimeout           = 30 * time.Second
	redisPingTimeout          = 5 * time.Second
	systemMetricsInterval     = 10 * time.Second
	serviceMetricsInterval    = 5 * time.Second
	nanosecondsPerMillisecond = 1e6
)

func main() {
	// We collect our own system metrics on the custom registry.
	prometheus.Unregister(collectors.NewGoCollector())
	prometheus.Unregister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		// Logger is not available yet
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	if err := logger.Init(logger.WithFormat(cfg.LogFormat)); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	loggerInstance := logger.Get()

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		loggerInstance.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	if err := run(ctx, cfg, loggerInstance); err != nil {
		loggerInstance.Error(ctx, "lanes exited with error", logger.Error(err))
		os.Exit(1)
	}
}

// run wires every component, serves HTTP until ctx is done and then shuts
// everything down in reverse order.
func run(ctx context.Context, cfg *config.Config, l logger.Logger) error {
	store, err := newStore(ctx, cfg)
	if err != nil {
		return err
	}

	broker := notify.NewBroker(
		notify.WithSubscriberBuffer(cfg.SubscriberBuffer),
		notify.WithBrokerLogger(l.Named("broker")),
	)
	deliverer, closeDeliverer, err := newDeliverer(ctx, cfg, broker, l)
	if err != nil {
		_ = store.Close()
		return err
	}
	defer closeDeliverer()

	notifier := notify.NewNotifier(deliverer, cfg.NotifyQueueSize, cfg.NotifyWorkers, l.Named("notifier"))
	notifier.Start(ctx)

	svc := app.New(
		app.WithLogger(l.Named("service")),
		app.WithStore(store),
		app.WithThresholds(thresholdsOf(cfg)),
		app.WithPublisher(notifier),
		app.WithPresence(broker),
	)
	if err := svc.Start(ctx); err != nil {
		_ = store.Close()
		return fmt.Errorf("start service: %w", err)
	}
	defer svc.Stop()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := notifier.Shutdown(shutdownCtx); err != nil {
			l.Warn(ctx, "notifier shutdown incomplete", logger.Error(err))
		}
	}()

	sched := scheduler.New(svc,
		scheduler.WithInterval(cfg.SchedulerInterval),
		scheduler.WithCapacity(capacityOf(cfg)),
		scheduler.WithPresence(broker, cfg.SyntheticPresence),
		scheduler.WithLogger(l.Named("scheduler")),
	)
	if cfg.SchedulerEnabled {
		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
		defer sched.Stop()
	}

	if cfg.CatalogURL != "" {
		client := catalog.NewClient(cfg.CatalogURL,
			catalog.WithAPIKey(cfg.CatalogAPIKey),
			catalog.WithQuery(cfg.CatalogQuery),
			catalog.WithRateLimit(cfg.CatalogRatePerSecond),
			catalog.WithClientLogger(l.Named("catalog")),
		)
		syncer := catalog.NewSyncer(client, store,
			catalog.WithDripWindow(cfg.CatalogDripWindow),
			catalog.WithSchedule(cfg.CatalogSchedule),
			catalog.WithSyncLogger(l.Named("catalog")),
		)
		if err := syncer.Start(ctx); err != nil {
			return fmt.Errorf("start catalog sync: %w", err)
		}
		defer syncer.Stop()
	}

	// Thresholds, capacity and log level follow the config file.
	err = config.Watch(ctx, func(next *config.Config) {
		applyReload(ctx, l, svc, sched, next)
	}, func(werr error) {
		l.Warn(ctx, "config reload rejected", logger.Error(werr))
	})
	if err != nil {
		l.Warn(ctx, "config watch unavailable", logger.Error(err))
	}

	// Start system metrics updater
	go startSystemMetricsUpdater(ctx)

	// Start service metrics updater
	go startServiceMetricsUpdater(ctx, svc, notifier)

	srv := newServer(cfg, newMux(ctx, cfg, svc), broker)

	serveErr := make(chan error, 1)
	go func() {
		l.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// Wait for shutdown signal or a listener failure
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}
	l.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		l.Error(ctx, "server shutdown failed", logger.Error(err))
	}

	l.Info(ctx, "server stopped")
	return nil
}

// newServer builds the HTTP server. Shutdown does not cancel request
// contexts, so it closes the broker's subscribers to end open event streams.
func newServer(cfg *config.Config, handler http.Handler, broker *notify.Broker) *http.Server {
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	srv.RegisterOnShutdown(broker.Close)
	return srv
}

// newStore opens the configured persistence backend.
func newStore(ctx context.Context, cfg *config.Config) (repository.Store, error) {
	switch cfg.Store {
	case config.StorePostgres:
		db, err := repository.OpenPostgres(ctx, cfg.PostgresDSN, cfg.PostgresMaxOpenConns, cfg.PostgresMaxIdleConns)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		return repository.NewPostgresStore(db), nil
	default:
		return repository.NewMemoryStore(ctx,
			repository.WithShards(cfg.ShardCount),
			repository.WithSnapshotInterval(cfg.SnapshotInterval),
		), nil
	}
}

// newDeliverer returns the broker itself, or a Redis bridge that publishes
// to every instance and relays back into the broker.
func newDeliverer(ctx context.Context, cfg *config.Config, broker *notify.Broker, l logger.Logger) (worker.Deliverer, func(), error) {
	if cfg.RedisAddr == "" {
		return broker, broker.Close, nil
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("ping redis %s: %w", cfg.RedisAddr, err)
	}

	bridge := notify.NewRedisBridge(client, cfg.RedisChannel, broker, l.Named("redis"))
	if err := bridge.Start(ctx); err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	closeFn := func() {
		bridge.Stop()
		broker.Close()
		_ = client.Close()
	}
	return bridge, closeFn, nil
}

// newMux registers the documentation, metrics and business routes.
func newMux(ctx context.Context, cfg *config.Config, svc *app.Service) *http.ServeMux {
	mux := http.NewServeMux()

	// Register API docs under /api-docs
	swagger.Register(ctx, mux)

	opts := []api.Option{api.WithMaxLimit(cfg.MaxLeaderboardLimit)}
	if cfg.ClickRatePerSecond > 0 {
		// Validate has already parsed the proxy list.
		proxies, _ := cfg.TrustedProxyPrefixes()
		limiter := api.NewClientLimiter(cfg.ClickRatePerSecond, cfg.ClickBurst, api.WithTrustedProxies(proxies...))
		opts = append(opts, api.WithClickLimiter(limiter))
	}
	api.NewServer(svc, svc, opts...).Register(ctx, mux)
	return mux
}

func applyReload(ctx context.Context, l logger.Logger, svc *app.Service, sched *scheduler.Scheduler, cfg *config.Config) {
	if err := svc.UpdateThresholds(ctx, thresholdsOf(cfg)); err != nil {
		l.Warn(ctx, "thresholds not reloaded", logger.Error(err))
	}
	if err := sched.SetCapacity(capacityOf(cfg)); err != nil {
		l.Warn(ctx, "capacity not reloaded", logger.Error(err))
	}
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		l.Warn(ctx, "log level not reloaded", logger.Error(err))
	}
}

func thresholdsOf(cfg *config.Config) lane.Thresholds {
	return lane.Thresholds{PromoteToTrending: cfg.PromoteToTrending, PromoteToGraduated: cfg.PromoteToGraduated}
}

func capacityOf(cfg *config.Config) scheduler.Capacity {
	return scheduler.Capacity{MaxTrending: cfg.MaxTrending, MaxGraduated: cfg.MaxGraduated}
}

// startSystemMetricsUpdater starts a background goroutine that updates system metrics.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// startServiceMetricsUpdater starts a background goroutine that updates service metrics.
func startServiceMetricsUpdater(ctx context.Context, svc *app.Service, notifier *notify.Notifier) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateServiceMetrics(ctx, svc, notifier)
		}
	}
}

// updateSystemMetrics updates system-level metrics.
func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())

	if m.NumGC > 0 {
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}

// updateServiceMetrics refreshes lane gauges, totals and the notification backlog.
func updateServiceMetrics(ctx context.Context, svc *app.Service, notifier *notify.Notifier) {
	// Population and GetStats update their gauges themselves.
	_, _ = svc.Population(ctx)
	_ = svc.GetStats()
	metrics.UpdateQueueSize(notifier.Pending(ctx))
}
