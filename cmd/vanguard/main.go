// Vanguard is the orchestration core of the multi-agent platform: the
// heartbeat scheduler, trigger evaluator, budget ledger, and mission runner
// behind one HTTP API.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/vanguard-ai/vanguard/internal/adapter/dryrun"
	vanhttp "github.com/vanguard-ai/vanguard/internal/adapter/http"
	vannats "github.com/vanguard-ai/vanguard/internal/adapter/nats"
	vanotel "github.com/vanguard-ai/vanguard/internal/adapter/otel"
	"github.com/vanguard-ai/vanguard/internal/adapter/postgres"
	"github.com/vanguard-ai/vanguard/internal/adapter/ristretto"
	"github.com/vanguard-ai/vanguard/internal/adapter/spawn"
	"github.com/vanguard-ai/vanguard/internal/adapter/ws"
	"github.com/vanguard-ai/vanguard/internal/config"
	"github.com/vanguard-ai/vanguard/internal/logger"
	"github.com/vanguard-ai/vanguard/internal/middleware"
	"github.com/vanguard-ai/vanguard/internal/resilience"
	"github.com/vanguard-ai/vanguard/internal/service"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, closeLogger := logger.New(cfg.Logging)
	slog.SetDefault(log)
	defer closeLogger.Close()

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"timezone", cfg.Trigger.Timezone,
	)

	ctx := context.Background()

	shutdownTracer := vanotel.InitTracer(cfg.Logging.Service)
	defer func() { _ = shutdownTracer(ctx) }()

	loc, err := time.LoadLocation(cfg.Trigger.Timezone)
	if err != nil {
		return fmt.Errorf("timezone %q: %w", cfg.Trigger.Timezone, err)
	}

	// --- Infrastructure ---

	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	slog.Info("postgres connected")

	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	slog.Info("migrations applied")

	queue, err := vannats.Connect(ctx, cfg.NATS.URL)
	if err != nil {
		return fmt.Errorf("nats: %w", err)
	}
	defer func() { _ = queue.Drain() }()

	l1, err := ristretto.New(cfg.Cache.MaxSizeMB << 20)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}

	metrics, err := vanotel.NewMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	// --- Services ---

	hub := ws.NewHub()
	store := service.WithAuditFanout(postgres.NewStore(pool), queue)

	notify := service.NewNotificationService(service.BuildNotifiers(cfg.Notify), cfg.Notify.EnabledEvents)
	slog.Info("notifiers configured", "count", notify.NotifierCount())

	budgetSvc := service.NewBudgetService(store, l1, notify, hub, cfg.Budget.Thresholds, loc)
	budgetSvc.SetMetrics(metrics)
	if err := budgetSvc.LoadThresholds(ctx); err != nil {
		return fmt.Errorf("thresholds: %w", err)
	}

	dispatch := service.NewActionDispatcher(store, queue, notify)
	triggerSvc := service.NewTriggerService(store, l1, budgetSvc, dispatch, hub, loc, cfg.Trigger.EventWindow)
	triggerSvc.SetMetrics(metrics)

	reactionSvc := service.NewReactionService(store, dispatch)
	memorySvc := service.NewMemoryService(store)
	recoverySvc := service.NewRecoveryService(store, cfg.Mission)

	heartbeatSvc := service.NewHeartbeatService(store, budgetSvc, triggerSvc, reactionSvc, memorySvc, recoverySvc, hub, cfg.Heartbeat)
	heartbeatSvc.SetMetrics(metrics)

	breaker := resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout)
	exec := spawn.New(queue, breaker, cfg.Mission.SubmitTimeout)
	missionSvc := service.NewMissionService(store, exec, dryrun.New(), budgetSvc, hub, cfg.Mission)
	missionSvc.SetMetrics(metrics)

	// --- HTTP ---

	handlers := vanhttp.NewHandlers(heartbeatSvc, missionSvc, budgetSvc, queue, pool)

	limiter := middleware.NewRateLimiter(10, 30)
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			limiter.Cleanup(15 * time.Minute)
		}
	}()

	r := chi.NewRouter()
	r.Use(vanhttp.CORS(cfg.Server.CORSOrigin))
	r.Use(middleware.RequestID)
	r.Use(vanhttp.Logger)
	r.Use(vanhttp.SecurityHeaders)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(limiter.Handler)
	r.Use(vanotel.HTTPMiddleware(cfg.Logging.Service))

	vanhttp.MountRoutes(r, handlers, hub)

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      120 * time.Second, // synchronous heartbeat and mission runs
		IdleTimeout:       120 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
		}
	}()

	<-done
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}
