package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ssujit905/Inventory-sub001/internal/config"
	"github.com/ssujit905/Inventory-sub001/internal/httpapi"
	"github.com/ssujit905/Inventory-sub001/internal/logger"
	"github.com/ssujit905/Inventory-sub001/internal/metrics"
	"github.com/ssujit905/Inventory-sub001/internal/notify"
	"github.com/ssujit905/Inventory-sub001/internal/service"
	"github.com/ssujit905/Inventory-sub001/internal/store"
	"github.com/ssujit905/Inventory-sub001/internal/store/memory"
	pgstore "github.com/ssujit905/Inventory-sub001/internal/store/postgres"
)

// changeBus is both ends of the change feed.
type changeBus interface {
	notify.Publisher
	notify.Source
}

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logger.New(logger.Options{ServiceName: "inventory-ledger"}).Error(context.Background(), "load config", err)
		os.Exit(1)
	}

	log := logger.New(logger.Options{
		ServiceName: "inventory-ledger",
		Level:       logger.ParseLevel(cfg.LogLevel),
		Format:      cfg.LogFormat,
	})
	if err := cfg.ValidateSecurity(); err != nil {
		log.Error(context.Background(), "invalid security configuration", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	closers := make([]func() error, 0, 2)

	repo, closeRepo, err := buildStore(ctx, cfg, log)
	if err != nil {
		log.Error(ctx, "postgres unavailable and DATABASE_URL is set; refusing to start with in-memory fallback", err)
		os.Exit(1)
	}
	if closeRepo != nil {
		closers = append(closers, closeRepo)
	}

	bus, closeBus := buildBus(ctx, cfg, log)
	if closeBus != nil {
		closers = append(closers, closeBus)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	ledgerMetrics := metrics.NewLedgerMetrics(registry)

	svc := service.New(repo, bus, log, ledgerMetrics)
	auth := httpapi.NewAuthManager(cfg.AuthSecret, cfg.AccessTokenTTL(), repo)
	api := httpapi.New(svc, auth, cfg.AllowedOrigin, log, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	watchCtx, stopWatch := context.WithCancel(context.Background())
	defer stopWatch()
	watcher := notify.NewWatcher(bus, cfg.PollInterval, log)
	sub, err := watcher.Watch(watchCtx, logSummary(svc, log))
	if err != nil {
		log.Warn(ctx, "change watcher disabled: "+err.Error())
	}

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info(context.Background(), "ledger backend listening on "+cfg.Address())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(context.Background(), "server error", err)
			os.Exit(1)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error(shutdownCtx, "shutdown error", err)
	}
	if sub != nil {
		sub.Unsubscribe()
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Error(shutdownCtx, "close error", err)
		}
	}

	log.Info(context.Background(), "server stopped")
}

// buildStore picks Postgres when DATABASE_URL is set and the seeded memory
// store otherwise. A configured but unreachable database is an error.
func buildStore(ctx context.Context, cfg config.Config, log *logger.Logger) (store.Repository, func() error, error) {
	if cfg.DatabaseURL == "" {
		log.Info(ctx, "repository: in-memory")
		return memory.NewSeeded(), nil, nil
	}

	pg, err := pgstore.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	if err := pg.Migrate(ctx); err != nil {
		_ = pg.Close()
		return nil, nil, err
	}
	log.Info(ctx, "repository: postgres")
	return pg, pg.Close, nil
}

// buildBus prefers Redis pub/sub and falls back to an in-process bus when
// Redis is not configured or not reachable.
func buildBus(ctx context.Context, cfg config.Config, log *logger.Logger) (changeBus, func() error) {
	if cfg.RedisAddr == "" {
		log.Info(ctx, "change feed: in-process")
		return notify.NewLocal(), nil
	}

	redisBus := notify.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.NotifyChannel)
	if err := redisBus.Ping(ctx); err != nil {
		log.Warn(ctx, "redis unavailable, using in-process change feed: "+err.Error())
		_ = redisBus.Close()
		return notify.NewLocal(), nil
	}
	log.Info(ctx, "change feed: redis")
	return redisBus, redisBus.Close
}

// logSummary recomputes the profit report whenever the ledger changes and
// logs the headline numbers.
func logSummary(svc *service.Service, log *logger.Logger) func(context.Context, string) {
	return func(ctx context.Context, reason string) {
		report, err := svc.ProfitReport(ctx)
		if err != nil {
			log.Error(ctx, "refresh profit summary", err)
			return
		}
		log.Zerolog(ctx).Info().
			Str("reason", reason).
			Int("sales", report.Summary.Sales).
			Str("revenue", report.Summary.Revenue.StringFixed(2)).
			Str("profit_loss", report.Summary.ProfitLoss.StringFixed(2)).
			Msg("ledger summary refreshed")
	}
}
