// Package cli provides the startup steps shared by cmd/gastos and
// cmd/gastos-worker.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"gastos/internal/adapters"
	"gastos/internal/backend"
	"gastos/internal/cache"
	"gastos/internal/config"
	"gastos/internal/core"
	"gastos/internal/log"
	"gastos/internal/metrics"
	"gastos/internal/services"
)

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// SetupLogger builds the process logger from LOG_LEVEL and LOG_FORMAT and
// makes it the slog default.
func SetupLogger(cfg *config.Config, component string) *log.Logger {
	logger := log.New(log.Config{
		Level:     log.ParseLevel(cfg.LogLevel),
		Format:    cfg.LogFormat,
		Component: component,
		Output:    os.Stdout,
	})
	log.SetDefault(logger)
	return logger
}

// LoadAndValidateConfig loads configuration and validates it.
// Returns the config or exits the process on validation failure.
func LoadAndValidateConfig() *config.Config {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger := log.New(log.DefaultConfig())
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	return cfg
}

// OpenBackend opens the configured repository and optional broker client.
// Exits the process on failure.
func OpenBackend(ctx context.Context, logger *log.Logger, cfg *config.Config) *backend.BackendResult {
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.ErrorContext(ctx, "Invalid backend configuration", "error", err)
		os.Exit(1)
	}
	res, err := backend.NewFactory(logger.WithComponent(log.ComponentBackend).Slog()).CreateBackend(ctx, bcfg)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to initialize backend", "error", err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	return res
}

// Ledger is a loaded tracker plus the pieces that must be stopped with it.
type Ledger struct {
	Tracker *services.Tracker
	Caches  *cache.Manager
}

// Close stops background cache cleanup.
func (l *Ledger) Close() {
	l.Caches.Stop()
}

// BuildLedger wires the tracker over the backend with log and broker
// notifications, metrics and the archive cache, then loads state.
func BuildLedger(ctx context.Context, logger *log.Logger, cfg *config.Config, res *backend.BackendResult, m *metrics.Metrics) (*Ledger, error) {
	notifiers := services.MultiNotifier{services.LogNotifier{Logger: logger.WithComponent(log.ComponentLedger).Slog()}}
	if res.Publisher != nil {
		notifiers = append(notifiers, adapters.NewAMQPNotifier(res.Publisher, logger.WithComponent(log.ComponentAMQP).Slog()))
	}

	month, err := cfg.ActiveMonth()
	if err != nil {
		return nil, err
	}

	archives := cache.NewLRU[core.AccountingMonth, core.MonthlyArchive](cfg.HistoryCacheSize, cfg.HistoryCacheTTL)
	caches := cache.NewManager(logger.WithComponent(log.ComponentCache).Slog())
	caches.Register(archives)

	opts := []services.Option{
		services.WithLogger(logger.WithComponent(log.ComponentLedger).Slog()),
		services.WithNotifier(notifiers),
	}
	if m != nil {
		opts = append(opts, services.WithObserver(m))
	}
	if !month.IsZero() {
		opts = append(opts, services.WithActiveMonth(month))
	}

	tracker := services.NewTracker(res.Repository, archives, opts...)
	if err := tracker.Load(ctx); err != nil {
		return nil, err
	}
	caches.StartCleanup(cacheCleanupInterval(cfg.HistoryCacheTTL))
	return &Ledger{Tracker: tracker, Caches: caches}, nil
}

func cacheCleanupInterval(ttl time.Duration) time.Duration {
	if ttl <= 0 || ttl > 10*time.Minute {
		return 10 * time.Minute
	}
	return ttl
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext(logger *log.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		select {
		case sig := <-sigChan:
			logger.Info("Shutdown signal received", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()
	return ctx, cancel
}
