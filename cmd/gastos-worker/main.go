package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"sync"
	"time"

	"gastos/internal/cli"
	"gastos/internal/log"
	"gastos/internal/metrics"
	"gastos/internal/services"
	"gastos/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg, log.ComponentWorker)
	logger.Info("Starting gastos-worker")

	ctx, cancel := cli.SignalContext(logger)
	defer cancel()

	res := cli.OpenBackend(ctx, logger, cfg)
	defer func() {
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup failed", "error", err)
		}
	}()

	m := metrics.New()
	ledger, err := cli.BuildLedger(ctx, logger, cfg, res, m)
	if err != nil {
		logger.Error("Failed to load ledger", "error", err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	defer ledger.Close()

	slogger := logger.WithComponent(log.ComponentWorker).Slog()
	scanner := worker.NewOverdueScanner(ledger.Tracker, services.LogNotifier{Logger: slogger}, m, slogger)
	scan := func(ctx context.Context) {
		if _, err := scanner.Scan(ctx); err != nil {
			logger.ErrorContext(ctx, "Overdue scan failed", "error", err)
		}
	}

	scheduler, err := worker.NewScheduler(cfg.OverdueSchedule, scan, slogger)
	if err != nil {
		logger.Error("Invalid overdue schedule", "error", err, "schedule", cfg.OverdueSchedule)
		os.Exit(1)
	}

	// Catch up on anything that became overdue while the worker was down.
	scan(ctx)
	scheduler.Start(ctx)

	var wg sync.WaitGroup
	if res.Publisher != nil {
		consumer := worker.NewEventConsumer(res.Publisher, nil, m, logger.WithComponent(log.ComponentAMQP).Slog())
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := consumer.Run(ctx); err != nil {
				logger.Error("Event consumption stopped", "error", err)
			}
		}()
	} else {
		logger.Info("Skipping event consumption - no AMQP_URL provided")
	}

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", m.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server error", "error", err, "port", cfg.Port)
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down worker...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	scheduler.Stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Metrics server shutdown error", "error", err)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		logger.Info("Worker shutdown complete")
	case <-shutdownCtx.Done():
		logger.Warn("Shutdown timeout reached")
	}
}
