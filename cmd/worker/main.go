package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/relayos/knowledge-core/internal/bootstrap"
	"github.com/relayos/knowledge-core/internal/config"
	"github.com/relayos/knowledge-core/internal/observability/logging"
)

const processTimeout = 5 * time.Minute

func main() {
	cfg := config.Load()
	logger := logging.NewJSONLogger(cfg.ServiceName, cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	metricsServer := newMetricsServer(app)
	go func() {
		logger.Info("metrics_listening", "port", cfg.WorkerMetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics_server_failed", "error", err)
		}
	}()

	logger.Info("worker_subscribed", "subject", cfg.NATSSubject)
	err = app.Queue.SubscribeDocumentIngest(ctx, func(handlerCtx context.Context, documentID string) error {
		return processDocument(handlerCtx, app, documentID)
	})
	if err != nil {
		logger.Error("worker_subscribe_failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("metrics_shutdown_failed", "error", err)
	}
}

func processDocument(ctx context.Context, app *bootstrap.App, documentID string) error {
	app.WorkerMetrics.StartDocument()
	defer app.WorkerMetrics.FinishDocument()

	if doc, err := app.Documents.GetByID(ctx, documentID); err == nil {
		app.WorkerMetrics.ObserveQueueLag(time.Since(doc.UpdatedAt))
	}

	processCtx, cancel := context.WithTimeout(ctx, processTimeout)
	defer cancel()
	return app.Ingestor.ProcessByID(processCtx, documentID)
}

func newMetricsServer(app *bootstrap.App) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", app.Metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return &http.Server{
		Addr:              ":" + app.Config.WorkerMetricsPort,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
