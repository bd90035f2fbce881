// extractiond wires the extraction pipeline for a headless deployment: it
// drains the shared inbox, runs the worker until the backlog is empty, and
// keeps re-running on a fixed cadence until interrupted. The host mobile app
// drives the same components through its lifecycle hooks instead.
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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/espressomap/espressomap/internal/auth"
	"github.com/espressomap/espressomap/internal/common"
	"github.com/espressomap/espressomap/internal/extraction"
	"github.com/espressomap/espressomap/internal/importer"
	"github.com/espressomap/espressomap/internal/queue"
	"github.com/espressomap/espressomap/internal/remote"
	"github.com/espressomap/espressomap/internal/worker"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open queue store", "error", err)
		os.Exit(1)
	}

	records, err := remote.Open(ctx, remote.Config{
		DSN:             cfg.Remote.DatabaseURL,
		MaxConns:        10,
		MaxConnLifetime: 30 * time.Minute,
		MaxConnIdleTime: 5 * time.Minute,
		DialTimeout:     cfg.Remote.DialTimeout,
	}, logger)
	if err != nil {
		logger.Error("failed to open record store", "error", err)
		os.Exit(1)
	}
	defer records.Close()

	if err := records.Ping(ctx, 5*time.Second); err != nil {
		logger.Error("record store ping failed", "error", err)
		os.Exit(1)
	}

	tokens := auth.NewBearerProvider(cfg.Extraction.AuthToken, logger)
	client := extraction.NewHTTPClient(cfg.Extraction.URL, tokens, cfg.Extraction.Timeout, logger)

	registry := prometheus.NewRegistry()
	metrics := worker.NewMetrics(registry)
	w := worker.New(store, client, records,
		worker.WithLogger(logger),
		worker.WithInterJobDelay(cfg.Worker.InterJobDelay),
		worker.WithMetrics(metrics),
	)

	go serveMetrics(cfg.Metrics.Addr, registry, logger)

	var imp *importer.Importer
	if cfg.Queue.SharedDir != "" {
		imp = importer.New(importer.NewFilesystemInbox(cfg.Queue.SharedDir, logger), store, logger)
	}

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		runOnce(ctx, imp, w, logger)
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			return
		case <-ticker.C:
		}
	}
}

// storeWithImages is what both queue backends provide beyond the Store
// interface; the importer needs the blob destination.
type storeWithImages interface {
	queue.Store
	ImagePath(fileName string) string
}

func openStore(ctx context.Context, cfg *common.Config, logger *slog.Logger) (storeWithImages, error) {
	if cfg.Queue.Backend == "sqlite" {
		return queue.NewSQLiteStore(ctx, cfg.Queue.SQLitePath, cfg.Queue.DataDir, cfg.Queue.SharedDir, logger)
	}
	return queue.NewFileStore(cfg.Queue.DataDir, cfg.Queue.SharedDir, logger)
}

func runOnce(ctx context.Context, imp *importer.Importer, w *worker.Worker, logger *slog.Logger) {
	if imp != nil {
		if _, err := imp.Run(ctx); err != nil {
			logger.Error("inbox import failed", "error", err)
		}
	}
	if err := w.ProcessPendingExtractions(ctx); err != nil &&
		!errors.Is(err, context.Canceled) && !errors.Is(err, worker.ErrAlreadyRunning) {
		logger.Error("worker pass failed", "error", err)
	}
}

func serveMetrics(addr string, registry *prometheus.Registry, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	logger.Info("metrics listening", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics server stopped", "error", err)
	}
}
