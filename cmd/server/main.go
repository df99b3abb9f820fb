// Command server runs the classification HTTP service.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/dolr-ai/content-moderation-sub000/internal/classifier"
	"github.com/dolr-ai/content-moderation-sub000/internal/config"
	"github.com/dolr-ai/content-moderation-sub000/internal/gateway"
	"github.com/dolr-ai/content-moderation-sub000/internal/index"
	"github.com/dolr-ai/content-moderation-sub000/internal/logging"
	"github.com/dolr-ai/content-moderation-sub000/internal/server"
	"github.com/dolr-ai/content-moderation-sub000/internal/taxonomy"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		os.Stderr.WriteString("logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	tax := taxonomy.Default()
	policy := cfg.RetryPolicy()
	pooled := gateway.NewPooledClient(cfg.PoolSize, cfg.GatewayTimeout)

	embedder := gateway.NewEmbeddingClient(cfg.EmbeddingURL, cfg.EmbeddingModel, cfg.EmbeddingAPIKey,
		cfg.EmbeddingDimensions, pooled, policy, logger)
	generator := gateway.NewGenerationClient(cfg.GenerationURL, cfg.GenerationModel, cfg.GenerationAPIKey,
		pooled, policy, logger)

	svc := server.NewService(tax, logger, cfg.IndexPath, cfg.MetadataPath)

	if cfg.WarehouseDSN != "" {
		opts, err := index.ParseWarehouseOptions(cfg.WarehouseOptions)
		if err != nil {
			return err
		}
		pool, err := pgxpool.New(context.Background(), cfg.WarehouseDSN)
		if err != nil {
			return err
		}
		defer pool.Close()

		remote, err := index.NewWarehouseIndex(pool, cfg.WarehouseTable, cfg.EmbeddingDimensions, opts, policy, logger)
		if err != nil {
			return err
		}
		svc.UseRemote(remote)
		logger.Info("using warehouse-backed index",
			zap.String("table", cfg.WarehouseTable),
			zap.String("metric", string(opts.Metric)),
			zap.Int("probes", opts.Probes))
	} else if err := svc.Reload(); err != nil {
		// Serve degraded until a build + reload; /health reports it.
		logger.Warn("no index loaded at startup", zap.Error(err))
	}

	clf, err := classifier.New(classifier.Config{
		Embedder:            embedder,
		Retriever:           svc,
		Generator:           generator,
		Taxonomy:            tax,
		MaxTextLength:       cfg.MaxTextLength,
		ConfidenceThreshold: cfg.ConfidenceThreshold,
		Logger:              logger,
	})
	if err != nil {
		return err
	}
	svc.Wire(clf)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           svc.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("serving", zap.String("port", cfg.Port))
		errCh <- httpServer.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case sig := <-stop:
		logger.Info("shutting down", zap.String("signal", sig.String()))
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	}
}
