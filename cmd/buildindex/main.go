// Command buildindex embeds a labeled corpus and writes the flat index pair
// the server loads at startup.
package main

import (
	"context"
	"flag"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/dolr-ai/content-moderation-sub000/internal/config"
	"github.com/dolr-ai/content-moderation-sub000/internal/gateway"
	"github.com/dolr-ai/content-moderation-sub000/internal/index"
	"github.com/dolr-ai/content-moderation-sub000/internal/logging"
	"github.com/dolr-ai/content-moderation-sub000/internal/taxonomy"
)

const embedBatchSize = 64

func main() {
	corpusPath := flag.String("corpus", "", "labeled JSONL corpus to index (required)")
	metric := flag.String("metric", string(index.MetricCosine), "distance metric: cosine or l2")
	flag.Parse()

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

	if *corpusPath == "" {
		logger.Fatal("missing -corpus flag")
	}

	if err := build(cfg, logger, *corpusPath, index.Metric(*metric)); err != nil {
		logger.Fatal("build failed", zap.Error(err))
	}
}

func build(cfg *config.Config, logger *zap.Logger, corpusPath string, metric index.Metric) error {
	tax := taxonomy.Default()
	store, err := index.LoadExampleStore(corpusPath, tax)
	if err != nil {
		return err
	}
	logger.Info("corpus loaded", zap.Int("examples", store.Size()))

	embedder := gateway.NewEmbeddingClient(cfg.EmbeddingURL, cfg.EmbeddingModel, cfg.EmbeddingAPIKey,
		cfg.EmbeddingDimensions, gateway.NewPooledClient(cfg.PoolSize, cfg.GatewayTimeout), cfg.RetryPolicy(), logger)

	ctx := context.Background()
	texts := store.Texts()
	vectors := make([][]float32, 0, len(texts))
	start := time.Now()
	for i := 0; i < len(texts); i += embedBatchSize {
		end := i + embedBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch, err := embedder.Embed(ctx, texts[i:end])
		if err != nil {
			return err
		}
		vectors = append(vectors, batch...)
		logger.Info("embedded batch", zap.Int("done", end), zap.Int("total", len(texts)))
	}
	logger.Info("embedding complete", zap.Duration("took", time.Since(start)))

	ix, err := index.BuildFlat(store, vectors, metric)
	if err != nil {
		return err
	}
	if err := ix.Save(cfg.IndexPath, cfg.MetadataPath); err != nil {
		return err
	}

	logger.Info("index written",
		zap.String("index", cfg.IndexPath),
		zap.String("metadata", cfg.MetadataPath),
		zap.Int("size", ix.Size()),
		zap.Int("dimension", ix.Dimension()))
	return nil
}
