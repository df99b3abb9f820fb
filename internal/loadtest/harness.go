package loadtest

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/dolr-ai/content-moderation-sub000/internal/taxonomy"
)

// CorpusItem is one load-test input. Label is the optional ground truth;
// empty means unlabeled.
type CorpusItem struct {
	Text  string            `json:"text"`
	Label taxonomy.Category `json:"category,omitempty"`
}

// Prediction is what one classify call produced.
type Prediction struct {
	Category taxonomy.Category
	// ParseDegraded marks fallback outcomes: successes for throughput,
	// tracked separately for accuracy interpretation.
	ParseDegraded bool
}

// ClassifyFunc performs one classification. The harness never interprets the
// transport; the CLI wires this to the serving HTTP surface.
type ClassifyFunc func(ctx context.Context, item CorpusItem) (Prediction, error)

// Harness drives classify calls concurrently against a corpus.
type Harness struct {
	classify ClassifyFunc
	corpus   []CorpusItem
	logger   *zap.Logger
	// maxRate optionally caps request starts per second across all workers;
	// 0 means unlimited.
	maxRate rate.Limit
}

// New creates a harness over the given corpus.
func New(classify ClassifyFunc, corpus []CorpusItem, maxRate float64, logger *zap.Logger) (*Harness, error) {
	if classify == nil {
		return nil, errors.New("loadtest: classify func is required")
	}
	if len(corpus) == 0 {
		return nil, errors.New("loadtest: corpus is empty")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Harness{
		classify: classify,
		corpus:   corpus,
		logger:   logger,
		maxRate:  rate.Limit(maxRate),
	}, nil
}

// Run drives classify calls at the given concurrency for duration. Over
// rampUp, active workers increase linearly from 1 to concurrency via
// staggered starts; a weighted semaphore caps in-flight calls throughout, so
// resource usage is bounded by the level, not the corpus. When duration
// elapses, in-flight calls finish but no new ones start.
func (h *Harness) Run(ctx context.Context, concurrency int, duration, rampUp time.Duration) (*Metrics, error) {
	if concurrency < 1 {
		return nil, errors.New("loadtest: concurrency must be at least 1")
	}
	if duration <= 0 {
		return nil, errors.New("loadtest: duration must be positive")
	}

	runCtx, cancel := context.WithTimeout(ctx, duration)
	defer cancel()

	var limiter *rate.Limiter
	if h.maxRate > 0 {
		limiter = rate.NewLimiter(h.maxRate, concurrency)
	}

	sem := semaphore.NewWeighted(int64(concurrency))
	col := newCollector()
	var mu sync.Mutex
	var wg sync.WaitGroup

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		// Staggered starts produce the linear ramp: worker w joins at
		// rampUp * w / concurrency.
		var delay time.Duration
		if rampUp > 0 && concurrency > 1 {
			delay = time.Duration(int64(rampUp) * int64(w) / int64(concurrency))
		}

		wg.Add(1)
		go func(delay time.Duration, rng *rand.Rand) {
			defer wg.Done()

			select {
			case <-runCtx.Done():
				return
			case <-time.After(delay):
			}

			for {
				if runCtx.Err() != nil {
					return
				}
				if limiter != nil {
					if err := limiter.Wait(runCtx); err != nil {
						return
					}
				}
				if err := sem.Acquire(runCtx, 1); err != nil {
					return
				}

				item := h.corpus[rng.Intn(len(h.corpus))]
				reqStart := time.Now()
				// The request itself runs on the parent context: in-flight
				// calls are allowed to finish past the run deadline.
				pred, err := h.classify(ctx, item)
				latency := time.Since(reqStart)
				sem.Release(1)

				mu.Lock()
				col.observe(latency, err, pred.ParseDegraded, item.Label, pred.Category)
				mu.Unlock()
			}
		}(delay, rand.New(rand.NewSource(rand.Int63())))
	}

	wg.Wait()
	elapsed := time.Since(start)

	metrics := col.finalize(concurrency, elapsed)
	h.logger.Info("load test level complete",
		zap.Int("concurrency", concurrency),
		zap.Int("requests", metrics.TotalRequests),
		zap.Float64("rps", metrics.RequestsPerSecond),
		zap.Float64("error_rate", metrics.ErrorRate))
	return metrics, nil
}

// RunScaling repeats Run once per requested concurrency level, in order,
// pausing cooldown between levels so transient backlog drains. The returned
// slice has one Metrics per level, in the order requested.
func (h *Harness) RunScaling(ctx context.Context, levels []int, durationPerLevel, rampUp, cooldown time.Duration) ([]*Metrics, error) {
	if len(levels) == 0 {
		return nil, errors.New("loadtest: no concurrency levels given")
	}

	results := make([]*Metrics, 0, len(levels))
	for i, level := range levels {
		if i > 0 && cooldown > 0 {
			select {
			case <-ctx.Done():
				return results, ctx.Err()
			case <-time.After(cooldown):
			}
		}

		m, err := h.Run(ctx, level, durationPerLevel, rampUp)
		if err != nil {
			return results, err
		}
		results = append(results, m)
	}
	return results, nil
}
