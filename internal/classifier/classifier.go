// Package classifier orchestrates one classification request through the
// staged pipeline: embed the query, retrieve similar labeled examples,
// assemble the few-shot prompt, generate, then parse and validate the answer.
package classifier

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dolr-ai/content-moderation-sub000/internal/gateway"
	"github.com/dolr-ai/content-moderation-sub000/internal/index"
	"github.com/dolr-ai/content-moderation-sub000/internal/prompt"
	"github.com/dolr-ai/content-moderation-sub000/internal/taxonomy"
)

// Embedder turns a query text into its embedding vector.
type Embedder interface {
	EmbedOne(ctx context.Context, text string) ([]float32, error)
}

// Generator runs one chat completion against the assembled prompt.
type Generator interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string, maxTokens int) (*gateway.GenerationResult, error)
}

const (
	DefaultNumExamples = 5
	MaxNumExamples     = 10
	DefaultMaxTokens   = 128
)

// Config holds the orchestrator's collaborators and policies.
type Config struct {
	Embedder  Embedder
	Retriever index.Searcher
	Generator Generator
	Taxonomy  *taxonomy.Taxonomy

	// MaxTextLength caps query and example text in prompts.
	MaxTextLength int
	// ConfidenceThreshold enables the downgrade-to-clean policy when > 0.
	ConfidenceThreshold float64

	Logger *zap.Logger
}

// Classifier is the classify(text) -> result entry point. It is safe for
// concurrent use; all mutable state is the metrics counters.
type Classifier struct {
	embedder  Embedder
	retriever index.Searcher
	generator Generator
	tax       *taxonomy.Taxonomy
	assembler *prompt.Assembler
	parser    *prompt.Parser
	system    string
	threshold float64
	logger    *zap.Logger

	mu      sync.Mutex
	metrics Metrics
}

// Metrics is a snapshot of the orchestrator's running counters.
type Metrics struct {
	Requests            int           `json:"requests"`
	Failures            int           `json:"failures"`
	FailuresByStage     map[Stage]int `json:"failures_by_stage,omitempty"`
	ParseFallbacks      int           `json:"parse_fallbacks"`
	ThresholdDowngrades int           `json:"threshold_downgrades"`
}

// New creates a Classifier. Embedder, Retriever, Generator are required;
// Taxonomy defaults to the standard six-member set.
func New(cfg Config) (*Classifier, error) {
	if cfg.Embedder == nil || cfg.Retriever == nil || cfg.Generator == nil {
		return nil, fmt.Errorf("classifier: embedder, retriever and generator are required")
	}
	if cfg.Taxonomy == nil {
		cfg.Taxonomy = taxonomy.Default()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Classifier{
		embedder:  cfg.Embedder,
		retriever: cfg.Retriever,
		generator: cfg.Generator,
		tax:       cfg.Taxonomy,
		assembler: prompt.NewAssembler(cfg.MaxTextLength),
		parser:    prompt.NewParser(cfg.Taxonomy),
		system:    prompt.SystemPrompt(cfg.Taxonomy),
		threshold: cfg.ConfidenceThreshold,
		logger:    cfg.Logger,
	}, nil
}

// Classify runs one request through the pipeline. Failures in any stage
// before parsing abort the request with a StageError; parsing never fails,
// it degrades to the fallback category with a tagged outcome.
func (c *Classifier) Classify(ctx context.Context, req Request) (*Result, error) {
	req.applyDefaults()
	query := strings.TrimSpace(req.Text)
	if query == "" {
		return nil, &StageError{Stage: StageStart, Err: fmt.Errorf("cannot classify empty text")}
	}

	result := &Result{
		Query:        query,
		StageLatency: make(map[Stage]time.Duration, 5),
		Timestamp:    time.Now().UTC(),
	}

	// EmbedQuery
	start := time.Now()
	vector, err := c.embedder.EmbedOne(ctx, query)
	result.StageLatency[StageEmbed] = time.Since(start)
	if err != nil {
		return nil, c.fail(result, StageEmbed, err)
	}

	// Retrieve. No example-free generation fallback on failure: a clear error
	// beats a silently degraded classification.
	start = time.Now()
	retrieved, err := c.retriever.Search(ctx, vector, req.NumExamples)
	result.StageLatency[StageRetrieve] = time.Since(start)
	if err != nil {
		return nil, c.fail(result, StageRetrieve, err)
	}
	result.Retrieved = retrieved

	// AssemblePrompt
	start = time.Now()
	userPrompt := c.assembler.Assemble(query, retrieved)
	result.StageLatency[StageAssemble] = time.Since(start)

	// Generate. The gateway's own retry has already run by the time an error
	// reaches here.
	start = time.Now()
	gen, err := c.generator.Generate(ctx, c.system, userPrompt, req.MaxGeneratedTokens)
	result.StageLatency[StageGenerate] = time.Since(start)
	if err != nil {
		return nil, c.fail(result, StageGenerate, err)
	}
	result.RawGeneration = gen.Text
	result.GenerationAttempts = gen.Attempts

	// ParseAndValidate
	start = time.Now()
	parsed := c.parser.ApplyThreshold(c.parser.Parse(gen.Text), c.threshold)
	result.StageLatency[StageParse] = time.Since(start)

	result.Category = parsed.Category
	result.Confidence = parsed.Confidence
	result.Explanation = parsed.Explanation
	result.Outcome = parsed.Outcome
	result.finalizeTotal()

	c.record(parsed.Outcome)
	switch parsed.Outcome {
	case prompt.OutcomeNoMatch, prompt.OutcomeInvalidCategory:
		c.logger.Warn("generation did not map to a category, falling back",
			zap.String("outcome", string(parsed.Outcome)),
			zap.String("raw", prompt.Truncate(gen.Text, 200)))
	case prompt.OutcomeThresholdDowngrade:
		c.logger.Info("prediction downgraded below confidence threshold",
			zap.Float64("confidence", parsed.Confidence),
			zap.Float64("threshold", c.threshold))
	}

	return result, nil
}

// fail finalizes latencies, bumps counters and wraps err with its stage tag.
func (c *Classifier) fail(result *Result, stage Stage, err error) error {
	result.finalizeTotal()
	c.mu.Lock()
	c.metrics.Requests++
	c.metrics.Failures++
	if c.metrics.FailuresByStage == nil {
		c.metrics.FailuresByStage = make(map[Stage]int)
	}
	c.metrics.FailuresByStage[stage]++
	c.mu.Unlock()

	c.logger.Warn("classification failed",
		zap.String("stage", string(stage)),
		zap.String("error_kind", string(gateway.KindOf(err))),
		zap.Int("attempts", gateway.AttemptsOf(err)),
		zap.Error(err))
	return &StageError{Stage: stage, Err: err}
}

func (c *Classifier) record(outcome prompt.Outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metrics.Requests++
	switch outcome {
	case prompt.OutcomeNoMatch, prompt.OutcomeInvalidCategory:
		c.metrics.ParseFallbacks++
	case prompt.OutcomeThresholdDowngrade:
		c.metrics.ThresholdDowngrades++
	}
}

// GetMetrics returns a snapshot of the running counters.
func (c *Classifier) GetMetrics() Metrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap := c.metrics
	if c.metrics.FailuresByStage != nil {
		snap.FailuresByStage = make(map[Stage]int, len(c.metrics.FailuresByStage))
		for stage, n := range c.metrics.FailuresByStage {
			snap.FailuresByStage[stage] = n
		}
	}
	return snap
}
