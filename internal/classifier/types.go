package classifier

import (
	"fmt"
	"time"

	"github.com/dolr-ai/content-moderation-sub000/internal/index"
	"github.com/dolr-ai/content-moderation-sub000/internal/prompt"
	"github.com/dolr-ai/content-moderation-sub000/internal/taxonomy"
)

// Stage names the pipeline step a request was in when something happened.
type Stage string

const (
	StageStart    Stage = "start"
	StageEmbed    Stage = "embed_query"
	StageRetrieve Stage = "retrieve"
	StageAssemble Stage = "assemble_prompt"
	StageGenerate Stage = "generate"
	StageParse    Stage = "parse_and_validate"
)

// StageError reports which stage aborted the request.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("classification failed at %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Request is one classification call. Constructed per call, not persisted.
type Request struct {
	Text               string
	NumExamples        int
	MaxGeneratedTokens int
}

func (r *Request) applyDefaults() {
	if r.NumExamples <= 0 {
		r.NumExamples = DefaultNumExamples
	}
	if r.NumExamples > MaxNumExamples {
		r.NumExamples = MaxNumExamples
	}
	if r.MaxGeneratedTokens <= 0 {
		r.MaxGeneratedTokens = DefaultMaxTokens
	}
}

// Result is produced once per request and not mutated after construction.
type Result struct {
	Query              string                   `json:"query"`
	Category           taxonomy.Category        `json:"category"`
	Confidence         float64                  `json:"confidence"`
	Explanation        string                   `json:"explanation,omitempty"`
	Outcome            prompt.Outcome           `json:"outcome"`
	RawGeneration      string                   `json:"raw_response"`
	Retrieved          []index.RetrievedExample `json:"similar_examples"`
	StageLatency       map[Stage]time.Duration  `json:"stage_latency"`
	TotalLatency       time.Duration            `json:"total_latency"`
	GenerationAttempts int                      `json:"generation_attempts,omitempty"`
	Timestamp          time.Time                `json:"timestamp"`
}

// finalizeTotal sets the total as the sum of the recorded stage latencies, so
// the per-stage breakdown is always internally consistent.
func (r *Result) finalizeTotal() {
	var total time.Duration
	for _, d := range r.StageLatency {
		total += d
	}
	r.TotalLatency = total
}
