package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/dolr-ai/content-moderation-sub000/internal/classifier"
	"github.com/dolr-ai/content-moderation-sub000/internal/gateway"
	"github.com/dolr-ai/content-moderation-sub000/internal/index"
	"github.com/dolr-ai/content-moderation-sub000/internal/prompt"
	"github.com/dolr-ai/content-moderation-sub000/internal/taxonomy"
)

type classifyRequest struct {
	Text               string `json:"text"`
	NumExamples        int    `json:"num_examples,omitempty"`
	MaxGeneratedTokens int    `json:"max_generated_tokens,omitempty"`
}

type classifyResponse struct {
	Query           string                   `json:"query"`
	Category        taxonomy.Category        `json:"category"`
	Confidence      float64                  `json:"confidence"`
	Outcome         prompt.Outcome           `json:"outcome"`
	RawResponse     string                   `json:"raw_response"`
	SimilarExamples []index.RetrievedExample `json:"similar_examples"`
	LatencyMS       map[string]float64       `json:"latency_ms"`
}

type errorResponse struct {
	Error string `json:"error"`
	Stage string `json:"stage,omitempty"`
}

type healthResponse struct {
	Status      string `json:"status"`
	IndexLoaded bool   `json:"index_loaded"`
	IndexSize   int    `json:"index_size"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func (s *Service) handleClassify(w http.ResponseWriter, r *http.Request) {
	var req classifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}
	if req.Text == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "text is required"})
		return
	}

	result, err := s.clf.Classify(r.Context(), classifier.Request{
		Text:               req.Text,
		NumExamples:        req.NumExamples,
		MaxGeneratedTokens: req.MaxGeneratedTokens,
	})
	if err != nil {
		status, body := classifyErrorBody(err)
		writeJSON(w, status, body)
		return
	}

	latencies := make(map[string]float64, len(result.StageLatency)+1)
	for stage, d := range result.StageLatency {
		latencies[string(stage)] = float64(d) / float64(time.Millisecond)
	}
	latencies["total"] = float64(result.TotalLatency) / float64(time.Millisecond)

	writeJSON(w, http.StatusOK, classifyResponse{
		Query:           result.Query,
		Category:        result.Category,
		Confidence:      result.Confidence,
		Outcome:         result.Outcome,
		RawResponse:     result.RawGeneration,
		SimilarExamples: result.Retrieved,
		LatencyMS:       latencies,
	})
}

// classifyErrorBody maps a pipeline failure onto a status code and a
// structured body carrying the stage tag.
func classifyErrorBody(err error) (int, errorResponse) {
	var se *classifier.StageError
	if !errors.As(err, &se) {
		return http.StatusInternalServerError, errorResponse{Error: err.Error()}
	}

	body := errorResponse{Error: se.Error(), Stage: string(se.Stage)}
	switch {
	case se.Stage == classifier.StageStart:
		return http.StatusBadRequest, body
	case errors.Is(err, index.ErrEmptyIndex):
		return http.StatusServiceUnavailable, body
	case gateway.KindOf(err) == gateway.KindRejected:
		return http.StatusBadGateway, body
	default:
		return http.StatusBadGateway, body
	}
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	loaded, size := s.IndexLoaded()
	status := "ok"
	code := http.StatusOK
	if !loaded {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, healthResponse{Status: status, IndexLoaded: loaded, IndexSize: size})
}

func (s *Service) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.clf.GetMetrics())
}

func (s *Service) handleReload(w http.ResponseWriter, r *http.Request) {
	if err := s.Reload(); err != nil {
		s.logger.Error("index reload failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	_, size := s.IndexLoaded()
	writeJSON(w, http.StatusOK, map[string]any{"status": "reloaded", "index_size": size})
}
