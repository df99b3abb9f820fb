package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dolr-ai/content-moderation-sub000/internal/retry"
)

func fastPolicy(maxAttempts int) retry.Policy {
	return retry.Policy{
		MaxAttempts: maxAttempts,
		BaseDelay:   time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
		Multiplier:  2.0,
	}
}

func embeddingHandler(dim int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req embeddingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		var resp embeddingResponse
		for i := range req.Input {
			vec := make([]float32, dim)
			vec[0] = float32(i + 1)
			resp.Data = append(resp.Data, struct {
				Embedding []float32 `json:"embedding"`
			}{Embedding: vec})
		}
		json.NewEncoder(w).Encode(resp)
	}
}

func TestEmbed_OrderPreserving(t *testing.T) {
	srv := httptest.NewServer(embeddingHandler(4))
	defer srv.Close()

	client := NewEmbeddingClient(srv.URL, "test-model", "", 4, srv.Client(), fastPolicy(3), nil)
	vectors, err := client.Embed(context.Background(), []string{"first", "second", "third"})
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(vectors) != 3 {
		t.Fatalf("Expected 3 vectors, got %d", len(vectors))
	}
	for i, vec := range vectors {
		if vec[0] != float32(i+1) {
			t.Errorf("Vector %d out of order: first component %f", i, vec[0])
		}
	}
}

func TestEmbed_DimensionMismatchIsMalformed(t *testing.T) {
	srv := httptest.NewServer(embeddingHandler(8))
	defer srv.Close()

	client := NewEmbeddingClient(srv.URL, "test-model", "", 4, srv.Client(), fastPolicy(3), nil)
	_, err := client.Embed(context.Background(), []string{"text"})
	if err == nil {
		t.Fatal("Expected error for wrong vector width")
	}
	if KindOf(err) != KindMalformed {
		t.Errorf("Expected malformed kind, got %q", KindOf(err))
	}
}

func TestEmbed_CountMismatchIsMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":[{"embedding":[0.1,0.2]}]}`)
	}))
	defer srv.Close()

	client := NewEmbeddingClient(srv.URL, "test-model", "", 0, srv.Client(), fastPolicy(3), nil)
	_, err := client.Embed(context.Background(), []string{"a", "b"})
	if KindOf(err) != KindMalformed {
		t.Fatalf("Expected malformed kind, got %v", err)
	}
}

func TestEmbed_RetryBudgetRespected(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewEmbeddingClient(srv.URL, "test-model", "", 0, srv.Client(), fastPolicy(3), nil)
	_, err := client.Embed(context.Background(), []string{"text"})
	if err == nil {
		t.Fatal("Expected failure from persistently failing upstream")
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("Expected exactly 3 network calls, got %d", got)
	}
	if AttemptsOf(err) != 3 {
		t.Errorf("Expected attempt telemetry of 3, got %d", AttemptsOf(err))
	}
	if KindOf(err) != KindUnreachable {
		t.Errorf("Expected unreachable kind for 5xx, got %q", KindOf(err))
	}
}

func TestEmbed_RejectedNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := NewEmbeddingClient(srv.URL, "test-model", "", 0, srv.Client(), fastPolicy(5), nil)
	_, err := client.Embed(context.Background(), []string{"text"})
	if KindOf(err) != KindRejected {
		t.Fatalf("Expected rejected kind, got %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("Expected a single call for a 401, got %d", got)
	}
}

func TestEmbed_ThrottlingRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 2 {
			http.Error(w, "slow down", http.StatusTooManyRequests)
			return
		}
		embeddingHandler(2)(w, r)
	}))
	defer srv.Close()

	client := NewEmbeddingClient(srv.URL, "test-model", "", 2, srv.Client(), fastPolicy(3), nil)
	vectors, err := client.Embed(context.Background(), []string{"text"})
	if err != nil {
		t.Fatalf("Expected success after throttling retry, got %v", err)
	}
	if len(vectors) != 1 {
		t.Errorf("Expected 1 vector, got %d", len(vectors))
	}
}

func TestGenerate_ReturnsFirstChoice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req.Temperature != 0 {
			t.Errorf("Expected temperature 0, got %f", req.Temperature)
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" {
			t.Errorf("Expected system+user messages, got %+v", req.Messages)
		}
		fmt.Fprint(w, `{"choices":[{"message":{"content":"Category: spam_or_scams\nConfidence: HIGH"}}]}`)
	}))
	defer srv.Close()

	client := NewGenerationClient(srv.URL, "test-model", "key", srv.Client(), fastPolicy(3), nil)
	result, err := client.Generate(context.Background(), "classify this", "Buy cheap pills now", 64)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if result.Text != "Category: spam_or_scams\nConfidence: HIGH" {
		t.Errorf("Unexpected content: %q", result.Text)
	}
	if result.Attempts != 1 {
		t.Errorf("Expected 1 attempt, got %d", result.Attempts)
	}
}

func TestGenerate_EmptyChoicesIsMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"choices":[]}`)
	}))
	defer srv.Close()

	client := NewGenerationClient(srv.URL, "test-model", "", srv.Client(), fastPolicy(3), nil)
	_, err := client.Generate(context.Background(), "sys", "user", 64)

	var ge *Error
	if !errors.As(err, &ge) {
		t.Fatalf("Expected *Error, got %v", err)
	}
	if ge.Kind != KindMalformed {
		t.Errorf("Expected malformed kind, got %q", ge.Kind)
	}
}

func TestGenerate_UnreachableServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // immediately, so the address refuses connections

	client := NewGenerationClient(srv.URL, "test-model", "", NewPooledClient(2, time.Second), fastPolicy(2), nil)
	_, err := client.Generate(context.Background(), "sys", "user", 64)
	if KindOf(err) != KindUnreachable {
		t.Fatalf("Expected unreachable kind, got %v", err)
	}
	if AttemptsOf(err) != 2 {
		t.Errorf("Expected 2 attempts, got %d", AttemptsOf(err))
	}
}
