package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kirillkom/job-application-tracker/internal/core/domain"
	"github.com/kirillkom/job-application-tracker/internal/infrastructure/resilience"
)

func TestGenerateJSONRequestsJSONFormat(t *testing.T) {
	var payload map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"response":"  {\"is_application\": true}  "}`))
	}))
	defer server.Close()

	gen := NewGenerator(New(server.URL+"/", "llama3"))
	out, err := gen.GenerateJSON(context.Background(), "classify this")
	if err != nil {
		t.Fatalf("GenerateJSON() error = %v", err)
	}
	if out != `{"is_application": true}` {
		t.Fatalf("unexpected output %q", out)
	}
	if payload["model"] != "llama3" || payload["format"] != "json" || payload["stream"] != false {
		t.Fatalf("unexpected payload: %v", payload)
	}
	if payload["prompt"] != "classify this" {
		t.Fatalf("expected prompt to be forwarded, got %v", payload["prompt"])
	}
}

func TestGenerateJSONIncludesHTTPBodyInError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer server.Close()

	_, err := NewGenerator(New(server.URL, "missing")).GenerateJSON(context.Background(), "p")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "model not found") {
		t.Fatalf("expected response body in error, got %v", err)
	}
	if domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("404 must not be temporary")
	}
}

func TestGenerateJSONRetriesUnavailableModel(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "loading model", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"response":"{}"}`))
	}))
	defer server.Close()

	exec := resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     time.Millisecond,
	})
	client := NewWithOptions(server.URL, "llama3", Options{ResilienceExecutor: exec})

	out, err := NewGenerator(client).GenerateJSON(context.Background(), "p")
	if err != nil {
		t.Fatalf("GenerateJSON() error = %v", err)
	}
	if out != "{}" || calls.Load() != 2 {
		t.Fatalf("expected success on second call, got %q after %d calls", out, calls.Load())
	}
}

func TestGenerateJSONMarksExhaustedRetriesTemporary(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "busy", http.StatusTooManyRequests)
	}))
	defer server.Close()

	exec := resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    2,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     time.Millisecond,
	})
	client := NewWithOptions(server.URL, "llama3", Options{ResilienceExecutor: exec})

	_, err := NewGenerator(client).GenerateJSON(context.Background(), "p")
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary error, got %v", err)
	}
}
