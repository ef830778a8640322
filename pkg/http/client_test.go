package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHttpClient_Retry(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("success"))
	}))
	defer server.Close()

	client := NewClient("test", server.URL, 5*time.Second, nil, RetryConfig{Base: 10 * time.Millisecond, Cap: 50 * time.Millisecond, MaxRetries: 3}, DefaultBreakerConfig)
	_, err := client.Get(context.Background(), "/", nil)
	if err != nil {
		t.Fatalf("Request failed after retries: %v", err)
	}

	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts)
	}
}

func TestHttpClient_CircuitBreaker(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient("test", server.URL, 5*time.Second, nil,
		RetryConfig{Base: time.Millisecond, Cap: time.Millisecond, MaxRetries: 0},
		BreakerConfig{FailureThreshold: 5, FailureWindow: 10, RecoveryTimeout: time.Minute})

	for i := 0; i < 6; i++ {
		_, _ = client.Get(context.Background(), "/", nil)
	}

	if client.State() != "open" {
		t.Fatalf("expected breaker to be open after 6 consecutive failures, got %s", client.State())
	}

	startAttempts := attempts
	_, err := client.Get(context.Background(), "/", nil)
	if err == nil {
		t.Error("expected error due to open circuit breaker, got nil")
	}
	if attempts != startAttempts {
		t.Errorf("server was reached even though circuit should be open, attempts: %d", attempts)
	}
}
