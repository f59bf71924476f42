package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"FilingMonitor/internal/config"
	"FilingMonitor/internal/domain"
	"FilingMonitor/pkg/retry"
)

func newTestAnalyzer(endpoint string) *Analyzer {
	a := NewAnalyzer(config.AnalysisConfig{Endpoint: endpoint, APIKey: "key", Model: "m"}, nil)
	a.retry.Sleep = retry.NoSleep
	return a
}

func TestAnalyzeSendsFilingContext(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer key" {
			t.Errorf("missing bearer token")
		}
		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Model != "m" || len(req.Messages) != 2 || req.Messages[0].Content != defaultSystemPrompt {
			t.Errorf("unexpected request %+v", req)
		}
		user := req.Messages[1].Content
		if !strings.Contains(user, "Filing ID: C1") || !strings.Contains(user, "Date: 2025-01-02") ||
			!strings.Contains(user, "=== Document 1: a.pdf ===") {
			t.Errorf("unexpected user message %q", user)
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"summary"}}]}`))
	}))
	defer srv.Close()

	filing := domain.Filing{ID: "C1", Date: time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC), Applicant: "Acme", Category: "Letter"}
	if err := newTestAnalyzer(srv.URL).Analyze(context.Background(), filing, "=== Document 1: a.pdf ===\ntext"); err != nil {
		t.Fatalf("analyze: %v", err)
	}
}

func TestAnalyzeRetriesServerErrors(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			http.Error(w, "overloaded", http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer srv.Close()

	if err := newTestAnalyzer(srv.URL).Analyze(context.Background(), domain.Filing{ID: "C2"}, "x"); err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if hits.Load() != 2 {
		t.Fatalf("expected one retry, got %d requests", hits.Load())
	}
}

func TestAnalyzeFailures(t *testing.T) {
	t.Parallel()

	if err := NewAnalyzer(config.AnalysisConfig{}, nil).Analyze(context.Background(), domain.Filing{}, ""); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected misconfiguration error, got %v", err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()
	if err := newTestAnalyzer(srv.URL).Analyze(context.Background(), domain.Filing{ID: "C3"}, "x"); err == nil {
		t.Fatalf("expected empty response error")
	}

	unauthorized := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer unauthorized.Close()
	var se *retry.StatusError
	if err := newTestAnalyzer(unauthorized.URL).Analyze(context.Background(), domain.Filing{ID: "C4"}, "x"); !errors.As(err, &se) {
		t.Fatalf("expected status error, got %v", err)
	}
}
