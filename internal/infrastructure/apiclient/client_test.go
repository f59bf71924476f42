package apiclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"FilingMonitor/internal/domain"
	"FilingMonitor/internal/scanner"
	"FilingMonitor/pkg/retry"
)

const base = "https://apps.example.ca/REGDOCS"

func decode(t *testing.T, raw string) map[string]any {
	t.Helper()
	var obj map[string]any
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return obj
}

func TestParseItemAliases(t *testing.T) {
	t.Parallel()

	item := decode(t, `{
		"NodeID": 4521,
		"OTCreateDate": "2025-02-03T10:15:00",
		"Company": "Trans Mountain",
		"SubType": "Letter",
		"ProceedingNumber": "OF-Fac-001",
		"DocumentTitle": "Response to IR",
		"Region": "BC",
		"Nested": {"ignored": true},
		"Documents": [
			{"DocumentId": "88", "Url": "/REGDOCS/File/Download/88", "FileName": "ir.pdf"},
			"https://files.example.ca/b.pdf",
			{"size": 12}
		]
	}`)

	f, ok := ParseItem(item, base)
	if !ok {
		t.Fatalf("expected item to parse")
	}
	if f.ID != "4521" || f.Applicant != "Trans Mountain" || f.Category != "Letter" {
		t.Fatalf("unexpected core fields: %+v", f)
	}
	if f.Proceeding != "OF-Fac-001" || f.Title != "Response to IR" {
		t.Fatalf("unexpected proceeding/title: %+v", f)
	}
	if f.Date.Format("2006-01-02") != "2025-02-03" {
		t.Fatalf("unexpected date %v", f.Date)
	}
	if f.URL != base+"/Item/Filing/4521" {
		t.Fatalf("unexpected fallback url %s", f.URL)
	}
	if len(f.Documents) != 2 {
		t.Fatalf("expected 2 documents, got %+v", f.Documents)
	}
	if f.Documents[0].URL != "https://apps.example.ca/REGDOCS/File/Download/88" || f.Documents[0].Filename != "ir.pdf" {
		t.Fatalf("unexpected first document %+v", f.Documents[0])
	}
	if f.Documents[1].ContentType != "application/pdf" {
		t.Fatalf("expected inferred pdf type, got %q", f.Documents[1].ContentType)
	}
	if f.Extra["Region"] != "BC" || len(f.Extra) != 1 {
		t.Fatalf("unexpected extra fields %v", f.Extra)
	}
}

func TestParseItemTitleWinsSharedName(t *testing.T) {
	t.Parallel()

	f, ok := ParseItem(decode(t, `{"id":"A1","OTName":"Annual report","pdfLink":"/docs/a.pdf"}`), base)
	if !ok {
		t.Fatalf("expected item to parse")
	}
	if f.Title != "Annual report" || f.Applicant != "" {
		t.Fatalf("expected title only, got title=%q applicant=%q", f.Title, f.Applicant)
	}
	if len(f.Documents) != 1 || f.Documents[0].URL != "https://apps.example.ca/docs/a.pdf" {
		t.Fatalf("expected top-level hinted document, got %+v", f.Documents)
	}
}

func TestParseItemWithoutID(t *testing.T) {
	t.Parallel()

	if _, ok := ParseItem(decode(t, `{"title":"x"}`), base); ok {
		t.Fatalf("expected record without id to be skipped")
	}
}

func newTestClient(srv *httptest.Server) *Client {
	return New(Options{
		BaseURL:   base,
		UserAgent: "FilingBot/1.0",
		Retry:     retry.Policy{Attempts: 3, Sleep: retry.NoSleep},
	}, Deps{HTTPClient: srv.Client()})
}

func TestFetchSendsCookiesAndRetriesTransient(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		if c, err := r.Cookie("session"); err != nil || c.Value != "abc" {
			t.Errorf("missing session cookie")
		}
		if ua := r.Header.Get("User-Agent"); ua != "FilingBot/1.0" {
			t.Errorf("unexpected user agent %q", ua)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results":[{"id":"1","title":"a"},{"id":"2","title":"b"}]}`))
	}))
	defer srv.Close()

	got := newTestClient(srv).Fetch(context.Background(),
		domain.DiscoveredEndpoint{URL: srv.URL + "/api/search"},
		[]domain.Cookie{{Name: "session", Value: "abc"}})

	if len(got) != 2 {
		t.Fatalf("expected 2 filings, got %d", len(got))
	}
	if calls.Load() != 2 {
		t.Fatalf("expected one retry, got %d calls", calls.Load())
	}
}

func TestFetchDoesNotRetryClientErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	got := newTestClient(srv).Fetch(context.Background(), domain.DiscoveredEndpoint{URL: srv.URL}, nil)
	if len(got) != 0 {
		t.Fatalf("expected empty result, got %d", len(got))
	}
	if calls.Load() != 1 {
		t.Fatalf("expected a single attempt, got %d", calls.Load())
	}
}

func TestStrategyUsesFilingEndpointsOnly(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`[{"id":"9","title":"only"}]`))
	}))
	defer srv.Close()

	strategy := NewStrategy(newTestClient(srv), nil)
	if strategy.Name() != scanner.StrategyAPI {
		t.Fatalf("unexpected name %s", strategy.Name())
	}

	filings, err := strategy.Scan(context.Background(), scanner.Request{Discovery: domain.DiscoveryResult{
		Success: true,
		Endpoints: []domain.DiscoveredEndpoint{
			{URL: srv.URL + "/a", Shape: domain.ShapeFilingList},
			{URL: srv.URL + "/b", Shape: domain.ShapeOther},
		},
	}})
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(filings) != 1 || hits.Load() != 1 {
		t.Fatalf("expected one endpoint queried, got filings=%d hits=%d", len(filings), hits.Load())
	}
}
