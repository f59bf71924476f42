package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"sync"
	"testing"

	"FilingMonitor/internal/domain"
	"FilingMonitor/internal/infrastructure/guard"
)

func decode(t *testing.T, raw string) any {
	t.Helper()
	var body any
	if err := json.Unmarshal([]byte(raw), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return body
}

func TestClassify(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		body string
		url  string
		want domain.EndpointShape
	}{
		{"list with hint keys", `[{"NodeId":"1","OTCreateDate":"2025-01-01","x":1}]`, "https://x/api/v1", domain.ShapeFilingList},
		{"wrapped list", `{"total":1,"items":[{"title":"a","applicant":"b"}]}`, "https://x/api", domain.ShapeFilingList},
		{"single hint key but listing url", `[{"id":1,"foo":"bar"}]`, "https://x/Search/Results", domain.ShapeFilingList},
		{"single hint key", `[{"id":1,"foo":"bar"}]`, "https://x/config", domain.ShapeOther},
		{"empty list with listing url", `[]`, "https://x/Search", domain.ShapeOther},
		{"object without lists", `{"filing":"x"}`, "https://x/filing", domain.ShapeOther},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, conf := Classify(decode(t, tc.body), tc.url)
			if got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
			if got == domain.ShapeFilingList && conf <= 0 {
				t.Fatalf("expected positive confidence, got %v", conf)
			}
		})
	}
}

func TestRecordsPrefersEnvelopeKeys(t *testing.T) {
	t.Parallel()

	body := decode(t, `{"aaa":[1],"results":[2,3]}`)
	if got := Records(body); len(got) != 2 {
		t.Fatalf("expected results list, got %v", got)
	}
}

func TestTargetsOrder(t *testing.T) {
	t.Parallel()

	d := NewDiscoverer(Options{BaseURL: "https://site/REGDOCS/", FilingsPath: "/Search/RecentFilings", Lookback: 3, Retries: 5}, Deps{})
	want := []string{
		"https://site/REGDOCS/Search/RecentFilings?p=3",
		"https://site/REGDOCS/Search/RecentFilings?p=1",
		"https://site/REGDOCS/Search/RecentFilings?p=2",
	}
	if got := d.Targets(); !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected targets: %v", got)
	}

	d = NewDiscoverer(Options{BaseURL: "https://site", FilingsPath: "/f", Lookback: 2, Retries: 2}, Deps{})
	if got := d.Targets(); !reflect.DeepEqual(got, []string{"https://site/f?p=2", "https://site/f?p=1"}) {
		t.Fatalf("unexpected capped targets: %v", got)
	}
}

// fakeSession emits its scripted responses the moment navigation starts,
// to whichever handlers are registered at that point.
type fakeSession struct {
	mu        sync.Mutex
	handlers  []func(Response)
	responses map[string][]Response
	navigated []string
	navErr    error
	closed    bool
}

func (s *fakeSession) OnResponse(fn func(Response)) {
	s.mu.Lock()
	s.handlers = append(s.handlers, fn)
	s.mu.Unlock()
}

func (s *fakeSession) Navigate(_ context.Context, url string) error {
	s.mu.Lock()
	s.navigated = append(s.navigated, url)
	handlers := append([]func(Response){}, s.handlers...)
	s.mu.Unlock()
	for _, resp := range s.responses[url] {
		for _, h := range handlers {
			h(resp)
		}
	}
	return s.navErr
}

func (s *fakeSession) HTML(context.Context) (string, error) {
	return "<html><body>rendered</body></html>", nil
}

func (s *fakeSession) Cookies(context.Context) ([]domain.Cookie, error) {
	return []domain.Cookie{{Name: "session", Value: "abc"}}, nil
}

func (s *fakeSession) Close() error {
	s.closed = true
	return nil
}

type fakeBrowser struct {
	session *fakeSession
	err     error
}

func (b *fakeBrowser) NewSession(context.Context, string) (Session, error) {
	if b.err != nil {
		return nil, b.err
	}
	return b.session, nil
}

const listingJSON = `{"items":[{"NodeId":"123","OTCreateDate":"2025-02-01","OTName":"Rate case"}]}`

func TestSessionListenerOrdering(t *testing.T) {
	t.Parallel()

	url := "https://site/f?p=2"
	resp := Response{URL: "https://site/api/search", ContentType: "application/json", Body: []byte(listingJSON)}

	early := &fakeSession{responses: map[string][]Response{url: {resp}}}
	var earlyGot []Response
	early.OnResponse(func(r Response) { earlyGot = append(earlyGot, r) })
	_ = early.Navigate(context.Background(), url)
	if len(earlyGot) != 1 {
		t.Fatalf("listener registered before navigation must capture, got %d", len(earlyGot))
	}

	late := &fakeSession{responses: map[string][]Response{url: {resp}}}
	var lateGot []Response
	_ = late.Navigate(context.Background(), url)
	late.OnResponse(func(r Response) { lateGot = append(lateGot, r) })
	if len(lateGot) != 0 {
		t.Fatalf("listener registered after navigation must miss the response, got %d", len(lateGot))
	}
}

func TestDiscoverCapturesResponseAtNavigationStart(t *testing.T) {
	t.Parallel()

	target := "https://site/f?p=2"
	session := &fakeSession{responses: map[string][]Response{
		target: {
			{URL: "https://site/api/search", Method: "GET", Status: 200, ContentType: "application/json; charset=utf-8", Body: []byte(listingJSON)},
			{URL: "https://site/static/app.css", ContentType: "text/css", Body: []byte("body{}")},
		},
	}}
	d := NewDiscoverer(
		Options{BaseURL: "https://site", FilingsPath: "/f", Lookback: 2, Retries: 3},
		Deps{Browser: &fakeBrowser{session: session}, Pacer: guard.NoPacer{}},
	)

	result := d.Discover(context.Background())
	if !result.Success {
		t.Fatalf("expected success")
	}
	if len(result.FilingEndpoints()) != 1 || result.Endpoints[0].URL != "https://site/api/search" {
		t.Fatalf("unexpected endpoints: %+v", result.Endpoints)
	}
	if len(session.navigated) != 1 {
		t.Fatalf("expected to stop after first successful attempt, navigated %v", session.navigated)
	}
	if result.RenderedHTML == "" || len(result.Cookies) != 1 {
		t.Fatalf("expected html and cookies, got %+v", result)
	}
	if !session.closed {
		t.Fatalf("session must be closed")
	}
}

func TestDiscoverRetriesAlternateLookbacks(t *testing.T) {
	t.Parallel()

	session := &fakeSession{
		responses: map[string][]Response{
			"https://site/f?p=3": {{URL: "https://site/api/list", ContentType: "application/json", Body: []byte(listingJSON)}},
		},
		navErr: errors.New("timeout"),
	}
	d := NewDiscoverer(
		Options{BaseURL: "https://site", FilingsPath: "/f", Lookback: 1, Retries: 3},
		Deps{Browser: &fakeBrowser{session: session}, Pacer: guard.NoPacer{}},
	)

	result := d.Discover(context.Background())
	if !result.Success {
		t.Fatalf("expected success on third attempt")
	}
	want := []string{"https://site/f?p=1", "https://site/f?p=2", "https://site/f?p=3"}
	if !reflect.DeepEqual(session.navigated, want) {
		t.Fatalf("unexpected navigation order: %v", session.navigated)
	}
	if result.PageURL != "https://site/f?p=3" {
		t.Fatalf("unexpected page url %s", result.PageURL)
	}
}

func TestDiscoverNeverFails(t *testing.T) {
	t.Parallel()

	d := NewDiscoverer(Options{BaseURL: "https://site", FilingsPath: "/f", Retries: 2},
		Deps{Browser: &fakeBrowser{err: errors.New("chrome not found")}})
	result := d.Discover(context.Background())
	if result.Success || result.RenderedHTML != "" {
		t.Fatalf("expected empty failed result, got %+v", result)
	}

	empty := &fakeSession{}
	d = NewDiscoverer(Options{BaseURL: "https://site", FilingsPath: "/f", Retries: 2},
		Deps{Browser: &fakeBrowser{session: empty}, Pacer: guard.NoPacer{}})
	result = d.Discover(context.Background())
	if result.Success {
		t.Fatalf("expected failure without endpoints")
	}
	if result.RenderedHTML == "" {
		t.Fatalf("rendered html must still be returned for the fallback")
	}
	if len(empty.navigated) != 2 {
		t.Fatalf("expected two attempts, got %v", empty.navigated)
	}
}
