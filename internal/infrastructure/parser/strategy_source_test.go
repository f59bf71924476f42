package parser

import (
	"context"
	"errors"
	"testing"

	"FilingMonitor/internal/domain"
	"FilingMonitor/internal/scanner"
)

type stubScanner struct {
	name    string
	filings []domain.Filing
	err     error
	calls   int
}

func (s *stubScanner) Name() string { return s.name }

func (s *stubScanner) Scan(context.Context, scanner.Request) ([]domain.Filing, error) {
	s.calls++
	return s.filings, s.err
}

func filingDiscovery() domain.DiscoveryResult {
	return domain.DiscoveryResult{
		Success:   true,
		Endpoints: []domain.DiscoveredEndpoint{{URL: "u", Shape: domain.ShapeFilingList}},
	}
}

func TestStrategySourceFallsBackToPage(t *testing.T) {
	t.Parallel()

	api := &stubScanner{name: scanner.StrategyAPI}
	page := &stubScanner{name: scanner.StrategyPage, filings: []domain.Filing{{ID: "1"}}}
	reg := scanner.NewRegistry()
	reg.Register(api)
	reg.Register(page)

	filings, strategy, err := NewStrategySource(reg, testBase, "", nil).Collect(context.Background(), filingDiscovery())
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if strategy != scanner.StrategyPage || len(filings) != 1 {
		t.Fatalf("expected page fallback, got %s with %d filings", strategy, len(filings))
	}
	if api.calls != 1 {
		t.Fatalf("api strategy should be tried first")
	}
}

func TestStrategySourcePrefersStructuredEndpoints(t *testing.T) {
	t.Parallel()

	api := &stubScanner{name: scanner.StrategyAPI, filings: []domain.Filing{{ID: "1"}, {ID: "2"}}}
	page := &stubScanner{name: scanner.StrategyPage, filings: []domain.Filing{{ID: "3"}}}
	reg := scanner.NewRegistry()
	reg.Register(api)
	reg.Register(page)

	filings, strategy, err := NewStrategySource(reg, testBase, "", nil).Collect(context.Background(), filingDiscovery())
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if strategy != scanner.StrategyAPI || len(filings) != 2 || page.calls != 0 {
		t.Fatalf("expected api result only, got %s %v (page calls %d)", strategy, filings, page.calls)
	}
}

func TestStrategySourceReportsFailures(t *testing.T) {
	t.Parallel()

	reg := scanner.NewRegistry()
	reg.Register(&stubScanner{name: scanner.StrategyPage, err: errors.New("boom")})

	_, _, err := NewStrategySource(reg, testBase, "", nil).Collect(context.Background(), domain.DiscoveryResult{})
	if err == nil {
		t.Fatalf("expected error when every strategy fails")
	}

	empty := scanner.NewRegistry()
	empty.Register(&stubScanner{name: scanner.StrategyPage})
	filings, _, err := NewStrategySource(empty, testBase, "", nil).Collect(context.Background(), domain.DiscoveryResult{})
	if err != nil || len(filings) != 0 {
		t.Fatalf("empty strategies are not an error, got %v %v", filings, err)
	}
}
