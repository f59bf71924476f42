package scanner

import (
	"context"
	"reflect"
	"testing"

	"FilingMonitor/internal/domain"
)

type stubScanner struct{ name string }

func (s stubScanner) Name() string { return s.name }

func (s stubScanner) Scan(context.Context, Request) ([]domain.Filing, error) { return nil, nil }

func TestRegistryResolve(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	reg.Register(stubScanner{name: StrategyAPI})

	if _, err := reg.Resolve(StrategyAPI); err != nil {
		t.Fatalf("resolve api: %v", err)
	}
	if _, err := reg.Resolve(StrategyPage); err == nil {
		t.Fatalf("expected error for unregistered strategy")
	}
}

func TestPlan(t *testing.T) {
	t.Parallel()

	withEndpoint := domain.DiscoveryResult{
		Success:   true,
		Endpoints: []domain.DiscoveredEndpoint{{URL: "https://x/api", Shape: domain.ShapeFilingList}},
	}
	if got := Plan(withEndpoint); !reflect.DeepEqual(got, []string{StrategyAPI, StrategyPage}) {
		t.Fatalf("unexpected plan: %v", got)
	}

	failed := domain.DiscoveryResult{RenderedHTML: "<html></html>"}
	if got := Plan(failed); !reflect.DeepEqual(got, []string{StrategyPage}) {
		t.Fatalf("unexpected fallback plan: %v", got)
	}
}
