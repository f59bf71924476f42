package scanner

import (
	"context"
	"fmt"

	"FilingMonitor/internal/domain"
)

// Strategy names registered by the application.
const (
	StrategyAPI  = "api"
	StrategyPage = "page"
)

// Request carries everything a strategy needs from the discovery session.
type Request struct {
	BaseURL string
	// ListingURL is rendered directly when discovery produced no markup.
	ListingURL string
	Discovery  domain.DiscoveryResult
}

// Scanner captures a single acquisition strategy (structured endpoints, rendered page).
type Scanner interface {
	Name() string
	Scan(ctx context.Context, req Request) ([]domain.Filing, error)
}

// Registry keeps a mapping from scanner names to their implementations.
type Registry struct {
	scanners map[string]Scanner
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{scanners: map[string]Scanner{}}
}

// Register adds or replaces a scanner implementation.
func (r *Registry) Register(scanner Scanner) {
	if r.scanners == nil {
		r.scanners = map[string]Scanner{}
	}
	r.scanners[scanner.Name()] = scanner
}

// Resolve returns a scanner by name or an error if it is absent.
func (r *Registry) Resolve(name string) (Scanner, error) {
	if scanner, ok := r.scanners[name]; ok {
		return scanner, nil
	}
	return nil, fmt.Errorf("scanner %s is not registered", name)
}

// Plan returns the strategies to try, in order, for a discovery outcome.
// Structured endpoints come first when discovery found any; the rendered
// page is always the fallback.
func Plan(discovery domain.DiscoveryResult) []string {
	if discovery.Success && len(discovery.FilingEndpoints()) > 0 {
		return []string{StrategyAPI, StrategyPage}
	}
	return []string{StrategyPage}
}
