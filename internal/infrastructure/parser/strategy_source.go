package parser

import (
	"context"
	"fmt"
	"log/slog"

	"FilingMonitor/internal/domain"
	"FilingMonitor/internal/ports"
	"FilingMonitor/internal/scanner"
)

// StrategySource implements FilingSource via registered scanner strategies.
type StrategySource struct {
	registry   *scanner.Registry
	baseURL    string
	listingURL string
	logger     *slog.Logger
}

var _ ports.FilingSource = (*StrategySource)(nil)

// NewStrategySource wires the scanner registry with the site locations.
func NewStrategySource(reg *scanner.Registry, baseURL, listingURL string, log *slog.Logger) *StrategySource {
	return &StrategySource{
		registry:   reg,
		baseURL:    baseURL,
		listingURL: listingURL,
		logger:     log,
	}
}

// Collect runs the planned strategies in order and returns the first
// non-empty result with the name of the strategy that produced it.
func (s *StrategySource) Collect(ctx context.Context, discovery domain.DiscoveryResult) ([]domain.Filing, string, error) {
	if s.registry == nil {
		return nil, "", fmt.Errorf("scanner registry is not configured")
	}

	plan := scanner.Plan(discovery)
	s.debug("collect filings", "plan", plan, "discovery_success", discovery.Success)

	req := scanner.Request{
		BaseURL:    s.baseURL,
		ListingURL: s.listingURL,
		Discovery:  discovery,
	}

	var errs []error
	for _, name := range plan {
		strategy, err := s.registry.Resolve(name)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		results, err := strategy.Scan(ctx, req)
		if err != nil {
			s.warn("strategy failed", "strategy", name, "error", err)
			errs = append(errs, fmt.Errorf("strategy %s: %w", name, err))
			continue
		}
		if len(results) == 0 {
			s.debug("strategy produced no filings", "strategy", name)
			continue
		}

		s.debug("strategy produced filings", "strategy", name, "count", len(results))
		return results, name, nil
	}

	if len(errs) > 0 {
		return nil, "", fmt.Errorf("all strategies failed: %v", errs)
	}
	return nil, "", nil
}

func (s *StrategySource) debug(msg string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}

func (s *StrategySource) warn(msg string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}
