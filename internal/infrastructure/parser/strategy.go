package parser

import (
	"context"
	"fmt"
	"log/slog"

	"FilingMonitor/internal/domain"
	"FilingMonitor/internal/infrastructure/discovery"
	"FilingMonitor/internal/logging"
	"FilingMonitor/internal/scanner"
)

// PageStrategy acquires filings from rendered listing markup.
type PageStrategy struct {
	parser    *PageParser
	browser   discovery.Browser
	userAgent string
	logger    *slog.Logger
}

var _ scanner.Scanner = (*PageStrategy)(nil)

// NewPageStrategy wires the page parser; browser renders the listing when
// discovery returned no markup and may be nil.
func NewPageStrategy(parser *PageParser, browser discovery.Browser, userAgent string, logger *slog.Logger) *PageStrategy {
	return &PageStrategy{parser: parser, browser: browser, userAgent: userAgent, logger: logging.OrDiscard(logger)}
}

// Name implements scanner.Scanner.
func (s *PageStrategy) Name() string {
	return scanner.StrategyPage
}

// Scan implements scanner.Scanner.
func (s *PageStrategy) Scan(ctx context.Context, req scanner.Request) ([]domain.Filing, error) {
	html := req.Discovery.RenderedHTML
	if html == "" {
		rendered, err := s.render(ctx, req.ListingURL)
		if err != nil {
			return nil, err
		}
		html = rendered
	}
	return s.parser.Parse(html), nil
}

func (s *PageStrategy) render(ctx context.Context, url string) (string, error) {
	if s.browser == nil || url == "" {
		return "", fmt.Errorf("no rendered markup available")
	}
	s.logger.Info("rendering listing for page strategy", "url", url)

	session, err := s.browser.NewSession(ctx, s.userAgent)
	if err != nil {
		return "", fmt.Errorf("open browser: %w", err)
	}
	defer session.Close()

	if err := session.Navigate(ctx, url); err != nil {
		return "", fmt.Errorf("render listing: %w", err)
	}
	html, err := session.HTML(ctx)
	if err != nil {
		return "", fmt.Errorf("read listing: %w", err)
	}
	return html, nil
}
