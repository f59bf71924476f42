package apiclient

import (
	"context"
	"log/slog"

	"FilingMonitor/internal/domain"
	"FilingMonitor/internal/logging"
	"FilingMonitor/internal/scanner"
)

// Strategy acquires filings from the structured endpoints found during discovery.
type Strategy struct {
	client *Client
	logger *slog.Logger
}

var _ scanner.Scanner = (*Strategy)(nil)

// NewStrategy wraps a client as the "api" scanner.
func NewStrategy(client *Client, logger *slog.Logger) *Strategy {
	return &Strategy{client: client, logger: logging.OrDiscard(logger)}
}

// Name implements scanner.Scanner.
func (s *Strategy) Name() string {
	return scanner.StrategyAPI
}

// Scan implements scanner.Scanner.
func (s *Strategy) Scan(ctx context.Context, req scanner.Request) ([]domain.Filing, error) {
	endpoints := req.Discovery.FilingEndpoints()
	if len(endpoints) == 0 {
		s.logger.Info("no filing endpoints to query")
		return nil, nil
	}
	return s.client.FetchAll(ctx, endpoints, req.Discovery.Cookies), nil
}
