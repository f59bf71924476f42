package ports

import (
	"context"
	"time"

	"FilingMonitor/internal/domain"
)

// FilingRepository is the durable per-filing status ledger.
type FilingRepository interface {
	Existing(ctx context.Context, ids []string) (map[string]bool, error)
	SaveFiling(ctx context.Context, filing domain.Filing) error
	GetFiling(ctx context.Context, id string) (domain.Filing, error)
	FilingsForDownload(ctx context.Context, maxRetry int) ([]domain.Filing, error)
	FilingsForExtraction(ctx context.Context, maxRetry int) ([]domain.Filing, error)
	FilingsForAnalysis(ctx context.Context, maxRetry int) ([]domain.Filing, error)
	MarkStage(ctx context.Context, filingID string, stage domain.Stage, status domain.ProcessingStatus, errMsg string) error
	SaveDocuments(ctx context.Context, docs []domain.Document) error
	// ResetDownload puts a downloaded filing back in the download queue and
	// clears every local artifact field of its documents.
	ResetDownload(ctx context.Context, filingID, reason string) error
}

// RunRepository keeps the append-only acquisition history.
type RunRepository interface {
	AppendRun(ctx context.Context, run domain.RunRecord) error
	LastRuns(ctx context.Context, n int) ([]domain.RunRecord, error)
}

// Pacer blocks between outbound requests.
type Pacer interface {
	Wait(ctx context.Context) error
}

// CrawlPolicy answers whether a path may be fetched; unreadable policies allow.
// Refresh re-reads the policy at the start of every run.
type CrawlPolicy interface {
	Refresh(ctx context.Context)
	Allowed(ctx context.Context, path, agent string) bool
}

// Discoverer runs one browser-driven discovery session and never fails.
type Discoverer interface {
	Discover(ctx context.Context) domain.DiscoveryResult
}

// FilingSource runs the acquisition strategies for one discovery outcome and
// reports which strategy produced the filings.
type FilingSource interface {
	Collect(ctx context.Context, discovery domain.DiscoveryResult) ([]domain.Filing, string, error)
}

// EndpointClient pulls filing records from a discovered structured endpoint.
type EndpointClient interface {
	Fetch(ctx context.Context, endpoint domain.DiscoveredEndpoint, cookies []domain.Cookie) []domain.Filing
}

// PageParser extracts filings from rendered markup.
type PageParser interface {
	Parse(html string) []domain.Filing
}

// DetailEnricher attaches documents to filings that were listed without any.
type DetailEnricher interface {
	Enrich(ctx context.Context, filings []domain.Filing) int
}

// DocumentFetcher downloads every document of a filing or none of them.
// The returned documents reflect the outcome either way.
type DocumentFetcher interface {
	FetchAll(ctx context.Context, filing domain.Filing) ([]domain.Document, error)
	// Discard removes every artifact stored for the filing.
	Discard(filing domain.Filing) error
}

// Extractor converts one downloaded artifact into text.
type Extractor interface {
	Extract(ctx context.Context, path string) domain.ExtractionResult
}

// Analyzer consumes the assembled text of a filing.
type Analyzer interface {
	Analyze(ctx context.Context, filing domain.Filing, text string) error
}

// Scheduler triggers a job repeatedly until stopped.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
