package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"FilingMonitor/internal/domain"
	"FilingMonitor/internal/logging"
	"FilingMonitor/internal/ports"
)

// FetchDeps wires the content fetch use case.
type FetchDeps struct {
	Filings ports.FilingRepository
	Fetcher ports.DocumentFetcher
	Pacer   ports.Pacer
	Logger  *slog.Logger
}

// Fetcher downloads the documents of every pending filing.
type Fetcher struct {
	maxRetry int
	filings  ports.FilingRepository
	fetcher  ports.DocumentFetcher
	pacer    ports.Pacer
	logger   *slog.Logger
}

// NewFetcher constructs the fetch use case; maxRetry bounds how often a
// failing filing is picked up again.
func NewFetcher(maxRetry int, deps FetchDeps) *Fetcher {
	if maxRetry <= 0 {
		maxRetry = 3
	}
	return &Fetcher{
		maxRetry: maxRetry,
		filings:  deps.Filings,
		fetcher:  deps.Fetcher,
		pacer:    deps.Pacer,
		logger:   logging.OrDiscard(deps.Logger),
	}
}

// FetchPendingDocuments fetches filings one at a time. A filing is either
// fully on disk afterwards or has no artifacts at all.
func (f *Fetcher) FetchPendingDocuments(ctx context.Context) (BatchResult, error) {
	var result BatchResult
	if f.filings == nil || f.fetcher == nil {
		return result, fmt.Errorf("fetch: not configured")
	}

	pending, err := f.filings.FilingsForDownload(ctx, f.maxRetry)
	if err != nil {
		return result, fmt.Errorf("list filings for download: %w", err)
	}
	f.logger.Info("fetching pending filings", "count", len(pending))

	for i, filing := range pending {
		if ctx.Err() != nil {
			f.logger.Warn("fetch cancelled", "remaining", len(pending)-i)
			break
		}
		if i > 0 && f.pacer != nil {
			if err := f.pacer.Wait(ctx); err != nil {
				break
			}
		}
		result.Attempted++

		if !filing.HasDocuments() {
			result.Skipped++
			f.mark(ctx, filing.ID, domain.StatusFailed, "no documents")
			continue
		}

		docs, fetchErr := f.fetcher.FetchAll(ctx, filing)
		if err := f.filings.SaveDocuments(ctx, docs); err != nil {
			result.Failed++
			f.logger.Error("save document state failed", "filing_id", filing.ID, "error", err)
			f.mark(ctx, filing.ID, domain.StatusFailed, err.Error())
			continue
		}
		if fetchErr != nil {
			result.Failed++
			f.logger.Warn("filing fetch failed", "filing_id", filing.ID, "error", fetchErr)
			f.mark(ctx, filing.ID, domain.StatusFailed, fetchErr.Error())
			continue
		}

		result.Succeeded++
		f.mark(ctx, filing.ID, domain.StatusSuccess, "")
		f.logger.Info("filing fetched", "filing_id", filing.ID, "documents", len(docs))
	}

	f.logger.Info("fetch complete", "result", result.String())
	return result, nil
}

func (f *Fetcher) mark(ctx context.Context, id string, status domain.ProcessingStatus, msg string) {
	if err := f.filings.MarkStage(ctx, id, domain.StageDownloaded, status, msg); err != nil {
		f.logger.Error("update download status failed", "filing_id", id, "error", err)
	}
}
