package usecase

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"FilingMonitor/internal/domain"
	"FilingMonitor/internal/logging"
	"FilingMonitor/internal/ports"
)

// ExtractDeps wires the extraction use case.
type ExtractDeps struct {
	Filings   ports.FilingRepository
	Extractor ports.Extractor

	// Fetcher clears partial downloads when artifacts are requeued. Optional.
	Fetcher ports.DocumentFetcher
	Logger  *slog.Logger
	Now     func() time.Time
}

// Extractor turns the downloaded documents of pending filings into text.
type Extractor struct {
	maxRetry  int
	filings   ports.FilingRepository
	extractor ports.Extractor
	fetcher   ports.DocumentFetcher
	logger    *slog.Logger
	now       func() time.Time
}

// NewExtractor constructs the extraction use case.
func NewExtractor(maxRetry int, deps ExtractDeps) *Extractor {
	if maxRetry <= 0 {
		maxRetry = 3
	}
	e := &Extractor{
		maxRetry:  maxRetry,
		filings:   deps.Filings,
		extractor: deps.Extractor,
		fetcher:   deps.Fetcher,
		logger:    logging.OrDiscard(deps.Logger),
		now:       deps.Now,
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

// ExtractPendingDocuments extracts every document of every downloaded filing.
// Documents fail independently; a filing succeeds when at least one of its
// documents yields text. A filing whose artifacts are gone from disk goes
// back to the download queue instead.
func (e *Extractor) ExtractPendingDocuments(ctx context.Context) (ExtractResult, error) {
	var result ExtractResult
	if e.filings == nil || e.extractor == nil {
		return result, fmt.Errorf("extract: not configured")
	}

	pending, err := e.filings.FilingsForExtraction(ctx, e.maxRetry)
	if err != nil {
		return result, fmt.Errorf("list filings for extraction: %w", err)
	}
	e.logger.Info("extracting pending filings", "count", len(pending))

	for i, filing := range pending {
		if ctx.Err() != nil {
			e.logger.Warn("extraction cancelled", "remaining", len(pending)-i)
			break
		}
		if missing := missingArtifacts(filing); len(missing) > 0 {
			if e.requeue(ctx, filing, missing) {
				result.Requeued++
			} else {
				result.Attempted++
				result.Failed++
			}
			continue
		}
		result.Attempted++
		if e.extractFiling(ctx, filing, &result) {
			result.Succeeded++
		} else {
			result.Failed++
		}
	}

	e.logger.Info("extraction complete", "result", result.String())
	return result, nil
}

func (e *Extractor) extractFiling(ctx context.Context, filing domain.Filing, result *ExtractResult) bool {
	logger := e.logger.With("filing_id", filing.ID)
	docs := filing.Documents
	succeeded := 0

	for i := range docs {
		doc := &docs[i]
		if doc.Extracted() {
			succeeded++
			continue
		}
		if doc.ExtractStatus == domain.StatusFailed && doc.ExtractionError != "" {
			continue
		}
		if !doc.Fetched() {
			doc.ExtractStatus = domain.StatusFailed
			doc.ExtractionError = "not downloaded"
			result.DocumentsFailed++
			continue
		}

		res := e.extractOne(ctx, doc.LocalPath, logger)
		doc.ExtractedAt = e.now()
		doc.PageCount = res.PageCount
		if !res.Success {
			doc.ExtractStatus = domain.StatusFailed
			doc.ExtractionError = res.Reason
			doc.ExtractionMethod = domain.MethodNone
			result.DocumentsFailed++
			logger.Warn("document extraction failed", "document", doc.LocalPath, "reason", res.Reason)
			continue
		}

		doc.ExtractStatus = domain.StatusSuccess
		doc.ExtractionError = ""
		doc.ExtractionMethod = res.Method
		doc.ExtractedText = res.Text
		doc.CharCount = res.CharCount
		succeeded++
		if res.Skipped {
			result.DocumentsReused++
		} else {
			result.DocumentsExtracted++
		}
	}

	if err := e.filings.SaveDocuments(ctx, docs); err != nil {
		logger.Error("save extraction state failed", "error", err)
		e.mark(ctx, filing.ID, domain.StatusFailed, err.Error())
		return false
	}

	if succeeded == 0 {
		e.mark(ctx, filing.ID, domain.StatusFailed, "no document produced text")
		return false
	}
	e.mark(ctx, filing.ID, domain.StatusSuccess, "")
	logger.Info("filing extracted", "documents", len(docs), "succeeded", succeeded)
	return true
}

// missingArtifacts lists the local paths of documents awaiting extraction
// whose file no longer exists.
func missingArtifacts(filing domain.Filing) []string {
	var missing []string
	for _, doc := range filing.Documents {
		if !doc.Fetched() || doc.Extracted() {
			continue
		}
		if doc.ExtractStatus == domain.StatusFailed && doc.ExtractionError != "" {
			continue
		}
		if _, err := os.Stat(doc.LocalPath); errors.Is(err, fs.ErrNotExist) {
			missing = append(missing, doc.LocalPath)
		}
	}
	return missing
}

func (e *Extractor) requeue(ctx context.Context, filing domain.Filing, missing []string) bool {
	logger := e.logger.With("filing_id", filing.ID)
	logger.Warn("downloaded artifacts missing, requeueing download", "missing", missing)

	if e.fetcher != nil {
		if err := e.fetcher.Discard(filing); err != nil {
			logger.Warn("discard partial download failed", "error", err)
		}
	}
	reason := fmt.Sprintf("artifact missing: %s", missing[0])
	if err := e.filings.ResetDownload(ctx, filing.ID, reason); err != nil {
		logger.Error("reset download failed", "error", err)
		return false
	}
	return true
}

// extractOne converts a panic escaping the extractor into a failed result.
func (e *Extractor) extractOne(ctx context.Context, path string, logger *slog.Logger) (res domain.ExtractionResult) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("extractor panicked", "document", path, "panic", r)
			res = domain.ExtractionResult{Reason: domain.ReasonAllMethodsFailed}
		}
	}()
	return e.extractor.Extract(ctx, path)
}

func (e *Extractor) mark(ctx context.Context, id string, status domain.ProcessingStatus, msg string) {
	if err := e.filings.MarkStage(ctx, id, domain.StageExtracted, status, msg); err != nil {
		e.logger.Error("update extraction status failed", "filing_id", id, "error", err)
	}
}
