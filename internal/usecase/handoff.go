package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"FilingMonitor/internal/domain"
	"FilingMonitor/internal/logging"
	"FilingMonitor/internal/ports"
)

// HandOffDeps wires the analysis handoff.
type HandOffDeps struct {
	Filings  ports.FilingRepository
	Analyzer ports.Analyzer
	Logger   *slog.Logger
}

// HandOff passes the assembled text of extracted filings to the analysis collaborator.
type HandOff struct {
	maxRetry int
	filings  ports.FilingRepository
	analyzer ports.Analyzer
	logger   *slog.Logger
}

// NewHandOff constructs the handoff use case. A nil analyzer makes every run a no-op.
func NewHandOff(maxRetry int, deps HandOffDeps) *HandOff {
	if maxRetry <= 0 {
		maxRetry = 3
	}
	return &HandOff{
		maxRetry: maxRetry,
		filings:  deps.Filings,
		analyzer: deps.Analyzer,
		logger:   logging.OrDiscard(deps.Logger),
	}
}

// HandOffExtracted sends every extracted, not yet analyzed filing to the analyzer.
func (h *HandOff) HandOffExtracted(ctx context.Context) (BatchResult, error) {
	var result BatchResult
	if h.filings == nil {
		return result, fmt.Errorf("handoff: state store is not configured")
	}
	if h.analyzer == nil {
		h.logger.Info("analysis collaborator not configured, skipping handoff")
		return result, nil
	}

	pending, err := h.filings.FilingsForAnalysis(ctx, h.maxRetry)
	if err != nil {
		return result, fmt.Errorf("list filings for analysis: %w", err)
	}

	for _, filing := range pending {
		if ctx.Err() != nil {
			break
		}
		result.Attempted++

		text := AssembleText(filing)
		if text == "" {
			result.Skipped++
			h.mark(ctx, filing.ID, domain.StatusFailed, "no extracted text")
			continue
		}
		if err := h.analyzer.Analyze(ctx, filing, text); err != nil {
			result.Failed++
			h.logger.Warn("analysis failed", "filing_id", filing.ID, "error", err)
			h.mark(ctx, filing.ID, domain.StatusFailed, err.Error())
			continue
		}
		result.Succeeded++
		h.mark(ctx, filing.ID, domain.StatusSuccess, "")
	}

	h.logger.Info("handoff complete", "result", result.String())
	return result, nil
}

// AssembleText concatenates the extracted text of a filing's documents,
// each preceded by a "=== Document N: name ===" header.
func AssembleText(filing domain.Filing) string {
	var b strings.Builder
	n := 0
	for _, doc := range filing.Documents {
		if !doc.Extracted() {
			continue
		}
		n++
		name := doc.Filename
		if name == "" && doc.LocalPath != "" {
			name = filepath.Base(doc.LocalPath)
		}
		if name == "" {
			name = doc.URL
		}
		if n > 1 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "=== Document %d: %s ===\n\n", n, name)
		b.WriteString(doc.ExtractedText)
	}
	return b.String()
}

func (h *HandOff) mark(ctx context.Context, id string, status domain.ProcessingStatus, msg string) {
	if err := h.filings.MarkStage(ctx, id, domain.StageAnalyzed, status, msg); err != nil {
		h.logger.Error("update analysis status failed", "filing_id", id, "error", err)
	}
}
