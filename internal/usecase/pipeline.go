package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"FilingMonitor/internal/logging"
)

// PipelineDeps wires the stage use cases into one run.
type PipelineDeps struct {
	Acquirer  *Acquirer
	Fetcher   *Fetcher
	Extractor *Extractor
	HandOff   *HandOff
	Logger    *slog.Logger
}

// Pipeline runs acquisition, fetch, extraction and handoff in order.
type Pipeline struct {
	acquirer  *Acquirer
	fetcher   *Fetcher
	extractor *Extractor
	handoff   *HandOff
	logger    *slog.Logger
}

// PipelineResult collects the per-stage outcomes of one pipeline run.
type PipelineResult struct {
	Acquire  AcquireResult
	Fetch    BatchResult
	Extract  ExtractResult
	Analysis BatchResult
}

// NewPipeline constructs the orchestration component. Nil stages are skipped.
func NewPipeline(deps PipelineDeps) *Pipeline {
	return &Pipeline{
		acquirer:  deps.Acquirer,
		fetcher:   deps.Fetcher,
		extractor: deps.Extractor,
		handoff:   deps.HandOff,
		logger:    logging.OrDiscard(deps.Logger),
	}
}

// RunOnce executes every configured stage. A failing stage is logged and
// the following stages still run over whatever state is already stored.
func (p *Pipeline) RunOnce(ctx context.Context) (PipelineResult, error) {
	var (
		result PipelineResult
		errs   []error
	)

	if p.acquirer != nil {
		res, err := p.acquirer.AcquireNewFilings(ctx)
		result.Acquire = res
		if err != nil {
			errs = append(errs, fmt.Errorf("acquire: %w", err))
		}
	}
	if p.fetcher != nil && ctx.Err() == nil {
		res, err := p.fetcher.FetchPendingDocuments(ctx)
		result.Fetch = res
		if err != nil {
			errs = append(errs, fmt.Errorf("fetch: %w", err))
		}
	}
	if p.extractor != nil && ctx.Err() == nil {
		res, err := p.extractor.ExtractPendingDocuments(ctx)
		result.Extract = res
		if err != nil {
			errs = append(errs, fmt.Errorf("extract: %w", err))
		}
	}
	if p.handoff != nil && ctx.Err() == nil {
		res, err := p.handoff.HandOffExtracted(ctx)
		result.Analysis = res
		if err != nil {
			errs = append(errs, fmt.Errorf("handoff: %w", err))
		}
	}

	err := errors.Join(errs...)
	if err != nil {
		p.logger.Error("pipeline run finished with errors", "error", err)
	}
	return result, err
}
