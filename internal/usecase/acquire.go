package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"FilingMonitor/internal/config"
	"FilingMonitor/internal/domain"
	"FilingMonitor/internal/logging"
	"FilingMonitor/internal/ports"
)

// AcquireOptions configures one acquisition run.
type AcquireOptions struct {
	// ListingPath is checked against the crawl policy before anything else.
	ListingPath      string
	UserAgent        string
	Filters          config.FilterConfig
	Enrich           bool
	ZeroRunThreshold int
}

// AcquireDeps wires the driven adapters used by acquisition.
type AcquireDeps struct {
	Policy     ports.CrawlPolicy
	Discoverer ports.Discoverer
	Source     ports.FilingSource
	Enricher   ports.DetailEnricher
	Filings    ports.FilingRepository
	Runs       ports.RunRepository
	Logger     *slog.Logger
	Now        func() time.Time
	NewID      func() string
}

// Acquirer discovers new filings upstream and records them in the state store.
type Acquirer struct {
	opts       AcquireOptions
	policy     ports.CrawlPolicy
	discoverer ports.Discoverer
	source     ports.FilingSource
	enricher   ports.DetailEnricher
	filings    ports.FilingRepository
	runs       ports.RunRepository
	logger     *slog.Logger
	now        func() time.Time
	newID      func() string
}

// NewAcquirer constructs the acquisition use case.
func NewAcquirer(opts AcquireOptions, deps AcquireDeps) *Acquirer {
	if opts.ZeroRunThreshold <= 0 {
		opts.ZeroRunThreshold = 3
	}
	a := &Acquirer{
		opts:       opts,
		policy:     deps.Policy,
		discoverer: deps.Discoverer,
		source:     deps.Source,
		enricher:   deps.Enricher,
		filings:    deps.Filings,
		runs:       deps.Runs,
		logger:     logging.OrDiscard(deps.Logger),
		now:        deps.Now,
		newID:      deps.NewID,
	}
	if a.now == nil {
		a.now = time.Now
	}
	if a.newID == nil {
		a.newID = uuid.NewString
	}
	return a
}

// AcquireNewFilings runs discover, collect, validate, filter, dedup and
// persist, then records the run. Per-filing problems are logged and counted;
// only state store failures are returned as errors.
func (a *Acquirer) AcquireNewFilings(ctx context.Context) (AcquireResult, error) {
	if a.filings == nil || a.runs == nil {
		return AcquireResult{}, fmt.Errorf("acquire: state store is not configured")
	}

	run := domain.RunRecord{ID: a.newID(), StartedAt: a.now()}
	result := AcquireResult{RunID: run.ID}
	logger := a.logger.With("run_id", run.ID)
	logger.Info("acquisition run started")

	finish := func() (AcquireResult, error) {
		run.CompletedAt = a.now()
		run.Strategy = result.Strategy
		run.TotalFound = result.TotalFound
		run.NewFilings = result.NewFilings
		run.ErrorSummary = strings.Join(result.Errors, "; ")
		if err := a.runs.AppendRun(ctx, run); err != nil {
			return result, fmt.Errorf("record run: %w", err)
		}
		logger.Info("acquisition run complete",
			"strategy", result.Strategy, "found", result.TotalFound, "new", result.NewFilings,
			"duration", run.CompletedAt.Sub(run.StartedAt))
		if err := a.checkZeroRuns(ctx, run); err != nil {
			logger.Warn("zero-run check failed", "error", err)
		}
		return result, nil
	}

	if a.policy != nil {
		a.policy.Refresh(ctx)
	}
	if a.policy != nil && !a.policy.Allowed(ctx, a.opts.ListingPath, a.opts.UserAgent) {
		result.Strategy = domain.StrategyBlocked
		result.Errors = append(result.Errors, "robots.txt disallows scraping")
		logger.Error("robots.txt disallows the listing path, aborting", "path", a.opts.ListingPath)
		return finish()
	}

	var discovery domain.DiscoveryResult
	if a.discoverer != nil {
		discovery = a.discoverer.Discover(ctx)
	}
	logger.Info("discovery finished",
		"success", discovery.Success, "endpoints", len(discovery.Endpoints),
		"filing_endpoints", len(discovery.FilingEndpoints()), "has_html", discovery.RenderedHTML != "")

	var (
		collected []domain.Filing
		strategy  string
	)
	if a.source != nil {
		var err error
		collected, strategy, err = a.source.Collect(ctx, discovery)
		if err != nil {
			result.Errors = append(result.Errors, err.Error())
			logger.Error("filing collection failed", "error", err)
		}
	}
	result.Strategy = strategy
	result.TotalFound = len(collected)
	if len(collected) == 0 {
		if len(result.Errors) == 0 {
			result.Errors = append(result.Errors, "no filings returned by any strategy")
		}
		logger.Warn("no filings collected")
		return finish()
	}

	if a.opts.Enrich && a.enricher != nil {
		a.enricher.Enrich(ctx, collected)
	}

	valid := Validate(collected, a.now(), logger)
	result.Valid = len(valid)

	kept := Filter(valid, a.opts.Filters)
	result.Filtered = len(valid) - len(kept)

	fresh, dups, err := a.unseen(ctx, kept)
	if err != nil {
		return result, err
	}
	result.Duplicates = dups

	for _, f := range fresh {
		if ctx.Err() != nil {
			result.Errors = append(result.Errors, ctx.Err().Error())
			break
		}
		if !f.HasDocuments() {
			result.NoDocs++
			logger.Info("skipping filing without documents", "filing_id", f.ID)
			continue
		}
		f.Status = domain.NewFilingStatus()
		if err := a.filings.SaveFiling(ctx, f); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("persist %s: %v", f.ID, err))
			logger.Error("persist filing failed", "filing_id", f.ID, "error", err)
			continue
		}
		result.NewFilings++
		logger.Debug("filing persisted", "filing_id", f.ID, "documents", len(f.Documents))
	}

	return finish()
}

// unseen removes filings already in the store and repeats within the batch.
func (a *Acquirer) unseen(ctx context.Context, filings []domain.Filing) ([]domain.Filing, int, error) {
	ids := make([]string, 0, len(filings))
	for _, f := range filings {
		ids = append(ids, f.ID)
	}
	existing, err := a.filings.Existing(ctx, ids)
	if err != nil {
		return nil, 0, fmt.Errorf("load existing filings: %w", err)
	}

	out := make([]domain.Filing, 0, len(filings))
	seen := map[string]bool{}
	dups := 0
	for _, f := range filings {
		if existing[f.ID] || seen[f.ID] {
			dups++
			continue
		}
		seen[f.ID] = true
		out = append(out, f)
	}
	return out, dups, nil
}

// checkZeroRuns warns once per streak: when the newest threshold runs are
// all empty and the run before them, if any, was not. Runs blocked by the
// crawl policy never count toward a streak.
func (a *Acquirer) checkZeroRuns(ctx context.Context, current domain.RunRecord) error {
	if !emptyRun(current) {
		return nil
	}
	n := a.opts.ZeroRunThreshold
	runs, err := a.runs.LastRuns(ctx, n+1)
	if err != nil {
		return fmt.Errorf("load run history: %w", err)
	}
	if len(runs) < n {
		return nil
	}
	for _, r := range runs[:n] {
		if !emptyRun(r) {
			return nil
		}
	}
	if len(runs) > n && emptyRun(runs[n]) {
		return nil
	}
	a.logger.Warn("zero new filings for consecutive runs; check the source layout",
		"consecutive_runs", n, "run_id", current.ID)
	return nil
}

func emptyRun(r domain.RunRecord) bool {
	return r.Zero() && !r.Blocked()
}
