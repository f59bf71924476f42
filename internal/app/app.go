package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"FilingMonitor/internal/config"
	"FilingMonitor/internal/extraction"
	"FilingMonitor/internal/infrastructure/apiclient"
	"FilingMonitor/internal/infrastructure/discovery"
	"FilingMonitor/internal/infrastructure/fetcher"
	"FilingMonitor/internal/infrastructure/guard"
	"FilingMonitor/internal/infrastructure/llm"
	"FilingMonitor/internal/infrastructure/parser"
	"FilingMonitor/internal/infrastructure/pdf"
	"FilingMonitor/internal/infrastructure/scheduler"
	"FilingMonitor/internal/infrastructure/storage"
	"FilingMonitor/internal/logging"
	"FilingMonitor/internal/ports"
	"FilingMonitor/internal/scanner"
	"FilingMonitor/internal/usecase"
	"FilingMonitor/pkg/retry"
)

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg    config.Config
	logger *slog.Logger
	store  *storage.SQLiteRepository

	acquirer  *usecase.Acquirer
	fetcher   *usecase.Fetcher
	extractor *usecase.Extractor
	handoff   *usecase.HandOff
	pipeline  *usecase.Pipeline
}

// New opens the state store and builds every adapter and use case.
func New(cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging)
	}
	component := func(name string) *slog.Logger {
		return baseLogger.With("component", name)
	}

	store, err := storage.Open(cfg.Pipeline.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open state store: %w", err)
	}

	sc := cfg.Scraper
	pacer := guard.NewRandomPacer(sc.DelayMin, sc.DelayMax)
	backoff := retry.Policy{Attempts: sc.MaxRetries, Base: sc.BackoffBase, Max: sc.BackoffMax}

	browser := &discovery.ChromeBrowser{
		NavigationTimeout: sc.NavigationTimeout,
		SettleDelay:       sc.SettleDelay,
		Logger:            component("browser"),
	}
	discoverer := discovery.NewDiscoverer(discovery.Options{
		BaseURL:     sc.BaseURL,
		FilingsPath: sc.FilingsPath,
		UserAgent:   sc.UserAgent,
		Lookback:    sc.LookbackPeriod(),
		Retries:     sc.DiscoveryRetries,
	}, discovery.Deps{Browser: browser, Pacer: pacer, Logger: component("discovery")})

	client := apiclient.New(apiclient.Options{
		BaseURL:           sc.BaseURL,
		UserAgent:         sc.UserAgent,
		RequestsPerSecond: sc.RequestsPerSecond,
		Burst:             sc.Burst,
		Retry:             backoff,
	}, apiclient.Deps{Pacer: pacer, Logger: component("apiclient")})

	listingURL := fmt.Sprintf("%s%s?p=%d", strings.TrimRight(sc.BaseURL, "/"), sc.FilingsPath, sc.LookbackPeriod())
	pageParser := parser.NewPageParser(sc.BaseURL, component("parser"))

	registry := scanner.NewRegistry()
	registry.Register(apiclient.NewStrategy(client, component("scanner.api")))
	registry.Register(parser.NewPageStrategy(pageParser, browser, sc.UserAgent, component("scanner.page")))
	source := parser.NewStrategySource(registry, sc.BaseURL, listingURL, component("source"))

	acquirer := usecase.NewAcquirer(usecase.AcquireOptions{
		ListingPath:      ListingPath(sc.BaseURL, sc.FilingsPath),
		UserAgent:        sc.UserAgent,
		Filters:          sc.Filters,
		Enrich:           sc.EnrichEnabled(),
		ZeroRunThreshold: sc.ZeroRunThreshold,
	}, usecase.AcquireDeps{
		Policy:     guard.NewRobotsPolicy(sc.BaseURL, sc.RobotsPath, sc.UserAgent, nil, component("robots")),
		Discoverer: discoverer,
		Source:     source,
		Enricher:   parser.NewDetailScraper(sc.BaseURL, sc.UserAgent, browser, pacer, component("detail")),
		Filings:    store,
		Runs:       store,
		Logger:     component("acquire"),
	})

	pc := cfg.Pipeline
	downloads := fetcher.New(fetcher.Options{
		FilingsDir: pc.FilingsDir,
		UserAgent:  sc.UserAgent,
		Timeout:    pc.DownloadTimeout,
		ChunkSize:  pc.ChunkSize,
		MaxBytes:   pc.MaxDocumentBytes(),
		Retry:      retry.Policy{Attempts: 3, Base: sc.BackoffBase, Max: sc.BackoffMax},
	}, fetcher.Deps{Pacer: pacer, Logger: component("fetcher")})

	fetchUC := usecase.NewFetcher(pc.MaxRetryCount, usecase.FetchDeps{
		Filings: store,
		Fetcher: downloads,
		Pacer:   pacer,
		Logger:  component("fetch"),
	})

	extractUC := usecase.NewExtractor(pc.MaxRetryCount, usecase.ExtractDeps{
		Filings:   store,
		Extractor: newEngine(cfg.Extraction, component("extraction")),
		Fetcher:   downloads,
		Logger:    component("extract"),
	})

	var analyzer ports.Analyzer
	if a := llm.NewAnalyzer(cfg.Analysis, component("analysis")); a.Configured() {
		analyzer = a
	}
	handoff := usecase.NewHandOff(pc.MaxRetryCount, usecase.HandOffDeps{
		Filings:  store,
		Analyzer: analyzer,
		Logger:   component("handoff"),
	})

	return &Application{
		cfg:       cfg,
		logger:    baseLogger,
		store:     store,
		acquirer:  acquirer,
		fetcher:   fetchUC,
		extractor: extractUC,
		handoff:   handoff,
		pipeline: usecase.NewPipeline(usecase.PipelineDeps{
			Acquirer:  acquirer,
			Fetcher:   fetchUC,
			Extractor: extractUC,
			HandOff:   handoff,
			Logger:    component("pipeline"),
		}),
	}, nil
}

func newEngine(ec config.ExtractionConfig, logger *slog.Logger) *extraction.Engine {
	ocr := pdf.NewOCRTier(
		pdf.ImageRenderer{DPI: ec.OCRDPI},
		pdf.Tesseract{Command: ec.TesseractCmd, Language: ec.OCRLanguage, DPI: ec.OCRDPI},
		ec.OCRTimeout,
		logger,
	)
	return extraction.NewEngine(extraction.Options{
		MaxPages:       ec.MaxPages,
		MaxPagesForOCR: ec.MaxPagesForOCR,
		Strict: extraction.Profile{
			Floor:            ec.MinCharsFloor,
			PerPage:          ec.MinCharsPerPage,
			GarbleRatio:      ec.GarbleRatio,
			RepetitionLimit:  ec.RepetitionLimit,
			RepetitionWindow: ec.RepetitionWindow,
		},
		OCR: extraction.Profile{
			Floor:       ec.OCRMinCharsFloor,
			PerPage:     ec.OCRMinCharsPerPage,
			GarbleRatio: ec.OCRGarbleRatio,
		},
	}, extraction.Deps{
		Inspector: pdf.Inspector{},
		Tiers:     []extraction.Tier{pdf.TextTier{}, pdf.TableTier{}},
		OCR:       ocr,
		Logger:    logger,
	})
}

// ListingPath is the URL path of the listing page, as checked against robots.txt.
func ListingPath(baseURL, filingsPath string) string {
	full := strings.TrimRight(baseURL, "/") + filingsPath
	u, err := url.Parse(full)
	if err != nil || u.Path == "" {
		return "/"
	}
	return u.Path
}

// Acquire runs one acquisition pass.
func (a *Application) Acquire(ctx context.Context) (usecase.AcquireResult, error) {
	return a.acquirer.AcquireNewFilings(ctx)
}

// Fetch downloads the documents of pending filings.
func (a *Application) Fetch(ctx context.Context) (usecase.BatchResult, error) {
	return a.fetcher.FetchPendingDocuments(ctx)
}

// Extract converts downloaded documents into text.
func (a *Application) Extract(ctx context.Context) (usecase.ExtractResult, error) {
	return a.extractor.ExtractPendingDocuments(ctx)
}

// Analyze hands extracted filings to the analysis collaborator.
func (a *Application) Analyze(ctx context.Context) (usecase.BatchResult, error) {
	return a.handoff.HandOffExtracted(ctx)
}

// Run performs a single pipeline execution.
func (a *Application) Run(ctx context.Context) (usecase.PipelineResult, error) {
	return a.pipeline.RunOnce(ctx)
}

// Schedule runs the pipeline now and then every interval until ctx ends.
func (a *Application) Schedule(ctx context.Context, every time.Duration, report func(usecase.PipelineResult, error)) error {
	driver := scheduler.NewIntervalScheduler(every)
	sched := usecase.NewScheduler(driver, a.pipeline, report)
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	a.logger.Info("scheduler started", "every", every)

	<-ctx.Done()
	stopCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	return sched.Stop(stopCtx)
}

// Close releases the state store.
func (a *Application) Close() error {
	return a.store.Close()
}
