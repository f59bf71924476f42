// Package extraction turns downloaded artifacts into text through an ordered
// set of tiers, each guarded by a quality gate.
package extraction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"FilingMonitor/internal/domain"
	"FilingMonitor/internal/logging"
	"FilingMonitor/internal/ports"
)

// ErrEncrypted is returned by inspectors for password-protected artifacts.
var ErrEncrypted = errors.New("artifact is encrypted")

// PageSeparator joins per-page text in tier output.
const PageSeparator = "\n\n---\n\n"

// Info is what an Inspector learns about an artifact before extraction.
type Info struct {
	PageCount int
	Encrypted bool
}

// Inspector opens an artifact to check it can be processed at all.
type Inspector interface {
	Inspect(ctx context.Context, path string) (Info, error)
}

// Tier is one extraction method.
type Tier interface {
	Method() domain.ExtractionMethod
	Extract(ctx context.Context, path string) (string, error)
}

// Options bounds the engine.
type Options struct {
	MaxPages       int
	MaxPagesForOCR int
	Strict         Profile
	OCR            Profile
}

// Deps wires the inspector and the tiers. Tiers run in order under the strict
// profile; OCR, when set, runs last under the OCR profile.
type Deps struct {
	Inspector Inspector
	Tiers     []Tier
	OCR       Tier
	Logger    *slog.Logger
	Now       func() time.Time
}

// Engine runs the tiered extraction for one artifact at a time.
type Engine struct {
	opts      Options
	inspector Inspector
	tiers     []Tier
	ocr       Tier
	logger    *slog.Logger
	now       func() time.Time
}

var _ ports.Extractor = (*Engine)(nil)

// NewEngine builds an Engine.
func NewEngine(opts Options, deps Deps) *Engine {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		opts:      opts,
		inspector: deps.Inspector,
		tiers:     deps.Tiers,
		ocr:       deps.OCR,
		logger:    logging.OrDiscard(deps.Logger),
		now:       now,
	}
}

// Extract returns the accepted text for the artifact at path. An existing
// sidecar is reused; otherwise the accepted text is written to a new one.
func (e *Engine) Extract(ctx context.Context, path string) domain.ExtractionResult {
	name := filepath.Base(path)
	log := e.logger.With("file", name)

	if HasSidecar(path) {
		res, err := e.reuse(path)
		if err == nil {
			log.Info("sidecar exists, skipping extraction", "method", res.Method, "chars", res.CharCount)
			return res
		}
		log.Warn("unreadable sidecar, extracting again", "error", err)
	}

	info, err := e.inspect(ctx, path)
	switch {
	case errors.Is(err, ErrEncrypted) || info.Encrypted:
		log.Warn("encrypted artifact skipped")
		return domain.ExtractionResult{Reason: domain.ReasonEncrypted}
	case err != nil:
		log.Error("cannot open artifact", "error", err)
		return domain.ExtractionResult{Reason: domain.ReasonCannotOpen}
	}

	pages := info.PageCount
	if e.opts.MaxPages > 0 && pages > e.opts.MaxPages {
		log.Warn("artifact has too many pages", "pages", pages, "max", e.opts.MaxPages)
		return domain.ExtractionResult{Reason: domain.ReasonTooManyPages, PageCount: pages}
	}

	for _, tier := range e.tiers {
		if text, ok := e.attempt(ctx, log, tier, path, pages, e.opts.Strict); ok {
			return e.accept(log, path, tier.Method(), text, pages)
		}
	}

	if e.ocr != nil {
		if e.opts.MaxPagesForOCR > 0 && pages > e.opts.MaxPagesForOCR {
			log.Warn("skipping ocr for long document", "pages", pages, "max", e.opts.MaxPagesForOCR)
		} else if text, ok := e.attempt(ctx, log, e.ocr, path, pages, e.opts.OCR); ok {
			return e.accept(log, path, e.ocr.Method(), text, pages)
		}
	}

	log.Error("all extraction methods failed", "pages", pages)
	return domain.ExtractionResult{Reason: domain.ReasonAllMethodsFailed, PageCount: pages}
}

func (e *Engine) inspect(ctx context.Context, path string) (info Info, err error) {
	if e.inspector == nil {
		return Info{}, errors.New("no inspector configured")
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("inspect panicked: %v", r)
		}
	}()
	return e.inspector.Inspect(ctx, path)
}

func (e *Engine) attempt(ctx context.Context, log *slog.Logger, tier Tier, path string, pages int, profile Profile) (string, bool) {
	method := tier.Method()
	if ctx.Err() != nil {
		return "", false
	}
	log.Info("extraction tier starting", "method", method)

	text, err := runTier(ctx, tier, path)
	if err != nil {
		log.Warn("extraction tier failed", "method", method, "error", err)
		return "", false
	}
	if rej := profile.Evaluate(text, pages); rej != nil {
		log.Warn("extraction tier rejected by quality gate",
			"method", method, "check", rej.Check, "value", rej.Value, "threshold", rej.Threshold, "detail", rej.Detail)
		return "", false
	}
	return text, true
}

func runTier(ctx context.Context, tier Tier, path string) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tier %s panicked: %v", tier.Method(), r)
		}
	}()
	return tier.Extract(ctx, path)
}

func (e *Engine) accept(log *slog.Logger, path string, method domain.ExtractionMethod, text string, pages int) domain.ExtractionResult {
	text = strings.TrimSpace(text)
	res := domain.ExtractionResult{
		Success:   true,
		Text:      text,
		Method:    method,
		PageCount: pages,
		CharCount: CharCount(text),
	}

	meta := Sidecar{
		SourcePDF:        filepath.Base(path),
		ExtractionMethod: method,
		ExtractionDate:   e.now().UTC(),
		PageCount:        pages,
		CharCount:        res.CharCount,
	}
	if err := WriteSidecar(path, meta, text); err != nil {
		log.Warn("sidecar not written", "error", err)
	}

	log.Info("extraction succeeded", "method", method, "chars", res.CharCount, "pages", pages)
	return res
}

func (e *Engine) reuse(path string) (domain.ExtractionResult, error) {
	meta, text, err := ReadSidecar(path)
	if err != nil {
		return domain.ExtractionResult{}, err
	}
	if text == "" {
		return domain.ExtractionResult{}, errors.New("sidecar has no text")
	}
	chars := meta.CharCount
	if chars == 0 {
		chars = CharCount(text)
	}
	return domain.ExtractionResult{
		Success:   true,
		Skipped:   true,
		Text:      text,
		Method:    meta.ExtractionMethod,
		PageCount: meta.PageCount,
		CharCount: chars,
	}, nil
}
