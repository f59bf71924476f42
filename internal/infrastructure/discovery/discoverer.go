package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"FilingMonitor/internal/domain"
	"FilingMonitor/internal/logging"
	"FilingMonitor/internal/ports"
)

// lookbackPeriods are the listing's p= values; 1=day, 2=week, 3=month.
var lookbackPeriods = []int{1, 2, 3}

// Options configures a discovery session.
type Options struct {
	BaseURL     string
	FilingsPath string
	UserAgent   string
	// Lookback is the primary p= value, tried first.
	Lookback int
	Retries  int
}

// Deps wires the driven collaborators.
type Deps struct {
	Browser Browser
	Pacer   ports.Pacer
	Logger  *slog.Logger
}

// Discoverer navigates the listing page in a browser and records the
// structured responses it triggers.
type Discoverer struct {
	opts    Options
	browser Browser
	pacer   ports.Pacer
	logger  *slog.Logger
}

var _ ports.Discoverer = (*Discoverer)(nil)

// NewDiscoverer builds a discoverer.
func NewDiscoverer(opts Options, deps Deps) *Discoverer {
	if opts.Retries <= 0 {
		opts.Retries = 1
	}
	return &Discoverer{
		opts:    opts,
		browser: deps.Browser,
		pacer:   deps.Pacer,
		logger:  logging.OrDiscard(deps.Logger),
	}
}

// Targets lists the navigation URLs in attempt order: the primary lookback
// first, then the remaining periods, capped at the retry count.
func (d *Discoverer) Targets() []string {
	primary := d.opts.Lookback
	if primary < 1 || primary > 3 {
		primary = 2
	}
	periods := []int{primary}
	for _, p := range lookbackPeriods {
		if p != primary {
			periods = append(periods, p)
		}
	}
	attempts := min(d.opts.Retries, len(periods))

	base := strings.TrimRight(d.opts.BaseURL, "/") + d.opts.FilingsPath
	targets := make([]string, 0, attempts)
	for _, p := range periods[:attempts] {
		targets = append(targets, fmt.Sprintf("%s?p=%d", base, p))
	}
	return targets
}

// Discover runs one session. Failures are logged and reported through
// DiscoveryResult.Success; it never returns an error.
func (d *Discoverer) Discover(ctx context.Context) domain.DiscoveryResult {
	var result domain.DiscoveryResult
	if d.browser == nil {
		d.logger.Warn("no browser configured, skipping discovery")
		return result
	}

	session, err := d.browser.NewSession(ctx, d.opts.UserAgent)
	if err != nil {
		d.logger.Warn("browser unavailable", "error", err)
		return result
	}
	defer func() {
		if err := session.Close(); err != nil {
			d.logger.Debug("close browser session", "error", err)
		}
	}()

	capture := newCapture(d.logger)
	session.OnResponse(capture.handle)

	targets := d.Targets()
	d.logger.Info("starting endpoint discovery", "attempts", len(targets), "primary", targets[0])

	for i, target := range targets {
		if ctx.Err() != nil {
			break
		}
		d.logger.Info("discovery navigation", "attempt", i+1, "url", target)
		if err := session.Navigate(ctx, target); err != nil {
			d.logger.Warn("navigation failed", "url", target, "error", err)
		}
		result.PageURL = target

		if n := capture.filingCount(); n > 0 {
			d.logger.Info("filing endpoints found", "count", n, "attempt", i+1)
			break
		}
		if i < len(targets)-1 && d.pacer != nil {
			if err := d.pacer.Wait(ctx); err != nil {
				break
			}
		}
	}

	if cookies, err := session.Cookies(ctx); err != nil {
		d.logger.Warn("cookies unavailable", "error", err)
	} else {
		result.Cookies = cookies
	}
	if html, err := session.HTML(ctx); err != nil {
		d.logger.Warn("rendered html unavailable", "error", err)
	} else {
		result.RenderedHTML = html
	}

	result.Endpoints = capture.endpoints()
	result.Success = len(result.FilingEndpoints()) > 0
	if result.Success {
		d.logger.Info("discovery complete",
			"endpoints", len(result.Endpoints),
			"filing_endpoints", len(result.FilingEndpoints()))
	} else {
		d.logger.Warn("discovery found no filing endpoints", "endpoints", len(result.Endpoints))
	}
	return result
}

type capture struct {
	logger *slog.Logger

	mu       sync.Mutex
	captured []domain.DiscoveredEndpoint
}

func newCapture(logger *slog.Logger) *capture {
	return &capture{logger: logger}
}

func (c *capture) handle(resp Response) {
	ct := strings.ToLower(resp.ContentType)
	if !strings.Contains(ct, "json") && !strings.Contains(ct, "xml") {
		return
	}

	endpoint := domain.DiscoveredEndpoint{
		URL:         resp.URL,
		Method:      resp.Method,
		StatusCode:  resp.Status,
		ContentType: resp.ContentType,
		Shape:       domain.ShapeOther,
		Body:        resp.Body,
	}
	if strings.Contains(ct, "json") {
		var body any
		if err := json.Unmarshal(resp.Body, &body); err != nil {
			c.logger.Debug("skipping undecodable response", "url", resp.URL, "error", err)
			return
		}
		endpoint.Shape, endpoint.Confidence = Classify(body, resp.URL)
	}

	c.logger.Debug("captured response",
		"method", endpoint.Method,
		"url", endpoint.URL,
		"status", endpoint.StatusCode,
		"shape", endpoint.Shape)

	c.mu.Lock()
	c.captured = append(c.captured, endpoint)
	c.mu.Unlock()
}

func (c *capture) filingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, ep := range c.captured {
		if ep.FilingLike() {
			n++
		}
	}
	return n
}

func (c *capture) endpoints() []domain.DiscoveredEndpoint {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.DiscoveredEndpoint(nil), c.captured...)
}
