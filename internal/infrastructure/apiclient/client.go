package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"FilingMonitor/internal/domain"
	"FilingMonitor/internal/logging"
	"FilingMonitor/internal/ports"
	"FilingMonitor/pkg/retry"
)

const maxResponseBytes = 20 << 20

// Options configures the direct fetch client.
type Options struct {
	BaseURL           string
	UserAgent         string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
	Retry             retry.Policy
}

// Deps wires the driven collaborators.
type Deps struct {
	HTTPClient *http.Client
	Pacer      ports.Pacer
	Logger     *slog.Logger
}

// Client re-issues discovered structured requests with the browser's cookies.
type Client struct {
	opts    Options
	client  *http.Client
	limiter *rate.Limiter
	pacer   ports.Pacer
	logger  *slog.Logger
}

var _ ports.EndpointClient = (*Client)(nil)

// New builds a Client.
func New(opts Options, deps Deps) *Client {
	client := deps.HTTPClient
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}

	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}
	if opts.Retry.Attempts <= 0 {
		opts.Retry.Attempts = 3
	}

	return &Client{
		opts:    opts,
		client:  client,
		limiter: rate.NewLimiter(limit, burst),
		pacer:   deps.Pacer,
		logger:  logging.OrDiscard(deps.Logger),
	}
}

// Fetch queries one endpoint and parses its records. Failures are logged and
// yield an empty list.
func (c *Client) Fetch(ctx context.Context, endpoint domain.DiscoveredEndpoint, cookies []domain.Cookie) []domain.Filing {
	var body any
	err := c.opts.Retry.Do(ctx, func(ctx context.Context) error {
		var err error
		body, err = c.get(ctx, endpoint.URL, cookies)
		return err
	}, func(attempt int, err error, wait time.Duration) {
		c.logger.Warn("endpoint request failed, retrying",
			"url", endpoint.URL, "attempt", attempt, "wait", wait, "error", err)
	})
	if err != nil {
		var se *retry.StatusError
		if errors.As(err, &se) && (se.StatusCode == http.StatusUnauthorized || se.StatusCode == http.StatusForbidden) {
			c.logger.Warn("endpoint rejected the session, cookies may have expired",
				"url", endpoint.URL, "status", se.StatusCode)
		} else {
			c.logger.Warn("endpoint fetch failed", "url", endpoint.URL, "error", err)
		}
		return nil
	}

	filings := ParseRecords(body, c.opts.BaseURL)
	c.logger.Debug("endpoint parsed", "url", endpoint.URL, "filings", len(filings))
	return filings
}

// FetchAll queries every endpoint in order, pacing between requests.
func (c *Client) FetchAll(ctx context.Context, endpoints []domain.DiscoveredEndpoint, cookies []domain.Cookie) []domain.Filing {
	var all []domain.Filing
	for i, ep := range endpoints {
		if ctx.Err() != nil {
			break
		}
		all = append(all, c.Fetch(ctx, ep, cookies)...)
		if i < len(endpoints)-1 && c.pacer != nil {
			if err := c.pacer.Wait(ctx); err != nil {
				break
			}
		}
	}
	c.logger.Info("direct fetch complete", "endpoints", len(endpoints), "filings", len(all))
	return all
}

func (c *Client) get(ctx context.Context, url string, cookies []domain.Cookie) (any, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, retry.Permanent(fmt.Errorf("rate limiter: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	if c.opts.UserAgent != "" {
		req.Header.Set("User-Agent", c.opts.UserAgent)
	}
	for _, ck := range cookies {
		req.AddCookie(&http.Cookie{Name: ck.Name, Value: ck.Value})
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, retry.NewStatusError(resp)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	var body any
	if err := json.Unmarshal(raw, &body); err != nil {
		ct := resp.Header.Get("Content-Type")
		return nil, retry.Permanent(fmt.Errorf("decode %s response: %w", strings.TrimSpace(ct), err))
	}
	return body, nil
}
