package guard

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"

	"FilingMonitor/internal/logging"
	"FilingMonitor/internal/ports"
)

const maxRobotsBytes = 512 << 10

// RobotsPolicy caches the site's robots.txt for one acquisition run and
// answers path checks from it. Refresh starts a new run. Any failure to
// obtain or parse the file allows everything until the next Refresh.
type RobotsPolicy struct {
	url       string
	userAgent string
	client    *http.Client
	logger    *slog.Logger

	mu     sync.Mutex
	loaded bool
	data   *robotstxt.RobotsData
}

var _ ports.CrawlPolicy = (*RobotsPolicy)(nil)

// NewRobotsPolicy builds a policy for baseURL+robotsPath.
func NewRobotsPolicy(baseURL, robotsPath, userAgent string, client *http.Client, logger *slog.Logger) *RobotsPolicy {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &RobotsPolicy{
		url:       robotsURL(baseURL, robotsPath),
		userAgent: userAgent,
		client:    client,
		logger:    logging.OrDiscard(logger),
	}
}

// Refresh re-reads robots.txt, replacing the cached policy.
func (p *RobotsPolicy) Refresh(ctx context.Context) {
	data, err := p.load(ctx)
	if err != nil {
		p.logger.Warn("robots policy unavailable, allowing all paths", "url", p.url, "error", err)
	}

	p.mu.Lock()
	p.data = data
	p.loaded = true
	p.mu.Unlock()
}

// Allowed reports whether agent may fetch path. The policy is loaded on
// first use when Refresh has not been called.
func (p *RobotsPolicy) Allowed(ctx context.Context, path, agent string) bool {
	p.mu.Lock()
	loaded := p.loaded
	p.mu.Unlock()
	if !loaded {
		p.Refresh(ctx)
	}

	p.mu.Lock()
	data := p.data
	p.mu.Unlock()
	if data == nil {
		return true
	}
	if agent == "" {
		agent = p.userAgent
	}
	if group := data.FindGroup(agent); group != nil && group.CrawlDelay > 0 {
		p.logger.Info("robots.txt specifies crawl delay", "agent", agent, "delay", group.CrawlDelay)
	}
	allowed := data.TestAgent(path, agent)
	if !allowed {
		p.logger.Warn("robots.txt disallows path", "path", path, "agent", agent)
	}
	return allowed
}

func (p *RobotsPolicy) load(ctx context.Context) (*robotstxt.RobotsData, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if p.userAgent != "" {
		req.Header.Set("User-Agent", p.userAgent)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch robots.txt: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRobotsBytes))
	if err != nil {
		return nil, fmt.Errorf("read robots.txt: %w", err)
	}

	data, err := robotstxt.FromBytes(body)
	if err != nil {
		return nil, fmt.Errorf("parse robots.txt: %w", err)
	}
	return data, nil
}

func robotsURL(baseURL, robotsPath string) string {
	if strings.HasPrefix(robotsPath, "http://") || strings.HasPrefix(robotsPath, "https://") {
		return robotsPath
	}
	if robotsPath == "" {
		robotsPath = "/robots.txt"
	}
	if !strings.HasPrefix(robotsPath, "/") {
		robotsPath = "/" + robotsPath
	}
	return strings.TrimRight(baseURL, "/") + robotsPath
}
