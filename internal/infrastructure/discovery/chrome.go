package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"FilingMonitor/internal/domain"
	"FilingMonitor/internal/logging"
)

// ChromeBrowser drives a headless Chrome through the DevTools protocol.
type ChromeBrowser struct {
	ExecPath          string
	NavigationTimeout time.Duration
	SettleDelay       time.Duration
	Logger            *slog.Logger
}

var _ Browser = (*ChromeBrowser)(nil)

// NewSession starts a browser process with one tab. Closing the session kills the process.
func (b *ChromeBrowser) NewSession(ctx context.Context, userAgent string) (Session, error) {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts, chromedp.NoSandbox, chromedp.DisableGPU)
	if userAgent != "" {
		opts = append(opts, chromedp.UserAgent(userAgent))
	}
	if b.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(b.ExecPath))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.WithoutCancel(ctx), opts...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)

	s := &chromeSession{
		tabCtx:   tabCtx,
		cancel:   func() { cancelTab(); cancelAlloc() },
		timeout:  b.NavigationTimeout,
		settle:   b.SettleDelay,
		logger:   logging.OrDiscard(b.Logger),
		requests: map[network.RequestID]string{},
	}
	if s.timeout <= 0 {
		s.timeout = 30 * time.Second
	}

	chromedp.ListenTarget(tabCtx, s.onEvent)

	if err := chromedp.Run(tabCtx, network.Enable()); err != nil {
		s.cancel()
		return nil, fmt.Errorf("start browser: %w", err)
	}
	return s, nil
}

type pendingResponse struct {
	id   network.RequestID
	resp Response
}

type chromeSession struct {
	tabCtx  context.Context
	cancel  func()
	timeout time.Duration
	settle  time.Duration
	logger  *slog.Logger

	mu       sync.Mutex
	handlers []func(Response)
	requests map[network.RequestID]string
	pending  []pendingResponse
}

// onEvent runs on the protocol reader goroutine and must not block.
func (s *chromeSession) onEvent(ev any) {
	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		if e.Request == nil {
			return
		}
		s.mu.Lock()
		s.requests[e.RequestID] = e.Request.Method
		s.mu.Unlock()
	case *network.EventResponseReceived:
		if e.Response == nil {
			return
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		if len(s.handlers) == 0 {
			return
		}
		contentType := e.Response.MimeType
		for k, v := range e.Response.Headers {
			if ct, ok := v.(string); ok && ct != "" && strings.EqualFold(k, "content-type") {
				contentType = ct
			}
		}
		if !structured(contentType) {
			return
		}
		method := s.requests[e.RequestID]
		if method == "" {
			method = "GET"
		}
		s.pending = append(s.pending, pendingResponse{
			id: e.RequestID,
			resp: Response{
				URL:         e.Response.URL,
				Method:      method,
				Status:      int(e.Response.Status),
				ContentType: contentType,
			},
		})
	}
}

func (s *chromeSession) OnResponse(fn func(Response)) {
	s.mu.Lock()
	s.handlers = append(s.handlers, fn)
	s.mu.Unlock()
}

// Navigate loads url, waits for the body plus the settle delay, then delivers
// captured structured responses to the registered handlers.
func (s *chromeSession) Navigate(ctx context.Context, url string) error {
	navCtx, cancel := context.WithTimeout(s.tabCtx, s.timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(navCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body"),
		chromedp.Sleep(s.settle),
	)

	s.deliver()
	if err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

func (s *chromeSession) deliver() {
	s.mu.Lock()
	pending := s.pending
	s.pending = nil
	handlers := append([]func(Response){}, s.handlers...)
	s.mu.Unlock()

	for _, p := range pending {
		resp := p.resp
		err := chromedp.Run(s.tabCtx, chromedp.ActionFunc(func(ctx context.Context) error {
			body, err := network.GetResponseBody(p.id).Do(ctx)
			resp.Body = body
			return err
		}))
		if err != nil {
			s.logger.Debug("response body unavailable", "url", resp.URL, "error", err)
			continue
		}
		for _, h := range handlers {
			h(resp)
		}
	}
}

func (s *chromeSession) HTML(ctx context.Context) (string, error) {
	runCtx, cancel := context.WithTimeout(s.tabCtx, s.timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var html string
	if err := chromedp.Run(runCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("read rendered html: %w", err)
	}
	return html, nil
}

func (s *chromeSession) Cookies(ctx context.Context) ([]domain.Cookie, error) {
	runCtx, cancel := context.WithTimeout(s.tabCtx, s.timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var out []domain.Cookie
	err := chromedp.Run(runCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		cookies, err := network.GetCookies().Do(ctx)
		if err != nil {
			return err
		}
		for _, c := range cookies {
			out = append(out, domain.Cookie{Name: c.Name, Value: c.Value, Domain: c.Domain, Path: c.Path})
		}
		return nil
	}))
	if err != nil {
		return nil, fmt.Errorf("read cookies: %w", err)
	}
	return out, nil
}

func (s *chromeSession) Close() error {
	s.cancel()
	return nil
}

func structured(contentType string) bool {
	ct := strings.ToLower(contentType)
	if strings.Contains(ct, "html") {
		return false
	}
	return strings.Contains(ct, "json") || strings.Contains(ct, "xml")
}
