// Package fetcher streams filing artifacts to disk with all-or-nothing
// semantics per filing.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"FilingMonitor/internal/domain"
	"FilingMonitor/internal/logging"
	"FilingMonitor/internal/ports"
	"FilingMonitor/pkg/retry"
)

var (
	// ErrHTMLResponse means the link served a viewer page instead of a file.
	ErrHTMLResponse = errors.New("response is html, not a binary artifact")
	// ErrTooLarge means the artifact exceeds the configured maximum size.
	ErrTooLarge = errors.New("artifact exceeds maximum size")
)

// Options configures downloads.
type Options struct {
	FilingsDir string
	UserAgent  string
	Timeout    time.Duration
	ChunkSize  int
	MaxBytes   int64
	Retry      retry.Policy
}

// Deps wires the driven collaborators.
type Deps struct {
	HTTPClient *http.Client
	Pacer      ports.Pacer
	Logger     *slog.Logger
}

// Fetcher downloads every document of a filing sequentially.
type Fetcher struct {
	opts   Options
	client *http.Client
	pacer  ports.Pacer
	logger *slog.Logger
}

var _ ports.DocumentFetcher = (*Fetcher)(nil)

// New builds a Fetcher.
func New(opts Options, deps Deps) *Fetcher {
	client := deps.HTTPClient
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 120 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = 8192
	}
	if opts.Retry.Attempts <= 0 {
		opts.Retry.Attempts = 3
	}
	return &Fetcher{
		opts:   opts,
		client: client,
		pacer:  deps.Pacer,
		logger: logging.OrDiscard(deps.Logger),
	}
}

// FilingDir is the directory that holds everything stored for filing.
func (f *Fetcher) FilingDir(filing domain.Filing) string {
	return filepath.Join(f.opts.FilingsDir, filing.DirName())
}

// DocumentPath is the final location of the n-th (1-based) document.
func (f *Fetcher) DocumentPath(filing domain.Filing, n int) string {
	return filepath.Join(f.FilingDir(filing), "documents", fmt.Sprintf("doc_%03d.pdf", n))
}

// FetchAll downloads the filing's documents in order. When any document
// fails, the filing directory is removed and every document is returned as
// failed with no local path.
func (f *Fetcher) FetchAll(ctx context.Context, filing domain.Filing) ([]domain.Document, error) {
	docs := make([]domain.Document, len(filing.Documents))
	copy(docs, filing.Documents)
	if len(docs) == 0 {
		f.logger.Info("filing has no documents to download", "filing_id", filing.ID)
		return docs, nil
	}

	for i := range docs {
		dest := f.DocumentPath(filing, i+1)
		size, err := f.download(ctx, docs[i].URL, dest)
		if err != nil {
			f.logger.Error("document download failed",
				"filing_id", filing.ID, "document", i+1, "of", len(docs), "url", docs[i].URL, "error", err)
			f.discard(filing, docs)
			return docs, fmt.Errorf("document %d/%d (%s): %w", i+1, len(docs), docs[i].URL, err)
		}

		docs[i].LocalPath = dest
		docs[i].SizeBytes = size
		docs[i].FetchStatus = domain.StatusSuccess

		if i < len(docs)-1 && f.pacer != nil {
			if err := f.pacer.Wait(ctx); err != nil {
				f.discard(filing, docs)
				return docs, fmt.Errorf("pace downloads: %w", err)
			}
		}
	}
	return docs, nil
}

// Discard removes everything stored on disk for filing.
func (f *Fetcher) Discard(filing domain.Filing) error {
	dir := f.FilingDir(filing)
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("remove filing directory %s: %w", dir, err)
	}
	f.logger.Info("removed filing directory", "dir", dir)
	return nil
}

func (f *Fetcher) discard(filing domain.Filing, docs []domain.Document) {
	if err := f.Discard(filing); err != nil {
		f.logger.Warn("cleanup filing directory", "filing_id", filing.ID, "error", err)
	}
	for i := range docs {
		docs[i].FetchStatus = domain.StatusFailed
		docs[i].LocalPath = ""
		docs[i].SizeBytes = 0
	}
}

func (f *Fetcher) download(ctx context.Context, url, dest string) (int64, error) {
	f.logger.Info("downloading document", "url", url, "dest", dest)

	var size int64
	err := f.opts.Retry.Do(ctx, func(ctx context.Context) error {
		var err error
		size, err = f.attempt(ctx, url, dest)
		return err
	}, func(attempt int, err error, wait time.Duration) {
		f.logger.Warn("download failed, retrying", "url", url, "attempt", attempt, "wait", wait, "error", err)
	})
	if err != nil {
		return 0, err
	}

	f.logger.Info("document downloaded", "url", url, "bytes", size, "dest", dest)
	return size, nil
}

// attempt streams one response into dest+".tmp" and renames it on success.
func (f *Fetcher) attempt(ctx context.Context, url, dest string) (size int64, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, retry.Permanent(fmt.Errorf("create request: %w", err))
	}
	if f.opts.UserAgent != "" {
		req.Header.Set("User-Agent", f.opts.UserAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return 0, retry.NewStatusError(resp)
	}
	if isHTML(resp.Header.Get("Content-Type")) {
		return 0, retry.Permanent(ErrHTMLResponse)
	}
	if f.opts.MaxBytes > 0 && resp.ContentLength > f.opts.MaxBytes {
		return 0, retry.Permanent(fmt.Errorf("%w: declared %d > %d bytes", ErrTooLarge, resp.ContentLength, f.opts.MaxBytes))
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return 0, retry.Permanent(fmt.Errorf("create directory: %w", err))
	}
	tmp := dest + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return 0, retry.Permanent(fmt.Errorf("create temp file: %w", err))
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp)
		}
	}()

	guard := &sizeGuard{w: out, max: f.opts.MaxBytes}
	size, err = io.CopyBuffer(guard, resp.Body, make([]byte, f.opts.ChunkSize))
	if cerr := out.Close(); err == nil && cerr != nil {
		err = cerr
	}
	if err != nil {
		if errors.Is(err, ErrTooLarge) {
			return 0, retry.Permanent(fmt.Errorf("%w: streamed more than %d bytes", ErrTooLarge, f.opts.MaxBytes))
		}
		return 0, fmt.Errorf("stream body: %w", err)
	}

	if err = os.Rename(tmp, dest); err != nil {
		return 0, retry.Permanent(fmt.Errorf("rename temp file: %w", err))
	}
	return size, nil
}

// sizeGuard fails the copy as soon as more than max bytes were offered.
type sizeGuard struct {
	w   io.Writer
	n   int64
	max int64
}

func (g *sizeGuard) Write(p []byte) (int, error) {
	g.n += int64(len(p))
	if g.max > 0 && g.n > g.max {
		return 0, ErrTooLarge
	}
	return g.w.Write(p)
}

func isHTML(contentType string) bool {
	if contentType == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.Contains(strings.ToLower(contentType), "text/html")
	}
	return mediaType == "text/html"
}
