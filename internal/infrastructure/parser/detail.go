package parser

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"FilingMonitor/internal/domain"
	"FilingMonitor/internal/infrastructure/discovery"
	"FilingMonitor/internal/infrastructure/fields"
	"FilingMonitor/internal/logging"
	"FilingMonitor/internal/ports"
)

var downloadLinkExpr = regexp.MustCompile(`(?i)/File/Download/([A-Za-z0-9]+)`)

// DetailScraper renders filing detail pages to find download links that the
// listing does not carry.
type DetailScraper struct {
	baseURL   string
	userAgent string
	browser   discovery.Browser
	pacer     ports.Pacer
	logger    *slog.Logger
}

var _ ports.DetailEnricher = (*DetailScraper)(nil)

// NewDetailScraper builds an enricher sharing the discovery browser driver.
func NewDetailScraper(baseURL, userAgent string, browser discovery.Browser, pacer ports.Pacer, logger *slog.Logger) *DetailScraper {
	return &DetailScraper{
		baseURL:   strings.TrimRight(baseURL, "/"),
		userAgent: userAgent,
		browser:   browser,
		pacer:     pacer,
		logger:    logging.OrDiscard(logger),
	}
}

// Enrich visits the detail page of every filing that has a URL but no
// documents, in one browser session. It returns the number of filings that
// gained documents.
func (d *DetailScraper) Enrich(ctx context.Context, filings []domain.Filing) int {
	var targets []int
	for i, f := range filings {
		if f.URL != "" && !f.HasDocuments() {
			targets = append(targets, i)
		}
	}
	if len(targets) == 0 || d.browser == nil {
		return 0
	}
	d.logger.Info("enriching filings from detail pages", "count", len(targets))

	session, err := d.browser.NewSession(ctx, d.userAgent)
	if err != nil {
		d.logger.Warn("detail scraper browser unavailable", "error", err)
		return 0
	}
	defer session.Close()

	enriched := 0
	for n, i := range targets {
		if ctx.Err() != nil {
			break
		}
		if n > 0 && d.pacer != nil {
			if err := d.pacer.Wait(ctx); err != nil {
				break
			}
		}

		f := &filings[i]
		if err := session.Navigate(ctx, f.URL); err != nil {
			d.logger.Warn("detail page navigation failed", "filing_id", f.ID, "url", f.URL, "error", err)
			continue
		}
		html, err := session.HTML(ctx)
		if err != nil {
			d.logger.Warn("detail page unreadable", "filing_id", f.ID, "error", err)
			continue
		}

		docs := ParseDetailPage(html, d.baseURL)
		if len(docs) == 0 {
			d.logger.Warn("no download links on detail page", "filing_id", f.ID)
			continue
		}
		f.Documents = docs
		enriched++
		d.logger.Info("detail page documents found", "filing_id", f.ID, "documents", len(docs))
	}

	d.logger.Info("detail enrichment complete", "enriched", enriched, "visited", len(targets))
	return enriched
}

// ParseDetailPage returns the download links of a filing detail page as PDF documents.
func ParseDetailPage(html, baseURL string) []domain.Document {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	var docs []domain.Document
	seen := map[string]bool{}
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		if !downloadLinkExpr.MatchString(href) {
			return
		}
		resolved := fields.Absolute(baseURL, href)
		if seen[resolved] {
			return
		}
		seen[resolved] = true
		docs = append(docs, domain.Document{
			URL:         resolved,
			Filename:    fields.CleanText(a.Text()),
			ContentType: "application/pdf",
		})
	})
	return docs
}
