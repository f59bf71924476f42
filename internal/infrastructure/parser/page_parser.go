package parser

import (
	"fmt"
	"log/slog"
	"path"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"FilingMonitor/internal/domain"
	"FilingMonitor/internal/infrastructure/fields"
	"FilingMonitor/internal/logging"
	"FilingMonitor/internal/ports"
)

var (
	filingLinkExpr   = regexp.MustCompile(`(?i)/Item/Filing/([A-Za-z0-9]+)`)
	documentLinkExpr = regexp.MustCompile(`(?i)/Item/View/([A-Za-z0-9]+)`)
	looseDateExpr    = regexp.MustCompile(`(\d{4}-\d{2}-\d{2}|\d{2}/\d{2}/\d{4}|\w+ \d{1,2},?\s+\d{4})`)
	isoDateExpr      = regexp.MustCompile(`(\d{4}-\d{2}-\d{2})`)
)

// tableHeaderKeywords identify filing tables; a table needs two matching headers.
var tableHeaderKeywords = []string{"filing", "date", "applicant", "type", "proceeding", "title", "name"}

var documentExtensions = []string{".pdf", ".doc", ".docx", ".xls", ".xlsx", ".csv", ".rtf", ".txt", ".zip"}

// attributeSelectors are tried in order by the attribute strategy.
var attributeSelectors = []string{"[data-filing-id]", "[data-id]", "[data-nodeid]", "[data-filing]"}

// PageParser extracts filings from rendered listing markup with three
// independent heuristics and merges their output.
type PageParser struct {
	baseURL string
	logger  *slog.Logger
}

var _ ports.PageParser = (*PageParser)(nil)

// NewPageParser builds a parser that resolves links against baseURL.
func NewPageParser(baseURL string, logger *slog.Logger) *PageParser {
	return &PageParser{baseURL: strings.TrimRight(baseURL, "/"), logger: logging.OrDiscard(logger)}
}

// Parse runs the table, link and attribute strategies and merges their
// candidates by id, keeping the richer candidate on conflict.
func (p *PageParser) Parse(html string) []domain.Filing {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		p.logger.Warn("parse rendered html", "error", err)
		return nil
	}

	tables := p.fromTables(doc)
	links := p.fromLinks(doc)
	attrs := p.fromAttributes(doc)
	p.logger.Debug("page strategies",
		"table", len(tables), "link", len(links), "attribute", len(attrs))

	merged := Merge(tables, links, attrs)
	if len(merged) == 0 {
		p.logger.Warn("page parser found no filings; the listing layout may have changed", "html_bytes", len(html))
	} else {
		p.logger.Info("page parser complete", "filings", len(merged))
	}
	return merged
}

// Merge deduplicates candidate lists by id. The first occurrence fixes the
// position; a later candidate replaces it only when strictly richer.
func Merge(groups ...[]domain.Filing) []domain.Filing {
	var out []domain.Filing
	index := map[string]int{}
	for _, group := range groups {
		for _, f := range group {
			if i, ok := index[f.ID]; ok {
				if f.Richness() > out[i].Richness() {
					out[i] = f
				}
				continue
			}
			index[f.ID] = len(out)
			out = append(out, f)
		}
	}
	return out
}

func (p *PageParser) fromTables(doc *goquery.Document) []domain.Filing {
	var filings []domain.Filing

	doc.Find("table").Each(func(_ int, table *goquery.Selection) {
		rows := table.Find("tr")
		if rows.Length() == 0 {
			return
		}

		headers := rows.First().Find("th, td").Map(func(_ int, cell *goquery.Selection) string {
			return strings.ToLower(fields.CleanText(cell.Text()))
		})
		matches := 0
		columns := map[string]int{}
		for i, h := range headers {
			hit := false
			for _, kw := range tableHeaderKeywords {
				if strings.Contains(h, kw) {
					hit = true
					if _, ok := columns[kw]; !ok {
						columns[kw] = i
					}
				}
			}
			if hit {
				matches++
			}
		}
		if matches < 2 {
			return
		}

		rows.Slice(1, rows.Length()).Each(func(_ int, row *goquery.Selection) {
			cells := row.Find("td, th")
			if cells.Length() < 2 {
				return
			}

			var id, filingURL string
			row.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
				href, _ := a.Attr("href")
				if m := filingLinkExpr.FindStringSubmatch(href); m != nil {
					id = m[1]
					filingURL = fields.Absolute(p.baseURL, href)
					return false
				}
				return true
			})
			if id == "" {
				return
			}

			cell := func(kw string) string {
				i, ok := columns[kw]
				if !ok || i >= cells.Length() {
					return ""
				}
				return fields.CleanText(cells.Eq(i).Text())
			}

			filings = append(filings, domain.Filing{
				ID:         id,
				Date:       fields.ParseDate(cell("date"), fields.PageDateLayouts),
				Applicant:  firstNonEmpty(cell("applicant"), cell("name")),
				Category:   cell("type"),
				Proceeding: cell("proceeding"),
				Title:      firstNonEmpty(cell("title"), cell("filing")),
				URL:        filingURL,
				Documents:  p.documentLinks(row),
			})
		})
	})
	return filings
}

func (p *PageParser) fromLinks(doc *goquery.Document) []domain.Filing {
	var filings []domain.Filing
	seen := map[string]bool{}

	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		m := filingLinkExpr.FindStringSubmatch(href)
		if m == nil || seen[m[1]] {
			return
		}
		id := m[1]
		seen[id] = true

		container := a
		if parent := a.Parent(); parent.Length() > 0 {
			container = parent
			if grand := parent.Parent(); grand.Length() > 0 {
				container = grand
			}
		}

		f := domain.Filing{
			ID:        id,
			URL:       fields.Absolute(p.baseURL, href),
			Documents: p.documentLinks(container),
		}
		if dm := looseDateExpr.FindString(fields.CleanText(container.Text())); dm != "" {
			f.Date = fields.ParseDate(dm, fields.PageDateLayouts)
		}
		if text := fields.CleanText(a.Text()); text != "" && text != id {
			f.Title = text
		}
		filings = append(filings, f)
	})
	return filings
}

func (p *PageParser) fromAttributes(doc *goquery.Document) []domain.Filing {
	var filings []domain.Filing
	seen := map[string]bool{}

	for _, selector := range attributeSelectors {
		doc.Find(selector).Each(func(_ int, el *goquery.Selection) {
			id := strings.TrimSpace(attrOf(el, "data-filing-id", "data-id", "data-nodeid", "data-filing"))
			if id == "" || seen[id] {
				return
			}
			seen[id] = true

			text := fields.CleanText(el.Text())
			f := domain.Filing{
				ID:         id,
				Applicant:  attrOf(el, "data-applicant", "data-company"),
				Category:   attrOf(el, "data-type", "data-filing-type"),
				Proceeding: attrOf(el, "data-proceeding"),
				Title:      attrOf(el, "data-title", "title"),
				URL:        fmt.Sprintf("%s/Item/Filing/%s", p.baseURL, id),
				Documents:  p.documentLinks(el),
			}
			if raw := attrOf(el, "data-date", "data-filing-date"); raw != "" {
				f.Date = fields.ParseDate(raw, fields.PageDateLayouts)
			} else if dm := isoDateExpr.FindString(text); dm != "" {
				f.Date = fields.ParseDate(dm, fields.PageDateLayouts)
			}
			if f.Title == "" {
				f.Title = truncate(text, 200)
			}
			filings = append(filings, f)
		})
	}
	return filings
}

// documentLinks collects viewer links and direct file links inside container.
func (p *PageParser) documentLinks(container *goquery.Selection) []domain.Document {
	var docs []domain.Document
	seen := map[string]bool{}

	container.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		resolved := fields.Absolute(p.baseURL, href)
		if resolved == "" || seen[resolved] {
			return
		}
		text := fields.CleanText(a.Text())

		switch {
		case documentLinkExpr.MatchString(href):
			seen[resolved] = true
			docs = append(docs, domain.Document{
				URL:         resolved,
				Filename:    text,
				ContentType: fields.ContentTypeFor(href),
			})
		case hasDocumentExtension(href):
			seen[resolved] = true
			name := text
			if name == "" {
				name = path.Base(strings.SplitN(href, "?", 2)[0])
			}
			docs = append(docs, domain.Document{
				URL:         resolved,
				Filename:    name,
				ContentType: fields.ContentTypeFor(href),
			})
		}
	})
	return docs
}

func hasDocumentExtension(href string) bool {
	lower := strings.ToLower(strings.SplitN(href, "?", 2)[0])
	for _, ext := range documentExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

func attrOf(sel *goquery.Selection, names ...string) string {
	for _, n := range names {
		if v, ok := sel.Attr(n); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
