package pdf

import (
	"context"
	"fmt"
	"strings"

	lpdf "github.com/ledongthuc/pdf"

	"FilingMonitor/internal/domain"
	"FilingMonitor/internal/extraction"
)

// TextTier reads the text layer page by page. Pages carrying a table are
// laid out from text positions so the table survives as markdown.
type TextTier struct{}

var _ extraction.Tier = TextTier{}

// Method implements extraction.Tier.
func (TextTier) Method() domain.ExtractionMethod { return domain.MethodText }

// Extract implements extraction.Tier.
func (TextTier) Extract(ctx context.Context, path string) (string, error) {
	var pages []string
	err := eachPage(ctx, path, func(_ int, p lpdf.Page) error {
		plain, err := p.GetPlainText(nil)
		if err != nil {
			return err
		}
		var lines []Line
		if rows, err := p.GetTextByRow(); err == nil {
			lines = toLines(rows)
		}
		if text := composePage(plain, lines, mediaBox(p)); text != "" {
			pages = append(pages, text)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return strings.Join(pages, extraction.PageSeparator), nil
}

// composePage keeps the plain text stream unless the positioned lines hold a table.
func composePage(plain string, lines []Line, page Rect) string {
	if hasTable(lines) {
		if text := LayoutPage(lines, page); text != "" {
			return text
		}
	}
	return strings.TrimSpace(plain)
}

// eachPage opens path and calls fn for every non-empty page, 1-based.
func eachPage(ctx context.Context, path string, fn func(n int, p lpdf.Page) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("read pdf: %v", r)
		}
	}()

	f, r, err := lpdf.Open(path)
	if err != nil {
		return fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	for i := 1; i <= r.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		if err := fn(i, p); err != nil {
			return fmt.Errorf("page %d: %w", i, err)
		}
	}
	return nil
}
