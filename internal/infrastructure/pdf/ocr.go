package pdf

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/JaimeStill/document-context/pkg/config"
	"github.com/JaimeStill/document-context/pkg/document"
	dcimage "github.com/JaimeStill/document-context/pkg/image"

	"FilingMonitor/internal/domain"
	"FilingMonitor/internal/extraction"
	"FilingMonitor/internal/logging"
)

// PageRenderer rasterises the pages of a document, calling fn once per page in order.
type PageRenderer interface {
	RenderPages(ctx context.Context, path string, fn func(page int, png []byte) error) error
}

// Recognizer turns one page image into text.
type Recognizer interface {
	Recognize(ctx context.Context, png []byte) (string, error)
}

// OCRTier renders every page to an image and recognises its text.
type OCRTier struct {
	renderer   PageRenderer
	recognizer Recognizer
	timeout    time.Duration
	logger     *slog.Logger
}

var _ extraction.Tier = (*OCRTier)(nil)

// NewOCRTier wires a renderer and a recognizer; timeout bounds the whole document.
func NewOCRTier(renderer PageRenderer, recognizer Recognizer, timeout time.Duration, logger *slog.Logger) *OCRTier {
	return &OCRTier{renderer: renderer, recognizer: recognizer, timeout: timeout, logger: logging.OrDiscard(logger)}
}

// Method implements extraction.Tier.
func (t *OCRTier) Method() domain.ExtractionMethod { return domain.MethodOCR }

// Extract implements extraction.Tier.
func (t *OCRTier) Extract(ctx context.Context, path string) (string, error) {
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	var pages []string
	err := t.renderer.RenderPages(ctx, path, func(page int, png []byte) error {
		text, err := t.recognizer.Recognize(ctx, png)
		if err != nil {
			return fmt.Errorf("recognize page %d: %w", page, err)
		}
		if text = strings.TrimSpace(text); text != "" {
			pages = append(pages, text)
		}
		t.logger.Debug("ocr page done", "page", page, "chars", len(text))
		return nil
	})
	if err != nil {
		return "", err
	}
	return strings.Join(pages, extraction.PageSeparator), nil
}

// ImageRenderer rasterises PDF pages through ImageMagick.
type ImageRenderer struct {
	DPI int
}

var _ PageRenderer = ImageRenderer{}

// RenderPages implements PageRenderer.
func (r ImageRenderer) RenderPages(ctx context.Context, path string, fn func(page int, png []byte) error) error {
	pages, err := PageCount(path)
	if err != nil {
		return err
	}

	doc, err := document.Open(path, "application/pdf")
	if err != nil {
		return fmt.Errorf("open document: %w", err)
	}
	defer doc.Close()

	dpi := r.DPI
	if dpi <= 0 {
		dpi = 300
	}
	renderer, err := dcimage.NewImageMagickRenderer(config.ImageConfig{
		Format:  "png",
		DPI:     dpi,
		Options: map[string]any{"background": "white"},
	})
	if err != nil {
		return fmt.Errorf("create renderer: %w", err)
	}

	for n := 1; n <= pages; n++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		page, err := doc.ExtractPage(n)
		if err != nil {
			return fmt.Errorf("extract page %d: %w", n, err)
		}
		data, err := page.ToImage(renderer, nil)
		if err != nil {
			return fmt.Errorf("render page %d: %w", n, err)
		}
		if err := fn(n, data); err != nil {
			return err
		}
	}
	return nil
}

// Tesseract recognises text by piping page images through the tesseract binary.
type Tesseract struct {
	Command  string
	Language string
	DPI      int
}

var _ Recognizer = Tesseract{}

// Recognize implements Recognizer. The process is killed when ctx ends.
func (t Tesseract) Recognize(ctx context.Context, png []byte) (string, error) {
	command := t.Command
	if command == "" {
		command = "tesseract"
	}
	args := []string{"stdin", "stdout"}
	if t.Language != "" {
		args = append(args, "-l", t.Language)
	}
	if t.DPI > 0 {
		args = append(args, "--dpi", strconv.Itoa(t.DPI))
	}

	cmd := exec.CommandContext(ctx, command, args...)
	cmd.Stdin = bytes.NewReader(png)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", fmt.Errorf("%s: %w: %s", command, err, msg)
		}
		return "", fmt.Errorf("%s: %w", command, err)
	}
	return stdout.String(), nil
}
