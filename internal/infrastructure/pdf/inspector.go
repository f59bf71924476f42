// Package pdf adapts the PDF libraries to the extraction engine: page
// inspection, the text and table tiers and the OCR tier.
package pdf

import (
	"context"
	"errors"
	"fmt"
	"os"

	lpdf "github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"FilingMonitor/internal/extraction"
)

// Inspector reads page counts with pdfcpu and probes encryption with the
// text reader.
type Inspector struct{}

var _ extraction.Inspector = Inspector{}

// Inspect implements extraction.Inspector.
func (Inspector) Inspect(_ context.Context, path string) (extraction.Info, error) {
	if encrypted, _ := probeEncryption(path); encrypted {
		return extraction.Info{Encrypted: true}, extraction.ErrEncrypted
	}

	pages, err := PageCount(path)
	if err != nil {
		return extraction.Info{}, err
	}
	return extraction.Info{PageCount: pages}, nil
}

// PageCount returns the number of pages of the PDF at path.
func PageCount(path string) (n int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("count pages: %v", r)
		}
	}()
	n, err = api.PageCount(f, model.NewDefaultConfiguration())
	if err != nil {
		return 0, fmt.Errorf("count pages: %w", err)
	}
	return n, nil
}

// probeEncryption reports whether the file needs a user password.
func probeEncryption(path string) (encrypted bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("probe pdf: %v", r)
		}
	}()
	f, _, err := lpdf.Open(path)
	if err != nil {
		return errors.Is(err, lpdf.ErrInvalidPassword), err
	}
	f.Close()
	return false, nil
}
