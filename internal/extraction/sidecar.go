package extraction

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"FilingMonitor/internal/domain"
)

const frontmatterDelim = "---"

// Sidecar is the metadata header written above extracted text.
type Sidecar struct {
	SourcePDF        string                  `yaml:"source_pdf"`
	ExtractionMethod domain.ExtractionMethod `yaml:"extraction_method"`
	ExtractionDate   time.Time               `yaml:"extraction_date"`
	PageCount        int                     `yaml:"page_count"`
	CharCount        int                     `yaml:"char_count"`
}

// SidecarPath is the text artifact stored beside source: doc_001.pdf -> doc_001.md.
func SidecarPath(source string) string {
	return strings.TrimSuffix(source, filepath.Ext(source)) + ".md"
}

// HasSidecar reports whether a non-empty sidecar already exists for source.
func HasSidecar(source string) bool {
	info, err := os.Stat(SidecarPath(source))
	return err == nil && !info.IsDir() && info.Size() > 0
}

// WriteSidecar stores text with its frontmatter beside source.
func WriteSidecar(source string, meta Sidecar, text string) error {
	header, err := yaml.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encode frontmatter: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString(frontmatterDelim + "\n")
	buf.Write(header)
	buf.WriteString(frontmatterDelim + "\n\n")
	buf.WriteString(text)
	if !strings.HasSuffix(text, "\n") {
		buf.WriteByte('\n')
	}

	path := SidecarPath(source)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write sidecar: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename sidecar: %w", err)
	}
	return nil
}

// ReadSidecar loads the frontmatter and text stored beside source.
func ReadSidecar(source string) (Sidecar, string, error) {
	raw, err := os.ReadFile(SidecarPath(source))
	if err != nil {
		return Sidecar{}, "", fmt.Errorf("read sidecar: %w", err)
	}

	content := strings.ReplaceAll(string(raw), "\r\n", "\n")
	if !strings.HasPrefix(content, frontmatterDelim+"\n") {
		return Sidecar{}, strings.TrimSpace(content), nil
	}
	rest := content[len(frontmatterDelim)+1:]
	end := strings.Index(rest, "\n"+frontmatterDelim+"\n")
	if end < 0 {
		return Sidecar{}, "", errors.New("sidecar frontmatter is not terminated")
	}

	var meta Sidecar
	if err := yaml.Unmarshal([]byte(rest[:end+1]), &meta); err != nil {
		return Sidecar{}, "", fmt.Errorf("decode frontmatter: %w", err)
	}
	text := strings.TrimSpace(rest[end+len(frontmatterDelim)+2:])
	return meta, text, nil
}
