package extraction

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"FilingMonitor/internal/domain"
)

var strict = Profile{Floor: 50, PerPage: 50, GarbleRatio: 0.05, RepetitionLimit: 200, RepetitionWindow: 10000}

var loose = Profile{Floor: 50, PerPage: 25, GarbleRatio: 0.10}

type fakeInspector struct {
	info Info
	err  error
}

func (f fakeInspector) Inspect(context.Context, string) (Info, error) { return f.info, f.err }

type fakeTier struct {
	method domain.ExtractionMethod
	text   string
	err    error
	calls  int
	panics bool
}

func (f *fakeTier) Method() domain.ExtractionMethod { return f.method }

func (f *fakeTier) Extract(context.Context, string) (string, error) {
	f.calls++
	if f.panics {
		panic("broken font table")
	}
	return f.text, f.err
}

func cleanText(n int) string {
	words := []string{"pipeline", "tariff", "hearing", "applicant", "decision", "order", "capacity", "toll"}
	var b strings.Builder
	for i := 0; b.Len() < n; i++ {
		b.WriteString(words[i%len(words)])
		b.WriteByte(' ')
	}
	return b.String()
}

func newArtifact(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "doc_001.pdf")
	if err := os.WriteFile(path, []byte("%PDF-1.7"), 0o644); err != nil {
		t.Fatalf("write artifact: %v", err)
	}
	return path
}

func newTestEngine(info Info, tiers []Tier, ocr Tier) *Engine {
	return NewEngine(Options{MaxPages: 300, MaxPagesForOCR: 50, Strict: strict, OCR: loose}, Deps{
		Inspector: fakeInspector{info: info},
		Tiers:     tiers,
		OCR:       ocr,
		Now:       func() time.Time { return time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC) },
	})
}

func TestMinimumContentCheck(t *testing.T) {
	t.Parallel()

	p := Profile{Floor: 50, PerPage: 50, GarbleRatio: 0.05}
	if rej := p.Evaluate(strings.Repeat("a", 60), 1); rej != nil {
		t.Fatalf("60 characters on one page must pass, got %v", rej)
	}
	rej := p.Evaluate(strings.Repeat("a", 10), 1)
	if rej == nil || rej.Check != "min_content" {
		t.Fatalf("10 characters on one page must fail the content check, got %v", rej)
	}
	if rej.Value != 10 || rej.Threshold != 50 {
		t.Fatalf("rejection must carry measured value and threshold, got %+v", rej)
	}
}

func TestQualityGateChecks(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		text  string
		pages int
		p     Profile
		check string
	}{
		{name: "blank", text: "  \n\t", pages: 1, p: strict, check: "empty"},
		{name: "scaled by pages", text: cleanText(400), pages: 10, p: strict, check: "min_content"},
		{name: "garbled", text: cleanText(200) + strings.Repeat("�", 40), pages: 1, p: strict, check: "garble_ratio"},
		{name: "garble within loose profile", text: cleanText(400) + strings.Repeat("\x01", 30), pages: 1, p: loose},
		{name: "repetition", text: strings.Repeat("abc", 300), pages: 1, p: strict, check: "repetition"},
		{name: "repetition ignored for ocr", text: strings.Repeat("abc", 300), pages: 1, p: loose},
		{name: "whitespace sequences ignored", text: cleanText(200) + strings.Repeat(" a ", 300), pages: 1, p: strict},
		{name: "clean", text: cleanText(3000), pages: 2, p: strict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rej := tt.p.Evaluate(tt.text, tt.pages)
			switch {
			case tt.check == "" && rej != nil:
				t.Fatalf("expected pass, got %v", rej)
			case tt.check != "" && (rej == nil || rej.Check != tt.check):
				t.Fatalf("expected %s rejection, got %v", tt.check, rej)
			}
		})
	}
}

func TestCharCountIgnoresSyntax(t *testing.T) {
	t.Parallel()

	if got := CharCount("# Title\n| a | b |\n|---|---|\n*x* _y_"); got != 9 {
		t.Fatalf("expected 9 meaningful characters, got %d", got)
	}
}

func TestTierEscalationOrder(t *testing.T) {
	t.Parallel()

	garbled := cleanText(300)
	garbled += strings.Repeat("�", len([]rune(garbled))/5)
	text := &fakeTier{method: domain.MethodText, text: garbled}
	table := &fakeTier{method: domain.MethodTable, text: cleanText(300)}
	ocr := &fakeTier{method: domain.MethodOCR, text: cleanText(300)}

	res := newTestEngine(Info{PageCount: 1}, []Tier{text, table}, ocr).Extract(context.Background(), newArtifact(t))
	if !res.Success || res.Method != domain.MethodTable {
		t.Fatalf("expected table tier to be accepted, got %+v", res)
	}
	if ocr.calls != 0 {
		t.Fatalf("ocr must not run after an accepted tier")
	}
}

func TestOCRIsLastResort(t *testing.T) {
	t.Parallel()

	text := &fakeTier{method: domain.MethodText, err: errors.New("no text layer")}
	table := &fakeTier{method: domain.MethodTable, panics: true}
	ocr := &fakeTier{method: domain.MethodOCR, text: cleanText(80)}

	res := newTestEngine(Info{PageCount: 1}, []Tier{text, table}, ocr).Extract(context.Background(), newArtifact(t))
	if !res.Success || res.Method != domain.MethodOCR {
		t.Fatalf("expected ocr result, got %+v", res)
	}
}

func TestOCRSkippedForLongDocuments(t *testing.T) {
	t.Parallel()

	ocr := &fakeTier{method: domain.MethodOCR, text: cleanText(10000)}
	empty := &fakeTier{method: domain.MethodText}

	res := newTestEngine(Info{PageCount: 51}, []Tier{empty}, ocr).Extract(context.Background(), newArtifact(t))
	if res.Success || res.Reason != domain.ReasonAllMethodsFailed || res.PageCount != 51 {
		t.Fatalf("unexpected result %+v", res)
	}
	if ocr.calls != 0 {
		t.Fatalf("ocr must be skipped above the page guard")
	}
}

func TestPreChecks(t *testing.T) {
	t.Parallel()

	tier := &fakeTier{method: domain.MethodText, text: cleanText(1000)}

	enc := newTestEngine(Info{PageCount: 2, Encrypted: true}, []Tier{tier}, nil).Extract(context.Background(), newArtifact(t))
	if enc.Success || enc.Reason != domain.ReasonEncrypted {
		t.Fatalf("expected encrypted failure, got %+v", enc)
	}

	big := newTestEngine(Info{PageCount: 301}, []Tier{tier}, nil).Extract(context.Background(), newArtifact(t))
	if big.Success || big.Reason != domain.ReasonTooManyPages {
		t.Fatalf("expected too_many_pages failure, got %+v", big)
	}

	broken := NewEngine(Options{}, Deps{Inspector: fakeInspector{err: errors.New("not a pdf")}, Tiers: []Tier{tier}})
	if res := broken.Extract(context.Background(), newArtifact(t)); res.Reason != domain.ReasonCannotOpen {
		t.Fatalf("expected cannot_open, got %+v", res)
	}
	if tier.calls != 0 {
		t.Fatalf("tiers must not run when pre-checks fail")
	}
}

func TestSidecarWrittenAndReused(t *testing.T) {
	t.Parallel()

	path := newArtifact(t)
	tier := &fakeTier{method: domain.MethodText, text: cleanText(500)}
	engine := newTestEngine(Info{PageCount: 1}, []Tier{tier}, nil)

	first := engine.Extract(context.Background(), path)
	if !first.Success || first.Skipped {
		t.Fatalf("unexpected first result %+v", first)
	}

	meta, text, err := ReadSidecar(path)
	if err != nil {
		t.Fatalf("read sidecar: %v", err)
	}
	if meta.SourcePDF != "doc_001.pdf" || meta.ExtractionMethod != domain.MethodText || meta.PageCount != 1 {
		t.Fatalf("unexpected frontmatter %+v", meta)
	}
	if meta.CharCount != first.CharCount || text != first.Text {
		t.Fatalf("sidecar must mirror the result")
	}
	if !meta.ExtractionDate.Equal(time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected extraction date %v", meta.ExtractionDate)
	}

	second := engine.Extract(context.Background(), path)
	if !second.Success || !second.Skipped || second.Text != first.Text || second.Method != domain.MethodText {
		t.Fatalf("expected sidecar reuse, got %+v", second)
	}
	if tier.calls != 1 {
		t.Fatalf("tier must not run again, got %d calls", tier.calls)
	}
}

func TestSidecarPath(t *testing.T) {
	t.Parallel()

	if got := SidecarPath(filepath.Join("a", "doc_003.pdf")); got != filepath.Join("a", "doc_003.md") {
		t.Fatalf("unexpected sidecar path %s", got)
	}
}
