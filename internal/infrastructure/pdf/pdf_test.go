package pdf

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func TestLayoutPageRendersTables(t *testing.T) {
	t.Parallel()

	lines := []Line{
		{Y: 700, Fragments: []Fragment{{X: 72, S: "Schedule A"}}},
		{Y: 650, Fragments: []Fragment{{X: 72, S: "Segment"}, {X: 200, S: "Capacity"}, {X: 320, S: "Toll"}}},
		{Y: 635, Fragments: []Fragment{{X: 72, S: "Mainline"}, {X: 200, S: "3,000"}, {X: 320, S: "1.25"}}},
		{Y: 620, Fragments: []Fragment{{X: 72, S: "Lateral"}, {X: 200, S: "120"}}},
		{Y: 500, Fragments: []Fragment{{X: 72, S: "Filed "}, {X: 102, S: "by the applicant."}}},
	}

	got := LayoutPage(lines, letter)
	want := strings.Join([]string{
		"Schedule A",
		"| Segment | Capacity | Toll |",
		"| --- | --- | --- |",
		"| Mainline | 3,000 | 1.25 |",
		"| Lateral | 120 |  |",
		"Filed by the applicant.",
	}, "\n")
	if got != want {
		t.Fatalf("unexpected layout:\n%s\nwant:\n%s", got, want)
	}
}

func TestLayoutPageClampsTableToPage(t *testing.T) {
	t.Parallel()

	lines := []Line{
		{Y: 900, Fragments: []Fragment{{X: 72, S: "ghost"}, {X: 200, S: "row"}}},
		{Y: 400, Fragments: []Fragment{{X: 72, S: "a"}, {X: 200, S: "b"}}},
		{Y: 385, Fragments: []Fragment{{X: 72, S: "c"}, {X: 200, S: "d"}}},
	}

	got := LayoutPage(lines, letter)
	if strings.Contains(got, "ghost") {
		t.Fatalf("rows outside the page must be dropped, got:\n%s", got)
	}
	if !strings.HasPrefix(got, "| a | b |") {
		t.Fatalf("expected table header from first on-page row, got:\n%s", got)
	}
}

func TestComposePageKeepsTablesInTextTier(t *testing.T) {
	t.Parallel()

	table := []Line{
		{Y: 700, Fragments: []Fragment{{X: 72, S: "Tolls"}}},
		{Y: 650, Fragments: []Fragment{{X: 72, S: "Segment"}, {X: 200, S: "Toll"}}},
		{Y: 635, Fragments: []Fragment{{X: 72, S: "Mainline"}, {X: 200, S: "1.25"}}},
	}
	got := composePage("Tolls Segment Toll Mainline 1.25", table, letter)
	want := "Tolls\n| Segment | Toll |\n| --- | --- |\n| Mainline | 1.25 |"
	if got != want {
		t.Fatalf("table page:\n%s\nwant:\n%s", got, want)
	}

	prose := []Line{
		{Y: 700, Fragments: []Fragment{{X: 72, S: "The applicant requests approval."}}},
		{Y: 685, Fragments: []Fragment{{X: 72, S: "Section"}, {X: 200, S: "4.1"}}},
		{Y: 670, Fragments: []Fragment{{X: 72, S: "of the application."}}},
	}
	plain := "  The applicant requests approval.\nSection 4.1 of the application.\n"
	if got := composePage(plain, prose, letter); got != strings.TrimSpace(plain) {
		t.Fatalf("prose page should keep the text stream, got:\n%s", got)
	}
	if got := composePage(" only text ", nil, letter); got != "only text" {
		t.Fatalf("missing positions should fall back to plain text, got %q", got)
	}
}

func TestRectClamp(t *testing.T) {
	t.Parallel()

	got := Rect{X0: -10, Y0: 5, X1: 700, Y1: 800}.Clamp(letter)
	if got != (Rect{X0: 0, Y0: 5, X1: 612, Y1: 792}) {
		t.Fatalf("unexpected clamp %+v", got)
	}
}

func TestInspectRejectsNonPDF(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "doc_001.pdf")
	if err := os.WriteFile(path, []byte("<html>viewer</html>"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := (Inspector{}).Inspect(context.Background(), path); err == nil {
		t.Fatalf("expected inspection error for non-pdf content")
	}
	if _, err := (TextTier{}).Extract(context.Background(), path); err == nil {
		t.Fatalf("expected text tier error for non-pdf content")
	}
}

type fakeRenderer struct{ pages int }

func (f fakeRenderer) RenderPages(_ context.Context, _ string, fn func(int, []byte) error) error {
	for i := 1; i <= f.pages; i++ {
		if err := fn(i, []byte{byte(i)}); err != nil {
			return err
		}
	}
	return nil
}

type fakeRecognizer map[byte]string

func (f fakeRecognizer) Recognize(_ context.Context, png []byte) (string, error) {
	text, ok := f[png[0]]
	if !ok {
		return "", errors.New("unreadable")
	}
	return text, nil
}

func TestOCRTierJoinsPages(t *testing.T) {
	t.Parallel()

	tier := NewOCRTier(fakeRenderer{pages: 3}, fakeRecognizer{1: " first \n", 2: "  ", 3: "third"}, 0, nil)
	got, err := tier.Extract(context.Background(), "doc.pdf")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if got != "first\n\n---\n\nthird" {
		t.Fatalf("unexpected text %q", got)
	}

	failing := NewOCRTier(fakeRenderer{pages: 4}, fakeRecognizer{1: "a"}, 0, nil)
	if _, err := failing.Extract(context.Background(), "doc.pdf"); err == nil {
		t.Fatalf("expected recognition error")
	}
}

func TestTesseractPipesImage(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script stand-in")
	}
	t.Parallel()

	dir := t.TempDir()
	script := filepath.Join(dir, "fake-tesseract")
	body := "#!/bin/sh\nbytes=$(wc -c | tr -d ' ')\necho \"args: $*\"\necho \"read $bytes\"\n"
	if err := os.WriteFile(script, []byte(body), 0o755); err != nil {
		t.Fatal(err)
	}

	out, err := Tesseract{Command: script, Language: "eng", DPI: 300}.Recognize(context.Background(), []byte("12345"))
	if err != nil {
		t.Fatalf("recognize: %v", err)
	}
	if !strings.Contains(out, "args: stdin stdout -l eng --dpi 300") || !strings.Contains(out, "read 5") {
		t.Fatalf("unexpected output %q", out)
	}

	if _, err := (Tesseract{Command: filepath.Join(dir, "missing")}).Recognize(context.Background(), nil); err == nil {
		t.Fatalf("expected spawn failure")
	}
}
