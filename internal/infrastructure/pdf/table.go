package pdf

import (
	"context"
	"sort"
	"strings"
	"unicode/utf8"

	lpdf "github.com/ledongthuc/pdf"

	"FilingMonitor/internal/domain"
	"FilingMonitor/internal/extraction"
)

const (
	// cellGap is the horizontal gap, in points, that separates two cells.
	cellGap = 12.0
	// glyphWidth approximates one character's advance when the layer gives none.
	glyphWidth = 5.0
)

// Rect is a page-space rectangle with the origin at the bottom left.
type Rect struct {
	X0, Y0, X1, Y1 float64
}

// Clamp returns r limited to bounds.
func (r Rect) Clamp(bounds Rect) Rect {
	return Rect{
		X0: max(r.X0, bounds.X0),
		Y0: max(r.Y0, bounds.Y0),
		X1: min(r.X1, bounds.X1),
		Y1: min(r.Y1, bounds.Y1),
	}
}

func (r Rect) contains(x, y float64) bool {
	return x >= r.X0 && x <= r.X1 && y >= r.Y0 && y <= r.Y1
}

// letter is used when a page declares no media box.
var letter = Rect{X1: 612, Y1: 792}

// Fragment is one positioned run of text on a page.
type Fragment struct {
	X, Y float64
	S    string
}

// Line is a row of fragments sharing a baseline, ordered left to right.
type Line struct {
	Y         float64
	Fragments []Fragment
}

// TableTier rebuilds rows and columns from text positions and renders
// detected tables as pipe-delimited markdown.
type TableTier struct{}

var _ extraction.Tier = TableTier{}

// Method implements extraction.Tier.
func (TableTier) Method() domain.ExtractionMethod { return domain.MethodTable }

// Extract implements extraction.Tier.
func (TableTier) Extract(ctx context.Context, path string) (string, error) {
	var pages []string
	err := eachPage(ctx, path, func(_ int, p lpdf.Page) error {
		rows, err := p.GetTextByRow()
		if err != nil {
			return err
		}
		if text := LayoutPage(toLines(rows), mediaBox(p)); text != "" {
			pages = append(pages, text)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return strings.Join(pages, extraction.PageSeparator), nil
}

func toLines(rows lpdf.Rows) []Line {
	lines := make([]Line, 0, len(rows))
	for _, row := range rows {
		line := Line{Y: float64(row.Position)}
		for _, t := range row.Content {
			if strings.TrimSpace(t.S) == "" {
				continue
			}
			line.Fragments = append(line.Fragments, Fragment{X: t.X, Y: t.Y, S: t.S})
		}
		if len(line.Fragments) > 0 {
			lines = append(lines, line)
		}
	}
	return lines
}

// mediaBox reads the page's MediaBox, following inherited values.
func mediaBox(p lpdf.Page) Rect {
	v := p.V
	for depth := 0; depth < 16 && !v.IsNull(); depth++ {
		if box := v.Key("MediaBox"); box.Len() == 4 {
			r := Rect{
				X0: box.Index(0).Float64(),
				Y0: box.Index(1).Float64(),
				X1: box.Index(2).Float64(),
				Y1: box.Index(3).Float64(),
			}
			if r.X1 > r.X0 && r.Y1 > r.Y0 {
				return r
			}
		}
		v = v.Key("Parent")
	}
	return letter
}

// LayoutPage renders the page top to bottom. Runs of two or more consecutive
// multi-cell lines become a markdown table; the table region is clamped to
// the page and lines positioned outside it are dropped.
func LayoutPage(lines []Line, page Rect) string {
	sorted := append([]Line(nil), lines...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Y > sorted[j].Y })

	var parts []string
	var block [][]string
	var blockLines []Line

	flush := func() {
		if len(block) >= 2 {
			parts = append(parts, renderTable(block, blockLines, page))
		} else {
			for _, cells := range block {
				parts = append(parts, strings.Join(cells, " "))
			}
		}
		block, blockLines = nil, nil
	}

	for _, line := range sorted {
		cells := splitCells(line.Fragments)
		if len(cells) >= 2 {
			block = append(block, cells)
			blockLines = append(blockLines, line)
			continue
		}
		flush()
		if len(cells) == 1 {
			parts = append(parts, cells[0])
		}
	}
	flush()

	return strings.TrimSpace(strings.Join(parts, "\n"))
}

// hasTable reports whether two consecutive lines each split into several cells.
func hasTable(lines []Line) bool {
	sorted := append([]Line(nil), lines...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Y > sorted[j].Y })

	run := 0
	for _, line := range sorted {
		if len(splitCells(line.Fragments)) < 2 {
			run = 0
			continue
		}
		if run++; run >= 2 {
			return true
		}
	}
	return false
}

// splitCells merges fragments into cells, starting a new cell at every gap wider than cellGap.
func splitCells(frags []Fragment) []string {
	sorted := append([]Fragment(nil), frags...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].X < sorted[j].X })

	var cells []string
	var cur strings.Builder
	end := 0.0
	for i, f := range sorted {
		if i > 0 && f.X-end > cellGap {
			cells = append(cells, strings.TrimSpace(cur.String()))
			cur.Reset()
		}
		cur.WriteString(f.S)
		end = f.X + float64(utf8.RuneCountInString(f.S))*glyphWidth
	}
	if s := strings.TrimSpace(cur.String()); s != "" {
		cells = append(cells, s)
	}
	return cells
}

func renderTable(rows [][]string, lines []Line, page Rect) string {
	region := Rect{X0: lines[0].Fragments[0].X, Y0: lines[0].Y, X1: lines[0].Fragments[0].X, Y1: lines[0].Y}
	for _, l := range lines {
		for _, f := range l.Fragments {
			region.X0 = min(region.X0, f.X)
			region.X1 = max(region.X1, f.X+float64(utf8.RuneCountInString(f.S))*glyphWidth)
		}
		region.Y0 = min(region.Y0, l.Y)
		region.Y1 = max(region.Y1, l.Y)
	}
	region = region.Clamp(page)

	var kept [][]string
	cols := 0
	for i, l := range lines {
		if !region.contains(max(l.Fragments[0].X, region.X0), l.Y) {
			continue
		}
		kept = append(kept, rows[i])
		cols = max(cols, len(rows[i]))
	}
	if len(kept) == 0 {
		return ""
	}

	var b strings.Builder
	writeRow := func(cells []string) {
		b.WriteString("|")
		for c := 0; c < cols; c++ {
			cell := ""
			if c < len(cells) {
				cell = strings.ReplaceAll(cells[c], "|", "/")
			}
			b.WriteString(" " + cell + " |")
		}
		b.WriteString("\n")
	}

	writeRow(kept[0])
	b.WriteString("|" + strings.Repeat(" --- |", cols) + "\n")
	for _, r := range kept[1:] {
		writeRow(r)
	}
	return strings.TrimRight(b.String(), "\n")
}
