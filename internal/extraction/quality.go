package extraction

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	garbleExpr = regexp.MustCompile(`[\x{FFFD}\x00-\x08\x0b\x0c\x0e-\x1f]`)
	syntaxExpr = regexp.MustCompile(`[#|*_\-\s]`)
)

// Profile holds one set of quality-gate thresholds.
// A zero RepetitionLimit disables the repetition check.
type Profile struct {
	Floor            int
	PerPage          int
	GarbleRatio      float64
	RepetitionLimit  int
	RepetitionWindow int
}

// MinChars is the content minimum for a document of pages pages.
func (p Profile) MinChars(pages int) int {
	return max(p.Floor, pages*p.PerPage)
}

// Rejection describes the quality check that refused a tier's output.
type Rejection struct {
	Check     string
	Value     float64
	Threshold float64
	Detail    string
}

func (r *Rejection) Error() string {
	msg := fmt.Sprintf("quality check %s failed: %g (threshold %g)", r.Check, r.Value, r.Threshold)
	if r.Detail != "" {
		msg += ": " + r.Detail
	}
	return msg
}

// Evaluate runs the minimum-content, garble-ratio and repetition checks in
// that order and returns the first failure, or nil when text is acceptable.
func (p Profile) Evaluate(text string, pages int) *Rejection {
	if strings.TrimSpace(text) == "" {
		return &Rejection{Check: "empty"}
	}

	chars := CharCount(text)
	if minChars := p.MinChars(pages); chars < minChars {
		return &Rejection{
			Check:     "min_content",
			Value:     float64(chars),
			Threshold: float64(minChars),
			Detail:    fmt.Sprintf("%d pages x %d chars/page, floor %d", pages, p.PerPage, p.Floor),
		}
	}

	if ratio := GarbleRatio(text); ratio > p.GarbleRatio {
		return &Rejection{Check: "garble_ratio", Value: ratio, Threshold: p.GarbleRatio}
	}

	if p.RepetitionLimit > 0 {
		if seq, n := MostRepeated(text, p.RepetitionWindow); n > p.RepetitionLimit {
			return &Rejection{
				Check:     "repetition",
				Value:     float64(n),
				Threshold: float64(p.RepetitionLimit),
				Detail:    fmt.Sprintf("sequence %q", seq),
			}
		}
	}
	return nil
}

// CharCount counts meaningful characters: markup syntax and whitespace are ignored.
func CharCount(text string) int {
	return utf8.RuneCountInString(syntaxExpr.ReplaceAllString(text, ""))
}

// GarbleRatio is the fraction of control and replacement characters in text.
func GarbleRatio(text string) float64 {
	total := utf8.RuneCountInString(text)
	if total == 0 {
		return 0
	}
	return float64(len(garbleExpr.FindAllStringIndex(text, -1))) / float64(total)
}

// MostRepeated returns the most frequent three-character sequence without
// whitespace among the first window characters of text, and its count.
func MostRepeated(text string, window int) (string, int) {
	runes := []rune(text)
	if window > 0 && len(runes) > window {
		runes = runes[:window]
	}

	counts := map[string]int{}
	best, bestN := "", 0
	for i := 0; i+3 <= len(runes); i++ {
		tri := runes[i : i+3]
		if unicode.IsSpace(tri[0]) || unicode.IsSpace(tri[1]) || unicode.IsSpace(tri[2]) {
			continue
		}
		key := string(tri)
		counts[key]++
		if n := counts[key]; n > bestN || (n == bestN && key < best) {
			best, bestN = key, n
		}
	}
	return best, bestN
}
