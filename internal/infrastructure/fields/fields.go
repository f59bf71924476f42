// Package fields holds the lenient value parsing shared by the structured and
// rendered-page acquisition paths.
package fields

import (
	"net/url"
	"path"
	"regexp"
	"strings"
	"time"
)

// RecordDateLayouts are tried, in order, on dates from structured responses.
var RecordDateLayouts = []string{
	"2006-01-02",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05Z",
	"01/02/2006",
	"02/01/2006",
	"2006/01/02",
}

// PageDateLayouts extend RecordDateLayouts with the written forms seen in rendered listings.
var PageDateLayouts = append(append([]string{}, RecordDateLayouts...),
	"January 2, 2006",
	"Jan 2, 2006",
	"January 2 2006",
	"Jan 2 2006",
	"02-Jan-2006",
)

var isoDate = regexp.MustCompile(`(\d{4}-\d{2}-\d{2})`)

// ParseDate returns the first layout match, falling back to the first
// YYYY-MM-DD found in the text. The zero time means no date could be read.
func ParseDate(raw string, layouts []string) time.Time {
	raw = CleanText(raw)
	if raw == "" {
		return time.Time{}
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return dateOnly(t)
		}
	}
	if m := isoDate.FindStringSubmatch(raw); m != nil {
		if t, err := time.Parse("2006-01-02", m[1]); err == nil {
			return t
		}
	}
	return time.Time{}
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

var extensionTypes = map[string]string{
	".pdf":  "application/pdf",
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".xls":  "application/vnd.ms-excel",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".csv":  "text/csv",
	".rtf":  "application/rtf",
	".txt":  "text/plain",
	".zip":  "application/zip",
}

// ContentTypeFor infers a MIME type from the URL's file extension; "" when unknown.
func ContentTypeFor(rawURL string) string {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		p = u.Path
	}
	return extensionTypes[strings.ToLower(path.Ext(p))]
}

// Absolute resolves href against the site base: "/"-rooted paths hang off the
// base host, other relative paths off the base URL itself.
func Absolute(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	if strings.HasPrefix(href, "/") {
		if u, err := url.Parse(base); err == nil && u.Host != "" {
			return u.Scheme + "://" + u.Host + href
		}
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(href, "/")
}

// CleanText collapses whitespace and drops non-breaking and zero-width spaces.
func CleanText(s string) string {
	s = strings.ReplaceAll(s, "\u00a0", " ")
	s = strings.ReplaceAll(s, "\u200b", "")
	return strings.Join(strings.Fields(s), " ")
}
