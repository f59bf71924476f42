package apiclient

import (
	"cmp"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"FilingMonitor/internal/domain"
	"FilingMonitor/internal/infrastructure/discovery"
	"FilingMonitor/internal/infrastructure/fields"
)

// Target fields resolved through the alias table.
const (
	fieldID         = "filing_id"
	fieldDate       = "date"
	fieldApplicant  = "applicant"
	fieldType       = "filing_type"
	fieldProceeding = "proceeding"
	fieldTitle      = "title"
	fieldURL        = "url"
	fieldDocuments  = "documents"
)

// aliases lists, per target field, the lower-cased source keys in priority order.
var aliases = map[string][]string{
	fieldID:         {"id", "filing_id", "filingid", "nodeid", "fileid"},
	fieldDate:       {"date", "filing_date", "filingdate", "otcreatedate", "createdate", "datefiled"},
	fieldApplicant:  {"applicant", "company", "submitter", "name", "otname"},
	fieldType:       {"type", "filing_type", "filingtype", "subtype", "documenttype"},
	fieldProceeding: {"proceeding", "proceeding_number", "proceedingnumber"},
	fieldTitle:      {"title", "name", "otname", "documenttitle"},
	fieldURL:        {"url", "link", "href"},
	fieldDocuments:  {"documents", "attachments", "files", "documenturls", "document_urls"},
}

var knownKeys = func() map[string]struct{} {
	out := map[string]struct{}{}
	for _, names := range aliases {
		for _, n := range names {
			out[n] = struct{}{}
		}
	}
	return out
}()

// documentURLHints mark keys whose values are document links.
var documentURLHints = []string{"url", "link", "document", "pdf", "href", "attachment"}

// record is one inbound object with a case-insensitive key index.
type record struct {
	raw   map[string]any
	lower map[string]string
}

func newRecord(raw map[string]any) record {
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	lower := make(map[string]string, len(raw))
	for _, k := range keys {
		lk := strings.ToLower(k)
		if _, seen := lower[lk]; !seen {
			lower[lk] = k
		}
	}
	return record{raw: raw, lower: lower}
}

// value returns the first non-null value found under any alias of field.
func (r record) value(field string) any {
	for _, alias := range aliases[field] {
		if key, ok := r.lower[alias]; ok && r.raw[key] != nil {
			return r.raw[key]
		}
	}
	return nil
}

func (r record) text(field string) string {
	return scalar(r.value(field))
}

// ParseRecords turns a decoded response into filings. Items without an
// identifier are skipped.
func ParseRecords(body any, baseURL string) []domain.Filing {
	var filings []domain.Filing
	for _, item := range discovery.Records(body) {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if f, ok := ParseItem(obj, baseURL); ok {
			filings = append(filings, f)
		}
	}
	return filings
}

// ParseItem maps one record through the alias table. Keys that match no alias
// and carry a scalar value are kept in Filing.Extra.
func ParseItem(obj map[string]any, baseURL string) (domain.Filing, bool) {
	rec := newRecord(obj)

	id := strings.TrimSpace(rec.text(fieldID))
	if id == "" {
		return domain.Filing{}, false
	}

	f := domain.Filing{
		ID:         id,
		Date:       fields.ParseDate(rec.text(fieldDate), fields.RecordDateLayouts),
		Applicant:  strings.TrimSpace(rec.text(fieldApplicant)),
		Category:   strings.TrimSpace(rec.text(fieldType)),
		Proceeding: strings.TrimSpace(rec.text(fieldProceeding)),
		Title:      strings.TrimSpace(rec.text(fieldTitle)),
		URL:        strings.TrimSpace(rec.text(fieldURL)),
	}
	// Name/OTName feed both applicant and title; the title keeps it.
	if f.Title != "" && f.Title == f.Applicant {
		f.Applicant = ""
	}
	if f.URL == "" {
		f.URL = fmt.Sprintf("%s/Item/Filing/%s", strings.TrimRight(baseURL, "/"), id)
	} else {
		f.URL = fields.Absolute(baseURL, f.URL)
	}
	f.Documents = documentsOf(rec, baseURL)

	for key, v := range obj {
		if _, known := knownKeys[strings.ToLower(key)]; known {
			continue
		}
		if s := scalar(v); s != "" {
			if f.Extra == nil {
				f.Extra = map[string]string{}
			}
			f.Extra[key] = s
		}
	}
	return f, true
}

func documentsOf(rec record, baseURL string) []domain.Document {
	var docs []domain.Document
	seen := map[string]bool{}
	add := func(doc domain.Document) {
		doc.URL = fields.Absolute(baseURL, doc.URL)
		if doc.URL == "" || seen[doc.URL] {
			return
		}
		seen[doc.URL] = true
		if doc.ContentType == "" {
			doc.ContentType = fields.ContentTypeFor(doc.URL)
		}
		docs = append(docs, doc)
	}

	if list, ok := rec.value(fieldDocuments).([]any); ok {
		for _, entry := range list {
			switch d := entry.(type) {
			case string:
				add(domain.Document{URL: d})
			case map[string]any:
				inner := newRecord(d)
				link := firstHinted(inner, func(v any) bool {
					s, ok := v.(string)
					return ok && s != ""
				})
				if link == "" {
					continue
				}
				add(domain.Document{
					URL:         link,
					Filename:    firstOf(inner, "filename", "name"),
					ContentType: firstOf(inner, "content_type", "contenttype", "mimetype"),
				})
			}
		}
	}

	if len(docs) == 0 {
		keys := make([]string, 0, len(rec.raw))
		for k := range rec.raw {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			if !hinted(k) || slices.Contains(aliases[fieldURL], strings.ToLower(k)) {
				continue
			}
			s, ok := rec.raw[k].(string)
			if ok && (strings.HasPrefix(s, "http") || strings.HasPrefix(s, "/")) {
				add(domain.Document{URL: s})
			}
		}
	}
	return docs
}

// firstHinted returns the value accepted by ok under the best document-hint key.
// Keys are ranked by the hint they contain, then alphabetically.
func firstHinted(rec record, ok func(any) bool) string {
	keys := make([]string, 0, len(rec.raw))
	for k := range rec.raw {
		if hintRank(k) < len(documentURLHints) {
			keys = append(keys, k)
		}
	}
	slices.SortFunc(keys, func(a, b string) int {
		return cmp.Or(cmp.Compare(hintRank(a), hintRank(b)), strings.Compare(a, b))
	})
	for _, k := range keys {
		if ok(rec.raw[k]) {
			return rec.raw[k].(string)
		}
	}
	return ""
}

func hintRank(key string) int {
	lk := strings.ToLower(key)
	for i, h := range documentURLHints {
		if strings.Contains(lk, h) {
			return i
		}
	}
	return len(documentURLHints)
}

func hinted(key string) bool {
	return hintRank(key) < len(documentURLHints)
}

func firstOf(rec record, keys ...string) string {
	for _, k := range keys {
		if orig, ok := rec.lower[k]; ok {
			if s := scalar(rec.raw[orig]); s != "" {
				return s
			}
		}
	}
	return ""
}

// scalar renders strings, numbers and booleans; anything else is "".
func scalar(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	}
	return ""
}
