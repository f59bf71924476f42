package discovery

import (
	"cmp"
	"slices"
	"strings"

	"FilingMonitor/internal/domain"
)

// filingHintKeys are lower-cased record keys that suggest filing metadata.
var filingHintKeys = map[string]struct{}{
	"id": {}, "filing_id": {}, "filingid": {}, "nodeid": {},
	"date": {}, "filing_date": {}, "filingdate": {}, "otcreatedate": {}, "createdate": {},
	"applicant": {}, "company": {}, "submitter": {}, "name": {}, "otname": {},
	"type": {}, "filing_type": {}, "filingtype": {}, "subtype": {},
	"proceeding": {}, "proceeding_number": {}, "proceedingnumber": {},
	"title": {},
}

var filingURLPatterns = []string{"search", "filing", "document", "recent", "result"}

const minHintOverlap = 2

// Records returns the record list of a decoded body: the body itself when it
// is a list, otherwise the first non-empty list value of an object. Object keys
// are visited envelope names first, then alphabetically.
func Records(body any) []any {
	switch v := body.(type) {
	case []any:
		return v
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		slices.SortFunc(keys, func(a, b string) int {
			return cmp.Or(cmp.Compare(wrapperRank(a), wrapperRank(b)), strings.Compare(a, b))
		})
		for _, k := range keys {
			if list, ok := v[k].([]any); ok && len(list) > 0 {
				return list
			}
		}
	}
	return nil
}

// wrapperKeys are common pagination envelope names, checked before any other key.
var wrapperKeys = []string{"items", "results", "data", "filings", "records", "rows", "value"}

func wrapperRank(key string) int {
	if i := slices.Index(wrapperKeys, strings.ToLower(key)); i >= 0 {
		return i
	}
	return len(wrapperKeys)
}

// Classify decides whether a decoded response looks like a filing listing.
// Only responses that carry records are considered; the first record's keys
// are matched against the hint vocabulary and, failing that, the URL against
// listing path patterns.
func Classify(body any, url string) (domain.EndpointShape, float64) {
	items := Records(body)
	if len(items) == 0 {
		return domain.ShapeOther, 0
	}

	if first, ok := items[0].(map[string]any); ok {
		overlap := 0
		for key := range first {
			if _, hit := filingHintKeys[strings.ToLower(key)]; hit {
				overlap++
			}
		}
		if overlap >= minHintOverlap {
			return domain.ShapeFilingList, min(1, 0.5+0.1*float64(overlap))
		}
	}

	lower := strings.ToLower(url)
	for _, pattern := range filingURLPatterns {
		if strings.Contains(lower, pattern) {
			return domain.ShapeFilingList, 0.3
		}
	}
	return domain.ShapeOther, 0
}
