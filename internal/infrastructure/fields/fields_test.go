package fields

import "testing"

func TestParseDate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		raw     string
		layouts []string
		want    string
	}{
		{"2025-03-14", RecordDateLayouts, "2025-03-14"},
		{"2025-03-14T09:30:00", RecordDateLayouts, "2025-03-14"},
		{"2025-03-14T09:30:00.123-05:00", RecordDateLayouts, "2025-03-14"},
		{"03/14/2025", RecordDateLayouts, "2025-03-14"},
		{"2025/03/14", RecordDateLayouts, "2025-03-14"},
		{"March 14, 2025", PageDateLayouts, "2025-03-14"},
		{"Mar 14 2025", PageDateLayouts, "2025-03-14"},
		{"14-Mar-2025", PageDateLayouts, "2025-03-14"},
		{"Filed on 2025-03-14 by staff", PageDateLayouts, "2025-03-14"},
		{"March 14, 2025", RecordDateLayouts, ""},
		{"", PageDateLayouts, ""},
	}

	for _, tc := range cases {
		got := ParseDate(tc.raw, tc.layouts)
		if tc.want == "" {
			if !got.IsZero() {
				t.Fatalf("%q: expected zero time, got %v", tc.raw, got)
			}
			continue
		}
		if got.Format("2006-01-02") != tc.want {
			t.Fatalf("%q: expected %s, got %v", tc.raw, tc.want, got)
		}
	}
}

func TestContentTypeFor(t *testing.T) {
	t.Parallel()

	if got := ContentTypeFor("https://x/files/report.PDF?download=1"); got != "application/pdf" {
		t.Fatalf("unexpected pdf type %q", got)
	}
	if got := ContentTypeFor("https://x/Item/View/123"); got != "" {
		t.Fatalf("expected unknown type, got %q", got)
	}
}

func TestAbsolute(t *testing.T) {
	t.Parallel()

	base := "https://apps.example.ca/REGDOCS"
	cases := map[string]string{
		"/REGDOCS/Item/Filing/A1":    "https://apps.example.ca/REGDOCS/Item/Filing/A1",
		"Item/View/9":                "https://apps.example.ca/REGDOCS/Item/View/9",
		"https://other.org/file.pdf": "https://other.org/file.pdf",
	}
	for href, want := range cases {
		if got := Absolute(base, href); got != want {
			t.Fatalf("%s: expected %s, got %s", href, want, got)
		}
	}
}
