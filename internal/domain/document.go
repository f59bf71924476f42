package domain

import "time"

// ExtractionMethod records which tier produced a document's text.
type ExtractionMethod string

const (
	MethodNone  ExtractionMethod = ""
	MethodText  ExtractionMethod = "structured_text"
	MethodTable ExtractionMethod = "table"
	MethodOCR   ExtractionMethod = "ocr"
)

// Terminal extraction failure reasons.
const (
	ReasonEncrypted        = "encrypted"
	ReasonTooManyPages     = "too_many_pages"
	ReasonAllMethodsFailed = "all_methods_failed"
	ReasonCannotOpen       = "cannot_open"
)

// Document is one binary artifact belonging to a filing.
type Document struct {
	ID          int64
	FilingID    string
	URL         string
	Filename    string
	ContentType string

	// Set by the content fetcher.
	LocalPath   string
	SizeBytes   int64
	FetchStatus ProcessingStatus

	// Set by the extraction engine.
	ExtractStatus    ProcessingStatus
	ExtractionMethod ExtractionMethod
	ExtractedText    string
	CharCount        int
	PageCount        int
	ExtractionError  string
	ExtractedAt      time.Time
}

// Fetched reports whether the artifact is on disk.
func (d Document) Fetched() bool {
	return d.FetchStatus == StatusSuccess && d.LocalPath != ""
}

// Extracted reports whether text was accepted for the artifact.
func (d Document) Extracted() bool {
	return d.ExtractStatus == StatusSuccess && d.ExtractedText != ""
}
