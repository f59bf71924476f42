package domain

import (
	"fmt"
	"time"
)

// UnknownValue is stored when the upstream listing omits applicant or category.
const UnknownValue = "Unknown"

// Filing is a logical regulatory submission that owns its documents.
type Filing struct {
	ID         string
	Date       time.Time
	Applicant  string
	Category   string
	Proceeding string
	Title      string
	URL        string
	Documents  []Document

	// Extra keeps inbound fields that matched no known alias.
	Extra map[string]string

	Status       FilingStatus
	ErrorMessage string
	RetryCount   int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HasDate reports whether the submission date is known.
func (f Filing) HasDate() bool {
	return !f.Date.IsZero()
}

// HasDocuments reports whether the filing references at least one artifact.
func (f Filing) HasDocuments() bool {
	return len(f.Documents) > 0
}

// Richness counts populated optional fields; used to pick the better of two candidates.
func (f Filing) Richness() int {
	n := 0
	for _, v := range []string{f.Applicant, f.Category, f.Proceeding, f.Title, f.URL} {
		if v != "" && v != UnknownValue {
			n++
		}
	}
	if f.HasDate() {
		n++
	}
	return n + len(f.Documents)
}

// DirName is the on-disk directory for the filing's artifacts.
func (f Filing) DirName() string {
	prefix := "unknown-date"
	if f.HasDate() {
		prefix = f.Date.Format("2006-01-02")
	}
	return fmt.Sprintf("%s_Filing-%s", prefix, f.ID)
}

// Stage names one step of the per-filing pipeline.
type Stage string

const (
	StageScraped    Stage = "scraped"
	StageDownloaded Stage = "downloaded"
	StageExtracted  Stage = "extracted"
	StageAnalyzed   Stage = "analyzed"
	StageEmailed    Stage = "emailed"
)

// Stages lists every stage in pipeline order.
var Stages = []Stage{StageScraped, StageDownloaded, StageExtracted, StageAnalyzed, StageEmailed}

// Valid reports whether s is a known stage.
func (s Stage) Valid() bool {
	for _, known := range Stages {
		if s == known {
			return true
		}
	}
	return false
}

// ProcessingStatus enumerates per-stage outcomes.
type ProcessingStatus string

const (
	StatusPending ProcessingStatus = "pending"
	StatusSuccess ProcessingStatus = "success"
	StatusFailed  ProcessingStatus = "failed"
)

// FilingStatus tracks each stage independently.
type FilingStatus struct {
	Scraped    ProcessingStatus
	Downloaded ProcessingStatus
	Extracted  ProcessingStatus
	Analyzed   ProcessingStatus
	Emailed    ProcessingStatus
}

// NewFilingStatus returns a status where scraping is done and the rest is pending.
func NewFilingStatus() FilingStatus {
	return FilingStatus{
		Scraped:    StatusSuccess,
		Downloaded: StatusPending,
		Extracted:  StatusPending,
		Analyzed:   StatusPending,
		Emailed:    StatusPending,
	}
}

// Get returns the status recorded for stage.
func (s FilingStatus) Get(stage Stage) ProcessingStatus {
	switch stage {
	case StageScraped:
		return s.Scraped
	case StageDownloaded:
		return s.Downloaded
	case StageExtracted:
		return s.Extracted
	case StageAnalyzed:
		return s.Analyzed
	case StageEmailed:
		return s.Emailed
	}
	return ""
}
