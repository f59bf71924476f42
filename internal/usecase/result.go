package usecase

import "fmt"

// BatchResult counts per-filing outcomes of one stage run.
type BatchResult struct {
	Attempted int
	Succeeded int
	Failed    int
	Skipped   int
}

func (r BatchResult) String() string {
	return fmt.Sprintf("attempted=%d succeeded=%d failed=%d skipped=%d",
		r.Attempted, r.Succeeded, r.Failed, r.Skipped)
}

// AcquireResult summarises one acquisition run.
type AcquireResult struct {
	RunID      string
	Strategy   string
	TotalFound int
	Valid      int
	Filtered   int
	NoDocs     int
	Duplicates int
	NewFilings int
	Errors     []string
}

func (r AcquireResult) String() string {
	return fmt.Sprintf("run=%s strategy=%s found=%d new=%d duplicates=%d no_documents=%d filtered=%d errors=%d",
		r.RunID, r.Strategy, r.TotalFound, r.NewFilings, r.Duplicates, r.NoDocs, r.Filtered, len(r.Errors))
}

// ExtractResult adds per-document counts to the filing batch result.
type ExtractResult struct {
	BatchResult
	DocumentsExtracted int
	DocumentsFailed    int
	DocumentsReused    int
	// Requeued counts filings sent back to download because their
	// artifacts were missing.
	Requeued int
}

func (r ExtractResult) String() string {
	return fmt.Sprintf("%s documents_extracted=%d documents_failed=%d documents_reused=%d requeued=%d",
		r.BatchResult, r.DocumentsExtracted, r.DocumentsFailed, r.DocumentsReused, r.Requeued)
}
