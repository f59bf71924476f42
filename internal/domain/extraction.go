package domain

// ExtractionResult is the outcome of running the tiered engine on one artifact.
type ExtractionResult struct {
	Success   bool
	Text      string
	Method    ExtractionMethod
	PageCount int
	CharCount int
	// Reason is set on failure: encrypted, too_many_pages, all_methods_failed, cannot_open.
	Reason string
	// Skipped is true when an existing sidecar was reused.
	Skipped bool
}
