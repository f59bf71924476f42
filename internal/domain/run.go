package domain

import "time"

// StrategyBlocked marks a run the crawl policy stopped before collection.
const StrategyBlocked = "blocked_by_robots"

// RunRecord is one append-only acquisition run entry.
type RunRecord struct {
	ID           string
	StartedAt    time.Time
	CompletedAt  time.Time
	Strategy     string
	TotalFound   int
	NewFilings   int
	ErrorSummary string
}

// Zero reports whether the run persisted nothing new.
func (r RunRecord) Zero() bool {
	return r.NewFilings == 0
}

// Blocked reports whether the crawl policy stopped the run. Blocked runs say
// nothing about the source layout and break a zero-result streak.
func (r RunRecord) Blocked() bool {
	return r.Strategy == StrategyBlocked
}
