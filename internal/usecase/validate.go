package usecase

import (
	"log/slog"
	"strings"
	"time"

	"FilingMonitor/internal/config"
	"FilingMonitor/internal/domain"
)

const maxFutureSkew = 30 * 24 * time.Hour

var earliestFilingDate = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

// Validate drops records without an identifier, normalises placeholder
// fields and logs suspicious values. It never fails the run; a high issue
// count usually means the upstream layout changed.
func Validate(filings []domain.Filing, now time.Time, logger *slog.Logger) []domain.Filing {
	out := make([]domain.Filing, 0, len(filings))
	warnings, dropped := 0, 0

	for _, f := range filings {
		f.ID = strings.TrimSpace(f.ID)
		if f.ID == "" {
			dropped++
			logger.Error("filing without identifier", "title", f.Title, "url", f.URL)
			continue
		}

		if f.HasDate() {
			switch {
			case f.Date.Before(earliestFilingDate):
				warnings++
				logger.Warn("filing date suspiciously old", "filing_id", f.ID, "date", f.Date.Format("2006-01-02"))
			case f.Date.After(now.Add(maxFutureSkew)):
				warnings++
				logger.Warn("filing date in the future", "filing_id", f.ID, "date", f.Date.Format("2006-01-02"))
			}
		}

		if f.Title != "" && strings.EqualFold(f.Title, f.Applicant) {
			f.Applicant = ""
		}
		if strings.TrimSpace(f.Applicant) == "" {
			f.Applicant = domain.UnknownValue
		}
		if strings.TrimSpace(f.Category) == "" {
			f.Category = domain.UnknownValue
		}
		out = append(out, f)
	}

	if warnings > 0 || dropped > 0 {
		logger.Warn("validation issues; the source layout may have changed",
			"total", len(filings), "dropped", dropped, "warnings", warnings)
	}
	return out
}

// Filter applies the configured category, applicant and proceeding rules.
// Filings with an unknown category always pass the category rules.
func Filter(filings []domain.Filing, rules config.FilterConfig) []domain.Filing {
	out := make([]domain.Filing, 0, len(filings))
	for _, f := range filings {
		if Matches(f, rules) {
			out = append(out, f)
		}
	}
	return out
}

// Matches reports whether one filing passes the rules.
func Matches(f domain.Filing, rules config.FilterConfig) bool {
	if f.Category != "" && f.Category != domain.UnknownValue {
		if len(rules.TypeInclude) > 0 && !containsFold(rules.TypeInclude, f.Category) {
			return false
		}
		if containsFold(rules.TypeExclude, f.Category) {
			return false
		}
	}

	if len(rules.Applicants) > 0 {
		applicant := strings.ToLower(f.Applicant)
		hit := false
		for _, a := range rules.Applicants {
			if a = strings.ToLower(strings.TrimSpace(a)); a != "" && strings.Contains(applicant, a) {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}

	if len(rules.Proceedings) > 0 && !containsFold(rules.Proceedings, strings.TrimSpace(f.Proceeding)) {
		return false
	}
	return true
}

func containsFold(list []string, value string) bool {
	for _, v := range list {
		if strings.EqualFold(strings.TrimSpace(v), value) {
			return true
		}
	}
	return false
}
