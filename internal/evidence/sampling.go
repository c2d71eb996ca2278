package evidence

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DefaultRecencyWindowDays is the trailing window inside which evidence still
// counts toward sufficiency. Auditors sample recent records, not archives.
const DefaultRecencyWindowDays = 90

const defaultSampleCount = 3

var firstIntPattern = regexp.MustCompile(`\d+`)

// ParseSamplingRequirement extracts a required sample count from free-text
// sampling requirements. The first integer literal wins; otherwise "all" or
// "every" imply a broad sample (10), "several" or "multiple" a moderate one
// (5), and anything else falls back to 3.
func ParseSamplingRequirement(text string) int {
	normalized := strings.ToLower(strings.TrimSpace(text))
	if normalized == "" {
		return defaultSampleCount
	}
	if raw := firstIntPattern.FindString(normalized); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			return n
		}
	}
	if strings.Contains(normalized, "all") || strings.Contains(normalized, "every") {
		return 10
	}
	if strings.Contains(normalized, "several") || strings.Contains(normalized, "multiple") {
		return 5
	}
	return defaultSampleCount
}

// FilterRecent keeps evidence dated within the trailing number of days from
// the current time.
func FilterRecent(items []Evidence, days int) []Evidence {
	return FilterRecentSince(items, time.Now().AddDate(0, 0, -days))
}

// FilterRecentSince keeps evidence dated at or after the cutoff. Report runs
// compute one cutoff up front so every question is judged against the same
// instant.
func FilterRecentSince(items []Evidence, cutoff time.Time) []Evidence {
	recent := make([]Evidence, 0, len(items))
	for _, item := range items {
		if !item.Date.Before(cutoff) {
			recent = append(recent, item)
		}
	}
	return recent
}

// EvaluateSufficiency reports whether the evidence set meets the required
// sample count. Callers pass the recency-filtered set; recency and count are
// deliberately separate knobs.
func EvaluateSufficiency(items []Evidence, requiredSamples int) bool {
	return len(items) >= requiredSamples
}
