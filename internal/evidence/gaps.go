package evidence

import (
	"fmt"
	"strings"
	"time"
)

// IdentifyGaps lists the human-readable reasons the evidence for a question
// is insufficient, in a stable order the UI can render as corrective actions:
// missing evidence types first, then the recent-sample shortfall, then the
// blanket no-evidence and no-documentation messages.
func IdentifyGaps(items []Evidence, question AuditQuestion, requiredSamples int, cutoff time.Time) []string {
	gaps := make([]string, 0)

	for _, required := range question.RequiredEvidenceTypes {
		if !anyMatches(items, required) {
			gaps = append(gaps, fmt.Sprintf("Missing evidence type: no %s records found", Humanize(required)))
		}
	}

	recent := FilterRecentSince(items, cutoff)
	if len(recent) < requiredSamples {
		gaps = append(gaps, fmt.Sprintf(
			"Insufficient recent samples: found %d of %d required (%d more needed)",
			len(recent), requiredSamples, requiredSamples-len(recent)))
	}

	if len(items) == 0 {
		gaps = append(gaps, "No evidence found for this question")
	}

	if requiresDocument(question) && !hasDocumentaryEvidence(items) {
		gaps = append(gaps, "No documentary evidence available for document verification")
	}

	return gaps
}

// anyMatches reports whether any evidence item satisfies a required type via
// exact code, substring in either direction, or a description mentioning the
// humanized type name.
func anyMatches(items []Evidence, requiredType string) bool {
	required := normalizeCode(requiredType)
	humanized := Humanize(requiredType)
	for _, item := range items {
		code := normalizeCode(item.FormCode)
		if code == required {
			return true
		}
		if code != "" && (strings.Contains(code, required) || strings.Contains(required, code)) {
			return true
		}
		if humanized != "" && strings.Contains(strings.ToLower(item.Description), humanized) {
			return true
		}
	}
	return false
}

func requiresDocument(question AuditQuestion) bool {
	for _, method := range question.VerificationMethods {
		if strings.Contains(strings.ToLower(method), "document") {
			return true
		}
	}
	return false
}

func hasDocumentaryEvidence(items []Evidence) bool {
	for _, item := range items {
		switch strings.ToLower(item.Type) {
		case "form", "document":
			return true
		}
	}
	return false
}
