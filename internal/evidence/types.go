// Package evidence maps a company's form submissions against the COR audit
// question catalog and scores audit readiness per question, per element, and
// company-wide.
package evidence

import "time"

// AuditQuestion is one question from the seeded COR catalog. The catalog is
// reference data; this package never mutates it.
type AuditQuestion struct {
	ID                    string   `json:"id"`
	ElementNumber         int      `json:"element_number"`
	QuestionNumber        string   `json:"question_number"`
	Text                  string   `json:"text"`
	VerificationMethods   []string `json:"verification_methods"`
	RequiredEvidenceTypes []string `json:"required_evidence_types"`
	PointValue            int      `json:"point_value"`
	SamplingRequirements  string   `json:"sampling_requirements"`
}

// Evidence is a derived view over one submitted form. It is rebuilt on every
// report run and never persisted.
type Evidence struct {
	ID             string    `json:"id"`
	Type           string    `json:"type"`
	Reference      string    `json:"reference"`
	Date           time.Time `json:"date"`
	Description    string    `json:"description,omitempty"`
	SourceURL      string    `json:"source_url,omitempty"`
	FormCode       string    `json:"form_code"`
	RelevanceScore int       `json:"relevance_score"`
}

// QuestionEvidence is the computed result for one question.
type QuestionEvidence struct {
	Question           AuditQuestion `json:"question"`
	Evidence           []Evidence    `json:"evidence"`
	IsSufficient       bool          `json:"is_sufficient"`
	RequiredSamples    int           `json:"required_samples"`
	FoundSamples       int           `json:"found_samples"`
	CoveragePercentage int           `json:"coverage_percentage"`
	Gaps               []string      `json:"gaps"`
	Score              int           `json:"score"`
	MaxScore           int           `json:"max_score"`
}

// ElementEvidenceSummary rolls up all questions under one COR element.
type ElementEvidenceSummary struct {
	ElementNumber         int    `json:"element_number"`
	ElementName           string `json:"element_name"`
	TotalQuestions        int    `json:"total_questions"`
	QuestionsWithEvidence int    `json:"questions_with_evidence"`
	SufficientQuestions   int    `json:"sufficient_questions"`
	CoveragePercentage    int    `json:"coverage_percentage"`
	CompletionPercentage  int    `json:"completion_percentage"`
	EarnedPoints          int    `json:"earned_points"`
	MaxPoints             int    `json:"max_points"`
}

// CriticalGap flags a question with zero supporting evidence.
type CriticalGap struct {
	QuestionID     string `json:"question_id"`
	ElementNumber  int    `json:"element_number"`
	QuestionNumber string `json:"question_number"`
	Text           string `json:"text"`
	PointValue     int    `json:"point_value"`
}

// CompanyEvidenceReport is the full readiness report for one company.
// Regenerated from scratch on each request; identical inputs yield an
// identical report apart from GeneratedAt.
type CompanyEvidenceReport struct {
	CompanyID             string                      `json:"company_id"`
	GeneratedAt           time.Time                   `json:"generated_at"`
	TotalQuestions        int                         `json:"total_questions"`
	QuestionsWithEvidence int                         `json:"questions_with_evidence"`
	SufficientQuestions   int                         `json:"sufficient_questions"`
	OverallPercentage     int                         `json:"overall_percentage"`
	TotalPoints           int                         `json:"total_points"`
	MaxPoints             int                         `json:"max_points"`
	Elements              []ElementEvidenceSummary    `json:"elements"`
	CriticalGaps          []CriticalGap               `json:"critical_gaps"`
	Questions             map[string]QuestionEvidence `json:"questions"`
}

// CoverageStats is the lightweight subset served to dashboard widgets.
type CoverageStats struct {
	CompanyID             string `json:"company_id"`
	TotalQuestions        int    `json:"total_questions"`
	QuestionsWithEvidence int    `json:"questions_with_evidence"`
	SufficientQuestions   int    `json:"sufficient_questions"`
	OverallPercentage     int    `json:"overall_percentage"`
	TotalPoints           int    `json:"total_points"`
	MaxPoints             int    `json:"max_points"`
}

// ElementCount is the number of COR elements. Reports always emit a summary
// for every element, including elements with no catalog questions yet.
const ElementCount = 14

// MaxCriticalGaps caps the critical gap list in a report.
const MaxCriticalGaps = 20

var elementNames = map[int]string{
	1:  "Health and Safety Policy",
	2:  "Hazard Assessment",
	3:  "Safe Work Practices",
	4:  "Safe Job Procedures",
	5:  "Company Rules",
	6:  "Personal Protective Equipment",
	7:  "Preventive Maintenance",
	8:  "Training and Communication",
	9:  "Inspections",
	10: "Incident Investigation",
	11: "Emergency Preparedness",
	12: "Statistics and Records",
	13: "Legislation",
	14: "Joint Health and Safety Committee",
}

// ElementName returns the display name of a COR element, or empty for an
// out-of-range element number.
func ElementName(n int) string {
	return elementNames[n]
}
