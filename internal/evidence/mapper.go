package evidence

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"
)

// FormTemplate is the catalog entry an evidence type resolves against.
type FormTemplate struct {
	ID          string
	Code        string
	Name        string
	Description string
}

// FormSubmission is one submitted form, with its template code and name
// denormalized so archived templates still resolve on the exact-match retry.
type FormSubmission struct {
	ID            string
	CompanyID     string
	TemplateID    string
	TemplateCode  string
	TemplateName  string
	Status        string
	Summary       string
	SubmittedBy   string
	SubmittedAt   time.Time
	AttachmentKey string
}

// Mapping is one advisory evidence-to-question link persisted by auto-mapping.
type Mapping struct {
	CompanyID    string
	EvidenceType string
	EvidenceID   string
	QuestionID   string
	Confidence   string
}

// QuestionRepository loads the audit question catalog.
type QuestionRepository interface {
	ListAuditQuestions(ctx context.Context) ([]AuditQuestion, error)
	ListElementAuditQuestions(ctx context.Context, elementNumber int) ([]AuditQuestion, error)
}

// SubmissionRepository loads a tenant's form templates and submissions.
type SubmissionRepository interface {
	ListFormTemplates(ctx context.Context) ([]FormTemplate, error)
	ListCompanySubmissions(ctx context.Context, companyID string, statuses []string) ([]FormSubmission, error)
}

// MappingRepository persists advisory evidence-to-question mappings.
type MappingRepository interface {
	UpsertEvidenceMapping(ctx context.Context, m Mapping) error
}

// URLResolver turns a submission into a link the dashboard can open. May be
// backed by presigned object-storage URLs for attachments.
type URLResolver interface {
	SubmissionURL(ctx context.Context, submission FormSubmission) string
}

// Submission statuses that qualify as evidence.
var evidenceStatuses = []string{"submitted", "approved"}

const (
	// Per matched template on the first, fuzzy resolution pass.
	firstPassFetchLimit = 50
	// Per required type on the narrower exact-code retry.
	retryFetchLimit = 20
)

// Mapper computes evidence maps and readiness reports for one tenant at a
// time. It only reads; the single write path is AutoMapEvidence.
type Mapper struct {
	questions   QuestionRepository
	submissions SubmissionRepository
	mappings    MappingRepository
	urls        URLResolver
	recencyDays int
}

func NewMapper(questions QuestionRepository, submissions SubmissionRepository, mappings MappingRepository, urls URLResolver) *Mapper {
	return &Mapper{
		questions:   questions,
		submissions: submissions,
		mappings:    mappings,
		urls:        urls,
		recencyDays: DefaultRecencyWindowDays,
	}
}

// submissionIndex holds one company's candidate submissions, fetched in a
// single query and partitioned in memory per question. This replaces the
// one-round-trip-per-question-per-type access pattern.
type submissionIndex struct {
	templates  []FormTemplate
	byTemplate map[string][]FormSubmission
	all        []FormSubmission
}

func (m *Mapper) buildIndex(ctx context.Context, companyID string) (*submissionIndex, error) {
	templates, err := m.submissions.ListFormTemplates(ctx)
	if err != nil {
		return nil, fmt.Errorf("list form templates: %w", err)
	}
	submissions, err := m.submissions.ListCompanySubmissions(ctx, companyID, evidenceStatuses)
	if err != nil {
		return nil, fmt.Errorf("list company submissions: %w", err)
	}

	// Newest first so per-template fetch caps keep the most recent records.
	sort.SliceStable(submissions, func(i, j int) bool {
		return submissions[i].SubmittedAt.After(submissions[j].SubmittedAt)
	})

	byTemplate := make(map[string][]FormSubmission)
	for _, sub := range submissions {
		byTemplate[sub.TemplateID] = append(byTemplate[sub.TemplateID], sub)
	}
	return &submissionIndex{templates: templates, byTemplate: byTemplate, all: submissions}, nil
}

// FindEvidenceForQuestion locates qualifying submissions for one question.
// Questions that declare no required evidence types yield nothing.
func (m *Mapper) FindEvidenceForQuestion(ctx context.Context, companyID string, question AuditQuestion) ([]Evidence, error) {
	if len(question.RequiredEvidenceTypes) == 0 {
		return []Evidence{}, nil
	}
	idx, err := m.buildIndex(ctx, companyID)
	if err != nil {
		return nil, err
	}
	return m.findForQuestion(ctx, idx, question), nil
}

func (m *Mapper) findForQuestion(ctx context.Context, idx *submissionIndex, question AuditQuestion) []Evidence {
	required := question.RequiredEvidenceTypes
	if len(required) == 0 {
		return []Evidence{}
	}

	seen := make(map[string]struct{})
	items := make([]Evidence, 0)
	unresolved := make([]string, 0)

	// First pass: resolve required types to templates by exact code or
	// case-insensitive substring containment in either direction.
	matchedTemplates := make([]FormTemplate, 0)
	matchedIDs := make(map[string]struct{})
	for _, requiredType := range required {
		found := false
		for _, template := range idx.templates {
			if !templateMatches(template.Code, requiredType) {
				continue
			}
			found = true
			if _, dup := matchedIDs[template.ID]; !dup {
				matchedIDs[template.ID] = struct{}{}
				matchedTemplates = append(matchedTemplates, template)
			}
		}
		if !found {
			unresolved = append(unresolved, requiredType)
		}
	}

	for _, template := range matchedTemplates {
		count := 0
		for _, sub := range idx.byTemplate[template.ID] {
			if count >= firstPassFetchLimit {
				break
			}
			if _, dup := seen[sub.ID]; dup {
				continue
			}
			seen[sub.ID] = struct{}{}
			items = append(items, m.toEvidence(ctx, sub, required))
			count++
		}
	}

	// Second pass: required types with no template match fall back to an
	// exact code comparison against the submissions themselves, which still
	// resolves codes whose template has been archived.
	for _, requiredType := range unresolved {
		count := 0
		for _, sub := range idx.all {
			if count >= retryFetchLimit {
				break
			}
			if normalizeCode(sub.TemplateCode) != normalizeCode(requiredType) {
				continue
			}
			if _, dup := seen[sub.ID]; dup {
				continue
			}
			seen[sub.ID] = struct{}{}
			items = append(items, m.toEvidence(ctx, sub, required))
			count++
		}
	}

	sort.SliceStable(items, func(i, j int) bool {
		if items[i].RelevanceScore != items[j].RelevanceScore {
			return items[i].RelevanceScore > items[j].RelevanceScore
		}
		return items[i].Date.After(items[j].Date)
	})
	return items
}

func templateMatches(templateCode, requiredType string) bool {
	confidence, _ := Classify(templateCode, requiredType)
	return confidence == MatchExact || confidence == MatchSubstring
}

func (m *Mapper) toEvidence(ctx context.Context, sub FormSubmission, requiredTypes []string) Evidence {
	sourceURL := "/forms/submissions/" + sub.ID
	if m.urls != nil {
		if resolved := m.urls.SubmissionURL(ctx, sub); resolved != "" {
			sourceURL = resolved
		}
	}
	return Evidence{
		ID:             sub.ID,
		Type:           "form",
		Reference:      fmt.Sprintf("%s (%s)", sub.TemplateName, sub.SubmittedAt.Format("2006-01-02")),
		Date:           sub.SubmittedAt,
		Description:    sub.Summary,
		SourceURL:      sourceURL,
		FormCode:       sub.TemplateCode,
		RelevanceScore: RelevanceScore(sub.TemplateCode, requiredTypes),
	}
}

// catalogQuestions degrades a catalog fetch failure to an empty list so a
// storage blip produces an all-zero report instead of a failed request.
func (m *Mapper) catalogQuestions(ctx context.Context) []AuditQuestion {
	questions, err := m.questions.ListAuditQuestions(ctx)
	if err != nil {
		log.Printf("evidence: audit question catalog unavailable: %v", err)
		return nil
	}
	return questions
}

// MapEvidenceToAuditQuestions evaluates every catalog question against one
// company's submissions and returns the result keyed by question id.
func (m *Mapper) MapEvidenceToAuditQuestions(ctx context.Context, companyID string) (map[string]QuestionEvidence, error) {
	_, results, err := m.compute(ctx, companyID)
	return results, err
}

func (m *Mapper) compute(ctx context.Context, companyID string) ([]AuditQuestion, map[string]QuestionEvidence, error) {
	questions := m.catalogQuestions(ctx)
	results := make(map[string]QuestionEvidence, len(questions))
	if len(questions) == 0 {
		return nil, results, nil
	}

	idx, err := m.buildIndex(ctx, companyID)
	if err != nil {
		return nil, nil, err
	}

	cutoff := time.Now().AddDate(0, 0, -m.recencyDays)
	for _, question := range questions {
		items := m.findForQuestion(ctx, idx, question)
		requiredSamples := ParseSamplingRequirement(question.SamplingRequirements)
		recent := FilterRecentSince(items, cutoff)

		results[question.ID] = QuestionEvidence{
			Question:           question,
			Evidence:           items,
			IsSufficient:       EvaluateSufficiency(recent, requiredSamples),
			RequiredSamples:    requiredSamples,
			FoundSamples:       len(recent),
			CoveragePercentage: CoveragePercentage(len(recent), requiredSamples),
			Gaps:               IdentifyGaps(items, question, requiredSamples, cutoff),
			Score:              QuestionScore(items, question, requiredSamples, cutoff),
			MaxScore:           question.PointValue,
		}
	}
	return questions, results, nil
}

// GenerateEvidenceReport builds the company-wide readiness report. All 14
// elements are always present, with zero counts where the catalog has no
// questions yet.
func (m *Mapper) GenerateEvidenceReport(ctx context.Context, companyID string) (*CompanyEvidenceReport, error) {
	questions, results, err := m.compute(ctx, companyID)
	if err != nil {
		return nil, err
	}

	report := &CompanyEvidenceReport{
		CompanyID:    companyID,
		GeneratedAt:  time.Now().UTC(),
		Elements:     make([]ElementEvidenceSummary, 0, ElementCount),
		CriticalGaps: make([]CriticalGap, 0),
		Questions:    results,
	}

	byElement := make(map[int][]AuditQuestion)
	for _, question := range questions {
		byElement[question.ElementNumber] = append(byElement[question.ElementNumber], question)
	}

	for element := 1; element <= ElementCount; element++ {
		summary := ElementEvidenceSummary{
			ElementNumber: element,
			ElementName:   ElementName(element),
		}
		for _, question := range byElement[element] {
			result := results[question.ID]
			summary.TotalQuestions++
			summary.MaxPoints += result.MaxScore
			summary.EarnedPoints += result.Score
			if len(result.Evidence) > 0 {
				summary.QuestionsWithEvidence++
			} else if len(report.CriticalGaps) < MaxCriticalGaps {
				report.CriticalGaps = append(report.CriticalGaps, CriticalGap{
					QuestionID:     question.ID,
					ElementNumber:  question.ElementNumber,
					QuestionNumber: question.QuestionNumber,
					Text:           question.Text,
					PointValue:     question.PointValue,
				})
			}
			if result.IsSufficient {
				summary.SufficientQuestions++
			}
		}
		summary.CoveragePercentage = roundPercentage(summary.EarnedPoints, summary.MaxPoints)
		summary.CompletionPercentage = roundPercentage(summary.SufficientQuestions, summary.TotalQuestions)

		report.Elements = append(report.Elements, summary)
		report.TotalQuestions += summary.TotalQuestions
		report.QuestionsWithEvidence += summary.QuestionsWithEvidence
		report.SufficientQuestions += summary.SufficientQuestions
		report.TotalPoints += summary.EarnedPoints
		report.MaxPoints += summary.MaxPoints
	}

	report.OverallPercentage = roundPercentage(report.TotalPoints, report.MaxPoints)
	return report, nil
}

// GetEvidenceCoverageStats returns the counts-and-percentage subset for
// dashboard widgets that do not need the per-question breakdown.
func (m *Mapper) GetEvidenceCoverageStats(ctx context.Context, companyID string) (*CoverageStats, error) {
	report, err := m.GenerateEvidenceReport(ctx, companyID)
	if err != nil {
		return nil, err
	}
	return &CoverageStats{
		CompanyID:             report.CompanyID,
		TotalQuestions:        report.TotalQuestions,
		QuestionsWithEvidence: report.QuestionsWithEvidence,
		SufficientQuestions:   report.SufficientQuestions,
		OverallPercentage:     report.OverallPercentage,
		TotalPoints:           report.TotalPoints,
		MaxPoints:             report.MaxPoints,
	}, nil
}

// ErrUnknownElement is returned for element numbers outside 1..14.
var ErrUnknownElement = fmt.Errorf("unknown element number")

// GetElementEvidenceSummary returns one element's rollup. It is derived from
// the same computation as the full report so the two access paths cannot
// diverge.
func (m *Mapper) GetElementEvidenceSummary(ctx context.Context, companyID string, elementNumber int) (*ElementEvidenceSummary, error) {
	if elementNumber < 1 || elementNumber > ElementCount {
		return nil, ErrUnknownElement
	}
	report, err := m.GenerateEvidenceReport(ctx, companyID)
	if err != nil {
		return nil, err
	}
	for i := range report.Elements {
		if report.Elements[i].ElementNumber == elementNumber {
			return &report.Elements[i], nil
		}
	}
	return nil, ErrUnknownElement
}

// AutoMapEvidence persists advisory evidence-to-question mapping rows via
// upsert. Mappings are best-effort: a failed upsert is logged and skipped,
// and the count of stored mappings is returned.
func (m *Mapper) AutoMapEvidence(ctx context.Context, companyID string) (int, error) {
	if m.mappings == nil {
		return 0, fmt.Errorf("mapping repository not configured")
	}
	questions, results, err := m.compute(ctx, companyID)
	if err != nil {
		return 0, err
	}

	mapped := 0
	for _, question := range questions {
		result := results[question.ID]
		for _, item := range result.Evidence {
			evidenceType, confidence := BestMatch(item.FormCode, question.RequiredEvidenceTypes)
			mapping := Mapping{
				CompanyID:    companyID,
				EvidenceType: evidenceType,
				EvidenceID:   item.ID,
				QuestionID:   question.ID,
				Confidence:   confidence.String(),
			}
			if err := m.mappings.UpsertEvidenceMapping(ctx, mapping); err != nil {
				log.Printf("evidence: automap upsert failed for question %s evidence %s: %v", question.ID, item.ID, err)
				continue
			}
			mapped++
		}
	}
	return mapped, nil
}
