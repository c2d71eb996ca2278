package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"

	"corpathways/internal/evidence"
)

// exportCSV writes the per-element breakdown plus an overall row, suitable
// for spreadsheet review.
func exportCSV(report *evidence.CompanyEvidenceReport, companyName string) (*Result, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := []string{
		"element_number", "element_name", "total_questions", "questions_with_evidence",
		"sufficient_questions", "earned_points", "max_points", "coverage_percentage", "completion_percentage",
	}
	if err := w.Write(header); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}

	for _, element := range report.Elements {
		row := []string{
			strconv.Itoa(element.ElementNumber),
			element.ElementName,
			strconv.Itoa(element.TotalQuestions),
			strconv.Itoa(element.QuestionsWithEvidence),
			strconv.Itoa(element.SufficientQuestions),
			strconv.Itoa(element.EarnedPoints),
			strconv.Itoa(element.MaxPoints),
			strconv.Itoa(element.CoveragePercentage),
			strconv.Itoa(element.CompletionPercentage),
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}

	overall := []string{
		"", "Overall",
		strconv.Itoa(report.TotalQuestions),
		strconv.Itoa(report.QuestionsWithEvidence),
		strconv.Itoa(report.SufficientQuestions),
		strconv.Itoa(report.TotalPoints),
		strconv.Itoa(report.MaxPoints),
		strconv.Itoa(report.OverallPercentage),
		"",
	}
	if err := w.Write(overall); err != nil {
		return nil, fmt.Errorf("write csv overall row: %w", err)
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}

	return &Result{
		Data:     buf.Bytes(),
		Filename: sanitizeFilename(companyName+" scorecard") + ".csv",
		MimeType: "text/csv",
	}, nil
}
