package export

import (
	"fmt"
	"time"

	"corpathways/internal/evidence"
)

// Service renders already-computed compliance reports into downloads. It
// does not recompute anything; callers pass the report they want exported.
type Service struct{}

func NewService() *Service {
	return &Service{}
}

// Export generates an export in the requested format
func (s *Service) Export(report *evidence.CompanyEvidenceReport, req Request) (*Result, error) {
	if report == nil {
		return nil, fmt.Errorf("no report to export")
	}

	switch req.Format {
	case FormatCSV:
		return exportCSV(report, req.CompanyName)
	case FormatPDF:
		generatedAt := report.GeneratedAt
		if generatedAt.IsZero() {
			generatedAt = time.Now().UTC()
		}
		html, err := RenderScorecardHTML(TemplateData{
			CompanyName: req.CompanyName,
			GeneratedAt: generatedAt,
			Report:      report,
		})
		if err != nil {
			return nil, fmt.Errorf("render scorecard: %w", err)
		}
		return exportPDF(html, req.CompanyName+" scorecard")
	default:
		return nil, fmt.Errorf("unsupported format: %s", req.Format)
	}
}
