package export

import (
	"bytes"
	"embed"
	"html/template"
	"time"

	"corpathways/internal/evidence"
)

//go:embed templates/*.html
var templateFS embed.FS

var scorecardTemplate *template.Template

func init() {
	funcMap := template.FuncMap{
		"formatDate": func(t time.Time, layout string) string {
			return t.Format(layout)
		},
	}

	templateContent, err := templateFS.ReadFile("templates/scorecard.html")
	if err != nil {
		scorecardTemplate = template.Must(template.New("scorecard").Funcs(funcMap).Parse(fallbackTemplate))
		return
	}

	scorecardTemplate = template.Must(template.New("scorecard").Funcs(funcMap).Parse(string(templateContent)))
}

// TemplateData holds data for scorecard template rendering
type TemplateData struct {
	CompanyName string
	GeneratedAt time.Time
	Report      *evidence.CompanyEvidenceReport
}

// RenderScorecardHTML renders the scorecard template with provided data
func RenderScorecardHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := scorecardTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// fallbackTemplate is used if the embedded template fails to load
const fallbackTemplate = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.CompanyName}} COR Readiness Scorecard</title>
  <style>
    body { font-family: Arial, sans-serif; line-height: 1.5; max-width: 800px; margin: 2rem auto; color: #222; }
    h1 { border-bottom: 2px solid #1a7f37; padding-bottom: 0.5rem; }
    .meta { color: #666; font-size: 0.9em; margin-bottom: 2rem; }
    table { border-collapse: collapse; width: 100%; margin: 1rem 0; }
    th, td { border: 1px solid #ccc; padding: 6px 10px; text-align: left; }
    th { background: #f0f5f1; }
    .gap { background: #fff3f3; padding: 0.5rem 1rem; margin: 0.5rem 0; border-left: 3px solid #c0392b; }
  </style>
</head>
<body>
  <h1>{{.CompanyName}} COR Readiness Scorecard</h1>
  <p class="meta">Generated {{formatDate .GeneratedAt "January 2, 2006 15:04 MST"}}</p>

  <h2>Overall: {{.Report.OverallPercentage}}% ({{.Report.TotalPoints}} of {{.Report.MaxPoints}} points)</h2>
  <p>{{.Report.SufficientQuestions}} of {{.Report.TotalQuestions}} audit questions have sufficient evidence.</p>

  <h2>Elements</h2>
  <table>
    <tr><th>Element</th><th>Name</th><th>Questions</th><th>Sufficient</th><th>Points</th><th>Coverage</th></tr>
    {{range .Report.Elements}}
    <tr>
      <td>{{.ElementNumber}}</td>
      <td>{{.ElementName}}</td>
      <td>{{.TotalQuestions}}</td>
      <td>{{.SufficientQuestions}}</td>
      <td>{{.EarnedPoints}} / {{.MaxPoints}}</td>
      <td>{{.CoveragePercentage}}%</td>
    </tr>
    {{end}}
  </table>

  {{if .Report.CriticalGaps}}
  <h2>Critical Gaps</h2>
  {{range .Report.CriticalGaps}}
  <div class="gap">
    <strong>Element {{.ElementNumber}}, question {{.QuestionNumber}}</strong> ({{.PointValue}} points)<br>
    {{.Text}}
  </div>
  {{end}}
  {{end}}
</body>
</html>`
