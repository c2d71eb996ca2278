package search

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultTemplate ResultType = "template"
	ResultQuestion ResultType = "question"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Type          ResultType `json:"type"`
	ID            string     `json:"id"`
	Title         string     `json:"title"`
	Snippet       string     `json:"snippet"`
	Code          string     `json:"code,omitempty"`
	ElementNumber int        `json:"element_number,omitempty"`
}

// Query describes a search request.
type Query struct {
	Text          string
	FilterType    ResultType // empty = all types
	FilterElement int        // questions only; 0 = all elements
	Limit         int
	Offset        int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// TemplateRecord is the data we index for a form template.
type TemplateRecord struct {
	ID          string `json:"id"`
	Code        string `json:"code"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// QuestionRecord is the data we index for an audit question.
type QuestionRecord struct {
	ID             string `json:"id"`
	ElementNumber  int    `json:"element_number"`
	QuestionNumber string `json:"question_number"`
	Text           string `json:"text"`
}
