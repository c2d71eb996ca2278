package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true. If Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search executes a UNION ALL query across form_templates and audit_questions
// using plainto_tsquery and ts_rank, with ts_headline for snippets.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	tsQuery := "plainto_tsquery('english', $1)"
	args := []any{q.Text}
	argN := 2

	var subQueries []string

	if q.FilterType == "" || q.FilterType == ResultTemplate {
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'template'::text AS type, ft.id, ft.name AS title,
				ts_headline('english', coalesce(ft.description, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				ft.code, 0 AS element_number,
				ts_rank(ft.fts, %s) AS rank
			FROM form_templates ft
			WHERE ft.is_active AND ft.fts @@ %s`, tsQuery, tsQuery, tsQuery))
	}

	if q.FilterType == "" || q.FilterType == ResultQuestion {
		questionWhere := fmt.Sprintf("to_tsvector('english', aq.text) @@ %s", tsQuery)
		if q.FilterElement > 0 {
			questionWhere += fmt.Sprintf(" AND aq.element_number = $%d", argN)
			args = append(args, q.FilterElement)
			argN++
		}
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'question'::text AS type, aq.id, aq.question_number AS title,
				ts_headline('english', aq.text, %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				''::text AS code, aq.element_number,
				ts_rank(to_tsvector('english', aq.text), %s) AS rank
			FROM audit_questions aq
			WHERE %s`, tsQuery, tsQuery, questionWhere))
	}

	if len(subQueries) == 0 {
		return nil, 0, nil
	}

	countSQL := fmt.Sprintf("SELECT count(*) FROM (%s) sub",
		strings.Join(subQueries, " UNION ALL "))

	dataSQL := fmt.Sprintf(`SELECT type, id, title, snippet, code, element_number
		FROM (%s) sub
		ORDER BY rank DESC
		LIMIT %d OFFSET %d`,
		strings.Join(subQueries, " UNION ALL "),
		limit, offset)

	ctx := context.Background()

	var total int
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var typ string
		if err := rows.Scan(&typ, &r.ID, &r.Title, &r.Snippet, &r.Code, &r.ElementNumber); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.Type = ResultType(typ)
		results = append(results, r)
	}

	return results, total, rows.Err()
}

// LoadAllRecords returns all searchable records for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]TemplateRecord, []QuestionRecord, error) {
	templateRows, err := p.db.QueryContext(ctx, `
		SELECT id, code, name, COALESCE(description, '')
		FROM form_templates
		WHERE is_active
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("load templates: %w", err)
	}
	defer templateRows.Close()

	templates := make([]TemplateRecord, 0)
	for templateRows.Next() {
		var t TemplateRecord
		if err := templateRows.Scan(&t.ID, &t.Code, &t.Name, &t.Description); err != nil {
			return nil, nil, fmt.Errorf("scan template: %w", err)
		}
		templates = append(templates, t)
	}
	if err := templateRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate templates: %w", err)
	}

	questionRows, err := p.db.QueryContext(ctx, `
		SELECT id, element_number, question_number, text
		FROM audit_questions
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("load questions: %w", err)
	}
	defer questionRows.Close()

	questions := make([]QuestionRecord, 0)
	for questionRows.Next() {
		var q QuestionRecord
		if err := questionRows.Scan(&q.ID, &q.ElementNumber, &q.QuestionNumber, &q.Text); err != nil {
			return nil, nil, fmt.Errorf("scan question: %w", err)
		}
		questions = append(questions, q)
	}
	if err := questionRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate questions: %w", err)
	}

	return templates, questions, nil
}
