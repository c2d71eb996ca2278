package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"corpathways/internal/evidence"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ---- companies ----

func (s *PostgresStore) CreateCompany(ctx context.Context, company Company) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO companies (id, name, cor_number, province)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING
	`, company.ID, company.Name, company.CORNumber, company.Province)
	if err != nil {
		return fmt.Errorf("insert company: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetCompany(ctx context.Context, companyID string) (Company, error) {
	var company Company
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, cor_number, province, created_at, updated_at
		FROM companies
		WHERE id=$1
	`, companyID).Scan(&company.ID, &company.Name, &company.CORNumber, &company.Province, &company.CreatedAt, &company.UpdatedAt)
	if err != nil {
		return Company{}, err
	}
	return company, nil
}

// ---- users ----

const userColumns = `id, company_id, display_name, email, password_hash, role, is_email_verified, COALESCE(verification_token, ''), created_at, updated_at`

func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, company_id, display_name, email, password_hash, role, is_email_verified, verification_token)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, user.ID, user.CompanyID, user.DisplayName, user.Email, user.PasswordHash, user.Role, user.IsEmailVerified, user.VerificationToken)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `
		SELECT `+userColumns+` FROM users WHERE LOWER(email)=LOWER($1) AND deactivated_at IS NULL
	`, email))
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `
		SELECT `+userColumns+` FROM users WHERE id=$1 AND deactivated_at IS NULL
	`, userID))
}

func (s *PostgresStore) scanUser(row *sql.Row) (User, error) {
	var user User
	err := row.Scan(&user.ID, &user.CompanyID, &user.DisplayName, &user.Email, &user.PasswordHash,
		&user.Role, &user.IsEmailVerified, &user.VerificationToken, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) UpdateUserVerificationToken(ctx context.Context, userID, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET verification_token=$2, verification_expires_at=$3, updated_at=NOW()
		WHERE id=$1
	`, userID, token, expiresAt)
	if err != nil {
		return fmt.Errorf("update verification token: %w", err)
	}
	return nil
}

func (s *PostgresStore) VerifyUserEmail(ctx context.Context, token string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET is_email_verified=TRUE, verification_token=NULL, verification_expires_at=NULL, updated_at=NOW()
		WHERE verification_token=$1 AND verification_expires_at > NOW()
	`, token)
	if err != nil {
		return fmt.Errorf("verify email: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("verify email result: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) UpdateUserPassword(ctx context.Context, userID, passwordHash string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET password_hash=$2, updated_at=NOW() WHERE id=$1
	`, userID, passwordHash)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreatePasswordReset(ctx context.Context, userID, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO password_resets (token, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token) DO NOTHING
	`, token, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("create password reset: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPasswordReset(ctx context.Context, token string) (string, error) {
	var userID string
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id FROM password_resets
		WHERE token=$1 AND used_at IS NULL AND expires_at > NOW()
	`, token).Scan(&userID)
	if err != nil {
		return "", err
	}
	return userID, nil
}

func (s *PostgresStore) MarkPasswordResetUsed(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE password_resets SET used_at=NOW() WHERE token=$1`, token)
	if err != nil {
		return fmt.Errorf("mark password reset used: %w", err)
	}
	return nil
}

// ---- refresh sessions and token revocation ----

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET user_id=EXCLUDED.user_id, expires_at=EXCLUDED.expires_at, revoked_at=NULL
	`, tokenHash, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE refresh_sessions SET revoked_at=NOW() WHERE token_hash=$1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (User, error) {
	const query = `
		SELECT u.id, u.company_id, u.display_name, u.email, u.role
		FROM refresh_sessions rs
		JOIN users u ON u.id = rs.user_id
		WHERE rs.token_hash = $1
			AND rs.revoked_at IS NULL
			AND rs.expires_at > NOW()
			AND u.deactivated_at IS NULL
	`
	var user User
	err := s.db.QueryRowContext(ctx, query, tokenHash).Scan(&user.ID, &user.CompanyID, &user.DisplayName, &user.Email, &user.Role)
	if err != nil {
		return User{}, err
	}
	if user.Role == "" {
		user.Role = "viewer"
	}
	return user, nil
}

func (s *PostgresStore) RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO revoked_access_tokens (jti, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (jti) DO NOTHING
	`, jti, exp)
	if err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var revoked bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM revoked_access_tokens WHERE jti=$1)`, jti).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return revoked, nil
}

// ---- audit question catalog ----

func (s *PostgresStore) ListAuditQuestions(ctx context.Context) ([]evidence.AuditQuestion, error) {
	return s.queryQuestions(ctx, `
		SELECT id, element_number, question_number, text, point_value,
			required_evidence_types, sampling_requirements, verification_methods
		FROM audit_questions
		ORDER BY element_number, question_number
	`)
}

func (s *PostgresStore) ListElementAuditQuestions(ctx context.Context, elementNumber int) ([]evidence.AuditQuestion, error) {
	return s.queryQuestions(ctx, `
		SELECT id, element_number, question_number, text, point_value,
			required_evidence_types, sampling_requirements, verification_methods
		FROM audit_questions
		WHERE element_number=$1
		ORDER BY question_number
	`, elementNumber)
}

func (s *PostgresStore) queryQuestions(ctx context.Context, query string, args ...any) ([]evidence.AuditQuestion, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit questions: %w", err)
	}
	defer rows.Close()

	items := make([]evidence.AuditQuestion, 0)
	for rows.Next() {
		var item evidence.AuditQuestion
		var requiredTypes, verificationMethods []byte
		if err := rows.Scan(&item.ID, &item.ElementNumber, &item.QuestionNumber, &item.Text, &item.PointValue,
			&requiredTypes, &item.SamplingRequirements, &verificationMethods); err != nil {
			return nil, fmt.Errorf("scan audit question: %w", err)
		}
		if err := json.Unmarshal(requiredTypes, &item.RequiredEvidenceTypes); err != nil {
			return nil, fmt.Errorf("decode required evidence types for %s: %w", item.ID, err)
		}
		if err := json.Unmarshal(verificationMethods, &item.VerificationMethods); err != nil {
			return nil, fmt.Errorf("decode verification methods for %s: %w", item.ID, err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit questions: %w", err)
	}
	return items, nil
}

// ---- form templates and submissions ----

func (s *PostgresStore) ListFormTemplates(ctx context.Context) ([]evidence.FormTemplate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, code, name, COALESCE(description, '')
		FROM form_templates
		WHERE is_active
		ORDER BY code
	`)
	if err != nil {
		return nil, fmt.Errorf("list form templates: %w", err)
	}
	defer rows.Close()

	items := make([]evidence.FormTemplate, 0)
	for rows.Next() {
		var item evidence.FormTemplate
		if err := rows.Scan(&item.ID, &item.Code, &item.Name, &item.Description); err != nil {
			return nil, fmt.Errorf("scan form template: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate form templates: %w", err)
	}
	return items, nil
}

// ListCompanySubmissions fetches every qualifying submission for one company
// in a single query. Template code and name are denormalized onto each row so
// submissions against archived templates still resolve.
func (s *PostgresStore) ListCompanySubmissions(ctx context.Context, companyID string, statuses []string) ([]evidence.FormSubmission, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT fs.id, fs.company_id, fs.template_id, ft.code, ft.name,
			fs.status, COALESCE(fs.summary, ''), COALESCE(fs.submitted_by, ''),
			fs.submitted_at, COALESCE(fs.attachment_key, '')
		FROM form_submissions fs
		JOIN form_templates ft ON ft.id = fs.template_id
		WHERE fs.company_id = $1 AND fs.status = ANY($2)
		ORDER BY fs.submitted_at DESC
	`, companyID, statuses)
	if err != nil {
		return nil, fmt.Errorf("list company submissions: %w", err)
	}
	defer rows.Close()

	items := make([]evidence.FormSubmission, 0)
	for rows.Next() {
		var item evidence.FormSubmission
		if err := rows.Scan(&item.ID, &item.CompanyID, &item.TemplateID, &item.TemplateCode, &item.TemplateName,
			&item.Status, &item.Summary, &item.SubmittedBy, &item.SubmittedAt, &item.AttachmentKey); err != nil {
			return nil, fmt.Errorf("scan form submission: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate form submissions: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetFormSubmission(ctx context.Context, submissionID string) (FormSubmission, error) {
	var item FormSubmission
	err := s.db.QueryRowContext(ctx, `
		SELECT id, company_id, template_id, status, COALESCE(summary, ''), COALESCE(submitted_by, ''),
			submitted_at, COALESCE(attachment_key, ''), created_at
		FROM form_submissions
		WHERE id=$1
	`, submissionID).Scan(&item.ID, &item.CompanyID, &item.TemplateID, &item.Status, &item.Summary,
		&item.SubmittedBy, &item.SubmittedAt, &item.AttachmentKey, &item.CreatedAt)
	if err != nil {
		return FormSubmission{}, err
	}
	return item, nil
}

func (s *PostgresStore) CreateFormSubmission(ctx context.Context, sub FormSubmission) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO form_submissions (id, company_id, template_id, status, summary, submitted_by, submitted_at, attachment_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''))
	`, sub.ID, sub.CompanyID, sub.TemplateID, sub.Status, sub.Summary, sub.SubmittedBy, sub.SubmittedAt, sub.AttachmentKey)
	if err != nil {
		return fmt.Errorf("create form submission: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateSubmissionAttachmentKey(ctx context.Context, submissionID, key string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE form_submissions SET attachment_key=$2 WHERE id=$1
	`, submissionID, key)
	if err != nil {
		return fmt.Errorf("update submission attachment: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update submission attachment: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) CountCompanies(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM companies`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count companies: %w", err)
	}
	return count, nil
}

// ---- evidence mappings ----

// UpsertEvidenceMapping is keyed on (company, evidence type, evidence id,
// question id) so re-running auto-mapping refreshes confidence in place.
func (s *PostgresStore) UpsertEvidenceMapping(ctx context.Context, m evidence.Mapping) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO evidence_mappings (company_id, evidence_type, evidence_id, question_id, confidence)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (company_id, evidence_type, evidence_id, question_id)
		DO UPDATE SET confidence=EXCLUDED.confidence, updated_at=NOW()
	`, m.CompanyID, m.EvidenceType, m.EvidenceID, m.QuestionID, m.Confidence)
	if err != nil {
		return fmt.Errorf("upsert evidence mapping: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListEvidenceMappings(ctx context.Context, companyID string) ([]EvidenceMapping, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, company_id, evidence_type, evidence_id, question_id, confidence, created_at, updated_at
		FROM evidence_mappings
		WHERE company_id=$1
		ORDER BY question_id, evidence_id
	`, companyID)
	if err != nil {
		return nil, fmt.Errorf("list evidence mappings: %w", err)
	}
	defer rows.Close()

	items := make([]EvidenceMapping, 0)
	for rows.Next() {
		var item EvidenceMapping
		if err := rows.Scan(&item.ID, &item.CompanyID, &item.EvidenceType, &item.EvidenceID, &item.QuestionID,
			&item.Confidence, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan evidence mapping: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate evidence mappings: %w", err)
	}
	return items, nil
}
