package app

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"path"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"corpathways/internal/auth"
	"corpathways/internal/authpw"
	"corpathways/internal/blob"
	"corpathways/internal/config"
	"corpathways/internal/email"
	"corpathways/internal/evidence"
	"corpathways/internal/export"
	"corpathways/internal/rbac"
	"corpathways/internal/search"
	"corpathways/internal/snapshot"
	"corpathways/internal/store"
	"corpathways/internal/util"
)

// Session is the authenticated caller context attached to every request.
// CompanyID scopes tenant data access.
type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	Role         string
	CompanyID    string
	JTI          string
	ExpiresAt    time.Time
}

type dataStore interface {
	CreateCompany(ctx context.Context, company store.Company) error
	GetCompany(ctx context.Context, companyID string) (store.Company, error)
	CountCompanies(ctx context.Context) (int, error)

	CreateUser(ctx context.Context, user store.User) error
	GetUserByID(ctx context.Context, userID string) (store.User, error)
	GetUserByEmail(ctx context.Context, email string) (store.User, error)

	RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error
	IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error)

	ListAuditQuestions(ctx context.Context) ([]evidence.AuditQuestion, error)
	ListElementAuditQuestions(ctx context.Context, elementNumber int) ([]evidence.AuditQuestion, error)
	ListFormTemplates(ctx context.Context) ([]evidence.FormTemplate, error)
	CreateFormSubmission(ctx context.Context, sub store.FormSubmission) error
	GetFormSubmission(ctx context.Context, submissionID string) (store.FormSubmission, error)
	UpdateSubmissionAttachmentKey(ctx context.Context, submissionID, key string) error
	ListEvidenceMappings(ctx context.Context, companyID string) ([]store.EvidenceMapping, error)

	Ping(ctx context.Context) error
}

// sessionStore holds hashed refresh tokens. The Redis implementation returns
// a sparse user (id only); Refresh hydrates it from the primary store.
type sessionStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
}

type searchService interface {
	Search(q search.Query) search.Response
}

type snapshotService interface {
	CommitReport(companyID string, report *evidence.CompanyEvidenceReport, author string) (snapshot.CommitInfo, error)
	History(companyID string, limit int) ([]snapshot.CommitInfo, error)
	GetByHash(companyID, hash string) (*evidence.CompanyEvidenceReport, error)
}

type attachmentSigner interface {
	PresignedGetURL(ctx context.Context, key string, expiry time.Duration) (string, error)
	Put(ctx context.Context, key, contentType string, size int64, body io.Reader) error
}

type Service struct {
	cfg       config.Config
	store     dataStore
	sessions  sessionStore
	mapper    *evidence.Mapper
	search    searchService
	snapshots snapshotService
	exports   *export.Service
	authpw    *authpw.Service
	email     *email.Service
	blobs     attachmentSigner
}

func New(cfg config.Config, dataStore *store.PostgresStore, snapshots *snapshot.Service, searchService *search.Service, blobs *blob.Client) *Service {
	return newService(cfg, dataStore, dataStore, snapshots, searchService, blobs)
}

// NewWithSessionStore uses a dedicated refresh-token store (Redis) instead of
// the primary database.
func NewWithSessionStore(cfg config.Config, dataStore *store.PostgresStore, sessions sessionStore, snapshots *snapshot.Service, searchService *search.Service, blobs *blob.Client) *Service {
	return newService(cfg, dataStore, sessions, snapshots, searchService, blobs)
}

func newService(cfg config.Config, dataStore *store.PostgresStore, sessions sessionStore, snapshots *snapshot.Service, searchService *search.Service, blobs *blob.Client) *Service {
	s := &Service{
		cfg:       cfg,
		store:     dataStore,
		sessions:  sessions,
		mapper:    evidence.NewMapper(dataStore, dataStore, dataStore, blob.NewURLResolver(blobs)),
		search:    searchService,
		snapshots: snapshots,
		exports:   export.NewService(),
		authpw:    authpw.NewService(dataStore),
		email: email.NewService(email.Config{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
			FromName: cfg.SMTPFromName,
		}),
	}
	if blobs != nil {
		s.blobs = blobs
	}
	return s
}

func (s *Service) AuthPasswordService() *authpw.Service {
	return s.authpw
}

func (s *Service) SMTPConfigured() bool {
	return s.email != nil && s.email.IsConfigured()
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Bootstrap seeds a demo company with a verified admin and a handful of form
// submissions so a fresh install renders a non-empty scorecard.
func (s *Service) Bootstrap(ctx context.Context) error {
	count, err := s.store.CountCompanies(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	company := store.Company{
		ID:        util.NewID("co"),
		Name:      "Northbridge Contracting",
		CORNumber: "COR-2019-04417",
		Province:  "AB",
	}
	if err := s.store.CreateCompany(ctx, company); err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte("corpathways-demo"), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	admin := store.User{
		ID:              util.NewID("usr"),
		CompanyID:       company.ID,
		DisplayName:     "Demo Admin",
		Email:           "demo@corpathways.dev",
		PasswordHash:    string(hash),
		Role:            "admin",
		IsEmailVerified: true,
	}
	if err := s.store.CreateUser(ctx, admin); err != nil {
		return err
	}

	templates, err := s.store.ListFormTemplates(ctx)
	if err != nil {
		return err
	}
	templateByCode := make(map[string]string, len(templates))
	for _, t := range templates {
		templateByCode[t.Code] = t.ID
	}

	seeds := []struct {
		Code    string
		Summary string
		DaysAgo int
		Status  string
	}{
		{Code: "toolbox_talk", Summary: "Toolbox talk: ladder setup and tie-off", DaysAgo: 4, Status: "approved"},
		{Code: "toolbox_talk", Summary: "Toolbox talk: silica dust controls", DaysAgo: 11, Status: "approved"},
		{Code: "toolbox_talk", Summary: "Toolbox talk: winter driving", DaysAgo: 32, Status: "submitted"},
		{Code: "site_inspection", Summary: "Monthly site inspection, Lot 14 townhomes", DaysAgo: 9, Status: "approved"},
		{Code: "hazard_assessment", Summary: "Hazard assessment: trenching and excavation", DaysAgo: 18, Status: "approved"},
		{Code: "incident_investigation", Summary: "Investigation: near miss, dropped material", DaysAgo: 25, Status: "submitted"},
		{Code: "safety_policy", Summary: "Annual policy sign-off, all field staff", DaysAgo: 45, Status: "approved"},
		{Code: "emergency_drill", Summary: "Evacuation drill, main yard", DaysAgo: 60, Status: "approved"},
	}
	now := time.Now()
	for _, seed := range seeds {
		templateID, ok := templateByCode[seed.Code]
		if !ok {
			continue
		}
		if err := s.store.CreateFormSubmission(ctx, store.FormSubmission{
			ID:          util.NewID("fs"),
			CompanyID:   company.ID,
			TemplateID:  templateID,
			Status:      seed.Status,
			Summary:     seed.Summary,
			SubmittedBy: admin.ID,
			SubmittedAt: now.AddDate(0, 0, -seed.DaysAgo),
		}); err != nil {
			return err
		}
	}

	log.Printf("seeded demo company %s with %d submissions", company.ID, len(seeds))
	return nil
}

// ---- sessions ----

func (s *Service) CreateSession(ctx context.Context, userID string) (Session, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	user, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	// The Redis store only persists the user id; re-read the user so role and
	// company changes take effect on refresh.
	if user.Email == "" {
		user, err = s.store.GetUserByID(ctx, user.ID)
		if err != nil {
			return Session{}, err
		}
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.TokenSecret), auth.Claims{
		Sub:       user.ID,
		Name:      user.DisplayName,
		Role:      user.Role,
		CompanyID: user.CompanyID,
		JTI:       jti,
		Exp:       expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user.ID, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.DisplayName,
		Role:         user.Role,
		CompanyID:    user.CompanyID,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.TokenSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.store.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	return Session{
		Token:     token,
		UserID:    claims.Sub,
		UserName:  claims.Name,
		Role:      claims.Role,
		CompanyID: claims.CompanyID,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		_ = s.store.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt)
	}
	if refreshToken != "" {
		_ = s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
	}
	return nil
}

func (s *Service) Can(role string, action rbac.Action) bool {
	return rbac.Can(rbac.Normalize(role), action)
}

// ---- catalog ----

// ListQuestions returns the audit question catalog, optionally scoped to a
// single element (1..14).
func (s *Service) ListQuestions(ctx context.Context, elementNumber int) ([]evidence.AuditQuestion, error) {
	if elementNumber == 0 {
		return s.store.ListAuditQuestions(ctx)
	}
	if elementNumber < 1 || elementNumber > evidence.ElementCount {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "element must be between 1 and 14", nil)
	}
	return s.store.ListElementAuditQuestions(ctx, elementNumber)
}

func (s *Service) SearchTemplates(q search.Query) search.Response {
	return s.search.Search(q)
}

// ---- compliance reporting ----

func (s *Service) requireCompany(ctx context.Context, companyID string) (store.Company, error) {
	company, err := s.store.GetCompany(ctx, companyID)
	if err != nil {
		return store.Company{}, err
	}
	return company, nil
}

func (s *Service) EvidenceReport(ctx context.Context, companyID string) (*evidence.CompanyEvidenceReport, error) {
	if _, err := s.requireCompany(ctx, companyID); err != nil {
		return nil, err
	}
	return s.mapper.GenerateEvidenceReport(ctx, companyID)
}

func (s *Service) CoverageStats(ctx context.Context, companyID string) (*evidence.CoverageStats, error) {
	if _, err := s.requireCompany(ctx, companyID); err != nil {
		return nil, err
	}
	return s.mapper.GetEvidenceCoverageStats(ctx, companyID)
}

func (s *Service) ElementSummary(ctx context.Context, companyID string, elementNumber int) (*evidence.ElementEvidenceSummary, error) {
	if _, err := s.requireCompany(ctx, companyID); err != nil {
		return nil, err
	}
	summary, err := s.mapper.GetElementEvidenceSummary(ctx, companyID, elementNumber)
	if errors.Is(err, evidence.ErrUnknownElement) {
		return nil, domainError(http.StatusNotFound, "UNKNOWN_ELEMENT", "element number must be between 1 and 14", nil)
	}
	return summary, err
}

func (s *Service) AutoMap(ctx context.Context, companyID string) (int, error) {
	if _, err := s.requireCompany(ctx, companyID); err != nil {
		return 0, err
	}
	return s.mapper.AutoMapEvidence(ctx, companyID)
}

func (s *Service) EvidenceMappings(ctx context.Context, companyID string) ([]store.EvidenceMapping, error) {
	if _, err := s.requireCompany(ctx, companyID); err != nil {
		return nil, err
	}
	return s.store.ListEvidenceMappings(ctx, companyID)
}

// ---- export and snapshots ----

func (s *Service) ExportReport(ctx context.Context, companyID string, format export.Format) (*export.Result, error) {
	company, err := s.requireCompany(ctx, companyID)
	if err != nil {
		return nil, err
	}
	report, err := s.mapper.GenerateEvidenceReport(ctx, companyID)
	if err != nil {
		return nil, err
	}
	result, err := s.exports.Export(report, export.Request{CompanyName: company.Name, Format: format})
	if errors.Is(err, export.ErrPDFDependencyMissing) {
		return nil, domainError(http.StatusServiceUnavailable, "PDF_UNAVAILABLE", "PDF rendering is not available on this server", nil)
	}
	return result, err
}

func (s *Service) SnapshotReport(ctx context.Context, companyID, author string) (snapshot.CommitInfo, error) {
	if _, err := s.requireCompany(ctx, companyID); err != nil {
		return snapshot.CommitInfo{}, err
	}
	report, err := s.mapper.GenerateEvidenceReport(ctx, companyID)
	if err != nil {
		return snapshot.CommitInfo{}, err
	}
	return s.snapshots.CommitReport(companyID, report, author)
}

func (s *Service) SnapshotHistory(ctx context.Context, companyID string, limit int) ([]snapshot.CommitInfo, error) {
	if _, err := s.requireCompany(ctx, companyID); err != nil {
		return nil, err
	}
	return s.snapshots.History(companyID, limit)
}

func (s *Service) SnapshotByHash(ctx context.Context, companyID, hash string) (*evidence.CompanyEvidenceReport, error) {
	if _, err := s.requireCompany(ctx, companyID); err != nil {
		return nil, err
	}
	report, err := s.snapshots.GetByHash(companyID, hash)
	if err != nil {
		return nil, domainError(http.StatusNotFound, "SNAPSHOT_NOT_FOUND", "no snapshot with that hash", nil)
	}
	return report, nil
}

// ---- email notifications ----

// SendVerificationEmail is best effort; delivery failures are logged, never
// surfaced to the signup flow.
func (s *Service) SendVerificationEmail(to, userName, companyName, token string) {
	if !s.SMTPConfigured() || token == "" {
		return
	}
	verificationURL := strings.TrimRight(s.cfg.AppBaseURL, "/") + "/verify-email?token=" + token
	if err := s.email.SendVerificationEmail(to, userName, companyName, verificationURL); err != nil {
		log.Printf("WARNING: send verification email: %v", err)
	}
}

func (s *Service) SendPasswordResetEmail(ctx context.Context, to, token string) {
	if !s.SMTPConfigured() || token == "" {
		return
	}
	userName := to
	if user, err := s.store.GetUserByEmail(ctx, to); err == nil {
		userName = user.DisplayName
	}
	resetURL := strings.TrimRight(s.cfg.AppBaseURL, "/") + "/reset-password?token=" + token
	if err := s.email.SendPasswordResetEmail(to, userName, resetURL); err != nil {
		log.Printf("WARNING: send password reset email: %v", err)
	}
}

// ---- attachments ----

// AttachmentURL returns a short-lived presigned download link for a
// submission's stored attachment.
func (s *Service) AttachmentURL(ctx context.Context, session Session, submissionID string) (string, error) {
	sub, err := s.store.GetFormSubmission(ctx, submissionID)
	if err != nil {
		return "", err
	}
	if sub.CompanyID != session.CompanyID && rbac.Normalize(session.Role) != rbac.RoleAdmin {
		return "", domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}
	if sub.AttachmentKey == "" {
		return "", domainError(http.StatusNotFound, "NO_ATTACHMENT", "submission has no stored attachment", nil)
	}
	if s.blobs == nil {
		return "", domainError(http.StatusServiceUnavailable, "ATTACHMENTS_UNAVAILABLE", "object storage is not configured", nil)
	}
	url, err := s.blobs.PresignedGetURL(ctx, sub.AttachmentKey, blob.AttachmentLinkTTL)
	if err != nil {
		return "", err
	}
	return url, nil
}

// UploadAttachment stores a file against a submission and records its object
// key so evidence links can resolve it later.
func (s *Service) UploadAttachment(ctx context.Context, session Session, submissionID, filename, contentType string, size int64, body io.Reader) (string, error) {
	sub, err := s.store.GetFormSubmission(ctx, submissionID)
	if err != nil {
		return "", err
	}
	if sub.CompanyID != session.CompanyID && rbac.Normalize(session.Role) != rbac.RoleAdmin {
		return "", domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}
	if s.blobs == nil {
		return "", domainError(http.StatusServiceUnavailable, "ATTACHMENTS_UNAVAILABLE", "object storage is not configured", nil)
	}
	name := sanitizeFilename(filename)
	if name == "" {
		return "", domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "filename is required", nil)
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	key := sub.CompanyID + "/" + sub.ID + "/" + name
	if err := s.blobs.Put(ctx, key, contentType, size, body); err != nil {
		return "", err
	}
	if err := s.store.UpdateSubmissionAttachmentKey(ctx, sub.ID, key); err != nil {
		return "", err
	}
	return key, nil
}

// sanitizeFilename keeps only the base name with a conservative character
// set, so the object key cannot escape the submission's prefix.
func sanitizeFilename(name string) string {
	name = path.Base(strings.TrimSpace(name))
	if name == "." || name == "/" {
		return ""
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.' || r == '-' || r == '_':
			return r
		default:
			return '-'
		}
	}, name)
}
