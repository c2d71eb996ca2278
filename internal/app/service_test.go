package app

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"corpathways/internal/auth"
	"corpathways/internal/authpw"
	"corpathways/internal/config"
	"corpathways/internal/email"
	"corpathways/internal/evidence"
	"corpathways/internal/export"
	"corpathways/internal/rbac"
	"corpathways/internal/store"
)

// fakeStore is an in-memory dataStore, sessionStore, authpw.UserStore, and
// evidence repository rolled into one.
type fakeStore struct {
	companies   map[string]store.Company
	users       map[string]store.User
	resets      map[string]string
	refresh     map[string]string
	revokedJTIs map[string]bool

	questions        []evidence.AuditQuestion
	templates        []evidence.FormTemplate
	submissions      []evidence.FormSubmission
	storeSubmissions []store.FormSubmission
	mappingRows      []store.EvidenceMapping
	upserts          []evidence.Mapping

	pingFn func(context.Context) error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		companies:   make(map[string]store.Company),
		users:       make(map[string]store.User),
		resets:      make(map[string]string),
		refresh:     make(map[string]string),
		revokedJTIs: make(map[string]bool),
	}
}

func (f *fakeStore) CreateCompany(_ context.Context, company store.Company) error {
	f.companies[company.ID] = company
	return nil
}

func (f *fakeStore) GetCompany(_ context.Context, companyID string) (store.Company, error) {
	company, ok := f.companies[companyID]
	if !ok {
		return store.Company{}, sql.ErrNoRows
	}
	return company, nil
}

func (f *fakeStore) CountCompanies(_ context.Context) (int, error) {
	return len(f.companies), nil
}

func (f *fakeStore) CreateUser(_ context.Context, user store.User) error {
	f.users[user.ID] = user
	return nil
}

func (f *fakeStore) GetUserByID(_ context.Context, userID string) (store.User, error) {
	user, ok := f.users[userID]
	if !ok {
		return store.User{}, sql.ErrNoRows
	}
	return user, nil
}

func (f *fakeStore) GetUserByEmail(_ context.Context, email string) (store.User, error) {
	for _, user := range f.users {
		if strings.EqualFold(user.Email, email) {
			return user, nil
		}
	}
	return store.User{}, sql.ErrNoRows
}

func (f *fakeStore) UpdateUserVerificationToken(_ context.Context, userID, token string, expiresAt time.Time) error {
	user, ok := f.users[userID]
	if !ok {
		return sql.ErrNoRows
	}
	user.VerificationToken = token
	user.VerificationExpiresAt = &expiresAt
	f.users[userID] = user
	return nil
}

func (f *fakeStore) VerifyUserEmail(_ context.Context, token string) error {
	for id, user := range f.users {
		if user.VerificationToken == token && token != "" {
			user.IsEmailVerified = true
			user.VerificationToken = ""
			f.users[id] = user
			return nil
		}
	}
	return sql.ErrNoRows
}

func (f *fakeStore) UpdateUserPassword(_ context.Context, userID, passwordHash string) error {
	user, ok := f.users[userID]
	if !ok {
		return sql.ErrNoRows
	}
	user.PasswordHash = passwordHash
	f.users[userID] = user
	return nil
}

func (f *fakeStore) CreatePasswordReset(_ context.Context, userID, token string, _ time.Time) error {
	f.resets[token] = userID
	return nil
}

func (f *fakeStore) GetPasswordReset(_ context.Context, token string) (string, error) {
	userID, ok := f.resets[token]
	if !ok {
		return "", sql.ErrNoRows
	}
	return userID, nil
}

func (f *fakeStore) MarkPasswordResetUsed(_ context.Context, token string) error {
	delete(f.resets, token)
	return nil
}

func (f *fakeStore) SaveRefreshSession(_ context.Context, tokenHash, userID string, _ time.Time) error {
	f.refresh[tokenHash] = userID
	return nil
}

// LookupRefreshSession returns a sparse user, matching the Redis store's
// behavior, so tests exercise the hydration path in Refresh.
func (f *fakeStore) LookupRefreshSession(_ context.Context, tokenHash string) (store.User, error) {
	userID, ok := f.refresh[tokenHash]
	if !ok {
		return store.User{}, sql.ErrNoRows
	}
	return store.User{ID: userID}, nil
}

func (f *fakeStore) RevokeRefreshSession(_ context.Context, tokenHash string) error {
	delete(f.refresh, tokenHash)
	return nil
}

func (f *fakeStore) RevokeAccessToken(_ context.Context, jti string, _ time.Time) error {
	f.revokedJTIs[jti] = true
	return nil
}

func (f *fakeStore) IsAccessTokenRevoked(_ context.Context, jti string) (bool, error) {
	return f.revokedJTIs[jti], nil
}

func (f *fakeStore) ListAuditQuestions(_ context.Context) ([]evidence.AuditQuestion, error) {
	return f.questions, nil
}

func (f *fakeStore) ListElementAuditQuestions(_ context.Context, elementNumber int) ([]evidence.AuditQuestion, error) {
	var out []evidence.AuditQuestion
	for _, q := range f.questions {
		if q.ElementNumber == elementNumber {
			out = append(out, q)
		}
	}
	return out, nil
}

func (f *fakeStore) ListFormTemplates(_ context.Context) ([]evidence.FormTemplate, error) {
	return f.templates, nil
}

func (f *fakeStore) ListCompanySubmissions(_ context.Context, companyID string, statuses []string) ([]evidence.FormSubmission, error) {
	allowed := make(map[string]bool, len(statuses))
	for _, s := range statuses {
		allowed[s] = true
	}
	var out []evidence.FormSubmission
	for _, sub := range f.submissions {
		if sub.CompanyID == companyID && allowed[sub.Status] {
			out = append(out, sub)
		}
	}
	return out, nil
}

func (f *fakeStore) CreateFormSubmission(_ context.Context, sub store.FormSubmission) error {
	f.storeSubmissions = append(f.storeSubmissions, sub)
	return nil
}

func (f *fakeStore) GetFormSubmission(_ context.Context, submissionID string) (store.FormSubmission, error) {
	for _, sub := range f.storeSubmissions {
		if sub.ID == submissionID {
			return sub, nil
		}
	}
	return store.FormSubmission{}, sql.ErrNoRows
}

func (f *fakeStore) UpdateSubmissionAttachmentKey(_ context.Context, submissionID, key string) error {
	for i := range f.storeSubmissions {
		if f.storeSubmissions[i].ID == submissionID {
			f.storeSubmissions[i].AttachmentKey = key
			return nil
		}
	}
	return sql.ErrNoRows
}

func (f *fakeStore) UpsertEvidenceMapping(_ context.Context, m evidence.Mapping) error {
	f.upserts = append(f.upserts, m)
	return nil
}

func (f *fakeStore) ListEvidenceMappings(_ context.Context, companyID string) ([]store.EvidenceMapping, error) {
	var out []store.EvidenceMapping
	for _, row := range f.mappingRows {
		if row.CompanyID == companyID {
			out = append(out, row)
		}
	}
	return out, nil
}

func (f *fakeStore) Ping(ctx context.Context) error {
	if f.pingFn != nil {
		return f.pingFn(ctx)
	}
	return nil
}

func newTestService(fs *fakeStore) *Service {
	return &Service{
		cfg: config.Config{
			TokenSecret: "test-secret",
			AccessTTL:   time.Hour,
			RefreshTTL:  24 * time.Hour,
			AppBaseURL:  "http://localhost:3000",
		},
		store:    fs,
		sessions: fs,
		mapper:   evidence.NewMapper(fs, fs, fs, nil),
		exports:  export.NewService(),
		authpw:   authpw.NewService(fs),
		email:    email.NewService(email.Config{}),
	}
}

func seedUser(fs *fakeStore, id, companyID, role string) store.User {
	user := store.User{
		ID:              id,
		CompanyID:       companyID,
		DisplayName:     "User " + id,
		Email:           id + "@example.com",
		Role:            role,
		IsEmailVerified: true,
	}
	fs.users[id] = user
	return user
}

func TestRefreshRotatesAndHydrates(t *testing.T) {
	fs := newFakeStore()
	user := seedUser(fs, "usr_1", "co_1", "editor")
	svc := newTestService(fs)
	ctx := context.Background()

	first, err := svc.issueSession(ctx, user)
	if err != nil {
		t.Fatalf("issueSession: %v", err)
	}

	second, err := svc.Refresh(ctx, first.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if second.UserName != user.DisplayName {
		t.Errorf("refreshed session not hydrated: userName=%q", second.UserName)
	}
	if second.CompanyID != "co_1" {
		t.Errorf("refreshed session companyID=%q", second.CompanyID)
	}
	if second.RefreshToken == first.RefreshToken {
		t.Error("refresh token was not rotated")
	}

	if _, err := svc.Refresh(ctx, first.RefreshToken); err == nil {
		t.Error("expected rotated refresh token to be rejected")
	}
}

func TestLogoutRevokesAccessToken(t *testing.T) {
	fs := newFakeStore()
	user := seedUser(fs, "usr_1", "co_1", "editor")
	svc := newTestService(fs)
	ctx := context.Background()

	session, err := svc.issueSession(ctx, user)
	if err != nil {
		t.Fatalf("issueSession: %v", err)
	}
	if _, err := svc.SessionFromToken(ctx, session.Token); err != nil {
		t.Fatalf("SessionFromToken before logout: %v", err)
	}

	if err := svc.Logout(ctx, session, session.RefreshToken); err != nil {
		t.Fatalf("Logout: %v", err)
	}

	if _, err := svc.SessionFromToken(ctx, session.Token); !errors.Is(err, auth.ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken after logout, got %v", err)
	}
	if _, err := svc.Refresh(ctx, session.RefreshToken); err == nil {
		t.Error("expected refresh token to be revoked after logout")
	}
}

func TestSessionCarriesCompanyClaim(t *testing.T) {
	fs := newFakeStore()
	user := seedUser(fs, "usr_1", "co_42", "auditor")
	svc := newTestService(fs)
	ctx := context.Background()

	issued, err := svc.issueSession(ctx, user)
	if err != nil {
		t.Fatalf("issueSession: %v", err)
	}
	parsed, err := svc.SessionFromToken(ctx, issued.Token)
	if err != nil {
		t.Fatalf("SessionFromToken: %v", err)
	}
	if parsed.CompanyID != "co_42" {
		t.Errorf("companyID = %q, want co_42", parsed.CompanyID)
	}
	if parsed.Role != "auditor" {
		t.Errorf("role = %q, want auditor", parsed.Role)
	}
}

func TestCanMapsRolesToActions(t *testing.T) {
	svc := newTestService(newFakeStore())
	tests := []struct {
		role   string
		action rbac.Action
		want   bool
	}{
		{"viewer", rbac.ActionRead, true},
		{"viewer", rbac.ActionWrite, false},
		{"editor", rbac.ActionWrite, true},
		{"editor", rbac.ActionAudit, false},
		{"auditor", rbac.ActionAudit, true},
		{"auditor", rbac.ActionWrite, false},
		{"admin", rbac.ActionAdmin, true},
		{"unknown-role", rbac.ActionWrite, false},
	}
	for _, tt := range tests {
		if got := svc.Can(tt.role, tt.action); got != tt.want {
			t.Errorf("Can(%s, %s) = %v, want %v", tt.role, tt.action, got, tt.want)
		}
	}
}

func TestBootstrapSeedsOnce(t *testing.T) {
	fs := newFakeStore()
	fs.templates = []evidence.FormTemplate{
		{ID: "ft_toolbox_talk", Code: "toolbox_talk", Name: "Toolbox Talk"},
		{ID: "ft_safety_policy", Code: "safety_policy", Name: "Policy Acknowledgement"},
	}
	svc := newTestService(fs)
	ctx := context.Background()

	if err := svc.Bootstrap(ctx); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	if len(fs.companies) != 1 {
		t.Fatalf("companies = %d, want 1", len(fs.companies))
	}
	if len(fs.users) != 1 {
		t.Fatalf("users = %d, want 1", len(fs.users))
	}
	// Only seeds with a matching template are created.
	if len(fs.storeSubmissions) == 0 {
		t.Fatal("expected seeded submissions")
	}
	for _, sub := range fs.storeSubmissions {
		if sub.TemplateID != "ft_toolbox_talk" && sub.TemplateID != "ft_safety_policy" {
			t.Errorf("seeded submission references unknown template %s", sub.TemplateID)
		}
	}

	before := len(fs.storeSubmissions)
	if err := svc.Bootstrap(ctx); err != nil {
		t.Fatalf("second Bootstrap: %v", err)
	}
	if len(fs.storeSubmissions) != before {
		t.Error("Bootstrap reseeded a non-empty database")
	}
}
