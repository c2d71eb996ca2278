package authpw

import (
	"context"
	"errors"
	"testing"
	"time"

	"corpathways/internal/store"
)

// mockUserStore is an in-memory UserStore for testing
type mockUserStore struct {
	users         map[string]store.User
	companies     map[string]store.Company
	emailIndex    map[string]string
	verifications map[string]store.User
	resets        map[string]struct {
		userID    string
		expiresAt time.Time
		used      bool
	}
}

func newMockUserStore() *mockUserStore {
	return &mockUserStore{
		users:         make(map[string]store.User),
		companies:     make(map[string]store.Company),
		emailIndex:    make(map[string]string),
		verifications: make(map[string]store.User),
		resets: make(map[string]struct {
			userID    string
			expiresAt time.Time
			used      bool
		}),
	}
}

func (m *mockUserStore) GetUserByEmail(ctx context.Context, email string) (store.User, error) {
	if userID, ok := m.emailIndex[email]; ok {
		return m.users[userID], nil
	}
	return store.User{}, errors.New("user not found")
}

func (m *mockUserStore) GetUserByID(ctx context.Context, id string) (store.User, error) {
	if user, ok := m.users[id]; ok {
		return user, nil
	}
	return store.User{}, errors.New("user not found")
}

func (m *mockUserStore) CreateUser(ctx context.Context, user store.User) error {
	m.users[user.ID] = user
	m.emailIndex[user.Email] = user.ID
	return nil
}

func (m *mockUserStore) CreateCompany(ctx context.Context, company store.Company) error {
	m.companies[company.ID] = company
	return nil
}

func (m *mockUserStore) UpdateUserVerificationToken(ctx context.Context, userID, token string, expiresAt time.Time) error {
	if user, ok := m.users[userID]; ok {
		user.VerificationToken = token
		user.VerificationExpiresAt = &expiresAt
		m.users[userID] = user
		m.verifications[token] = user
	}
	return nil
}

func (m *mockUserStore) VerifyUserEmail(ctx context.Context, token string) error {
	if user, ok := m.verifications[token]; ok {
		user.IsEmailVerified = true
		m.users[user.ID] = user
		m.emailIndex[user.Email] = user.ID
		return nil
	}
	return errors.New("invalid token")
}

func (m *mockUserStore) UpdateUserPassword(ctx context.Context, userID, passwordHash string) error {
	if user, ok := m.users[userID]; ok {
		user.PasswordHash = passwordHash
		m.users[userID] = user
		return nil
	}
	return errors.New("user not found")
}

func (m *mockUserStore) CreatePasswordReset(ctx context.Context, userID, token string, expiresAt time.Time) error {
	m.resets[token] = struct {
		userID    string
		expiresAt time.Time
		used      bool
	}{userID: userID, expiresAt: expiresAt}
	return nil
}

func (m *mockUserStore) GetPasswordReset(ctx context.Context, token string) (string, error) {
	if reset, ok := m.resets[token]; ok && !reset.used && time.Now().Before(reset.expiresAt) {
		return reset.userID, nil
	}
	return "", errors.New("invalid or expired token")
}

func (m *mockUserStore) MarkPasswordResetUsed(ctx context.Context, token string) error {
	if reset, ok := m.resets[token]; ok {
		reset.used = true
		m.resets[token] = reset
	}
	return nil
}

func TestSignUp(t *testing.T) {
	ctx := context.Background()
	mockStore := newMockUserStore()
	svc := NewService(mockStore)

	t.Run("successful sign up", func(t *testing.T) {
		resp, err := svc.SignUp(ctx, SignUpRequest{
			Email:       "owner@acmecontracting.ca",
			Password:    "password123",
			DisplayName: "Pat Owner",
			CompanyName: "Acme Contracting",
		})
		if err != nil {
			t.Fatalf("SignUp failed: %v", err)
		}
		if resp.UserID == "" || resp.CompanyID == "" {
			t.Fatalf("resp = %+v, want user and company ids", resp)
		}
		if !resp.RequiresEmailVerify {
			t.Error("new accounts should require verification")
		}
		user := mockStore.users[resp.UserID]
		if user.Role != "admin" {
			t.Errorf("role = %q, want admin for the first company user", user.Role)
		}
		if user.CompanyID != resp.CompanyID {
			t.Errorf("user company = %q, want %q", user.CompanyID, resp.CompanyID)
		}
		if _, ok := mockStore.companies[resp.CompanyID]; !ok {
			t.Error("company record was not created")
		}
	})

	t.Run("duplicate email rejected", func(t *testing.T) {
		_, err := svc.SignUp(ctx, SignUpRequest{
			Email:       "owner@acmecontracting.ca",
			Password:    "password123",
			DisplayName: "Other",
			CompanyName: "Other Co",
		})
		if err == nil {
			t.Fatal("expected duplicate email error")
		}
	})

	t.Run("short password rejected", func(t *testing.T) {
		_, err := svc.SignUp(ctx, SignUpRequest{
			Email:       "short@acmecontracting.ca",
			Password:    "short",
			DisplayName: "Short",
			CompanyName: "Short Co",
		})
		if err == nil {
			t.Fatal("expected short password error")
		}
	})

	t.Run("missing company name rejected", func(t *testing.T) {
		_, err := svc.SignUp(ctx, SignUpRequest{
			Email:       "no-co@acmecontracting.ca",
			Password:    "password123",
			DisplayName: "No Co",
		})
		if err == nil {
			t.Fatal("expected missing company name error")
		}
	})
}

func TestSignInAndVerify(t *testing.T) {
	ctx := context.Background()
	mockStore := newMockUserStore()
	svc := NewService(mockStore)

	resp, err := svc.SignUp(ctx, SignUpRequest{
		Email:       "owner@acmecontracting.ca",
		Password:    "password123",
		DisplayName: "Pat Owner",
		CompanyName: "Acme Contracting",
	})
	if err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}

	signIn, err := svc.SignIn(ctx, SignInRequest{Email: "owner@acmecontracting.ca", Password: "password123"})
	if err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}
	if !signIn.RequiresVerify {
		t.Fatal("unverified account should require verification")
	}

	if err := svc.VerifyEmail(ctx, resp.VerificationToken); err != nil {
		t.Fatalf("VerifyEmail failed: %v", err)
	}

	signIn, err = svc.SignIn(ctx, SignInRequest{Email: "owner@acmecontracting.ca", Password: "password123"})
	if err != nil {
		t.Fatalf("SignIn after verify failed: %v", err)
	}
	if signIn.RequiresVerify {
		t.Error("verified account should not require verification")
	}
	if signIn.User.CompanyID != resp.CompanyID {
		t.Errorf("company = %q, want %q", signIn.User.CompanyID, resp.CompanyID)
	}

	if _, err := svc.SignIn(ctx, SignInRequest{Email: "owner@acmecontracting.ca", Password: "wrong-password"}); err == nil {
		t.Error("wrong password should be rejected")
	}

	if err := svc.VerifyEmail(ctx, "bogus-token"); err == nil {
		t.Error("bogus verification token should be rejected")
	}
}

func TestPasswordReset(t *testing.T) {
	ctx := context.Background()
	mockStore := newMockUserStore()
	svc := NewService(mockStore)

	resp, err := svc.SignUp(ctx, SignUpRequest{
		Email:       "owner@acmecontracting.ca",
		Password:    "password123",
		DisplayName: "Pat Owner",
		CompanyName: "Acme Contracting",
	})
	if err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}
	if err := svc.VerifyEmail(ctx, resp.VerificationToken); err != nil {
		t.Fatalf("VerifyEmail failed: %v", err)
	}

	token, err := svc.RequestPasswordReset(ctx, "owner@acmecontracting.ca")
	if err != nil {
		t.Fatalf("RequestPasswordReset failed: %v", err)
	}
	if token == "" {
		t.Fatal("expected a reset token for a known email")
	}

	// Unknown emails return silently, without a token.
	unknown, err := svc.RequestPasswordReset(ctx, "nobody@example.com")
	if err != nil || unknown != "" {
		t.Fatalf("unknown email: token=%q err=%v", unknown, err)
	}

	if err := svc.ResetPassword(ctx, ResetPasswordRequest{Token: token, NewPassword: "newpassword456"}); err != nil {
		t.Fatalf("ResetPassword failed: %v", err)
	}

	if _, err := svc.SignIn(ctx, SignInRequest{Email: "owner@acmecontracting.ca", Password: "newpassword456"}); err != nil {
		t.Fatalf("SignIn with new password failed: %v", err)
	}
	if _, err := svc.SignIn(ctx, SignInRequest{Email: "owner@acmecontracting.ca", Password: "password123"}); err == nil {
		t.Error("old password should no longer work")
	}

	// Reset tokens are single use.
	if err := svc.ResetPassword(ctx, ResetPasswordRequest{Token: token, NewPassword: "anotherpass789"}); err == nil {
		t.Error("used reset token should be rejected")
	}
}
