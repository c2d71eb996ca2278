package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"corpathways/internal/auth"
)

func postJSON(t *testing.T, server *HTTPServer, path, body, bearer string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)
	return rr
}

func getJSON(t *testing.T, server *HTTPServer, path, bearer string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)
	return rr
}

func parseBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse response %q: %v", rr.Body.String(), err)
	}
	return payload
}

func TestSignUpVerifySignInFlow(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs)
	server := NewHTTPServer(svc, "*")

	rr := postJSON(t, server, "/api/auth/signup",
		`{"email":"owner@acme.test","password":"hunter2hunter2","displayName":"Jordan","companyName":"Acme Contracting"}`, "")
	if rr.Code != http.StatusCreated {
		t.Fatalf("signup status = %d body=%s", rr.Code, rr.Body.String())
	}
	payload := parseBody(t, rr)
	verifyToken, _ := payload["devVerificationToken"].(string)
	if verifyToken == "" {
		t.Fatal("expected devVerificationToken when SMTP is not configured")
	}
	companyID, _ := payload["companyId"].(string)
	if companyID == "" {
		t.Fatal("expected companyId in signup response")
	}
	if _, ok := fs.companies[companyID]; !ok {
		t.Fatalf("company %s was not created", companyID)
	}

	// Unverified sign-in is rejected.
	rr = postJSON(t, server, "/api/auth/signin", `{"email":"owner@acme.test","password":"hunter2hunter2"}`, "")
	if rr.Code != http.StatusForbidden {
		t.Fatalf("unverified signin status = %d", rr.Code)
	}
	if parseBody(t, rr)["code"] != "EMAIL_NOT_VERIFIED" {
		t.Fatal("expected EMAIL_NOT_VERIFIED code")
	}

	rr = postJSON(t, server, "/api/auth/verify-email", `{"token":"`+verifyToken+`"}`, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("verify status = %d body=%s", rr.Code, rr.Body.String())
	}

	rr = postJSON(t, server, "/api/auth/signin", `{"email":"owner@acme.test","password":"hunter2hunter2"}`, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("signin status = %d body=%s", rr.Code, rr.Body.String())
	}
	payload = parseBody(t, rr)
	accessToken, _ := payload["accessToken"].(string)
	if accessToken == "" {
		t.Fatal("expected accessToken")
	}
	if payload["companyId"] != companyID {
		t.Errorf("signin companyId = %v, want %s", payload["companyId"], companyID)
	}
	if payload["role"] != "admin" {
		t.Errorf("first user role = %v, want admin", payload["role"])
	}

	// The issued token works against a protected route.
	rr = getJSON(t, server, "/api/questions", accessToken)
	if rr.Code != http.StatusOK {
		t.Fatalf("questions status = %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestSignUpDuplicateEmail(t *testing.T) {
	server := NewHTTPServer(newTestService(newFakeStore()), "*")

	body := `{"email":"dup@acme.test","password":"hunter2hunter2","displayName":"A","companyName":"Acme"}`
	if rr := postJSON(t, server, "/api/auth/signup", body, ""); rr.Code != http.StatusCreated {
		t.Fatalf("first signup status = %d", rr.Code)
	}
	rr := postJSON(t, server, "/api/auth/signup", body, "")
	if rr.Code != http.StatusConflict {
		t.Fatalf("duplicate signup status = %d", rr.Code)
	}
	if parseBody(t, rr)["code"] != "EMAIL_EXISTS" {
		t.Fatal("expected EMAIL_EXISTS code")
	}
}

func TestPasswordResetFlow(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs)
	server := NewHTTPServer(svc, "*")

	rr := postJSON(t, server, "/api/auth/signup",
		`{"email":"reset@acme.test","password":"originalpass1","displayName":"Sam","companyName":"Acme"}`, "")
	if rr.Code != http.StatusCreated {
		t.Fatalf("signup status = %d", rr.Code)
	}
	verifyToken, _ := parseBody(t, rr)["devVerificationToken"].(string)
	if rr := postJSON(t, server, "/api/auth/verify-email", `{"token":"`+verifyToken+`"}`, ""); rr.Code != http.StatusOK {
		t.Fatalf("verify status = %d", rr.Code)
	}

	rr = postJSON(t, server, "/api/auth/reset-password/request", `{"email":"reset@acme.test"}`, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("reset request status = %d", rr.Code)
	}
	resetToken, _ := parseBody(t, rr)["devResetToken"].(string)
	if resetToken == "" {
		t.Fatal("expected devResetToken when SMTP is not configured")
	}

	rr = postJSON(t, server, "/api/auth/reset-password",
		`{"token":"`+resetToken+`","newPassword":"replacement9"}`, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("reset status = %d body=%s", rr.Code, rr.Body.String())
	}

	if rr := postJSON(t, server, "/api/auth/signin", `{"email":"reset@acme.test","password":"originalpass1"}`, ""); rr.Code != http.StatusUnauthorized {
		t.Fatalf("old password signin status = %d", rr.Code)
	}
	if rr := postJSON(t, server, "/api/auth/signin", `{"email":"reset@acme.test","password":"replacement9"}`, ""); rr.Code != http.StatusOK {
		t.Fatalf("new password signin status = %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestResetRequestUnknownEmailDoesNotLeak(t *testing.T) {
	server := NewHTTPServer(newTestService(newFakeStore()), "*")

	rr := postJSON(t, server, "/api/auth/reset-password/request", `{"email":"ghost@acme.test"}`, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("reset request status = %d", rr.Code)
	}
	if _, ok := parseBody(t, rr)["devResetToken"]; ok {
		t.Fatal("unknown email must not produce a reset token")
	}
}

func TestRefreshEndpointRotatesToken(t *testing.T) {
	fs := newFakeStore()
	user := seedUser(fs, "usr_1", "co_1", "editor")
	svc := newTestService(fs)
	server := NewHTTPServer(svc, "*")

	session, err := svc.issueSession(context.Background(), user)
	if err != nil {
		t.Fatalf("issueSession: %v", err)
	}

	rr := postJSON(t, server, "/api/session/refresh", `{"refreshToken":"`+session.RefreshToken+`"}`, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("refresh status = %d body=%s", rr.Code, rr.Body.String())
	}
	payload := parseBody(t, rr)
	if payload["token"] == "" || payload["refreshToken"] == session.RefreshToken {
		t.Fatal("expected a fresh token pair")
	}

	rr = postJSON(t, server, "/api/session/refresh", `{"refreshToken":"`+session.RefreshToken+`"}`, "")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("replayed refresh status = %d", rr.Code)
	}
}

func TestProtectedRouteWithoutBearerReturnsUnauthorized(t *testing.T) {
	server := NewHTTPServer(newTestService(newFakeStore()), "*")

	rr := getJSON(t, server, "/api/questions", "")
	assertUnauthorizedCode(t, rr)
}

func TestProtectedRouteWithInvalidBearerReturnsUnauthorized(t *testing.T) {
	server := NewHTTPServer(newTestService(newFakeStore()), "*")

	rr := getJSON(t, server, "/api/questions", "definitely-not-a-token")
	assertUnauthorizedCode(t, rr)
}

func TestProtectedRouteWithExpiredBearerReturnsUnauthorized(t *testing.T) {
	server := NewHTTPServer(newTestService(newFakeStore()), "*")

	token, err := auth.IssueToken([]byte("test-secret"), auth.Claims{
		Sub:       "usr_1",
		Name:      "Jordan",
		Role:      "editor",
		CompanyID: "co_1",
		JTI:       "jti-expired",
		Exp:       time.Now().Add(-1 * time.Minute).Unix(),
	})
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	rr := getJSON(t, server, "/api/questions", token)
	assertUnauthorizedCode(t, rr)
}

func assertUnauthorizedCode(t *testing.T, rr *httptest.ResponseRecorder) {
	t.Helper()
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d body=%s", rr.Code, rr.Body.String())
	}
	if parseBody(t, rr)["code"] != "UNAUTHORIZED" {
		t.Fatalf("expected code UNAUTHORIZED, got %s", rr.Body.String())
	}
}
