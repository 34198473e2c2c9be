package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/codemeet/internal/model"
)

// --- モック定義 ---

type mockAuthService struct {
	getLoginURLFn    func(state string) string
	handleCallbackFn func(ctx context.Context, code string) (*model.Session, error)
	logoutFn         func(ctx context.Context, sessionID string) error
	getCurrentUserFn func(ctx context.Context, sessionID string) (*model.User, error)
}

func (m *mockAuthService) GetLoginURL(state string) string {
	if m.getLoginURLFn != nil {
		return m.getLoginURLFn(state)
	}
	return ""
}

func (m *mockAuthService) HandleCallback(ctx context.Context, code string) (*model.Session, error) {
	if m.handleCallbackFn != nil {
		return m.handleCallbackFn(ctx, code)
	}
	return nil, nil
}

func (m *mockAuthService) Logout(ctx context.Context, sessionID string) error {
	if m.logoutFn != nil {
		return m.logoutFn(ctx, sessionID)
	}
	return nil
}

func (m *mockAuthService) GetCurrentUser(ctx context.Context, sessionID string) (*model.User, error) {
	if m.getCurrentUserFn != nil {
		return m.getCurrentUserFn(ctx, sessionID)
	}
	return nil, nil
}

func testAuthConfig() AuthHandlerConfig {
	return AuthHandlerConfig{BaseURL: "http://localhost:3000", SessionMaxAge: 86400}
}

func findResponseCookie(resp *http.Response, name string) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// --- テスト ---

func TestAuthHandler_Login_RedirectsToOAuthURL(t *testing.T) {
	svc := &mockAuthService{
		getLoginURLFn: func(state string) string {
			return "https://accounts.google.com/o/oauth2/auth?state=" + state
		},
	}
	h := NewAuthHandler(svc, testAuthConfig())

	w := httptest.NewRecorder()
	h.Login(w, httptest.NewRequest(http.MethodGet, "/auth/google/login", nil))

	resp := w.Result()
	if resp.StatusCode != http.StatusTemporaryRedirect {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusTemporaryRedirect)
	}
	state := findResponseCookie(resp, oauthStateCookie)
	if state == nil || state.Value == "" {
		t.Fatal("expected oauth_state cookie")
	}
	if location := resp.Header.Get("Location"); !strings.HasSuffix(location, "state="+state.Value) {
		t.Errorf("Location = %q, should carry the state cookie value", location)
	}
}

func TestAuthHandler_Callback_Success_SetsCookieAndRedirects(t *testing.T) {
	var gotCode string
	svc := &mockAuthService{
		handleCallbackFn: func(ctx context.Context, code string) (*model.Session, error) {
			gotCode = code
			return &model.Session{ID: "session-id-abc", UserID: "user-id-123", ExpiresAt: time.Now().Add(24 * time.Hour)}, nil
		},
	}
	h := NewAuthHandler(svc, testAuthConfig())

	req := httptest.NewRequest(http.MethodGet, "/auth/google/callback?code=test-code&state=test-state", nil)
	req.AddCookie(&http.Cookie{Name: oauthStateCookie, Value: "test-state"})
	w := httptest.NewRecorder()

	h.Callback(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusTemporaryRedirect {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusTemporaryRedirect)
	}
	if location := resp.Header.Get("Location"); location != "http://localhost:3000" {
		t.Errorf("Location = %q, want %q", location, "http://localhost:3000")
	}
	if gotCode != "test-code" {
		t.Errorf("code = %q, want test-code", gotCode)
	}

	session := findResponseCookie(resp, "session_id")
	if session == nil {
		t.Fatal("expected session_id cookie to be set")
	}
	if session.Value != "session-id-abc" {
		t.Errorf("session cookie value = %q, want %q", session.Value, "session-id-abc")
	}
	if !session.HttpOnly {
		t.Error("session cookie should be HttpOnly")
	}
	if session.SameSite != http.SameSiteLaxMode {
		t.Errorf("session cookie SameSite = %v, want %v", session.SameSite, http.SameSiteLaxMode)
	}
}

func TestAuthHandler_Callback_Rejects(t *testing.T) {
	failing := &mockAuthService{
		handleCallbackFn: func(ctx context.Context, code string) (*model.Session, error) {
			return nil, errors.New("auth failed")
		},
	}

	tests := []struct {
		name       string
		svc        *mockAuthService
		target     string
		cookie     string
		wantStatus int
	}{
		{"missing code", &mockAuthService{}, "/auth/google/callback?state=s", "s", http.StatusBadRequest},
		{"state mismatch", &mockAuthService{}, "/auth/google/callback?code=c&state=wrong", "correct", http.StatusBadRequest},
		{"no state cookie", &mockAuthService{}, "/auth/google/callback?code=c&state=s", "", http.StatusBadRequest},
		{"empty state", &mockAuthService{}, "/auth/google/callback?code=c", "", http.StatusBadRequest},
		{"service error", failing, "/auth/google/callback?code=c&state=s", "s", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: oauthStateCookie, Value: tt.cookie})
			}
			w := httptest.NewRecorder()

			NewAuthHandler(tt.svc, testAuthConfig()).Callback(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if findResponseCookie(w.Result(), "session_id") != nil {
				t.Error("session cookie must not be set on failure")
			}
		})
	}
}

func TestAuthHandler_Logout_ClearsCookieAndRedirects(t *testing.T) {
	var loggedOut string
	svc := &mockAuthService{
		logoutFn: func(ctx context.Context, sessionID string) error {
			loggedOut = sessionID
			return errors.New("db down")
		},
	}
	h := NewAuthHandler(svc, testAuthConfig())

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: "session_id", Value: "session-to-logout"})
	w := httptest.NewRecorder()

	h.Logout(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusTemporaryRedirect {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusTemporaryRedirect)
	}
	if loggedOut != "session-to-logout" {
		t.Errorf("logout session = %q", loggedOut)
	}
	session := findResponseCookie(resp, "session_id")
	if session == nil || session.MaxAge != -1 {
		t.Errorf("session cookie should be cleared even when logout fails: %+v", session)
	}
}

func TestAuthHandler_Me_ReturnsDirectoryRecord(t *testing.T) {
	svc := &mockAuthService{
		getCurrentUserFn: func(ctx context.Context, sessionID string) (*model.User, error) {
			return &model.User{ID: "user-id-me", ExternalID: "u1", Email: "me@example.com", Name: "Me User", Role: model.RoleInterviewer}, nil
		},
	}
	h := NewAuthHandler(svc, testAuthConfig())

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.AddCookie(&http.Cookie{Name: "session_id", Value: "valid-session"})
	w := httptest.NewRecorder()

	h.Me(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var body userResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if body.ExternalID != "u1" || body.Role != "interviewer" {
		t.Errorf("body = %+v", body)
	}
}

func TestAuthHandler_Me_Unauthorized(t *testing.T) {
	expired := &mockAuthService{
		getCurrentUserFn: func(ctx context.Context, sessionID string) (*model.User, error) {
			return nil, errors.New("session not found or expired")
		},
	}

	for name, cookie := range map[string]string{"no cookie": "", "expired": "old"} {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
			if cookie != "" {
				req.AddCookie(&http.Cookie{Name: "session_id", Value: cookie})
			}
			w := httptest.NewRecorder()

			NewAuthHandler(expired, testAuthConfig()).Me(w, req)

			if w.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
			}
		})
	}
}

func TestAuthHandler_LoginCallback_ReturnsToMeeting(t *testing.T) {
	svc := &mockAuthService{
		getLoginURLFn: func(state string) string { return "https://accounts.google.com/o/oauth2/auth?state=" + state },
		handleCallbackFn: func(ctx context.Context, code string) (*model.Session, error) {
			return &model.Session{ID: "s1", UserID: "u1", ExpiresAt: time.Now().Add(time.Hour)}, nil
		},
	}
	h := NewAuthHandler(svc, AuthHandlerConfig{BaseURL: "http://localhost:3000/", SessionMaxAge: 60})

	login := httptest.NewRecorder()
	h.Login(login, httptest.NewRequest(http.MethodGet, "/auth/google/login?return_to=%2Fmeetings%2Fabc%3Fjoin%3D1", nil))
	state := findResponseCookie(login.Result(), oauthStateCookie)
	returnTo := findResponseCookie(login.Result(), oauthReturnToCookie)
	if state == nil || returnTo == nil {
		t.Fatalf("cookies = %v, want state and return_to", login.Result().Cookies())
	}
	if returnTo.Value != "/meetings/abc?join=1" {
		t.Errorf("return_to cookie = %q", returnTo.Value)
	}

	req := httptest.NewRequest(http.MethodGet, "/auth/google/callback?code=c&state="+state.Value, nil)
	req.AddCookie(state)
	req.AddCookie(returnTo)
	w := httptest.NewRecorder()
	h.Callback(w, req)

	if got := w.Header().Get("Location"); got != "http://localhost:3000/meetings/abc?join=1" {
		t.Errorf("Location = %q", got)
	}
	if c := findResponseCookie(w.Result(), oauthReturnToCookie); c == nil || c.MaxAge != -1 {
		t.Errorf("return_to cookie should be cleared: %+v", c)
	}
}

func TestSafeReturnPath(t *testing.T) {
	tests := []struct {
		raw    string
		want   string
		wantOK bool
	}{
		{"/meetings/abc", "/meetings/abc", true},
		{"/", "/", true},
		{"", "", false},
		{"meetings/abc", "", false},
		{"//evil.example.com/x", "", false},
		{"/\\evil.example.com", "", false},
		{"https://evil.example.com/", "", false},
		{"/a\r\nSet-Cookie: x=y", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, ok := safeReturnPath(tt.raw)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("safeReturnPath(%q) = (%q, %v), want (%q, %v)", tt.raw, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestAuthHandler_Login_IgnoresExternalReturnTo(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{}, testAuthConfig())
	w := httptest.NewRecorder()
	h.Login(w, httptest.NewRequest(http.MethodGet, "/auth/google/login?return_to=https%3A%2F%2Fevil.example.com", nil))

	if c := findResponseCookie(w.Result(), oauthReturnToCookie); c != nil {
		t.Errorf("return_to cookie = %+v, want none", c)
	}
}
