package handler

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/campusbuzz/internal/bootstrap"
	"github.com/hitoshi/campusbuzz/internal/middleware"
	"github.com/hitoshi/campusbuzz/internal/model"
)

var testAuthConfig = AuthHandlerConfig{CookieDomain: "campusbuzz.example", CookieSecure: true, SessionMaxAge: 3600}

func sessionResult(identity *model.ChatIdentity, chatErr error) *bootstrap.SessionResult {
	return &bootstrap.SessionResult{
		Account:  &model.PrimaryAccount{ID: "user-1", Email: "jane@campus.edu", DisplayName: "Jane"},
		Session:  &model.Session{ID: "sess-1", UserID: "user-1", ExpiresAt: time.Now().Add(time.Hour)},
		Identity: identity,
		ChatErr:  chatErr,
	}
}

func TestAuthHandler_SignUp_Linked(t *testing.T) {
	var gotEmail, gotPassword, gotName string
	launcher := &mockLauncher{
		signUpFn: func(ctx context.Context, email, password, displayName string) (*bootstrap.SessionResult, error) {
			gotEmail, gotPassword, gotName = email, password, displayName
			return sessionResult(&model.ChatIdentity{ChatID: "user-1", DisplayName: "Jane", Role: model.RoleStudent, AuthToken: "tok"}, nil), nil
		},
	}
	h := NewAuthHandler(launcher, &mockIdentity{}, testAuthConfig, nil)

	w := httptest.NewRecorder()
	h.SignUp(w, jsonRequest(t, http.MethodPost, "/auth/signup", signUpRequest{
		Email: "jane@campus.edu", Password: "secret1", DisplayName: "Jane",
	}))

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d (body=%s)", w.Code, http.StatusCreated, w.Body.String())
	}
	if gotEmail != "jane@campus.edu" || gotPassword != "secret1" || gotName != "Jane" {
		t.Errorf("SignUp args = %q %q %q", gotEmail, gotPassword, gotName)
	}

	c := findResponseCookie(w, middleware.SessionCookieName)
	if c == nil {
		t.Fatal("expected session cookie")
	}
	if c.Value != "sess-1" || c.MaxAge != 3600 || !c.HttpOnly || !c.Secure || c.Domain != "campusbuzz.example" {
		t.Errorf("unexpected session cookie: %+v", c)
	}

	var body sessionResponse
	decodeBody(t, w, &body)
	if body.Account == nil || body.Account.ID != "user-1" {
		t.Errorf("account = %+v", body.Account)
	}
	if body.Chat == nil || !body.Chat.Linked || body.Chat.ChatID != "user-1" || body.Chat.AuthToken != "tok" {
		t.Errorf("chat = %+v", body.Chat)
	}
}

func TestAuthHandler_SignIn_ChatFailureKeepsSession(t *testing.T) {
	var buf bytes.Buffer
	launcher := &mockLauncher{
		signInFn: func(ctx context.Context, email, password string) (*bootstrap.SessionResult, error) {
			return sessionResult(nil, &bootstrap.BridgeError{Kind: bootstrap.KindCreationFailed, Detail: "vendor 500"}), nil
		},
	}
	h := NewAuthHandler(launcher, &mockIdentity{}, testAuthConfig, newTestLogger(&buf))

	w := httptest.NewRecorder()
	h.SignIn(w, jsonRequest(t, http.MethodPost, "/auth/signin", signInRequest{Email: "jane@campus.edu", Password: "secret1"}))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if findResponseCookie(w, middleware.SessionCookieName) == nil {
		t.Error("session cookie should be set even when chat linking fails")
	}

	var body sessionResponse
	decodeBody(t, w, &body)
	if body.Chat == nil || body.Chat.Linked {
		t.Fatalf("chat = %+v, want unlinked", body.Chat)
	}
	if body.Chat.Error == nil || body.Chat.Error.Kind != "creation_failed" || body.Chat.Error.Detail != "vendor 500" {
		t.Errorf("chat.error = %+v", body.Chat.Error)
	}
	if !strings.Contains(buf.String(), "chat link failed after primary authentication") {
		t.Errorf("expected warning log, got: %s", buf.String())
	}
}

func TestAuthHandler_SignInSignUp_Errors(t *testing.T) {
	tests := []struct {
		name       string
		call       func(h *AuthHandler, w http.ResponseWriter, r *http.Request)
		body       any
		wantStatus int
		wantCode   string
	}{
		{
			name:       "sign in invalid credentials",
			call:       (*AuthHandler).SignIn,
			body:       signInRequest{Email: "jane@campus.edu", Password: "wrong"},
			wantStatus: http.StatusUnauthorized,
			wantCode:   model.ErrCodeInvalidCredentials,
		},
		{
			name:       "sign up duplicate email",
			call:       (*AuthHandler).SignUp,
			body:       signUpRequest{Email: "jane@campus.edu", Password: "secret1"},
			wantStatus: http.StatusConflict,
			wantCode:   model.ErrCodeEmailAlreadyInUse,
		},
		{
			name:       "malformed json",
			call:       (*AuthHandler).SignIn,
			body:       "{not json",
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_REQUEST",
		},
		{
			name:       "unknown field",
			call:       (*AuthHandler).SignUp,
			body:       `{"email":"a@b.edu","password":"secret1","role":"admin"}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_REQUEST",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewAuthHandler(&mockLauncher{}, &mockIdentity{}, testAuthConfig, nil)
			w := httptest.NewRecorder()
			tt.call(h, w, jsonRequest(t, http.MethodPost, "/auth", tt.body))

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if got := parseAPIErrorResponse(t, w).Code; got != tt.wantCode {
				t.Errorf("code = %q, want %q", got, tt.wantCode)
			}
			if findResponseCookie(w, middleware.SessionCookieName) != nil {
				t.Error("no session cookie should be set on failure")
			}
		})
	}
}

func TestAuthHandler_SignUp_InternalError(t *testing.T) {
	var buf bytes.Buffer
	launcher := &mockLauncher{
		signUpFn: func(ctx context.Context, email, password, displayName string) (*bootstrap.SessionResult, error) {
			return nil, errors.New("db down")
		},
	}
	h := NewAuthHandler(launcher, &mockIdentity{}, testAuthConfig, newTestLogger(&buf))

	w := httptest.NewRecorder()
	h.SignUp(w, jsonRequest(t, http.MethodPost, "/auth/signup", signUpRequest{Email: "a@b.edu", Password: "secret1"}))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
	if strings.Contains(w.Body.String(), "db down") {
		t.Error("internal error detail must not leak to the client")
	}
	if !strings.Contains(buf.String(), "db down") {
		t.Errorf("internal error should be logged, got: %s", buf.String())
	}
}

func TestAuthHandler_Logout(t *testing.T) {
	t.Run("with session", func(t *testing.T) {
		launcher := &mockLauncher{}
		h := NewAuthHandler(launcher, &mockIdentity{}, testAuthConfig, nil)

		req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
		req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: "sess-1"})
		w := httptest.NewRecorder()
		h.Logout(w, req)

		if w.Code != http.StatusNoContent {
			t.Errorf("status = %d, want 204", w.Code)
		}
		if len(launcher.signOutCalls) != 1 || launcher.signOutCalls[0] != "sess-1" {
			t.Errorf("SignOut calls = %v", launcher.signOutCalls)
		}
		c := findResponseCookie(w, middleware.SessionCookieName)
		if c == nil || c.MaxAge >= 0 || c.Value != "" {
			t.Errorf("session cookie should be cleared, got %+v", c)
		}
	})

	t.Run("sign out failure still clears cookie", func(t *testing.T) {
		var buf bytes.Buffer
		launcher := &mockLauncher{signOutFn: func(ctx context.Context, sessionID string) error {
			return errors.New("db down")
		}}
		h := NewAuthHandler(launcher, &mockIdentity{}, testAuthConfig, newTestLogger(&buf))

		req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
		req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: "sess-1"})
		w := httptest.NewRecorder()
		h.Logout(w, req)

		if w.Code != http.StatusNoContent {
			t.Errorf("status = %d, want 204", w.Code)
		}
		if c := findResponseCookie(w, middleware.SessionCookieName); c == nil || c.MaxAge >= 0 {
			t.Errorf("session cookie should be cleared, got %+v", c)
		}
		if !strings.Contains(buf.String(), "failed to sign out") {
			t.Errorf("expected error log, got: %s", buf.String())
		}
	})

	t.Run("without cookie", func(t *testing.T) {
		launcher := &mockLauncher{}
		h := NewAuthHandler(launcher, &mockIdentity{}, testAuthConfig, nil)

		w := httptest.NewRecorder()
		h.Logout(w, httptest.NewRequest(http.MethodPost, "/auth/logout", nil))

		if w.Code != http.StatusNoContent {
			t.Errorf("status = %d, want 204", w.Code)
		}
		if len(launcher.signOutCalls) != 0 {
			t.Errorf("SignOut should not be called without a session, calls = %v", launcher.signOutCalls)
		}
	})
}

func TestAuthHandler_Me(t *testing.T) {
	lastActive := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	identity := &mockIdentity{
		profileFn: func(ctx context.Context, userID string) (*model.User, error) {
			if userID != "user-1" {
				return nil, model.NewUserNotFoundError()
			}
			return &model.User{ID: "user-1", Email: "jane@campus.edu", DisplayName: "Jane", IsOnline: true, LastActiveAt: lastActive}, nil
		},
	}
	h := NewAuthHandler(&mockLauncher{}, identity, testAuthConfig, nil)

	t.Run("found", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.Me(w, withUserID(httptest.NewRequest(http.MethodGet, "/auth/me", nil), "user-1"))

		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", w.Code)
		}
		var body profileResponse
		decodeBody(t, w, &body)
		if body.ID != "user-1" || body.Email != "jane@campus.edu" || !body.IsOnline || !body.LastActiveAt.Equal(lastActive) {
			t.Errorf("profile = %+v", body)
		}
	})

	t.Run("not found", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.Me(w, withUserID(httptest.NewRequest(http.MethodGet, "/auth/me", nil), "ghost"))

		if w.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", w.Code)
		}
	})

	t.Run("no user in context", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.Me(w, httptest.NewRequest(http.MethodGet, "/auth/me", nil))

		if w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", w.Code)
		}
	})
}
