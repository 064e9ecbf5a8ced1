// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/campusbuzz/internal/bootstrap"
	"github.com/hitoshi/campusbuzz/internal/middleware"
	"github.com/hitoshi/campusbuzz/internal/model"
)

// SessionLauncher は認証ハンドラーが必要とするサインイン・サインアップ・サインアウトの処理。
// bootstrap.Launcherが実装する。
type SessionLauncher interface {
	SignIn(ctx context.Context, email, password string) (*bootstrap.SessionResult, error)
	SignUp(ctx context.Context, email, password, displayName string) (*bootstrap.SessionResult, error)
	SignOut(ctx context.Context, sessionID string) error
}

// ProfileReader はプロフィール取得のインターフェース。identity.Serviceが実装する。
type ProfileReader interface {
	Profile(ctx context.Context, userID string) (*model.User, error)
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	CookieDomain  string
	CookieSecure  bool
	SessionMaxAge int // セッションCookieの有効期間（秒）
}

// AuthHandler はメールアドレス・パスワード認証のHTTPハンドラー。
type AuthHandler struct {
	launcher SessionLauncher
	profiles ProfileReader
	config   AuthHandlerConfig
	logger   *slog.Logger
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(launcher SessionLauncher, profiles ProfileReader, config AuthHandlerConfig, logger *slog.Logger) *AuthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthHandler{
		launcher: launcher,
		profiles: profiles,
		config:   config,
		logger:   logger,
	}
}

type signUpRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// sessionResponse はサインイン・サインアップのレスポンス。
// チャット連携に失敗してもサインイン自体は成功として返す。
type sessionResponse struct {
	Account *accountResponse `json:"account"`
	Chat    *chatResponse    `json:"chat"`
}

type profileResponse struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	DisplayName  string    `json:"display_name"`
	IsOnline     bool      `json:"is_online"`
	LastActiveAt time.Time `json:"last_active_at"`
	CreatedAt    time.Time `json:"created_at"`
}

// SignUp はアカウントを作成してチャットIDを連携する。
// POST /auth/signup
func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req signUpRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.launcher.SignUp(r.Context(), req.Email, req.Password, req.DisplayName)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	h.writeSession(w, http.StatusCreated, result)
}

// SignIn はメールアドレスとパスワードでサインインしてチャットIDを連携する。
// POST /auth/signin
func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.launcher.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	h.writeSession(w, http.StatusOK, result)
}

func (h *AuthHandler) writeSession(w http.ResponseWriter, status int, result *bootstrap.SessionResult) {
	if result.ChatErr != nil {
		h.logger.Warn("chat link failed after primary authentication",
			slog.String("account_id", result.Account.ID),
			slog.String("error", result.ChatErr.Error()),
		)
	}

	setSessionCookie(w, h.config, result.Session.ID, h.config.SessionMaxAge)
	middleware.WriteJSON(w, status, sessionResponse{
		Account: toAccountResponse(result.Account),
		Chat:    toChatResponse(result.Identity, result.ChatErr),
	})
}

// Logout はチャットからログアウトし、セッションを破棄する。
// POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(middleware.SessionCookieName)
	if err == nil && cookie.Value != "" {
		if err := h.launcher.SignOut(r.Context(), cookie.Value); err != nil {
			// サインアウトに失敗してもCookieはクリアする
			h.logger.Error("failed to sign out", slog.String("error", err.Error()))
		}
	}

	setSessionCookie(w, h.config, "", -1)
	w.WriteHeader(http.StatusNoContent)
}

// Me は現在のログインユーザーのプロフィールを返す。
// GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	user, err := h.profiles.Profile(r.Context(), userID)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, profileResponse{
		ID:           user.ID,
		Email:        user.Email,
		DisplayName:  user.DisplayName,
		IsOnline:     user.IsOnline,
		LastActiveAt: user.LastActiveAt,
		CreatedAt:    user.CreatedAt,
	})
}

// setSessionCookie はセッションCookieを設定する。maxAgeが負の場合は削除になる。
func setSessionCookie(w http.ResponseWriter, config AuthHandlerConfig, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    value,
		Path:     "/",
		Domain:   config.CookieDomain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}
