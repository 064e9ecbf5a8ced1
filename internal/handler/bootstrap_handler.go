package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hitoshi/campusbuzz/internal/bootstrap"
	"github.com/hitoshi/campusbuzz/internal/middleware"
	"github.com/hitoshi/campusbuzz/internal/model"
)

// AppLauncher は起動シーケンスのインターフェース。bootstrap.Launcherが実装する。
type AppLauncher interface {
	Launch(ctx context.Context, sessionID string) (*bootstrap.LaunchResult, error)
}

// AccountResolver はセッションIDからアカウントを解決する。identity.Serviceが実装する。
type AccountResolver interface {
	CurrentSession(ctx context.Context, sessionID string) (*model.PrimaryAccount, error)
}

// ChatAuthenticator はチャットID連携のインターフェース。bootstrap.Bridgeが実装する。
type ChatAuthenticator interface {
	Authenticate(ctx context.Context, account model.PrimaryAccount) (*model.ChatIdentity, error)
}

// BootstrapHandler はアプリ起動とチャットID連携のHTTPハンドラー。
type BootstrapHandler struct {
	launcher AppLauncher
	accounts AccountResolver
	auth     ChatAuthenticator
	cookies  AuthHandlerConfig
	logger   *slog.Logger
}

// NewBootstrapHandler はBootstrapHandlerを生成する。
func NewBootstrapHandler(launcher AppLauncher, accounts AccountResolver, auth ChatAuthenticator, cookies AuthHandlerConfig, logger *slog.Logger) *BootstrapHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &BootstrapHandler{
		launcher: launcher,
		accounts: accounts,
		auth:     auth,
		cookies:  cookies,
		logger:   logger,
	}
}

// launchResponse は起動シーケンスの結果。routeはクライアントが表示すべき画面。
type launchResponse struct {
	Route   bootstrap.Route  `json:"route"`
	Account *accountResponse `json:"account,omitempty"`
	Chat    *chatResponse    `json:"chat,omitempty"`
}

// Launch は起動時の遷移先を返す。セッションCookieは任意。
// POST /api/launch
func (h *BootstrapHandler) Launch(w http.ResponseWriter, r *http.Request) {
	sessionID := ""
	if cookie, err := r.Cookie(middleware.SessionCookieName); err == nil {
		sessionID = cookie.Value
	}

	result, err := h.launcher.Launch(r.Context(), sessionID)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	// 期限切れなどで無効になったセッションCookieは削除する
	if sessionID != "" && result.Route == bootstrap.RouteAuth && result.Account == nil {
		setSessionCookie(w, h.cookies, "", -1)
	}

	middleware.WriteJSON(w, http.StatusOK, launchResponse{
		Route:   result.Route,
		Account: toAccountResponse(result.Account),
		Chat:    toChatResponse(result.Identity, result.Err),
	})
}

// Bootstrap はセッションのアカウントでチャットID連携を再実行する。
// 連携失敗後の再試行に使う。
// POST /api/chat/bootstrap
func (h *BootstrapHandler) Bootstrap(w http.ResponseWriter, r *http.Request) {
	account, err := h.accounts.CurrentSession(r.Context(), middleware.SessionIDFromContext(r.Context()))
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	if account == nil {
		middleware.WriteAPIError(w, model.NewUnauthorizedError())
		return
	}

	identity, err := h.auth.Authenticate(r.Context(), *account)
	if err != nil {
		h.logger.Warn("chat bootstrap failed",
			slog.String("account_id", account.ID),
			slog.String("error", err.Error()),
		)
		middleware.WriteErrorResponse(w, chatErrorStatus(err), chatAPIError(err))
		return
	}

	middleware.WriteJSON(w, http.StatusOK, toChatResponse(identity, nil))
}
