package bootstrap

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hitoshi/campusbuzz/internal/model"
)

// Route は起動・認証後にクライアントが表示すべき画面。
type Route string

const (
	// RouteMain はメイン画面（チャット利用可能）。
	RouteMain Route = "main"
	// RouteAuth はサインイン・サインアップ画面。
	RouteAuth Route = "auth"
	// RouteError は設定不備などで続行できない場合のエラー画面。
	RouteError Route = "error"
)

// IdentityStore はアカウント認証基盤のインターフェース。identity.Serviceが実装する。
type IdentityStore interface {
	// CurrentSession は有効なセッションのアカウントを返す。セッションがない場合はnil, nil。
	CurrentSession(ctx context.Context, sessionID string) (*model.PrimaryAccount, error)
	SignIn(ctx context.Context, email, password string) (*model.PrimaryAccount, *model.Session, error)
	SignUp(ctx context.Context, email, password, displayName string) (*model.PrimaryAccount, *model.Session, error)
	SignOut(ctx context.Context, sessionID string) error
}

// Authenticator はLauncherが使う連携処理のインターフェース。Bridgeが実装する。
type Authenticator interface {
	EnsureTransportInitialized(ctx context.Context, cfg model.TransportConfig) error
	Authenticate(ctx context.Context, account model.PrimaryAccount) (*model.ChatIdentity, error)
}

// ChatSessions はチャットセッションの参照とログアウトのインターフェース。
type ChatSessions interface {
	CurrentChatSession(chatID string) (*model.ChatIdentity, bool)
	Logout(ctx context.Context, chatID string) error
}

// LaunchResult は起動シーケンスの結果。
type LaunchResult struct {
	Route    Route
	Account  *model.PrimaryAccount
	Identity *model.ChatIdentity
	// Err はRouteMain以外に遷移した理由。*InitError または *BridgeError。
	Err error
}

// SessionResult はサインイン・サインアップの結果。
// チャット連携に失敗してもアカウントのセッションは維持し、ChatErrに理由を設定する。
type SessionResult struct {
	Account  *model.PrimaryAccount
	Session  *model.Session
	Identity *model.ChatIdentity
	ChatErr  error
}

// Launcher はアプリ起動時とサインイン・サインアップ後の処理順序を管理する。
type Launcher struct {
	identity  IdentityStore
	auth      Authenticator
	sessions  ChatSessions
	transport model.TransportConfig
	logger    *slog.Logger
}

// NewLauncher はLauncherを生成する。
func NewLauncher(identity IdentityStore, auth Authenticator, sessions ChatSessions, transport model.TransportConfig, logger *slog.Logger) *Launcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Launcher{
		identity:  identity,
		auth:      auth,
		sessions:  sessions,
		transport: transport,
		logger:    logger,
	}
}

// Launch は起動時の遷移先を決める。
// トランスポート初期化 → セッション確認 → 既存チャットセッション確認 → 連携処理の順に行う。
// 戻り値のerrorはアカウント認証基盤自体の障害の場合のみ返す。
func (l *Launcher) Launch(ctx context.Context, sessionID string) (*LaunchResult, error) {
	if err := l.auth.EnsureTransportInitialized(ctx, l.transport); err != nil {
		l.logger.Error("chat transport initialization failed", slog.String("error", err.Error()))
		return &LaunchResult{Route: RouteError, Err: err}, nil
	}

	if sessionID == "" {
		return &LaunchResult{Route: RouteAuth}, nil
	}
	account, err := l.identity.CurrentSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return &LaunchResult{Route: RouteAuth}, nil
	}

	if identity, ok := l.sessions.CurrentChatSession(account.ID); ok && identity != nil && identity.ChatID == account.ID {
		return &LaunchResult{Route: RouteMain, Account: account, Identity: identity}, nil
	}

	identity, err := l.auth.Authenticate(ctx, *account)
	if err != nil {
		return &LaunchResult{Route: RouteAuth, Account: account, Err: err}, nil
	}
	return &LaunchResult{Route: RouteMain, Account: account, Identity: identity}, nil
}

// SignIn はメールアドレスとパスワードでサインインし、チャットIDを連携する。
func (l *Launcher) SignIn(ctx context.Context, email, password string) (*SessionResult, error) {
	account, session, err := l.identity.SignIn(ctx, email, password)
	if err != nil {
		return nil, err
	}
	return l.link(ctx, account, session), nil
}

// SignUp はアカウントを作成し、チャットIDを連携する。
func (l *Launcher) SignUp(ctx context.Context, email, password, displayName string) (*SessionResult, error) {
	account, session, err := l.identity.SignUp(ctx, email, password, displayName)
	if err != nil {
		return nil, err
	}
	return l.link(ctx, account, session), nil
}

func (l *Launcher) link(ctx context.Context, account *model.PrimaryAccount, session *model.Session) *SessionResult {
	result := &SessionResult{Account: account, Session: session}
	identity, err := l.auth.Authenticate(ctx, *account)
	if err != nil {
		result.ChatErr = err
		return result
	}
	result.Identity = identity
	return result
}

// SignOut はチャットからログアウトした後、アカウントのセッションを削除する。
// チャットのログアウト失敗はログに残すのみで、サインアウトは続行する。
func (l *Launcher) SignOut(ctx context.Context, sessionID string) error {
	account, err := l.identity.CurrentSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if account != nil {
		if err := l.sessions.Logout(ctx, account.ID); err != nil {
			l.logger.Warn("chat logout failed",
				slog.String("account_id", account.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	return l.identity.SignOut(ctx, sessionID)
}

// IsConfigError は起動を中止すべき設定エラーかどうかを返す。
func IsConfigError(err error) bool {
	return errors.Is(err, ErrInvalidConfig)
}
