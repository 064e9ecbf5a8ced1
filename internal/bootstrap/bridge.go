// Package bootstrap はアカウント認証とチャットIDの連携処理を提供する。
//
// 認証基盤のアカウント（PrimaryAccount）に対応するチャットユーザーを
// ログイン → 作成 → 再ログインの順で確立する。1回の連携は1つのgoroutineで
// 逐次実行され、同一アカウントの並行呼び出しが独立した処理を開始することはない。
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/hitoshi/campusbuzz/internal/model"
)

const (
	defaultStepTimeout = 10 * time.Second
	defaultAppVersion  = "1.0.0"

	// fallbackDisplayName は表示名もメールアドレスもない場合の表示名。
	fallbackDisplayName = "User"
)

// ChatService は連携処理が必要とするチャットサービスのインターフェース。
type ChatService interface {
	// Login はチャットIDでログインする。
	Login(ctx context.Context, chatID string) (*model.ChatIdentity, error)
	// Register はチャットユーザーを作成する。
	Register(ctx context.Context, chatID, displayName string, role model.RoleTag, metadata map[string]string) (*model.ChatIdentity, error)
	// CurrentChatSession はログイン済みのチャットセッションを返す。
	CurrentChatSession(chatID string) (*model.ChatIdentity, bool)
}

// ConcurrencyPolicy は同一アカウントに対する並行呼び出しの扱い。
type ConcurrencyPolicy string

const (
	// ConcurrencyCoalesce は実行中の処理の結果を後続の呼び出しにも返す。
	ConcurrencyCoalesce ConcurrencyPolicy = "coalesce"
	// ConcurrencyReject は後続の呼び出しをKindAlreadyInProgressで拒否する。
	ConcurrencyReject ConcurrencyPolicy = "reject"
)

// Config は連携処理の設定。
type Config struct {
	Transport       model.TransportConfig
	LoginTimeout    time.Duration // ログイン1回あたりのタイムアウト
	RegisterTimeout time.Duration // ユーザー作成のタイムアウト
	AppVersion      string        // メタデータのapp_versionに設定する値
	Concurrency     ConcurrencyPolicy
}

// call は実行中の連携処理1件。doneのクローズ後にresultを読む。
type call struct {
	done     chan struct{}
	identity *model.ChatIdentity
	err      *BridgeError
}

func (c *call) result() (*model.ChatIdentity, error) {
	if c.err != nil {
		return nil, c.err
	}
	return c.identity, nil
}

// Bridge はPrimaryAccountとチャットIDを連携する。
type Bridge struct {
	gate     *TransportGate
	chat     ChatService
	observer Observer
	logger   *slog.Logger
	config   Config

	mu       sync.Mutex
	inflight map[string]*call
}

// NewBridge はBridgeを生成する。
// タイムアウトが0以下の場合は10秒、AppVersionが空の場合は"1.0.0"を使用する。
func NewBridge(gate *TransportGate, chat ChatService, observer Observer, logger *slog.Logger, config Config) *Bridge {
	if config.LoginTimeout <= 0 {
		config.LoginTimeout = defaultStepTimeout
	}
	if config.RegisterTimeout <= 0 {
		config.RegisterTimeout = defaultStepTimeout
	}
	if config.AppVersion == "" {
		config.AppVersion = defaultAppVersion
	}
	if config.Concurrency == "" {
		config.Concurrency = ConcurrencyCoalesce
	}
	if observer == nil {
		observer = NopObserver{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		gate:     gate,
		chat:     chat,
		observer: observer,
		logger:   logger,
		config:   config,
		inflight: make(map[string]*call),
	}
}

// EnsureTransportInitialized はチャットトランスポートを初期化する。
// 失敗時は*InitErrorを返す。
func (b *Bridge) EnsureTransportInitialized(ctx context.Context, cfg model.TransportConfig) error {
	return b.gate.EnsureInitialized(ctx, cfg)
}

// Authenticate はaccountに対応するチャットユーザーでログインした状態を確立する。
// 失敗時のエラーは常に*BridgeError。
//
// 同一アカウントの処理が実行中の場合、ConcurrencyCoalesceでは実行中の処理の完了を待って
// 同じ結果を返し、ConcurrencyRejectではKindAlreadyInProgressを返す。
// 処理全体は各ステップのタイムアウトで上限が決まるため、ctxのキャンセルでは中断しない。
func (b *Bridge) Authenticate(ctx context.Context, account model.PrimaryAccount) (*model.ChatIdentity, error) {
	if strings.TrimSpace(account.ID) == "" {
		err := &BridgeError{Kind: KindInvalidIdentifier, Detail: "account id is empty"}
		b.observer.Finished(err, 0)
		return nil, err
	}

	b.mu.Lock()
	if c, ok := b.inflight[account.ID]; ok {
		b.mu.Unlock()
		if b.config.Concurrency == ConcurrencyReject {
			err := &BridgeError{Kind: KindAlreadyInProgress, Detail: "chat bootstrap already running for " + account.ID}
			b.observer.Finished(err, 0)
			return nil, err
		}
		b.observer.Coalesced()
		<-c.done
		return c.result()
	}
	c := &call{done: make(chan struct{})}
	b.inflight[account.ID] = c
	b.mu.Unlock()

	defer b.finish(account.ID, c)
	c.identity, c.err = b.run(context.WithoutCancel(ctx), account)

	return c.result()
}

// finish は実行中の処理を登録解除し、待機中の呼び出しに完了を通知する。
// runがpanicした場合は待機側にKindLoginFailedを返してからpanicを再送出する。
func (b *Bridge) finish(accountID string, c *call) {
	r := recover()
	if r != nil {
		c.identity = nil
		c.err = &BridgeError{Kind: KindLoginFailed, Detail: fmt.Sprintf("panic: %v", r)}
		b.logger.Error("chat bootstrap panicked",
			slog.String("account_id", accountID),
			slog.Any("panic", r),
		)
	}

	b.mu.Lock()
	delete(b.inflight, accountID)
	b.mu.Unlock()
	close(c.done)

	if r != nil {
		panic(r)
	}
}

// run は状態機械を終端状態まで進める。
func (b *Bridge) run(ctx context.Context, account model.PrimaryAccount) (*model.ChatIdentity, *BridgeError) {
	st := newState(account)
	logger := b.logger.With(slog.String("account_id", account.ID))

	for !st.Phase.Terminal() {
		start := time.Now()
		err := b.step(ctx, st)
		b.observer.StepCompleted(st.Phase, time.Since(start), errOrNil(err))

		o := outcomeSucceeded
		if err != nil {
			o = outcomeFailed
			st.LastError = err
		}
		from, to := st.advance(o)
		b.observer.PhaseChanged(from, to)

		if err != nil {
			logger.Warn("chat bootstrap step failed",
				slog.String("phase", string(from)),
				slog.String("next_phase", string(to)),
				slog.String("kind", err.Kind.String()),
				slog.String("detail", err.Detail),
			)
		} else {
			logger.Debug("chat bootstrap step succeeded",
				slog.String("phase", string(from)),
				slog.String("next_phase", string(to)),
			)
		}
	}

	if st.Phase == PhaseAuthenticated {
		b.observer.Finished(nil, st.AttemptCount)
		logger.Info("chat identity authenticated",
			slog.String("chat_id", st.Identity.ChatID),
			slog.Int("login_attempts", st.AttemptCount),
		)
		return st.Identity, nil
	}

	b.observer.Finished(st.LastError, st.AttemptCount)
	logger.Error("chat bootstrap failed",
		slog.String("kind", st.LastError.Kind.String()),
		slog.String("detail", st.LastError.Detail),
		slog.Int("login_attempts", st.AttemptCount),
	)
	return nil, st.LastError
}

// step は現在のフェーズの処理を1回実行する。失敗時はそのフェーズに対応する種別のエラーを返す。
func (b *Bridge) step(ctx context.Context, st *State) *BridgeError {
	switch st.Phase {
	case PhaseIdle:
		if err := b.gate.EnsureInitialized(ctx, b.config.Transport); err != nil {
			return &BridgeError{Kind: KindTransportNotReady, Detail: err.Error()}
		}
		return nil

	case PhaseLoggingIn:
		return b.login(ctx, st, KindLoginFailed)

	case PhaseCreating:
		return b.register(ctx, st)

	case PhaseLoggingInAfterCreate:
		return b.login(ctx, st, KindLoginAfterCreateFailed)

	default:
		return &BridgeError{Kind: KindLoginFailed, Detail: fmt.Sprintf("unexpected phase %q", st.Phase)}
	}
}

// login はアカウントIDでチャットにログインする。
func (b *Bridge) login(ctx context.Context, st *State, failure BridgeErrorKind) *BridgeError {
	if st.AttemptCount >= maxLoginAttempts {
		return &BridgeError{Kind: failure, Detail: "login attempt limit reached"}
	}
	st.AttemptCount++

	stepCtx, cancel := context.WithTimeout(ctx, b.config.LoginTimeout)
	defer cancel()

	identity, err := b.chat.Login(stepCtx, st.Account.ID)
	if err != nil {
		return &BridgeError{Kind: failure, Detail: detailOf(err)}
	}
	if identity == nil || identity.ChatID != st.Account.ID {
		return &BridgeError{Kind: failure, Detail: "chat identity does not match account id"}
	}

	st.Identity = identity
	return nil
}

// register はアカウント情報からチャットユーザーを作成する。
// 作成の失敗は再試行しない。
func (b *Bridge) register(ctx context.Context, st *State) *BridgeError {
	stepCtx, cancel := context.WithTimeout(ctx, b.config.RegisterTimeout)
	defer cancel()

	_, err := b.chat.Register(stepCtx,
		st.Account.ID,
		DisplayNameFor(st.Account),
		model.RoleStudent,
		b.metadataFor(st.Account),
	)
	if err != nil {
		detail := detailOf(err)
		if st.LastError != nil {
			detail = fmt.Sprintf("%s (after %s)", detail, st.LastError.Detail)
		}
		return &BridgeError{Kind: KindCreationFailed, Detail: detail}
	}
	return nil
}

// metadataFor はチャットユーザー作成時のメタデータを組み立てる。
func (b *Bridge) metadataFor(account model.PrimaryAccount) map[string]string {
	metadata := map[string]string{
		"role":        string(model.RoleStudent),
		"app_version": b.config.AppVersion,
	}
	if email := strings.TrimSpace(account.Email); email != "" {
		metadata["email"] = email
	}
	return metadata
}

// DisplayNameFor はチャットユーザーの表示名を決める。
// 表示名 → メールアドレスの@より前 → "User" の順に採用する。
// @を含まないメールアドレスは全体を表示名とする。
func DisplayNameFor(account model.PrimaryAccount) string {
	if name := strings.TrimSpace(account.DisplayName); name != "" {
		return name
	}
	if local, _, _ := strings.Cut(strings.TrimSpace(account.Email), "@"); local != "" {
		return local
	}
	return fallbackDisplayName
}

// errOrNil は型付きnilがerrorインターフェースに入らないよう変換する。
func errOrNil(err *BridgeError) error {
	if err == nil {
		return nil
	}
	return err
}
