package bootstrap

import (
	"context"
	"errors"
	"fmt"
)

// InitErrorKind はトランスポート初期化失敗の種別。
type InitErrorKind int

const (
	// InitInvalidConfig は必須設定の欠落など呼び出し側の誤り。再試行しても解消しない。
	InitInvalidConfig InitErrorKind = iota + 1
	// InitTransportFailure はチャットSDKが初期化に失敗したことを示す。
	InitTransportFailure
)

// String は種別名を返す。
func (k InitErrorKind) String() string {
	switch k {
	case InitInvalidConfig:
		return "invalid_config"
	case InitTransportFailure:
		return "transport_failure"
	default:
		return "unknown"
	}
}

// InitError はトランスポート初期化の失敗を表す。
type InitError struct {
	Kind   InitErrorKind
	Detail string
}

// Error はerrorインターフェースを実装する。
func (e *InitError) Error() string {
	if e.Detail == "" {
		return "transport init: " + e.Kind.String()
	}
	return fmt.Sprintf("transport init: %s: %s", e.Kind, e.Detail)
}

// Is は種別が一致する場合にtrueを返す。errors.Is(err, ErrInvalidConfig) の形で使う。
func (e *InitError) Is(target error) bool {
	t, ok := target.(*InitError)
	return ok && t.Kind == e.Kind
}

// errors.Is 比較用の種別センチネル。
var (
	ErrInvalidConfig    = &InitError{Kind: InitInvalidConfig}
	ErrTransportFailure = &InitError{Kind: InitTransportFailure}
)

// BridgeErrorKind はチャットID連携の失敗種別。呼び出し側はこの閉じた集合でswitchする。
type BridgeErrorKind int

const (
	// KindTransportNotReady はトランスポート初期化に失敗したため処理を開始できなかったことを示す。
	KindTransportNotReady BridgeErrorKind = iota + 1
	// KindInvalidIdentifier はアカウントIDが空であることを示す。上流のバグを意味する。
	KindInvalidIdentifier
	// KindLoginFailed は初回ログインの失敗。作成フェーズへのフォールバック理由として記録される。
	KindLoginFailed
	// KindCreationFailed はチャットユーザーの作成に失敗したことを示す。終端。
	KindCreationFailed
	// KindLoginAfterCreateFailed は作成直後のログインに失敗したことを示す。終端。
	KindLoginAfterCreateFailed
	// KindAlreadyInProgress は同一アカウントの処理が実行中のため拒否されたことを示す。
	KindAlreadyInProgress
)

// String は種別名を返す。メトリクスのラベルにも使用する。
func (k BridgeErrorKind) String() string {
	switch k {
	case KindTransportNotReady:
		return "transport_not_ready"
	case KindInvalidIdentifier:
		return "invalid_identifier"
	case KindLoginFailed:
		return "login_failed"
	case KindCreationFailed:
		return "creation_failed"
	case KindLoginAfterCreateFailed:
		return "login_after_create_failed"
	case KindAlreadyInProgress:
		return "already_in_progress"
	default:
		return "unknown"
	}
}

// BridgeError はチャットID連携の失敗を表す。
// ベンダーSDKのエラーはDetailに文字列として保持するのみで、元のエラー値は保持しない。
type BridgeError struct {
	Kind   BridgeErrorKind
	Detail string
}

// Error はerrorインターフェースを実装する。
func (e *BridgeError) Error() string {
	if e.Detail == "" {
		return "chat bootstrap: " + e.Kind.String()
	}
	return fmt.Sprintf("chat bootstrap: %s: %s", e.Kind, e.Detail)
}

// Is は種別が一致する場合にtrueを返す。
func (e *BridgeError) Is(target error) bool {
	t, ok := target.(*BridgeError)
	return ok && t.Kind == e.Kind
}

// errors.Is 比較用の種別センチネル。
var (
	ErrTransportNotReady      = &BridgeError{Kind: KindTransportNotReady}
	ErrInvalidIdentifier      = &BridgeError{Kind: KindInvalidIdentifier}
	ErrLoginFailed            = &BridgeError{Kind: KindLoginFailed}
	ErrCreationFailed         = &BridgeError{Kind: KindCreationFailed}
	ErrLoginAfterCreateFailed = &BridgeError{Kind: KindLoginAfterCreateFailed}
	ErrAlreadyInProgress      = &BridgeError{Kind: KindAlreadyInProgress}
)

// AsBridgeError はerrからBridgeErrorを取り出す。
func AsBridgeError(err error) (*BridgeError, bool) {
	var be *BridgeError
	if errors.As(err, &be) {
		return be, true
	}
	return nil, false
}

// detailOf は外部エラーをログ用の文字列に変換する。
// タイムアウトは他の失敗と同じ扱いだが、原因の判別のため接頭辞を付ける。
func detailOf(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout: " + err.Error()
	}
	return err.Error()
}
