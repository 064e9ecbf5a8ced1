// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, chat, group, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidEmail        = "INVALID_EMAIL"
	ErrCodeWeakPassword        = "WEAK_PASSWORD"
	ErrCodeEmailAlreadyInUse   = "EMAIL_ALREADY_IN_USE"
	ErrCodeInvalidCredentials  = "INVALID_CREDENTIALS"
	ErrCodeUnauthorized        = "UNAUTHORIZED"
	ErrCodeUserNotFound        = "USER_NOT_FOUND"
	ErrCodeInvalidGroup        = "INVALID_GROUP"
	ErrCodeGroupExists         = "GROUP_EXISTS"
	ErrCodeNoMembers           = "NO_MEMBERS"
	ErrCodeCommonGroupsPartial = "COMMON_GROUPS_PARTIAL"
	ErrCodeInvalidIcon         = "INVALID_ICON"
	ErrCodeInvalidMedia        = "INVALID_MEDIA"
	ErrCodeInvalidEvent        = "INVALID_EVENT"
	ErrCodeEventNotFound       = "EVENT_NOT_FOUND"
	ErrCodeEventFull           = "EVENT_FULL"
	ErrCodeInvalidAnnouncement = "INVALID_ANNOUNCEMENT"
	ErrCodeInvalidMessage      = "INVALID_MESSAGE"
)

// NewInvalidEmailError はメールアドレス形式エラーを生成する。
func NewInvalidEmailError(email string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidEmail,
		Message:  fmt.Sprintf("メールアドレスの形式が正しくありません: %s", email),
		Category: "validation",
		Action:   "正しいメールアドレスを入力してください。",
	}
}

// NewWeakPasswordError はパスワード強度不足エラーを生成する。
func NewWeakPasswordError(minLength int) *APIError {
	return &APIError{
		Code:     ErrCodeWeakPassword,
		Message:  fmt.Sprintf("パスワードは%d文字以上で指定してください。", minLength),
		Category: "validation",
		Action:   "より長いパスワードを入力してください。",
	}
}

// NewEmailAlreadyInUseError は登録済みメールアドレスエラーを生成する。
func NewEmailAlreadyInUseError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailAlreadyInUse,
		Message:  "このメールアドレスは既に登録されています。",
		Category: "auth",
		Action:   "ログイン画面からサインインしてください。",
	}
}

// NewInvalidCredentialsError は認証失敗エラーを生成する。
// メールアドレスとパスワードのどちらが誤っているかは区別しない。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "メールアドレスまたはパスワードが正しくありません。",
		Category: "auth",
		Action:   "入力内容を確認して再度お試しください。",
	}
}

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewInvalidGroupError はグループ入力の検証エラーを生成する。
func NewInvalidGroupError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidGroup,
		Message:  fmt.Sprintf("グループの指定が正しくありません: %s", reason),
		Category: "validation",
		Action:   "グループ名と種別を確認してください。",
	}
}

// NewInvalidIconError はグループアイコンURLの検証エラーを生成する。
func NewInvalidIconError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidIcon,
		Message:  fmt.Sprintf("アイコンURLが使用できません: %s", reason),
		Category: "validation",
		Action:   "公開されている https:// のURLを指定してください。",
	}
}

// NewNoMembersError は追加対象メンバーが空の場合のエラーを生成する。
func NewNoMembersError() *APIError {
	return &APIError{
		Code:     ErrCodeNoMembers,
		Message:  "追加できるメンバーがいません。",
		Category: "group",
		Action:   "追加するユーザーを1人以上選択してください。",
	}
}

// NewCommonGroupsPartialError は共通グループへの参加が一部失敗した場合のエラーを生成する。
func NewCommonGroupsPartialError() *APIError {
	return &APIError{
		Code:     ErrCodeCommonGroupsPartial,
		Message:  "一部のグループに参加できませんでした。",
		Category: "group",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewInvalidMediaError は添付ファイルの検証エラーを生成する。
func NewInvalidMediaError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidMedia,
		Message:  fmt.Sprintf("添付ファイルを送信できません: %s", reason),
		Category: "validation",
		Action:   "ファイルの形式とサイズを確認してください。",
	}
}

// NewGroupExistsError は同じGUIDのグループが作成済みの場合のエラーを生成する。
func NewGroupExistsError(guid string) *APIError {
	return &APIError{
		Code:     ErrCodeGroupExists,
		Message:  fmt.Sprintf("グループは既に存在します: %s", guid),
		Category: "group",
		Action:   "既存のグループに参加するか、別の名前を指定してください。",
	}
}

// NewInvalidEventError はイベント入力の検証エラーを生成する。
func NewInvalidEventError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidEvent,
		Message:  fmt.Sprintf("イベントの指定が正しくありません: %s", reason),
		Category: "validation",
		Action:   "タイトル、日時、定員を確認してください。",
	}
}

// NewEventNotFoundError はイベントが存在しない、または閲覧できない場合のエラーを生成する。
func NewEventNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeEventNotFound,
		Message:  "イベントが見つかりません。",
		Category: "event",
		Action:   "イベント一覧を更新してください。",
	}
}

// NewEventFullError はイベントの定員に達している場合のエラーを生成する。
func NewEventFullError() *APIError {
	return &APIError{
		Code:     ErrCodeEventFull,
		Message:  "イベントは定員に達しています。",
		Category: "event",
		Action:   "別のイベントを探してください。",
	}
}

// NewInvalidAnnouncementError はお知らせ入力の検証エラーを生成する。
func NewInvalidAnnouncementError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidAnnouncement,
		Message:  fmt.Sprintf("お知らせの指定が正しくありません: %s", reason),
		Category: "validation",
		Action:   "タイトル、本文、重要度を確認してください。",
	}
}

// NewInvalidMessageError はメッセージ送信の検証エラーを生成する。
func NewInvalidMessageError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidMessage,
		Message:  fmt.Sprintf("メッセージを送信できません: %s", reason),
		Category: "chat",
		Action:   "宛先と本文を確認してください。",
	}
}
