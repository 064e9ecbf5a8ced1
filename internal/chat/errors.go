package chat

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrNotInitialized はInitialize前にAPIを呼び出した場合のエラー。
var ErrNotInitialized = errors.New("chat client is not initialized")

// ErrIdentityMismatch はログイン対象と異なるuidのユーザーが返された場合のエラー。
var ErrIdentityMismatch = errors.New("chat user uid does not match requested chat id")

// エラーレスポンスのコードのうち、クライアントが判別に使うもの。
const (
	CodeUIDNotFound      = "ERR_UID_NOT_FOUND"
	CodeUIDAlreadyExists = "ERR_UID_ALREADY_EXISTS"
	CodeGUIDNotFound     = "ERR_GUID_NOT_FOUND"
	CodeGUIDExists       = "ERR_GUID_ALREADY_EXISTS"
	CodeAlreadyJoined    = "ERR_ALREADY_JOINED"
)

// Error はチャットAPIのエラーレスポンスを表す。
type Error struct {
	StatusCode int
	Code       string
	Message    string
}

// Error はerrorインターフェースを実装する。
func (e *Error) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("chat api: status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("chat api: status %d: %s: %s", e.StatusCode, e.Code, e.Message)
}

// IsNotFound はユーザーまたはグループが存在しないことを示すエラーかどうかを返す。
func IsNotFound(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.StatusCode == http.StatusNotFound || e.Code == CodeUIDNotFound || e.Code == CodeGUIDNotFound
}

// IsConflict は作成対象が既に存在することを示すエラーかどうかを返す。
func IsConflict(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.StatusCode == http.StatusConflict || e.Code == CodeUIDAlreadyExists ||
		e.Code == CodeGUIDExists || e.Code == CodeAlreadyJoined
}
