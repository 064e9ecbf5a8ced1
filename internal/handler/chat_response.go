package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/hitoshi/campusbuzz/internal/bootstrap"
	"github.com/hitoshi/campusbuzz/internal/model"
)

// accountResponse はアカウント情報のAPIレスポンス。
type accountResponse struct {
	ID          string `json:"id"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
}

// chatResponse はチャットID連携の結果。
// linkedがfalseの場合、errorに失敗種別を含む。
type chatResponse struct {
	Linked      bool               `json:"linked"`
	ChatID      string             `json:"chat_id,omitempty"`
	DisplayName string             `json:"display_name,omitempty"`
	Role        string             `json:"role,omitempty"`
	AuthToken   string             `json:"auth_token,omitempty"`
	Error       *chatErrorResponse `json:"error,omitempty"`
}

type chatErrorResponse struct {
	Kind   string `json:"kind"`
	Detail string `json:"detail,omitempty"`
}

func toAccountResponse(a *model.PrimaryAccount) *accountResponse {
	if a == nil {
		return nil
	}
	return &accountResponse{ID: a.ID, Email: a.Email, DisplayName: a.DisplayName}
}

// toChatResponse は連携結果をレスポンスに変換する。identityとerrの両方がnilの場合はnil。
func toChatResponse(identity *model.ChatIdentity, err error) *chatResponse {
	switch {
	case identity != nil:
		return &chatResponse{
			Linked:      true,
			ChatID:      identity.ChatID,
			DisplayName: identity.DisplayName,
			Role:        string(identity.Role),
			AuthToken:   identity.AuthToken,
		}
	case err != nil:
		kind, detail := chatErrorKind(err)
		return &chatResponse{Error: &chatErrorResponse{Kind: kind, Detail: detail}}
	default:
		return nil
	}
}

// chatErrorKind はBridgeError・InitErrorから種別名と詳細を取り出す。
func chatErrorKind(err error) (kind, detail string) {
	if be, ok := bootstrap.AsBridgeError(err); ok {
		return be.Kind.String(), be.Detail
	}
	var ie *bootstrap.InitError
	if errors.As(err, &ie) {
		return ie.Kind.String(), ie.Detail
	}
	return "unknown", ""
}

// chatErrorStatus はチャット連携エラーのHTTPステータスを返す。
func chatErrorStatus(err error) int {
	if be, ok := bootstrap.AsBridgeError(err); ok {
		switch be.Kind {
		case bootstrap.KindAlreadyInProgress:
			return http.StatusConflict
		case bootstrap.KindInvalidIdentifier:
			return http.StatusUnprocessableEntity
		case bootstrap.KindTransportNotReady:
			return http.StatusServiceUnavailable
		default:
			return http.StatusBadGateway
		}
	}
	return http.StatusServiceUnavailable
}

// chatAPIError はチャット連携エラーを統一エラーフォーマットに変換する。
func chatAPIError(err error) *model.APIError {
	kind, _ := chatErrorKind(err)
	apiErr := &model.APIError{
		Code:     "CHAT_" + strings.ToUpper(kind),
		Category: "chat",
		Message:  "チャットへの接続に失敗しました。",
		Action:   "しばらく待ってから再度お試しください。",
	}
	switch {
	case errors.Is(err, bootstrap.ErrAlreadyInProgress):
		apiErr.Message = "チャットへの接続処理が進行中です。"
		apiErr.Action = "処理の完了を待ってください。"
	case errors.Is(err, bootstrap.ErrInvalidIdentifier):
		apiErr.Message = "アカウントIDがチャットIDとして使用できません。"
		apiErr.Action = "サポートに連絡してください。"
	case bootstrap.IsConfigError(err):
		apiErr.Message = "チャットサービスの設定が不足しています。"
		apiErr.Action = "管理者に連絡してください。"
	}
	return apiErr
}
