package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/campusbuzz/internal/middleware"
	"github.com/hitoshi/campusbuzz/internal/model"
)

// MessageSender はメッセージハンドラーが必要とするサービスインターフェース。
// campus.MessageServiceが実装する。
type MessageSender interface {
	SendText(ctx context.Context, senderID, receiverID string, receiverType model.ReceiverType, text string) (*model.TextMessage, error)
}

// MessageHandler はテキストメッセージ送信のHTTPハンドラー。
type MessageHandler struct {
	sender MessageSender
	logger *slog.Logger
}

// NewMessageHandler はMessageHandlerを生成する。
func NewMessageHandler(sender MessageSender, logger *slog.Logger) *MessageHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &MessageHandler{sender: sender, logger: logger}
}

type sendMessageRequest struct {
	ReceiverID   string `json:"receiver_id"`
	ReceiverType string `json:"receiver_type"`
	Text         string `json:"text"`
}

type messageResponse struct {
	ID           string    `json:"id"`
	Sender       string    `json:"sender"`
	ReceiverID   string    `json:"receiver_id"`
	ReceiverType string    `json:"receiver_type"`
	Text         string    `json:"text"`
	SentAt       time.Time `json:"sent_at"`
}

// SendMessage はログイン中のユーザーとしてテキストメッセージを送信する。
// POST /api/messages
func (h *MessageHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req sendMessageRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	msg, err := h.sender.SendText(r.Context(), userID, req.ReceiverID, model.ReceiverType(req.ReceiverType), req.Text)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, messageResponse{
		ID:           msg.ID,
		Sender:       msg.Sender,
		ReceiverID:   msg.ReceiverID,
		ReceiverType: string(msg.ReceiverType),
		Text:         msg.Text,
		SentAt:       msg.SentAt,
	})
}
