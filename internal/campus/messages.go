package campus

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/hitoshi/campusbuzz/internal/model"
)

// maxMessageLength はテキストメッセージ本文の最大文字数。
const maxMessageLength = 4000

// ChatMessenger はメッセージ送信に必要なチャットサービスのインターフェース。chat.Clientが実装する。
type ChatMessenger interface {
	SendTextMessage(ctx context.Context, senderUID, receiverID string, receiverType model.ReceiverType, text string) (*model.TextMessage, error)
}

// MessageService はユーザーまたはグループ宛てのテキストメッセージ送信を提供する。
// 本文は改行を保つため無害化せず、前後の空白だけを取り除く。
type MessageService struct {
	chat   ChatMessenger
	logger *slog.Logger
}

// NewMessageService はMessageServiceを生成する。
func NewMessageService(chat ChatMessenger, logger *slog.Logger) *MessageService {
	if logger == nil {
		logger = slog.Default()
	}
	return &MessageService{chat: chat, logger: logger}
}

// SendText はsenderIDのユーザーとしてテキストメッセージを送信する。
func (s *MessageService) SendText(ctx context.Context, senderID, receiverID string, receiverType model.ReceiverType, text string) (*model.TextMessage, error) {
	if !receiverType.Valid() {
		return nil, model.NewInvalidMessageError(fmt.Sprintf("unknown receiver type %q", receiverType))
	}
	receiverID = strings.TrimSpace(receiverID)
	if receiverID == "" {
		return nil, model.NewInvalidMessageError("receiver is required")
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, model.NewInvalidMessageError("text is required")
	}
	if utf8.RuneCountInString(text) > maxMessageLength {
		return nil, model.NewInvalidMessageError(fmt.Sprintf("text exceeds %d characters", maxMessageLength))
	}

	msg, err := s.chat.SendTextMessage(ctx, senderID, receiverID, receiverType, text)
	if err != nil {
		s.logger.Warn("failed to send text message",
			slog.String("sender_id", senderID),
			slog.String("receiver_type", string(receiverType)),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("failed to send message: %w", err)
	}
	return msg, nil
}
