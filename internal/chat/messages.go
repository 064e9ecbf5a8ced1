package chat

import (
	"context"
	"net/http"
	"time"

	"github.com/hitoshi/campusbuzz/internal/model"
)

// SendTextMessage はsenderUIDのユーザーとしてテキストメッセージを送信する。
// 宛先はユーザーまたはグループ。
func (c *Client) SendTextMessage(ctx context.Context, senderUID, receiverID string, receiverType model.ReceiverType, text string) (*model.TextMessage, error) {
	t, err := c.target()
	if err != nil {
		return nil, err
	}

	body := sendMessageRequest{
		Receiver:     receiverID,
		ReceiverType: string(receiverType),
		Category:     "message",
		Type:         "text",
		Data:         messageData{Text: text},
	}
	var sent messageResponse
	if err := c.do(ctx, t, "send_message", http.MethodPost, "/messages", senderUID, body, &sent); err != nil {
		return nil, err
	}
	return sent.message(), nil
}

// --- ワイヤフォーマット ---

type messageData struct {
	Text string `json:"text"`
}

type sendMessageRequest struct {
	Receiver     string      `json:"receiver"`
	ReceiverType string      `json:"receiverType"`
	Category     string      `json:"category"`
	Type         string      `json:"type"`
	Data         messageData `json:"data"`
}

type messageResponse struct {
	ID           string      `json:"id"`
	Sender       string      `json:"sender"`
	Receiver     string      `json:"receiver"`
	ReceiverType string      `json:"receiverType"`
	Data         messageData `json:"data"`
	SentAt       int64       `json:"sentAt"`
}

func (m messageResponse) message() *model.TextMessage {
	msg := &model.TextMessage{
		ID:           m.ID,
		Sender:       m.Sender,
		ReceiverID:   m.Receiver,
		ReceiverType: model.ReceiverType(m.ReceiverType),
		Text:         m.Data.Text,
	}
	if m.SentAt > 0 {
		msg.SentAt = time.Unix(m.SentAt, 0)
	}
	return msg
}
