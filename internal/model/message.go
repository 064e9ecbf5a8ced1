package model

import "time"

// ReceiverType はメッセージの宛先の種類。
type ReceiverType string

const (
	ReceiverUser  ReceiverType = "user"
	ReceiverGroup ReceiverType = "group"
)

// Valid は定義済みの宛先種類かどうかを返す。
func (t ReceiverType) Valid() bool {
	return t == ReceiverUser || t == ReceiverGroup
}

// TextMessage はチャットサービスで送受信したテキストメッセージ。
type TextMessage struct {
	ID           string
	Sender       string
	ReceiverID   string
	ReceiverType ReceiverType
	Text         string
	SentAt       time.Time
}
