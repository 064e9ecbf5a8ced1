package model

import "strings"

// RoleTag はチャット上のユーザー区分。
type RoleTag string

const (
	RoleStudent RoleTag = "student"
	RoleFaculty RoleTag = "faculty"
	RoleAdmin   RoleTag = "admin"
)

// Valid は定義済みの区分かどうかを返す。
func (r RoleTag) Valid() bool {
	switch r {
	case RoleStudent, RoleFaculty, RoleAdmin:
		return true
	default:
		return false
	}
}

// ChatIdentity はチャットサービス側のユーザーを表す。
// ChatIDは対応するPrimaryAccount.IDと常に一致する。
type ChatIdentity struct {
	ChatID      string
	DisplayName string
	Role        RoleTag
	Metadata    map[string]string
	AuthToken   string
}

// TransportConfig はチャットトランスポートの接続設定。
type TransportConfig struct {
	EndpointRegion string
	ApplicationID  string
	AccessKey      string
}

// MissingFields は未設定の必須項目名を返す。すべて設定済みの場合は空スライス。
func (c TransportConfig) MissingFields() []string {
	var missing []string
	if strings.TrimSpace(c.EndpointRegion) == "" {
		missing = append(missing, "endpoint region")
	}
	if strings.TrimSpace(c.ApplicationID) == "" {
		missing = append(missing, "application id")
	}
	if strings.TrimSpace(c.AccessKey) == "" {
		missing = append(missing, "access key")
	}
	return missing
}
