// Package model はドメインモデルを定義する。
package model

import "time"

// User はプロフィールを含むサービス利用ユーザーを表す。
// usersテーブルの1行に対応し、認証情報（パスワードハッシュ）も保持する。
type User struct {
	ID           string
	Email        string
	DisplayName  string
	PasswordHash string
	IsOnline     bool
	LastActiveAt time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Account はプロフィールからPrimaryAccountを組み立てる。
func (u *User) Account() *PrimaryAccount {
	return &PrimaryAccount{
		ID:          u.ID,
		Email:       u.Email,
		DisplayName: u.DisplayName,
	}
}

// PrimaryAccount は認証基盤側のアカウントを表す。
// IDは不変で、チャットIDとして同じ値が使われる。
// Email、DisplayNameは任意項目で、空文字列は未設定を意味する。
type PrimaryAccount struct {
	ID          string
	Email       string
	DisplayName string
}

// Session はユーザーのログインセッションを表す。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}
