// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/campusbuzz/internal/model"
)

// UserRepository はユーザー（プロフィールと認証情報）の永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
	// emailは小文字に正規化済みであること。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// Create はユーザーを作成する。メールアドレスが重複する場合はErrDuplicateEmailを返す。
	Create(ctx context.Context, user *model.User) error

	// UpdatePresence はオンライン状態と最終アクティブ日時を更新する。
	UpdatePresence(ctx context.Context, id string, online bool, at time.Time) error
}

// SessionRepository はプライマリセッションの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// FindAccount は有効なセッションに紐づくアカウントを返す。見つからない場合はnilを返す。
	FindAccount(ctx context.Context, sessionID string) (*model.PrimaryAccount, error)
	// Revoke はセッションを削除し、所有者のユーザーIDを返す。存在しない場合は空文字列を返す。
	Revoke(ctx context.Context, id string) (string, error)
}

// GroupMetadataRepository はキャンパスグループの補足情報の永続化インターフェース。
type GroupMetadataRepository interface {
	// Save はメタデータを保存する。同じGUIDが存在する場合は上書きする。
	Save(ctx context.Context, meta *model.GroupMetadata) error
	// FindByGUID はGUIDでメタデータを取得する。見つからない場合はnilを返す。
	FindByGUID(ctx context.Context, guid string) (*model.GroupMetadata, error)
	// ListByCollege は大学ごとのグループを種別で絞り込んで返す。groupTypeが空の場合は全種別。
	ListByCollege(ctx context.Context, college string, groupType model.GroupType) ([]*model.GroupMetadata, error)
}

// EventRepository はキャンパスイベントと参加者の永続化インターフェース。
type EventRepository interface {
	// Create はイベントを作成し、ID・作成日時・更新日時を設定する。
	Create(ctx context.Context, event *model.Event) error
	// FindByID は参加者を含むイベントを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Event, error)
	// ListVisible は公開イベントとviewerIDが主催するイベントのうち、from以降に始まるものを開始日時の昇順で返す。
	ListVisible(ctx context.Context, viewerID string, from time.Time, limit int) ([]*model.Event, error)
	// AddAttendee は参加者を追加する。参加済みの場合は何もしない。
	// イベントがない場合はErrEventNotFound、定員に達している場合はErrEventFullを返す。
	AddAttendee(ctx context.Context, eventID, userID string) error
	// RemoveAttendee は参加を取り消す。参加していない場合は何もしない。
	RemoveAttendee(ctx context.Context, eventID, userID string) error
}

// AnnouncementRepository はお知らせの永続化インターフェース。
type AnnouncementRepository interface {
	// Create はお知らせを作成し、ID・作成日時・更新日時を設定する。
	Create(ctx context.Context, announcement *model.Announcement) error
	// ListVisible は公開のお知らせとviewerIDが作成したお知らせを新しい順に返す。
	ListVisible(ctx context.Context, viewerID string, limit int) ([]*model.Announcement, error)
}
