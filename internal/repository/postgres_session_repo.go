package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/campusbuzz/internal/model"
)

// PostgresSessionRepo はPostgreSQLを使用したプライマリセッションのリポジトリ。
// セッションはusersの行に紐づき、ユーザー削除時はCASCADEで消える。
type PostgresSessionRepo struct {
	db *sql.DB
}

// NewPostgresSessionRepo はPostgresSessionRepoを生成する。
func NewPostgresSessionRepo(db *sql.DB) *PostgresSessionRepo {
	return &PostgresSessionRepo{db: db}
}

// Create はサインイン・サインアップで発行したセッションを保存する。
func (r *PostgresSessionRepo) Create(ctx context.Context, session *model.Session) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, expires_at, created_at)
		 VALUES ($1, $2, $3, $4)`,
		session.ID, session.UserID, session.ExpiresAt, session.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// FindByID はセッションミドルウェア向けに有効なセッションを返す。期限切れの場合はnilを返す。
func (r *PostgresSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	session := &model.Session{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, expires_at, created_at
		 FROM sessions
		 WHERE id = $1 AND expires_at > now()`,
		id,
	).Scan(&session.ID, &session.UserID, &session.ExpiresAt, &session.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}

	return session, nil
}

// FindAccount は有効なセッションに紐づくPrimaryAccountを1回の問い合わせで返す。
// 起動時の経路判定で使う。セッションが期限切れ、または存在しない場合はnilを返す。
func (r *PostgresSessionRepo) FindAccount(ctx context.Context, sessionID string) (*model.PrimaryAccount, error) {
	account := &model.PrimaryAccount{}
	err := r.db.QueryRowContext(ctx,
		`SELECT u.id, u.email, u.display_name
		 FROM sessions s
		 JOIN users u ON u.id = s.user_id
		 WHERE s.id = $1 AND s.expires_at > now()`,
		sessionID,
	).Scan(&account.ID, &account.Email, &account.DisplayName)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find session account: %w", err)
	}
	return account, nil
}

// Revoke はセッションを削除し、その所有者のユーザーIDを返す。
// 期限切れのセッションも削除する。存在しない場合は空文字列を返す。
func (r *PostgresSessionRepo) Revoke(ctx context.Context, id string) (string, error) {
	var userID string
	err := r.db.QueryRowContext(ctx,
		`DELETE FROM sessions WHERE id = $1 RETURNING user_id`,
		id,
	).Scan(&userID)

	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to revoke session: %w", err)
	}
	return userID, nil
}

// compile-time interface check
var _ SessionRepository = (*PostgresSessionRepo)(nil)
