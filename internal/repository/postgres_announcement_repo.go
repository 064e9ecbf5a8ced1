package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/campusbuzz/internal/model"
)

// PostgresAnnouncementRepo はPostgreSQLを使用したお知らせリポジトリ。
type PostgresAnnouncementRepo struct {
	db *sql.DB
}

// NewPostgresAnnouncementRepo はPostgresAnnouncementRepoを生成する。
func NewPostgresAnnouncementRepo(db *sql.DB) *PostgresAnnouncementRepo {
	return &PostgresAnnouncementRepo{db: db}
}

// Create はお知らせを作成する。
func (r *PostgresAnnouncementRepo) Create(ctx context.Context, a *model.Announcement) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO announcements (title, content, author, author_id, priority, is_public)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, created_at, updated_at`,
		a.Title, a.Content, a.Author, nullString(a.AuthorID), string(a.Priority), a.IsPublic,
	).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create announcement: %w", err)
	}
	return nil
}

// ListVisible は閲覧できるお知らせを新しい順に返す。
func (r *PostgresAnnouncementRepo) ListVisible(ctx context.Context, viewerID string, limit int) ([]*model.Announcement, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, title, content, author, author_id, priority, is_public, created_at, updated_at
		 FROM announcements
		 WHERE is_public OR author_id = $1
		 ORDER BY created_at DESC, id
		 LIMIT $2`,
		nullString(viewerID), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list announcements: %w", err)
	}
	defer rows.Close()

	var result []*model.Announcement
	for rows.Next() {
		a := &model.Announcement{}
		var authorID sql.NullString
		var priority string
		if err := rows.Scan(&a.ID, &a.Title, &a.Content, &a.Author, &authorID, &priority,
			&a.IsPublic, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan announcement: %w", err)
		}
		a.AuthorID = authorID.String
		a.Priority = model.AnnouncementPriority(priority)
		result = append(result, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate announcements: %w", err)
	}
	return result, nil
}

// compile-time interface check
var _ AnnouncementRepository = (*PostgresAnnouncementRepo)(nil)
