package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/campusbuzz/internal/model"
)

// PostgresGroupMetadataRepo はPostgreSQLを使用したグループメタデータリポジトリ。
type PostgresGroupMetadataRepo struct {
	db *sql.DB
}

// NewPostgresGroupMetadataRepo はPostgresGroupMetadataRepoを生成する。
func NewPostgresGroupMetadataRepo(db *sql.DB) *PostgresGroupMetadataRepo {
	return &PostgresGroupMetadataRepo{db: db}
}

// Save はメタデータを保存する。created_atは最初の保存時の値を維持する。
func (r *PostgresGroupMetadataRepo) Save(ctx context.Context, meta *model.GroupMetadata) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO group_metadata (guid, type, college, created_by, owner_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (guid) DO UPDATE
		 SET type = EXCLUDED.type,
		     college = EXCLUDED.college,
		     created_by = EXCLUDED.created_by,
		     owner_id = EXCLUDED.owner_id`,
		meta.GUID, string(meta.Type), meta.College, meta.CreatedBy, nullString(meta.OwnerID), meta.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save group metadata: %w", err)
	}
	return nil
}

// FindByGUID はGUIDでメタデータを取得する。見つからない場合はnilを返す。
func (r *PostgresGroupMetadataRepo) FindByGUID(ctx context.Context, guid string) (*model.GroupMetadata, error) {
	meta := &model.GroupMetadata{}
	var groupType string
	var ownerID sql.NullString
	err := r.db.QueryRowContext(ctx,
		`SELECT guid, type, college, created_by, owner_id, created_at
		 FROM group_metadata WHERE guid = $1`,
		guid,
	).Scan(&meta.GUID, &groupType, &meta.College, &meta.CreatedBy, &ownerID, &meta.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find group metadata: %w", err)
	}
	meta.Type = model.GroupType(groupType)
	meta.OwnerID = ownerID.String
	return meta, nil
}

// ListByCollege は大学ごとのグループを作成日時の古い順に返す。
func (r *PostgresGroupMetadataRepo) ListByCollege(ctx context.Context, college string, groupType model.GroupType) ([]*model.GroupMetadata, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT guid, type, college, created_by, owner_id, created_at
		 FROM group_metadata
		 WHERE college = $1 AND ($2::text = '' OR type = $2::text)
		 ORDER BY created_at, guid`,
		college, string(groupType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list group metadata: %w", err)
	}
	defer rows.Close()

	var result []*model.GroupMetadata
	for rows.Next() {
		meta := &model.GroupMetadata{}
		var t string
		var ownerID sql.NullString
		if err := rows.Scan(&meta.GUID, &t, &meta.College, &meta.CreatedBy, &ownerID, &meta.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan group metadata: %w", err)
		}
		meta.Type = model.GroupType(t)
		meta.OwnerID = ownerID.String
		result = append(result, meta)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate group metadata: %w", err)
	}
	return result, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// compile-time interface check
var _ GroupMetadataRepository = (*PostgresGroupMetadataRepo)(nil)
