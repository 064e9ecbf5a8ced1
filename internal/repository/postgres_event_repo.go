package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/hitoshi/campusbuzz/internal/model"
)

// eventColumns は参加者IDを集約したイベントの列。eventsをe、event_attendeesをaとして結合する。
const eventColumns = `e.id, e.title, e.description, e.starts_at, e.location, e.organizer, e.organizer_id,
		 e.max_attendees, e.is_public, e.created_at, e.updated_at,
		 COALESCE(array_agg(a.user_id::text ORDER BY a.created_at) FILTER (WHERE a.user_id IS NOT NULL), '{}')`

// PostgresEventRepo はPostgreSQLを使用したイベントリポジトリ。
type PostgresEventRepo struct {
	db *sql.DB
}

// NewPostgresEventRepo はPostgresEventRepoを生成する。
func NewPostgresEventRepo(db *sql.DB) *PostgresEventRepo {
	return &PostgresEventRepo{db: db}
}

// Create はイベントを作成する。
func (r *PostgresEventRepo) Create(ctx context.Context, event *model.Event) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO events (title, description, starts_at, location, organizer, organizer_id, max_attendees, is_public)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id, created_at, updated_at`,
		event.Title, event.Description, event.StartsAt, event.Location, event.Organizer,
		nullString(event.OrganizerID), event.MaxAttendees, event.IsPublic,
	).Scan(&event.ID, &event.CreatedAt, &event.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create event: %w", err)
	}
	return nil
}

// FindByID は参加者を含むイベントを取得する。見つからない場合はnilを返す。
func (r *PostgresEventRepo) FindByID(ctx context.Context, id string) (*model.Event, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+eventColumns+`
		 FROM events e
		 LEFT JOIN event_attendees a ON a.event_id = e.id
		 WHERE e.id = $1
		 GROUP BY e.id`,
		id,
	)
	event, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find event: %w", err)
	}
	return event, nil
}

// ListVisible は閲覧できるイベントを開始日時の昇順で返す。
func (r *PostgresEventRepo) ListVisible(ctx context.Context, viewerID string, from time.Time, limit int) ([]*model.Event, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+eventColumns+`
		 FROM events e
		 LEFT JOIN event_attendees a ON a.event_id = e.id
		 WHERE (e.is_public OR e.organizer_id = $1) AND e.starts_at >= $2
		 GROUP BY e.id
		 ORDER BY e.starts_at, e.id
		 LIMIT $3`,
		nullString(viewerID), from, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var result []*model.Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		result = append(result, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate events: %w", err)
	}
	return result, nil
}

// AddAttendee は定員を確認して参加者を追加する。
// 同じイベントへの並行した参加で定員を超えないよう、イベントの行をロックする。
func (r *PostgresEventRepo) AddAttendee(ctx context.Context, eventID, userID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var maxAttendees int
	err = tx.QueryRowContext(ctx,
		`SELECT max_attendees FROM events WHERE id = $1 FOR UPDATE`,
		eventID,
	).Scan(&maxAttendees)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrEventNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to lock event: %w", err)
	}

	var count int
	var joined bool
	err = tx.QueryRowContext(ctx,
		`SELECT count(*), COALESCE(bool_or(user_id = $2), false)
		 FROM event_attendees WHERE event_id = $1`,
		eventID, userID,
	).Scan(&count, &joined)
	if err != nil {
		return fmt.Errorf("failed to count attendees: %w", err)
	}
	if joined {
		return nil
	}
	if count >= maxAttendees {
		return ErrEventFull
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO event_attendees (event_id, user_id) VALUES ($1, $2)`,
		eventID, userID,
	); err != nil {
		return fmt.Errorf("failed to add attendee: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE events SET updated_at = now() WHERE id = $1`,
		eventID,
	); err != nil {
		return fmt.Errorf("failed to touch event: %w", err)
	}
	return tx.Commit()
}

// RemoveAttendee は参加を取り消す。
func (r *PostgresEventRepo) RemoveAttendee(ctx context.Context, eventID, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM event_attendees WHERE event_id = $1 AND user_id = $2`,
		eventID, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to remove attendee: %w", err)
	}
	return nil
}

// rowScanner は*sql.Rowと*sql.Rowsの共通部分。
type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*model.Event, error) {
	event := &model.Event{}
	var organizerID sql.NullString
	var attendees pq.StringArray
	err := row.Scan(&event.ID, &event.Title, &event.Description, &event.StartsAt, &event.Location,
		&event.Organizer, &organizerID, &event.MaxAttendees, &event.IsPublic,
		&event.CreatedAt, &event.UpdatedAt, &attendees)
	if err != nil {
		return nil, err
	}
	event.OrganizerID = organizerID.String
	event.Attendees = []string(attendees)
	return event, nil
}

// compile-time interface check
var _ EventRepository = (*PostgresEventRepo)(nil)
