// Package bulletin はキャンパスのイベントとお知らせを提供する。
// ホーム画面の一覧と、イベントへの参加登録を扱う。
package bulletin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/campusbuzz/internal/bootstrap"
	"github.com/hitoshi/campusbuzz/internal/model"
	"github.com/hitoshi/campusbuzz/internal/repository"
)

const (
	maxTitleLength       = 200
	maxDescriptionLength = 2000
	maxLocationLength    = 200
	maxOrganizerLength   = 100
	maxContentLength     = 5000

	// MaxEventCapacity はイベント定員の上限。
	MaxEventCapacity = 10000
	// listLimit は一覧で返す最大件数。
	listLimit = 100
)

// TextSanitizer はタイトルと本文の無害化インターフェース。security.TextSanitizerServiceが実装する。
type TextSanitizer interface {
	Sanitize(raw string, maxRunes int) string
}

// ProfileReader は作成者の表示名を得るためのインターフェース。identity.Serviceが実装する。
type ProfileReader interface {
	Profile(ctx context.Context, userID string) (*model.User, error)
}

// EventInput はイベント作成の入力。IsPublicがnilの場合は公開とする。
type EventInput struct {
	Title        string
	Description  string
	StartsAt     time.Time
	Location     string
	Organizer    string
	MaxAttendees int
	IsPublic     *bool
}

// AnnouncementInput はお知らせ作成の入力。Priorityが空の場合はmediumとする。
type AnnouncementInput struct {
	Title    string
	Content  string
	Priority model.AnnouncementPriority
	IsPublic *bool
}

// Service はイベントとお知らせのビジネスロジックを提供する。
type Service struct {
	events        repository.EventRepository
	announcements repository.AnnouncementRepository
	profiles      ProfileReader
	sanitizer     TextSanitizer
	logger        *slog.Logger
	now           func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	events repository.EventRepository,
	announcements repository.AnnouncementRepository,
	profiles ProfileReader,
	sanitizer TextSanitizer,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		events:        events,
		announcements: announcements,
		profiles:      profiles,
		sanitizer:     sanitizer,
		logger:        logger,
		now:           time.Now,
	}
}

// CreateEvent はイベントを作成する。主催者名が省略された場合は作成者の表示名を使う。
func (s *Service) CreateEvent(ctx context.Context, organizerID string, in EventInput) (*model.Event, error) {
	title := s.sanitizer.Sanitize(in.Title, maxTitleLength)
	if title == "" {
		return nil, model.NewInvalidEventError("title is required")
	}
	if in.StartsAt.IsZero() {
		return nil, model.NewInvalidEventError("date is required")
	}
	if in.StartsAt.Before(s.now()) {
		return nil, model.NewInvalidEventError("date must be in the future")
	}
	if in.MaxAttendees <= 0 || in.MaxAttendees > MaxEventCapacity {
		return nil, model.NewInvalidEventError(fmt.Sprintf("max attendees must be between 1 and %d", MaxEventCapacity))
	}

	organizer := s.sanitizer.Sanitize(in.Organizer, maxOrganizerLength)
	if organizer == "" {
		name, err := s.displayName(ctx, organizerID)
		if err != nil {
			return nil, err
		}
		organizer = name
	}

	event := &model.Event{
		Title:        title,
		Description:  s.sanitizer.Sanitize(in.Description, maxDescriptionLength),
		StartsAt:     in.StartsAt,
		Location:     s.sanitizer.Sanitize(in.Location, maxLocationLength),
		Organizer:    organizer,
		OrganizerID:  organizerID,
		MaxAttendees: in.MaxAttendees,
		IsPublic:     in.IsPublic == nil || *in.IsPublic,
	}
	if err := s.events.Create(ctx, event); err != nil {
		return nil, fmt.Errorf("failed to create event: %w", err)
	}

	s.logger.Info("campus event created",
		slog.String("event_id", event.ID),
		slog.String("organizer_id", organizerID),
		slog.Bool("public", event.IsPublic),
	)
	return event, nil
}

// ListEvents はviewerIDが閲覧できる開催前のイベントを開始日時の昇順で返す。
func (s *Service) ListEvents(ctx context.Context, viewerID string) ([]*model.Event, error) {
	events, err := s.events.ListVisible(ctx, viewerID, s.now(), listLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	return events, nil
}

// AttendEvent はイベントに参加登録し、更新後のイベントを返す。参加済みの場合も成功とする。
// 非公開イベントは主催者以外には存在しないものとして扱う。
func (s *Service) AttendEvent(ctx context.Context, userID, eventID string) (*model.Event, error) {
	event, err := s.visibleEvent(ctx, userID, eventID)
	if err != nil {
		return nil, err
	}
	if !event.StartsAt.After(s.now()) {
		return nil, model.NewInvalidEventError("event has already started")
	}

	switch err := s.events.AddAttendee(ctx, event.ID, userID); {
	case errors.Is(err, repository.ErrEventFull):
		return nil, model.NewEventFullError()
	case errors.Is(err, repository.ErrEventNotFound):
		return nil, model.NewEventNotFoundError()
	case err != nil:
		return nil, fmt.Errorf("failed to attend event %s: %w", event.ID, err)
	}

	updated, err := s.events.FindByID(ctx, event.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload event %s: %w", event.ID, err)
	}
	if updated == nil {
		return nil, model.NewEventNotFoundError()
	}
	return updated, nil
}

// LeaveEvent は参加登録を取り消す。参加していない場合も成功とする。
func (s *Service) LeaveEvent(ctx context.Context, userID, eventID string) error {
	event, err := s.visibleEvent(ctx, userID, eventID)
	if err != nil {
		return err
	}
	if err := s.events.RemoveAttendee(ctx, event.ID, userID); err != nil {
		return fmt.Errorf("failed to leave event %s: %w", event.ID, err)
	}
	return nil
}

// CreateAnnouncement はお知らせを作成する。投稿者名は作成者の表示名とする。
func (s *Service) CreateAnnouncement(ctx context.Context, authorID string, in AnnouncementInput) (*model.Announcement, error) {
	title := s.sanitizer.Sanitize(in.Title, maxTitleLength)
	if title == "" {
		return nil, model.NewInvalidAnnouncementError("title is required")
	}
	content := s.sanitizer.Sanitize(in.Content, maxContentLength)
	if content == "" {
		return nil, model.NewInvalidAnnouncementError("content is required")
	}
	priority := in.Priority
	if priority == "" {
		priority = model.PriorityMedium
	}
	if !priority.Valid() {
		return nil, model.NewInvalidAnnouncementError(fmt.Sprintf("unknown priority %q", priority))
	}

	author, err := s.displayName(ctx, authorID)
	if err != nil {
		return nil, err
	}

	announcement := &model.Announcement{
		Title:    title,
		Content:  content,
		Author:   author,
		AuthorID: authorID,
		Priority: priority,
		IsPublic: in.IsPublic == nil || *in.IsPublic,
	}
	if err := s.announcements.Create(ctx, announcement); err != nil {
		return nil, fmt.Errorf("failed to create announcement: %w", err)
	}

	s.logger.Info("announcement created",
		slog.String("announcement_id", announcement.ID),
		slog.String("author_id", authorID),
		slog.String("priority", string(priority)),
	)
	return announcement, nil
}

// ListAnnouncements はviewerIDが閲覧できるお知らせを新しい順に返す。
func (s *Service) ListAnnouncements(ctx context.Context, viewerID string) ([]*model.Announcement, error) {
	announcements, err := s.announcements.ListVisible(ctx, viewerID, listLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list announcements: %w", err)
	}
	return announcements, nil
}

// visibleEvent はuserIDが閲覧できるイベントを返す。IDの形式が不正な場合も見つからない扱いとする。
func (s *Service) visibleEvent(ctx context.Context, userID, eventID string) (*model.Event, error) {
	if _, err := uuid.Parse(eventID); err != nil {
		return nil, model.NewEventNotFoundError()
	}
	event, err := s.events.FindByID(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to find event %s: %w", eventID, err)
	}
	if event == nil || (!event.IsPublic && event.OrganizerID != userID) {
		return nil, model.NewEventNotFoundError()
	}
	return event, nil
}

// displayName はチャットユーザー作成時と同じ規則で作成者の表示名を決める。
func (s *Service) displayName(ctx context.Context, userID string) (string, error) {
	user, err := s.profiles.Profile(ctx, userID)
	if err != nil {
		return "", err
	}
	return bootstrap.DisplayNameFor(*user.Account()), nil
}
