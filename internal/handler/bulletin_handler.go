package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/campusbuzz/internal/bulletin"
	"github.com/hitoshi/campusbuzz/internal/middleware"
	"github.com/hitoshi/campusbuzz/internal/model"
)

// BulletinService はイベントとお知らせのハンドラーが必要とするサービスインターフェース。
// bulletin.Serviceが実装する。
type BulletinService interface {
	CreateEvent(ctx context.Context, organizerID string, in bulletin.EventInput) (*model.Event, error)
	ListEvents(ctx context.Context, viewerID string) ([]*model.Event, error)
	AttendEvent(ctx context.Context, userID, eventID string) (*model.Event, error)
	LeaveEvent(ctx context.Context, userID, eventID string) error
	CreateAnnouncement(ctx context.Context, authorID string, in bulletin.AnnouncementInput) (*model.Announcement, error)
	ListAnnouncements(ctx context.Context, viewerID string) ([]*model.Announcement, error)
}

// BulletinHandler はイベントとお知らせのHTTPハンドラー。
type BulletinHandler struct {
	service BulletinService
	logger  *slog.Logger
}

// NewBulletinHandler はBulletinHandlerを生成する。
func NewBulletinHandler(service BulletinService, logger *slog.Logger) *BulletinHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &BulletinHandler{service: service, logger: logger}
}

type createEventRequest struct {
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	StartsAt     time.Time `json:"starts_at"`
	Location     string    `json:"location"`
	Organizer    string    `json:"organizer"`
	MaxAttendees int       `json:"max_attendees"`
	IsPublic     *bool     `json:"is_public"`
}

type createAnnouncementRequest struct {
	Title    string `json:"title"`
	Content  string `json:"content"`
	Priority string `json:"priority"`
	IsPublic *bool  `json:"is_public"`
}

type eventResponse struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	Description    string    `json:"description,omitempty"`
	StartsAt       time.Time `json:"starts_at"`
	Location       string    `json:"location,omitempty"`
	Organizer      string    `json:"organizer"`
	AttendeesCount int       `json:"attendees_count"`
	MaxAttendees   int       `json:"max_attendees"`
	IsPublic       bool      `json:"is_public"`
	IsAttending    bool      `json:"is_attending"`
	IsFull         bool      `json:"is_full"`
}

type announcementResponse struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Content       string    `json:"content"`
	Author        string    `json:"author"`
	Priority      string    `json:"priority"`
	PriorityLabel string    `json:"priority_label"`
	IsPublic      bool      `json:"is_public"`
	CreatedAt     time.Time `json:"created_at"`
}

// toEventResponse は参加者IDを公開せず、件数と閲覧者自身の参加有無だけを返す。
func toEventResponse(e *model.Event, viewerID string) eventResponse {
	attending := false
	for _, id := range e.Attendees {
		if id == viewerID {
			attending = true
			break
		}
	}
	return eventResponse{
		ID:             e.ID,
		Title:          e.Title,
		Description:    e.Description,
		StartsAt:       e.StartsAt,
		Location:       e.Location,
		Organizer:      e.Organizer,
		AttendeesCount: len(e.Attendees),
		MaxAttendees:   e.MaxAttendees,
		IsPublic:       e.IsPublic,
		IsAttending:    attending,
		IsFull:         e.Full(),
	}
}

func toAnnouncementResponse(a *model.Announcement) announcementResponse {
	return announcementResponse{
		ID:            a.ID,
		Title:         a.Title,
		Content:       a.Content,
		Author:        a.Author,
		Priority:      string(a.Priority),
		PriorityLabel: a.Priority.Label(),
		IsPublic:      a.IsPublic,
		CreatedAt:     a.CreatedAt,
	}
}

// ListEvents は開催前のイベント一覧を返す。
// GET /api/events
func (h *BulletinHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	events, err := h.service.ListEvents(r.Context(), userID)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	resp := make([]eventResponse, 0, len(events))
	for _, e := range events {
		resp = append(resp, toEventResponse(e, userID))
	}
	middleware.WriteJSON(w, http.StatusOK, map[string][]eventResponse{"events": resp})
}

// CreateEvent はイベントを作成する。
// POST /api/events
func (h *BulletinHandler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req createEventRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	event, err := h.service.CreateEvent(r.Context(), userID, bulletin.EventInput{
		Title:        req.Title,
		Description:  req.Description,
		StartsAt:     req.StartsAt,
		Location:     req.Location,
		Organizer:    req.Organizer,
		MaxAttendees: req.MaxAttendees,
		IsPublic:     req.IsPublic,
	})
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, toEventResponse(event, userID))
}

// AttendEvent はイベントに参加登録する。
// POST /api/events/{id}/attend
func (h *BulletinHandler) AttendEvent(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	event, err := h.service.AttendEvent(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, toEventResponse(event, userID))
}

// LeaveEvent はイベントの参加登録を取り消す。
// DELETE /api/events/{id}/attend
func (h *BulletinHandler) LeaveEvent(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	if err := h.service.LeaveEvent(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListAnnouncements はお知らせ一覧を新しい順に返す。
// GET /api/announcements
func (h *BulletinHandler) ListAnnouncements(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	announcements, err := h.service.ListAnnouncements(r.Context(), userID)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	resp := make([]announcementResponse, 0, len(announcements))
	for _, a := range announcements {
		resp = append(resp, toAnnouncementResponse(a))
	}
	middleware.WriteJSON(w, http.StatusOK, map[string][]announcementResponse{"announcements": resp})
}

// CreateAnnouncement はお知らせを作成する。
// POST /api/announcements
func (h *BulletinHandler) CreateAnnouncement(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req createAnnouncementRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	announcement, err := h.service.CreateAnnouncement(r.Context(), userID, bulletin.AnnouncementInput{
		Title:    req.Title,
		Content:  req.Content,
		Priority: model.AnnouncementPriority(req.Priority),
		IsPublic: req.IsPublic,
	})
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, toAnnouncementResponse(announcement))
}
