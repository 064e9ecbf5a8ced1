package model

import "time"

// Event はキャンパスイベントを表す。eventsテーブルに永続化される。
type Event struct {
	ID           string
	Title        string
	Description  string
	StartsAt     time.Time
	Location     string
	Organizer    string // 表示用の主催者名
	OrganizerID  string // 作成したアカウントのID。アカウント削除後は空
	Attendees    []string
	MaxAttendees int
	IsPublic     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Full は参加者数が定員に達しているかどうかを返す。
func (e *Event) Full() bool {
	return len(e.Attendees) >= e.MaxAttendees
}

// AnnouncementPriority はお知らせの重要度。
type AnnouncementPriority string

const (
	PriorityLow    AnnouncementPriority = "low"
	PriorityMedium AnnouncementPriority = "medium"
	PriorityHigh   AnnouncementPriority = "high"
	PriorityUrgent AnnouncementPriority = "urgent"
)

// Valid は定義済みの重要度かどうかを返す。
func (p AnnouncementPriority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	default:
		return false
	}
}

// Label は画面に表示する重要度の名前を返す。
func (p AnnouncementPriority) Label() string {
	switch p {
	case PriorityLow:
		return "Info"
	case PriorityMedium:
		return "Notice"
	case PriorityHigh:
		return "Important"
	case PriorityUrgent:
		return "Urgent"
	default:
		return ""
	}
}

// Announcement はキャンパスのお知らせを表す。announcementsテーブルに永続化される。
type Announcement struct {
	ID        string
	Title     string
	Content   string
	Author    string
	AuthorID  string
	Priority  AnnouncementPriority
	IsPublic  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}
