package model

import "time"

// GroupType はキャンパスグループの種別。
type GroupType string

const (
	GroupTypeSemester GroupType = "semester" // BTech CSE Sem 5
	GroupTypeClub     GroupType = "club"     // Drama Club
	GroupTypeCourse   GroupType = "course"   // Data Structures
	GroupTypeGeneral  GroupType = "general"  // General Discussion
	GroupTypeStudy    GroupType = "study"    // Study Groups
)

// Valid は定義済みの種別かどうかを返す。
func (t GroupType) Valid() bool {
	switch t {
	case GroupTypeSemester, GroupTypeClub, GroupTypeCourse, GroupTypeGeneral, GroupTypeStudy:
		return true
	default:
		return false
	}
}

// Group はチャットサービス上のグループを表す。
type Group struct {
	GUID         string
	Name         string
	Description  string
	Icon         string
	Owner        string
	Metadata     map[string]string
	MembersCount int
	HasJoined    bool
}

// GroupMetadata はグループの補足情報を表す。group_metadataテーブルに永続化される。
type GroupMetadata struct {
	GUID      string
	Type      GroupType
	College   string
	CreatedBy string
	OwnerID   string // 作成したアカウントのID。アカウント削除後は空
	CreatedAt time.Time
}
