package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/campusbuzz/internal/campus"
	"github.com/hitoshi/campusbuzz/internal/middleware"
	"github.com/hitoshi/campusbuzz/internal/model"
)

// GroupServiceInterface はグループハンドラーが必要とするサービスインターフェース。
// campus.Serviceが実装する。
type GroupServiceInterface interface {
	CreateGroup(ctx context.Context, ownerID string, in campus.CreateGroupInput) (*model.Group, error)
	JoinGroup(ctx context.Context, userID, guid string) error
	JoinCommonGroups(ctx context.Context, userID, college, semester, course string) ([]string, error)
	SearchGroups(ctx context.Context, userID, query string) ([]*model.Group, error)
	ListJoinedGroups(ctx context.Context, userID string) ([]*model.Group, error)
	ListCollegeGroups(ctx context.Context, college string, groupType model.GroupType) ([]*model.GroupMetadata, error)
	AddMembers(ctx context.Context, actorID, guid string, memberIDs []string) error
}

// GroupHandler はキャンパスグループのHTTPハンドラー。
type GroupHandler struct {
	service  GroupServiceInterface
	profiles ProfileReader
	logger   *slog.Logger
}

// NewGroupHandler はGroupHandlerを生成する。
// profilesは大学名が省略されたときにメールアドレスから補うために使う。
func NewGroupHandler(service GroupServiceInterface, profiles ProfileReader, logger *slog.Logger) *GroupHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &GroupHandler{service: service, profiles: profiles, logger: logger}
}

type createGroupRequest struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	College     string `json:"college"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
}

type addMembersRequest struct {
	MemberIDs []string `json:"member_ids"`
}

type joinCommonGroupsRequest struct {
	College  string `json:"college"`
	Semester string `json:"semester"`
	Course   string `json:"course"`
}

type groupResponse struct {
	GUID         string `json:"guid"`
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	Icon         string `json:"icon,omitempty"`
	Owner        string `json:"owner,omitempty"`
	Type         string `json:"type,omitempty"`
	College      string `json:"college,omitempty"`
	MembersCount int    `json:"members_count"`
	HasJoined    bool   `json:"has_joined"`
}

type groupListResponse struct {
	Groups []groupResponse `json:"groups"`
}

type groupMetadataResponse struct {
	GUID      string    `json:"guid"`
	Type      string    `json:"type"`
	College   string    `json:"college"`
	CreatedBy string    `json:"created_by"`
	OwnerID   string    `json:"owner_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func toGroupResponse(g *model.Group) groupResponse {
	return groupResponse{
		GUID:         g.GUID,
		Name:         g.Name,
		Description:  g.Description,
		Icon:         g.Icon,
		Owner:        g.Owner,
		Type:         g.Metadata["type"],
		College:      g.Metadata["college"],
		MembersCount: g.MembersCount,
		HasJoined:    g.HasJoined,
	}
}

func toGroupListResponse(groups []*model.Group) groupListResponse {
	resp := groupListResponse{Groups: make([]groupResponse, 0, len(groups))}
	for _, g := range groups {
		resp.Groups = append(resp.Groups, toGroupResponse(g))
	}
	return resp
}

// SearchGroups はグループを名前で検索する。
// GET /api/groups?q=
func (h *GroupHandler) SearchGroups(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	groups, err := h.service.SearchGroups(r.Context(), userID, r.URL.Query().Get("q"))
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, toGroupListResponse(groups))
}

// ListJoinedGroups は参加中のグループ一覧を返す。
// GET /api/groups/joined
func (h *GroupHandler) ListJoinedGroups(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	groups, err := h.service.ListJoinedGroups(r.Context(), userID)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, toGroupListResponse(groups))
}

// CreateGroup はグループを作成する。
// POST /api/groups
func (h *GroupHandler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req createGroupRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	college, err := h.collegeFor(r.Context(), userID, req.College)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	group, err := h.service.CreateGroup(r.Context(), userID, campus.CreateGroupInput{
		Name:        req.Name,
		Type:        model.GroupType(req.Type),
		College:     college,
		Description: req.Description,
		Icon:        req.Icon,
	})
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, toGroupResponse(group))
}

// JoinGroup はグループに参加する。
// POST /api/groups/{guid}/join
func (h *GroupHandler) JoinGroup(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	if err := h.service.JoinGroup(r.Context(), userID, chi.URLParam(r, "guid")); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AddMembers はグループに参加者を追加する。
// POST /api/groups/{guid}/members
func (h *GroupHandler) AddMembers(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req addMembersRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.service.AddMembers(r.Context(), userID, chi.URLParam(r, "guid"), req.MemberIDs); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// JoinCommonGroups は学期・講義・雑談グループにまとめて参加する。
// POST /api/groups/common
func (h *GroupHandler) JoinCommonGroups(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req joinCommonGroupsRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	college, err := h.collegeFor(r.Context(), userID, req.College)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	guids, err := h.service.JoinCommonGroups(r.Context(), userID, college, req.Semester, req.Course)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string][]string{"joined": guids})
}

// ListCollegeGroups は大学で作成されたグループの一覧を返す。
// GET /api/colleges/{college}/groups?type=
func (h *GroupHandler) ListCollegeGroups(w http.ResponseWriter, r *http.Request) {
	metas, err := h.service.ListCollegeGroups(r.Context(), chi.URLParam(r, "college"), model.GroupType(r.URL.Query().Get("type")))
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	resp := make([]groupMetadataResponse, 0, len(metas))
	for _, m := range metas {
		resp = append(resp, groupMetadataResponse{
			GUID:      m.GUID,
			Type:      string(m.Type),
			College:   m.College,
			CreatedBy: m.CreatedBy,
			OwnerID:   m.OwnerID,
			CreatedAt: m.CreatedAt,
		})
	}
	middleware.WriteJSON(w, http.StatusOK, map[string][]groupMetadataResponse{"groups": resp})
}

// collegeFor は指定がなければアカウントのメールアドレスから大学名を導出する。
func (h *GroupHandler) collegeFor(ctx context.Context, userID, college string) (string, error) {
	if college != "" {
		return college, nil
	}
	user, err := h.profiles.Profile(ctx, userID)
	if err != nil {
		return "", err
	}
	derived, err := campus.CollegeFromEmail(user.Email)
	if err != nil {
		return "", model.NewInvalidGroupError("college is required")
	}
	return derived, nil
}
