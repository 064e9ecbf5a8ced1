package chat

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/hitoshi/campusbuzz/internal/model"
)

// defaultGroupPageSize はグループ一覧取得の1ページあたりの件数。
const defaultGroupPageSize = 30

// CreateGroup は公開グループを作成する。ownerUIDが作成者兼オーナーになる。
func (c *Client) CreateGroup(ctx context.Context, ownerUID string, group model.Group) (*model.Group, error) {
	t, err := c.target()
	if err != nil {
		return nil, err
	}

	body := createGroupRequest{
		GUID:        group.GUID,
		Name:        group.Name,
		Type:        "public",
		Description: group.Description,
		Icon:        group.Icon,
		Owner:       ownerUID,
		Metadata:    group.Metadata,
	}
	var created groupResponse
	if err := c.do(ctx, t, "create_group", http.MethodPost, "/groups", ownerUID, body, &created); err != nil {
		return nil, err
	}
	return created.group(), nil
}

// JoinGroup はuidのユーザーとしてグループに参加する。参加済みの場合は成功として扱う。
func (c *Client) JoinGroup(ctx context.Context, uid, guid string) error {
	t, err := c.target()
	if err != nil {
		return err
	}

	body := membersRequest{Participants: []string{uid}}
	err = c.do(ctx, t, "join_group", http.MethodPost, "/groups/"+url.PathEscape(guid)+"/members", uid, body, nil)
	if err != nil && IsConflict(err) {
		return nil
	}
	return err
}

// AddMembers はグループに参加者を追加する。操作はownerUIDのユーザーとして行う。
func (c *Client) AddMembers(ctx context.Context, ownerUID, guid string, uids []string) error {
	t, err := c.target()
	if err != nil {
		return err
	}

	body := membersRequest{Participants: uids}
	return c.do(ctx, t, "add_members", http.MethodPost, "/groups/"+url.PathEscape(guid)+"/members", ownerUID, body, nil)
}

// SearchGroups は名前に検索語を含むグループを返す。queryが空の場合は全件の先頭ページを返す。
func (c *Client) SearchGroups(ctx context.Context, uid, query string) ([]*model.Group, error) {
	q := url.Values{}
	q.Set("perPage", strconv.Itoa(defaultGroupPageSize))
	if query != "" {
		q.Set("searchKey", query)
	}
	return c.listGroups(ctx, "search_groups", uid, q)
}

// ListJoinedGroups はuidが参加しているグループを返す。
func (c *Client) ListJoinedGroups(ctx context.Context, uid string) ([]*model.Group, error) {
	q := url.Values{}
	q.Set("perPage", strconv.Itoa(defaultGroupPageSize))
	q.Set("hasJoined", "true")
	return c.listGroups(ctx, "list_joined_groups", uid, q)
}

func (c *Client) listGroups(ctx context.Context, operation, uid string, q url.Values) ([]*model.Group, error) {
	t, err := c.target()
	if err != nil {
		return nil, err
	}

	var resp []groupResponse
	if err := c.do(ctx, t, operation, http.MethodGet, "/groups?"+q.Encode(), uid, nil, &resp); err != nil {
		return nil, err
	}

	groups := make([]*model.Group, 0, len(resp))
	for _, g := range resp {
		groups = append(groups, g.group())
	}
	return groups, nil
}

// --- ワイヤフォーマット ---

type createGroupRequest struct {
	GUID        string            `json:"guid"`
	Name        string            `json:"name"`
	Type        string            `json:"type"`
	Description string            `json:"description,omitempty"`
	Icon        string            `json:"icon,omitempty"`
	Owner       string            `json:"owner,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type membersRequest struct {
	Participants []string `json:"participants"`
}

type groupResponse struct {
	GUID         string         `json:"guid"`
	Name         string         `json:"name"`
	Description  string         `json:"description"`
	Icon         string         `json:"icon"`
	Owner        string         `json:"owner"`
	Metadata     map[string]any `json:"metadata"`
	MembersCount int            `json:"membersCount"`
	HasJoined    bool           `json:"hasJoined"`
}

func (g groupResponse) group() *model.Group {
	return &model.Group{
		GUID:         g.GUID,
		Name:         g.Name,
		Description:  g.Description,
		Icon:         g.Icon,
		Owner:        g.Owner,
		Metadata:     stringMap(g.Metadata),
		MembersCount: g.MembersCount,
		HasJoined:    g.HasJoined,
	}
}
