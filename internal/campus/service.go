package campus

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hitoshi/campusbuzz/internal/model"
	"github.com/hitoshi/campusbuzz/internal/repository"
)

const (
	// CreatedByTag はグループのメタデータに記録する作成元。
	CreatedByTag = "CampusBuzz"

	maxGroupNameLength        = 100
	maxGroupDescriptionLength = 500
)

// ChatGroups はグループ操作に必要なチャットサービスのインターフェース。chat.Clientが実装する。
type ChatGroups interface {
	CreateGroup(ctx context.Context, ownerUID string, group model.Group) (*model.Group, error)
	JoinGroup(ctx context.Context, uid, guid string) error
	AddMembers(ctx context.Context, ownerUID, guid string, uids []string) error
	SearchGroups(ctx context.Context, uid, query string) ([]*model.Group, error)
	ListJoinedGroups(ctx context.Context, uid string) ([]*model.Group, error)
}

// TextSanitizer はグループ名と説明の無害化インターフェース。
type TextSanitizer interface {
	Sanitize(raw string, maxRunes int) string
}

// IconValidator はアイコンURLの検証インターフェース。security.SSRFGuardServiceが実装する。
type IconValidator interface {
	ValidateIconURL(rawURL string) error
}

// CreateGroupInput はグループ作成の入力。
type CreateGroupInput struct {
	Name        string
	Type        model.GroupType
	College     string
	Description string
	Icon        string
}

// Service はキャンパスグループのビジネスロジックを提供する。
type Service struct {
	chat      ChatGroups
	metaRepo  repository.GroupMetadataRepository
	sanitizer TextSanitizer
	icons     IconValidator
	logger    *slog.Logger
}

// NewService はServiceを生成する。
func NewService(
	chat ChatGroups,
	metaRepo repository.GroupMetadataRepository,
	sanitizer TextSanitizer,
	icons IconValidator,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		chat:      chat,
		metaRepo:  metaRepo,
		sanitizer: sanitizer,
		icons:     icons,
		logger:    logger,
	}
}

// CreateGroup は公開グループを作成し、補足情報を保存する。ownerIDのユーザーがオーナーになる。
func (s *Service) CreateGroup(ctx context.Context, ownerID string, in CreateGroupInput) (*model.Group, error) {
	if !in.Type.Valid() {
		return nil, model.NewInvalidGroupError(fmt.Sprintf("unknown type %q", in.Type))
	}
	name := s.sanitizer.Sanitize(in.Name, maxGroupNameLength)
	if name == "" {
		return nil, model.NewInvalidGroupError("name is required")
	}
	college := s.sanitizer.Sanitize(in.College, maxGroupNameLength)
	if college == "" {
		return nil, model.NewInvalidGroupError("college is required")
	}
	if in.Icon != "" {
		if err := s.icons.ValidateIconURL(in.Icon); err != nil {
			return nil, model.NewInvalidIconError(err.Error())
		}
	}

	guid := GroupGUID(college, in.Type, name)
	existing, err := s.metaRepo.FindByGUID(ctx, guid)
	if err != nil {
		return nil, fmt.Errorf("failed to look up group %s: %w", guid, err)
	}
	if existing != nil {
		return nil, model.NewGroupExistsError(guid)
	}

	group := model.Group{
		GUID:        guid,
		Name:        name,
		Description: s.sanitizer.Sanitize(in.Description, maxGroupDescriptionLength),
		Icon:        in.Icon,
		Metadata: map[string]string{
			"type":       string(in.Type),
			"college":    college,
			"created_by": CreatedByTag,
		},
	}

	created, err := s.chat.CreateGroup(ctx, ownerID, group)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat group: %w", err)
	}

	meta := &model.GroupMetadata{
		GUID:      guid,
		Type:      in.Type,
		College:   college,
		CreatedBy: CreatedByTag,
		OwnerID:   ownerID,
		CreatedAt: time.Now(),
	}
	if err := s.metaRepo.Save(ctx, meta); err != nil {
		// チャット側のグループは作成済みのため、保存の失敗は記録のみ行う
		s.logger.Error("failed to save group metadata",
			slog.String("guid", guid),
			slog.String("error", err.Error()),
		)
	}

	s.logger.Info("campus group created",
		slog.String("guid", guid),
		slog.String("type", string(in.Type)),
		slog.String("owner_id", ownerID),
	)
	return created, nil
}

// JoinGroup はユーザーをグループに参加させる。参加済みの場合も成功とする。
func (s *Service) JoinGroup(ctx context.Context, userID, guid string) error {
	if guid == "" {
		return model.NewInvalidGroupError("guid is required")
	}
	if err := s.chat.JoinGroup(ctx, userID, guid); err != nil {
		return fmt.Errorf("failed to join group %s: %w", guid, err)
	}
	return nil
}

// JoinCommonGroups は学期・講義・雑談の3グループに並行して参加する。
// 1つでも失敗した場合はCOMMON_GROUPS_PARTIALを返す。成功した参加は取り消さない。
// 入力はCreateGroupと同じ規則で無害化してからGUIDを組み立てる。
func (s *Service) JoinCommonGroups(ctx context.Context, userID, college, semester, course string) ([]string, error) {
	college = s.sanitizer.Sanitize(college, maxGroupNameLength)
	semester = s.sanitizer.Sanitize(semester, maxGroupNameLength)
	course = s.sanitizer.Sanitize(course, maxGroupNameLength)
	if college == "" || semester == "" || course == "" {
		return nil, model.NewInvalidGroupError("college, semester and course are required")
	}

	guids := []string{
		GroupGUID(college, model.GroupTypeSemester, semester),
		GroupGUID(college, model.GroupTypeCourse, course),
		GroupGUID(college, model.GroupTypeGeneral, GeneralGroupName),
	}

	// 1つの失敗で他の参加を中断しないよう、errgroupのコンテキストは使わない
	var g errgroup.Group
	for _, guid := range guids {
		g.Go(func() error {
			if err := s.chat.JoinGroup(ctx, userID, guid); err != nil {
				s.logger.Warn("failed to join common group",
					slog.String("user_id", userID),
					slog.String("guid", guid),
					slog.String("error", err.Error()),
				)
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, model.NewCommonGroupsPartialError()
	}
	return guids, nil
}

// SearchGroups は名前に検索語を含むグループを返す。
func (s *Service) SearchGroups(ctx context.Context, userID, query string) ([]*model.Group, error) {
	groups, err := s.chat.SearchGroups(ctx, userID, s.sanitizer.Sanitize(query, maxGroupNameLength))
	if err != nil {
		return nil, fmt.Errorf("failed to search groups: %w", err)
	}
	return groups, nil
}

// ListJoinedGroups はユーザーが参加しているグループを返す。
func (s *Service) ListJoinedGroups(ctx context.Context, userID string) ([]*model.Group, error) {
	groups, err := s.chat.ListJoinedGroups(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list joined groups: %w", err)
	}
	return groups, nil
}

// ListCollegeGroups は大学で作成されたグループの補足情報を返す。groupTypeが空の場合は全種別。
func (s *Service) ListCollegeGroups(ctx context.Context, college string, groupType model.GroupType) ([]*model.GroupMetadata, error) {
	if groupType != "" && !groupType.Valid() {
		return nil, model.NewInvalidGroupError(fmt.Sprintf("unknown type %q", groupType))
	}
	groups, err := s.metaRepo.ListByCollege(ctx, s.sanitizer.Sanitize(college, maxGroupNameLength), groupType)
	if err != nil {
		return nil, fmt.Errorf("failed to list college groups: %w", err)
	}
	return groups, nil
}

// AddMembers はグループに参加者を追加する。操作はactorIDのユーザーとして行う。
func (s *Service) AddMembers(ctx context.Context, actorID, guid string, memberIDs []string) error {
	members := make([]string, 0, len(memberIDs))
	seen := make(map[string]bool, len(memberIDs))
	for _, id := range memberIDs {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		members = append(members, id)
	}
	if len(members) == 0 {
		return model.NewNoMembersError()
	}

	if err := s.chat.AddMembers(ctx, actorID, guid, members); err != nil {
		return fmt.Errorf("failed to add members to %s: %w", guid, err)
	}
	s.logger.Info("group members added",
		slog.String("guid", guid),
		slog.Int("count", len(members)),
	)
	return nil
}
