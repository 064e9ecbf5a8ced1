// Package identity はメールアドレスとパスワードによるアカウント管理とセッション発行を提供する。
// bootstrap.IdentityStoreの実装であり、プロフィールはusersテーブルに保存する。
package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/campusbuzz/internal/model"
	"github.com/hitoshi/campusbuzz/internal/repository"
)

const (
	// MinPasswordLength はパスワードの最小文字数。
	MinPasswordLength = 6
	maxEmailLength    = 255
	// maxDisplayNameLength はusers.display_nameの上限に合わせた表示名の最大文字数。
	maxDisplayNameLength = 100
)

// TextSanitizer は表示名の無害化インターフェース。security.TextSanitizerServiceが実装する。
type TextSanitizer interface {
	Sanitize(raw string, maxRunes int) string
}

// ServiceConfig はアカウントサービスの設定。
type ServiceConfig struct {
	SessionMaxAge int // セッション有効期間（秒）
}

// Service はアカウント認証に関するビジネスロジックを提供する。
type Service struct {
	userRepo    repository.UserRepository
	sessionRepo repository.SessionRepository
	sanitizer   TextSanitizer
	logger      *slog.Logger
	config      ServiceConfig
	now         func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	userRepo repository.UserRepository,
	sessionRepo repository.SessionRepository,
	sanitizer TextSanitizer,
	logger *slog.Logger,
	config ServiceConfig,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		sanitizer:   sanitizer,
		logger:      logger,
		config:      config,
		now:         time.Now,
	}
}

// SignUp はアカウントとプロフィールを作成し、セッションを発行する。
func (s *Service) SignUp(ctx context.Context, email, password, displayName string) (*model.PrimaryAccount, *model.Session, error) {
	normalized, err := normalizeEmail(email)
	if err != nil {
		return nil, nil, err
	}
	if len([]rune(password)) < MinPasswordLength {
		return nil, nil, model.NewWeakPasswordError(MinPasswordLength)
	}

	existing, err := s.userRepo.FindByEmail(ctx, normalized)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	if existing != nil {
		return nil, nil, model.NewEmailAlreadyInUseError()
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, nil, err
	}

	now := s.now()
	user := &model.User{
		ID:           uuid.New().String(),
		Email:        normalized,
		DisplayName:  s.sanitizer.Sanitize(displayName, maxDisplayNameLength),
		PasswordHash: hash,
		IsOnline:     true,
		LastActiveAt: now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		// FindByEmailとCreateの間に同じアドレスで登録された場合
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, nil, model.NewEmailAlreadyInUseError()
		}
		return nil, nil, fmt.Errorf("failed to create user: %w", err)
	}

	session, err := s.createSession(ctx, user.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create session: %w", err)
	}

	s.logger.Info("new user created",
		slog.String("user_id", user.ID),
		slog.String("email", user.Email),
	)
	return user.Account(), session, nil
}

// SignIn はメールアドレスとパスワードを検証し、セッションを発行する。
// メールアドレスとパスワードのどちらが誤っていても同じエラーを返す。
func (s *Service) SignIn(ctx context.Context, email, password string) (*model.PrimaryAccount, *model.Session, error) {
	normalized, err := normalizeEmail(email)
	if err != nil {
		return nil, nil, model.NewInvalidCredentialsError()
	}

	user, err := s.userRepo.FindByEmail(ctx, normalized)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	if user == nil {
		return nil, nil, model.NewInvalidCredentialsError()
	}

	ok, err := VerifyPassword(password, user.PasswordHash)
	if err != nil {
		s.logger.Error("stored password hash is invalid",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
		return nil, nil, model.NewInvalidCredentialsError()
	}
	if !ok {
		return nil, nil, model.NewInvalidCredentialsError()
	}

	session, err := s.createSession(ctx, user.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create session: %w", err)
	}

	// オンライン状態の更新失敗はサインインを妨げない
	if err := s.userRepo.UpdatePresence(ctx, user.ID, true, s.now()); err != nil {
		s.logger.Warn("failed to update presence",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.Info("user signed in", slog.String("user_id", user.ID))
	return user.Account(), session, nil
}

// SignOut はセッションを破棄し、プロフィールをオフラインにする。
func (s *Service) SignOut(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID is required")
	}

	userID, err := s.sessionRepo.Revoke(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	if userID != "" {
		if err := s.userRepo.UpdatePresence(ctx, userID, false, s.now()); err != nil {
			s.logger.Warn("failed to update presence",
				slog.String("user_id", userID),
				slog.String("error", err.Error()),
			)
		}
		s.logger.Info("user signed out", slog.String("user_id", userID))
	}
	return nil
}

// CurrentSession は有効なセッションのアカウントを返す。
// セッションがない、期限切れ、またはユーザーが削除済みの場合はnil, nilを返す。
func (s *Service) CurrentSession(ctx context.Context, sessionID string) (*model.PrimaryAccount, error) {
	if sessionID == "" {
		return nil, nil
	}
	account, err := s.sessionRepo.FindAccount(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	return account, nil
}

// Profile は指定ユーザーのプロフィールを返す。
func (s *Service) Profile(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return user, nil
}

// Touch は最終アクティブ日時を更新し、オンライン状態にする。
func (s *Service) Touch(ctx context.Context, userID string) error {
	return s.userRepo.UpdatePresence(ctx, userID, true, s.now())
}

// createSession はセッションを作成し永続化する。
func (s *Service) createSession(ctx context.Context, userID string) (*model.Session, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	now := s.now()
	session := &model.Session{
		ID:        sessionID,
		UserID:    userID,
		ExpiresAt: now.Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt: now,
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return session, nil
}

// normalizeEmail はメールアドレスを検証し、小文字に正規化する。
// 表示名付きの形式（"Jane <jane@campus.edu>"）は受け付けない。
func normalizeEmail(email string) (string, error) {
	trimmed := strings.TrimSpace(email)
	if trimmed == "" || len(trimmed) > maxEmailLength {
		return "", model.NewInvalidEmailError(email)
	}
	addr, err := mail.ParseAddress(trimmed)
	if err != nil || addr.Address != trimmed || addr.Name != "" {
		return "", model.NewInvalidEmailError(email)
	}
	return strings.ToLower(addr.Address), nil
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
