package identity

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/hitoshi/campusbuzz/internal/model"
	"github.com/hitoshi/campusbuzz/internal/repository"
)

// --- モック定義 ---

type mockUserRepo struct {
	mu               sync.Mutex
	users            map[string]*model.User
	findByEmailFn    func(ctx context.Context, email string) (*model.User, error)
	createFn         func(ctx context.Context, user *model.User) error
	updatePresenceFn func(ctx context.Context, id string, online bool, at time.Time) error
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{users: make(map[string]*model.User)}
}

func (m *mockUserRepo) FindByID(_ context.Context, id string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.users[id], nil
}

func (m *mockUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	if m.findByEmailFn != nil {
		return m.findByEmailFn(ctx, email)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, nil
}

func (m *mockUserRepo) Create(ctx context.Context, user *model.User) error {
	if m.createFn != nil {
		return m.createFn(ctx, user)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == user.Email {
			return repository.ErrDuplicateEmail
		}
	}
	m.users[user.ID] = user
	return nil
}

func (m *mockUserRepo) UpdatePresence(ctx context.Context, id string, online bool, at time.Time) error {
	if m.updatePresenceFn != nil {
		return m.updatePresenceFn(ctx, id, online, at)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		u.IsOnline = online
		u.LastActiveAt = at
	}
	return nil
}

type mockSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]*model.Session
	createFn func(ctx context.Context, session *model.Session) error
	revokeFn func(ctx context.Context, id string) (string, error)
	// users はFindAccountの結合先。newTestServiceが設定する
	users *mockUserRepo
}

func newMockSessionRepo() *mockSessionRepo {
	return &mockSessionRepo{sessions: make(map[string]*model.Session)}
}

func (m *mockSessionRepo) Create(ctx context.Context, session *model.Session) error {
	if m.createFn != nil {
		return m.createFn(ctx, session)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[session.ID] = session
	return nil
}

func (m *mockSessionRepo) FindByID(_ context.Context, id string) (*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || !s.ExpiresAt.After(time.Now()) {
		return nil, nil
	}
	return s, nil
}

func (m *mockSessionRepo) FindAccount(ctx context.Context, sessionID string) (*model.PrimaryAccount, error) {
	session, _ := m.FindByID(ctx, sessionID)
	if session == nil || m.users == nil {
		return nil, nil
	}
	user, _ := m.users.FindByID(ctx, session.UserID)
	if user == nil {
		return nil, nil
	}
	return user.Account(), nil
}

func (m *mockSessionRepo) Revoke(ctx context.Context, id string) (string, error) {
	if m.revokeFn != nil {
		return m.revokeFn(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return "", nil
	}
	delete(m.sessions, id)
	return s.UserID, nil
}

// trimSanitizer は前後の空白を除き、最大文字数で切り詰めるだけのサニタイザ。
type trimSanitizer struct{}

func (trimSanitizer) Sanitize(raw string, maxRunes int) string {
	r := []rune(strings.TrimSpace(raw))
	if len(r) > maxRunes {
		r = r[:maxRunes]
	}
	return string(r)
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func newTestService(users *mockUserRepo, sessions *mockSessionRepo) (*Service, *bytes.Buffer) {
	var buf bytes.Buffer
	if sessions.users == nil {
		sessions.users = users
	}
	svc := NewService(users, sessions, trimSanitizer{}, newTestLogger(&buf), ServiceConfig{SessionMaxAge: 3600})
	return svc, &buf
}
