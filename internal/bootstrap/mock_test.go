package bootstrap

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/campusbuzz/internal/model"
)

// --- モック定義 ---

type mockTransport struct {
	mu           sync.Mutex
	calls        int
	initializeFn func(ctx context.Context, cfg model.TransportConfig) error
}

func (m *mockTransport) Initialize(ctx context.Context, cfg model.TransportConfig) error {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.initializeFn != nil {
		return m.initializeFn(ctx, cfg)
	}
	return nil
}

func (m *mockTransport) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type registerCall struct {
	chatID      string
	displayName string
	role        model.RoleTag
	metadata    map[string]string
}

// mockChatService は呼び出し順を記録するChatServiceのモック。
type mockChatService struct {
	mu        sync.Mutex
	calls     []string
	registers []registerCall
	logins    int

	// loginFn の attempt は1始まりの通算ログイン回数
	loginFn              func(ctx context.Context, chatID string, attempt int) (*model.ChatIdentity, error)
	registerFn           func(ctx context.Context, chatID, displayName string, role model.RoleTag, metadata map[string]string) (*model.ChatIdentity, error)
	currentChatSessionFn func(chatID string) (*model.ChatIdentity, bool)
	logoutFn             func(ctx context.Context, chatID string) error
}

func (m *mockChatService) Login(ctx context.Context, chatID string) (*model.ChatIdentity, error) {
	m.mu.Lock()
	m.calls = append(m.calls, "login")
	m.logins++
	attempt := m.logins
	m.mu.Unlock()
	if m.loginFn != nil {
		return m.loginFn(ctx, chatID, attempt)
	}
	return &model.ChatIdentity{ChatID: chatID}, nil
}

func (m *mockChatService) Register(ctx context.Context, chatID, displayName string, role model.RoleTag, metadata map[string]string) (*model.ChatIdentity, error) {
	m.mu.Lock()
	m.calls = append(m.calls, "register")
	m.registers = append(m.registers, registerCall{chatID: chatID, displayName: displayName, role: role, metadata: metadata})
	m.mu.Unlock()
	if m.registerFn != nil {
		return m.registerFn(ctx, chatID, displayName, role, metadata)
	}
	return &model.ChatIdentity{ChatID: chatID, DisplayName: displayName, Role: role, Metadata: metadata}, nil
}

func (m *mockChatService) CurrentChatSession(chatID string) (*model.ChatIdentity, bool) {
	if m.currentChatSessionFn != nil {
		return m.currentChatSessionFn(chatID)
	}
	return nil, false
}

func (m *mockChatService) Logout(ctx context.Context, chatID string) error {
	m.mu.Lock()
	m.calls = append(m.calls, "logout")
	m.mu.Unlock()
	if m.logoutFn != nil {
		return m.logoutFn(ctx, chatID)
	}
	return nil
}

func (m *mockChatService) callOrder() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *mockChatService) registerCalls() []registerCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]registerCall(nil), m.registers...)
}

// recordingObserver はObserverへの通知を記録する。
type recordingObserver struct {
	mu          sync.Mutex
	transitions [][2]Phase
	finished    []error
	inits       int
	coalescedCh chan struct{}
}

func (o *recordingObserver) TransportInitialized(error) {
	o.mu.Lock()
	o.inits++
	o.mu.Unlock()
}

func (o *recordingObserver) PhaseChanged(from, to Phase) {
	o.mu.Lock()
	o.transitions = append(o.transitions, [2]Phase{from, to})
	o.mu.Unlock()
}

func (o *recordingObserver) StepCompleted(Phase, time.Duration, error) {}

func (o *recordingObserver) Finished(err error, _ int) {
	o.mu.Lock()
	o.finished = append(o.finished, err)
	o.mu.Unlock()
}

func (o *recordingObserver) Coalesced() {
	if o.coalescedCh != nil {
		o.coalescedCh <- struct{}{}
	}
}

func (o *recordingObserver) phases() [][2]Phase {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([][2]Phase(nil), o.transitions...)
}

// --- compile-time interface checks ---
var _ Transport = (*mockTransport)(nil)
var _ ChatService = (*mockChatService)(nil)
var _ ChatSessions = (*mockChatService)(nil)
var _ Observer = (*recordingObserver)(nil)

// --- ヘルパー ---

func validTransportConfig() model.TransportConfig {
	return model.TransportConfig{
		EndpointRegion: "us",
		ApplicationID:  "app-123",
		AccessKey:      "key-abc",
	}
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func newTestBridge(chat ChatService, observer Observer, cfg Config) (*Bridge, *mockTransport) {
	transport := &mockTransport{}
	if cfg.Transport == (model.TransportConfig{}) {
		cfg.Transport = validTransportConfig()
	}
	gate := NewTransportGate(transport, time.Second, observer)
	var buf bytes.Buffer
	return NewBridge(gate, chat, observer, newTestLogger(&buf), cfg), transport
}
