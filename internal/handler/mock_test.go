package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/campusbuzz/internal/bootstrap"
	"github.com/hitoshi/campusbuzz/internal/bulletin"
	"github.com/hitoshi/campusbuzz/internal/campus"
	"github.com/hitoshi/campusbuzz/internal/middleware"
	"github.com/hitoshi/campusbuzz/internal/model"
)

// --- モック定義 ---

// mockLauncher はSessionLauncherとAppLauncherのモック実装。
type mockLauncher struct {
	signInFn  func(ctx context.Context, email, password string) (*bootstrap.SessionResult, error)
	signUpFn  func(ctx context.Context, email, password, displayName string) (*bootstrap.SessionResult, error)
	signOutFn func(ctx context.Context, sessionID string) error
	launchFn  func(ctx context.Context, sessionID string) (*bootstrap.LaunchResult, error)

	signOutCalls []string
}

func (m *mockLauncher) SignIn(ctx context.Context, email, password string) (*bootstrap.SessionResult, error) {
	if m.signInFn != nil {
		return m.signInFn(ctx, email, password)
	}
	return nil, model.NewInvalidCredentialsError()
}

func (m *mockLauncher) SignUp(ctx context.Context, email, password, displayName string) (*bootstrap.SessionResult, error) {
	if m.signUpFn != nil {
		return m.signUpFn(ctx, email, password, displayName)
	}
	return nil, model.NewEmailAlreadyInUseError()
}

func (m *mockLauncher) SignOut(ctx context.Context, sessionID string) error {
	m.signOutCalls = append(m.signOutCalls, sessionID)
	if m.signOutFn != nil {
		return m.signOutFn(ctx, sessionID)
	}
	return nil
}

func (m *mockLauncher) Launch(ctx context.Context, sessionID string) (*bootstrap.LaunchResult, error) {
	if m.launchFn != nil {
		return m.launchFn(ctx, sessionID)
	}
	return &bootstrap.LaunchResult{Route: bootstrap.RouteAuth}, nil
}

// mockIdentity はProfileReaderとAccountResolverのモック実装。
type mockIdentity struct {
	profileFn        func(ctx context.Context, userID string) (*model.User, error)
	currentSessionFn func(ctx context.Context, sessionID string) (*model.PrimaryAccount, error)
}

func (m *mockIdentity) Profile(ctx context.Context, userID string) (*model.User, error) {
	if m.profileFn != nil {
		return m.profileFn(ctx, userID)
	}
	return nil, model.NewUserNotFoundError()
}

func (m *mockIdentity) CurrentSession(ctx context.Context, sessionID string) (*model.PrimaryAccount, error) {
	if m.currentSessionFn != nil {
		return m.currentSessionFn(ctx, sessionID)
	}
	return nil, nil
}

// mockAuthenticator はChatAuthenticatorのモック実装。
type mockAuthenticator struct {
	authenticateFn func(ctx context.Context, account model.PrimaryAccount) (*model.ChatIdentity, error)
}

func (m *mockAuthenticator) Authenticate(ctx context.Context, account model.PrimaryAccount) (*model.ChatIdentity, error) {
	if m.authenticateFn != nil {
		return m.authenticateFn(ctx, account)
	}
	return &model.ChatIdentity{ChatID: account.ID, DisplayName: account.DisplayName, Role: model.RoleStudent}, nil
}

// mockGroupService はGroupServiceInterfaceのモック実装。
type mockGroupService struct {
	createGroupFn       func(ctx context.Context, ownerID string, in campus.CreateGroupInput) (*model.Group, error)
	joinGroupFn         func(ctx context.Context, userID, guid string) error
	joinCommonGroupsFn  func(ctx context.Context, userID, college, semester, course string) ([]string, error)
	searchGroupsFn      func(ctx context.Context, userID, query string) ([]*model.Group, error)
	listJoinedGroupsFn  func(ctx context.Context, userID string) ([]*model.Group, error)
	listCollegeGroupsFn func(ctx context.Context, college string, groupType model.GroupType) ([]*model.GroupMetadata, error)
	addMembersFn        func(ctx context.Context, actorID, guid string, memberIDs []string) error
}

func (m *mockGroupService) CreateGroup(ctx context.Context, ownerID string, in campus.CreateGroupInput) (*model.Group, error) {
	if m.createGroupFn != nil {
		return m.createGroupFn(ctx, ownerID, in)
	}
	return &model.Group{GUID: campus.GroupGUID(in.College, in.Type, in.Name), Name: in.Name, Owner: ownerID}, nil
}

func (m *mockGroupService) JoinGroup(ctx context.Context, userID, guid string) error {
	if m.joinGroupFn != nil {
		return m.joinGroupFn(ctx, userID, guid)
	}
	return nil
}

func (m *mockGroupService) JoinCommonGroups(ctx context.Context, userID, college, semester, course string) ([]string, error) {
	if m.joinCommonGroupsFn != nil {
		return m.joinCommonGroupsFn(ctx, userID, college, semester, course)
	}
	return nil, nil
}

func (m *mockGroupService) SearchGroups(ctx context.Context, userID, query string) ([]*model.Group, error) {
	if m.searchGroupsFn != nil {
		return m.searchGroupsFn(ctx, userID, query)
	}
	return nil, nil
}

func (m *mockGroupService) ListJoinedGroups(ctx context.Context, userID string) ([]*model.Group, error) {
	if m.listJoinedGroupsFn != nil {
		return m.listJoinedGroupsFn(ctx, userID)
	}
	return nil, nil
}

func (m *mockGroupService) ListCollegeGroups(ctx context.Context, college string, groupType model.GroupType) ([]*model.GroupMetadata, error) {
	if m.listCollegeGroupsFn != nil {
		return m.listCollegeGroupsFn(ctx, college, groupType)
	}
	return nil, nil
}

func (m *mockGroupService) AddMembers(ctx context.Context, actorID, guid string, memberIDs []string) error {
	if m.addMembersFn != nil {
		return m.addMembersFn(ctx, actorID, guid, memberIDs)
	}
	return nil
}

// mockBulletinService はBulletinServiceのモック実装。
type mockBulletinService struct {
	createEventFn        func(ctx context.Context, organizerID string, in bulletin.EventInput) (*model.Event, error)
	listEventsFn         func(ctx context.Context, viewerID string) ([]*model.Event, error)
	attendEventFn        func(ctx context.Context, userID, eventID string) (*model.Event, error)
	leaveEventFn         func(ctx context.Context, userID, eventID string) error
	createAnnouncementFn func(ctx context.Context, authorID string, in bulletin.AnnouncementInput) (*model.Announcement, error)
	listAnnouncementsFn  func(ctx context.Context, viewerID string) ([]*model.Announcement, error)
}

func (m *mockBulletinService) CreateEvent(ctx context.Context, organizerID string, in bulletin.EventInput) (*model.Event, error) {
	if m.createEventFn != nil {
		return m.createEventFn(ctx, organizerID, in)
	}
	return &model.Event{ID: "e1", Title: in.Title, StartsAt: in.StartsAt, MaxAttendees: in.MaxAttendees, OrganizerID: organizerID}, nil
}

func (m *mockBulletinService) ListEvents(ctx context.Context, viewerID string) ([]*model.Event, error) {
	if m.listEventsFn != nil {
		return m.listEventsFn(ctx, viewerID)
	}
	return nil, nil
}

func (m *mockBulletinService) AttendEvent(ctx context.Context, userID, eventID string) (*model.Event, error) {
	if m.attendEventFn != nil {
		return m.attendEventFn(ctx, userID, eventID)
	}
	return &model.Event{ID: eventID, Attendees: []string{userID}, MaxAttendees: 10, IsPublic: true}, nil
}

func (m *mockBulletinService) LeaveEvent(ctx context.Context, userID, eventID string) error {
	if m.leaveEventFn != nil {
		return m.leaveEventFn(ctx, userID, eventID)
	}
	return nil
}

func (m *mockBulletinService) CreateAnnouncement(ctx context.Context, authorID string, in bulletin.AnnouncementInput) (*model.Announcement, error) {
	if m.createAnnouncementFn != nil {
		return m.createAnnouncementFn(ctx, authorID, in)
	}
	return &model.Announcement{ID: "a1", Title: in.Title, Content: in.Content, Priority: model.PriorityMedium, AuthorID: authorID}, nil
}

func (m *mockBulletinService) ListAnnouncements(ctx context.Context, viewerID string) ([]*model.Announcement, error) {
	if m.listAnnouncementsFn != nil {
		return m.listAnnouncementsFn(ctx, viewerID)
	}
	return nil, nil
}

// mockMessageSender はMessageSenderのモック実装。
type mockMessageSender struct {
	sendTextFn func(ctx context.Context, senderID, receiverID string, receiverType model.ReceiverType, text string) (*model.TextMessage, error)
}

func (m *mockMessageSender) SendText(ctx context.Context, senderID, receiverID string, receiverType model.ReceiverType, text string) (*model.TextMessage, error) {
	if m.sendTextFn != nil {
		return m.sendTextFn(ctx, senderID, receiverID, receiverType, text)
	}
	return &model.TextMessage{ID: "1", Sender: senderID, ReceiverID: receiverID, ReceiverType: receiverType, Text: text}, nil
}

// --- テストヘルパー ---

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// withUserID はテスト用にリクエストコンテキストにユーザーIDを注入するヘルパー。
func withUserID(r *http.Request, userID string) *http.Request {
	return r.WithContext(middleware.ContextWithUserID(r.Context(), userID))
}

// withChiURLParam はテスト用にchiのURLパラメータを注入するヘルパー。
func withChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func jsonRequest(t *testing.T, method, target string, body any) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// parseAPIErrorResponse はレスポンスボディからAPIErrorレスポンスをパースするヘルパー。
func parseAPIErrorResponse(t *testing.T, w *httptest.ResponseRecorder) middleware.ErrorResponseBody {
	t.Helper()
	var body middleware.ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return body
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode response: %v (body=%s)", err, w.Body.String())
	}
}

func findResponseCookie(w *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}
