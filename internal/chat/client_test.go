package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/campusbuzz/internal/model"
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// fakeChatAPI はチャットAPIの最小限のインメモリ実装。
type fakeChatAPI struct {
	mu       sync.Mutex
	users    map[string]createUserRequest
	groups   map[string]createGroupRequest
	members  map[string][]string
	revoked  []string
	requests []string
	messages []sentMessage
}

type sentMessage struct {
	sender string
	req    sendMessageRequest
}

func newFakeChatAPI() *fakeChatAPI {
	return &fakeChatAPI{
		users:   make(map[string]createUserRequest),
		groups:  make(map[string]createGroupRequest),
		members: make(map[string][]string),
	}
}

func writeData(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{"data": data})
}

func writeErr(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{"error": map[string]string{"code": code, "message": message}})
}

func (f *fakeChatAPI) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /users", func(w http.ResponseWriter, r *http.Request) {
		writeData(w, http.StatusOK, []any{})
	})
	mux.HandleFunc("POST /users", func(w http.ResponseWriter, r *http.Request) {
		var req createUserRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeErr(w, http.StatusBadRequest, "ERR_BAD_REQUEST", err.Error())
			return
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		if _, ok := f.users[req.UID]; ok {
			writeErr(w, http.StatusConflict, CodeUIDAlreadyExists, "uid exists")
			return
		}
		f.users[req.UID] = req
		writeData(w, http.StatusOK, map[string]any{"uid": req.UID, "name": req.Name, "role": req.Role, "metadata": req.Metadata})
	})
	mux.HandleFunc("GET /users/{uid}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		u, ok := f.users[r.PathValue("uid")]
		f.mu.Unlock()
		if !ok {
			writeErr(w, http.StatusNotFound, CodeUIDNotFound, "user not found")
			return
		}
		writeData(w, http.StatusOK, map[string]any{"uid": u.UID, "name": u.Name, "role": u.Role, "metadata": u.Metadata})
	})
	mux.HandleFunc("POST /users/{uid}/auth_tokens", func(w http.ResponseWriter, r *http.Request) {
		uid := r.PathValue("uid")
		writeData(w, http.StatusOK, map[string]any{"uid": uid, "authToken": "token-" + uid})
	})
	mux.HandleFunc("DELETE /users/{uid}/auth_tokens/{token}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.revoked = append(f.revoked, r.PathValue("token"))
		f.mu.Unlock()
		writeData(w, http.StatusOK, map[string]any{"success": true})
	})
	mux.HandleFunc("POST /groups", func(w http.ResponseWriter, r *http.Request) {
		var req createGroupRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeErr(w, http.StatusBadRequest, "ERR_BAD_REQUEST", err.Error())
			return
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		if _, ok := f.groups[req.GUID]; ok {
			writeErr(w, http.StatusConflict, CodeGUIDExists, "guid exists")
			return
		}
		f.groups[req.GUID] = req
		writeData(w, http.StatusOK, map[string]any{"guid": req.GUID, "name": req.Name, "owner": req.Owner, "metadata": req.Metadata, "membersCount": 1, "hasJoined": true})
	})
	mux.HandleFunc("POST /groups/{guid}/members", func(w http.ResponseWriter, r *http.Request) {
		var req membersRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeErr(w, http.StatusBadRequest, "ERR_BAD_REQUEST", err.Error())
			return
		}
		guid := r.PathValue("guid")
		f.mu.Lock()
		defer f.mu.Unlock()
		if _, ok := f.groups[guid]; !ok {
			writeErr(w, http.StatusNotFound, CodeGUIDNotFound, "group not found")
			return
		}
		for _, uid := range req.Participants {
			for _, m := range f.members[guid] {
				if m == uid {
					writeErr(w, http.StatusConflict, CodeAlreadyJoined, "already joined")
					return
				}
			}
			f.members[guid] = append(f.members[guid], uid)
		}
		writeData(w, http.StatusOK, map[string]any{})
	})
	mux.HandleFunc("GET /groups", func(w http.ResponseWriter, r *http.Request) {
		uid := r.Header.Get("onBehalfOf")
		search := r.URL.Query().Get("searchKey")
		joinedOnly := r.URL.Query().Get("hasJoined") == "true"

		f.mu.Lock()
		defer f.mu.Unlock()
		var out []map[string]any
		for guid, g := range f.groups {
			joined := false
			for _, m := range f.members[guid] {
				if m == uid {
					joined = true
				}
			}
			if joinedOnly && !joined {
				continue
			}
			if search != "" && !strings.Contains(strings.ToLower(g.Name), strings.ToLower(search)) {
				continue
			}
			out = append(out, map[string]any{"guid": guid, "name": g.Name, "membersCount": len(f.members[guid]), "hasJoined": joined, "metadata": map[string]any{"type": g.Metadata["type"], "members_cap": 50}})
		}
		writeData(w, http.StatusOK, out)
	})

	mux.HandleFunc("POST /messages", func(w http.ResponseWriter, r *http.Request) {
		var req sendMessageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeErr(w, http.StatusBadRequest, "ERR_BAD_REQUEST", err.Error())
			return
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		switch req.ReceiverType {
		case "group":
			if _, ok := f.groups[req.Receiver]; !ok {
				writeErr(w, http.StatusNotFound, CodeGUIDNotFound, "group not found")
				return
			}
		default:
			if _, ok := f.users[req.Receiver]; !ok {
				writeErr(w, http.StatusNotFound, CodeUIDNotFound, "user not found")
				return
			}
		}
		sender := r.Header.Get("onBehalfOf")
		f.messages = append(f.messages, sentMessage{sender: sender, req: req})
		writeData(w, http.StatusOK, map[string]any{
			"id":           strconv.Itoa(len(f.messages)),
			"sender":       sender,
			"receiver":     req.Receiver,
			"receiverType": req.ReceiverType,
			"category":     req.Category,
			"type":         req.Type,
			"data":         map[string]any{"text": req.Data.Text},
			"sentAt":       1760000000,
		})
	})

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("apikey") != "key-abc" || r.Header.Get("appid") != "app-123" {
			t.Errorf("missing auth headers on %s %s", r.Method, r.URL.Path)
		}
		f.mu.Lock()
		f.requests = append(f.requests, r.Method+" "+r.URL.Path)
		f.mu.Unlock()
		mux.ServeHTTP(w, r)
	})
}

func testTransportConfig() model.TransportConfig {
	return model.TransportConfig{EndpointRegion: "us", ApplicationID: "app-123", AccessKey: "key-abc"}
}

type recordedRequest struct {
	operation string
	status    int
}

type fakeRecorder struct {
	mu      sync.Mutex
	records []recordedRequest
}

func (r *fakeRecorder) ObserveChatRequest(operation string, status int, _ time.Duration) {
	r.mu.Lock()
	r.records = append(r.records, recordedRequest{operation, status})
	r.mu.Unlock()
}

// newInitializedClient はfakeChatAPIに接続し初期化済みのClientを返す。
func newInitializedClient(t *testing.T) (*Client, *fakeChatAPI) {
	t.Helper()
	api := newFakeChatAPI()
	server := httptest.NewServer(api.handler(t))
	t.Cleanup(server.Close)

	var buf bytes.Buffer
	c := NewClient(server.Client(), newTestLogger(&buf), Options{BaseURL: server.URL, RequestsPerSecond: 1000, Burst: 100})
	if err := c.Initialize(context.Background(), testTransportConfig()); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	return c, api
}

func TestClient_BeforeInitialize_ReturnsErrNotInitialized(t *testing.T) {
	var buf bytes.Buffer
	c := NewClient(http.DefaultClient, newTestLogger(&buf), Options{})

	if _, err := c.Login(context.Background(), "u1"); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Login() error = %v, want ErrNotInitialized", err)
	}
	if _, err := c.Register(context.Background(), "u1", "User", model.RoleStudent, nil); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Register() error = %v, want ErrNotInitialized", err)
	}
}

func TestClient_Initialize_CheckFailure_LeavesClientUninitialized(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeErr(w, http.StatusUnauthorized, "ERR_APIKEY_NOT_FOUND", "invalid api key")
	}))
	defer server.Close()

	var buf bytes.Buffer
	c := NewClient(server.Client(), newTestLogger(&buf), Options{BaseURL: server.URL})

	err := c.Initialize(context.Background(), testTransportConfig())
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("Initialize() error = %v, want *Error", err)
	}
	if apiErr.StatusCode != http.StatusUnauthorized || apiErr.Code != "ERR_APIKEY_NOT_FOUND" {
		t.Errorf("error = %+v", apiErr)
	}
	if _, err := c.Login(context.Background(), "u1"); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Login() after failed init error = %v, want ErrNotInitialized", err)
	}
}

func TestClient_Initialize_BuildsRegionalEndpoint(t *testing.T) {
	var gotURL string
	transport := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		gotURL = r.URL.String()
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       ioNopCloser(`{"data":[]}`),
			Header:     make(http.Header),
		}, nil
	})

	var buf bytes.Buffer
	c := NewClient(&http.Client{Transport: transport}, newTestLogger(&buf), Options{})
	if err := c.Initialize(context.Background(), testTransportConfig()); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	want := "https://app-123.api-us.cometchat.io/v3/users?perPage=1"
	if gotURL != want {
		t.Errorf("initialize URL = %q, want %q", gotURL, want)
	}
}

func TestClient_Login_UnknownUser_NotFound(t *testing.T) {
	c, _ := newInitializedClient(t)

	_, err := c.Login(context.Background(), "ghost")
	if !IsNotFound(err) {
		t.Fatalf("Login() error = %v, want not found", err)
	}
	if _, ok := c.CurrentChatSession("ghost"); ok {
		t.Error("failed login should not create a session")
	}
}

func TestClient_Login_UIDMismatch_NoTokenNoSession(t *testing.T) {
	c, api := newInitializedClient(t)

	api.mu.Lock()
	api.users["u1"] = createUserRequest{UID: "someone-else", Name: "Other"}
	api.mu.Unlock()

	identity, err := c.Login(context.Background(), "u1")
	if !errors.Is(err, ErrIdentityMismatch) {
		t.Fatalf("Login() error = %v, want ErrIdentityMismatch", err)
	}
	if identity != nil {
		t.Errorf("identity = %+v, want nil", identity)
	}
	if _, ok := c.CurrentChatSession("u1"); ok {
		t.Error("mismatched login should not create a session")
	}

	api.mu.Lock()
	defer api.mu.Unlock()
	for _, r := range api.requests {
		if strings.HasSuffix(r, "/auth_tokens") {
			t.Errorf("auth token should not be issued, got request %q", r)
		}
	}
}

func TestClient_RegisterThenLogin(t *testing.T) {
	c, _ := newInitializedClient(t)
	ctx := context.Background()

	created, err := c.Register(ctx, "u1", "jane.doe", model.RoleStudent, map[string]string{"role": "student", "app_version": "1.0.0"})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if created.ChatID != "u1" || created.DisplayName != "jane.doe" || created.Role != model.RoleStudent {
		t.Errorf("created = %+v", created)
	}

	identity, err := c.Login(ctx, "u1")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if identity.AuthToken != "token-u1" {
		t.Errorf("AuthToken = %q, want %q", identity.AuthToken, "token-u1")
	}
	if identity.Metadata["app_version"] != "1.0.0" {
		t.Errorf("Metadata = %v", identity.Metadata)
	}

	session, ok := c.CurrentChatSession("u1")
	if !ok || session != identity {
		t.Error("login should cache the chat session")
	}
}

func TestClient_Register_Duplicate_Conflict(t *testing.T) {
	c, _ := newInitializedClient(t)
	ctx := context.Background()

	if _, err := c.Register(ctx, "u1", "A", model.RoleStudent, nil); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	_, err := c.Register(ctx, "u1", "A", model.RoleStudent, nil)
	if !IsConflict(err) {
		t.Errorf("second Register() error = %v, want conflict", err)
	}
}

func TestClient_Logout_RevokesTokenAndDropsSession(t *testing.T) {
	c, api := newInitializedClient(t)
	ctx := context.Background()

	if _, err := c.Register(ctx, "u1", "A", model.RoleStudent, nil); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if _, err := c.Login(ctx, "u1"); err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if err := c.Logout(ctx, "u1"); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}

	if _, ok := c.CurrentChatSession("u1"); ok {
		t.Error("session should be dropped after logout")
	}
	api.mu.Lock()
	revoked := append([]string(nil), api.revoked...)
	api.mu.Unlock()
	if len(revoked) != 1 || revoked[0] != "token-u1" {
		t.Errorf("revoked = %v, want [token-u1]", revoked)
	}

	// セッションがなければ何もしない
	if err := c.Logout(ctx, "u1"); err != nil {
		t.Errorf("second Logout() error = %v", err)
	}
}

func TestClient_RecordsRequests(t *testing.T) {
	api := newFakeChatAPI()
	server := httptest.NewServer(api.handler(t))
	defer server.Close()

	rec := &fakeRecorder{}
	var buf bytes.Buffer
	c := NewClient(server.Client(), newTestLogger(&buf), Options{BaseURL: server.URL, Recorder: rec})
	if err := c.Initialize(context.Background(), testTransportConfig()); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	_, _ = c.Login(context.Background(), "missing")

	want := []recordedRequest{{"initialize", 200}, {"get_user", 404}}
	if len(rec.records) != len(want) {
		t.Fatalf("records = %v, want %v", rec.records, want)
	}
	for i := range want {
		if rec.records[i] != want[i] {
			t.Errorf("records[%d] = %v, want %v", i, rec.records[i], want[i])
		}
	}
}

func TestDecodeError_NonEnvelopeBody(t *testing.T) {
	err := decodeError(http.StatusBadGateway, []byte("upstream unavailable\n"))
	if err.StatusCode != http.StatusBadGateway || err.Message != "upstream unavailable" || err.Code != "" {
		t.Errorf("decodeError() = %+v", err)
	}
	if IsNotFound(err) || IsConflict(err) {
		t.Error("502 should be neither not found nor conflict")
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func ioNopCloser(s string) *nopBody { return &nopBody{Reader: strings.NewReader(s)} }

type nopBody struct{ *strings.Reader }

func (nopBody) Close() error { return nil }
