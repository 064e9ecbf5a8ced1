// Package chat はチャットサービス（CometChat互換REST API）のクライアントを提供する。
// ユーザーの作成・ログイン・ログアウトと、キャンパスグループの操作を含む。
package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/campusbuzz/internal/model"
)

const (
	// endpointFormat はアプリIDとリージョンからAPIのベースURLを組み立てる書式。
	endpointFormat = "https://%s.api-%s.cometchat.io/v3"
	// maxResponseSize はレスポンスボディの最大読み取りサイズ（1MB）。
	maxResponseSize = 1 << 20

	defaultRequestsPerSecond = 10
	defaultBurst             = 5
)

// Recorder はAPI呼び出しの結果を記録するインターフェース。metrics.Collectorが実装する。
type Recorder interface {
	ObserveChatRequest(operation string, status int, elapsed time.Duration)
}

// Options はClientの設定。
type Options struct {
	// BaseURL が空でない場合、リージョンから組み立てたURLの代わりに使用する。
	BaseURL           string
	RequestsPerSecond float64
	Burst             int
	Recorder          Recorder
}

// Client はチャットAPIのクライアント。
// Initializeが成功するまで他の操作はErrNotInitializedを返す。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	limiter    *rate.Limiter
	recorder   Recorder
	baseURL    string

	mu       sync.RWMutex
	endpoint string
	appID    string
	apiKey   string
	sessions map[string]*model.ChatIdentity
}

// NewClient はClientの新しいインスタンスを生成する。
func NewClient(httpClient *http.Client, logger *slog.Logger, opts Options) *Client {
	rps := opts.RequestsPerSecond
	if rps <= 0 {
		rps = defaultRequestsPerSecond
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = defaultBurst
	}
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		limiter:    rate.NewLimiter(rate.Limit(rps), burst),
		recorder:   opts.Recorder,
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		sessions:   make(map[string]*model.ChatIdentity),
	}
}

// Initialize は接続先を確定し、疎通確認のためユーザー一覧を1件取得する。
// 失敗した場合、クライアントの状態は変更しない。
func (c *Client) Initialize(ctx context.Context, cfg model.TransportConfig) error {
	endpoint := c.baseURL
	if endpoint == "" {
		endpoint = fmt.Sprintf(endpointFormat, url.PathEscape(cfg.ApplicationID), url.PathEscape(cfg.EndpointRegion))
	}

	check := target{endpoint: endpoint, appID: cfg.ApplicationID, apiKey: cfg.AccessKey}
	var users []userResponse
	if err := c.do(ctx, check, "initialize", http.MethodGet, "/users?perPage=1", "", nil, &users); err != nil {
		return err
	}

	c.mu.Lock()
	c.endpoint = endpoint
	c.appID = cfg.ApplicationID
	c.apiKey = cfg.AccessKey
	c.mu.Unlock()

	c.logger.Info("chat transport initialized",
		slog.String("region", cfg.EndpointRegion),
		slog.String("app_id", cfg.ApplicationID),
	)
	return nil
}

// Login はチャットユーザーの存在を確認し、認証トークンを発行する。
// 成功したセッションはchatIDごとに保持され、CurrentChatSessionで参照できる。
// 返されたユーザーのuidがchatIDと一致しない場合はトークンを発行せずErrIdentityMismatchを返す。
func (c *Client) Login(ctx context.Context, chatID string) (*model.ChatIdentity, error) {
	t, err := c.target()
	if err != nil {
		return nil, err
	}

	var user userResponse
	if err := c.do(ctx, t, "get_user", http.MethodGet, "/users/"+url.PathEscape(chatID), "", nil, &user); err != nil {
		return nil, err
	}
	if user.UID != chatID {
		c.logger.Warn("chat user uid mismatch",
			slog.String("chat_id", chatID),
			slog.String("returned_uid", user.UID),
		)
		return nil, fmt.Errorf("%w: requested %q, got %q", ErrIdentityMismatch, chatID, user.UID)
	}

	var token authTokenResponse
	if err := c.do(ctx, t, "create_auth_token", http.MethodPost, "/users/"+url.PathEscape(chatID)+"/auth_tokens", "", struct{}{}, &token); err != nil {
		return nil, err
	}

	identity := user.identity()
	identity.AuthToken = token.AuthToken

	c.mu.Lock()
	c.sessions[chatID] = identity
	c.mu.Unlock()

	return identity, nil
}

// Register はチャットユーザーを作成する。作成のみ行い、ログインはしない。
func (c *Client) Register(ctx context.Context, chatID, displayName string, role model.RoleTag, metadata map[string]string) (*model.ChatIdentity, error) {
	t, err := c.target()
	if err != nil {
		return nil, err
	}

	body := createUserRequest{
		UID:      chatID,
		Name:     displayName,
		Role:     string(role),
		Metadata: metadata,
	}
	var user userResponse
	if err := c.do(ctx, t, "create_user", http.MethodPost, "/users", "", body, &user); err != nil {
		return nil, err
	}

	c.logger.Info("chat user created", slog.String("chat_id", chatID))
	return user.identity(), nil
}

// Logout は認証トークンを失効させ、保持しているセッションを破棄する。
// セッションがない場合は何もしない。
func (c *Client) Logout(ctx context.Context, chatID string) error {
	c.mu.Lock()
	session, ok := c.sessions[chatID]
	delete(c.sessions, chatID)
	c.mu.Unlock()
	if !ok || session.AuthToken == "" {
		return nil
	}

	t, err := c.target()
	if err != nil {
		return err
	}
	path := "/users/" + url.PathEscape(chatID) + "/auth_tokens/" + url.PathEscape(session.AuthToken)
	return c.do(ctx, t, "revoke_auth_token", http.MethodDelete, path, "", nil, nil)
}

// CurrentChatSession はchatIDのログイン済みセッションを返す。
func (c *Client) CurrentChatSession(chatID string) (*model.ChatIdentity, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	session, ok := c.sessions[chatID]
	return session, ok
}

// target はリクエストの送信先と認証情報。
type target struct {
	endpoint string
	appID    string
	apiKey   string
}

func (c *Client) target() (target, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.endpoint == "" {
		return target{}, ErrNotInitialized
	}
	return target{endpoint: c.endpoint, appID: c.appID, apiKey: c.apiKey}, nil
}

// do はリクエストを送信し、成功レスポンスのdataをoutにデコードする。
// onBehalfOfが空でない場合はそのユーザーとして操作する。
func (c *Client) do(ctx context.Context, t target, operation, method, path, onBehalfOf string, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("chat api rate limiter: %w", err)
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("リクエストボディのエンコードに失敗しました: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, t.endpoint+path, reader)
	if err != nil {
		return fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("apikey", t.apiKey)
	req.Header.Set("appid", t.appID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if onBehalfOf != "" {
		req.Header.Set("onBehalfOf", onBehalfOf)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.observe(operation, 0, start)
		c.logger.Error("chat api request failed",
			slog.String("operation", operation),
			slog.String("error", err.Error()),
		)
		return err
	}
	defer resp.Body.Close()
	c.observe(operation, resp.StatusCode, start)

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := decodeError(resp.StatusCode, raw)
		c.logger.Warn("chat api returned error status",
			slog.String("operation", operation),
			slog.Int("http_status", resp.StatusCode),
			slog.String("code", apiErr.Code),
		)
		return apiErr
	}

	if out == nil {
		return nil
	}
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
	}
	if len(envelope.Data) == 0 {
		return fmt.Errorf("chat api %s: response has no data", operation)
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
	}
	return nil
}

func (c *Client) observe(operation string, status int, start time.Time) {
	if c.recorder != nil {
		c.recorder.ObserveChatRequest(operation, status, time.Since(start))
	}
}

// decodeError はエラーレスポンスを*Errorに変換する。形式が異なる場合はボディをメッセージとする。
func decodeError(status int, raw []byte) *Error {
	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil && (envelope.Error.Code != "" || envelope.Error.Message != "") {
		return &Error{StatusCode: status, Code: envelope.Error.Code, Message: envelope.Error.Message}
	}
	return &Error{StatusCode: status, Message: strings.TrimSpace(string(raw))}
}

// --- ワイヤフォーマット ---

type createUserRequest struct {
	UID      string            `json:"uid"`
	Name     string            `json:"name"`
	Role     string            `json:"role,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type userResponse struct {
	UID      string         `json:"uid"`
	Name     string         `json:"name"`
	Role     string         `json:"role"`
	Metadata map[string]any `json:"metadata"`
	Status   string         `json:"status"`
}

func (u userResponse) identity() *model.ChatIdentity {
	return &model.ChatIdentity{
		ChatID:      u.UID,
		DisplayName: u.Name,
		Role:        model.RoleTag(u.Role),
		Metadata:    stringMap(u.Metadata),
	}
}

// stringMap はメタデータの値を文字列に変換する。他のクライアントが数値や真偽値を書き込む場合がある。
func stringMap(m map[string]any) map[string]string {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		if s, ok := v.(string); ok {
			out[k] = s
			continue
		}
		out[k] = fmt.Sprint(v)
	}
	return out
}

type authTokenResponse struct {
	UID       string `json:"uid"`
	AuthToken string `json:"authToken"`
}
