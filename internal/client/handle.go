package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hitoshi/codemeet/internal/model"
)

// CallType はクライアントが扱う通話の名前空間。
const CallType = model.DefaultCallType

const (
	wsWriteWait = 10 * time.Second
	wsPongWait  = 60 * time.Second
	wsReadLimit = 64 << 10
)

type (
	// Participant は通話のライブ参加者。
	Participant = model.Participant
	// ParticipantSnapshot はある時点の参加者集合。
	ParticipantSnapshot = model.ParticipantSnapshot
)

// Call は通話セッションのメタデータ。
type Call struct {
	Type        string     `json:"type"`
	ID          string     `json:"id"`
	CreatedBy   string     `json:"createdBy"`
	Description string     `json:"description,omitempty"`
	StartsAt    time.Time  `json:"startsAt"`
	CreatedAt   time.Time  `json:"createdAt"`
	EndedAt     *time.Time `json:"endedAt,omitempty"`
}

// Ended は通話が終了済みかどうかを返す。
func (c *Call) Ended() bool {
	return c.EndedAt != nil
}

// CallMetadata は通話作成時に渡すメタデータ。
type CallMetadata struct {
	StartsAt    time.Time `json:"startsAt"`
	Description string    `json:"description"`
}

// Calls は子コンポーネントに渡す読み取り専用の通話操作。
// ハンドルの切断はProviderだけが行うため、Disconnectは含まない。
type Calls interface {
	User() User
	CreateCall(ctx context.Context, id string, meta CallMetadata) (*Call, error)
	GetCall(ctx context.Context, id string) (*Call, error)
	JoinCall(ctx context.Context, id string) (*Call, error)
	LeaveCall(ctx context.Context, id string) error
	EndCall(ctx context.Context, id string) (*Call, error)
	Participants(ctx context.Context, id string) ([]Participant, error)
	// WatchParticipants はスナップショットを受信するたびにfnを呼ぶ。
	// ctxの終了またはストリームのクローズで戻る。
	WatchParticipants(ctx context.Context, id string, fn func(ParticipantSnapshot)) error
}

// Handle は接続済みの通話クライアント。
type Handle interface {
	Calls
	Disconnect(ctx context.Context) error
}

// Dialer はトークンから通話ハンドルを構築する。
type Dialer interface {
	Dial(ctx context.Context, user User, cred *Credential) (Handle, error)
}

// DialerFunc は関数をDialerとして扱うアダプタ。
type DialerFunc func(ctx context.Context, user User, cred *Credential) (Handle, error)

func (f DialerFunc) Dial(ctx context.Context, user User, cred *Credential) (Handle, error) {
	return f(ctx, user, cred)
}

// HTTPDialer は /video/v1 のREST APIとWebSocketでハンドルを構築する。
type HTTPDialer struct {
	baseURL    string
	httpClient *http.Client
	wsDialer   *websocket.Dialer
}

// NewHTTPDialer はHTTPDialerを生成する。httpClientがnilの場合はDefaultHTTPClientを使う。
func NewHTTPDialer(baseURL string, httpClient *http.Client) *HTTPDialer {
	return &HTTPDialer{
		baseURL:    baseURL,
		httpClient: httpClient,
		wsDialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		},
	}
}

type connectResponse struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
	Image  string `json:"image,omitempty"`
}

// Dial はハンドシェイクでトークンを検証し、トークンのidentityがuserと一致することを確認する。
func (d *HTTPDialer) Dial(ctx context.Context, user User, cred *Credential) (Handle, error) {
	if cred == nil || cred.Token == "" {
		return nil, ErrUnauthenticated
	}
	ep, err := newEndpoint(d.baseURL, d.httpClient)
	if err != nil {
		return nil, err
	}

	h := &httpHandle{
		endpoint: ep,
		ws:       d.wsDialer,
		user:     user,
		token:    cred.Token,
		streams:  make(map[*websocket.Conn]struct{}),
	}

	var resp connectResponse
	if err := h.call(ctx, http.MethodGet, "/video/v1/connect", nil, &resp); err != nil {
		return nil, err
	}
	if resp.UserID != user.ID {
		return nil, fmt.Errorf("client: token issued for %q, expected %q", resp.UserID, user.ID)
	}
	return h, nil
}

// httpHandle はHandleのHTTP実装。
type httpHandle struct {
	endpoint
	ws    *websocket.Dialer
	user  User
	token string

	mu           sync.Mutex
	disconnected bool
	streams      map[*websocket.Conn]struct{}
}

var _ Handle = (*httpHandle)(nil)

func (h *httpHandle) User() User { return h.user }

func (h *httpHandle) closed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.disconnected
}

func (h *httpHandle) call(ctx context.Context, method, path string, in, out any) error {
	if h.closed() {
		return ErrNotReady
	}
	return h.endpoint.do(ctx, method, path, in, out, http.Header{"Authorization": {"Bearer " + h.token}})
}

func callPath(id string, suffix string) string {
	return "/video/v1/calls/" + CallType + "/" + url.PathEscape(id) + suffix
}

func (h *httpHandle) CreateCall(ctx context.Context, id string, meta CallMetadata) (*Call, error) {
	var resp struct {
		Call    Call `json:"call"`
		Created bool `json:"created"`
	}
	if err := h.call(ctx, http.MethodPut, callPath(id, ""), meta, &resp); err != nil {
		return nil, err
	}
	return &resp.Call, nil
}

func (h *httpHandle) GetCall(ctx context.Context, id string) (*Call, error) {
	var c Call
	if err := h.call(ctx, http.MethodGet, callPath(id, ""), nil, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (h *httpHandle) JoinCall(ctx context.Context, id string) (*Call, error) {
	var c Call
	if err := h.call(ctx, http.MethodPost, callPath(id, "/join"), nil, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (h *httpHandle) LeaveCall(ctx context.Context, id string) error {
	return h.call(ctx, http.MethodPost, callPath(id, "/leave"), nil, nil)
}

func (h *httpHandle) EndCall(ctx context.Context, id string) (*Call, error) {
	var c Call
	if err := h.call(ctx, http.MethodPost, callPath(id, "/end"), nil, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (h *httpHandle) Participants(ctx context.Context, id string) ([]Participant, error) {
	var resp struct {
		Participants []Participant `json:"participants"`
	}
	if err := h.call(ctx, http.MethodGet, callPath(id, "/participants"), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Participants, nil
}

// streamURL はRESTと同じエスケープ済みパスをws(s)スキームで返す。
func (h *httpHandle) streamURL(id string) string {
	scheme := "ws"
	if h.base.Scheme == "https" {
		scheme = "wss"
	}
	return scheme + strings.TrimPrefix(h.url(callPath(id, "/participants/ws")), h.base.Scheme)
}

func (h *httpHandle) WatchParticipants(ctx context.Context, id string, fn func(ParticipantSnapshot)) error {
	if h.closed() {
		return ErrNotReady
	}

	header := http.Header{"Authorization": {"Bearer " + h.token}}
	conn, resp, err := h.ws.DialContext(ctx, h.streamURL(id), header)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			apiErr := &APIError{Status: resp.StatusCode}
			_ = json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(apiErr)
			return apiErr
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &transportError{err: err}
	}
	if !h.track(conn) {
		conn.Close()
		return ErrNotReady
	}
	defer h.untrack(conn)

	stop := context.AfterFunc(ctx, func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteWait))
		conn.Close()
	})
	defer stop()

	conn.SetReadLimit(wsReadLimit)
	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPingHandler(func(data string) error {
		conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(wsWriteWait))
	})

	for {
		var snap ParticipantSnapshot
		if err := conn.ReadJSON(&snap); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) || errors.Is(err, io.EOF) {
				return nil
			}
			return &transportError{err: err}
		}
		fn(snap)
	}
}

func (h *httpHandle) track(conn *websocket.Conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.disconnected {
		return false
	}
	h.streams[conn] = struct{}{}
	return true
}

func (h *httpHandle) untrack(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.streams, conn)
	h.mu.Unlock()
	conn.Close()
}

// Disconnect は開いているストリームを閉じ、以降の呼び出しをErrNotReadyにする。2回目以降は何もしない。
func (h *httpHandle) Disconnect(ctx context.Context) error {
	h.mu.Lock()
	if h.disconnected {
		h.mu.Unlock()
		return nil
	}
	h.disconnected = true
	streams := make([]*websocket.Conn, 0, len(h.streams))
	for c := range h.streams {
		streams = append(streams, c)
	}
	h.mu.Unlock()

	var errs []error
	for _, c := range streams {
		msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "client disconnected")
		if err := c.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteWait)); err != nil && !errors.Is(err, websocket.ErrCloseSent) {
			errs = append(errs, err)
		}
		c.Close()
	}
	return errors.Join(errs...)
}

// readOnlyCalls はHandleからDisconnectを隠す。
type readOnlyCalls struct {
	h Handle
}

func (c readOnlyCalls) User() User { return c.h.User() }
func (c readOnlyCalls) CreateCall(ctx context.Context, id string, meta CallMetadata) (*Call, error) {
	return c.h.CreateCall(ctx, id, meta)
}
func (c readOnlyCalls) GetCall(ctx context.Context, id string) (*Call, error) {
	return c.h.GetCall(ctx, id)
}
func (c readOnlyCalls) JoinCall(ctx context.Context, id string) (*Call, error) {
	return c.h.JoinCall(ctx, id)
}
func (c readOnlyCalls) LeaveCall(ctx context.Context, id string) error {
	return c.h.LeaveCall(ctx, id)
}
func (c readOnlyCalls) EndCall(ctx context.Context, id string) (*Call, error) {
	return c.h.EndCall(ctx, id)
}
func (c readOnlyCalls) Participants(ctx context.Context, id string) ([]Participant, error) {
	return c.h.Participants(ctx, id)
}
func (c readOnlyCalls) WatchParticipants(ctx context.Context, id string, fn func(ParticipantSnapshot)) error {
	return c.h.WatchParticipants(ctx, id, fn)
}
