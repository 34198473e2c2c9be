package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/hitoshi/codemeet/internal/call"
	"github.com/hitoshi/codemeet/internal/middleware"
	"github.com/hitoshi/codemeet/internal/model"
)

const (
	// 書き込みのタイムアウト。
	wsWriteWait = 10 * time.Second
	// pongの待ち時間。
	wsPongWait = 60 * time.Second
	// pingの送信間隔。wsPongWaitより短くする。
	wsPingPeriod = (wsPongWait * 9) / 10
	// クライアントから受け取るメッセージの上限。
	wsReadLimit = 512
)

// CallServiceInterface は通話ハンドラーが必要とするサービスインターフェース。
type CallServiceInterface interface {
	GetOrCreate(ctx context.Context, caller call.Caller, callType, id string, meta model.CallMetadata) (*model.Call, bool, error)
	Get(ctx context.Context, callType, id string) (*model.Call, error)
	Join(ctx context.Context, caller call.Caller, callType, id string) (*model.Call, error)
	Leave(ctx context.Context, caller call.Caller, callType, id string) error
	End(ctx context.Context, caller call.Caller, callType, id string) (*model.Call, error)
	Participants(ctx context.Context, callType, id string) ([]model.Participant, error)
	Snapshot(ctx context.Context, callType, id string) (model.ParticipantSnapshot, error)
	Subscribe(ctx context.Context, callType, id string) (<-chan model.ParticipantSnapshot, error)
}

// CallHandler はビデオ基盤API（/video/v1）のHTTPハンドラー。
type CallHandler struct {
	service  CallServiceInterface
	upgrader websocket.Upgrader
}

// NewCallHandler はCallHandlerを生成する。
// allowedOriginが空でなければ、ブラウザからのWebSocket接続はそのOriginのみ許可する。
func NewCallHandler(service CallServiceInterface, allowedOrigin string) *CallHandler {
	return &CallHandler{
		service: service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				// ネイティブクライアントはOriginを送らない
				return origin == "" || allowedOrigin == "" || origin == allowedOrigin
			},
		},
	}
}

// callResponse は通話セッションのAPIレスポンス。
type callResponse struct {
	Type        string     `json:"type"`
	ID          string     `json:"id"`
	CreatedBy   string     `json:"createdBy"`
	Description string     `json:"description,omitempty"`
	StartsAt    time.Time  `json:"startsAt"`
	CreatedAt   time.Time  `json:"createdAt"`
	EndedAt     *time.Time `json:"endedAt,omitempty"`
}

// upsertCallRequest は通話作成リクエストのボディ。
type upsertCallRequest struct {
	StartsAt    time.Time `json:"startsAt"`
	Description string    `json:"description"`
}

type upsertCallResponse struct {
	Call    callResponse `json:"call"`
	Created bool         `json:"created"`
}

type connectResponse struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
	Image  string `json:"image,omitempty"`
}

func toCallResponse(c *model.Call) callResponse {
	return callResponse{
		Type:        c.Type,
		ID:          c.ID,
		CreatedBy:   c.CreatedBy,
		Description: c.Description,
		StartsAt:    c.StartsAt,
		CreatedAt:   c.CreatedAt,
		EndedAt:     c.EndedAt,
	}
}

// callerFromRequest はトークンのクレームから呼び出し元を組み立てる。
func callerFromRequest(r *http.Request) (call.Caller, bool) {
	claims, ok := middleware.CallClaimsFromContext(r.Context())
	if !ok {
		return call.Caller{}, false
	}
	return call.Caller{ExternalID: claims.Subject, Name: claims.Name, Image: claims.Image}, true
}

// Connect はトークンを検証し接続元のidentityを返すハンドシェイク。
// GET /video/v1/connect
func (h *CallHandler) Connect(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromRequest(r)
	if !ok {
		writeUnauthenticated(w)
		return
	}
	writeJSON(w, http.StatusOK, connectResponse{UserID: caller.ExternalID, Name: caller.Name, Image: caller.Image})
}

// Upsert は通話を冪等に作成する。既存の場合はメタデータを変更せず返す。
// PUT /video/v1/calls/{type}/{id}
func (h *CallHandler) Upsert(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromRequest(r)
	if !ok {
		writeUnauthenticated(w)
		return
	}

	var req upsertCallRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	c, created, err := h.service.GetOrCreate(r.Context(), caller, chi.URLParam(r, "type"), chi.URLParam(r, "id"), model.CallMetadata{
		StartsAt:    req.StartsAt,
		Description: req.Description,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, upsertCallResponse{Call: toCallResponse(c), Created: created})
}

// Get は通話を取得する。終了済みの通話はendedAtを含む。
// GET /video/v1/calls/{type}/{id}
func (h *CallHandler) Get(w http.ResponseWriter, r *http.Request) {
	c, err := h.service.Get(r.Context(), chi.URLParam(r, "type"), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCallResponse(c))
}

// Join は呼び出し元を通話のメンバーに加える。
// POST /video/v1/calls/{type}/{id}/join
func (h *CallHandler) Join(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromRequest(r)
	if !ok {
		writeUnauthenticated(w)
		return
	}
	c, err := h.service.Join(r.Context(), caller, chi.URLParam(r, "type"), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCallResponse(c))
}

// Leave は呼び出し元を通話から退出させる。
// POST /video/v1/calls/{type}/{id}/leave
func (h *CallHandler) Leave(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromRequest(r)
	if !ok {
		writeUnauthenticated(w)
		return
	}
	if err := h.service.Leave(r.Context(), caller, chi.URLParam(r, "type"), chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// End は通話を終了する。作成者のみ実行できる。
// POST /video/v1/calls/{type}/{id}/end
func (h *CallHandler) End(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromRequest(r)
	if !ok {
		writeUnauthenticated(w)
		return
	}
	c, err := h.service.End(r.Context(), caller, chi.URLParam(r, "type"), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCallResponse(c))
}

// Participants はライブ参加者を返す。
// GET /video/v1/calls/{type}/{id}/participants
func (h *CallHandler) Participants(w http.ResponseWriter, r *http.Request) {
	ps, err := h.service.Participants(r.Context(), chi.URLParam(r, "type"), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"participants": ps})
}

// ParticipantsStream はWebSocketで参加者スナップショットをプッシュする。
// 接続直後に現在のスナップショットを送り、以降は変更のたびに送る。通話終了で接続を閉じる。
// GET /video/v1/calls/{type}/{id}/participants/ws
func (h *CallHandler) ParticipantsStream(w http.ResponseWriter, r *http.Request) {
	callType, id := chi.URLParam(r, "type"), chi.URLParam(r, "id")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// 取りこぼしを防ぐため、初回スナップショットより先に購読する
	updates, err := h.service.Subscribe(ctx, callType, id)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	initial, err := h.service.Snapshot(ctx, callType, id)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgradeがエラーレスポンスを書き込み済み
		slog.Warn("websocket upgrade failed",
			slog.String("call_id", id),
			slog.String("error", err.Error()),
		)
		return
	}
	defer ws.Close()

	go readPump(ws, cancel)

	if err := writeSnapshot(ws, initial); err != nil || initial.Ended {
		closeStream(ws, "call ended")
		return
	}

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-updates:
			if !ok {
				closeStream(ws, "stream closed")
				return
			}
			if err := writeSnapshot(ws, snap); err != nil {
				logStreamError(id, err)
				return
			}
			if snap.Ended {
				closeStream(ws, "call ended")
				return
			}
		case <-ticker.C:
			ws.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				logStreamError(id, err)
				return
			}
		}
	}
}

// readPump はクライアントからのメッセージを読み捨て、切断を検知したらcancelを呼ぶ。
func readPump(ws *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()

	ws.SetReadLimit(wsReadLimit)
	ws.SetReadDeadline(time.Now().Add(wsPongWait))
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			return
		}
	}
}

func writeSnapshot(ws *websocket.Conn, snap model.ParticipantSnapshot) error {
	ws.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return ws.WriteJSON(snap)
}

func closeStream(ws *websocket.Conn, reason string) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
	ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteWait))
}

func logStreamError(callID string, err error) {
	if errors.Is(err, io.EOF) || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return
	}
	slog.Warn("participant stream write failed",
		slog.String("call_id", callID),
		slog.String("error", err.Error()),
	)
}
