package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/codemeet/internal/middleware"
	"github.com/hitoshi/codemeet/internal/model"
	"github.com/hitoshi/codemeet/internal/user"
)

// UserServiceInterface はユーザーハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	// Sync はidentityをディレクトリレコードへ冪等に同期する。
	Sync(ctx context.Context, in user.SyncInput) (*model.User, error)
	// Lookup はexternal_idでレコードを検索する。存在しない場合はnil, nilを返す。
	Lookup(ctx context.Context, externalID string) (*model.User, error)
	// GetByID はセッションのユーザーIDでレコードを取得する。
	GetByID(ctx context.Context, id string) (*model.User, error)
	// Withdraw はユーザーの退会処理を実行する。
	// ユーザーとセッションを削除する。面接記録は履歴として残す。
	Withdraw(ctx context.Context, userID string) error
}

// UserHandler はユーザー管理のHTTPハンドラー。
type UserHandler struct {
	service UserServiceInterface
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service UserServiceInterface) *UserHandler {
	return &UserHandler{
		service: service,
	}
}

// userResponse はディレクトリレコードのAPIレスポンス。
type userResponse struct {
	ID         string    `json:"id"`
	ExternalID string    `json:"externalId"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	Image      string    `json:"image,omitempty"`
	Role       string    `json:"role"`
	CreatedAt  time.Time `json:"createdAt"`
}

// syncRequest はディレクトリ同期リクエストのボディ。
type syncRequest struct {
	ExternalID string `json:"externalId"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Image      string `json:"image"`
}

func toUserResponse(u *model.User) userResponse {
	return userResponse{
		ID:         u.ID,
		ExternalID: u.ExternalID,
		Name:       u.Name,
		Email:      u.Email,
		Image:      u.Image,
		Role:       string(u.Role),
		CreatedAt:  u.CreatedAt,
	}
}

// userGetter はセッションのユーザーIDでレコードを取得する。
type userGetter interface {
	GetByID(ctx context.Context, id string) (*model.User, error)
}

// currentUser はセッションのユーザーIDからディレクトリレコードを取得する。
// 失敗時はレスポンスを書き込みnilを返す。
func currentUser(w http.ResponseWriter, r *http.Request, users userGetter) *model.User {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthenticated(w)
		return nil
	}
	u, err := users.GetByID(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return nil
	}
	return u
}

// Sync はログイン中のidentityをディレクトリへ同期する。
// POST /api/users/sync
func (h *UserHandler) Sync(w http.ResponseWriter, r *http.Request) {
	me := currentUser(w, r, h.service)
	if me == nil {
		return
	}

	var req syncRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	// 他人のidentityを同期させない
	if req.ExternalID != me.ExternalID {
		slog.Warn("directory sync identity mismatch",
			slog.String("operation", "directory_sync"),
			slog.String("external_id", me.ExternalID),
		)
		writeAPIErrorResponse(w, http.StatusForbidden, model.NewForbiddenError("他のユーザーのレコードは同期できません"))
		return
	}

	u, err := h.service.Sync(r.Context(), user.SyncInput{
		ExternalID: req.ExternalID,
		Name:       req.Name,
		Email:      req.Email,
		Image:      req.Image,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"id": u.ID})
}

// ByExternalID はexternal_idでレコードを返す。存在しない場合はnullを返す。
// GET /api/users/by-external/{externalId}
func (h *UserHandler) ByExternalID(w http.ResponseWriter, r *http.Request) {
	u, err := h.service.Lookup(r.Context(), chi.URLParam(r, "externalId"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if u == nil {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(u))
}

// MyRole はログインユーザーのロール判定を返す。
// GET /api/users/me/role
func (h *UserHandler) MyRole(w http.ResponseWriter, r *http.Request) {
	me := currentUser(w, r, h.service)
	if me == nil {
		return
	}
	writeJSON(w, http.StatusOK, user.ResolveRole(user.LookupResult{Done: true, Record: me}))
}

// Withdraw はユーザーの退会処理を実行する。
// DELETE /api/users/me
func (h *UserHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthenticated(w)
		return
	}

	if err := h.service.Withdraw(r.Context(), userID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
