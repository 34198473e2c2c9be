package client

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/hitoshi/codemeet/internal/model"
)

// DirectorySync はidentityをサーバーのディレクトリレコードへ同期する。
type DirectorySync struct {
	session *Session
}

// NewDirectorySync はDirectorySyncを生成する。
func NewDirectorySync(session *Session) *DirectorySync {
	return &DirectorySync{session: session}
}

type syncRequest struct {
	ExternalID string `json:"externalId"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Image      string `json:"image"`
}

// Sync はidentityの最新のプロフィールでレコードをupsertし、ストレージIDを返す。
// identityが未読み込みまたは不在の間は何もせず ("", nil) を返す。
func (d *DirectorySync) Sync(ctx context.Context, id Identity) (string, error) {
	if !id.Ready() {
		return "", nil
	}

	req := syncRequest{
		ExternalID: id.ID,
		Name:       id.DisplayName(),
		Email:      id.PrimaryEmail(),
		Image:      id.ImageURL,
	}
	var resp struct {
		ID string `json:"id"`
	}
	if err := d.session.do(ctx, http.MethodPost, "/api/users/sync", req, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

// DirectoryRecord はディレクトリレコードのクライアント側表現。
type DirectoryRecord struct {
	ID         string    `json:"id"`
	ExternalID string    `json:"externalId"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	Image      string    `json:"image,omitempty"`
	Role       string    `json:"role"`
	CreatedAt  time.Time `json:"createdAt"`
}

// RoleView はロール判定結果。
type RoleView = model.RoleView

// Lookup はexternal_idでレコードを取得する。存在しない場合は (nil, nil) を返す。
func (d *DirectorySync) Lookup(ctx context.Context, externalID string) (*DirectoryRecord, error) {
	if externalID == "" {
		return nil, nil
	}
	var rec *DirectoryRecord
	if err := d.session.do(ctx, http.MethodGet, "/api/users/by-external/"+url.PathEscape(externalID), nil, &rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// MyRole はログイン中のユーザーのロール判定を返す。
func (d *DirectorySync) MyRole(ctx context.Context) (RoleView, error) {
	var view RoleView
	if err := d.session.do(ctx, http.MethodGet, "/api/users/me/role", nil, &view); err != nil {
		return RoleView{}, err
	}
	return view, nil
}
