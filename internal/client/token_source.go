package client

import (
	"context"
	"net/http"
	"time"
)

// Credential はビデオ基盤への接続に使うトークン。
type Credential struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	APIKey    string    `json:"apiKey"`
}

// TokenSource はログイン中のidentityに対するビデオトークンを取得する。
type TokenSource interface {
	Token(ctx context.Context) (*Credential, error)
}

// HTTPTokenSource はWebセッションで認証して POST /api/video/token からトークンを取得する。
type HTTPTokenSource struct {
	session *Session
}

// NewHTTPTokenSource はHTTPTokenSourceを生成する。
func NewHTTPTokenSource(session *Session) *HTTPTokenSource {
	return &HTTPTokenSource{session: session}
}

// Token はトークンを発行する。セッションが無効な場合はErrUnauthenticatedとしてerrors.Isで判定できる。
func (s *HTTPTokenSource) Token(ctx context.Context) (*Credential, error) {
	var cred Credential
	if err := s.session.do(ctx, http.MethodPost, "/api/video/token", nil, &cred); err != nil {
		return nil, err
	}
	return &cred, nil
}

// TokenSourceFunc は関数をTokenSourceとして扱うアダプタ。
type TokenSourceFunc func(ctx context.Context) (*Credential, error)

func (f TokenSourceFunc) Token(ctx context.Context) (*Credential, error) { return f(ctx) }
