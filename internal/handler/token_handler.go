package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/hitoshi/codemeet/internal/calltoken"
)

// TokenIssuer はビデオ通話用トークンを発行する。
type TokenIssuer interface {
	Issue(ctx context.Context) (*calltoken.Credential, error)
}

// TokenHandler はビデオ通話トークンのHTTPハンドラー。
type TokenHandler struct {
	issuer TokenIssuer
}

// NewTokenHandler はTokenHandlerを生成する。
func NewTokenHandler(issuer TokenIssuer) *TokenHandler {
	return &TokenHandler{issuer: issuer}
}

// Issue はログインユーザーに紐づくトークンを発行する。
// POST /api/video/token
func (h *TokenHandler) Issue(w http.ResponseWriter, r *http.Request) {
	cred, err := h.issuer.Issue(r.Context())
	if err != nil {
		if errors.Is(err, calltoken.ErrUnauthenticated) {
			writeUnauthenticated(w)
			return
		}
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, cred)
}
