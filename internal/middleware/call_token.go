package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/hitoshi/codemeet/internal/calltoken"
	"github.com/hitoshi/codemeet/internal/model"
)

var callClaimsContextKey = contextKey("call_claims")

// CallTokenVerifier はビデオトークンの検証インターフェース。
type CallTokenVerifier interface {
	Verify(token string) (*calltoken.Claims, error)
}

// NewCallTokenMiddleware はAuthorization: Bearer のビデオトークンを検証し、
// クレームをコンテキストに注入するミドルウェアを返す。
// WebSocketのハンドシェイクではヘッダーを付けられないクライアント向けに
// access_token クエリパラメータも受け付ける。
func NewCallTokenMiddleware(verifier CallTokenVerifier) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				writeUnauthenticated(w)
				return
			}

			claims, err := verifier.Verify(token)
			if err != nil {
				apiErr := model.NewUnauthenticatedError()
				if errors.Is(err, calltoken.ErrTokenExpired) {
					apiErr.Message = "ビデオトークンの有効期限が切れています。"
					apiErr.Action = "トークンを再取得してください。"
				}
				WriteErrorResponse(w, http.StatusUnauthorized, apiErr)
				return
			}

			noteExternalID(r.Context(), claims.Subject)
			ctx := context.WithValue(r.Context(), callClaimsContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// CallClaimsFromContext はビデオトークンのクレームを取得する。
func CallClaimsFromContext(ctx context.Context) (*calltoken.Claims, bool) {
	claims, ok := ctx.Value(callClaimsContextKey).(*calltoken.Claims)
	return claims, ok && claims != nil
}

// ContextWithCallClaims はコンテキストにクレームを注入する。テスト用。
func ContextWithCallClaims(ctx context.Context, claims *calltoken.Claims) context.Context {
	return context.WithValue(ctx, callClaimsContextKey, claims)
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return r.URL.Query().Get("access_token")
}
