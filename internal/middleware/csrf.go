package middleware

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/hitoshi/codemeet/internal/model"
)

const (
	// csrfCookieName はダブルサブミット用トークンのCookie。
	// クライアントが読んでヘッダーへ複写するのでHttpOnlyにしない。
	csrfCookieName   = "csrf_token"
	csrfHeaderName   = "X-CSRF-Token"
	csrfCookieMaxAge = 86400
	csrfTokenBytes   = 32
)

// CSRFConfig はCSRFミドルウェアの設定。
// TrustedOriginを設定すると、Originヘッダー付きの変更リクエストはそのオリジンからのみ受け付ける。
// Originを送らないクライアント（サーバー間呼び出しなど）はトークン照合だけで判定する。
type CSRFConfig struct {
	CookieSecure  bool
	CookieDomain  string
	TrustedOrigin string
}

type csrfGuard struct {
	cfg CSRFConfig
}

// NewCSRFMiddleware はダブルサブミット方式のCSRF検証ミドルウェアを返す。
// GET・HEAD・OPTIONSは検証せず、Cookieが無ければ発行だけ行う。
func NewCSRFMiddleware(config CSRFConfig) func(next http.Handler) http.Handler {
	g := &csrfGuard{cfg: config}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isSafeMethod(r.Method) {
				if g.cookieToken(r) == "" {
					if _, err := g.issue(w); err != nil {
						slog.Error("failed to generate CSRF token", slog.String("error", err.Error()))
					}
				}
				next.ServeHTTP(w, r)
				return
			}

			if reason := g.reject(r); reason != "" {
				slog.Warn("CSRF validation failed",
					slog.String("reason", reason),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
				)
				WriteAPIError(w, model.NewCSRFTokenInvalidError())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// NewCSRFTokenHandler はGET /api/csrf-tokenのハンドラーを返す。
// Cookieのトークンがあればそれを、なければ新規発行したものを{"token": ...}で返す。
func NewCSRFTokenHandler(config CSRFConfig) http.Handler {
	g := &csrfGuard{cfg: config}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := g.cookieToken(r)
		if token == "" {
			var err error
			if token, err = g.issue(w); err != nil {
				slog.Error("failed to generate CSRF token", slog.String("error", err.Error()))
				WriteInternalServerError(w)
				return
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")
		if err := json.NewEncoder(w).Encode(struct {
			Token string `json:"token"`
		}{token}); err != nil {
			slog.Warn("failed to encode CSRF token", slog.String("error", err.Error()))
		}
	})
}

func (g *csrfGuard) cookieToken(r *http.Request) string {
	if c, err := r.Cookie(csrfCookieName); err == nil {
		return c.Value
	}
	return ""
}

// reject は検証失敗の理由を返す。通過なら空文字。
func (g *csrfGuard) reject(r *http.Request) string {
	if origin := r.Header.Get("Origin"); origin != "" && g.cfg.TrustedOrigin != "" && origin != g.cfg.TrustedOrigin {
		return "untrusted_origin"
	}
	cookie := g.cookieToken(r)
	if cookie == "" {
		return "missing_cookie"
	}
	header := r.Header.Get(csrfHeaderName)
	if header == "" {
		return "missing_header"
	}
	if subtle.ConstantTimeCompare([]byte(cookie), []byte(header)) != 1 {
		return "mismatch"
	}
	return ""
}

func (g *csrfGuard) issue(w http.ResponseWriter) (string, error) {
	b := make([]byte, csrfTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	token := hex.EncodeToString(b)
	http.SetCookie(w, &http.Cookie{
		Name:     csrfCookieName,
		Value:    token,
		Path:     "/",
		Domain:   g.cfg.CookieDomain,
		MaxAge:   csrfCookieMaxAge,
		Secure:   g.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	return token, nil
}

func isSafeMethod(method string) bool {
	return method == http.MethodGet || method == http.MethodHead || method == http.MethodOptions
}
