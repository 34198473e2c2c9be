// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/codemeet/internal/model"
)

// SessionCookieName はWebセッションIDを保持するCookie名。
const SessionCookieName = "session_id"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var userIDContextKey = contextKey("user_id")

// ErrNoUserID はコンテキストにセッションのユーザーIDがないことを表す。
var ErrNoUserID = errors.New("middleware: no user id in context")

// SessionFinder はセッションの検索に必要なインターフェース。
// repository.SessionRepositoryの部分集合として定義する。
type SessionFinder interface {
	FindByID(ctx context.Context, id string) (*model.Session, error)
}

// SessionOption はセッションミドルウェアの設定を変更する。
type SessionOption func(*sessionAuth)

// WithSessionClock は有効期限判定に使う時計を差し替える。
func WithSessionClock(now func() time.Time) SessionOption {
	return func(a *sessionAuth) { a.now = now }
}

type sessionAuth struct {
	finder SessionFinder
	now    func() time.Time
}

// NewSessionMiddleware はsession_id Cookieを検証し、ユーザーのストレージIDを
// コンテキストに注入するミドルウェアを返す。
// Cookieが無いか無効なら401。失効済みCookieはブラウザ側からも消す。
func NewSessionMiddleware(finder SessionFinder, opts ...SessionOption) func(next http.Handler) http.Handler {
	a := &sessionAuth{finder: finder, now: time.Now}
	for _, opt := range opts {
		opt(a)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, stale := a.authenticate(r)
			if userID == "" {
				if stale {
					clearSessionCookie(w)
				}
				writeUnauthenticated(w)
				return
			}
			noteUserID(r.Context(), userID)
			next.ServeHTTP(w, r.WithContext(ContextWithUserID(r.Context(), userID)))
		})
	}
}

// authenticate は有効なセッションのユーザーIDを返す。
// staleはCookieが存在するが対応するセッションが無効であることを示す。
func (a *sessionAuth) authenticate(r *http.Request) (userID string, stale bool) {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" {
		return "", false
	}

	session, err := a.finder.FindByID(r.Context(), cookie.Value)
	if err != nil {
		// ストア障害ではCookieを消さない。復旧後にそのまま使える。
		slog.Error("failed to find session", slog.String("error", err.Error()))
		return "", false
	}
	if session == nil || session.UserID == "" || !session.ExpiresAt.After(a.now()) {
		return "", true
	}
	return session.UserID, false
}

func clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// UserIDFromContext はセッションミドルウェアが注入したストレージIDを返す。
func UserIDFromContext(ctx context.Context) (string, error) {
	if userID, ok := ctx.Value(userIDContextKey).(string); ok && userID != "" {
		return userID, nil
	}
	return "", ErrNoUserID
}

// ContextWithUserID はctxにユーザーのストレージIDを持たせる。
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDContextKey, userID)
}
