package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hitoshi/codemeet/internal/model"
	"github.com/hitoshi/codemeet/internal/user"
)

// UserFinder はストレージIDでディレクトリレコードを取得する。
type UserFinder interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
}

// RequireInterviewer は面接官ロールのユーザーのみ通過させるミドルウェアを返す。
// SessionMiddlewareの後に配置する。
func RequireInterviewer(users UserFinder) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := UserIDFromContext(r.Context())
			if err != nil {
				writeUnauthenticated(w)
				return
			}

			u, err := users.FindByID(r.Context(), userID)
			if err != nil {
				slog.Error("failed to resolve role",
					slog.String("user_id", userID),
					slog.String("error", err.Error()),
				)
				WriteInternalServerError(w)
				return
			}

			view := user.ResolveRole(user.LookupResult{Done: true, Record: u})
			if !view.IsInterviewer {
				WriteErrorResponse(w, http.StatusForbidden, model.NewInterviewerOnlyError())
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
