package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"
)

// NewRecoveryMiddleware はハンドラ内のpanicを500応答に変換するミドルウェアを返す。
// http.ErrAbortHandlerは接続中断の合図なのでそのまま再panicする。
// 応答済み（WebSocketへ昇格済みを含む）の場合はログのみ残す。
func NewRecoveryMiddleware(logger *slog.Logger) func(next http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
			defer func() {
				v := recover()
				if v == nil {
					return
				}
				if err, ok := v.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(v)
				}

				args := []any{
					slog.Any("panic", v),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.Bool("response_started", rec.written),
					slog.String("stack", string(debug.Stack())),
				}
				if id, ok := r.Context().Value(requestIdentityKey).(*requestIdentity); ok {
					if id.userID != "" {
						args = append(args, slog.String("user_id", id.userID))
					}
					if id.externalID != "" {
						args = append(args, slog.String("external_id", id.externalID))
					}
				}
				logger.Error("panic recovered", args...)

				if !rec.written {
					WriteInternalServerError(rec)
				}
			}()
			next.ServeHTTP(rec, r)
		})
	}
}
