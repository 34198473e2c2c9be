package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/hitoshi/codemeet/internal/model"
)

// ErrorResponseBody はAPIエラーのJSON表現。クライアントはcodeで分岐し、
// category・actionを画面表示に使う。
type ErrorResponseBody struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

var errCodeStatus = map[string]int{
	model.ErrCodeUnauthenticated:    http.StatusUnauthorized,
	model.ErrCodeForbidden:          http.StatusForbidden,
	model.ErrCodeCSRFTokenInvalid:   http.StatusForbidden,
	model.ErrCodeInterviewerOnly:    http.StatusForbidden,
	model.ErrCodeUserNotFound:       http.StatusNotFound,
	model.ErrCodeCallNotFound:       http.StatusNotFound,
	model.ErrCodeInterviewNotFound:  http.StatusNotFound,
	model.ErrCodeCallEnded:          http.StatusGone,
	model.ErrCodeValidationFailed:   http.StatusBadRequest,
	model.ErrCodeInvalidCallType:    http.StatusBadRequest,
	model.ErrCodeInvalidStatus:      http.StatusBadRequest,
	model.ErrCodeVideoNotConfigured: http.StatusServiceUnavailable,
}

// StatusForCode はエラーコードに対応するHTTPステータスを返す。未知のコードは500。
func StatusForCode(code string) int {
	if status, ok := errCodeStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// WriteAPIError はエラーコードから導いたステータスでapiErrを書き込む。
func WriteAPIError(w http.ResponseWriter, apiErr *model.APIError) {
	WriteErrorResponse(w, StatusForCode(apiErr.Code), apiErr)
}

// WriteErrorResponse はstatusCodeを明示してapiErrを書き込む。
// エラー応答はユーザーごとに異なるためキャッシュさせない。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	h := w.Header()
	h.Set("Content-Type", "application/json")
	h.Set("Cache-Control", "no-store")
	if statusCode == http.StatusServiceUnavailable {
		h.Set("Retry-After", "30")
	}
	w.WriteHeader(statusCode)

	body := ErrorResponseBody{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Warn("failed to encode error response",
			slog.String("code", apiErr.Code),
			slog.String("error", err.Error()),
		)
	}
}

var internalError = model.APIError{
	Code:     "INTERNAL_ERROR",
	Message:  "内部エラーが発生しました。",
	Category: "system",
	Action:   "しばらく待ってから再度お試しください。",
}

// WriteInternalServerError は詳細を伏せた500応答を書き込む。原因は呼び出し側でログに残すこと。
func WriteInternalServerError(w http.ResponseWriter) {
	e := internalError
	WriteErrorResponse(w, http.StatusInternalServerError, &e)
}

func writeUnauthenticated(w http.ResponseWriter) {
	WriteAPIError(w, model.NewUnauthenticatedError())
}
