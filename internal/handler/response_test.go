package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/codemeet/internal/model"
)

// apiErrorBody はテストでエラーレスポンスをデコードするための型。
type apiErrorBody struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

func TestHandleServiceError_StatusMapping(t *testing.T) {
	tests := []struct {
		err        error
		wantStatus int
		wantCode   string
	}{
		{model.NewUnauthenticatedError(), http.StatusUnauthorized, model.ErrCodeUnauthenticated},
		{model.NewForbiddenError("x"), http.StatusForbidden, model.ErrCodeForbidden},
		{model.NewInterviewerOnlyError(), http.StatusForbidden, model.ErrCodeInterviewerOnly},
		{model.NewUserNotFoundError(), http.StatusNotFound, model.ErrCodeUserNotFound},
		{model.NewCallNotFoundError("c"), http.StatusNotFound, model.ErrCodeCallNotFound},
		{model.NewInterviewNotFoundError("i"), http.StatusNotFound, model.ErrCodeInterviewNotFound},
		{model.NewCallEndedError("c"), http.StatusGone, model.ErrCodeCallEnded},
		{model.NewValidationError("v"), http.StatusBadRequest, model.ErrCodeValidationFailed},
		{model.NewInvalidCallTypeError("livestream"), http.StatusBadRequest, model.ErrCodeInvalidCallType},
		{model.NewInvalidStatusError("done"), http.StatusBadRequest, model.ErrCodeInvalidStatus},
		{model.NewVideoNotConfiguredError(), http.StatusServiceUnavailable, model.ErrCodeVideoNotConfigured},
		{fmt.Errorf("wrapped: %w", model.NewCallEndedError("c")), http.StatusGone, model.ErrCodeCallEnded},
		{fmt.Errorf("db down"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.wantCode, func(t *testing.T) {
			w := httptest.NewRecorder()
			handleServiceError(w, tt.err)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			var body apiErrorBody
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode: %v", err)
			}
			if body.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", body.Code, tt.wantCode)
			}
			if body.Action == "" {
				t.Error("action should not be empty")
			}
		})
	}
}

func TestHandleServiceError_HidesInternalDetails(t *testing.T) {
	w := httptest.NewRecorder()
	handleServiceError(w, fmt.Errorf("pq: password authentication failed for user \"codemeet\""))

	var body apiErrorBody
	json.NewDecoder(w.Body).Decode(&body)
	if body.Message != "内部エラーが発生しました。" {
		t.Errorf("message = %q, should be generic", body.Message)
	}
}
