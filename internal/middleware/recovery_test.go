package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRecoveryMiddleware_PanicReturnsJSON500(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		noteUserID(r.Context(), "user-1")
		panic("boom")
	})
	chain := NewLoggingMiddleware(slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil)))(NewRecoveryMiddleware(logger)(inner))

	w := httptest.NewRecorder()
	chain.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/interviews", nil))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	if body := decodeErrorBody(t, w); body.Code != "INTERNAL_ERROR" {
		t.Errorf("code = %q, want INTERNAL_ERROR", body.Code)
	}

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log: %v", err)
	}
	if entry["panic"] != "boom" || entry["user_id"] != "user-1" || entry["path"] != "/api/interviews" {
		t.Errorf("log entry = %v", entry)
	}
	if entry["response_started"] != false {
		t.Errorf("response_started = %v, want false", entry["response_started"])
	}
}

func TestRecoveryMiddleware_AfterResponseStarted(t *testing.T) {
	var buf bytes.Buffer
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		panic("late")
	})

	w := httptest.NewRecorder()
	NewRecoveryMiddleware(slog.New(slog.NewJSONHandler(&buf, nil)))(inner).
		ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/video/v1/calls/default/c1/participants", nil))

	if w.Code != http.StatusAccepted {
		t.Errorf("status = %d, want the already written 202", w.Code)
	}
	if w.Body.Len() != 0 {
		t.Errorf("body = %q, want nothing appended", w.Body.String())
	}
	if !bytes.Contains(buf.Bytes(), []byte(`"response_started":true`)) {
		t.Errorf("log = %s", buf.String())
	}
}

func TestRecoveryMiddleware_RepanicsAbortHandler(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(http.ErrAbortHandler)
	})

	defer func() {
		v := recover()
		err, ok := v.(error)
		if !ok || !errors.Is(err, http.ErrAbortHandler) {
			t.Errorf("recovered %v, want http.ErrAbortHandler", v)
		}
	}()
	NewRecoveryMiddleware(nil)(inner).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	t.Error("ErrAbortHandler should propagate")
}

func TestRecoveryMiddleware_PassThrough(t *testing.T) {
	w := httptest.NewRecorder()
	NewRecoveryMiddleware(nil)(okHandler()).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}
