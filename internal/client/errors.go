package client

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotReady は通話ハンドルがまだ利用できないことを表す。
	ErrNotReady = errors.New("client: video client not ready")
	// ErrInvalidMeetingID は空のミーティングIDやリンクが渡されたことを表す。
	ErrInvalidMeetingID = errors.New("client: invalid meeting id")
	// ErrCallNotFound は指定した通話が存在しないことを表す。
	ErrCallNotFound = errors.New("client: call not found")
	// ErrCallEnded は通話が既に終了していることを表す。
	ErrCallEnded = errors.New("client: call ended")
	// ErrUnauthenticated はセッションまたはトークンが無効なことを表す。
	ErrUnauthenticated = errors.New("client: unauthenticated")
	// ErrForbidden は権限が不足していることを表す。
	ErrForbidden = errors.New("client: forbidden")
	// ErrServiceUnavailable はサーバーに到達できない、またはサービスが停止中であることを表す。
	ErrServiceUnavailable = errors.New("client: service unavailable")
)

// APIError はサーバーが返した統一フォーマットのエラー。
// errors.Isで対応するセンチネルエラーと比較できる。
type APIError struct {
	Status   int    `json:"-"`
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("client: unexpected status %d", e.Status)
	}
	return fmt.Sprintf("client: [%s] %s", e.Code, e.Message)
}

// Is はエラーコードとHTTPステータスからセンチネルエラーへの対応を判定する。
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrCallNotFound:
		return e.Code == "CALL_NOT_FOUND"
	case ErrCallEnded:
		return e.Code == "CALL_ENDED"
	case ErrUnauthenticated:
		return e.Status == http.StatusUnauthorized
	case ErrForbidden:
		return e.Status == http.StatusForbidden
	case ErrServiceUnavailable:
		return e.Status == http.StatusServiceUnavailable ||
			e.Status == http.StatusBadGateway ||
			e.Status == http.StatusGatewayTimeout
	}
	return false
}

// transportError はリクエストがサーバーに届かなかったことを表す。
type transportError struct {
	err error
}

func (e *transportError) Error() string { return "client: request failed: " + e.err.Error() }
func (e *transportError) Unwrap() error { return e.err }

func (e *transportError) Is(target error) bool {
	return target == ErrServiceUnavailable
}

// isConnectivity はユーザーに「サービス準備中」と伝えるべきエラーかを返す。
func isConnectivity(err error) bool {
	return errors.Is(err, ErrNotReady) || errors.Is(err, ErrServiceUnavailable)
}

// failureNotice は未認証と接続障害を個別の通知に振り分け、それ以外はfallbackを返す。
func failureNotice(err error, fallback Notice) Notice {
	switch {
	case errors.Is(err, ErrUnauthenticated):
		return NoticeSignInRequired
	case isConnectivity(err):
		return NoticeServiceNotReady
	}
	return fallback
}
