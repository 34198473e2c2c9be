// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, call, interview, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthenticated    = "UNAUTHENTICATED"
	ErrCodeForbidden          = "FORBIDDEN"
	ErrCodeCSRFTokenInvalid   = "CSRF_TOKEN_INVALID"
	ErrCodeValidationFailed   = "VALIDATION_FAILED"
	ErrCodeUserNotFound       = "USER_NOT_FOUND"
	ErrCodeCallNotFound       = "CALL_NOT_FOUND"
	ErrCodeCallEnded          = "CALL_ENDED"
	ErrCodeInvalidCallType    = "INVALID_CALL_TYPE"
	ErrCodeInterviewNotFound  = "INTERVIEW_NOT_FOUND"
	ErrCodeInvalidStatus      = "INVALID_STATUS"
	ErrCodeInterviewerOnly    = "INTERVIEWER_ONLY"
	ErrCodeVideoNotConfigured = "VIDEO_NOT_CONFIGURED"
)

// NewUnauthenticatedError は未認証エラーを生成する。
// サーバー側の特権操作がidentityなしで呼ばれた場合に返す。
func NewUnauthenticatedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthenticated,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewForbiddenError は権限不足エラーを生成する。
func NewForbiddenError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  fmt.Sprintf("この操作は許可されていません: %s", reason),
		Category: "auth",
		Action:   "ログイン中のアカウントを確認してください。",
	}
}

// NewCSRFTokenInvalidError はCSRFトークンの検証に失敗した場合のエラーを生成する。
// クライアントはこのコードの場合だけトークンを取り直して再送してよい。
func NewCSRFTokenInvalidError() *APIError {
	return &APIError{
		Code:     ErrCodeCSRFTokenInvalid,
		Message:  "CSRFトークンが無効です。",
		Category: "auth",
		Action:   "ページを再読み込みしてから再度お試しください。",
	}
}

// NewValidationError は入力検証エラーを生成する。
func NewValidationError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeValidationFailed,
		Message:  fmt.Sprintf("入力内容が不正です: %s", reason),
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewCallNotFoundError は通話が存在しない場合のエラーを生成する。
func NewCallNotFoundError(callID string) *APIError {
	return &APIError{
		Code:     ErrCodeCallNotFound,
		Message:  fmt.Sprintf("指定されたミーティングが見つかりません: %s", callID),
		Category: "call",
		Action:   "ミーティングIDまたはリンクを確認してください。",
	}
}

// NewCallEndedError は終了済みの通話に参加しようとした場合のエラーを生成する。
func NewCallEndedError(callID string) *APIError {
	return &APIError{
		Code:     ErrCodeCallEnded,
		Message:  fmt.Sprintf("ミーティングは既に終了しています: %s", callID),
		Category: "call",
		Action:   "新しいミーティングを作成してください。",
	}
}

// NewInvalidCallTypeError はサポート外の通話名前空間が指定された場合のエラーを生成する。
func NewInvalidCallTypeError(callType string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCallType,
		Message:  fmt.Sprintf("サポートされていない通話タイプです: %s", callType),
		Category: "validation",
		Action:   "通話タイプには default を指定してください。",
	}
}

// NewInterviewNotFoundError は面接が見つからない場合のエラーを生成する。
func NewInterviewNotFoundError(id string) *APIError {
	return &APIError{
		Code:     ErrCodeInterviewNotFound,
		Message:  fmt.Sprintf("指定された面接が見つかりません: %s", id),
		Category: "interview",
		Action:   "面接IDを確認してください。",
	}
}

// NewInvalidStatusError は無効な面接ステータスが指定された場合のエラーを生成する。
func NewInvalidStatusError(status string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidStatus,
		Message:  fmt.Sprintf("無効なステータスです: %s", status),
		Category: "validation",
		Action:   "ステータスには completed、succeeded、failed のいずれかを指定してください。",
	}
}

// NewInterviewerOnlyError は面接官専用の操作を候補者が呼んだ場合のエラーを生成する。
func NewInterviewerOnlyError() *APIError {
	return &APIError{
		Code:     ErrCodeInterviewerOnly,
		Message:  "この操作は面接官のみ実行できます。",
		Category: "auth",
		Action:   "管理者に面接官ロールの付与を依頼してください。",
	}
}

// NewVideoNotConfiguredError はビデオ基盤の設定が欠けている場合のエラーを生成する。
func NewVideoNotConfiguredError() *APIError {
	return &APIError{
		Code:     ErrCodeVideoNotConfigured,
		Message:  "ビデオ通話サービスが利用できません。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
