package client

import "log/slog"

// Notice はユーザーに表示する通知の種類。
type Notice string

const (
	NoticeServiceNotReady  Notice = "service_not_ready"
	NoticeSignInRequired   Notice = "sign_in_required"
	NoticeCreateFailed     Notice = "create_failed"
	NoticeMeetingNotFound  Notice = "meeting_not_found"
	NoticeMeetingEnded     Notice = "meeting_ended"
	NoticeCameraDenied     Notice = "camera_denied"
	NoticeMicrophoneDenied Notice = "microphone_denied"
)

var noticeMessages = map[Notice]string{
	NoticeServiceNotReady:  "ビデオ通話サービスの準備ができていません。しばらくしてから再度お試しください。",
	NoticeSignInRequired:   "ログインの有効期限が切れました。もう一度ログインしてください。",
	NoticeCreateFailed:     "ミーティングの作成に失敗しました。",
	NoticeMeetingNotFound:  "ミーティングが見つかりません。",
	NoticeMeetingEnded:     "このミーティングは終了しました。",
	NoticeCameraDenied:     "カメラを利用できません。カメラなしで参加します。",
	NoticeMicrophoneDenied: "マイクを利用できません。マイクなしで参加します。",
}

// Message は通知の既定メッセージを返す。
func (n Notice) Message() string {
	if m, ok := noticeMessages[n]; ok {
		return m
	}
	return string(n)
}

// Notifier はトースト等でユーザーに通知を表示する。
type Notifier interface {
	Notify(n Notice)
}

// Navigator は画面遷移を行う。
type Navigator interface {
	Navigate(path string)
}

// NotifierFunc は関数をNotifierとして扱うアダプタ。
type NotifierFunc func(Notice)

func (f NotifierFunc) Notify(n Notice) { f(n) }

// NavigatorFunc は関数をNavigatorとして扱うアダプタ。
type NavigatorFunc func(string)

func (f NavigatorFunc) Navigate(path string) { f(path) }

// LogNotifier は通知をログに出力するだけのNotifier。UIを持たない利用者向け。
type LogNotifier struct {
	Logger *slog.Logger
}

func (n LogNotifier) Notify(notice Notice) {
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("notice", slog.String("notice", string(notice)), slog.String("message", notice.Message()))
}

type nopNotifier struct{}

func (nopNotifier) Notify(Notice) {}

type nopNavigator struct{}

func (nopNavigator) Navigate(string) {}
