package client

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

const instantMeetingDescription = "Instant meeting"

// MeetingPath はミーティング画面のパスを返す。
func MeetingPath(id string) string {
	return "/meetings/" + id
}

// Actions はダッシュボードからのミーティング操作。
type Actions struct {
	source   CallSource
	notifier Notifier
	nav      Navigator
	logger   *slog.Logger
	now      func() time.Time
	newID    func() string
}

// NewActions はActionsを生成する。notifier、navがnilの場合は何もしない実装を使う。
func NewActions(source CallSource, notifier Notifier, nav Navigator) *Actions {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	if nav == nil {
		nav = nopNavigator{}
	}
	return &Actions{
		source:   source,
		notifier: notifier,
		nav:      nav,
		logger:   slog.Default(),
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// CreateInstantMeeting は新しい通話を作成し、作成完了後にミーティング画面へ遷移する。
// ハンドルが無い場合は副作用なしでErrNotReadyを返す。
func (a *Actions) CreateInstantMeeting(ctx context.Context) (string, error) {
	calls := a.source.Calls()
	if calls == nil {
		a.notifier.Notify(NoticeServiceNotReady)
		return "", ErrNotReady
	}

	id := a.newID()
	_, err := calls.CreateCall(ctx, id, CallMetadata{
		StartsAt:    a.now(),
		Description: instantMeetingDescription,
	})
	if err != nil {
		a.logger.Error("failed to create instant meeting",
			slog.String("call_id", id),
			slog.String("error", err.Error()),
		)
		a.notifier.Notify(failureNotice(err, NoticeCreateFailed))
		return "", err
	}

	a.nav.Navigate(MeetingPath(id))
	return id, nil
}

// JoinMeeting はIDまたは貼り付けられたリンクからミーティング画面へ遷移する。
// 存在確認は遷移先のLookupCallに任せる。
func (a *Actions) JoinMeeting(_ context.Context, input string) (string, error) {
	id := ParseMeetingID(input)
	if id == "" {
		return "", ErrInvalidMeetingID
	}
	a.nav.Navigate(MeetingPath(id))
	return id, nil
}

// EndMeeting は通話をサーバー側で終了する。作成者のみ成功する。
func (a *Actions) EndMeeting(ctx context.Context, id string) error {
	calls := a.source.Calls()
	if calls == nil {
		a.notifier.Notify(NoticeServiceNotReady)
		return ErrNotReady
	}
	if _, err := calls.EndCall(ctx, id); err != nil {
		switch {
		case errors.Is(err, ErrCallNotFound):
			a.notifier.Notify(NoticeMeetingNotFound)
		case errors.Is(err, ErrUnauthenticated), isConnectivity(err):
			a.notifier.Notify(failureNotice(err, ""))
		}
		return err
	}
	return nil
}

// ParseMeetingID はIDまたはリンクからミーティングIDを取り出す。
// リンクの場合はクエリとフラグメントを除いた最後の空でないパスセグメントを返す。
func ParseMeetingID(input string) string {
	s := strings.TrimSpace(input)
	if s == "" {
		return ""
	}
	if u, err := url.Parse(s); err == nil && (u.Scheme != "" || strings.Contains(s, "/")) {
		s = u.Path
	}
	segs := strings.Split(s, "/")
	for i := len(segs) - 1; i >= 0; i-- {
		if seg := strings.TrimSpace(segs[i]); seg != "" {
			return seg
		}
	}
	return ""
}
