package client

import (
	"context"
	"errors"
	"regexp"
	"time"
)

// meetingIDPattern はサーバーが受け付ける通話IDの形式。これに合わない通話は存在し得ない。
var meetingIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// RetryPolicy はハンドルの準備待ちの再試行設定。
type RetryPolicy struct {
	Interval    time.Duration
	MaxAttempts int
}

// DefaultRetryPolicy は1秒間隔で最大30回待つ。
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Interval: time.Second, MaxAttempts: 30}
}

func (p RetryPolicy) normalized() RetryPolicy {
	def := DefaultRetryPolicy()
	if p.Interval <= 0 {
		p.Interval = def.Interval
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	return p
}

// LookupCall はハンドルの準備ができるまで一定間隔で待ってから通話を1回取得する。
// 再試行するのはハンドルが無い間だけで、取得結果のエラーは再試行しない。
// 通話が存在しない場合（IDの形式が不正な場合を含む）はErrCallNotFound、
// 終了済みの場合は通話とErrCallEndedを返す。
func LookupCall(ctx context.Context, source CallSource, id string, policy RetryPolicy) (*Call, error) {
	if id == "" {
		return nil, ErrInvalidMeetingID
	}
	if !meetingIDPattern.MatchString(id) {
		return nil, ErrCallNotFound
	}
	policy = policy.normalized()

	calls, err := waitForCalls(ctx, source, policy)
	if err != nil {
		return nil, err
	}

	c, err := calls.GetCall(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Ended() {
		return c, ErrCallEnded
	}
	return c, nil
}

func waitForCalls(ctx context.Context, source CallSource, policy RetryPolicy) (Calls, error) {
	if calls := source.Calls(); calls != nil {
		return calls, nil
	}

	ticker := time.NewTicker(policy.Interval)
	defer ticker.Stop()

	for attempt := 1; attempt < policy.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
		if calls := source.Calls(); calls != nil {
			return calls, nil
		}
	}
	return nil, ErrNotReady
}

// LookupNotice はLookupCallのエラーに対応する通知を返す。通知不要の場合はfalse。
func LookupNotice(err error) (Notice, bool) {
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		return "", false
	case errors.Is(err, ErrCallNotFound):
		return NoticeMeetingNotFound, true
	case errors.Is(err, ErrCallEnded):
		return NoticeMeetingEnded, true
	default:
		return failureNotice(err, NoticeServiceNotReady), true
	}
}
