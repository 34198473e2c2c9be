package client

import (
	"context"
	"log/slog"
)

// Devices はローカルのカメラとマイクを操作する。権限が拒否された場合はエラーを返す。
type Devices interface {
	EnableCamera(ctx context.Context) error
	EnableMicrophone(ctx context.Context) error
	DisableCamera(ctx context.Context) error
	DisableMicrophone(ctx context.Context) error
}

// SetupResult は入室前のデバイス準備の結果。
type SetupResult struct {
	CameraEnabled     bool
	MicrophoneEnabled bool
}

// Degraded はいずれかのデバイスが使えない状態かを返す。
func (r SetupResult) Degraded() bool {
	return !r.CameraEnabled || !r.MicrophoneEnabled
}

// Setup はミーティング入室前の準備画面。
type Setup struct {
	calls    Calls
	callID   string
	devices  Devices
	notifier Notifier
	nav      Navigator
	logger   *slog.Logger
}

// NewSetup はLookupCallで確認済みの通話に対するSetupを生成する。
func NewSetup(calls Calls, callID string, devices Devices, notifier Notifier, nav Navigator) *Setup {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	if nav == nil {
		nav = nopNavigator{}
	}
	return &Setup{
		calls:    calls,
		callID:   callID,
		devices:  devices,
		notifier: notifier,
		nav:      nav,
		logger:   slog.Default(),
	}
}

// Prepare はカメラとマイクを個別に有効化する。拒否されても通知して続行し、入室を妨げない。
func (s *Setup) Prepare(ctx context.Context) SetupResult {
	var res SetupResult

	if err := s.devices.EnableCamera(ctx); err != nil {
		s.logger.Warn("camera unavailable", slog.String("error", err.Error()))
		s.notifier.Notify(NoticeCameraDenied)
	} else {
		res.CameraEnabled = true
	}

	if err := s.devices.EnableMicrophone(ctx); err != nil {
		s.logger.Warn("microphone unavailable", slog.String("error", err.Error()))
		s.notifier.Notify(NoticeMicrophoneDenied)
	} else {
		res.MicrophoneEnabled = true
	}

	return res
}

// Join は通話に参加してRoomを返す。
func (s *Setup) Join(ctx context.Context) (*Room, error) {
	var (
		c   *Call
		err error
	)
	if meetingIDPattern.MatchString(s.callID) {
		c, err = s.calls.JoinCall(ctx, s.callID)
	} else {
		err = ErrCallNotFound
	}
	if err != nil {
		if n, ok := LookupNotice(err); ok {
			s.notifier.Notify(n)
		}
		return nil, err
	}
	return &Room{
		call:    c,
		calls:   s.calls,
		devices: s.devices,
		nav:     s.nav,
		logger:  s.logger,
	}, nil
}

// Room は参加中のミーティング。
type Room struct {
	call    *Call
	calls   Calls
	devices Devices
	nav     Navigator
	logger  *slog.Logger
}

// Call は参加した通話を返す。
func (r *Room) Call() *Call {
	return r.call
}

// Watch は参加者が変わるたびにfnを呼ぶ。ctxの終了またはストリームのクローズで戻る。
func (r *Room) Watch(ctx context.Context, fn func([]Participant)) error {
	return r.calls.WatchParticipants(ctx, r.call.ID, func(snap ParticipantSnapshot) {
		fn(snap.Participants)
	})
}

// Leave はカメラとマイクを止めて通話から退出し、トップへ遷移する。
// デバイスの停止に失敗してもログに残して退出を続ける。
func (r *Room) Leave(ctx context.Context) error {
	if err := r.devices.DisableCamera(ctx); err != nil {
		r.logger.Warn("failed to disable camera", slog.String("error", err.Error()))
	}
	if err := r.devices.DisableMicrophone(ctx); err != nil {
		r.logger.Warn("failed to disable microphone", slog.String("error", err.Error()))
	}

	err := r.calls.LeaveCall(ctx, r.call.ID)
	if err != nil {
		r.logger.Error("failed to leave call",
			slog.String("call_id", r.call.ID),
			slog.String("error", err.Error()),
		)
	}
	r.nav.Navigate("/")
	return err
}
