package client

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeHandle は呼び出しを記録するHandle。未設定のメソッドは成功する。
type fakeHandle struct {
	user User

	createCallFn  func(ctx context.Context, id string, meta CallMetadata) (*Call, error)
	getCallFn     func(ctx context.Context, id string) (*Call, error)
	joinCallFn    func(ctx context.Context, id string) (*Call, error)
	leaveCallFn   func(ctx context.Context, id string) error
	endCallFn     func(ctx context.Context, id string) (*Call, error)
	watchFn       func(ctx context.Context, id string, fn func(ParticipantSnapshot)) error
	disconnectErr error
	onDisconnect  func()
	disconnects   atomic.Int32
	getCalls      atomic.Int32
	mu            sync.Mutex
	events        []string
}

var _ Handle = (*fakeHandle)(nil)

func (h *fakeHandle) record(event string) {
	h.mu.Lock()
	h.events = append(h.events, event)
	h.mu.Unlock()
}

func (h *fakeHandle) Events() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.events...)
}

func (h *fakeHandle) User() User { return h.user }

func (h *fakeHandle) CreateCall(ctx context.Context, id string, meta CallMetadata) (*Call, error) {
	h.record("create:" + id)
	if h.createCallFn != nil {
		return h.createCallFn(ctx, id, meta)
	}
	return &Call{Type: CallType, ID: id, Description: meta.Description, StartsAt: meta.StartsAt}, nil
}

func (h *fakeHandle) GetCall(ctx context.Context, id string) (*Call, error) {
	h.getCalls.Add(1)
	if h.getCallFn != nil {
		return h.getCallFn(ctx, id)
	}
	return &Call{Type: CallType, ID: id}, nil
}

func (h *fakeHandle) JoinCall(ctx context.Context, id string) (*Call, error) {
	h.record("join:" + id)
	if h.joinCallFn != nil {
		return h.joinCallFn(ctx, id)
	}
	return &Call{Type: CallType, ID: id}, nil
}

func (h *fakeHandle) LeaveCall(ctx context.Context, id string) error {
	h.record("leave:" + id)
	if h.leaveCallFn != nil {
		return h.leaveCallFn(ctx, id)
	}
	return nil
}

func (h *fakeHandle) EndCall(ctx context.Context, id string) (*Call, error) {
	h.record("end:" + id)
	if h.endCallFn != nil {
		return h.endCallFn(ctx, id)
	}
	now := time.Now()
	return &Call{Type: CallType, ID: id, EndedAt: &now}, nil
}

func (h *fakeHandle) Participants(ctx context.Context, id string) ([]Participant, error) {
	return nil, nil
}

func (h *fakeHandle) WatchParticipants(ctx context.Context, id string, fn func(ParticipantSnapshot)) error {
	if h.watchFn != nil {
		return h.watchFn(ctx, id, fn)
	}
	<-ctx.Done()
	return ctx.Err()
}

func (h *fakeHandle) Disconnect(ctx context.Context) error {
	h.disconnects.Add(1)
	if h.onDisconnect != nil {
		h.onDisconnect()
	}
	return h.disconnectErr
}

// staticSource は固定のCallsを返すCallSource。
type staticSource struct {
	calls Calls
}

func (s staticSource) Calls() Calls { return s.calls }

// eventualSource はreadyAfter回目の呼び出しからCallsを返す。
type eventualSource struct {
	calls      Calls
	readyAfter int32
	checks     atomic.Int32
}

func (s *eventualSource) Calls() Calls {
	if n := s.checks.Add(1); s.readyAfter > 0 && n >= s.readyAfter {
		return s.calls
	}
	return nil
}

// recordingNotifier は通知を記録する。
type recordingNotifier struct {
	mu      sync.Mutex
	notices []Notice
}

func (n *recordingNotifier) Notify(notice Notice) {
	n.mu.Lock()
	n.notices = append(n.notices, notice)
	n.mu.Unlock()
}

func (n *recordingNotifier) Notices() []Notice {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Notice(nil), n.notices...)
}

// recordingNavigator は遷移先を記録する。onNavigateで遷移時の状態を検査できる。
type recordingNavigator struct {
	paths      []string
	onNavigate func(path string)
}

func (n *recordingNavigator) Navigate(path string) {
	if n.onNavigate != nil {
		n.onNavigate(path)
	}
	n.paths = append(n.paths, path)
}

// fakeDevices はデバイス操作を記録する。
type fakeDevices struct {
	cameraErr, micErr               error
	disableCameraErr, disableMicErr error
	events                          []string
}

func (d *fakeDevices) EnableCamera(context.Context) error {
	d.events = append(d.events, "camera:on")
	return d.cameraErr
}

func (d *fakeDevices) EnableMicrophone(context.Context) error {
	d.events = append(d.events, "mic:on")
	return d.micErr
}

func (d *fakeDevices) DisableCamera(context.Context) error {
	d.events = append(d.events, "camera:off")
	return d.disableCameraErr
}

func (d *fakeDevices) DisableMicrophone(context.Context) error {
	d.events = append(d.events, "mic:off")
	return d.disableMicErr
}

var errPermissionDenied = errors.New("permission denied")

// waitForNotices は通知がn件記録されるまで待つ。
func waitForNotices(t *testing.T, n *recordingNotifier, count int) []Notice {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		notices := n.Notices()
		if len(notices) >= count {
			return notices
		}
		if time.Now().After(deadline) {
			t.Fatalf("got %d notices, want %d", len(notices), count)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// waitForState はProviderが指定の状態になるまで待つ。
func waitForState(t *testing.T, p *Provider, want State) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		changed := p.Changed()
		if p.State() == want {
			return
		}
		select {
		case <-changed:
		case <-deadline:
			t.Fatalf("state = %s, want %s", p.State(), want)
		}
	}
}
