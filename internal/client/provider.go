package client

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// State は通話クライアントのライフサイクル状態。
type State int

const (
	// StateUninitialized はidentityの読み込み待ち。
	StateUninitialized State = iota
	// StateNoIdentity はログアウト状態。ハンドルは無い。
	StateNoIdentity
	// StateTokenPending はトークン取得とハンドル構築の途中。
	StateTokenPending
	// StateReady はハンドルが公開済み。
	StateReady
	// StateFailed は直近の接続に失敗した。次のidentity変化まで留まる。
	StateFailed
	// StateTornDown はProviderが停止した。
	StateTornDown
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateNoIdentity:
		return "no_identity"
	case StateTokenPending:
		return "token_pending"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	case StateTornDown:
		return "torn_down"
	default:
		return "unknown"
	}
}

// DefaultConnectTimeout はトークン取得とハンドル構築にかけられる時間の既定値。
const DefaultConnectTimeout = 15 * time.Second

const disconnectTimeout = 5 * time.Second

// ProviderConfig はProviderの依存関係と設定。
type ProviderConfig struct {
	Tokens   TokenSource
	Dialer   Dialer
	Notifier Notifier
	Logger   *slog.Logger

	// ConnectTimeout はトークン取得とハンドル構築の合計の上限。0の場合はDefaultConnectTimeout。
	ConnectTimeout time.Duration

	// OnIdentity はidentityイベントごとに別goroutineで呼ばれる。ディレクトリ同期に使う。
	OnIdentity func(ctx context.Context, id Identity)
}

// CallSource は現在利用できる通話操作を返す。準備ができていない場合はnil。
type CallSource interface {
	Calls() Calls
}

// Provider はidentityの遷移に合わせて通話ハンドルを構築・公開・破棄する。
// 同時に存在するハンドルは常に1つまで。
type Provider struct {
	cfg    ProviderConfig
	logger *slog.Logger

	mu      sync.Mutex
	state   State
	handle  Handle
	owner   *epoch
	changed chan struct{}
}

var _ CallSource = (*Provider)(nil)

// epoch は1つのidentityに対する接続試行。
type epoch struct {
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewProvider はProviderを生成する。
func NewProvider(cfg ProviderConfig) *Provider {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.Notifier == nil {
		cfg.Notifier = nopNotifier{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{
		cfg:     cfg,
		logger:  logger,
		state:   StateUninitialized,
		changed: make(chan struct{}),
	}
}

// State は現在の状態を返す。
func (p *Provider) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Changed は次に状態が変わったときにクローズされるチャネルを返す。
func (p *Provider) Changed() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.changed
}

// Calls は公開中のハンドルの読み取り専用ビューを返す。Ready以外ではnil。
func (p *Provider) Calls() Calls {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StateReady || p.handle == nil {
		return nil
	}
	return readOnlyCalls{h: p.handle}
}

// setStateLocked はp.muを保持した状態で呼ぶこと。
func (p *Provider) setStateLocked(s State) {
	if p.state == s {
		return
	}
	p.logger.Debug("video client state changed",
		slog.String("from", p.state.String()),
		slog.String("to", s.String()),
	)
	p.state = s
	close(p.changed)
	p.changed = make(chan struct{})
}

func (p *Provider) setState(s State) {
	p.mu.Lock()
	p.setStateLocked(s)
	p.mu.Unlock()
}

// Run はidentitiesの遷移を処理する。identitiesがクローズされるかctxが終了するまでブロックし、
// 戻る前に現在のハンドルを切断する。
func (p *Provider) Run(ctx context.Context, identities <-chan Identity) error {
	var (
		current     Identity
		initialized bool
		active      *epoch
		hooks       sync.WaitGroup
	)

	defer func() {
		p.stopEpoch(active)
		hooks.Wait()
		p.setState(StateTornDown)
	}()

	for {
		var (
			id Identity
			ok bool
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case id, ok = <-identities:
			if !ok {
				return nil
			}
		}

		if p.cfg.OnIdentity != nil {
			hooks.Add(1)
			go func(id Identity) {
				defer hooks.Done()
				p.cfg.OnIdentity(ctx, id)
			}(id)
		}

		if initialized && sameProfile(current, id) {
			continue
		}
		initialized = true
		current = id

		// 新しいepochを始める前に古いepochを完全に止める
		p.stopEpoch(active)
		active = nil

		switch {
		case !id.Loaded:
			p.setState(StateUninitialized)
		case !id.Ready():
			p.setState(StateNoIdentity)
		default:
			active = p.startEpoch(ctx, id)
		}
	}
}

func sameProfile(a, b Identity) bool {
	return a.Loaded == b.Loaded && a.Ready() == b.Ready() && userFromIdentity(a) == userFromIdentity(b)
}

func (p *Provider) startEpoch(parent context.Context, id Identity) *epoch {
	ectx, cancel := context.WithCancel(parent)
	ep := &epoch{ctx: ectx, cancel: cancel, done: make(chan struct{})}

	p.setState(StateTokenPending)

	go func() {
		defer close(ep.done)
		handle, err := p.connect(ep.ctx, userFromIdentity(id))
		p.finish(ep, handle, err)
	}()
	return ep
}

// connect はトークン取得とハンドル構築をConnectTimeoutの範囲で行う。
func (p *Provider) connect(ctx context.Context, user User) (Handle, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.ConnectTimeout)
	defer cancel()

	cred, err := p.cfg.Tokens.Token(ctx)
	if err != nil {
		return nil, err
	}
	return p.cfg.Dialer.Dial(ctx, user, cred)
}

// finish は接続結果を反映する。epochが既にキャンセルされていれば結果を捨て、構築済みのハンドルを切断する。
func (p *Provider) finish(ep *epoch, handle Handle, err error) {
	p.mu.Lock()
	if ep.ctx.Err() != nil {
		p.mu.Unlock()
		if handle != nil {
			p.disconnect(handle)
		}
		return
	}

	if err != nil {
		p.setStateLocked(StateFailed)
		p.mu.Unlock()

		reason := err.Error()
		if errors.Is(err, context.DeadlineExceeded) {
			reason = "connect timeout"
		}
		p.logger.Error("failed to connect video client", slog.String("error", reason))
		p.cfg.Notifier.Notify(failureNotice(err, NoticeServiceNotReady))
		return
	}

	p.handle = handle
	p.owner = ep
	p.setStateLocked(StateReady)
	p.mu.Unlock()

	p.logger.Info("video client connected", slog.String("user_id", handle.User().ID))
}

// stopEpoch はepochをキャンセルしてgoroutineの終了を待ち、そのepochが公開したハンドルを切断する。
func (p *Provider) stopEpoch(ep *epoch) {
	if ep == nil {
		return
	}
	ep.cancel()
	<-ep.done

	p.mu.Lock()
	var handle Handle
	if p.owner == ep {
		handle = p.handle
		p.handle = nil
		p.owner = nil
	}
	p.mu.Unlock()

	if handle != nil {
		p.disconnect(handle)
	}
}

// disconnect はハンドルを切断する。失敗はログに残すだけで呼び出し元には返さない。
func (p *Provider) disconnect(h Handle) {
	ctx, cancel := context.WithTimeout(context.Background(), disconnectTimeout)
	defer cancel()
	if err := h.Disconnect(ctx); err != nil {
		p.logger.Warn("failed to disconnect video client",
			slog.String("user_id", h.User().ID),
			slog.String("error", err.Error()),
		)
	}
}
