// Package presence は通話のライブ参加者スナップショットを購読者へ配信する。
package presence

import (
	"context"
	"sync"

	"github.com/hitoshi/codemeet/internal/model"
)

// subscriberBuffer は購読者ごとのバッファ長。
// 溢れた場合は古いスナップショットを捨てて最新を残す。
const subscriberBuffer = 8

// Broker は通話ごとの参加者スナップショットのpub/sub。
type Broker interface {
	// Publish はスナップショットを同じ通話の全購読者へ配信する。
	Publish(ctx context.Context, snap model.ParticipantSnapshot) error
	// Subscribe は通話のスナップショットを受け取るチャネルを返す。
	// チャネルはctxの終了時に閉じられる。
	Subscribe(ctx context.Context, callType, callID string) (<-chan model.ParticipantSnapshot, error)
	Close() error
}

func topic(callType, callID string) string {
	return callType + ":" + callID
}

// MemoryBroker は単一プロセス内で完結するBroker実装。
type MemoryBroker struct {
	mu     sync.Mutex
	subs   map[string]map[chan model.ParticipantSnapshot]struct{}
	closed bool
}

var _ Broker = (*MemoryBroker)(nil)

// NewMemoryBroker はMemoryBrokerを生成する。
func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{subs: make(map[string]map[chan model.ParticipantSnapshot]struct{})}
}

// Publish はブロックせずに配信する。
func (b *MemoryBroker) Publish(_ context.Context, snap model.ParticipantSnapshot) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for ch := range b.subs[topic(snap.CallType, snap.CallID)] {
		deliverLatest(ch, snap)
	}
	return nil
}

// Subscribe は購読を登録する。
func (b *MemoryBroker) Subscribe(ctx context.Context, callType, callID string) (<-chan model.ParticipantSnapshot, error) {
	ch := make(chan model.ParticipantSnapshot, subscriberBuffer)
	key := topic(callType, callID)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, nil
	}
	if b.subs[key] == nil {
		b.subs[key] = make(map[chan model.ParticipantSnapshot]struct{})
	}
	b.subs[key][ch] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.subs[key][ch]; !ok {
			return
		}
		delete(b.subs[key], ch)
		if len(b.subs[key]) == 0 {
			delete(b.subs, key)
		}
		close(ch)
	}()

	return ch, nil
}

// SubscriberCount は通話の購読者数を返す。テスト用。
func (b *MemoryBroker) SubscriberCount(callType, callID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[topic(callType, callID)])
}

// Close は全購読チャネルを閉じる。
func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for key, set := range b.subs {
		for ch := range set {
			close(ch)
		}
		delete(b.subs, key)
	}
	return nil
}

// deliverLatest はバッファが満杯なら最古の要素を捨ててから送る。
func deliverLatest(ch chan model.ParticipantSnapshot, snap model.ParticipantSnapshot) {
	for {
		select {
		case ch <- snap:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
