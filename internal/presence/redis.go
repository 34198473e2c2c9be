package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/codemeet/internal/model"
)

const channelPrefix = "codemeet:presence:"

// NewRedisClient はURLからRedisクライアントを生成し、疎通を確認する。
func NewRedisClient(ctx context.Context, rawURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

// RedisBroker はRedis pub/subで複数のサーバープロセス間にスナップショットを配信する。
type RedisBroker struct {
	client *redis.Client

	mu     sync.Mutex
	subs   map[*redis.PubSub]struct{}
	closed bool
}

var _ Broker = (*RedisBroker)(nil)

// NewRedisBroker はRedisBrokerを生成する。clientのクローズは呼び出し側の責務。
func NewRedisBroker(client *redis.Client) *RedisBroker {
	return &RedisBroker{client: client, subs: make(map[*redis.PubSub]struct{})}
}

func channelName(callType, callID string) string {
	return channelPrefix + topic(callType, callID)
}

// Publish はスナップショットをJSONでPUBLISHする。
func (b *RedisBroker) Publish(ctx context.Context, snap model.ParticipantSnapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if err := b.client.Publish(ctx, channelName(snap.CallType, snap.CallID), payload).Err(); err != nil {
		return fmt.Errorf("failed to publish snapshot: %w", err)
	}
	return nil
}

// Subscribe は購読の確立を待ってからチャネルを返す。
func (b *RedisBroker) Subscribe(ctx context.Context, callType, callID string) (<-chan model.ParticipantSnapshot, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, fmt.Errorf("presence broker closed")
	}
	b.mu.Unlock()

	ps := b.client.Subscribe(ctx, channelName(callType, callID))
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("failed to subscribe presence: %w", err)
	}

	b.mu.Lock()
	b.subs[ps] = struct{}{}
	b.mu.Unlock()

	out := make(chan model.ParticipantSnapshot, subscriberBuffer)
	msgs := ps.Channel()

	go func() {
		defer close(out)
		defer b.release(ps)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var snap model.ParticipantSnapshot
				if err := json.Unmarshal([]byte(msg.Payload), &snap); err != nil {
					slog.Warn("discarding malformed presence message",
						slog.String("channel", msg.Channel),
						slog.String("error", err.Error()),
					)
					continue
				}
				deliverLatest(out, snap)
			}
		}
	}()

	return out, nil
}

func (b *RedisBroker) release(ps *redis.PubSub) {
	b.mu.Lock()
	_, tracked := b.subs[ps]
	delete(b.subs, ps)
	b.mu.Unlock()
	if tracked {
		ps.Close()
	}
}

// Close は全ての購読を解除する。
func (b *RedisBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for ps := range b.subs {
		ps.Close()
		delete(b.subs, ps)
	}
	return nil
}
