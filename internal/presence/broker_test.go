package presence

import (
	"context"
	"testing"
	"time"

	"github.com/hitoshi/codemeet/internal/model"
)

func snapshot(callID string, userIDs ...string) model.ParticipantSnapshot {
	snap := model.ParticipantSnapshot{CallType: model.DefaultCallType, CallID: callID, At: time.Now().UTC()}
	for _, id := range userIDs {
		snap.Participants = append(snap.Participants, model.Participant{UserID: id})
	}
	return snap
}

func receive(t *testing.T, ch <-chan model.ParticipantSnapshot) model.ParticipantSnapshot {
	t.Helper()
	select {
	case snap, ok := <-ch:
		if !ok {
			t.Fatal("channel closed unexpectedly")
		}
		return snap
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot")
	}
	return model.ParticipantSnapshot{}
}

func waitClosed(t *testing.T, ch <-chan model.ParticipantSnapshot) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("channel was not closed")
		}
	}
}

// TestMemoryBroker_PublishSubscribe は同じ通話の購読者だけに配信されることを検証する。
func TestMemoryBroker_PublishSubscribe(t *testing.T) {
	b := NewMemoryBroker()
	defer b.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	chA, err := b.Subscribe(ctx, model.DefaultCallType, "a")
	if err != nil {
		t.Fatalf("Subscribe returned error: %v", err)
	}
	chB, _ := b.Subscribe(ctx, model.DefaultCallType, "b")

	if err := b.Publish(ctx, snapshot("a", "u1")); err != nil {
		t.Fatalf("Publish returned error: %v", err)
	}

	got := receive(t, chA)
	if len(got.Participants) != 1 || got.Participants[0].UserID != "u1" {
		t.Errorf("unexpected snapshot: %+v", got)
	}
	select {
	case snap := <-chB:
		t.Errorf("subscriber of another call received %+v", snap)
	default:
	}
}

// TestMemoryBroker_KeepsLatest は遅い購読者に最新のスナップショットが残ることを検証する。
func TestMemoryBroker_KeepsLatest(t *testing.T) {
	b := NewMemoryBroker()
	defer b.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, _ := b.Subscribe(ctx, model.DefaultCallType, "a")
	for i := 0; i < subscriberBuffer*3; i++ {
		if err := b.Publish(ctx, snapshot("a", "u1")); err != nil {
			t.Fatalf("Publish returned error: %v", err)
		}
	}
	b.Publish(ctx, snapshot("a", "u1", "u2"))

	var last model.ParticipantSnapshot
	for i := 0; i < subscriberBuffer; i++ {
		last = receive(t, ch)
	}
	if len(last.Participants) != 2 {
		t.Errorf("last snapshot participants = %d, want 2", len(last.Participants))
	}
}

// TestMemoryBroker_Unsubscribe はctx終了で購読が解除されチャネルが閉じることを検証する。
func TestMemoryBroker_Unsubscribe(t *testing.T) {
	b := NewMemoryBroker()
	defer b.Close()
	ctx, cancel := context.WithCancel(context.Background())

	ch, _ := b.Subscribe(ctx, model.DefaultCallType, "a")
	if n := b.SubscriberCount(model.DefaultCallType, "a"); n != 1 {
		t.Fatalf("SubscriberCount = %d, want 1", n)
	}

	cancel()
	waitClosed(t, ch)

	if n := b.SubscriberCount(model.DefaultCallType, "a"); n != 0 {
		t.Errorf("SubscriberCount after cancel = %d, want 0", n)
	}
	if err := b.Publish(context.Background(), snapshot("a")); err != nil {
		t.Errorf("Publish after unsubscribe returned error: %v", err)
	}
}

// TestMemoryBroker_Close はClose後に全チャネルが閉じ、新規購読も即座に閉じることを検証する。
func TestMemoryBroker_Close(t *testing.T) {
	b := NewMemoryBroker()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, _ := b.Subscribe(ctx, model.DefaultCallType, "a")
	if err := b.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}
	waitClosed(t, ch)

	late, _ := b.Subscribe(ctx, model.DefaultCallType, "a")
	waitClosed(t, late)

	// ctx終了後の後始末で二重closeしないこと
	cancel()
	time.Sleep(10 * time.Millisecond)
}
