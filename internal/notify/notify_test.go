package notify

import (
	"testing"
	"time"
)

func TestPublishReachesAllSubscribers(t *testing.T) {
	t.Parallel()

	hub := NewHub()
	a, unsubA := hub.Subscribe(4)
	defer unsubA()
	b, unsubB := hub.Subscribe(4)
	defer unsubB()

	hub.Publish(Event{Kind: KindChatUpdated, ChatID: 7})

	for name, ch := range map[string]<-chan Event{"a": a, "b": b} {
		select {
		case evt := <-ch:
			if evt.Kind != KindChatUpdated || evt.ChatID != 7 {
				t.Errorf("subscriber %s got %+v", name, evt)
			}
		case <-time.After(time.Second):
			t.Errorf("subscriber %s got nothing", name)
		}
	}
}

func TestPublishNeverBlocksOnSlowSubscriber(t *testing.T) {
	t.Parallel()

	hub := NewHub()
	slow, unsub := hub.Subscribe(1)
	defer unsub()

	// Fill the buffer, then keep publishing. The extra events are dropped.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			hub.Publish(Event{Kind: KindMessageUpserted, ChatID: int64(i)})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}

	// The first event is still there.
	select {
	case evt := <-slow:
		if evt.ChatID != 0 {
			t.Errorf("first buffered event = %+v, want chat 0", evt)
		}
	default:
		t.Error("buffered event missing")
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	t.Parallel()

	hub := NewHub()
	ch, unsub := hub.Subscribe(1)

	unsub()
	// A second call must be harmless.
	unsub()

	if _, ok := <-ch; ok {
		t.Error("channel should be closed after unsubscribe")
	}

	// Publishing after unsubscribe must not panic.
	hub.Publish(Event{Kind: KindChatUpdated, ChatID: 1})
}
