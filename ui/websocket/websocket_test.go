package websocket

import (
	"testing"

	domainConnection "github.com/wafilter/wafilter/domains/connection"
	domainEvents "github.com/wafilter/wafilter/domains/events"
)

func drainBroadcast() {
	for {
		select {
		case <-Broadcast:
		default:
			return
		}
	}
}

func TestPublisherQueuesFrames(t *testing.T) {
	drainBroadcast()
	t.Cleanup(drainBroadcast)

	pub := NewPublisher()
	pub.PublishEvent(domainEvents.StoredEvent{ID: "ev-1", Event: domainEvents.MessagesUpsert})
	pub.PublishState(domainConnection.Status{State: domainConnection.StateConnected})

	first := <-Broadcast
	if first.Code != "EVENT" {
		t.Fatalf("first frame code = %s", first.Code)
	}
	second := <-Broadcast
	if second.Code != "CONNECTION" {
		t.Fatalf("second frame code = %s", second.Code)
	}
}

func TestPublisherDropsWhenSaturated(t *testing.T) {
	drainBroadcast()
	t.Cleanup(drainBroadcast)

	pub := NewPublisher()
	// fill the queue, then one more must not block
	for i := 0; i < cap(Broadcast); i++ {
		pub.PublishEvent(domainEvents.StoredEvent{ID: "fill"})
	}

	done := make(chan struct{})
	go func() {
		pub.PublishEvent(domainEvents.StoredEvent{ID: "overflow"})
		close(done)
	}()
	<-done

	if len(Broadcast) != cap(Broadcast) {
		t.Fatalf("queue length %d, want full %d", len(Broadcast), cap(Broadcast))
	}
}
