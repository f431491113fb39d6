package realtime

import (
	"context"
	"testing"

	"classroom-quiz-service/internal/domain"
)

func TestPublishReachesDefaultRoom(t *testing.T) {
	hub := NewHub()
	ch, cancel := hub.Subscribe(DefaultRoom)
	defer cancel()
	other, cancelOther := hub.Subscribe("other-room")
	defer cancelOther()

	if err := hub.Publish(context.Background(), domain.LeaderboardUpdate{Reason: domain.UpdateCompleted, Name: "Ada"}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	ev := <-ch
	if ev.Type != EventLeaderboardUpdate {
		t.Fatalf("expected %s, got %s", EventLeaderboardUpdate, ev.Type)
	}
	if update, ok := ev.Payload.(domain.LeaderboardUpdate); !ok || update.Name != "Ada" {
		t.Fatalf("unexpected payload %#v", ev.Payload)
	}
	select {
	case ev := <-other:
		t.Fatalf("other room should not receive %v", ev)
	default:
	}
}

func TestSlowSubscriberDropsOldest(t *testing.T) {
	hub := NewHub()
	ch, cancel := hub.Subscribe(DefaultRoom)
	defer cancel()

	for i := 0; i < 20; i++ {
		hub.Broadcast(DefaultRoom, Event{Type: "tick", Payload: i})
	}

	var last any
	n := 0
	for len(ch) > 0 {
		last = (<-ch).Payload
		n++
	}
	if n != hub.buffer {
		t.Fatalf("expected %d buffered events, got %d", hub.buffer, n)
	}
	if last != 19 {
		t.Fatalf("expected newest event to survive, got %v", last)
	}
}

func TestCancelRemovesEmptyRoom(t *testing.T) {
	hub := NewHub()
	ch, cancel := hub.Subscribe("r")
	if hub.Size("r") != 1 {
		t.Fatalf("expected one subscriber")
	}
	cancel()
	cancel()
	if _, ok := <-ch; ok {
		t.Fatalf("expected closed channel")
	}
	if hub.Size("r") != 0 {
		t.Fatalf("expected empty room")
	}
	if got := hub.Broadcast("r", Event{Type: "x"}); got != 0 {
		t.Fatalf("expected no receivers, got %d", got)
	}
}
