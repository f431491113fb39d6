package redis

import (
	"context"
	"testing"
	"time"

	"classroom-quiz-service/internal/domain"
)

type captureSink struct {
	got chan domain.LeaderboardUpdate
}

func (c *captureSink) Publish(_ context.Context, update domain.LeaderboardUpdate) error {
	c.got <- update
	return nil
}

func TestBusForwardsUpdatesAcrossInstances(t *testing.T) {
	mr := runMiniredis(t)
	publisher := NewBus(newClient(mr), "test:")
	subscriber := NewBus(newClient(mr), "test:")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sink := &captureSink{got: make(chan domain.LeaderboardUpdate, 1)}
	ready := make(chan struct{})
	go func() {
		_ = subscriber.Run(ctx, sink, ready)
	}()
	<-ready

	sent := domain.LeaderboardUpdate{Reason: domain.UpdateCompleted, Name: "Ada", USN: "eng001", Percentage: 25, Score: 5, TotalQuestions: 20}
	if err := publisher.Publish(ctx, sent); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case got := <-sink.got:
		if got.Name != "Ada" || got.Percentage != 25 || got.Reason != domain.UpdateCompleted {
			t.Fatalf("unexpected update %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for forwarded update")
	}
}
