package reward

import (
	"context"
	"testing"

	"rewardkit/core"
	"rewardkit/engine"
	"rewardkit/leaderboard"
	"rewardkit/realtime"
)

func TestNewDefaultsAndOptions(t *testing.T) {
	hub := realtime.NewHub()
	board := leaderboard.NewSkipList()
	svc := New(
		WithRealtime(hub),
		WithLeaderboard(board),
		WithDispatchMode(engine.DispatchSync),
	)
	defer svc.Close()

	_, ch := hub.Subscribe(8)

	res, err := svc.Submit(context.Background(), engine.SubmitRequest{
		UserID: "alice", Type: core.ActivityClockIn, IdempotencyKey: "k-1",
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.AwardedPoints != 10 {
		t.Fatalf("expected 10 points, got %d", res.AwardedPoints)
	}

	// realtime bridge should receive the recorded event first
	ev := <-ch
	if ev.Type != core.EventActivityRecorded || ev.UserID != "alice" {
		t.Fatalf("unexpected event: %+v", ev)
	}

	// leaderboard follows awarded totals
	if entry, ok := board.Get("alice"); !ok || entry.Points != 10 {
		t.Fatalf("unexpected board entry: %+v ok=%v", entry, ok)
	}
}

func TestNewDefaultStorage(t *testing.T) {
	svc := New(WithDispatchMode(engine.DispatchSync))
	defer svc.Close()

	if _, err := svc.Submit(context.Background(), engine.SubmitRequest{
		UserID: "bob", Type: core.ActivityJobComplete, IdempotencyKey: "k-1",
	}); err != nil {
		t.Fatalf("default storage submit: %v", err)
	}
	p, found, err := svc.GetProfile(context.Background(), "bob")
	if err != nil || !found {
		t.Fatalf("profile lookup: found=%v err=%v", found, err)
	}
	if p.Points != 25 {
		t.Fatalf("expected 25 points, got %d", p.Points)
	}
}
