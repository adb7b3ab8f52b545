package sdk

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	mem "rewardkit/adapters/memory"
	"rewardkit/api/httpapi"
	"rewardkit/auth"
	"rewardkit/core"
	"rewardkit/engine"
	"rewardkit/leaderboard"
	"rewardkit/realtime"
)

// The SDK is exercised against the real API handler rather than a hand-rolled
// fake so request and response shapes cannot drift.
func newTestServer() *httptest.Server {
	storage := mem.New()
	bus := engine.NewEventBus(engine.DispatchSync)
	svc := engine.NewIngestService(storage, bus, core.DefaultRuleset())
	hub := realtime.NewHub()
	for _, typ := range []core.EventType{core.EventPointsAwarded, core.EventBadgeUnlocked} {
		bus.Subscribe(typ, func(ctx context.Context, e core.Event) { hub.Broadcast(ctx, e) })
	}
	board := leaderboard.NewSkipList()
	leaderboard.Follow(board, bus)
	provider := auth.StaticTokens{"tok-1": "tech-1"}
	return httptest.NewServer(httpapi.NewMux(svc, hub, provider, board, httpapi.Options{PathPrefix: "/api"}))
}

func TestClientSubmitAndRead(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()

	client, err := NewClient(srv.URL+"/api", WithAuthToken("tok-1"))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	ctx := context.Background()

	res, err := client.SubmitEvent(ctx, EventSubmission{EventType: "job_complete", IdempotencyKey: "k-1"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.AwardedPoints != 25 || res.Duplicate {
		t.Fatalf("unexpected result: %+v", res)
	}

	replay, err := client.SubmitEvent(ctx, EventSubmission{EventType: "job_complete", IdempotencyKey: "k-1"})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if !replay.Duplicate || replay.AwardedPoints != 0 {
		t.Fatalf("expected duplicate replay, got %+v", replay)
	}

	profile, err := client.GetProfile(ctx)
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	if profile.Profile.Points != 25 || len(profile.Badges) != 1 {
		t.Fatalf("unexpected profile: %+v", profile)
	}

	quests, err := client.Quests(ctx)
	if err != nil || len(quests) == 0 {
		t.Fatalf("quests: %v (%d)", err, len(quests))
	}

	lb, err := client.Leaderboard(ctx, 5)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(lb.Entries) != 1 || lb.Entries[0].Points != 25 {
		t.Fatalf("unexpected leaderboard: %+v", lb)
	}
	if lb.Me == nil || lb.Me.Rank != 1 {
		t.Fatalf("expected own rank 1, got %+v", lb.Me)
	}

	health, err := client.Health(ctx)
	if err != nil || health.Status != "healthy" {
		t.Fatalf("health: %+v err=%v", health, err)
	}
}

func TestClientRejectsBadToken(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()

	client, err := NewClient(srv.URL+"/api", WithAuthToken("wrong"))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := client.GetProfile(context.Background()); err == nil {
		t.Fatal("expected error for bad token")
	}
}

func TestClientStreamEvents(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()

	client, err := NewClient(srv.URL+"/api", WithAuthToken("tok-1"))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	events, err := client.StreamEvents(ctx, "tech-1")
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	// Let the server register its hub subscription before submitting.
	time.Sleep(50 * time.Millisecond)

	if _, err := client.SubmitEvent(ctx, EventSubmission{EventType: "clock_in", IdempotencyKey: "k-ws"}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	select {
	case evt := <-events:
		if evt.UserID != "tech-1" {
			t.Fatalf("unexpected event: %+v", evt)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for event")
	}
}
