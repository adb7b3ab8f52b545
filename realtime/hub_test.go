package realtime

import (
	"context"
	"testing"

	"rewardkit/core"
)

func TestHubBroadcast(t *testing.T) {
	h := NewHub()
	id, ch := h.Subscribe(4)
	defer h.Unsubscribe(id)

	h.Broadcast(context.Background(), core.NewBadgeUnlocked("u1", core.BadgeFirstEvent))
	ev := <-ch
	if ev.Type != core.EventBadgeUnlocked || ev.Badge != core.BadgeFirstEvent {
		t.Fatalf("unexpected event: %+v", ev)
	}
}

func TestHubUserScopedSubscription(t *testing.T) {
	h := NewHub()
	id, ch := h.SubscribeUser("u1", 4)
	defer h.Unsubscribe(id)

	h.Broadcast(context.Background(), core.NewPointsAwarded("u2", core.ActivityClockIn, 10, 10))
	h.Broadcast(context.Background(), core.NewPointsAwarded("u1", core.ActivityClockIn, 10, 10))

	ev := <-ch
	if ev.UserID != "u1" {
		t.Fatalf("received event for wrong user: %+v", ev)
	}
	select {
	case extra := <-ch:
		t.Fatalf("unexpected extra event: %+v", extra)
	default:
	}
}

func TestHubUnsubscribeClosesChannel(t *testing.T) {
	h := NewHub()
	id, ch := h.Subscribe(1)
	h.Unsubscribe(id)
	if _, open := <-ch; open {
		t.Fatal("channel should be closed after unsubscribe")
	}
}
