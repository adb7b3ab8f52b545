package analytics

import (
	"context"
	"testing"
	"time"

	"rewardkit/core"
	"rewardkit/engine"
)

func TestMetricsAggregation(t *testing.T) {
	m := NewMetrics()
	day := time.Now().UTC().Format("2006-01-02")

	m.OnEvent(core.NewActivityRecorded("u1", core.ActivityClockIn, false))
	m.OnEvent(core.NewActivityRecorded("u1", core.ActivityClockIn, true))
	m.OnEvent(core.NewPointsAwarded("u1", core.ActivityClockIn, 10, 10))
	m.OnEvent(core.NewPointsAwarded("u2", core.ActivityJobComplete, 25, 25))
	m.OnEvent(core.NewBadgeUnlocked("u1", core.BadgeFirstEvent))
	m.OnEvent(core.NewBadgeUnlocked("u2", core.BadgeFirstEvent))
	m.OnEvent(core.NewLevelUp("u2", 2))

	if got := m.ActiveUsers(day); got != 2 {
		t.Fatalf("expected 2 active users, got %d", got)
	}
	if got := m.PointsByDay(day); got != 35 {
		t.Fatalf("expected 35 points, got %d", got)
	}
	if got := m.PointsByType(core.ActivityJobComplete); got != 25 {
		t.Fatalf("expected 25 points for job_complete, got %d", got)
	}
	if got := m.EventCount(core.ActivityClockIn); got != 2 {
		t.Fatalf("expected 2 clock_in events, got %d", got)
	}
	if got := m.DuplicateCount(core.ActivityClockIn); got != 1 {
		t.Fatalf("expected 1 duplicate, got %d", got)
	}
	if got := m.BadgeHolders(core.BadgeFirstEvent); got != 2 {
		t.Fatalf("expected 2 badge holders, got %d", got)
	}
}

func TestMetricsZeroAwardNotCounted(t *testing.T) {
	m := NewMetrics()
	day := time.Now().UTC().Format("2006-01-02")

	// Cap-exhausted submissions award zero and must not skew point totals,
	// but the user still counts as active.
	m.OnEvent(core.NewPointsAwarded("u1", core.ActivityClockIn, 0, 10))

	if got := m.PointsByDay(day); got != 0 {
		t.Fatalf("expected 0 points, got %d", got)
	}
	if got := m.ActiveUsers(day); got != 1 {
		t.Fatalf("expected 1 active user, got %d", got)
	}
}

func TestAttachReceivesBusEvents(t *testing.T) {
	m := NewMetrics()
	bus := engine.NewEventBus(engine.DispatchSync)
	defer bus.Close()
	unsub := Attach(m, bus)

	bus.Publish(context.Background(), core.NewPointsAwarded("u1", core.ActivityClockIn, 10, 10))
	bus.Publish(context.Background(), core.NewQuestProgressed("u1", core.QuestSafetyFirst, "checks", 1))

	if got := m.PointsByType(core.ActivityClockIn); got != 10 {
		t.Fatalf("expected 10 points via bus, got %d", got)
	}
	snap := m.Snapshot()
	if snap.QuestProgressHits[core.QuestSafetyFirst] != 1 {
		t.Fatalf("expected quest hit in snapshot, got %+v", snap.QuestProgressHits)
	}

	unsub()
	bus.Publish(context.Background(), core.NewPointsAwarded("u1", core.ActivityClockIn, 10, 20))
	if got := m.PointsByType(core.ActivityClockIn); got != 10 {
		t.Fatalf("unsubscribed hook still receiving events: %d", got)
	}
}

func TestBridgeFansOut(t *testing.T) {
	a, b := NewMetrics(), NewMetrics()
	bridge := NewBridge(a, b)

	bridge.OnEvent(core.NewBadgeUnlocked("u1", core.BadgeStreak7))

	if a.BadgeHolders(core.BadgeStreak7) != 1 || b.BadgeHolders(core.BadgeStreak7) != 1 {
		t.Fatal("both hooks should have observed the event")
	}
}
