package engine

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"rewardkit/core"
)

func TestEventBusSyncDispatch(t *testing.T) {
	bus := NewEventBus(DispatchSync)
	var got int32
	unsub := bus.Subscribe(core.EventPointsAwarded, func(_ context.Context, e core.Event) {
		atomic.AddInt32(&got, 1)
	})
	bus.Publish(context.Background(), core.NewPointsAwarded("u1", core.ActivityClockIn, 10, 10))
	if atomic.LoadInt32(&got) != 1 {
		t.Fatal("sync dispatch should deliver immediately")
	}
	unsub()
	bus.Publish(context.Background(), core.NewPointsAwarded("u1", core.ActivityClockIn, 10, 20))
	if atomic.LoadInt32(&got) != 1 {
		t.Fatal("unsubscribed handler still invoked")
	}
}

func TestEventBusAsyncDispatch(t *testing.T) {
	bus := NewEventBus(DispatchAsync)
	defer bus.Close()
	var got int32
	bus.Subscribe(core.EventBadgeUnlocked, func(_ context.Context, e core.Event) {
		atomic.AddInt32(&got, 1)
	})
	bus.Publish(context.Background(), core.NewBadgeUnlocked("u1", core.BadgeFirstEvent))

	deadline := time.After(time.Second)
	for atomic.LoadInt32(&got) == 0 {
		select {
		case <-deadline:
			t.Fatal("async dispatch never delivered")
		case <-time.After(5 * time.Millisecond):
		}
	}
}
