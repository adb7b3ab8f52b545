package leaderboard

import (
	"context"

	"rewardkit/core"
)

// Entry is one ranked row: a user and their lifetime points.
type Entry struct {
	User   core.UserID `json:"user_id"`
	Points int64       `json:"points"`
}

// Board abstracts ranking operations over lifetime points.
type Board interface {
	Update(user core.UserID, points int64)
	Remove(user core.UserID)
	TopN(n int) []Entry
	Get(user core.UserID) (Entry, bool)
	Rank(user core.UserID) (int, bool)
	Len() int
}

// Subscriber is satisfied by the engine service and the raw event bus.
type Subscriber interface {
	Subscribe(typ core.EventType, handler func(context.Context, core.Event)) func()
}

// Follow keeps the board in sync with points_awarded events. The event
// carries the user's lifetime total after the award, so each update is a
// full replacement, not an increment. Returns the unsubscribe function.
func Follow(board Board, src Subscriber) func() {
	return src.Subscribe(core.EventPointsAwarded, func(_ context.Context, ev core.Event) {
		board.Update(ev.UserID, ev.TotalPoints)
	})
}
