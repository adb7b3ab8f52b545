package engine

import (
	"context"

	"rewardkit/core"
)

// Storage abstracts the four durable collections behind the engine. All
// cross-request coordination is delegated to these primitives; the engine
// holds no lock across any of these calls.
type Storage interface {
	// UpsertActivity inserts the activity keyed by its idempotency key, or
	// refreshes metadata when the key already exists. existed reports whether
	// the key had been seen before; it is the only duplicate-suppression
	// point in the system.
	UpsertActivity(ctx context.Context, a core.Activity) (existed bool, err error)

	// CountActivities counts ledger rows for (user, type, day), excluding the
	// row with excludeKey so the result is the number of prior occurrences.
	CountActivities(ctx context.Context, user core.UserID, typ core.ActivityType, day core.Day, excludeKey string) (int64, error)

	// GetProfile returns the profile and whether it exists.
	GetProfile(ctx context.Context, user core.UserID) (core.Profile, bool, error)

	// SaveProfile writes p conditionally: insert when p.Version == 1 and no
	// row exists, otherwise replace the row whose version is p.Version-1.
	// Returns core.ErrConflict when the condition fails.
	SaveProfile(ctx context.Context, p core.Profile) error

	// InsertBadge grants a badge idempotently. granted is false when the
	// (user, code) pair already existed; that is not an error.
	InsertBadge(ctx context.Context, g core.BadgeGrant) (granted bool, err error)

	// ListBadges returns all badges earned by the user.
	ListBadges(ctx context.Context, user core.UserID) ([]core.BadgeGrant, error)

	// IncrementQuestProgress atomically applies a relative delta to the
	// (user, quest, key) counter, creating it on first touch, and returns the
	// new value. Callers must never read-then-write around this.
	IncrementQuestProgress(ctx context.Context, user core.UserID, quest core.QuestCode, key string, delta int64) (int64, error)

	// ListQuestProgress returns all progress rows for the user.
	ListQuestProgress(ctx context.Context, user core.UserID) ([]core.QuestProgress, error)
}
