package core

import (
	"errors"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

// UserID uniquely identifies a user in the rewards domain.
type UserID string

// ActivityType names a kind of client-submitted activity (clock-in, photo
// upload, ...). The closed set of valid types is defined by the rule table.
type ActivityType string

// BadgeCode identifies a one-time unlockable badge from the fixed catalog.
type BadgeCode string

// QuestCode identifies a quest definition.
type QuestCode string

// Day is a calendar day in the engine's reference timezone, formatted
// "2006-01-02". The zero value means "no day" (e.g., no activity yet).
type Day string

const dayLayout = "2006-01-02"

// DayOf returns the calendar day of t in the given location.
func DayOf(t time.Time, loc *time.Location) Day {
	if loc == nil {
		loc = time.UTC
	}
	return Day(t.In(loc).Format(dayLayout))
}

// Prev returns the calendar day before d. Invalid days return the zero Day.
func (d Day) Prev() Day {
	t, err := time.Parse(dayLayout, string(d))
	if err != nil {
		return ""
	}
	return Day(t.AddDate(0, 0, -1).Format(dayLayout))
}

// IsZero reports whether d carries no day.
func (d Day) IsZero() bool { return d == "" }

// Activity is one submitted activity occurrence, keyed by its idempotency
// key. Rows are logically append-only: a duplicate submission refreshes
// metadata but never changes the award side effects of the original.
type Activity struct {
	Key        string         `json:"idempotency_key" db:"idempotency_key"`
	ID         uuid.UUID      `json:"id" db:"id"`
	UserID     UserID         `json:"user_id" db:"user_id"`
	Type       ActivityType   `json:"event_type" db:"activity_type"`
	DeviceID   string         `json:"device_id,omitempty" db:"device_id"`
	OccurredAt time.Time      `json:"occurred_at" db:"occurred_at"`
	Day        Day            `json:"day" db:"day"`
	Lat        *float64       `json:"lat,omitempty" db:"lat"`
	Lng        *float64       `json:"lng,omitempty" db:"lng"`
	Metadata   map[string]any `json:"metadata,omitempty" db:"-"`
}

// Profile is the per-user aggregate mutated only by the engine. Level is
// always derived from Experience; Version backs optimistic concurrency.
type Profile struct {
	UserID        UserID    `json:"user_id" db:"user_id"`
	Points        int64     `json:"points" db:"points"`
	Experience    int64     `json:"experience" db:"experience"`
	Level         int       `json:"level" db:"level"`
	StreakCurrent int       `json:"streak_current" db:"streak_current"`
	StreakLongest int       `json:"streak_longest" db:"streak_longest"`
	LastActivity  Day       `json:"last_activity_date" db:"last_activity"`
	Version       int64     `json:"-" db:"version"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}

// BadgeGrant records a badge earned by a user. (UserID, Code) is unique.
type BadgeGrant struct {
	UserID   UserID    `json:"user_id" db:"user_id"`
	Code     BadgeCode `json:"badge_code" db:"badge_code"`
	EarnedAt time.Time `json:"earned_at" db:"earned_at"`
}

// Quest is a catalog entry describing a multi-step objective.
type Quest struct {
	Code   QuestCode `json:"quest_code"`
	Name   string    `json:"name"`
	Target int64     `json:"target"`
	Reward string    `json:"reward,omitempty"`
	Active bool      `json:"active"`
}

// QuestProgress is a monotonic per-(user, quest, key) accumulator. Updates
// are always relative increments applied atomically by the store.
type QuestProgress struct {
	UserID    UserID    `json:"user_id" db:"user_id"`
	Quest     QuestCode `json:"quest_code" db:"quest_code"`
	Key       string    `json:"progress_key" db:"progress_key"`
	Value     int64     `json:"progress_value" db:"progress_value"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// keyNamespace seeds deterministic fallback idempotency keys.
var keyNamespace = uuid.MustParse("5f1c7a52-9c3e-4f6a-8b1d-2e4a9c0d7b31")

// SynthesizeKey derives a deterministic idempotency key for callers that
// omitted one. Two submissions with the same user, type, device, and
// second-granularity timestamp collapse to the same key; this is weaker than
// a client-supplied key, so callers performing actions with real-world side
// effects should always supply their own.
func SynthesizeKey(user UserID, typ ActivityType, device string, at time.Time) string {
	sig := string(user) + "|" + string(typ) + "|" + device + "|" + at.UTC().Truncate(time.Second).Format(time.RFC3339)
	return uuid.NewSHA1(keyNamespace, []byte(sig)).String()
}

// AddSafe adds delta to base ensuring no signed overflow occurs.
func AddSafe(base int64, delta int64) (int64, error) {
	if (delta > 0 && base > math.MaxInt64-delta) || (delta < 0 && base < math.MinInt64-delta) {
		return 0, errors.New("integer overflow in AddSafe")
	}
	return base + delta, nil
}

// NormalizeUserID trims and lowercases user identifiers.
func NormalizeUserID(id UserID) (UserID, error) {
	s := strings.TrimSpace(string(id))
	if s == "" {
		return "", errors.New("empty user id")
	}
	return UserID(strings.ToLower(s)), nil
}

// ValidateIdempotencyKey checks a caller-supplied key for a sane charset.
func ValidateIdempotencyKey(key string) error {
	s := strings.TrimSpace(key)
	if s == "" {
		return errors.New("empty idempotency key")
	}
	if len(s) > 128 {
		return errors.New("idempotency key too long")
	}
	for _, r := range s {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-' || r == '_' || r == ':' || r == '.' {
			continue
		}
		return errors.New("invalid idempotency key")
	}
	return nil
}
