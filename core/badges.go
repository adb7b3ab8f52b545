package core

// EvalContext is the post-update state a badge condition is checked against.
type EvalContext struct {
	Profile    Profile
	FirstEvent bool // profile did not exist before this submission
}

// Condition decides whether a badge unlocks. Implementations must be pure:
// the engine handles already-earned suppression via the store's uniqueness
// guarantee.
type Condition interface {
	Met(EvalContext) bool
}

// FirstEventEver unlocks on the first activity ever recorded for a user.
type FirstEventEver struct{}

func (FirstEventEver) Met(c EvalContext) bool { return c.FirstEvent }

// StreakAtLeast unlocks when the current streak reaches N days.
type StreakAtLeast struct{ N int }

func (s StreakAtLeast) Met(c EvalContext) bool { return c.Profile.StreakCurrent >= s.N }

// PointsAtLeast unlocks when lifetime points reach N.
type PointsAtLeast struct{ N int64 }

func (p PointsAtLeast) Met(c EvalContext) bool { return c.Profile.Points >= p.N }

// LevelAtLeast unlocks when the profile level reaches N.
type LevelAtLeast struct{ N int }

func (l LevelAtLeast) Met(c EvalContext) bool { return c.Profile.Level >= l.N }

// BadgeSpec pairs a badge code with its unlock condition.
type BadgeSpec struct {
	Code      BadgeCode
	Condition Condition
}

// Built-in badge codes.
const (
	BadgeFirstEvent BadgeCode = "FIRST_EVENT"
	BadgeStreak3    BadgeCode = "STREAK_3"
	BadgeStreak7    BadgeCode = "STREAK_7"
	BadgeStreak30   BadgeCode = "STREAK_30"
	BadgePoints1000 BadgeCode = "POINTS_1000"
	BadgeLevel5     BadgeCode = "LEVEL_5"
)

// DefaultBadgeCatalog returns the built-in unlock conditions.
func DefaultBadgeCatalog() []BadgeSpec {
	return []BadgeSpec{
		{Code: BadgeFirstEvent, Condition: FirstEventEver{}},
		{Code: BadgeStreak3, Condition: StreakAtLeast{N: 3}},
		{Code: BadgeStreak7, Condition: StreakAtLeast{N: 7}},
		{Code: BadgeStreak30, Condition: StreakAtLeast{N: 30}},
		{Code: BadgePoints1000, Condition: PointsAtLeast{N: 1000}},
		{Code: BadgeLevel5, Condition: LevelAtLeast{N: 5}},
	}
}

// ValidateBadgeCode ensures a non-empty code with a simple charset.
func ValidateBadgeCode(b BadgeCode) error {
	if b == "" {
		return errEmptyBadge
	}
	for _, r := range b {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-' || r == '_' {
			continue
		}
		return errInvalidBadge
	}
	return nil
}
