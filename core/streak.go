package core

// NextStreak applies the streak transition for an activity on today given
// the profile's last activity day:
//
//   - no prior activity       -> 1
//   - last == today           -> unchanged (same-day re-submission)
//   - last == yesterday       -> current + 1
//   - anything else           -> 1 (gap, or future date from clock skew)
func NextStreak(last Day, current int, today Day) int {
	switch {
	case last.IsZero():
		return 1
	case last == today:
		if current < 1 {
			return 1
		}
		return current
	case last == today.Prev():
		return current + 1
	default:
		return 1
	}
}

// LevelFor returns the level for the given experience against an ascending
// threshold table: the count of thresholds <= experience. It is recomputed
// from experience on every update so level can never drift.
func LevelFor(thresholds []int64, experience int64) int {
	lvl := 0
	for _, t := range thresholds {
		if experience < t {
			break
		}
		lvl++
	}
	return lvl
}

// DefaultLevelThresholds is the experience step table used when none is
// configured.
func DefaultLevelThresholds() []int64 {
	return []int64{0, 100, 250, 500, 900, 1400, 2000, 2800, 3800, 5000}
}

// Advance returns the profile after crediting an award on today: streak
// transition, point/experience accumulation, and level recompute. Version is
// bumped by one so the store can apply the write conditionally.
func (p Profile) Advance(award int64, today Day, thresholds []int64) (Profile, error) {
	next := p

	next.StreakCurrent = NextStreak(p.LastActivity, p.StreakCurrent, today)
	if next.StreakCurrent > next.StreakLongest {
		next.StreakLongest = next.StreakCurrent
	}
	next.LastActivity = today

	var err error
	if next.Points, err = AddSafe(p.Points, award); err != nil {
		return Profile{}, err
	}
	if next.Experience, err = AddSafe(p.Experience, award); err != nil {
		return Profile{}, err
	}
	next.Level = LevelFor(thresholds, next.Experience)
	next.Version = p.Version + 1
	return next, nil
}
