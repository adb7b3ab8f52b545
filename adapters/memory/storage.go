package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"rewardkit/core"
)

// Store is a concurrent in-memory Storage implementation for tests and
// demos. Per-user state serializes on a record mutex; the activity ledger
// has its own lock so different users never contend on profile writes.
type Store struct {
	actMu sync.Mutex
	acts  map[string]core.Activity

	users sync.Map // map[core.UserID]*userRecord
}

type userRecord struct {
	mu      sync.Mutex
	exists  bool
	profile core.Profile
	badges  map[core.BadgeCode]core.BadgeGrant
	quests  map[questKey]core.QuestProgress
}

type questKey struct {
	quest core.QuestCode
	key   string
}

func New() *Store {
	return &Store{acts: make(map[string]core.Activity)}
}

func (s *Store) getOrCreate(user core.UserID) *userRecord {
	if v, ok := s.users.Load(user); ok {
		return v.(*userRecord)
	}
	rec := &userRecord{
		badges: make(map[core.BadgeCode]core.BadgeGrant),
		quests: make(map[questKey]core.QuestProgress),
	}
	actual, _ := s.users.LoadOrStore(user, rec)
	return actual.(*userRecord)
}

func (s *Store) UpsertActivity(_ context.Context, a core.Activity) (bool, error) {
	s.actMu.Lock()
	defer s.actMu.Unlock()
	if prev, ok := s.acts[a.Key]; ok {
		// Refresh metadata only; the original occurrence is immutable.
		prev.Metadata = a.Metadata
		s.acts[a.Key] = prev
		return true, nil
	}
	s.acts[a.Key] = a
	return false, nil
}

func (s *Store) CountActivities(_ context.Context, user core.UserID, typ core.ActivityType, day core.Day, excludeKey string) (int64, error) {
	s.actMu.Lock()
	defer s.actMu.Unlock()
	var n int64
	for key, a := range s.acts {
		if key == excludeKey {
			continue
		}
		if a.UserID == user && a.Type == typ && a.Day == day {
			n++
		}
	}
	return n, nil
}

func (s *Store) GetProfile(_ context.Context, user core.UserID) (core.Profile, bool, error) {
	rec := s.getOrCreate(user)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if !rec.exists {
		return core.Profile{}, false, nil
	}
	return rec.profile, true, nil
}

func (s *Store) SaveProfile(_ context.Context, p core.Profile) error {
	rec := s.getOrCreate(p.UserID)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if !rec.exists {
		if p.Version != 1 {
			return core.ErrConflict
		}
	} else if p.Version != rec.profile.Version+1 {
		return core.ErrConflict
	}
	rec.profile = p
	rec.exists = true
	return nil
}

func (s *Store) InsertBadge(_ context.Context, g core.BadgeGrant) (bool, error) {
	rec := s.getOrCreate(g.UserID)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if _, ok := rec.badges[g.Code]; ok {
		return false, nil
	}
	rec.badges[g.Code] = g
	return true, nil
}

func (s *Store) ListBadges(_ context.Context, user core.UserID) ([]core.BadgeGrant, error) {
	rec := s.getOrCreate(user)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	out := make([]core.BadgeGrant, 0, len(rec.badges))
	for _, g := range rec.badges {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (s *Store) IncrementQuestProgress(_ context.Context, user core.UserID, quest core.QuestCode, key string, delta int64) (int64, error) {
	rec := s.getOrCreate(user)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	k := questKey{quest: quest, key: key}
	row, ok := rec.quests[k]
	if !ok {
		row = core.QuestProgress{UserID: user, Quest: quest, Key: key}
	}
	row.Value += delta
	row.UpdatedAt = time.Now().UTC()
	rec.quests[k] = row
	return row.Value, nil
}

func (s *Store) ListQuestProgress(_ context.Context, user core.UserID) ([]core.QuestProgress, error) {
	rec := s.getOrCreate(user)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	out := make([]core.QuestProgress, 0, len(rec.quests))
	for _, row := range rec.quests {
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Quest == out[j].Quest {
			return out[i].Key < out[j].Key
		}
		return out[i].Quest < out[j].Quest
	})
	return out, nil
}

var _ interface {
	UpsertActivity(context.Context, core.Activity) (bool, error)
	CountActivities(context.Context, core.UserID, core.ActivityType, core.Day, string) (int64, error)
	GetProfile(context.Context, core.UserID) (core.Profile, bool, error)
	SaveProfile(context.Context, core.Profile) error
	InsertBadge(context.Context, core.BadgeGrant) (bool, error)
	ListBadges(context.Context, core.UserID) ([]core.BadgeGrant, error)
	IncrementQuestProgress(context.Context, core.UserID, core.QuestCode, string, int64) (int64, error)
	ListQuestProgress(context.Context, core.UserID) ([]core.QuestProgress, error)
} = (*Store)(nil)
