package analytics

import (
	"context"
	"sync"
	"time"

	"rewardkit/core"
)

// Hook receives domain events for KPI aggregation.
type Hook interface {
	OnEvent(e core.Event)
}

// Bridge fans one event out to multiple hooks.
type Bridge struct{ hooks []Hook }

func NewBridge(hooks ...Hook) *Bridge { return &Bridge{hooks: hooks} }

func (b *Bridge) OnEvent(e core.Event) {
	for _, h := range b.hooks {
		h.OnEvent(e)
	}
}

// Subscriber is satisfied by the engine service and the raw event bus.
type Subscriber interface {
	Subscribe(typ core.EventType, handler func(context.Context, core.Event)) func()
}

// Attach registers the hook for every engine event type. Returns a single
// unsubscribe function covering all registrations.
func Attach(h Hook, src Subscriber) func() {
	types := []core.EventType{
		core.EventActivityRecorded,
		core.EventPointsAwarded,
		core.EventBadgeUnlocked,
		core.EventLevelUp,
		core.EventQuestProgressed,
	}
	unsubs := make([]func(), 0, len(types))
	for _, typ := range types {
		unsubs = append(unsubs, src.Subscribe(typ, func(_ context.Context, e core.Event) {
			h.OnEvent(e)
		}))
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

// Metrics aggregates engagement and award KPIs in memory. Counters are keyed
// by UTC day strings ("2006-01-02").
type Metrics struct {
	mu sync.RWMutex

	activeUsersByDay map[string]map[core.UserID]struct{}

	eventsByType       map[core.ActivityType]int64
	duplicatesByType   map[core.ActivityType]int64
	pointsByDay        map[string]int64
	pointsByType       map[core.ActivityType]int64
	badgesByCode       map[core.BadgeCode]int64
	uniqueBadgeHolders map[core.BadgeCode]map[core.UserID]struct{}
	levelDistribution  map[int]int64
	questProgressHits  map[core.QuestCode]int64
}

func NewMetrics() *Metrics {
	return &Metrics{
		activeUsersByDay:   make(map[string]map[core.UserID]struct{}),
		eventsByType:       make(map[core.ActivityType]int64),
		duplicatesByType:   make(map[core.ActivityType]int64),
		pointsByDay:        make(map[string]int64),
		pointsByType:       make(map[core.ActivityType]int64),
		badgesByCode:       make(map[core.BadgeCode]int64),
		uniqueBadgeHolders: make(map[core.BadgeCode]map[core.UserID]struct{}),
		levelDistribution:  make(map[int]int64),
		questProgressHits:  make(map[core.QuestCode]int64),
	}
}

func dayKey(t time.Time) string { return t.UTC().Format("2006-01-02") }

func (m *Metrics) OnEvent(e core.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	day := dayKey(e.Time)
	if m.activeUsersByDay[day] == nil {
		m.activeUsersByDay[day] = make(map[core.UserID]struct{})
	}
	m.activeUsersByDay[day][e.UserID] = struct{}{}

	switch e.Type {
	case core.EventActivityRecorded:
		m.eventsByType[e.Activity]++
		if e.Duplicate {
			m.duplicatesByType[e.Activity]++
		}
	case core.EventPointsAwarded:
		if e.Points > 0 {
			m.pointsByDay[day] += e.Points
			m.pointsByType[e.Activity] += e.Points
		}
	case core.EventBadgeUnlocked:
		m.badgesByCode[e.Badge]++
		if m.uniqueBadgeHolders[e.Badge] == nil {
			m.uniqueBadgeHolders[e.Badge] = make(map[core.UserID]struct{})
		}
		m.uniqueBadgeHolders[e.Badge][e.UserID] = struct{}{}
	case core.EventLevelUp:
		m.levelDistribution[e.Level]++
	case core.EventQuestProgressed:
		m.questProgressHits[e.Quest]++
	}
}

// ActiveUsers returns the distinct-user count for a day key.
func (m *Metrics) ActiveUsers(day string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.activeUsersByDay[day])
}

// PointsByDay returns total awarded points for a day key.
func (m *Metrics) PointsByDay(day string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pointsByDay[day]
}

// PointsByType returns total awarded points for an activity type.
func (m *Metrics) PointsByType(typ core.ActivityType) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pointsByType[typ]
}

// EventCount returns accepted submissions for an activity type, including
// duplicates.
func (m *Metrics) EventCount(typ core.ActivityType) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.eventsByType[typ]
}

// DuplicateCount returns idempotent replays seen for an activity type.
func (m *Metrics) DuplicateCount(typ core.ActivityType) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.duplicatesByType[typ]
}

// BadgeHolders returns the distinct users holding a badge.
func (m *Metrics) BadgeHolders(code core.BadgeCode) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.uniqueBadgeHolders[code])
}

// Snapshot is a point-in-time export of the aggregates, safe to serialize.
type Snapshot struct {
	GeneratedAt       time.Time                   `json:"generated_at"`
	ActiveUsersByDay  map[string]int              `json:"active_users_by_day"`
	EventsByType      map[core.ActivityType]int64 `json:"events_by_type"`
	DuplicatesByType  map[core.ActivityType]int64 `json:"duplicates_by_type"`
	PointsByDay       map[string]int64            `json:"points_by_day"`
	PointsByType      map[core.ActivityType]int64 `json:"points_by_type"`
	BadgesByCode      map[core.BadgeCode]int64    `json:"badges_by_code"`
	LevelDistribution map[int]int64               `json:"level_distribution"`
	QuestProgressHits map[core.QuestCode]int64    `json:"quest_progress_hits"`
}

func (m *Metrics) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := Snapshot{
		GeneratedAt:       time.Now().UTC(),
		ActiveUsersByDay:  make(map[string]int, len(m.activeUsersByDay)),
		EventsByType:      make(map[core.ActivityType]int64, len(m.eventsByType)),
		DuplicatesByType:  make(map[core.ActivityType]int64, len(m.duplicatesByType)),
		PointsByDay:       make(map[string]int64, len(m.pointsByDay)),
		PointsByType:      make(map[core.ActivityType]int64, len(m.pointsByType)),
		BadgesByCode:      make(map[core.BadgeCode]int64, len(m.badgesByCode)),
		LevelDistribution: make(map[int]int64, len(m.levelDistribution)),
		QuestProgressHits: make(map[core.QuestCode]int64, len(m.questProgressHits)),
	}
	for day, users := range m.activeUsersByDay {
		s.ActiveUsersByDay[day] = len(users)
	}
	for k, v := range m.eventsByType {
		s.EventsByType[k] = v
	}
	for k, v := range m.duplicatesByType {
		s.DuplicatesByType[k] = v
	}
	for k, v := range m.pointsByDay {
		s.PointsByDay[k] = v
	}
	for k, v := range m.pointsByType {
		s.PointsByType[k] = v
	}
	for k, v := range m.badgesByCode {
		s.BadgesByCode[k] = v
	}
	for k, v := range m.levelDistribution {
		s.LevelDistribution[k] = v
	}
	for k, v := range m.questProgressHits {
		s.QuestProgressHits[k] = v
	}
	return s
}
