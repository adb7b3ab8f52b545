package core

import "time"

// EventType enumerates engine-emitted domain events.
type EventType string

const (
	EventActivityRecorded EventType = "activity_recorded"
	EventPointsAwarded    EventType = "points_awarded"
	EventBadgeUnlocked    EventType = "badge_unlocked"
	EventLevelUp          EventType = "level_up"
	EventQuestProgressed  EventType = "quest_progressed"
)

// Event represents an immutable domain event published on the engine bus.
type Event struct {
	Type        EventType    `json:"type"`
	Time        time.Time    `json:"time"`
	UserID      UserID       `json:"user_id"`
	Activity    ActivityType `json:"activity,omitempty"`
	Duplicate   bool         `json:"duplicate,omitempty"`
	Points      int64        `json:"points,omitempty"`
	TotalPoints int64        `json:"total_points,omitempty"`
	Badge       BadgeCode    `json:"badge,omitempty"`
	Level       int          `json:"level,omitempty"`
	Quest       QuestCode    `json:"quest,omitempty"`
	ProgressKey string       `json:"progress_key,omitempty"`
	Progress    int64        `json:"progress,omitempty"`
}

func NewActivityRecorded(user UserID, typ ActivityType, duplicate bool) Event {
	return Event{Type: EventActivityRecorded, Time: time.Now().UTC(), UserID: user, Activity: typ, Duplicate: duplicate}
}

func NewPointsAwarded(user UserID, typ ActivityType, points int64, total int64) Event {
	return Event{Type: EventPointsAwarded, Time: time.Now().UTC(), UserID: user, Activity: typ, Points: points, TotalPoints: total}
}

func NewBadgeUnlocked(user UserID, badge BadgeCode) Event {
	return Event{Type: EventBadgeUnlocked, Time: time.Now().UTC(), UserID: user, Badge: badge}
}

func NewLevelUp(user UserID, level int) Event {
	return Event{Type: EventLevelUp, Time: time.Now().UTC(), UserID: user, Level: level}
}

func NewQuestProgressed(user UserID, quest QuestCode, key string, progress int64) Event {
	return Event{Type: EventQuestProgressed, Time: time.Now().UTC(), UserID: user, Quest: quest, ProgressKey: key, Progress: progress}
}
