package sdk

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// EventSubmission is the POST /events request body.
type EventSubmission struct {
	EventType      string         `json:"event_type"`
	IdempotencyKey string         `json:"idempotency_key,omitempty"`
	DeviceID       string         `json:"device_id,omitempty"`
	Lat            *float64       `json:"lat,omitempty"`
	Lng            *float64       `json:"lng,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// Profile mirrors the public JSON surface of the profile aggregate.
type Profile struct {
	UserID        string    `json:"user_id"`
	Points        int64     `json:"points"`
	Experience    int64     `json:"experience"`
	Level         int       `json:"level"`
	StreakCurrent int       `json:"streak_current"`
	StreakLongest int       `json:"streak_longest"`
	LastActivity  string    `json:"last_activity_date,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// EventResult is the POST /events response.
type EventResult struct {
	AwardedPoints int64    `json:"awarded_points"`
	Duplicate     bool     `json:"duplicate"`
	Profile       Profile  `json:"profile"`
	NewBadges     []string `json:"new_badges,omitempty"`
}

// BadgeGrant is one earned badge.
type BadgeGrant struct {
	Code     string    `json:"badge_code"`
	EarnedAt time.Time `json:"earned_at"`
}

// ProfileResult is the GET /profile response.
type ProfileResult struct {
	Profile Profile      `json:"profile"`
	Badges  []BadgeGrant `json:"badges,omitempty"`
}

// QuestStatus is one row of the GET /quests response.
type QuestStatus struct {
	Quest struct {
		Code   string `json:"quest_code"`
		Name   string `json:"name"`
		Target int64  `json:"target"`
		Reward string `json:"reward,omitempty"`
	} `json:"quest"`
	Total     int64 `json:"total"`
	Completed bool  `json:"completed"`
}

// LeaderboardEntry is one ranked row.
type LeaderboardEntry struct {
	User   string `json:"user_id"`
	Points int64  `json:"points"`
	Rank   int    `json:"rank,omitempty"`
}

// LeaderboardResult is the GET /leaderboard response.
type LeaderboardResult struct {
	Entries []LeaderboardEntry `json:"entries"`
	Me      *LeaderboardEntry  `json:"me,omitempty"`
}

// HealthStatus describes the /healthz response.
type HealthStatus struct {
	Status string                 `json:"status"`
	Checks map[string]interface{} `json:"checks"`
}

func decodeJSON(resp *http.Response, target any) error {
	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Code != "" {
			return fmt.Errorf("request failed: status %d: %s: %s", resp.StatusCode, apiErr.Code, apiErr.Message)
		}
		return fmt.Errorf("request failed: status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(target)
}

// ErrEmptyEventType is returned when the event type is empty.
var ErrEmptyEventType = errors.New("event type is required")
