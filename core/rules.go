package core

import "time"

// QuestHook links an activity type to a quest counter: each accepted
// activity of that type applies Delta to (quest, key) through the store's
// atomic increment.
type QuestHook struct {
	Quest QuestCode `json:"quest_code"`
	Key   string    `json:"progress_key"`
	Delta int64     `json:"delta"`
}

// Rule maps an activity type to its award. DailyCap <= 0 means uncapped.
type Rule struct {
	BasePoints int64       `json:"base_points"`
	DailyCap   int64       `json:"daily_cap"`
	Quests     []QuestHook `json:"quests,omitempty"`
}

// RuleTable is the closed set of activity types the engine accepts. It is
// configuration: read-only during ingestion, replaced wholesale on reload.
type RuleTable map[ActivityType]Rule

// Lookup returns the rule for typ or ErrUnknownEventType.
func (t RuleTable) Lookup(typ ActivityType) (Rule, error) {
	r, ok := t[typ]
	if !ok {
		return Rule{}, ErrUnknownEventType
	}
	return r, nil
}

// AwardUnderCap computes the points for one more activity given prior
// same-day occurrences. The cap is hit exactly, never overshot: the last
// awarding occurrence may receive partial credit.
func AwardUnderCap(prior int64, base int64, dailyCap int64) int64 {
	if base <= 0 {
		return 0
	}
	if dailyCap <= 0 {
		return base
	}
	used := prior * base
	switch {
	case used >= dailyCap:
		return 0
	case used+base > dailyCap:
		return dailyCap - used
	default:
		return base
	}
}

// Field-service activity vocabulary covered by the default rules.
const (
	ActivityClockIn          ActivityType = "clock_in"
	ActivityClockOut         ActivityType = "clock_out"
	ActivityPhotoUpload      ActivityType = "photo_upload"
	ActivityJobStatusChange  ActivityType = "job_status_change"
	ActivityJobComplete      ActivityType = "job_complete"
	ActivitySafetyCheck      ActivityType = "safety_check"
	ActivityTrainingComplete ActivityType = "training_complete"
	ActivityInvoiceSent      ActivityType = "invoice_sent"
)

// DefaultRuleTable returns the built-in awards. Deployments override entries
// from configuration without a deploy.
func DefaultRuleTable() RuleTable {
	return RuleTable{
		ActivityClockIn:          {BasePoints: 10, DailyCap: 10},
		ActivityClockOut:         {BasePoints: 5, DailyCap: 5},
		ActivityPhotoUpload:      {BasePoints: 3, DailyCap: 15, Quests: []QuestHook{{Quest: QuestPhotoDocumenter, Key: "photos", Delta: 1}}},
		ActivityJobStatusChange:  {BasePoints: 2, DailyCap: 20},
		ActivityJobComplete:      {BasePoints: 25, Quests: []QuestHook{{Quest: QuestJobFinisher, Key: "jobs", Delta: 1}}},
		ActivitySafetyCheck:      {BasePoints: 8, DailyCap: 8, Quests: []QuestHook{{Quest: QuestSafetyFirst, Key: "checks", Delta: 1}}},
		ActivityTrainingComplete: {BasePoints: 50},
		ActivityInvoiceSent:      {BasePoints: 15, DailyCap: 45},
	}
}

// Default quest catalog.
const (
	QuestPhotoDocumenter QuestCode = "photo_documenter"
	QuestJobFinisher     QuestCode = "job_finisher"
	QuestSafetyFirst     QuestCode = "safety_first"
)

// DefaultQuestCatalog returns the built-in quest definitions.
func DefaultQuestCatalog() []Quest {
	return []Quest{
		{Code: QuestPhotoDocumenter, Name: "Photo Documenter", Target: 25, Reward: "wallpaper_pack", Active: true},
		{Code: QuestJobFinisher, Name: "Job Finisher", Target: 10, Reward: "bonus_xp", Active: true},
		{Code: QuestSafetyFirst, Name: "Safety First", Target: 30, Active: true},
	}
}

// Ruleset bundles everything the engine treats as read-only during a single
// ingestion: the rule table, badge catalog, quest catalog, level thresholds,
// and the reference timezone for day boundaries.
type Ruleset struct {
	Table    RuleTable
	Badges   []BadgeSpec
	Quests   []Quest
	Levels   []int64
	Location *time.Location
}

// DefaultRuleset returns the built-in configuration with UTC day boundaries.
func DefaultRuleset() Ruleset {
	return Ruleset{
		Table:    DefaultRuleTable(),
		Badges:   DefaultBadgeCatalog(),
		Quests:   DefaultQuestCatalog(),
		Levels:   DefaultLevelThresholds(),
		Location: time.UTC,
	}
}
