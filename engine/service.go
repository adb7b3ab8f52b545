package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"rewardkit/core"
)

const defaultSaveRetries = 5

// IngestService orchestrates one activity submission end to end: ledger
// upsert, daily-cap evaluation, profile read-modify-write, badge unlocks,
// and quest increments. All side effects are persisted before Submit
// returns.
type IngestService struct {
	storage Storage
	bus     *EventBus
	rules   core.Ruleset
	clock   func() time.Time
	retries int
	log     *slog.Logger
}

// Option tweaks service behavior (mainly for tests).
type Option func(*IngestService)

// WithClock overrides the server clock.
func WithClock(fn func() time.Time) Option {
	return func(s *IngestService) {
		if fn != nil {
			s.clock = fn
		}
	}
}

// WithSaveRetries bounds the optimistic profile write loop.
func WithSaveRetries(n int) Option {
	return func(s *IngestService) {
		if n > 0 {
			s.retries = n
		}
	}
}

// WithLogger overrides the default slog logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *IngestService) {
		if l != nil {
			s.log = l
		}
	}
}

func NewIngestService(storage Storage, bus *EventBus, rules core.Ruleset, opts ...Option) *IngestService {
	if storage == nil || bus == nil {
		panic("NewIngestService requires non-nil storage and bus")
	}
	if rules.Table == nil {
		rules.Table = core.DefaultRuleTable()
	}
	if rules.Levels == nil {
		rules.Levels = core.DefaultLevelThresholds()
	}
	if rules.Location == nil {
		rules.Location = time.UTC
	}
	s := &IngestService{
		storage: storage,
		bus:     bus,
		rules:   rules,
		clock:   time.Now,
		retries: defaultSaveRetries,
		log:     slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// SubmitRequest is one activity submission bound to an authenticated user.
type SubmitRequest struct {
	UserID         core.UserID
	Type           core.ActivityType
	IdempotencyKey string
	DeviceID       string
	Lat            *float64
	Lng            *float64
	Metadata       map[string]any
}

// SubmitResult composes the award outcome with the updated profile snapshot.
type SubmitResult struct {
	AwardedPoints int64
	Duplicate     bool
	Profile       core.Profile
	NewBadges     []core.BadgeCode
}

// Submit runs the ingestion pipeline. Validation happens before any write;
// once the ledger upsert reports a known idempotency key, the award pipeline
// is skipped and only the (idempotent) badge evaluation re-runs so that a
// retried request converges after a partial failure.
func (s *IngestService) Submit(ctx context.Context, req SubmitRequest) (SubmitResult, error) {
	user, err := core.NormalizeUserID(req.UserID)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("%w: %v", core.ErrUnauthenticated, err)
	}
	rule, err := s.rules.Table.Lookup(req.Type)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("%w: %q", core.ErrUnknownEventType, req.Type)
	}

	now := s.clock().UTC()
	today := core.DayOf(now, s.rules.Location)

	key := strings.TrimSpace(req.IdempotencyKey)
	if key == "" {
		key = core.SynthesizeKey(user, req.Type, req.DeviceID, now)
	} else if err := core.ValidateIdempotencyKey(key); err != nil {
		return SubmitResult{}, fmt.Errorf("idempotency key: %w", err)
	}

	activity := core.Activity{
		Key:        key,
		ID:         uuid.New(),
		UserID:     user,
		Type:       req.Type,
		DeviceID:   req.DeviceID,
		OccurredAt: now,
		Day:        today,
		Lat:        req.Lat,
		Lng:        req.Lng,
		Metadata:   req.Metadata,
	}

	existed, err := s.storage.UpsertActivity(ctx, activity)
	if err != nil {
		return SubmitResult{}, storeErr("record activity", err)
	}
	s.bus.Publish(ctx, core.NewActivityRecorded(user, req.Type, existed))

	if existed {
		return s.replayResult(ctx, user, now)
	}

	prior, err := s.storage.CountActivities(ctx, user, req.Type, today, key)
	if err != nil {
		return SubmitResult{}, storeErr("count prior activities", err)
	}
	award := core.AwardUnderCap(prior, rule.BasePoints, rule.DailyCap)

	profile, created, prevLevel, err := s.applyAward(ctx, user, award, today, now)
	if err != nil {
		return SubmitResult{}, err
	}
	s.bus.Publish(ctx, core.NewPointsAwarded(user, req.Type, award, profile.Points))
	if profile.Level > prevLevel {
		s.bus.Publish(ctx, core.NewLevelUp(user, profile.Level))
	}

	newBadges := s.unlockBadges(ctx, user, profile, created, now)

	for _, hook := range rule.Quests {
		val, err := s.storage.IncrementQuestProgress(ctx, user, hook.Quest, hook.Key, hook.Delta)
		if err != nil {
			return SubmitResult{}, storeErr("advance quest", err)
		}
		s.bus.Publish(ctx, core.NewQuestProgressed(user, hook.Quest, hook.Key, val))
	}

	s.log.Debug("activity ingested",
		"user", user, "type", req.Type, "awarded", award, "new_badges", len(newBadges))

	return SubmitResult{AwardedPoints: award, Profile: profile, NewBadges: newBadges}, nil
}

// replayResult builds the response for a duplicate idempotency key: no
// award, no profile mutation. Badge conditions are still checked because
// insertion is idempotent; this lets a retried request that previously
// failed between the profile write and the badge insert converge.
func (s *IngestService) replayResult(ctx context.Context, user core.UserID, now time.Time) (SubmitResult, error) {
	profile, found, err := s.storage.GetProfile(ctx, user)
	if err != nil {
		return SubmitResult{}, storeErr("load profile", err)
	}
	var newBadges []core.BadgeCode
	if found {
		newBadges = s.unlockBadges(ctx, user, profile, false, now)
	}
	return SubmitResult{Duplicate: true, Profile: profile, NewBadges: newBadges}, nil
}

// applyAward performs the optimistic read-modify-write on the profile
// aggregate. A conditional save losing its race is retried with a fresh
// read; after the retry budget the conflict is surfaced.
func (s *IngestService) applyAward(ctx context.Context, user core.UserID, award int64, today core.Day, now time.Time) (core.Profile, bool, int, error) {
	var lastErr error
	for attempt := 0; attempt < s.retries; attempt++ {
		current, found, err := s.storage.GetProfile(ctx, user)
		if err != nil {
			return core.Profile{}, false, 0, storeErr("load profile", err)
		}
		if !found {
			current = core.Profile{UserID: user}
		}
		next, err := current.Advance(award, today, s.rules.Levels)
		if err != nil {
			return core.Profile{}, false, 0, fmt.Errorf("advance profile: %w", err)
		}
		next.UpdatedAt = now
		if err := s.storage.SaveProfile(ctx, next); err != nil {
			if errors.Is(err, core.ErrConflict) {
				lastErr = err
				continue
			}
			return core.Profile{}, false, 0, storeErr("save profile", err)
		}
		return next, !found, current.Level, nil
	}
	return core.Profile{}, false, 0, fmt.Errorf("profile update exhausted %d attempts: %w", s.retries, lastErr)
}

// unlockBadges evaluates the catalog against the post-update profile and
// grants what newly became true. An insert hitting the uniqueness guarantee
// is already-earned, not an error; other store failures are logged and
// skipped since the next accepted event re-evaluates the same conditions.
func (s *IngestService) unlockBadges(ctx context.Context, user core.UserID, profile core.Profile, created bool, now time.Time) []core.BadgeCode {
	ectx := core.EvalContext{Profile: profile, FirstEvent: created}
	var unlocked []core.BadgeCode
	for _, spec := range s.rules.Badges {
		if spec.Condition == nil || !spec.Condition.Met(ectx) {
			continue
		}
		granted, err := s.storage.InsertBadge(ctx, core.BadgeGrant{UserID: user, Code: spec.Code, EarnedAt: now})
		if err != nil {
			s.log.Warn("badge insert failed", "user", user, "badge", spec.Code, "error", err)
			continue
		}
		if granted {
			unlocked = append(unlocked, spec.Code)
			s.bus.Publish(ctx, core.NewBadgeUnlocked(user, spec.Code))
		}
	}
	return unlocked
}

// GetProfile is the read surface behind the profile widget.
func (s *IngestService) GetProfile(ctx context.Context, user core.UserID) (core.Profile, bool, error) {
	user, err := core.NormalizeUserID(user)
	if err != nil {
		return core.Profile{}, false, err
	}
	p, found, err := s.storage.GetProfile(ctx, user)
	if err != nil {
		return core.Profile{}, false, storeErr("load profile", err)
	}
	return p, found, nil
}

// ListBadges returns the user's earned badges.
func (s *IngestService) ListBadges(ctx context.Context, user core.UserID) ([]core.BadgeGrant, error) {
	user, err := core.NormalizeUserID(user)
	if err != nil {
		return nil, err
	}
	grants, err := s.storage.ListBadges(ctx, user)
	if err != nil {
		return nil, storeErr("list badges", err)
	}
	return grants, nil
}

// QuestStatus joins a quest definition with a user's accumulated progress.
type QuestStatus struct {
	Quest     core.Quest           `json:"quest"`
	Counters  []core.QuestProgress `json:"counters,omitempty"`
	Total     int64                `json:"total"`
	Completed bool                 `json:"completed"`
}

// QuestStatuses reports the user's progress against every active quest.
func (s *IngestService) QuestStatuses(ctx context.Context, user core.UserID) ([]QuestStatus, error) {
	user, err := core.NormalizeUserID(user)
	if err != nil {
		return nil, err
	}
	rows, err := s.storage.ListQuestProgress(ctx, user)
	if err != nil {
		return nil, storeErr("list quest progress", err)
	}
	byQuest := make(map[core.QuestCode][]core.QuestProgress)
	for _, r := range rows {
		byQuest[r.Quest] = append(byQuest[r.Quest], r)
	}
	out := make([]QuestStatus, 0, len(s.rules.Quests))
	for _, q := range s.rules.Quests {
		if !q.Active {
			continue
		}
		st := QuestStatus{Quest: q, Counters: byQuest[q.Code]}
		for _, c := range st.Counters {
			st.Total += c.Value
		}
		st.Completed = q.Target > 0 && st.Total >= q.Target
		out = append(out, st)
	}
	return out, nil
}

// Subscribe convenience method.
func (s *IngestService) Subscribe(typ core.EventType, handler func(context.Context, core.Event)) func() {
	return s.bus.Subscribe(typ, handler)
}

func (s *IngestService) Publish(ctx context.Context, ev core.Event) {
	s.bus.Publish(ctx, ev)
}

func (s *IngestService) Close() { s.bus.Close() }

// storeErr classifies a storage failure: conflicts keep their kind, anything
// else becomes a transient ErrUnavailable (safe to retry on the same key).
func storeErr(op string, err error) error {
	if errors.Is(err, core.ErrConflict) || errors.Is(err, core.ErrUnavailable) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w", op, errors.Join(core.ErrUnavailable, err))
}
