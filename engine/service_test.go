package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	mem "rewardkit/adapters/memory"
	"rewardkit/core"
)

func newTestService(t *testing.T, opts ...Option) *IngestService {
	t.Helper()
	store := mem.New()
	bus := NewEventBus(DispatchSync)
	return NewIngestService(store, bus, core.DefaultRuleset(), opts...)
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestSubmitAwardsAndCreatesProfile(t *testing.T) {
	svc := newTestService(t)
	res, err := svc.Submit(context.Background(), SubmitRequest{
		UserID:         "tech-1",
		Type:           core.ActivityClockIn,
		IdempotencyKey: "ci-1",
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.AwardedPoints != 10 {
		t.Fatalf("awarded=%d, want 10", res.AwardedPoints)
	}
	if res.Profile.Points != 10 || res.Profile.Experience != 10 {
		t.Fatalf("profile=%+v", res.Profile)
	}
	if res.Profile.StreakCurrent != 1 || res.Profile.StreakLongest != 1 {
		t.Fatalf("streak=%d/%d", res.Profile.StreakCurrent, res.Profile.StreakLongest)
	}
	if !containsBadge(res.NewBadges, core.BadgeFirstEvent) {
		t.Fatalf("expected FIRST_EVENT badge, got %v", res.NewBadges)
	}
}

func TestSubmitIdempotentReplay(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	req := SubmitRequest{UserID: "tech-1", Type: core.ActivityPhotoUpload, IdempotencyKey: "photo-1"}

	first, err := svc.Submit(ctx, req)
	if err != nil {
		t.Fatal(err)
	}
	second, err := svc.Submit(ctx, req)
	if err != nil {
		t.Fatal(err)
	}
	if !second.Duplicate {
		t.Fatal("replay should be flagged duplicate")
	}
	if second.AwardedPoints != 0 {
		t.Fatalf("replay awarded %d", second.AwardedPoints)
	}
	if second.Profile.Points != first.Profile.Points ||
		second.Profile.Experience != first.Profile.Experience ||
		second.Profile.StreakCurrent != first.Profile.StreakCurrent {
		t.Fatalf("replay mutated profile: %+v vs %+v", second.Profile, first.Profile)
	}
	// Quest progress must not advance on replay.
	statuses, err := svc.QuestStatuses(ctx, "tech-1")
	if err != nil {
		t.Fatal(err)
	}
	for _, st := range statuses {
		if st.Quest.Code == core.QuestPhotoDocumenter && st.Total != 1 {
			t.Fatalf("quest total=%d, want 1", st.Total)
		}
	}
}

func TestSubmitDailyCapExact(t *testing.T) {
	// photo_upload: base=3, cap=15. Six submissions award 3,3,3,3,3,0.
	svc := newTestService(t, WithClock(fixedClock(time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC))))
	ctx := context.Background()

	want := []int64{3, 3, 3, 3, 3, 0}
	for i, w := range want {
		res, err := svc.Submit(ctx, SubmitRequest{
			UserID:         "tech-1",
			Type:           core.ActivityPhotoUpload,
			IdempotencyKey: fmt.Sprintf("photo-%d", i),
		})
		if err != nil {
			t.Fatal(err)
		}
		if res.AwardedPoints != w {
			t.Fatalf("submission %d: awarded=%d, want %d", i, res.AwardedPoints, w)
		}
	}

	res, err := svc.Submit(ctx, SubmitRequest{UserID: "tech-1", Type: core.ActivityPhotoUpload, IdempotencyKey: "photo-extra"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Profile.Points != 15 {
		t.Fatalf("total points=%d, want exactly the cap", res.Profile.Points)
	}
}

func TestSubmitStreakAcrossDays(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	clock := &shiftableClock{now: now}
	svc := newTestService(t, WithClock(clock.Now))
	ctx := context.Background()

	submit := func(key string) SubmitResult {
		t.Helper()
		res, err := svc.Submit(ctx, SubmitRequest{UserID: "tech-1", Type: core.ActivityClockIn, IdempotencyKey: key})
		if err != nil {
			t.Fatal(err)
		}
		return res
	}

	for i := 0; i < 4; i++ {
		res := submit(fmt.Sprintf("d%d", i))
		if res.Profile.StreakCurrent != i+1 {
			t.Fatalf("day %d: streak=%d", i, res.Profile.StreakCurrent)
		}
		clock.Advance(24 * time.Hour)
	}

	// Next consecutive day: 4 -> 5.
	res := submit("d4")
	if res.Profile.StreakCurrent != 5 {
		t.Fatalf("streak=%d, want 5", res.Profile.StreakCurrent)
	}

	// Skip a full day: reset to 1, longest preserved.
	clock.Advance(48 * time.Hour)
	res = submit("d6")
	if res.Profile.StreakCurrent != 1 {
		t.Fatalf("streak=%d, want reset to 1", res.Profile.StreakCurrent)
	}
	if res.Profile.StreakLongest != 5 {
		t.Fatalf("longest=%d, want 5", res.Profile.StreakLongest)
	}
}

func TestSubmitUnknownEventType(t *testing.T) {
	store := mem.New()
	bus := NewEventBus(DispatchSync)
	svc := NewIngestService(store, bus, core.DefaultRuleset())
	ctx := context.Background()

	_, err := svc.Submit(ctx, SubmitRequest{UserID: "tech-1", Type: "not_a_real_event", IdempotencyKey: "x1"})
	if !errors.Is(err, core.ErrUnknownEventType) {
		t.Fatalf("expected ErrUnknownEventType, got %v", err)
	}

	// No side effects at all: no ledger row, no profile, no quest progress.
	if n, _ := store.CountActivities(ctx, "tech-1", "not_a_real_event", core.DayOf(time.Now(), time.UTC), ""); n != 0 {
		t.Fatal("ledger row written for rejected event")
	}
	if _, found, _ := store.GetProfile(ctx, "tech-1"); found {
		t.Fatal("profile created for rejected event")
	}
	if rows, _ := store.ListQuestProgress(ctx, "tech-1"); len(rows) != 0 {
		t.Fatal("quest progress written for rejected event")
	}
}

func TestSubmitBadgeUniqueUnderRace(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	const n = 16

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		key := fmt.Sprintf("first-%d", i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Submit(ctx, SubmitRequest{UserID: "tech-1", Type: core.ActivityClockOut, IdempotencyKey: key}); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	badges, err := svc.ListBadges(ctx, "tech-1")
	if err != nil {
		t.Fatal(err)
	}
	firsts := 0
	for _, b := range badges {
		if b.Code == core.BadgeFirstEvent {
			firsts++
		}
	}
	if firsts != 1 {
		t.Fatalf("FIRST_EVENT granted %d times", firsts)
	}
}

func TestSubmitConcurrentSameUserNoLostPoints(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	const n = 24

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		key := fmt.Sprintf("jc-%d", i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			// job_complete is uncapped: every submission awards 25.
			if _, err := svc.Submit(ctx, SubmitRequest{UserID: "tech-1", Type: core.ActivityJobComplete, IdempotencyKey: key}); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	p, found, err := svc.GetProfile(ctx, "tech-1")
	if err != nil || !found {
		t.Fatalf("found=%v err=%v", found, err)
	}
	if p.Points != n*25 {
		t.Fatalf("lost updates: points=%d, want %d", p.Points, n*25)
	}

	statuses, err := svc.QuestStatuses(ctx, "tech-1")
	if err != nil {
		t.Fatal(err)
	}
	for _, st := range statuses {
		if st.Quest.Code == core.QuestJobFinisher && st.Total != n {
			t.Fatalf("quest total=%d, want %d", st.Total, n)
		}
	}
}

func TestSubmitLevelUpEvent(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	levelUps := 0
	svc.Subscribe(core.EventLevelUp, func(_ context.Context, e core.Event) { levelUps++ })

	// training_complete awards 50; three of them cross the 100 XP threshold.
	for i := 0; i < 3; i++ {
		if _, err := svc.Submit(ctx, SubmitRequest{UserID: "tech-1", Type: core.ActivityTrainingComplete, IdempotencyKey: fmt.Sprintf("t%d", i)}); err != nil {
			t.Fatal(err)
		}
	}
	if levelUps == 0 {
		t.Fatal("expected level up event")
	}
	p, _, _ := svc.GetProfile(ctx, "tech-1")
	if p.Level != core.LevelFor(core.DefaultLevelThresholds(), p.Experience) {
		t.Fatalf("level drift: %d vs xp %d", p.Level, p.Experience)
	}
}

func TestSubmitSynthesizedKeyCollapsesRetry(t *testing.T) {
	at := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	svc := newTestService(t, WithClock(fixedClock(at)))
	ctx := context.Background()

	req := SubmitRequest{UserID: "tech-1", Type: core.ActivityClockIn, DeviceID: "tablet-7"}
	first, err := svc.Submit(ctx, req)
	if err != nil {
		t.Fatal(err)
	}
	second, err := svc.Submit(ctx, req)
	if err != nil {
		t.Fatal(err)
	}
	if first.Duplicate || !second.Duplicate {
		t.Fatalf("duplicate flags: %v %v", first.Duplicate, second.Duplicate)
	}
}

func containsBadge(badges []core.BadgeCode, code core.BadgeCode) bool {
	for _, b := range badges {
		if b == code {
			return true
		}
	}
	return false
}

type shiftableClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *shiftableClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *shiftableClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
