package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"cityPerksAPI/internal/catalog"
	"cityPerksAPI/internal/clock"
	"cityPerksAPI/internal/notification"
	"cityPerksAPI/internal/profilestore"
	"cityPerksAPI/internal/types/profile"
)

// flakyProfileStore forces profile saves to lose their optimistic race a set
// number of times before letting them through. Graph saves stay untouched.
type flakyProfileStore struct {
	*profilestore.Memory
	mu       sync.Mutex
	failures int
}

func (s *flakyProfileStore) SaveProfile(ctx context.Context, p *profile.Profile, version int64) error {
	s.mu.Lock()
	if s.failures > 0 {
		s.failures--
		s.mu.Unlock()
		return profilestore.ErrVersionConflict
	}
	s.mu.Unlock()
	return s.Memory.SaveProfile(ctx, p, version)
}

// stubOracle lets each test script the activity evidence.
type stubOracle struct {
	brands        int
	brandsErr     error
	event         bool
	eventErr      error
	redemption    bool
	redemptionErr error
	share         bool
	shareErr      error
}

func (o *stubOracle) CountDistinctBrandsToday(ctx context.Context, userID uuid.UUID) (int, error) {
	return o.brands, o.brandsErr
}

func (o *stubOracle) HasApprovedEventToday(ctx context.Context, userID uuid.UUID) (bool, error) {
	return o.event, o.eventErr
}

func (o *stubOracle) HasUsedRedemptionToday(ctx context.Context, userID uuid.UUID) (bool, error) {
	return o.redemption, o.redemptionErr
}

func (o *stubOracle) HasShareToday(ctx context.Context, userID uuid.UUID) (bool, error) {
	return o.share, o.shareErr
}

type fixture struct {
	clk          *clock.Fixed
	store        *profilestore.Memory
	oracle       *stubOracle
	catalog      *catalog.Catalog
	gamification *GamificationService
	collections  *CollectionService
	friends      *FriendService
	userID       uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	clk := &clock.Fixed{Current: time.Date(2025, 3, 5, 12, 0, 0, 0, time.UTC)}
	store := profilestore.NewMemory(clk)
	oracle := &stubOracle{}
	cat := catalog.Default()
	if err := cat.Validate(); err != nil {
		t.Fatalf("default catalog invalid: %v", err)
	}

	g := NewGamificationService(store, oracle, clk, cat, notification.Nop{})

	f := &fixture{
		clk:          clk,
		store:        store,
		oracle:       oracle,
		catalog:      cat,
		gamification: g,
		collections:  NewCollectionService(g, clk, cat),
		friends:      NewFriendService(g, store, clk, cat, notification.Nop{}),
		userID:       uuid.New(),
	}
	store.CreateUser(f.userID)
	return f
}

func (f *fixture) newUser() uuid.UUID {
	id := uuid.New()
	f.store.CreateUser(id)
	return id
}

func TestAddXPRejectsNonPositiveAmount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, amount := range []int{0, -10} {
		if _, err := f.gamification.AddXP(ctx, f.userID, amount, "test"); !errors.Is(err, ErrInvalidAmount) {
			t.Errorf("AddXP(%d) error = %v, want ErrInvalidAmount", amount, err)
		}
	}
}

func TestAddXPUnknownUser(t *testing.T) {
	f := newFixture(t)

	_, err := f.gamification.AddXP(context.Background(), uuid.New(), 10, "test")
	if !errors.Is(err, profilestore.ErrUserNotFound) {
		t.Fatalf("AddXP error = %v, want ErrUserNotFound", err)
	}
}

func TestAddXPLevelProgression(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result, err := f.gamification.AddXP(ctx, f.userID, 50, "test")
	if err != nil {
		t.Fatalf("AddXP: %v", err)
	}
	if result.Level != "newcomer" || result.LevelUp {
		t.Errorf("after 50 XP: level=%q levelUp=%v, want newcomer/false", result.Level, result.LevelUp)
	}

	result, err = f.gamification.AddXP(ctx, f.userID, 50, "test")
	if err != nil {
		t.Fatalf("AddXP: %v", err)
	}
	if result.Level != "explorer" || !result.LevelUp {
		t.Errorf("after 100 XP: level=%q levelUp=%v, want explorer/true", result.Level, result.LevelUp)
	}
	if result.TotalXP != 100 {
		t.Errorf("TotalXP = %d, want 100", result.TotalXP)
	}

	// Another grant inside the same tier must not report a level-up again.
	result, err = f.gamification.AddXP(ctx, f.userID, 10, "test")
	if err != nil {
		t.Fatalf("AddXP: %v", err)
	}
	if result.LevelUp {
		t.Error("LevelUp = true inside the explorer tier")
	}
}

func TestAddXPCreditsComparisonWindows(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.gamification.AddXP(ctx, f.userID, 40, "test"); err != nil {
		t.Fatalf("AddXP: %v", err)
	}

	g, _, err := f.store.LoadGraph(ctx, f.userID)
	if err != nil {
		t.Fatalf("LoadGraph: %v", err)
	}
	if g.Stats.WeeklyXP != 40 || g.Stats.MonthlyXP != 40 {
		t.Errorf("window counters = %d/%d, want 40/40", g.Stats.WeeklyXP, g.Stats.MonthlyXP)
	}
}

func TestCheckinStartsStreak(t *testing.T) {
	f := newFixture(t)

	result, err := f.gamification.Checkin(context.Background(), f.userID)
	if err != nil {
		t.Fatalf("Checkin: %v", err)
	}
	if result.Streak != 1 {
		t.Errorf("Streak = %d, want 1", result.Streak)
	}
	if result.XPGained != 5 {
		t.Errorf("XPGained = %d, want 5", result.XPGained)
	}
	if result.Multiplier != 1.0 {
		t.Errorf("Multiplier = %v, want 1.0", result.Multiplier)
	}
}

func TestCheckinTwiceSameDay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.gamification.Checkin(ctx, f.userID); err != nil {
		t.Fatalf("first Checkin: %v", err)
	}
	if _, err := f.gamification.Checkin(ctx, f.userID); !errors.Is(err, ErrAlreadyCheckedIn) {
		t.Fatalf("second Checkin error = %v, want ErrAlreadyCheckedIn", err)
	}

	p, _, err := f.store.LoadProfile(ctx, f.userID)
	if err != nil {
		t.Fatalf("LoadProfile: %v", err)
	}
	if p.TotalXP != 5 {
		t.Errorf("TotalXP = %d, want 5 (second check-in must not pay)", p.TotalXP)
	}
}

func TestStreakGrowsOverConsecutiveDays(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var last *TaskResult
	for day := 1; day <= 7; day++ {
		result, err := f.gamification.Checkin(ctx, f.userID)
		if err != nil {
			t.Fatalf("day %d Checkin: %v", day, err)
		}
		if result.Streak != day {
			t.Fatalf("day %d: Streak = %d, want %d", day, result.Streak, day)
		}
		last = result
		f.clk.NextDay()
	}

	// Day 7 pays the 2x streak multiplier and the week badge.
	if last.Multiplier != 2.0 {
		t.Errorf("day 7 Multiplier = %v, want 2.0", last.Multiplier)
	}
	if last.XPGained != 10 {
		t.Errorf("day 7 XPGained = %d, want 10", last.XPGained)
	}

	p, _, err := f.store.LoadProfile(ctx, f.userID)
	if err != nil {
		t.Fatalf("LoadProfile: %v", err)
	}
	if !p.HasBadge("streak_7") {
		t.Error("streak_7 badge not granted after 7 consecutive days")
	}
	if p.DailyTasks.LongestStreak != 7 {
		t.Errorf("LongestStreak = %d, want 7", p.DailyTasks.LongestStreak)
	}
}

func TestStreakBadgeGrantedOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for day := 1; day <= 8; day++ {
		if _, err := f.gamification.Checkin(ctx, f.userID); err != nil {
			t.Fatalf("day %d Checkin: %v", day, err)
		}
		f.clk.NextDay()
	}

	p, _, err := f.store.LoadProfile(ctx, f.userID)
	if err != nil {
		t.Fatalf("LoadProfile: %v", err)
	}
	count := 0
	for _, b := range p.Badges {
		if b.ID == "streak_7" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("streak_7 badge count = %d, want 1", count)
	}
}

func TestStreakResetsAfterMissedDay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for day := 0; day < 3; day++ {
		if _, err := f.gamification.Checkin(ctx, f.userID); err != nil {
			t.Fatalf("Checkin: %v", err)
		}
		f.clk.NextDay()
	}

	// Skip a day.
	f.clk.NextDay()

	result, err := f.gamification.Checkin(ctx, f.userID)
	if err != nil {
		t.Fatalf("Checkin after gap: %v", err)
	}
	if result.Streak != 1 {
		t.Errorf("Streak after gap = %d, want 1", result.Streak)
	}
	if result.LongestStreak != 3 {
		t.Errorf("LongestStreak = %d, want 3", result.LongestStreak)
	}
}

func TestStreakMultiplierAtThreeDays(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.oracle.share = true

	var last *TaskResult
	for day := 0; day < 3; day++ {
		result, err := f.gamification.CompleteTask(ctx, f.userID, "daily_share")
		if err != nil {
			t.Fatalf("CompleteTask: %v", err)
		}
		last = result
		f.clk.NextDay()
	}

	if last.Multiplier != 1.2 {
		t.Errorf("day 3 Multiplier = %v, want 1.2", last.Multiplier)
	}
	// 10 base XP * 1.2, rounded.
	if last.XPGained != 12 {
		t.Errorf("day 3 XPGained = %d, want 12", last.XPGained)
	}
}

func TestCompleteUnknownTask(t *testing.T) {
	f := newFixture(t)

	if _, err := f.gamification.CompleteTask(context.Background(), f.userID, "daily_nonsense"); !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("error = %v, want ErrTaskNotFound", err)
	}
}

func TestCompleteTaskNotVerified(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := []struct {
		name   string
		taskID string
		setup  func(o *stubOracle)
	}{
		{"share without activity", "daily_share", func(o *stubOracle) { o.share = false }},
		{"event without attendance", "daily_event", func(o *stubOracle) { o.event = false }},
		{"campaign without redemption", "daily_campaign", func(o *stubOracle) { o.redemption = false }},
		{"discover below target", "daily_discover", func(o *stubOracle) { o.brands = 1 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.setup(f.oracle)
			if _, err := f.gamification.CompleteTask(ctx, f.userID, tc.taskID); !errors.Is(err, ErrTaskNotVerified) {
				t.Fatalf("error = %v, want ErrTaskNotVerified", err)
			}
		})
	}

	p, _, err := f.store.LoadProfile(ctx, f.userID)
	if err != nil {
		t.Fatalf("LoadProfile: %v", err)
	}
	if p.TotalXP != 0 || p.DailyTasks.CurrentStreak != 0 {
		t.Errorf("unverified attempts mutated the profile: xp=%d streak=%d", p.TotalXP, p.DailyTasks.CurrentStreak)
	}
}

func TestCompleteTaskOracleErrorCountsAsNotVerified(t *testing.T) {
	f := newFixture(t)
	f.oracle.shareErr = errors.New("connection refused")

	if _, err := f.gamification.CompleteTask(context.Background(), f.userID, "daily_share"); !errors.Is(err, ErrTaskNotVerified) {
		t.Fatalf("error = %v, want ErrTaskNotVerified", err)
	}
}

func TestCompleteDiscoverAtTarget(t *testing.T) {
	f := newFixture(t)
	f.oracle.brands = 2

	result, err := f.gamification.CompleteTask(context.Background(), f.userID, "daily_discover")
	if err != nil {
		t.Fatalf("CompleteTask: %v", err)
	}
	if result.XPGained != 15 {
		t.Errorf("XPGained = %d, want 15", result.XPGained)
	}
}

func TestCompleteTaskTwiceSameDay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.oracle.share = true

	if _, err := f.gamification.CompleteTask(ctx, f.userID, "daily_share"); err != nil {
		t.Fatalf("first CompleteTask: %v", err)
	}
	if _, err := f.gamification.CompleteTask(ctx, f.userID, "daily_share"); !errors.Is(err, ErrTaskAlreadyCompleted) {
		t.Fatalf("second CompleteTask error = %v, want ErrTaskAlreadyCompleted", err)
	}
}

func TestCheckinTaskRejectsGenericCompletion(t *testing.T) {
	f := newFixture(t)

	if _, err := f.gamification.CompleteTask(context.Background(), f.userID, "daily_checkin"); !errors.Is(err, ErrTaskNotVerified) {
		t.Fatalf("error = %v, want ErrTaskNotVerified", err)
	}
}

func TestTwoTasksSameDayShareStreak(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.oracle.share = true

	first, err := f.gamification.Checkin(ctx, f.userID)
	if err != nil {
		t.Fatalf("Checkin: %v", err)
	}
	second, err := f.gamification.CompleteTask(ctx, f.userID, "daily_share")
	if err != nil {
		t.Fatalf("CompleteTask: %v", err)
	}

	if first.Streak != 1 || second.Streak != 1 {
		t.Errorf("streaks = %d/%d, want 1/1 (second task same day must not advance)", first.Streak, second.Streak)
	}
}

func TestCompletionsResetNextDay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.gamification.Checkin(ctx, f.userID); err != nil {
		t.Fatalf("Checkin: %v", err)
	}
	f.clk.NextDay()

	board, err := f.gamification.TaskBoard(ctx, f.userID)
	if err != nil {
		t.Fatalf("TaskBoard: %v", err)
	}
	for _, ts := range board {
		if ts.CompletedToday {
			t.Errorf("task %s still marked completed on the next day", ts.ID)
		}
	}
}

func TestTaskBoardMarksCompletions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.gamification.Checkin(ctx, f.userID); err != nil {
		t.Fatalf("Checkin: %v", err)
	}

	board, err := f.gamification.TaskBoard(ctx, f.userID)
	if err != nil {
		t.Fatalf("TaskBoard: %v", err)
	}
	if len(board) != len(f.catalog.Tasks) {
		t.Fatalf("board has %d tasks, want %d", len(board), len(f.catalog.Tasks))
	}
	for _, ts := range board {
		want := ts.ID == "daily_checkin"
		if ts.CompletedToday != want {
			t.Errorf("task %s CompletedToday = %v, want %v", ts.ID, ts.CompletedToday, want)
		}
	}
}

func TestGrantBadgeIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	granted, err := f.gamification.GrantBadge(ctx, f.userID, "lucky_star")
	if err != nil {
		t.Fatalf("GrantBadge: %v", err)
	}
	if !granted {
		t.Error("first grant reported granted=false")
	}

	granted, err = f.gamification.GrantBadge(ctx, f.userID, "lucky_star")
	if err != nil {
		t.Fatalf("GrantBadge: %v", err)
	}
	if granted {
		t.Error("duplicate grant reported granted=true")
	}
}

func TestRecordBrandVisitAggregates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.gamification.RecordBrandVisit(ctx, f.userID, "brand-1", 10); err != nil {
		t.Fatalf("RecordBrandVisit: %v", err)
	}
	entry, err := f.gamification.RecordBrandVisit(ctx, f.userID, "brand-1", 15)
	if err != nil {
		t.Fatalf("RecordBrandVisit: %v", err)
	}

	if entry.Points != 25 || entry.Visits != 2 {
		t.Errorf("entry = %d points / %d visits, want 25/2", entry.Points, entry.Visits)
	}

	p, _, err := f.store.LoadProfile(ctx, f.userID)
	if err != nil {
		t.Fatalf("LoadProfile: %v", err)
	}
	if p.TotalXP != 0 {
		t.Errorf("brand visits leaked into the XP ledger: TotalXP = %d", p.TotalXP)
	}
}

func TestConcurrentAddXPNoLostUpdates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const workers = 4
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.gamification.AddXP(ctx, f.userID, 5, "test")
			if err != nil && !errors.Is(err, ErrConcurrentUpdate) {
				t.Errorf("AddXP: %v", err)
				return
			}
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if succeeded == 0 {
		t.Fatal("no AddXP call succeeded")
	}

	p, _, err := f.store.LoadProfile(ctx, f.userID)
	if err != nil {
		t.Fatalf("LoadProfile: %v", err)
	}
	if p.TotalXP != succeeded*5 {
		t.Errorf("TotalXP = %d, want %d (%d successful grants of 5)", p.TotalXP, succeeded*5, succeeded)
	}
}

func TestConcurrentCompleteTaskGrantsOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.oracle.share = true

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.gamification.CompleteTask(ctx, f.userID, "daily_share")
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range errs {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, ErrTaskAlreadyCompleted), errors.Is(err, ErrConcurrentUpdate):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if successes != 1 {
		t.Fatalf("successes = %d, want exactly 1", successes)
	}

	p, _, err := f.store.LoadProfile(ctx, f.userID)
	if err != nil {
		t.Fatalf("LoadProfile: %v", err)
	}
	if p.TotalXP != 10 {
		t.Errorf("TotalXP = %d, want 10 (one grant of the base reward)", p.TotalXP)
	}
	if p.DailyTasks.TotalTasksCompleted != 1 {
		t.Errorf("TotalTasksCompleted = %d, want 1", p.DailyTasks.TotalTasksCompleted)
	}
	count := 0
	for _, id := range p.DailyTasks.CompletedTasksToday {
		if id == "daily_share" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("daily_share recorded %d times in today's set, want 1", count)
	}
}

func TestBadgeMetricCountsOnlyPersistedGrants(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	before := testutil.ToFloat64(badgesGrantedTotal.WithLabelValues("lucky_star"))

	// A grant whose save never lands must not count.
	mem := profilestore.NewMemory(f.clk)
	failing := &flakyProfileStore{Memory: mem, failures: 1 << 30}
	blockedUser := uuid.New()
	mem.CreateUser(blockedUser)
	blocked := NewGamificationService(failing, &stubOracle{}, f.clk, f.catalog, notification.Nop{})

	if _, err := blocked.GrantBadge(ctx, blockedUser, "lucky_star"); !errors.Is(err, ErrConcurrentUpdate) {
		t.Fatalf("GrantBadge error = %v, want ErrConcurrentUpdate", err)
	}
	if got := testutil.ToFloat64(badgesGrantedTotal.WithLabelValues("lucky_star")); got != before {
		t.Errorf("failed grant moved the counter: %v -> %v", before, got)
	}

	// A persisted grant counts once; the duplicate no-op not at all.
	if _, err := f.gamification.GrantBadge(ctx, f.userID, "lucky_star"); err != nil {
		t.Fatalf("GrantBadge: %v", err)
	}
	if _, err := f.gamification.GrantBadge(ctx, f.userID, "lucky_star"); err != nil {
		t.Fatalf("GrantBadge: %v", err)
	}
	if got := testutil.ToFloat64(badgesGrantedTotal.WithLabelValues("lucky_star")); got != before+1 {
		t.Errorf("counter = %v, want %v after one persisted grant", got, before+1)
	}
}

func TestGetProfileBackfillsLevel(t *testing.T) {
	f := newFixture(t)

	p, err := f.gamification.GetProfile(context.Background(), f.userID)
	if err != nil {
		t.Fatalf("GetProfile: %v", err)
	}
	if p.Level != "newcomer" {
		t.Errorf("Level = %q, want newcomer", p.Level)
	}
}
