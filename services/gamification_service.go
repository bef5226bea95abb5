package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/google/uuid"

	"cityPerksAPI/internal/activity"
	"cityPerksAPI/internal/catalog"
	"cityPerksAPI/internal/clock"
	"cityPerksAPI/internal/notification"
	"cityPerksAPI/internal/profilestore"
	"cityPerksAPI/internal/types/profile"
)

const (
	// maxSaveRetries bounds the optimistic-concurrency retry loop. After
	// this many lost races the operation surfaces ErrConcurrentUpdate.
	maxSaveRetries = 3

	// oracleTimeout bounds every activity oracle query. An oracle that does
	// not answer in time counts as "not verified", never as approved.
	oracleTimeout = 2 * time.Second
)

// GamificationService owns the XP ledger, level derivation, the streak
// tracker, daily task verification and the badge registry. All mutations go
// through load-mutate-save cycles against the profile aggregate.
type GamificationService struct {
	store    profilestore.Store
	oracle   activity.Oracle
	clock    clock.Clock
	catalog  *catalog.Catalog
	notifier notification.Publisher
}

func NewGamificationService(store profilestore.Store, oracle activity.Oracle, clk clock.Clock, cat *catalog.Catalog, notifier notification.Publisher) *GamificationService {
	return &GamificationService{
		store:    store,
		oracle:   oracle,
		clock:    clk,
		catalog:  cat,
		notifier: notifier,
	}
}

type XPResult struct {
	XPGained int    `json:"xp_gained"`
	TotalXP  int    `json:"total_xp"`
	Level    string `json:"level"`
	LevelUp  bool   `json:"level_up"`
}

type TaskResult struct {
	TaskID        string  `json:"task_id"`
	XPGained      int     `json:"xp_gained"`
	Multiplier    float64 `json:"multiplier"`
	Streak        int     `json:"streak"`
	LongestStreak int     `json:"longest_streak"`
	TotalXP       int     `json:"total_xp"`
	Level         string  `json:"level"`
	LevelUp       bool    `json:"level_up"`
}

// withProfile runs fn inside a bounded optimistic-retry loop. Events
// collected by fn are published only after the save landed, so a lost race
// never leaks notifications for state that was rolled back.
func (s *GamificationService) withProfile(ctx context.Context, userID uuid.UUID, fn func(p *profile.Profile, events *[]notification.Event) error) error {
	for attempt := 0; attempt < maxSaveRetries; attempt++ {
		p, version, err := s.store.LoadProfile(ctx, userID)
		if err != nil {
			return err
		}

		var events []notification.Event
		if err := fn(p, &events); err != nil {
			return err
		}

		p.UpdatedAt = s.clock.Now()
		if err := s.store.SaveProfile(ctx, p, version); err != nil {
			if errors.Is(err, profilestore.ErrVersionConflict) {
				continue
			}
			return err
		}

		// Metrics ride the event list for the same reason the events do:
		// a roll-back or a retried race must not count.
		for _, e := range events {
			if e.Type == notification.EventBadgeEarned {
				if badgeID, ok := e.Data["badge_id"].(string); ok {
					badgesGrantedTotal.WithLabelValues(badgeID).Inc()
				}
			}
			s.notifier.Publish(e)
		}
		return nil
	}
	return ErrConcurrentUpdate
}

// applyXP is the single place XP enters a profile. Grants are not reversible;
// a compensation is a new grant, never a subtraction here.
func (s *GamificationService) applyXP(p *profile.Profile, amount int, events *[]notification.Event) XPResult {
	oldLevel := s.catalog.LevelFor(p.TotalXP)
	p.XP += amount
	p.TotalXP += amount
	newLevel := s.catalog.LevelFor(p.TotalXP)
	p.Level = newLevel

	levelUp := newLevel != oldLevel
	if levelUp {
		*events = append(*events, notification.Event{
			UserID: p.UserID,
			Type:   notification.EventLevelUp,
			Data:   map[string]any{"level": newLevel, "total_xp": p.TotalXP},
		})
	}

	return XPResult{XPGained: amount, TotalXP: p.TotalXP, Level: newLevel, LevelUp: levelUp}
}

// grantBadge appends the badge if absent and queues the earned event.
// Duplicate grants are silent no-ops, which is what makes every grant path
// in the engine safely re-entrant.
func (s *GamificationService) grantBadge(p *profile.Profile, badgeID string, events *[]notification.Event) bool {
	def := s.catalog.FindBadge(badgeID)
	granted := p.GrantBadge(profile.Badge{
		ID:          def.ID,
		Name:        def.Name,
		Category:    def.Category,
		Description: def.Description,
		EarnedAt:    s.clock.Now(),
	})
	if granted {
		*events = append(*events, notification.Event{
			UserID: p.UserID,
			Type:   notification.EventBadgeEarned,
			Data:   map[string]any{"badge_id": def.ID, "badge_name": def.Name},
		})
	}
	return granted
}

// GrantBadge exposes the idempotent badge registry to other services.
func (s *GamificationService) GrantBadge(ctx context.Context, userID uuid.UUID, badgeID string) (bool, error) {
	var granted bool
	err := s.withProfile(ctx, userID, func(p *profile.Profile, events *[]notification.Event) error {
		granted = s.grantBadge(p, badgeID, events)
		return nil
	})
	if err != nil {
		return false, err
	}
	return granted, nil
}

// AddXP credits amount to the ledger and reports the resulting level.
func (s *GamificationService) AddXP(ctx context.Context, userID uuid.UUID, amount int, reason string) (*XPResult, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	var result XPResult
	err := s.withProfile(ctx, userID, func(p *profile.Profile, events *[]notification.Event) error {
		result = s.applyXP(p, amount, events)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.creditWindows(ctx, userID, amount)
	xpGrantedTotal.WithLabelValues(reason).Add(float64(amount))
	return &result, nil
}

// creditWindows adds the grant to the weekly/monthly comparison counters on
// the user's friend-graph fragment. The XP grant itself already landed; a
// counter that loses its race only skews the approximate leaderboards, so
// exhausting the retries here is logged, not surfaced.
func (s *GamificationService) creditWindows(ctx context.Context, userID uuid.UUID, amount int) {
	for attempt := 0; attempt < maxSaveRetries; attempt++ {
		g, version, err := s.store.LoadGraph(ctx, userID)
		if err != nil {
			log.Printf("creditWindows: failed to load graph for %s: %v", userID, err)
			return
		}

		g.Stats.AddXP(amount, s.clock.Now())

		err = s.store.SaveGraph(ctx, g, version)
		if err == nil {
			return
		}
		if !errors.Is(err, profilestore.ErrVersionConflict) {
			log.Printf("creditWindows: failed to save graph for %s: %v", userID, err)
			return
		}
	}
	log.Printf("creditWindows: dropped %d XP from window counters for %s after %d conflicts", amount, userID, maxSaveRetries)
}

// resetDailyState clears the per-day sets when the profile was last touched
// on an earlier calendar day. LastTaskDate itself stays: the streak
// transition still needs to see it.
func resetDailyState(p *profile.Profile, now time.Time) {
	dt := &p.DailyTasks
	if dt.LastTaskDate != nil && !clock.SameDay(*dt.LastTaskDate, now) {
		dt.CompletedTasksToday = nil
		dt.SharesToday = nil
	}
}

// advanceStreak applies the calendar-day transition once per first task of
// the day. Same-day repeats leave the streak untouched.
func advanceStreak(p *profile.Profile, now time.Time) (streak int, firstOfDay bool) {
	dt := &p.DailyTasks

	firstOfDay = dt.LastTaskDate == nil || !clock.SameDay(*dt.LastTaskDate, now)
	if firstOfDay {
		if dt.LastTaskDate != nil && clock.IsYesterday(*dt.LastTaskDate, now) {
			dt.CurrentStreak++
		} else {
			dt.CurrentStreak = 1
		}
		if dt.CurrentStreak > dt.LongestStreak {
			dt.LongestStreak = dt.CurrentStreak
		}
	}

	t := now
	dt.LastTaskDate = &t
	return dt.CurrentStreak, firstOfDay
}

// completeTask records a verified completion: streak transition, streak
// badge, multiplied XP, completion bookkeeping.
func (s *GamificationService) completeTask(p *profile.Profile, def *catalog.DailyTaskDefinition, events *[]notification.Event) *TaskResult {
	now := s.clock.Now()

	streak, firstOfDay := advanceStreak(p, now)
	if firstOfDay {
		if bonus := s.catalog.BonusAt(streak); bonus != nil && bonus.BadgeID != "" {
			s.grantBadge(p, bonus.BadgeID, events)
		}
	}

	multiplier := s.catalog.MultiplierFor(streak)
	xp := int(math.Round(float64(def.XPReward) * multiplier))
	xpResult := s.applyXP(p, xp, events)

	p.DailyTasks.CompletedTasksToday = append(p.DailyTasks.CompletedTasksToday, def.ID)
	p.DailyTasks.TotalTasksCompleted++
	if def.Type == catalog.TaskShare {
		p.DailyTasks.SharesToday = append(p.DailyTasks.SharesToday, profile.Share{SharedAt: now})
	}

	return &TaskResult{
		TaskID:        def.ID,
		XPGained:      xp,
		Multiplier:    multiplier,
		Streak:        streak,
		LongestStreak: p.DailyTasks.LongestStreak,
		TotalXP:       xpResult.TotalXP,
		Level:         xpResult.Level,
		LevelUp:       xpResult.LevelUp,
	}
}

// verifyTask checks the oracle predicate for the task type. Oracle failures
// and timeouts count as not verified.
func (s *GamificationService) verifyTask(ctx context.Context, userID uuid.UUID, def *catalog.DailyTaskDefinition) error {
	ctx, cancel := context.WithTimeout(ctx, oracleTimeout)
	defer cancel()

	switch def.Type {
	case catalog.TaskCheckin:
		// Check-in never goes through generic verification.
		return fmt.Errorf("%w: use the check-in endpoint", ErrTaskNotVerified)

	case catalog.TaskDiscover:
		count, err := s.oracle.CountDistinctBrandsToday(ctx, userID)
		if err != nil {
			log.Printf("verifyTask: oracle error for %s/%s: %v", userID, def.ID, err)
			return fmt.Errorf("%w: could not confirm today's discoveries", ErrTaskNotVerified)
		}
		if count < def.Target {
			return fmt.Errorf("%w: discover %d brands today (found %d)", ErrTaskNotVerified, def.Target, count)
		}

	case catalog.TaskEvent:
		ok, err := s.oracle.HasApprovedEventToday(ctx, userID)
		if err != nil {
			log.Printf("verifyTask: oracle error for %s/%s: %v", userID, def.ID, err)
			return fmt.Errorf("%w: could not confirm event attendance", ErrTaskNotVerified)
		}
		if !ok {
			return fmt.Errorf("%w: attend an event today first", ErrTaskNotVerified)
		}

	case catalog.TaskCampaign:
		ok, err := s.oracle.HasUsedRedemptionToday(ctx, userID)
		if err != nil {
			log.Printf("verifyTask: oracle error for %s/%s: %v", userID, def.ID, err)
			return fmt.Errorf("%w: could not confirm code redemption", ErrTaskNotVerified)
		}
		if !ok {
			return fmt.Errorf("%w: redeem a campaign code today first", ErrTaskNotVerified)
		}

	case catalog.TaskShare:
		ok, err := s.oracle.HasShareToday(ctx, userID)
		if err != nil {
			log.Printf("verifyTask: oracle error for %s/%s: %v", userID, def.ID, err)
			return fmt.Errorf("%w: could not confirm today's share", ErrTaskNotVerified)
		}
		if !ok {
			return fmt.Errorf("%w: share something today first", ErrTaskNotVerified)
		}

	default:
		return fmt.Errorf("%w: unknown task type %q", ErrTaskNotVerified, def.Type)
	}

	return nil
}

// CompleteTask verifies the task against real activity and records it.
func (s *GamificationService) CompleteTask(ctx context.Context, userID uuid.UUID, taskID string) (*TaskResult, error) {
	def := s.catalog.FindTask(taskID)
	if def == nil {
		return nil, ErrTaskNotFound
	}

	if err := s.verifyTask(ctx, userID, def); err != nil {
		return nil, err
	}

	var result *TaskResult
	err := s.withProfile(ctx, userID, func(p *profile.Profile, events *[]notification.Event) error {
		resetDailyState(p, s.clock.Now())
		if p.HasCompletedToday(def.ID) {
			return ErrTaskAlreadyCompleted
		}
		result = s.completeTask(p, def, events)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.creditWindows(ctx, userID, result.XPGained)
	tasksCompletedTotal.WithLabelValues(def.ID).Inc()
	return result, nil
}

// Checkin is the dedicated daily check-in entry point. No oracle involved:
// showing up is the activity.
func (s *GamificationService) Checkin(ctx context.Context, userID uuid.UUID) (*TaskResult, error) {
	var def *catalog.DailyTaskDefinition
	for i := range s.catalog.Tasks {
		if s.catalog.Tasks[i].Type == catalog.TaskCheckin {
			def = &s.catalog.Tasks[i]
			break
		}
	}
	if def == nil {
		return nil, ErrTaskNotFound
	}

	var result *TaskResult
	err := s.withProfile(ctx, userID, func(p *profile.Profile, events *[]notification.Event) error {
		resetDailyState(p, s.clock.Now())
		if p.HasCompletedToday(def.ID) {
			return ErrAlreadyCheckedIn
		}
		result = s.completeTask(p, def, events)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.creditWindows(ctx, userID, result.XPGained)
	tasksCompletedTotal.WithLabelValues(def.ID).Inc()
	return result, nil
}

// RecordBrandVisit keeps one loyalty entry per brand the user has transacted
// with. Points come from the redemption subsystem, not from the XP ledger.
func (s *GamificationService) RecordBrandVisit(ctx context.Context, userID uuid.UUID, brandID string, points int) (*profile.BrandLoyalty, error) {
	if brandID == "" || points < 0 {
		return nil, fmt.Errorf("invalid brand visit: brand=%q points=%d", brandID, points)
	}

	var entry profile.BrandLoyalty
	err := s.withProfile(ctx, userID, func(p *profile.Profile, events *[]notification.Event) error {
		now := s.clock.Now()
		b := p.FindBrand(brandID)
		if b == nil {
			p.BrandLoyalty = append(p.BrandLoyalty, profile.BrandLoyalty{BrandID: brandID})
			b = &p.BrandLoyalty[len(p.BrandLoyalty)-1]
		}
		b.Points += points
		b.Visits++
		b.LastVisit = now
		entry = *b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// GetProfile returns the current aggregate with the per-day sets rolled to
// today for display. The roll is not persisted here.
func (s *GamificationService) GetProfile(ctx context.Context, userID uuid.UUID) (*profile.Profile, error) {
	p, _, err := s.store.LoadProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	resetDailyState(p, s.clock.Now())
	if p.Level == "" {
		p.Level = s.catalog.LevelFor(p.TotalXP)
	}
	return p, nil
}

type TaskStatus struct {
	catalog.DailyTaskDefinition
	CompletedToday bool `json:"completed_today"`
}

// TaskBoard merges the task catalog with today's completion state.
func (s *GamificationService) TaskBoard(ctx context.Context, userID uuid.UUID) ([]TaskStatus, error) {
	p, _, err := s.store.LoadProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	resetDailyState(p, s.clock.Now())

	board := make([]TaskStatus, 0, len(s.catalog.Tasks))
	for _, def := range s.catalog.Tasks {
		board = append(board, TaskStatus{
			DailyTaskDefinition: def,
			CompletedToday:      p.HasCompletedToday(def.ID),
		})
	}
	return board, nil
}
