package services

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"cityPerksAPI/internal/catalog"
	"cityPerksAPI/internal/clock"
	"cityPerksAPI/internal/notification"
	"cityPerksAPI/internal/types/profile"
)

// errNotTriggered aborts the profile save when the trigger roll fails. It
// never leaves this file: callers see a successful no-reward result.
var errNotTriggered = errors.New("surprise box not triggered")

// SurpriseBoxService runs the daily probability-weighted reward draw.
type SurpriseBoxService struct {
	gamification *GamificationService
	clock        clock.Clock
	catalog      *catalog.Catalog

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSurpriseBoxService wires the draw engine. Pass a seeded rng for
// deterministic tests; nil gets a time-seeded source.
func NewSurpriseBoxService(g *GamificationService, clk clock.Clock, cat *catalog.Catalog, rng *rand.Rand) *SurpriseBoxService {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &SurpriseBoxService{
		gamification: g,
		clock:        clk,
		catalog:      cat,
		rng:          rng,
	}
}

func (s *SurpriseBoxService) roll() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64()
}

func (s *SurpriseBoxService) intn(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Intn(n)
}

type BoxResult struct {
	Triggered bool   `json:"triggered"`
	Tier      string `json:"tier,omitempty"`
	Amount    int    `json:"amount,omitempty"`
	BadgeID   string `json:"badge_id,omitempty"`
	TotalXP   int    `json:"total_xp,omitempty"`
	Level     string `json:"level,omitempty"`
	LevelUp   bool   `json:"level_up,omitempty"`
}

// drawTier walks the declared tier order and picks the first tier whose
// cumulative probability exceeds the draw. Probabilities sum to 1 (catalog
// invariant), so no re-normalization happens here.
func (s *SurpriseBoxService) drawTier() *catalog.SurpriseBoxTier {
	r := s.roll()
	var cumulative float64
	for i := range s.catalog.BoxTiers {
		cumulative += s.catalog.BoxTiers[i].Probability
		if r < cumulative {
			return &s.catalog.BoxTiers[i]
		}
	}
	// Floating point slack on the last boundary.
	return &s.catalog.BoxTiers[len(s.catalog.BoxTiers)-1]
}

func (s *SurpriseBoxService) drawAmount(tier *catalog.SurpriseBoxTier) int {
	if tier.FixedAmount > 0 {
		return tier.FixedAmount
	}
	return tier.MinAmount + s.intn(tier.MaxAmount-tier.MinAmount+1)
}

// Open runs the two-stage gate and, when triggered, the weighted draw.
// The daily stamp is written only on a triggered attempt: a declined roll
// leaves the day open for another try.
func (s *SurpriseBoxService) Open(ctx context.Context, userID uuid.UUID) (*BoxResult, error) {
	var result BoxResult
	err := s.gamification.withProfile(ctx, userID, func(p *profile.Profile, events *[]notification.Event) error {
		now := s.clock.Now()

		if p.DailyTasks.LastSurpriseBoxDate != nil && clock.SameDay(*p.DailyTasks.LastSurpriseBoxDate, now) {
			return ErrDailyLimitReached
		}

		if s.roll() > s.catalog.BoxTriggerChance {
			return errNotTriggered
		}

		tier := s.drawTier()
		amount := s.drawAmount(tier)

		// The trigger roll consumed today's attempt regardless of tier.
		p.DailyTasks.LastSurpriseBoxDate = &now

		xpResult := s.gamification.applyXP(p, amount, events)
		if tier.BadgeID != "" {
			s.gamification.grantBadge(p, tier.BadgeID, events)
		}

		*events = append(*events, notification.Event{
			UserID: userID,
			Type:   notification.EventSurpriseBoxResult,
			Data:   map[string]any{"tier": tier.Name, "amount": amount},
		})

		result = BoxResult{
			Triggered: true,
			Tier:      tier.Name,
			Amount:    amount,
			BadgeID:   tier.BadgeID,
			TotalXP:   xpResult.TotalXP,
			Level:     xpResult.Level,
			LevelUp:   xpResult.LevelUp,
		}
		return nil
	})

	if err != nil {
		if errors.Is(err, errNotTriggered) {
			surpriseBoxTotal.WithLabelValues("not_triggered").Inc()
			return &BoxResult{Triggered: false}, nil
		}
		if errors.Is(err, ErrDailyLimitReached) {
			surpriseBoxTotal.WithLabelValues("daily_limit").Inc()
		}
		return nil, err
	}

	s.gamification.creditWindows(ctx, userID, result.Amount)
	surpriseBoxTotal.WithLabelValues(result.Tier).Inc()
	xpGrantedTotal.WithLabelValues("surprise_box").Add(float64(result.Amount))
	return &result, nil
}
